package properties

import "testing"

func TestWithDoesNotMutateOriginal(t *testing.T) {
	base := New().With("a", Int(1))
	derived := base.With("b", Int(2))

	if base.Len() != 1 {
		t.Fatalf("base.Len() = %d, want 1 (With must not mutate receiver)", base.Len())
	}
	if derived.Len() != 2 {
		t.Fatalf("derived.Len() = %d, want 2", derived.Len())
	}
}

func TestSetMutatesInPlace(t *testing.T) {
	p := New()
	p.Set("a", Int(1))
	if p.Len() != 1 {
		t.Fatalf("Len() after Set = %d, want 1", p.Len())
	}
	v, ok := p.Get("a")
	if !ok || v.Equal(Int(1)) == false {
		t.Fatalf("Get(a) = %v, %v, want Int(1), true", v, ok)
	}
}

func TestZeroValuePropertiesIsUsable(t *testing.T) {
	var p Properties
	if p.Len() != 0 {
		t.Fatalf("zero value Len() = %d, want 0", p.Len())
	}
	if _, ok := p.Get("missing"); ok {
		t.Fatal("zero value Get should return ok=false")
	}
	p.Set("a", Int(1))
	if p.Len() != 1 {
		t.Fatalf("Len() after Set on zero value = %d, want 1", p.Len())
	}
}

func TestMergeOverlaysAndAppends(t *testing.T) {
	base := New().With("a", Int(1)).With("b", Int(2))
	overlay := New().With("b", Int(20)).With("c", Int(3))

	merged := base.Merge(overlay)

	if v, _ := merged.Get("a"); !v.Equal(Int(1)) {
		t.Fatalf("merged[a] = %v, want 1 (untouched by overlay)", v)
	}
	if v, _ := merged.Get("b"); !v.Equal(Int(20)) {
		t.Fatalf("merged[b] = %v, want 20 (overlay wins)", v)
	}
	if v, _ := merged.Get("c"); !v.Equal(Int(3)) {
		t.Fatalf("merged[c] = %v, want 3 (new key appended)", v)
	}
	if base.Len() != 2 {
		t.Fatalf("Merge must not mutate base, base.Len() = %d, want 2", base.Len())
	}
}

func TestKeysPreserveInsertionOrder(t *testing.T) {
	p := New().With("z", Int(1)).With("a", Int(2)).With("m", Int(3))
	want := []string{"z", "a", "m"}
	got := p.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", got, want)
		}
	}
}

func TestDelete(t *testing.T) {
	p := New().With("a", Int(1)).With("b", Int(2))
	p.Delete("a")
	if _, ok := p.Get("a"); ok {
		t.Fatal("expected a to be deleted")
	}
	if p.Len() != 1 {
		t.Fatalf("Len() after Delete = %d, want 1", p.Len())
	}
}
