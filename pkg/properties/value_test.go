package properties

import "testing"

func TestValueAccessorsRejectWrongKind(t *testing.T) {
	v := String("hello")
	if _, ok := v.AsBool(); ok {
		t.Fatal("AsBool on a string value should not ok")
	}
	if _, ok := v.AsInt64(); ok {
		t.Fatal("AsInt64 on a string value should not ok")
	}
	if s, ok := v.AsString(); !ok || s != "hello" {
		t.Fatalf("AsString() = %q, %v, want hello, true", s, ok)
	}
}

func TestValueAsFloat64AcceptsInt(t *testing.T) {
	v := Int(42)
	f, ok := v.AsFloat64()
	if !ok || f != 42.0 {
		t.Fatalf("AsFloat64() on Int(42) = %v, %v, want 42.0, true", f, ok)
	}
}

func TestValueEqualScalars(t *testing.T) {
	cases := []struct {
		a, b  Value
		equal bool
	}{
		{Int(1), Int(1), true},
		{Int(1), Int(2), false},
		{Int(1), Float(1), false}, // different kind, not coerced
		{String("a"), String("a"), true},
		{Bool(true), Bool(false), false},
		{Null(), Null(), true},
	}
	for _, c := range cases {
		if got := c.a.Equal(c.b); got != c.equal {
			t.Errorf("%v.Equal(%v) = %v, want %v", c.a, c.b, got, c.equal)
		}
	}
}

func TestValueEqualArray(t *testing.T) {
	a := Array([]Value{Int(1), String("x")})
	b := Array([]Value{Int(1), String("x")})
	c := Array([]Value{Int(1), String("y")})

	if !a.Equal(b) {
		t.Fatal("expected equal arrays to compare equal")
	}
	if a.Equal(c) {
		t.Fatal("expected differing arrays to compare unequal")
	}
}

func TestValueEqualObject(t *testing.T) {
	a := Object(New().With("k", Int(1)))
	b := Object(New().With("k", Int(1)))
	c := Object(New().With("k", Int(2)))

	if !a.Equal(b) {
		t.Fatal("expected equal objects to compare equal")
	}
	if a.Equal(c) {
		t.Fatal("expected differing objects to compare unequal")
	}
}

func TestValueKindAndIsNull(t *testing.T) {
	if !Null().IsNull() {
		t.Fatal("Null().IsNull() should be true")
	}
	if Int(0).IsNull() {
		t.Fatal("Int(0).IsNull() should be false")
	}
	if Int(1).Kind() != KindInt {
		t.Fatalf("Kind() = %v, want KindInt", Int(1).Kind())
	}
}
