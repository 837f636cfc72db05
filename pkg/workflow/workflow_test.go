package workflow

import (
	"errors"
	"testing"

	"github.com/rhizome-lab/transmute/pkg/properties"
)

func TestBuilderProducesCompleteWorkflow(t *testing.T) {
	w := New().SourceFile("in.png").Step("resize").SinkFile("out.jpg")
	if !w.IsComplete() {
		t.Fatal("expected a source+step+sink workflow to be complete")
	}
	if w.NeedsPlanning() {
		t.Fatal("a complete workflow should not need planning")
	}
}

func TestBuilderNeedsPlanningWithNoSteps(t *testing.T) {
	w := New().SourceFile("in.png").SinkFile("out.jpg")
	if w.IsComplete() {
		t.Fatal("a workflow with no steps should not be complete")
	}
	if !w.NeedsPlanning() {
		t.Fatal("expected a source+sink, no-steps workflow to need planning")
	}
}

func TestBuilderIncompleteWithoutSink(t *testing.T) {
	w := New().SourceFile("in.png")
	if w.IsComplete() || w.NeedsPlanning() {
		t.Fatal("a workflow with no sink is neither complete nor plannable")
	}
}

func TestStepAppendDoesNotMutateOriginal(t *testing.T) {
	base := New().SourceFile("in.png").SinkFile("out.jpg")
	withStep := base.Step("resize")
	if len(base.Steps) != 0 {
		t.Fatalf("base.Steps len = %d, want 0 (Step must not mutate receiver)", len(base.Steps))
	}
	if len(withStep.Steps) != 1 {
		t.Fatalf("withStep.Steps len = %d, want 1", len(withStep.Steps))
	}
}

func TestSourceFileDetectsFormat(t *testing.T) {
	src := SourceFile{Path: "photo.png"}
	props := src.ToProperties()
	format, ok := props.Get("format")
	if !ok {
		t.Fatal("expected format to be detected from .png extension")
	}
	if s, _ := format.AsString(); s != "png" {
		t.Fatalf("format = %q, want png", s)
	}
	if src.IsBatch() {
		t.Fatal("a single file source should not be a batch")
	}
}

func TestSourceGlobIsBatch(t *testing.T) {
	src := SourceGlob{Glob: "*.png"}
	if !src.IsBatch() {
		t.Fatal("a glob source should be a batch")
	}
}

func TestSinkFileTargetsFormat(t *testing.T) {
	sink := SinkFile{Path: "out.jpg"}
	p := sink.ToPattern()
	props := properties.New().With("format", properties.String("jpg"))
	if !p.Matches(props) {
		t.Fatal("expected sink pattern to require format jpg")
	}
	other := properties.New().With("format", properties.String("png"))
	if p.Matches(other) {
		t.Fatal("expected sink pattern to reject a non-matching format")
	}
}

func TestSinkDirectoryHasNoConstraint(t *testing.T) {
	sink := SinkDirectory{Directory: "out/"}
	p := sink.ToPattern()
	if !p.Matches(properties.New()) {
		t.Fatal("a bare directory sink should impose no pattern constraint")
	}
}

func TestSinkPropertiesBuildsEqPredicates(t *testing.T) {
	sink := SinkProperties{Properties: properties.New().With("format", properties.String("png")).With("width", properties.Int(100))}
	p := sink.ToPattern()

	match := properties.New().With("format", properties.String("png")).With("width", properties.Int(100))
	if !p.Matches(match) {
		t.Fatal("expected pattern to match properties satisfying every inline predicate")
	}
	mismatch := properties.New().With("format", properties.String("png")).With("width", properties.Int(200))
	if p.Matches(mismatch) {
		t.Fatal("expected pattern not to match when one inline predicate fails")
	}
}

func TestFromBytesDetectsFormatFromPath(t *testing.T) {
	data := []byte(`{"preset": "test"}`)
	w, err := FromBytes(data, "workflow.json")
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if w.Preset != "test" {
		t.Fatalf("Preset = %q, want test", w.Preset)
	}
}

func TestFromBytesDefaultsToYAMLWhenUndetectable(t *testing.T) {
	data := []byte("preset: test\n")
	w, err := FromBytes(data, "")
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if w.Preset != "test" {
		t.Fatalf("Preset = %q, want test", w.Preset)
	}
}

func TestFromBytesFormatUnsupported(t *testing.T) {
	_, err := FromBytesFormat([]byte("x"), "toml")
	var werr *WorkflowError
	if !errors.As(err, &werr) || werr.Kind != Parse {
		t.Fatalf("err = %v, want WorkflowError{Kind: Parse}", err)
	}
}

func TestWorkflowErrorIsComparesKindOnly(t *testing.T) {
	a := &WorkflowError{Kind: Parse, Message: "one thing"}
	b := &WorkflowError{Kind: Parse, Message: "another thing"}
	if !errors.Is(a, b) {
		t.Fatal("expected WorkflowError.Is to match on Kind regardless of Message")
	}
	c := &WorkflowError{Kind: Incomplete}
	if errors.Is(a, c) {
		t.Fatal("expected WorkflowError.Is to reject differing Kind")
	}
}
