package executor

import (
	"context"
	"testing"

	"github.com/rhizome-lab/transmute/pkg/converter"
	"github.com/rhizome-lab/transmute/pkg/pattern"
	"github.com/rhizome-lab/transmute/pkg/planner"
	"github.com/rhizome-lab/transmute/pkg/properties"
	"github.com/rhizome-lab/transmute/pkg/registry"
)

// upperConverter uppercases its input bytes and flips a "format" tag; used
// across this package's tests as a minimal, deterministic converter.
type upperConverter struct {
	converter.Unsupported
	decl     converter.ConverterDecl
	outFmt   string
	callback func(props properties.Properties) converter.ConvertOutput
}

func (c upperConverter) Decl() converter.ConverterDecl { return c.decl }

func (c upperConverter) Convert(ctx context.Context, input []byte, props properties.Properties) (converter.ConvertOutput, error) {
	if c.callback != nil {
		return c.callback(props), nil
	}
	out := make([]byte, len(input))
	for i, b := range input {
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		out[i] = b
	}
	nextProps := props.With("format", properties.String(c.outFmt))
	return converter.NewSingleOutput(out, nextProps), nil
}

func newUpperDecl(id, outFmt string) converter.ConverterDecl {
	return converter.NewDecl(id).Simple(pattern.NewPattern(), pattern.NewPattern().Eq("format", properties.String(outFmt)))
}

func TestEstimateMemoryByStepIDFamily(t *testing.T) {
	cases := []struct {
		stepID string
		want   uint64
	}{
		{"image.resize", 400},
		{"audio.transcode", 1000},
		{"video.transcode", 10000},
		{"text.upper", 100},
		{"", 100},
	}
	for _, c := range cases {
		plan := &planner.Plan{Steps: []planner.PlanStep{{ConverterID: c.stepID}}}
		got := estimateMemory(100, plan)
		if got != c.want {
			t.Errorf("estimateMemory(100, plan with step %q) = %d, want %d", c.stepID, got, c.want)
		}
	}
}

func TestEstimateMemoryPicksMaxMultiplierAcrossSteps(t *testing.T) {
	plan := &planner.Plan{Steps: []planner.PlanStep{
		{ConverterID: "text.upper"},
		{ConverterID: "video.transcode"},
		{ConverterID: "image.resize"},
	}}
	got := estimateMemory(10, plan)
	if want := uint64(1000); got != want {
		t.Errorf("estimateMemory(10, plan) = %d, want %d (the video.* step's 100x dominates)", got, want)
	}
}

func TestSimpleExecutorExecuteSingleStep(t *testing.T) {
	reg := registry.New()
	conv := upperConverter{decl: newUpperDecl("upper", "text.upper"), outFmt: "text.upper"}
	_ = reg.Register(conv)

	plan := &planner.Plan{Steps: []planner.PlanStep{{ConverterID: "upper"}}}
	exec := NewSimpleExecutor(reg)

	results, err := exec.Execute(context.Background(), Job{Plan: plan, Input: []byte("hi"), Props: properties.New()})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != 1 || string(results[0].Data) != "HI" {
		t.Fatalf("results = %+v, want one item with data HI", results)
	}
}

func TestSimpleExecutorConverterNotFound(t *testing.T) {
	reg := registry.New()
	plan := &planner.Plan{Steps: []planner.PlanStep{{ConverterID: "missing"}}}
	exec := NewSimpleExecutor(reg)

	_, err := exec.Execute(context.Background(), Job{Plan: plan, Input: []byte("x"), Props: properties.New()})
	if ee, ok := err.(*ExecuteError); !ok || ee.Kind != ConverterNotFound {
		t.Fatalf("err = %v, want ExecuteError{Kind: ConverterNotFound}", err)
	}
}

func TestSimpleExecutorExecuteBatch(t *testing.T) {
	reg := registry.New()
	conv := upperConverter{decl: newUpperDecl("upper", "text.upper"), outFmt: "text.upper"}
	_ = reg.Register(conv)

	plan := &planner.Plan{Steps: []planner.PlanStep{{ConverterID: "upper"}}}
	exec := NewSimpleExecutor(reg)

	jobs := []Job{
		{Plan: plan, Input: []byte("a"), Props: properties.New()},
		{Plan: plan, Input: []byte("b"), Props: properties.New()},
	}
	results, err := exec.ExecuteBatch(context.Background(), jobs)
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if len(results) != 2 || string(results[0][0].Data) != "A" || string(results[1][0].Data) != "B" {
		t.Fatalf("results = %+v, want [[A] [B]]", results)
	}
}

func TestSimpleExecutorExpandingFansOut(t *testing.T) {
	reg := registry.New()
	split := upperConverter{
		decl: converter.NewDecl("split").
			Input("in", converter.Single(pattern.NewPattern())).
			Output("out", converter.List(pattern.NewPattern())),
		callback: func(props properties.Properties) converter.ConvertOutput {
			return converter.NewMultipleOutput([]converter.Item{
				{Data: []byte("a"), Props: props},
				{Data: []byte("b"), Props: props},
			})
		},
	}
	_ = reg.Register(split)

	plan := &planner.Plan{Steps: []planner.PlanStep{{ConverterID: "split"}}}
	exec := NewSimpleExecutor(reg)

	results, err := exec.ExecuteExpanding(context.Background(), Job{Plan: plan, Input: []byte("x"), Props: properties.New()})
	if err != nil {
		t.Fatalf("ExecuteExpanding: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results len = %d, want 2", len(results))
	}
}

func TestSimpleExecutorExecuteCollapsesExpansionToLastBranch(t *testing.T) {
	reg := registry.New()
	split := upperConverter{
		decl: converter.NewDecl("split").
			Input("in", converter.Single(pattern.NewPattern())).
			Output("out", converter.List(pattern.NewPattern())),
		callback: func(props properties.Properties) converter.ConvertOutput {
			return converter.NewMultipleOutput([]converter.Item{
				{Data: []byte("a"), Props: props},
				{Data: []byte("b"), Props: props},
			})
		},
	}
	_ = reg.Register(split)

	plan := &planner.Plan{Steps: []planner.PlanStep{{ConverterID: "split"}}}
	exec := NewSimpleExecutor(reg)

	results, err := exec.Execute(context.Background(), Job{Plan: plan, Input: []byte("x"), Props: properties.New()})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != 1 || string(results[0].Data) != "b" {
		t.Fatalf("results = %+v, want exactly one result with data %q (the last branch)", results, "b")
	}
}

func TestSimpleExecutorExpandingEmptyIsError(t *testing.T) {
	reg := registry.New()
	empty := upperConverter{
		decl: converter.NewDecl("drop").
			Input("in", converter.Single(pattern.NewPattern())).
			Output("out", converter.List(pattern.NewPattern())),
		callback: func(props properties.Properties) converter.ConvertOutput {
			return converter.NewMultipleOutput(nil)
		},
	}
	_ = reg.Register(empty)

	plan := &planner.Plan{Steps: []planner.PlanStep{{ConverterID: "drop"}}}
	exec := NewSimpleExecutor(reg)

	_, err := exec.ExecuteExpanding(context.Background(), Job{Plan: plan, Input: []byte("x"), Props: properties.New()})
	if ee, ok := err.(*ExecuteError); !ok || ee.Kind != EmptyPlan {
		t.Fatalf("err = %v, want ExecuteError{Kind: EmptyPlan}", err)
	}
}

func TestSimpleExecutorAggregating(t *testing.T) {
	reg := registry.New()
	merge := upperConverter{
		decl: converter.NewDecl("merge").
			Input("in", converter.List(pattern.NewPattern())).
			Output("out", converter.Single(pattern.NewPattern())),
	}
	// merge needs ConvertBatch, not Convert; wrap with a dedicated type.
	mergeConv := batchMergeConverter{decl: merge.decl}
	_ = reg.Register(mergeConv)

	plan := &planner.Plan{Steps: []planner.PlanStep{{ConverterID: "merge"}}}
	exec := NewSimpleExecutor(reg)

	batch := BatchJob{
		Plan: plan,
		Items: []converter.Item{
			{Data: []byte("a"), Props: properties.New()},
			{Data: []byte("b"), Props: properties.New()},
		},
	}
	results, err := exec.ExecuteAggregating(context.Background(), batch)
	if err != nil {
		t.Fatalf("ExecuteAggregating: %v", err)
	}
	if len(results) != 1 || string(results[0].Data) != "ab" {
		t.Fatalf("results = %+v, want one item with data ab", results)
	}
}

// batchMergeConverter concatenates every item's data, exercising
// ConvertBatch (the aggregate step in runAggregating).
type batchMergeConverter struct {
	converter.Unsupported
	decl converter.ConverterDecl
}

func (c batchMergeConverter) Decl() converter.ConverterDecl { return c.decl }

func (c batchMergeConverter) Convert(ctx context.Context, input []byte, props properties.Properties) (converter.ConvertOutput, error) {
	return converter.NewSingleOutput(input, props), nil
}

func (c batchMergeConverter) ConvertBatch(ctx context.Context, items []converter.Item) (converter.ConvertOutput, error) {
	var merged []byte
	for _, it := range items {
		merged = append(merged, it.Data...)
	}
	return converter.NewSingleOutput(merged, properties.New()), nil
}
