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

func TestBoundedExecutorRejectsOverLimitInput(t *testing.T) {
	reg := registry.New()
	conv := upperConverter{decl: newUpperDecl("video.transcode", "video.out"), outFmt: "video.out"} // 100x multiplier
	_ = reg.Register(conv)

	plan := &planner.Plan{Steps: []planner.PlanStep{{ConverterID: "video.transcode"}}}
	exec := NewBoundedExecutor(reg, 10)

	_, err := exec.Execute(context.Background(), Job{Plan: plan, Input: []byte("x"), Props: properties.New()})
	ee, ok := err.(*ExecuteError)
	if !ok || ee.Kind != MemoryLimitExceeded {
		t.Fatalf("err = %v, want ExecuteError{Kind: MemoryLimitExceeded}", err)
	}
}

func TestBoundedExecutorAllowsWithinLimit(t *testing.T) {
	reg := registry.New()
	conv := upperConverter{decl: newUpperDecl("upper", "text.upper"), outFmt: "text.upper"}
	_ = reg.Register(conv)

	plan := &planner.Plan{Steps: []planner.PlanStep{{ConverterID: "upper"}}}
	exec := NewBoundedExecutor(reg, 1000)

	results, err := exec.Execute(context.Background(), Job{Plan: plan, Input: []byte("hi"), Props: properties.New()})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != 1 || string(results[0].Data) != "HI" {
		t.Fatalf("results = %+v, want one item with data HI", results)
	}
}

func TestBoundedExecutorZeroLimitIsUnbounded(t *testing.T) {
	reg := registry.New()
	conv := upperConverter{decl: newUpperDecl("video.transcode", "video.out"), outFmt: "video.out"}
	_ = reg.Register(conv)

	plan := &planner.Plan{Steps: []planner.PlanStep{{ConverterID: "video.transcode"}}}
	exec := NewBoundedExecutor(reg, 0)

	if _, err := exec.Execute(context.Background(), Job{Plan: plan, Input: []byte("hi"), Props: properties.New()}); err != nil {
		t.Fatalf("Execute with zero (unbounded) limit: %v", err)
	}
}

func TestBoundedExecutorExecuteCollapsesExpansionToLastBranch(t *testing.T) {
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
	exec := NewBoundedExecutor(reg, 0)

	results, err := exec.Execute(context.Background(), Job{Plan: plan, Input: []byte("x"), Props: properties.New()})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != 1 || string(results[0].Data) != "b" {
		t.Fatalf("results = %+v, want exactly one result with data %q (the last branch)", results, "b")
	}
}

func TestBoundedExecutorPeakMemorySeededWithInputLength(t *testing.T) {
	reg := registry.New()
	exec := NewBoundedExecutor(reg, 0)
	plan := &planner.Plan{Steps: nil}

	results, err := exec.Execute(context.Background(), Job{Plan: plan, Input: []byte("hello"), Props: properties.New()})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != 1 || results[0].Stats.PeakMemory != 5 {
		t.Fatalf("PeakMemory = %d, want 5 (seeded with input length on an already-at-goal plan)", results[0].Stats.PeakMemory)
	}
}
