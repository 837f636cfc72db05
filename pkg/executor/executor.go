package executor

import (
	"context"
	"time"

	"github.com/rhizome-lab/transmute/pkg/converter"
	"github.com/rhizome-lab/transmute/pkg/planner"
	"github.com/rhizome-lab/transmute/pkg/properties"
	"github.com/rhizome-lab/transmute/pkg/registry"
	"github.com/rhizome-lab/transmute/pkg/telemetry"
)

// Executor runs Plans against a Registry's converter implementations.
// Execute is the common case: it runs every step, and if expansion
// happens mid-pipeline it collapses to one representative result (the
// last branch) rather than fanning out. ExecuteExpanding runs the same
// steps but returns every branch a Multiple output produces. ExecuteBatch
// and ExecuteAggregating cover multi-input workloads.
type Executor interface {
	Execute(ctx context.Context, job Job) ([]ExecutionResult, error)
	ExecuteExpanding(ctx context.Context, job Job) ([]ExecutionResult, error)
	ExecuteBatch(ctx context.Context, jobs []Job) ([][]ExecutionResult, error)
	ExecuteAggregating(ctx context.Context, batch BatchJob) ([]ExecutionResult, error)
}

type itemState struct {
	data  []byte
	props properties.Properties
}

// runExpanding threads a single starting item through every step of
// steps, fanning out whenever a step's output is Multiple so that each
// resulting branch continues independently through the remaining steps.
// An empty item set after any step is EmptyPlan: there is nothing left
// for the rest of the plan to operate on. Each step is wrapped with
// telemetry.WithStepContext/EndStepContext under planID, a no-op unless
// ctx carries a *telemetry.Telemetry; stepOffset lets callers that split
// a plan around an aggregate step (runAggregating) keep step indices
// contiguous across the pre/aggregate/post phases.
func runExpanding(ctx context.Context, reg *registry.Registry, steps []planner.PlanStep, start itemState, planID string, stepOffset int) ([]itemState, int, uint64, error) {
	items := []itemState{start}
	peak := uint64(len(start.data))
	executed := 0

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, executed, peak, err
		}

		stepIndex := stepOffset + executed
		stepCtx := telemetry.WithStepContext(ctx, planID, stepIndex, step.ConverterID)

		conv, ok := reg.Get(step.ConverterID)
		if !ok {
			err := &ExecuteError{Kind: ConverterNotFound, ConverterID: step.ConverterID, Step: executed}
			telemetry.EndStepContext(stepCtx, planID, stepIndex, step.ConverterID, "error", err)
			return nil, executed, peak, err
		}

		var next []itemState
		for _, it := range items {
			out, err := conv.Convert(stepCtx, it.data, it.props)
			if err != nil {
				wrapped := &ExecuteError{Kind: ConversionFailed, Step: executed, ConverterID: step.ConverterID, Cause: err}
				telemetry.EndStepContext(stepCtx, planID, stepIndex, step.ConverterID, "error", wrapped)
				return nil, executed, peak, wrapped
			}
			for _, o := range out.Items() {
				if m := uint64(len(o.Data)); m > peak {
					peak = m
				}
				next = append(next, itemState{data: o.Data, props: o.Props})
			}
		}
		telemetry.EndStepContext(stepCtx, planID, stepIndex, step.ConverterID, "ok", nil)

		items = next
		executed++
		if len(items) == 0 {
			return nil, executed, peak, &ExecuteError{Kind: EmptyPlan, Step: executed}
		}
	}

	return items, executed, peak, nil
}

// findAggregateStepIndex returns the index of the first step whose
// converter declares a list input port, or -1 if the plan has no
// aggregating step.
func findAggregateStepIndex(reg *registry.Registry, steps []planner.PlanStep) int {
	for i, step := range steps {
		decl, ok := reg.GetDecl(step.ConverterID)
		if ok && decl.Aggregates() {
			return i
		}
	}
	return -1
}

// runAggregating splits steps into [pre | aggregate | post] around the
// first aggregating step. Each of the batch's branches is threaded
// through the pre-steps independently; when a pre-step expands a branch
// into multiple items, only the first branch survives to feed
// the aggregate step (a deliberate simplification: the planner's linear
// Plan has no way to address "which expanded branch" downstream of an
// expansion, so the first is kept by convention). The aggregate
// converter's ConvertBatch then runs once over the collected pairs, and
// its result(s) are threaded through the post-steps exactly once.
func runAggregating(ctx context.Context, reg *registry.Registry, steps []planner.PlanStep, items []converter.Item, planID string) ([]itemState, int, uint64, error) {
	if len(items) == 0 {
		return nil, 0, 0, &ExecuteError{Kind: EmptyPlan}
	}

	aggIdx := findAggregateStepIndex(reg, steps)
	if aggIdx == -1 {
		// No aggregating step: treat as a plain batch-of-one, running the
		// first branch through the whole plan.
		results, executed, peak, err := runExpanding(ctx, reg, steps, itemState{data: items[0].Data, props: items[0].Props}, planID, 0)
		return results, executed, peak, err
	}

	pre := steps[:aggIdx]
	aggregate := steps[aggIdx]
	post := steps[aggIdx+1:]

	peak := uint64(0)
	for _, item := range items {
		peak += uint64(len(item.Data))
	}
	executed := 0
	collected := make([]converter.Item, 0, len(items))

	for _, item := range items {
		branch, n, branchPeak, err := runExpanding(ctx, reg, pre, itemState{data: item.Data, props: item.Props}, planID, executed)
		if err != nil {
			return nil, executed, peak, err
		}
		if n > executed {
			executed = n
		}
		if branchPeak > peak {
			peak = branchPeak
		}
		collected = append(collected, converter.Item{Data: branch[0].data, Props: branch[0].props})
	}

	aggStepIndex := executed
	stepCtx := telemetry.WithStepContext(ctx, planID, aggStepIndex, aggregate.ConverterID)

	conv, ok := reg.Get(aggregate.ConverterID)
	if !ok {
		err := &ExecuteError{Kind: ConverterNotFound, ConverterID: aggregate.ConverterID, Step: executed}
		telemetry.EndStepContext(stepCtx, planID, aggStepIndex, aggregate.ConverterID, "error", err)
		return nil, executed, peak, err
	}
	out, err := conv.ConvertBatch(stepCtx, collected)
	if err != nil {
		wrapped := &ExecuteError{Kind: ConversionFailed, Step: executed, ConverterID: aggregate.ConverterID, Cause: err}
		telemetry.EndStepContext(stepCtx, planID, aggStepIndex, aggregate.ConverterID, "error", wrapped)
		return nil, executed, peak, wrapped
	}
	telemetry.EndStepContext(stepCtx, planID, aggStepIndex, aggregate.ConverterID, "ok", nil)
	executed++

	var aggregated []itemState
	for _, o := range out.Items() {
		if m := uint64(len(o.Data)); m > peak {
			peak = m
		}
		aggregated = append(aggregated, itemState{data: o.Data, props: o.Props})
	}
	if len(aggregated) == 0 {
		return nil, executed, peak, &ExecuteError{Kind: EmptyPlan, Step: executed}
	}

	var finalResults []itemState
	for _, start := range aggregated {
		branch, n, branchPeak, err := runExpanding(ctx, reg, post, start, planID, executed)
		if err != nil {
			return nil, executed, peak, err
		}
		if n > 0 {
			executed += n
		}
		if branchPeak > peak {
			peak = branchPeak
		}
		finalResults = append(finalResults, branch...)
	}

	return finalResults, executed, peak, nil
}

func toResults(items []itemState, stats ExecutionStats) []ExecutionResult {
	out := make([]ExecutionResult, len(items))
	for i, it := range items {
		out[i] = ExecutionResult{Data: it.data, Props: it.props, Stats: stats}
	}
	return out
}

func timed(start time.Time, executed int, peak uint64) ExecutionStats {
	return ExecutionStats{Duration: time.Since(start), PeakMemory: peak, StepsExecuted: executed}
}
