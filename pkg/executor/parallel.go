package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rhizome-lab/transmute/pkg/converter"
	"github.com/rhizome-lab/transmute/pkg/planner"
	"github.com/rhizome-lab/transmute/pkg/registry"
	"github.com/rhizome-lab/transmute/pkg/telemetry"
)

// ParallelExecutor runs independent jobs concurrently across a worker
// pool, admitting each step's estimated memory need through a shared
// MemoryBudget before running it so total concurrent memory use stays
// bounded regardless of how many workers are in flight. The pool shape
// (buffered closed work channel, a WaitGroup, a buffered error channel
// collecting the first failure) is the standard idiom for fan-out with
// first-error capture.
type ParallelExecutor struct {
	registry *registry.Registry
	budget   *MemoryBudget
	workers  int
}

// NewParallelExecutor returns a ParallelExecutor with workers concurrent
// slots (clamped to at least 1), backed by budget for memory admission.
func NewParallelExecutor(reg *registry.Registry, budget *MemoryBudget, workers int) *ParallelExecutor {
	if workers < 1 {
		workers = 1
	}
	return &ParallelExecutor{registry: reg, budget: budget, workers: workers}
}

func (e *ParallelExecutor) runExpanding(ctx context.Context, steps []planner.PlanStep, start itemState, planID string, stepOffset int) ([]itemState, int, uint64, error) {
	items := []itemState{start}
	peak := uint64(len(start.data))
	executed := 0

	for _, step := range steps {
		stepIndex := stepOffset + executed
		stepCtx := telemetry.WithStepContext(ctx, planID, stepIndex, step.ConverterID)

		conv, ok := e.registry.Get(step.ConverterID)
		if !ok {
			err := &ExecuteError{Kind: ConverterNotFound, ConverterID: step.ConverterID, Step: executed}
			telemetry.EndStepContext(stepCtx, planID, stepIndex, step.ConverterID, "error", err)
			return nil, executed, peak, err
		}

		var next []itemState
		for _, it := range items {
			needed := estimateStepMemory(step.ConverterID, len(it.data))
			permit, err := e.budget.Reserve(stepCtx, needed)
			if err != nil {
				telemetry.EndStepContext(stepCtx, planID, stepIndex, step.ConverterID, "error", err)
				return nil, executed, peak, err
			}
			out, err := conv.Convert(stepCtx, it.data, it.props)
			permit.Release()
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

// Execute runs a single job's steps, reserving memory per step from the
// shared budget, and collapses a mid-pipeline expansion to its last branch
// (see ExecuteExpanding to get every branch).
func (e *ParallelExecutor) Execute(ctx context.Context, job Job) ([]ExecutionResult, error) {
	start := time.Now()
	items, executed, peak, err := e.runExpanding(ctx, job.Plan.Steps, itemState{data: job.Input, props: job.Props}, uuid.NewString(), 0)
	if err != nil {
		return nil, err
	}
	return toResults(items[len(items)-1:], timed(start, executed, peak)), nil
}

// ExecuteExpanding runs a single job's steps, reserving memory per step
// from the shared budget.
func (e *ParallelExecutor) ExecuteExpanding(ctx context.Context, job Job) ([]ExecutionResult, error) {
	start := time.Now()
	items, executed, peak, err := e.runExpanding(ctx, job.Plan.Steps, itemState{data: job.Input, props: job.Props}, uuid.NewString(), 0)
	if err != nil {
		return nil, err
	}
	return toResults(items, timed(start, executed, peak)), nil
}

// ExecuteBatch runs every job concurrently across the executor's worker
// pool, each job admitted step-by-step through the shared memory budget.
// A failing job does not stop the other workers: they keep taking jobs
// until the queue is drained or ctx is done. If any job failed, the first
// recorded error is returned together with a nil result slice.
func (e *ParallelExecutor) ExecuteBatch(ctx context.Context, jobs []Job) ([][]ExecutionResult, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	type work struct {
		idx int
		job Job
	}

	workCh := make(chan work, len(jobs))
	for i, j := range jobs {
		workCh <- work{idx: i, job: j}
	}
	close(workCh)

	results := make([][]ExecutionResult, len(jobs))
	errCh := make(chan error, len(jobs))

	workers := e.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workCh {
				if ctx.Err() != nil {
					return
				}
				res, err := e.Execute(ctx, item.job)
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
					continue
				}
				results[item.idx] = res
			}
		}()
	}
	wg.Wait()
	close(errCh)

	if err, ok := <-errCh; ok {
		return nil, err
	}
	return results, nil
}

// ExecuteAggregating runs the pre-step phase for every branch
// concurrently (each admitted through the shared memory budget), then
// the aggregate step and post-steps sequentially, matching
// SimpleExecutor/BoundedExecutor's phase structure.
func (e *ParallelExecutor) ExecuteAggregating(ctx context.Context, batch BatchJob) ([]ExecutionResult, error) {
	start := time.Now()
	planID := uuid.NewString()

	if len(batch.Items) == 0 {
		return nil, &ExecuteError{Kind: EmptyPlan}
	}

	aggIdx := findAggregateStepIndex(e.registry, batch.Plan.Steps)
	if aggIdx == -1 {
		items, executed, peak, err := e.runExpanding(ctx, batch.Plan.Steps, itemState{data: batch.Items[0].Data, props: batch.Items[0].Props}, planID, 0)
		if err != nil {
			return nil, err
		}
		return toResults(items, timed(start, executed, peak)), nil
	}

	pre := batch.Plan.Steps[:aggIdx]
	aggregate := batch.Plan.Steps[aggIdx]
	post := batch.Plan.Steps[aggIdx+1:]

	type branchResult struct {
		item  converter.Item
		steps int
		peak  uint64
	}
	branches := make([]branchResult, len(batch.Items))
	errCh := make(chan error, len(batch.Items))

	workers := e.workers
	if workers > len(batch.Items) {
		workers = len(batch.Items)
	}
	workCh := make(chan int, len(batch.Items))
	for i := range batch.Items {
		workCh <- i
	}
	close(workCh)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workCh {
				src := batch.Items[i]
				branch, n, peak, err := e.runExpanding(ctx, pre, itemState{data: src.Data, props: src.Props}, planID, 0)
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
					continue
				}
				branches[i] = branchResult{item: converter.Item{Data: branch[0].data, Props: branch[0].props}, steps: n, peak: peak}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	if err, ok := <-errCh; ok {
		return nil, err
	}

	peak := uint64(0)
	for _, item := range batch.Items {
		peak += uint64(len(item.Data))
	}
	executed := 0
	collected := make([]converter.Item, len(branches))
	for i, b := range branches {
		collected[i] = b.item
		if b.steps > executed {
			executed = b.steps
		}
		if b.peak > peak {
			peak = b.peak
		}
	}

	aggStepIndex := executed
	stepCtx := telemetry.WithStepContext(ctx, planID, aggStepIndex, aggregate.ConverterID)

	conv, ok := e.registry.Get(aggregate.ConverterID)
	if !ok {
		err := &ExecuteError{Kind: ConverterNotFound, ConverterID: aggregate.ConverterID, Step: executed}
		telemetry.EndStepContext(stepCtx, planID, aggStepIndex, aggregate.ConverterID, "error", err)
		return nil, err
	}
	needed := estimateStepMemory(aggregate.ConverterID, totalLen(collected))
	permit, err := e.budget.Reserve(stepCtx, needed)
	if err != nil {
		telemetry.EndStepContext(stepCtx, planID, aggStepIndex, aggregate.ConverterID, "error", err)
		return nil, err
	}
	out, err := conv.ConvertBatch(stepCtx, collected)
	permit.Release()
	if err != nil {
		wrapped := &ExecuteError{Kind: ConversionFailed, Step: executed, ConverterID: aggregate.ConverterID, Cause: err}
		telemetry.EndStepContext(stepCtx, planID, aggStepIndex, aggregate.ConverterID, "error", wrapped)
		return nil, wrapped
	}
	telemetry.EndStepContext(stepCtx, planID, aggStepIndex, aggregate.ConverterID, "ok", nil)
	executed++

	var finalItems []itemState
	for _, o := range out.Items() {
		if m := uint64(len(o.Data)); m > peak {
			peak = m
		}
		branch, n, branchPeak, err := e.runExpanding(ctx, post, itemState{data: o.Data, props: o.Props}, planID, executed)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			executed += n
		}
		if branchPeak > peak {
			peak = branchPeak
		}
		finalItems = append(finalItems, branch...)
	}
	if len(finalItems) == 0 {
		return nil, &ExecuteError{Kind: EmptyPlan, Step: executed}
	}

	return toResults(finalItems, timed(start, executed, peak)), nil
}

func totalLen(items []converter.Item) int {
	n := 0
	for _, it := range items {
		n += len(it.Data)
	}
	return n
}
