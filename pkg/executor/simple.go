package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rhizome-lab/transmute/pkg/registry"
)

// SimpleExecutor runs plans sequentially with no memory accounting and no
// concurrency. It is the baseline every other executor in this package is
// measured against.
type SimpleExecutor struct {
	registry *registry.Registry
}

// NewSimpleExecutor returns a SimpleExecutor backed by reg.
func NewSimpleExecutor(reg *registry.Registry) *SimpleExecutor {
	return &SimpleExecutor{registry: reg}
}

// Execute runs job.Plan's steps over job.Input. A plan with no expanding
// steps produces exactly one result; a plan that does expand mid-pipeline
// collapses to its last branch (see ExecuteExpanding to get every branch).
func (e *SimpleExecutor) Execute(ctx context.Context, job Job) ([]ExecutionResult, error) {
	start := time.Now()
	items, executed, peak, err := runExpanding(ctx, e.registry, job.Plan.Steps, itemState{data: job.Input, props: job.Props}, uuid.NewString(), 0)
	if err != nil {
		return nil, err
	}
	return toResults(items[len(items)-1:], timed(start, executed, peak)), nil
}

// ExecuteExpanding runs job.Plan's steps over job.Input, fanning out on
// any Multiple output.
func (e *SimpleExecutor) ExecuteExpanding(ctx context.Context, job Job) ([]ExecutionResult, error) {
	start := time.Now()
	items, executed, peak, err := runExpanding(ctx, e.registry, job.Plan.Steps, itemState{data: job.Input, props: job.Props}, uuid.NewString(), 0)
	if err != nil {
		return nil, err
	}
	return toResults(items, timed(start, executed, peak)), nil
}

// ExecuteBatch runs each job independently and sequentially, collecting
// per-job result sets in order.
func (e *SimpleExecutor) ExecuteBatch(ctx context.Context, jobs []Job) ([][]ExecutionResult, error) {
	out := make([][]ExecutionResult, len(jobs))
	for i, job := range jobs {
		results, err := e.Execute(ctx, job)
		if err != nil {
			return nil, err
		}
		out[i] = results
	}
	return out, nil
}

// ExecuteAggregating runs batch.Plan's pre-steps over each branch, its
// aggregate step once, and its post-steps once on the aggregated result.
func (e *SimpleExecutor) ExecuteAggregating(ctx context.Context, batch BatchJob) ([]ExecutionResult, error) {
	start := time.Now()
	items, executed, peak, err := runAggregating(ctx, e.registry, batch.Plan.Steps, batch.Items, uuid.NewString())
	if err != nil {
		return nil, err
	}
	return toResults(items, timed(start, executed, peak)), nil
}
