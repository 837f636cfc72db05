package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rhizome-lab/transmute/pkg/planner"
	"github.com/rhizome-lab/transmute/pkg/registry"
)

// BoundedExecutor runs plans sequentially like SimpleExecutor, but first
// performs a single estimate_memory(input_len, plan) pre-check against a
// fixed limit; if it exceeds the limit, the plan fails fast with
// MemoryLimitExceeded before any step runs. Otherwise it delegates to the
// same expansion/aggregation logic SimpleExecutor uses.
type BoundedExecutor struct {
	registry    *registry.Registry
	memoryLimit uint64
}

// NewBoundedExecutor returns a BoundedExecutor that rejects any plan whose
// estimated memory need exceeds limit bytes. A limit of 0 means unbounded
// (equivalent to SimpleExecutor).
func NewBoundedExecutor(reg *registry.Registry, limit uint64) *BoundedExecutor {
	return &BoundedExecutor{registry: reg, memoryLimit: limit}
}

func (e *BoundedExecutor) checkLimit(inputLen int, plan *planner.Plan) error {
	if e.memoryLimit == 0 {
		return nil
	}
	needed := estimateMemory(inputLen, plan)
	if needed > e.memoryLimit {
		return &ExecuteError{Kind: MemoryLimitExceeded, Needed: needed, Limit: e.memoryLimit}
	}
	return nil
}

// Execute performs the same pre-flight memory estimate as ExecuteExpanding,
// then runs the plan but collapses a mid-pipeline expansion to its last
// branch (see ExecuteExpanding to get every branch).
func (e *BoundedExecutor) Execute(ctx context.Context, job Job) ([]ExecutionResult, error) {
	if err := e.checkLimit(len(job.Input), job.Plan); err != nil {
		return nil, err
	}

	start := time.Now()
	items, executed, peak, err := runExpanding(ctx, e.registry, job.Plan.Steps, itemState{data: job.Input, props: job.Props}, uuid.NewString(), 0)
	if err != nil {
		return nil, err
	}
	return toResults(items[len(items)-1:], timed(start, executed, peak)), nil
}

// ExecuteExpanding performs one pre-flight memory estimate over the whole
// plan and job.Input's length, then runs the plan exactly as SimpleExecutor
// would.
func (e *BoundedExecutor) ExecuteExpanding(ctx context.Context, job Job) ([]ExecutionResult, error) {
	if err := e.checkLimit(len(job.Input), job.Plan); err != nil {
		return nil, err
	}

	start := time.Now()
	items, executed, peak, err := runExpanding(ctx, e.registry, job.Plan.Steps, itemState{data: job.Input, props: job.Props}, uuid.NewString(), 0)
	if err != nil {
		return nil, err
	}
	return toResults(items, timed(start, executed, peak)), nil
}

// ExecuteBatch runs each job independently and sequentially.
func (e *BoundedExecutor) ExecuteBatch(ctx context.Context, jobs []Job) ([][]ExecutionResult, error) {
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

// ExecuteAggregating performs one pre-flight memory estimate over the
// whole plan and the combined length of every input branch, then runs the
// plan's pre/aggregate/post phases exactly as SimpleExecutor would.
func (e *BoundedExecutor) ExecuteAggregating(ctx context.Context, batch BatchJob) ([]ExecutionResult, error) {
	if len(batch.Items) == 0 {
		return nil, &ExecuteError{Kind: EmptyPlan}
	}

	if err := e.checkLimit(totalLen(batch.Items), batch.Plan); err != nil {
		return nil, err
	}

	start := time.Now()
	items, executed, peak, err := runAggregating(ctx, e.registry, batch.Plan.Steps, batch.Items, uuid.NewString())
	if err != nil {
		return nil, err
	}
	return toResults(items, timed(start, executed, peak)), nil
}
