// Package executor runs a Plan produced by the planner against a Registry
// of converter implementations, in three escalating flavors: a plain
// sequential executor, one that fails fast on an estimated memory
// overrun, and one that runs multiple jobs concurrently behind a shared
// memory budget.
package executor

import (
	"time"

	"github.com/rhizome-lab/transmute/pkg/converter"
	"github.com/rhizome-lab/transmute/pkg/planner"
	"github.com/rhizome-lab/transmute/pkg/properties"
)

// Job is one unit of work: a Plan to run against a single input.
type Job struct {
	Plan  *planner.Plan
	Input []byte
	Props properties.Properties
}

// BatchJob is one unit of aggregating work: a Plan run against several
// independent input branches that converge at the plan's aggregate step.
type BatchJob struct {
	Plan  *planner.Plan
	Items []converter.Item
}

// ExecutionStats describes one Execute/ExecuteExpanding/ExecuteAggregating
// invocation. All results produced by a single invocation share the same
// Stats, matching the original's per-call (not per-item) statistics.
type ExecutionStats struct {
	Duration      time.Duration
	PeakMemory    uint64
	StepsExecuted int
}

// ExecutionResult is one output item plus the statistics for the
// invocation that produced it.
type ExecutionResult struct {
	Data  []byte
	Props properties.Properties
	Stats ExecutionStats
}
