package executor

import "fmt"

// ErrorKind identifies which executor-layer failure occurred.
type ErrorKind int

const (
	// ConversionFailed wraps a converter-layer error at a specific step.
	ConversionFailed ErrorKind = iota
	// ConverterNotFound means the plan names a converter ID with no
	// registered implementation.
	ConverterNotFound
	// MemoryLimitExceeded means a step's estimated memory need exceeds
	// what the executor's budget could ever grant.
	MemoryLimitExceeded
	// EmptyPlan means a step produced zero live items, leaving nothing
	// for the remaining steps to operate on.
	EmptyPlan
)

// ExecuteError is the executor-layer error taxonomy.
type ExecuteError struct {
	Kind        ErrorKind
	Step        int
	ConverterID string
	Needed      uint64
	Limit       uint64
	Cause       error
}

func (e *ExecuteError) Error() string {
	switch e.Kind {
	case ConversionFailed:
		return fmt.Sprintf("step %d (%s): conversion failed: %v", e.Step, e.ConverterID, e.Cause)
	case ConverterNotFound:
		return fmt.Sprintf("converter not found: %s", e.ConverterID)
	case MemoryLimitExceeded:
		return fmt.Sprintf("memory limit exceeded: needed %d, limit %d", e.Needed, e.Limit)
	case EmptyPlan:
		return "plan execution produced an empty item set"
	default:
		return "executor error"
	}
}

func (e *ExecuteError) Unwrap() error { return e.Cause }

// Is supports errors.Is comparisons against ErrorKind.
func (e *ExecuteError) Is(target error) bool {
	other, ok := target.(*ExecuteError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
