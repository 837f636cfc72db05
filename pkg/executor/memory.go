package executor

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rhizome-lab/transmute/pkg/planner"
	"github.com/rhizome-lab/transmute/pkg/telemetry"
)

// MemoryBudget is a bounded, shareable resource: callers reserve bytes
// before doing memory-heavy work and release them when done, so a
// parallel executor can admit only as much concurrent work as fits the
// configured limit. Reservation accounting is lock-free (atomic
// compare-and-swap); a mutex/condvar pair exists only to park and wake
// blocked waiters, not to guard the counter itself.
type MemoryBudget struct {
	limit uint64
	used  atomic.Uint64
	mu    sync.Mutex
	cond  *sync.Cond
}

// NewMemoryBudget returns a budget that admits at most limit bytes of
// concurrent reservations. A limit of 0 means unbounded.
func NewMemoryBudget(limit uint64) *MemoryBudget {
	b := &MemoryBudget{limit: limit}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// MemoryPermit is a scoped reservation against a MemoryBudget. Callers
// must call Release exactly once when the reserved memory is no longer
// needed; Release is idempotent so defer permit.Release() is always safe.
type MemoryPermit struct {
	budget *MemoryBudget
	amount uint64
	once   sync.Once
}

// Release returns the reserved bytes to the budget and wakes any blocked
// Reserve callers.
func (p *MemoryPermit) Release() {
	p.once.Do(func() {
		p.budget.release(p.amount)
	})
}

// TryReserve attempts to reserve amount bytes without blocking, returning
// ok=false if the budget has no room.
func (b *MemoryBudget) TryReserve(amount uint64) (permit *MemoryPermit, ok bool) {
	if b.limit == 0 {
		return &MemoryPermit{budget: b, amount: amount}, true
	}
	for {
		cur := b.used.Load()
		next := cur + amount
		if next < cur || next > b.limit { // overflow or over budget
			return nil, false
		}
		if b.used.CompareAndSwap(cur, next) {
			return &MemoryPermit{budget: b, amount: amount}, true
		}
	}
}

// Reserve blocks until amount bytes are available or ctx is done. An
// amount exceeding the total limit fails immediately: no amount of
// waiting will ever satisfy it.
func (b *MemoryBudget) Reserve(ctx context.Context, amount uint64) (*MemoryPermit, error) {
	if b.limit != 0 && amount > b.limit {
		return nil, &ExecuteError{Kind: MemoryLimitExceeded, Needed: amount, Limit: b.limit}
	}

	if permit, ok := b.TryReserve(amount); ok {
		if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
			tel.Metrics.RecordMemoryReservation(true, b.used.Load())
		}
		return permit, nil
	}

	logger := telemetry.FromContext(ctx)
	logger.Warnf("memory reservation of %d bytes blocked: %d/%d already in use", amount, b.used.Load(), b.limit)
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		_ = tel.Events.PublishMemoryBlocked("", amount)
		tel.Metrics.RecordMemoryReservation(false, b.used.Load())
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		case <-stop:
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if permit, ok := b.TryReserve(amount); ok {
			logger.Debugf("memory reservation of %d bytes granted after waiting", amount)
			if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
				_ = tel.Events.PublishMemoryGranted("", amount, b.used.Load())
				tel.Metrics.RecordMemoryReservation(true, b.used.Load())
			}
			return permit, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.cond.Wait()
	}
}

func (b *MemoryBudget) release(amount uint64) {
	if b.limit == 0 {
		return
	}
	for {
		cur := b.used.Load()
		var next uint64
		if amount > cur {
			next = 0 // saturating: never underflow below zero
		} else {
			next = cur - amount
		}
		if b.used.CompareAndSwap(cur, next) {
			break
		}
	}
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
}

// InUse returns the currently reserved byte count.
func (b *MemoryBudget) InUse() uint64 {
	return b.used.Load()
}

// Limit returns the configured limit (0 meaning unbounded).
func (b *MemoryBudget) Limit() uint64 {
	return b.limit
}

// stepMultiplier heuristically weights a converter step by its id prefix:
// audio and video codecs typically expand far beyond their encoded size
// once decoded into working buffers, images less so. This is a fail-fast
// admission heuristic, not a precise accounting of actual memory use.
func stepMultiplier(stepID string) uint64 {
	switch {
	case strings.HasPrefix(stepID, "audio."):
		return 10
	case strings.HasPrefix(stepID, "image."):
		return 4
	case strings.HasPrefix(stepID, "video."):
		return 100
	default:
		return 1
	}
}

// estimateStepMemory estimates the memory a single step invocation needs,
// keyed by that step's converter id, for admission against a MemoryBudget
// at the moment the step actually runs.
func estimateStepMemory(stepID string, dataLen int) uint64 {
	return uint64(dataLen) * stepMultiplier(stepID)
}

// estimateMemory is the executor-wide admission heuristic: a single,
// conservative pre-check over an entire plan, keyed by the step id prefixes
// of every step the plan contains (audio.*, image.*, video.*), not by any
// property of the artifact flowing through it. The result is saturating:
// an overflowing multiply clamps to the max representable uint64 rather
// than wrapping.
func estimateMemory(inputLen int, plan *planner.Plan) uint64 {
	multiplier := uint64(1)
	for _, step := range plan.Steps {
		if m := stepMultiplier(step.ConverterID); m > multiplier {
			multiplier = m
		}
	}

	n := uint64(inputLen)
	product := n * multiplier
	if multiplier != 0 && product/multiplier != n {
		return ^uint64(0)
	}
	return product
}
