package gateway

import (
	"math"
	"sync"
	"time"
)

// Budget is the single small mutex-guarded record spec.md §9 calls for:
// "Shared mutable budgets: scoped as a single small record guarded by a
// mutex inside the gateway; experts treat it as an opaque oracle and do not
// manipulate it directly." It tracks the two process-wide allowances every
// Expert's self-audit checks (spec.md §4.4 step 6): remaining wall-clock
// time and remaining timeouts.
type Budget struct {
	mu                sync.Mutex
	remainingTime     time.Duration
	remainingTimeouts int
}

// NewBudget creates a Budget with the given total allowances. A zero or
// negative totalTime means wall-clock time is not budgeted, and a zero or
// negative totalTimeouts means timeouts are not budgeted.
func NewBudget(totalTime time.Duration, totalTimeouts int) *Budget {
	if totalTime <= 0 {
		totalTime = time.Duration(math.MaxInt64)
	}
	if totalTimeouts <= 0 {
		totalTimeouts = math.MaxInt32
	}
	return &Budget{remainingTime: totalTime, remainingTimeouts: totalTimeouts}
}

// Remaining returns the current remaining time and timeout allowances.
// Reads are intentionally racy per spec.md §5 ("reads are allowed racy
// because the gateway also fails-fast on exhaustion") but still taken under
// the mutex so the pair is internally consistent.
func (b *Budget) Remaining() (time.Duration, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remainingTime, b.remainingTimeouts
}

// Exhausted reports whether either allowance has hit zero.
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remainingTime <= 0 || b.remainingTimeouts <= 0
}

// Consume decrements the budget for one completed call: elapsed wall-clock
// time always, and one timeout slot when timedOut is true. Never goes
// negative; once a resource reaches zero, subsequent calls observe it as
// exhausted.
func (b *Budget) Consume(elapsed time.Duration, timedOut bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remainingTime -= elapsed
	if b.remainingTime < 0 {
		b.remainingTime = 0
	}
	if timedOut {
		b.remainingTimeouts--
		if b.remainingTimeouts < 0 {
			b.remainingTimeouts = 0
		}
	}
}
