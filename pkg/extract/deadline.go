package extract

import (
	"context"
	"time"

	"github.com/stagelift/stagelift/pkg/task"
)

// contextDeadline reads the remaining time budget from a context deadline.
type contextDeadline struct {
	ctx context.Context
}

// DeadlineFromContext exposes the context's deadline to extractors. A
// context without a deadline reports zero remaining time, so extractors
// that honor the handle flush immediately rather than run unbounded.
func DeadlineFromContext(ctx context.Context) task.Deadline {
	return contextDeadline{ctx: ctx}
}

// RemainingMillis returns the milliseconds left until the deadline.
func (d contextDeadline) RemainingMillis() int64 {
	deadline, ok := d.ctx.Deadline()
	if !ok {
		return 0
	}
	remaining := time.Until(deadline)
	if remaining < 0 {
		return 0
	}
	return remaining.Milliseconds()
}

// FixedDeadline reports a constant remaining budget, primarily for tests.
type FixedDeadline int64

// RemainingMillis returns the fixed budget.
func (d FixedDeadline) RemainingMillis() int64 { return int64(d) }
