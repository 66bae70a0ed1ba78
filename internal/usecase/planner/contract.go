package planner

import "context"

// Ledger is the character budget consulted for every metered provider call.
type Ledger interface {
	Reserve(cost int64) bool
	Surcharge(cost int64)
	Release(cost int64)
	CheckWarningThreshold() bool
	Used() int64
	Limit() int64
	Remaining() int64
}

// Notifier receives the one-time quota warning. Delivery is out-of-band and
// must not block or fail the plan.
type Notifier interface {
	QuotaWarning(ctx context.Context, used, limit int64)
}
