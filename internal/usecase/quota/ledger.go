// Package quota implements the monthly character budget for the metered
// translation provider.
package quota

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the persisted quota snapshot for one billing period.
type State struct {
	UsedCharacters int64
	PeriodKey      string
	WarningSent    bool
}

// Store is the persistence interface for quota state. Save failures are
// non-fatal; the in-memory ledger stays authoritative until the next
// successful save.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
}

// Ledger tracks cumulative character usage against a monthly budget.
// Reserve is the sole admission gate: a single synchronous check-and-increment
// under the mutex, so no other reservation can interleave inside one billing
// decision. State resets when the observed billing period differs from the
// stored one. Writes through to the store asynchronously, coalescing bursts
// into at most one save per mutation batch.
type Ledger struct {
	mu          sync.Mutex
	used        int64
	limit       int64
	periodKey   string
	warningSent bool
	savePending bool
	store       Store
	logger      *zap.Logger
}

// NewLedger creates a ledger with the given monthly character limit.
func NewLedger(limit int64, logger *zap.Logger) *Ledger {
	return &Ledger{
		limit:     limit,
		periodKey: currentPeriodKey(),
		logger:    logger,
	}
}

// WithStore attaches a persistence store and loads the saved state.
// A saved state from an earlier period is discarded by rollover.
func (l *Ledger) WithStore(ctx context.Context, store Store) *Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.store = store
	st, err := store.Load(ctx)
	if err != nil {
		l.logger.Warn("Failed to load quota state from store", zap.Error(err))
		return l
	}
	l.used = st.UsedCharacters
	l.periodKey = st.PeriodKey
	l.warningSent = st.WarningSent
	l.rolloverLocked(currentPeriodKey())

	l.logger.Info("Quota state loaded from store",
		zap.Int64("used_characters", l.used),
		zap.Int64("limit", l.limit),
		zap.String("period", l.periodKey),
		zap.Bool("warning_sent", l.warningSent),
	)
	return l
}

// Remaining returns the unconsumed part of the budget, clamped at 0.
func (l *Ledger) Remaining() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked(currentPeriodKey())
	remaining := l.limit - l.used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reserve bills cost characters iff the remaining budget covers them.
// Returns false and leaves the ledger unchanged otherwise.
func (l *Ledger) Reserve(cost int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked(currentPeriodKey())
	if l.limit-l.used < cost {
		return false
	}
	l.used += cost
	l.scheduleSaveLocked()
	return true
}

// Surcharge bills cost characters unconditionally. Used for the round-trip
// cost model, where the true price of an admitted call is higher than the
// reserved amount; the overshoot past the limit is bounded by a single
// call's cost.
func (l *Ledger) Surcharge(cost int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked(currentPeriodKey())
	l.used += cost
	l.scheduleSaveLocked()
}

// Release refunds a prior reservation whose translation call failed, so a
// failed plan bills nothing. Clamped at 0.
func (l *Ledger) Release(cost int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked(currentPeriodKey())
	l.used -= cost
	if l.used < 0 {
		l.used = 0
	}
	l.scheduleSaveLocked()
}

// CheckWarningThreshold returns true exactly once per period when at most 10%
// of the budget remains. Flips the warning flag as a side effect.
func (l *Ledger) CheckWarningThreshold() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked(currentPeriodKey())
	if l.warningSent {
		return false
	}
	remaining := l.limit - l.used
	if remaining > l.limit/10 {
		return false
	}
	l.warningSent = true
	l.scheduleSaveLocked()
	return true
}

// RolloverIfNeeded resets the ledger if the stored period differs from
// periodKey. Idempotent within the same period.
func (l *Ledger) RolloverIfNeeded(periodKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked(periodKey)
}

// Limit returns the monthly character cap.
func (l *Ledger) Limit() int64 { return l.limit }

// Used returns characters billed this period.
func (l *Ledger) Used() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked(currentPeriodKey())
	return l.used
}

// Snapshot returns the persisted-shape state as-is, without triggering a
// rollover.
func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Flush synchronously saves the current state. Called on shutdown.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	st := l.snapshotLocked()
	store := l.store
	l.mu.Unlock()

	if store == nil {
		return nil
	}
	return store.Save(ctx, st)
}

func (l *Ledger) snapshotLocked() State {
	return State{
		UsedCharacters: l.used,
		PeriodKey:      l.periodKey,
		WarningSent:    l.warningSent,
	}
}

func (l *Ledger) rolloverLocked(periodKey string) {
	if l.periodKey == periodKey {
		return
	}
	l.used = 0
	l.warningSent = false
	l.periodKey = periodKey
	l.scheduleSaveLocked()
}

// scheduleSaveLocked queues a write-behind save. Bursts of mutations between
// the schedule and the snapshot coalesce into a single save.
func (l *Ledger) scheduleSaveLocked() {
	if l.store == nil || l.savePending {
		return
	}
	l.savePending = true
	go l.flushAsync()
}

func (l *Ledger) flushAsync() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	l.mu.Lock()
	st := l.snapshotLocked()
	l.savePending = false
	store := l.store
	l.mu.Unlock()

	if err := store.Save(ctx, st); err != nil {
		l.logger.Warn("Failed to persist quota state", zap.Error(err))
	}
}

func currentPeriodKey() string {
	return time.Now().UTC().Format("2006-01")
}
