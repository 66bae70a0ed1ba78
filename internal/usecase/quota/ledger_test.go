package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLedger_ReserveWithinBudget(t *testing.T) {
	l := NewLedger(100, zap.NewNop())

	if !l.Reserve(60) {
		t.Fatal("expected reservation of 60/100 to succeed")
	}
	if got := l.Remaining(); got != 40 {
		t.Errorf("expected remaining 40, got %d", got)
	}
}

func TestLedger_ReserveRejectsOverBudget(t *testing.T) {
	l := NewLedger(100, zap.NewNop())

	if !l.Reserve(100) {
		t.Fatal("expected reservation of the full budget to succeed")
	}
	if l.Reserve(1) {
		t.Fatal("expected reservation past the budget to fail")
	}
	if got := l.Used(); got != 100 {
		t.Errorf("failed reservation must not change usage, got %d", got)
	}
}

func TestLedger_ReserveNeverExceedsLimit(t *testing.T) {
	l := NewLedger(100, zap.NewNop())

	l.Reserve(90)
	if l.Reserve(20) {
		t.Fatal("expected reservation exceeding remaining budget to fail")
	}
	if got := l.Used(); got != 90 {
		t.Errorf("expected used 90 after rejected reserve, got %d", got)
	}
}

func TestLedger_SurchargeMayOvershootByOneCall(t *testing.T) {
	l := NewLedger(100, zap.NewNop())

	if !l.Reserve(60) {
		t.Fatal("expected reservation to succeed")
	}
	l.Surcharge(60)

	if got := l.Used(); got != 120 {
		t.Errorf("expected used 120 after surcharge, got %d", got)
	}
	if got := l.Remaining(); got != 0 {
		t.Errorf("expected remaining clamped at 0, got %d", got)
	}
}

func TestLedger_ReleaseRefunds(t *testing.T) {
	l := NewLedger(100, zap.NewNop())

	l.Reserve(80)
	l.Release(80)

	if got := l.Used(); got != 0 {
		t.Errorf("expected used 0 after release, got %d", got)
	}

	l.Release(10)
	if got := l.Used(); got != 0 {
		t.Errorf("expected release to clamp at 0, got %d", got)
	}
}

func TestLedger_WarningFiresOncePerPeriod(t *testing.T) {
	l := NewLedger(100, zap.NewNop())

	if l.CheckWarningThreshold() {
		t.Fatal("warning must not fire with a full budget")
	}

	l.Reserve(90) // remaining == limit * 0.10
	if !l.CheckWarningThreshold() {
		t.Fatal("expected warning at the 10 percent threshold")
	}
	if l.CheckWarningThreshold() {
		t.Fatal("warning must fire at most once per period")
	}
}

func TestLedger_RolloverResetsState(t *testing.T) {
	l := NewLedger(100, zap.NewNop())
	l.Reserve(95)
	l.CheckWarningThreshold()

	l.RolloverIfNeeded("1999-12")

	st := l.Snapshot()
	if st.UsedCharacters != 0 || st.WarningSent || st.PeriodKey != "1999-12" {
		t.Errorf("expected reset state after rollover, got %+v", st)
	}
}

func TestLedger_RolloverIdempotent(t *testing.T) {
	l := NewLedger(100, zap.NewNop())
	l.RolloverIfNeeded("1999-12")
	l.Surcharge(30)

	l.RolloverIfNeeded("1999-12")

	if st := l.Snapshot(); st.UsedCharacters != 30 {
		t.Errorf("same-period rollover must not reset usage, got %d", st.UsedCharacters)
	}
}

// --- Mock Store ---

type mockQuotaStore struct {
	mu      sync.Mutex
	state   State
	loadErr error
	saveErr error
	saves   int
}

func (m *mockQuotaStore) Load(_ context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.loadErr
}

func (m *mockQuotaStore) Save(_ context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state = st
	m.saves++
	return nil
}

func (m *mockQuotaStore) saved() (State, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.saves
}

func TestLedger_WithStoreLoadsState(t *testing.T) {
	store := &mockQuotaStore{state: State{
		UsedCharacters: 42,
		PeriodKey:      time.Now().UTC().Format("2006-01"),
		WarningSent:    true,
	}}

	l := NewLedger(100, zap.NewNop()).WithStore(context.Background(), store)

	if got := l.Used(); got != 42 {
		t.Errorf("expected used 42 from store, got %d", got)
	}
	if l.CheckWarningThreshold() {
		t.Error("loaded warning_sent must suppress further warnings")
	}
}

func TestLedger_WithStoreDiscardsStalePeriod(t *testing.T) {
	store := &mockQuotaStore{state: State{
		UsedCharacters: 99,
		PeriodKey:      "1999-12",
		WarningSent:    true,
	}}

	l := NewLedger(100, zap.NewNop()).WithStore(context.Background(), store)

	if got := l.Used(); got != 0 {
		t.Errorf("expected stale-period usage discarded, got %d", got)
	}
}

func TestLedger_FlushSavesState(t *testing.T) {
	store := &mockQuotaStore{}
	l := NewLedger(100, zap.NewNop()).WithStore(context.Background(), store)

	l.Reserve(25)
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	st, _ := store.saved()
	if st.UsedCharacters != 25 {
		t.Errorf("expected flushed usage 25, got %d", st.UsedCharacters)
	}
}

func TestLedger_SaveFailureNonFatal(t *testing.T) {
	store := &mockQuotaStore{saveErr: context.DeadlineExceeded}
	l := NewLedger(100, zap.NewNop()).WithStore(context.Background(), store)

	l.Reserve(10)

	// In-memory state stays authoritative regardless of save failures.
	if got := l.Used(); got != 10 {
		t.Errorf("expected used 10 despite save failure, got %d", got)
	}
}
