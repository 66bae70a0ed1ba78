// Package usage builds the metered-provider consumption report.
package usage

import (
	"context"
	"time"
)

// Report is the per-period consumption snapshot for the metered provider.
type Report struct {
	Provider       string
	PeriodKey      string
	UsedCharacters int64
	Limit          int64
	Remaining      int64
	UsedPercent    float64
	WarningSent    bool
	Exhausted      bool
	ResetsAt       int64 // unix millis, start of the next calendar month UTC
}

// Service handles usage reporting.
type Service struct {
	provider string
	ledger   QuotaReader
	now      func() time.Time
}

// New creates a Service. ledger can be nil when no metered provider is
// configured.
func New(provider string, ledger QuotaReader) *Service {
	return &Service{provider: provider, ledger: ledger, now: time.Now}
}

// GetReport builds the report for the current billing period.
func (s *Service) GetReport(_ context.Context) Report {
	now := s.now().UTC()
	nextMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)

	r := Report{
		Provider:  s.provider,
		PeriodKey: now.Format("2006-01"),
		ResetsAt:  nextMonth.UnixMilli(),
	}
	if s.ledger == nil {
		return r
	}

	snap := s.ledger.Snapshot()
	r.UsedCharacters = snap.UsedCharacters
	r.WarningSent = snap.WarningSent
	if snap.PeriodKey != "" {
		r.PeriodKey = snap.PeriodKey
	}
	r.Limit = s.ledger.Limit()
	r.Remaining = s.ledger.Remaining()
	if r.Limit > 0 {
		r.UsedPercent = float64(r.UsedCharacters) / float64(r.Limit) * 100
	}
	r.Exhausted = r.Limit > 0 && r.Remaining <= 0
	return r
}
