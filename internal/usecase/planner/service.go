// Package planner decides which provider calls a message needs, in what
// order, and how many characters they bill against the monthly quota.
package planner

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kotoba-cloud/lingorelay/internal/domain"
	"github.com/kotoba-cloud/lingorelay/internal/metrics"
)

// Outcome is the planned translation result: one output per target leg.
// An empty leg means no provider produced it.
type Outcome struct {
	Home               string
	Complementary      string
	DetectedSourceLang domain.Language
	UsedPrimary        bool
}

// Service plans and executes translations for one message.
//
// The metered primary provider is tried first when configured: a single
// detection-carrying call into the home language, then a branch on the
// detected source. Legs the primary path leaves unset fall back to the
// secondary providers independently, with no quota interaction.
type Service struct {
	primary     domain.Translator // nil when unconfigured
	secondaries []domain.Translator
	ledger      Ledger
	notifier    Notifier
	home        domain.Language
	comp        domain.Language
	logger      *zap.Logger
}

// New creates a planner. primary may be nil (unconfigured); secondaries are
// tried in order for each unset leg.
func New(
	primary domain.Translator, secondaries []domain.Translator,
	ledger Ledger, home, comp domain.Language, logger *zap.Logger,
) *Service {
	return &Service{
		primary:     primary,
		secondaries: secondaries,
		ledger:      ledger,
		home:        home,
		comp:        comp,
		logger:      logger,
	}
}

// WithNotifier attaches the quota warning sink.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Plan translates text into both target legs. Returns
// domain.ErrProviderUnconfigured when no provider is configured at all, and
// domain.ErrNoTranslationProduced when every provider failed for both legs.
func (s *Service) Plan(ctx context.Context, text string) (Outcome, error) {
	if s.primary == nil && len(s.secondaries) == 0 {
		return Outcome{}, domain.ErrProviderUnconfigured
	}

	var out Outcome

	if s.primary != nil {
		s.warnIfLow(ctx)
		out = s.planPrimary(ctx, text)
		metrics.QuotaCharactersRemaining.WithLabelValues(s.primary.Name()).Set(float64(s.ledger.Remaining()))
	}

	// Per-leg fallback: one leg's primary failure never blocks the other.
	if out.Home == "" {
		out.Home = s.fallbackLeg(ctx, text, s.home)
	}
	if out.Complementary == "" {
		out.Complementary = s.fallbackLeg(ctx, text, s.comp)
	}

	if out.Home == "" && out.Complementary == "" {
		return Outcome{}, domain.ErrNoTranslationProduced
	}
	return out, nil
}

// planPrimary runs the detection call and the branch-specific billing.
func (s *Service) planPrimary(ctx context.Context, text string) Outcome {
	var out Outcome

	first, err := s.primary.Translate(ctx, text, s.home)
	if err != nil {
		s.logger.Warn("Primary detection call failed",
			zap.String("provider", s.primary.Name()),
			zap.Error(err),
		)
		return out
	}
	out.DetectedSourceLang = first.DetectedSourceLang
	cost := int64(utf8.RuneCountInString(text))

	switch first.DetectedSourceLang {
	case s.home:
		// The original text already is the home leg; only the complementary
		// leg needs a call. The round-trip cost model prices it at 2x.
		out.Home = text
		if !s.ledger.Reserve(cost) {
			s.logger.Warn("Quota exhausted, skipping complementary leg",
				zap.Int64("cost", cost), zap.Int64("remaining", s.ledger.Remaining()))
			break
		}
		res, err := s.primary.Translate(ctx, text, s.comp)
		if err != nil {
			s.ledger.Release(cost)
			s.logger.Warn("Primary complementary call failed",
				zap.String("provider", s.primary.Name()), zap.Error(err))
			break
		}
		out.Complementary = res.Text
		s.ledger.Surcharge(cost)
		s.billed(cost * 2)
		out.UsedPrimary = true

	case s.comp:
		// The detection call already produced the home leg.
		out.Complementary = text
		if !s.ledger.Reserve(cost) {
			s.logger.Warn("Quota exhausted, skipping home leg",
				zap.Int64("cost", cost), zap.Int64("remaining", s.ledger.Remaining()))
			break
		}
		out.Home = first.Text
		s.billed(cost)
		out.UsedPrimary = true

	default:
		// Foreign source: both legs come from the primary, priced at the
		// 2x estimate regardless of the true per-leg lengths.
		estimate := cost * 2
		if !s.ledger.Reserve(estimate) {
			s.logger.Warn("Quota exhausted, skipping both primary legs",
				zap.Int64("cost", estimate), zap.Int64("remaining", s.ledger.Remaining()))
			break
		}
		res, err := s.primary.Translate(ctx, text, s.comp)
		if err != nil {
			// No partial billing: the reservation is refunded and both
			// legs stay unset.
			s.ledger.Release(estimate)
			s.logger.Warn("Primary complementary call failed",
				zap.String("provider", s.primary.Name()), zap.Error(err))
			break
		}
		out.Home = first.Text
		out.Complementary = res.Text
		s.billed(estimate)
		out.UsedPrimary = true
	}

	return out
}

// fallbackLeg tries the secondary providers in order for one target language.
func (s *Service) fallbackLeg(ctx context.Context, text string, target domain.Language) string {
	for _, t := range s.secondaries {
		res, err := t.Translate(ctx, text, target)
		if err != nil {
			s.logger.Warn("Secondary translation failed",
				zap.String("provider", t.Name()),
				zap.String("target", string(target)),
				zap.Error(err),
			)
			continue
		}
		if res.Text != "" {
			return res.Text
		}
	}
	return ""
}

// warnIfLow fires the one-time quota warning without blocking the plan.
func (s *Service) warnIfLow(ctx context.Context) {
	if !s.ledger.CheckWarningThreshold() {
		return
	}
	used, limit := s.ledger.Used(), s.ledger.Limit()
	s.logger.Warn("Quota warning threshold crossed",
		zap.Int64("used", used), zap.Int64("limit", limit))
	if s.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	go func() {
		defer cancel()
		s.notifier.QuotaWarning(nctx, used, limit)
	}()
}

func (s *Service) billed(chars int64) {
	metrics.TranslationCharactersTotal.WithLabelValues(s.primary.Name()).Add(float64(chars))
}
