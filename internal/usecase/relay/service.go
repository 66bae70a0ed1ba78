// Package relay orchestrates the mirror lifecycle: first render on message
// creation, edit reconciliation, and mirror teardown on deletion.
package relay

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kotoba-cloud/lingorelay/internal/domain"
	domrelay "github.com/kotoba-cloud/lingorelay/internal/domain/relay"
	"github.com/kotoba-cloud/lingorelay/internal/metrics"
	"github.com/kotoba-cloud/lingorelay/internal/repository/settings"
)

// Result reports what the orchestrator did with an event.
type Result string

// Event outcomes.
const (
	ResultMirrored Result = "mirrored"
	ResultUpdated  Result = "updated"
	ResultRemoved  Result = "removed"
	ResultSkipped  Result = "skipped"
)

// Service is the relay orchestrator. It owns every transition of the
// per-message relay state.
type Service struct {
	settings    SettingsStore
	records     RecordStore
	planner     Planner
	broadcaster Broadcaster
	homeLabel   string
	compLabel   string
	logger      *zap.Logger
}

// New creates the relay orchestrator.
func New(
	st SettingsStore, records RecordStore, pl Planner, bc Broadcaster,
	homeLabel, compLabel string, logger *zap.Logger,
) *Service {
	return &Service{
		settings:    st,
		records:     records,
		planner:     pl,
		broadcaster: bc,
		homeLabel:   homeLabel,
		compLabel:   compLabel,
		logger:      logger,
	}
}

// HandleCreate mirrors a newly created message into both target languages.
func (s *Service) HandleCreate(ctx context.Context, msg domain.Message) (Result, error) {
	cfg, skip, err := s.gate(ctx, msg)
	if err != nil || skip {
		s.event("create", ResultSkipped, err)
		return ResultSkipped, err
	}

	// Redelivered events must not produce a second mirror.
	if rec, err := s.records.Lookup(ctx, msg.ID); err == nil && !rec.State.CanMirror() {
		s.event("create", ResultSkipped, nil)
		return ResultSkipped, nil
	} else if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		s.event("create", ResultSkipped, err)
		return ResultSkipped, fmt.Errorf("lookup relay record: %w", err)
	}

	res, err := s.mirror(ctx, cfg, msg)
	s.event("create", res, err)
	return res, err
}

// HandleUpdate reconciles the mirror after the original message was edited.
// Edits to messages without a record are ignored: a message that was never
// mirrored, or whose mirror was torn down, stays that way. A message edited
// into emoji-only content has its mirror torn down.
func (s *Service) HandleUpdate(ctx context.Context, msg domain.Message) (Result, error) {
	_, skip, err := s.gate(ctx, msg)
	if err != nil || skip {
		s.event("update", ResultSkipped, err)
		return ResultSkipped, err
	}

	rec, err := s.records.Lookup(ctx, msg.ID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		s.event("update", ResultSkipped, nil)
		return ResultSkipped, nil
	}
	if err != nil {
		s.event("update", ResultSkipped, err)
		return ResultSkipped, fmt.Errorf("lookup relay record: %w", err)
	}
	if !rec.State.CanUpdate() {
		s.event("update", ResultSkipped, nil)
		return ResultSkipped, nil
	}

	text := domain.NormalizeContent(msg.Content)
	if text == rec.OriginalText {
		// Embed or attachment-only edits carry unchanged text.
		s.event("update", ResultSkipped, nil)
		return ResultSkipped, nil
	}
	if domain.Untranslatable(text) {
		res, err := s.teardown(ctx, msg.ChannelID, msg.ID, rec)
		s.event("update", res, err)
		return res, err
	}

	out, err := s.planner.Plan(ctx, text)
	if err != nil {
		s.event("update", ResultSkipped, err)
		return ResultSkipped, fmt.Errorf("plan edited translation: %w", err)
	}
	rendered := Render(out.Home, out.Complementary, s.homeLabel, s.compLabel)

	if rendered != rec.RenderedText {
		if err := s.broadcaster.Edit(ctx, msg.ChannelID, rec.MirroredMessageID, rendered); err != nil {
			s.event("update", ResultSkipped, err)
			return ResultSkipped, fmt.Errorf("edit mirror %s: %w", rec.MirroredMessageID, err)
		}
	}

	rec.OriginalText = text
	rec.RenderedText = rendered
	rec.DetectedSourceLang = out.DetectedSourceLang
	if err := s.records.Upsert(ctx, msg.ID, rec); err != nil {
		s.event("update", ResultUpdated, err)
		return ResultUpdated, fmt.Errorf("store relay record: %w", err)
	}
	s.event("update", ResultUpdated, nil)
	return ResultUpdated, nil
}

// HandleDelete tears down the mirror after the original message was deleted.
// Deleting a message that was never mirrored is a no-op.
func (s *Service) HandleDelete(ctx context.Context, channelID, messageID string) (Result, error) {
	rec, err := s.records.Lookup(ctx, messageID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		s.event("delete", ResultSkipped, nil)
		return ResultSkipped, nil
	}
	if err != nil {
		s.event("delete", ResultSkipped, err)
		return ResultSkipped, fmt.Errorf("lookup relay record: %w", err)
	}
	if !rec.State.CanRemove() {
		s.event("delete", ResultSkipped, nil)
		return ResultSkipped, nil
	}

	res, err := s.teardown(ctx, channelID, messageID, rec)
	s.event("delete", res, err)
	return res, err
}

// Status returns the current relay configuration.
func (s *Service) Status(ctx context.Context) (settings.Relay, error) {
	return s.settings.Load(ctx)
}

// Configure enables or disables the relay on a channel. Enabling requires a
// channel id; disabling keeps the stored channel for a later re-enable.
func (s *Service) Configure(ctx context.Context, enabled bool, channelID string) (settings.Relay, error) {
	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return settings.Relay{}, fmt.Errorf("load relay settings: %w", err)
	}
	if channelID != "" {
		cfg.ChannelID = channelID
	}
	if enabled && cfg.ChannelID == "" {
		return settings.Relay{}, fmt.Errorf("%w: no relay channel configured", domain.ErrRelayDisabled)
	}
	cfg.Enabled = enabled
	if err := s.settings.Save(ctx, cfg); err != nil {
		return settings.Relay{}, fmt.Errorf("save relay settings: %w", err)
	}
	s.logger.Info("Relay configuration changed",
		zap.Bool("enabled", cfg.Enabled),
		zap.String("channel_id", cfg.ChannelID),
	)
	return cfg, nil
}

// QuotaWarning posts the one-time budget warning into the relay channel.
func (s *Service) QuotaWarning(ctx context.Context, used, limit int64) {
	cfg, err := s.settings.Load(ctx)
	if err != nil || !cfg.Enabled {
		s.logger.Warn("Quota warning not deliverable", zap.Error(err))
		return
	}
	content := fmt.Sprintf(
		"⚠️ 翻訳APIの残り文字数が少なくなっています。現在 %d / %d 文字を使用済みです。",
		used, limit,
	)
	if _, err := s.broadcaster.Send(ctx, cfg.ChannelID, Post{Content: content}); err != nil {
		s.logger.Error("Quota warning dispatch failed", zap.Error(err))
	}
}

// gate applies the channel, enablement and content filters shared by create
// and update handling.
func (s *Service) gate(ctx context.Context, msg domain.Message) (settings.Relay, bool, error) {
	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return settings.Relay{}, true, fmt.Errorf("load relay settings: %w", err)
	}
	if !cfg.Enabled || msg.ChannelID != cfg.ChannelID {
		return cfg, true, nil
	}
	if msg.AuthorIsBot {
		// Mirrors arrive back as bot-authored events; relaying them loops.
		return cfg, true, nil
	}
	return cfg, false, nil
}

// mirror runs the first-render path: plan, render, dispatch, then persist.
// The record is written only after a successful dispatch so a failed send
// leaves the message untranslated and retryable.
func (s *Service) mirror(ctx context.Context, cfg settings.Relay, msg domain.Message) (Result, error) {
	text := domain.NormalizeContent(msg.Content)
	if domain.Untranslatable(text) {
		return ResultSkipped, nil
	}

	out, err := s.planner.Plan(ctx, text)
	if err != nil {
		return ResultSkipped, fmt.Errorf("plan translation: %w", err)
	}
	rendered := Render(out.Home, out.Complementary, s.homeLabel, s.compLabel)
	if rendered == "" {
		return ResultSkipped, nil
	}

	delivery, err := s.broadcaster.Send(ctx, msg.ChannelID, Post{
		Content:   rendered,
		Username:  msg.AuthorName,
		AvatarURL: msg.AuthorAvatarURL,
	})
	if err != nil {
		return ResultSkipped, fmt.Errorf("dispatch mirror: %w", err)
	}

	rec := domrelay.Mirrored(
		msg.ID, delivery.MessageID, delivery.BroadcasterID,
		text, rendered, out.DetectedSourceLang,
	)
	if err := s.records.Upsert(ctx, msg.ID, rec); err != nil {
		// The mirror is live but untracked; edits will re-mirror instead of
		// reconciling. Loud log, the dispatch itself succeeded.
		s.logger.Error("Mirror dispatched but record write failed",
			zap.String("message_id", msg.ID),
			zap.String("mirrored_message_id", delivery.MessageID),
			zap.Error(err),
		)
		return ResultMirrored, fmt.Errorf("store relay record: %w", err)
	}
	return ResultMirrored, nil
}

// teardown deletes the mirror message and its record.
func (s *Service) teardown(ctx context.Context, channelID, messageID string, rec domrelay.Record) (Result, error) {
	if err := s.broadcaster.Delete(ctx, channelID, rec.MirroredMessageID); err != nil {
		return ResultSkipped, fmt.Errorf("delete mirror %s: %w", rec.MirroredMessageID, err)
	}
	if err := s.records.Remove(ctx, messageID); err != nil {
		return ResultRemoved, fmt.Errorf("remove relay record: %w", err)
	}
	return ResultRemoved, nil
}

func (s *Service) event(event string, res Result, err error) {
	outcome := string(res)
	if err != nil {
		outcome = "error"
	}
	metrics.RelayEventsTotal.WithLabelValues(event, outcome).Inc()
}
