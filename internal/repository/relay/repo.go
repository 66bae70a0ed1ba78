// Package relay persists the original-message to mirror mapping.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kotoba-cloud/lingorelay/internal/db"
	"github.com/kotoba-cloud/lingorelay/internal/domain"
	domrelay "github.com/kotoba-cloud/lingorelay/internal/domain/relay"
)

// store is the consumer interface for relay records (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
}

// Repo implements the orchestrator's relay record store.
type Repo struct {
	store     store
	keyPrefix string
}

// New creates a relay record repository.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, keyPrefix: keyPrefix}
}

type recordDoc struct {
	MirroredMessageID  string `json:"mirrored_message_id"`
	BroadcasterID      string `json:"broadcaster_id"`
	OriginalText       string `json:"original_text"`
	RenderedText       string `json:"rendered_text"`
	DetectedSourceLang string `json:"detected_source_language,omitempty"`
	State              string `json:"state"`
}

// Lookup returns the record for an original message id.
// Returns domain.ErrRecordNotFound when the message was never mirrored.
func (r *Repo) Lookup(ctx context.Context, originalMessageID string) (domrelay.Record, error) {
	key := r.key(originalMessageID)
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domrelay.Record{}, domain.ErrRecordNotFound
		}
		return domrelay.Record{}, fmt.Errorf("relay GET %s: %w", key, err)
	}

	var doc recordDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domrelay.Record{}, fmt.Errorf("relay GET %s parse: %w", key, err)
	}
	return domrelay.Record{
		OriginalMessageID:  originalMessageID,
		MirroredMessageID:  doc.MirroredMessageID,
		BroadcasterID:      doc.BroadcasterID,
		OriginalText:       doc.OriginalText,
		RenderedText:       doc.RenderedText,
		DetectedSourceLang: domain.Language(doc.DetectedSourceLang),
		State:              domrelay.State(doc.State),
	}, nil
}

// Upsert writes the record for an original message id.
func (r *Repo) Upsert(ctx context.Context, originalMessageID string, rec domrelay.Record) error {
	key := r.key(originalMessageID)
	data, err := json.Marshal(recordDoc{
		MirroredMessageID:  rec.MirroredMessageID,
		BroadcasterID:      rec.BroadcasterID,
		OriginalText:       rec.OriginalText,
		RenderedText:       rec.RenderedText,
		DetectedSourceLang: string(rec.DetectedSourceLang),
		State:              string(rec.State),
	})
	if err != nil {
		return fmt.Errorf("marshal relay record: %w", err)
	}
	if err := r.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("relay SET %s: %w", key, err)
	}
	return nil
}

// Remove deletes the record. Removing an absent record is not an error.
func (r *Repo) Remove(ctx context.Context, originalMessageID string) error {
	key := r.key(originalMessageID)
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("relay DEL %s: %w", key, err)
	}
	return nil
}

func (r *Repo) key(originalMessageID string) string {
	return r.keyPrefix + "relay:msg:" + originalMessageID
}
