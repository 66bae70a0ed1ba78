// Package settings persists the relay channel configuration document.
//
// The document is shared with collaborators outside this engine (the voice
// monitor keeps its own fields in it); unknown fields survive a
// load-modify-save round trip untouched.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kotoba-cloud/lingorelay/internal/db"
)

// store is the consumer interface for the settings document (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Relay is the engine-owned slice of the settings document.
type Relay struct {
	Enabled   bool
	ChannelID string
}

// Repo implements settings persistence over the KV facade.
type Repo struct {
	store store
	key   string
}

// New creates a settings repository.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, key: keyPrefix + "settings"}
}

type relayFields struct {
	Enabled   bool   `json:"enabled"`
	ChannelID string `json:"channelId"`
}

// Load reads the relay configuration. A missing document yields a disabled
// relay.
func (r *Repo) Load(ctx context.Context) (Relay, error) {
	raw, err := r.store.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return Relay{}, nil
		}
		return Relay{}, fmt.Errorf("settings GET %s: %w", r.key, err)
	}

	var doc relayFields
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Relay{}, fmt.Errorf("settings GET %s parse: %w", r.key, err)
	}
	return Relay{Enabled: doc.Enabled, ChannelID: doc.ChannelID}, nil
}

// Save writes the relay configuration, preserving foreign fields already in
// the document.
func (r *Repo) Save(ctx context.Context, cfg Relay) error {
	doc := map[string]json.RawMessage{}
	if raw, err := r.store.Get(ctx, r.key); err == nil {
		// Best effort: a corrupt document is replaced rather than propagated.
		_ = json.Unmarshal(raw, &doc)
	}

	enabled, err := json.Marshal(cfg.Enabled)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	channelID, err := json.Marshal(cfg.ChannelID)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	doc["enabled"] = enabled
	doc["channelId"] = channelID

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal settings document: %w", err)
	}
	if err := r.store.Set(ctx, r.key, data); err != nil {
		return fmt.Errorf("settings SET %s: %w", r.key, err)
	}
	return nil
}
