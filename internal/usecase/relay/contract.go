package relay

import (
	"context"

	domrelay "github.com/kotoba-cloud/lingorelay/internal/domain/relay"
	"github.com/kotoba-cloud/lingorelay/internal/repository/settings"
	"github.com/kotoba-cloud/lingorelay/internal/usecase/planner"
)

// Planner produces the two translation legs for a piece of text.
type Planner interface {
	Plan(ctx context.Context, text string) (planner.Outcome, error)
}

// Post is the identity-preserving payload dispatched to the broadcaster.
type Post struct {
	Content   string
	Username  string
	AvatarURL string
}

// Delivery identifies a dispatched mirror message.
type Delivery struct {
	MessageID     string
	BroadcasterID string
}

// Broadcaster dispatches mirror messages into a channel under a proxy
// identity. Implementations resolve and cache the per-channel endpoint.
type Broadcaster interface {
	Send(ctx context.Context, channelID string, post Post) (Delivery, error)
	Edit(ctx context.Context, channelID, messageID, content string) error
	Delete(ctx context.Context, channelID, messageID string) error
}

// RecordStore persists the original-message to mirror mapping.
type RecordStore interface {
	Lookup(ctx context.Context, originalMessageID string) (domrelay.Record, error)
	Upsert(ctx context.Context, originalMessageID string, rec domrelay.Record) error
	Remove(ctx context.Context, originalMessageID string) error
}

// SettingsStore persists the relay channel configuration.
type SettingsStore interface {
	Load(ctx context.Context) (settings.Relay, error)
	Save(ctx context.Context, cfg settings.Relay) error
}
