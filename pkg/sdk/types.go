package lingorelay

// Author identifies the original message author for identity-preserving
// mirrors.
type Author struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Bot       bool   `json:"bot,omitempty"`
}

// MessageEvent is a message lifecycle event from the gateway.
type MessageEvent struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Author    Author `json:"author"`
	Content   string `json:"content"`
}

// EventResult reports what the engine did with an event.
type EventResult string

// Event outcomes.
const (
	ResultMirrored EventResult = "mirrored"
	ResultUpdated  EventResult = "updated"
	ResultRemoved  EventResult = "removed"
	ResultSkipped  EventResult = "skipped"
)

// RelayConfig is the relay channel configuration.
type RelayConfig struct {
	Enabled   bool   `json:"enabled"`
	ChannelID string `json:"channel_id"`
}

// UsageReport is the metered provider's consumption for the current period.
type UsageReport struct {
	Provider       string  `json:"provider"`
	Period         string  `json:"period"`
	UsedCharacters int64   `json:"used_characters"`
	Limit          int64   `json:"limit"`
	Remaining      int64   `json:"remaining"`
	UsedPercent    float64 `json:"used_percent"`
	WarningSent    bool    `json:"warning_sent"`
	Exhausted      bool    `json:"exhausted"`
	ResetsAt       int64   `json:"resets_at"`
}

// HealthReport is the aggregated service health.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
