// Package webhook dispatches mirror messages through Discord-compatible
// channel webhooks, impersonating the original author per post.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kotoba-cloud/lingorelay/internal/domain"
	"github.com/kotoba-cloud/lingorelay/internal/usecase/relay"
)

// Broadcaster manages one webhook per channel, created on first use and
// cached for the process lifetime.
type Broadcaster struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
	hookName   string
	logger     *zap.Logger

	mu    sync.Mutex
	hooks map[string]endpoint // channelID -> webhook
}

type endpoint struct {
	ID    string
	Token string
}

// Config holds the broadcaster settings.
type Config struct {
	APIBaseURL  string
	BotToken    string
	WebhookName string
	Timeout     time.Duration
	Logger      *zap.Logger
}

// New creates a webhook broadcaster.
func New(cfg *Config) *Broadcaster {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Broadcaster{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.APIBaseURL,
		botToken:   cfg.BotToken,
		hookName:   cfg.WebhookName,
		logger:     cfg.Logger,
		hooks:      make(map[string]endpoint),
	}
}

type webhookDoc struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

type messageDoc struct {
	ID string `json:"id"`
}

// Send implements relay.Broadcaster. The post is dispatched with wait=true so
// the created message id comes back for edit tracking.
func (b *Broadcaster) Send(ctx context.Context, channelID string, post relay.Post) (relay.Delivery, error) {
	hook, err := b.ensure(ctx, channelID)
	if err != nil {
		return relay.Delivery{}, err
	}

	payload := map[string]string{"content": post.Content}
	if post.Username != "" {
		payload["username"] = post.Username
	}
	if post.AvatarURL != "" {
		payload["avatar_url"] = post.AvatarURL
	}

	var msg messageDoc
	url := fmt.Sprintf("%s/webhooks/%s/%s?wait=true", b.baseURL, hook.ID, hook.Token)
	if err := b.do(ctx, http.MethodPost, url, false, payload, &msg); err != nil {
		return relay.Delivery{}, fmt.Errorf("webhook send: %w", err)
	}
	return relay.Delivery{MessageID: msg.ID, BroadcasterID: hook.ID}, nil
}

// Edit implements relay.Broadcaster.
func (b *Broadcaster) Edit(ctx context.Context, channelID, messageID, content string) error {
	hook, err := b.ensure(ctx, channelID)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/webhooks/%s/%s/messages/%s", b.baseURL, hook.ID, hook.Token, messageID)
	if err := b.do(ctx, http.MethodPatch, url, false, map[string]string{"content": content}, nil); err != nil {
		return fmt.Errorf("webhook edit %s: %w", messageID, err)
	}
	return nil
}

// Delete implements relay.Broadcaster. A mirror already deleted out-of-band
// (404) counts as deleted.
func (b *Broadcaster) Delete(ctx context.Context, channelID, messageID string) error {
	hook, err := b.ensure(ctx, channelID)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/webhooks/%s/%s/messages/%s", b.baseURL, hook.ID, hook.Token, messageID)
	err = b.do(ctx, http.MethodDelete, url, false, nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return fmt.Errorf("webhook delete %s: %w", messageID, err)
	}
	return nil
}

// HealthCheck verifies the bot token against the identity endpoint.
func (b *Broadcaster) HealthCheck(ctx context.Context) error {
	if err := b.do(ctx, http.MethodGet, b.baseURL+"/users/@me", true, nil, nil); err != nil {
		return fmt.Errorf("identity check: %w", err)
	}
	return nil
}

// ensure returns the cached channel webhook or finds-or-creates it.
func (b *Broadcaster) ensure(ctx context.Context, channelID string) (endpoint, error) {
	b.mu.Lock()
	hook, ok := b.hooks[channelID]
	b.mu.Unlock()
	if ok {
		return hook, nil
	}

	var existing []webhookDoc
	listURL := fmt.Sprintf("%s/channels/%s/webhooks", b.baseURL, channelID)
	if err := b.do(ctx, http.MethodGet, listURL, true, nil, &existing); err != nil {
		return endpoint{}, fmt.Errorf("list webhooks for %s: %w", channelID, err)
	}
	for _, wh := range existing {
		if wh.Name == b.hookName && wh.Token != "" {
			return b.cache(channelID, wh), nil
		}
	}

	var created webhookDoc
	if err := b.do(ctx, http.MethodPost, listURL, true, map[string]string{"name": b.hookName}, &created); err != nil {
		return endpoint{}, fmt.Errorf("create webhook for %s: %w", channelID, err)
	}
	b.logger.Info("Webhook created",
		zap.String("channel_id", channelID),
		zap.String("webhook_id", created.ID),
	)
	return b.cache(channelID, created), nil
}

func (b *Broadcaster) cache(channelID string, wh webhookDoc) endpoint {
	hook := endpoint{ID: wh.ID, Token: wh.Token}
	b.mu.Lock()
	b.hooks[channelID] = hook
	b.mu.Unlock()
	return hook
}

// do runs one API round trip. Webhook-token URLs carry their own auth; bot
// endpoints need the Authorization header.
func (b *Broadcaster) do(ctx context.Context, method, url string, botAuth bool, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if botAuth {
		req.Header.Set("Authorization", "Bot "+b.botToken)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrBroadcasterUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("API status 404: %w: %w", errNotFound, domain.ErrBroadcasterUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("API status %d: %s: %w", resp.StatusCode, snippet, domain.ErrBroadcasterUnavailable)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", domain.ErrBroadcasterUnavailable)
		}
	}
	return nil
}

var errNotFound = errors.New("not found")
