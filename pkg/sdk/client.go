package lingorelay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client is the lingorelay SDK entry point.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a lingorelay Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.apiKey,
		httpClient: hc,
	}
}

// MessageCreated reports a newly created message.
func (c *Client) MessageCreated(ctx context.Context, ev MessageEvent) (EventResult, error) {
	return c.eventCall(ctx, http.MethodPost, "/v1/messages", ev)
}

// MessageUpdated reports an edit to a message.
func (c *Client) MessageUpdated(ctx context.Context, ev MessageEvent) (EventResult, error) {
	return c.eventCall(ctx, http.MethodPatch, "/v1/messages/"+url.PathEscape(ev.ID), ev)
}

// MessageDeleted reports a message deletion.
func (c *Client) MessageDeleted(ctx context.Context, channelID, messageID string) (EventResult, error) {
	path := fmt.Sprintf("/v1/messages/%s?channel_id=%s",
		url.PathEscape(messageID), url.QueryEscape(channelID))
	return c.eventCall(ctx, http.MethodDelete, path, nil)
}

// Relay returns the current relay configuration.
func (c *Client) Relay(ctx context.Context) (RelayConfig, error) {
	var out RelayConfig
	err := c.do(ctx, http.MethodGet, "/v1/relay", nil, &out)
	return out, err
}

// SetRelay enables or disables the relay on a channel.
func (c *Client) SetRelay(ctx context.Context, enabled bool, channelID string) (RelayConfig, error) {
	var out RelayConfig
	err := c.do(ctx, http.MethodPut, "/v1/relay",
		RelayConfig{Enabled: enabled, ChannelID: channelID}, &out)
	return out, err
}

// Usage returns the metered provider's consumption report.
func (c *Client) Usage(ctx context.Context) (UsageReport, error) {
	var out UsageReport
	err := c.do(ctx, http.MethodGet, "/v1/usage", nil, &out)
	return out, err
}

// Health returns the aggregated service health.
func (c *Client) Health(ctx context.Context) (HealthReport, error) {
	var out HealthReport
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *Client) eventCall(ctx context.Context, method, path string, payload any) (EventResult, error) {
	var out struct {
		Result EventResult `json:"result"`
	}
	if err := c.do(ctx, method, path, payload, &out); err != nil {
		return "", err
	}
	return out.Result, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("lingorelay: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("lingorelay: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lingorelay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("lingorelay: decode response: %w", err)
		}
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
	}
	return apiErr
}
