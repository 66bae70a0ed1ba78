// Package gasproxy implements the unmetered secondary translation provider,
// a Google Apps Script deployment proxying Google Translate.
package gasproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kotoba-cloud/lingorelay/internal/domain"
	"github.com/kotoba-cloud/lingorelay/internal/metrics"
)

const providerName = "apps_script"

// Client calls the Apps Script web app.
type Client struct {
	httpClient *http.Client
	endpoint   string
	logger     *zap.Logger
}

// Config holds the Apps Script provider settings.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// New creates an Apps Script proxy client. The deployment redirects to a
// one-time script.googleusercontent.com URL, so redirects must be followed.
func New(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   cfg.Endpoint,
		logger:     cfg.Logger,
	}
}

// Name implements domain.Translator.
func (c *Client) Name() string { return providerName }

// Translate implements domain.Translator. The script does not report the
// detected source language, so DetectedSourceLang stays empty. Script
// deployments expect lowercase target codes.
func (c *Client) Translate(ctx context.Context, text string, target domain.Language) (domain.Translation, error) {
	tgt := strings.ToLower(string(target))
	q := url.Values{
		"text":   {text},
		"target": {tgt},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return domain.Translation{}, fmt.Errorf("build proxy request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.TranslationRequestsTotal.WithLabelValues(providerName, tgt, "error").Inc()
		metrics.TranslationErrorsTotal.WithLabelValues(providerName, tgt, "transport").Inc()
		return domain.Translation{}, fmt.Errorf("proxy request: %v: %w", err, domain.ErrProviderTransport)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.TranslationRequestsTotal.WithLabelValues(providerName, tgt, "error").Inc()
		metrics.TranslationErrorsTotal.WithLabelValues(providerName, tgt, "transport").Inc()
		return domain.Translation{}, fmt.Errorf("read proxy response: %v: %w", err, domain.ErrProviderTransport)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.TranslationRequestsTotal.WithLabelValues(providerName, tgt, "error").Inc()
		metrics.TranslationErrorsTotal.WithLabelValues(providerName, tgt, "upstream").Inc()
		c.logger.Warn("Apps Script proxy error",
			zap.Int("status", resp.StatusCode),
			zap.String("target", tgt),
		)
		return domain.Translation{}, fmt.Errorf(
			"proxy API error %d: %w", resp.StatusCode, domain.ErrProviderUpstream,
		)
	}

	translated, err := parseBody(body)
	if err != nil {
		metrics.TranslationRequestsTotal.WithLabelValues(providerName, tgt, "error").Inc()
		metrics.TranslationErrorsTotal.WithLabelValues(providerName, tgt, "bad_response").Inc()
		return domain.Translation{}, err
	}

	metrics.TranslationRequestsTotal.WithLabelValues(providerName, tgt, "success").Inc()
	metrics.TranslationRequestDuration.WithLabelValues(providerName, tgt).Observe(duration.Seconds())

	return domain.Translation{Text: translated}, nil
}

// HealthCheck probes the deployment with a one-character request.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.Translate(ctx, "a", "en")
	return err
}

// parseBody accepts both shapes a script deployment returns: an object with
// a "text" field, or a bare JSON string.
func parseBody(body []byte) (string, error) {
	var obj struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(body, &obj); err == nil && obj.Text != nil {
		return *obj.Text, nil
	}
	var bare string
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}
	return "", fmt.Errorf("unexpected proxy response shape: %w", domain.ErrProviderUpstream)
}
