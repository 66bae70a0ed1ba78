// Package deepl implements the metered primary translation provider.
package deepl

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

const providerName = "deepl"

// Client calls the DeepL v2 translate API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	usageURL   string
	apiKey     string
	logger     *zap.Logger
}

// Config holds the DeepL provider settings.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// New creates a DeepL client.
func New(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   cfg.Endpoint,
		usageURL:   strings.TrimSuffix(cfg.Endpoint, "/translate") + "/usage",
		apiKey:     cfg.APIKey,
		logger:     cfg.Logger,
	}
}

// Name implements domain.Translator.
func (c *Client) Name() string { return providerName }

type translateResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

// Translate implements domain.Translator. The response carries the detected
// source language alongside the translated text.
func (c *Client) Translate(ctx context.Context, text string, target domain.Language) (domain.Translation, error) {
	tgt := strings.ToUpper(string(target))
	form := url.Values{
		"text":        {text},
		"target_lang": {tgt},
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return domain.Translation{}, fmt.Errorf("build translate request: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.TranslationRequestsTotal.WithLabelValues(providerName, tgt, "error").Inc()
		metrics.TranslationErrorsTotal.WithLabelValues(providerName, tgt, "transport").Inc()
		return domain.Translation{}, fmt.Errorf("translate request: %v: %w", err, domain.ErrProviderTransport)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.TranslationRequestsTotal.WithLabelValues(providerName, tgt, "error").Inc()
		metrics.TranslationErrorsTotal.WithLabelValues(providerName, tgt, errorType(resp.StatusCode)).Inc()
		c.logger.Warn("DeepL API error",
			zap.Int("status", resp.StatusCode),
			zap.String("target", tgt),
			zap.ByteString("body", body),
		)
		return domain.Translation{}, fmt.Errorf(
			"translate API error %d: %s: %w", resp.StatusCode, body, domain.ErrProviderUpstream,
		)
	}

	var parsed translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.TranslationRequestsTotal.WithLabelValues(providerName, tgt, "error").Inc()
		metrics.TranslationErrorsTotal.WithLabelValues(providerName, tgt, "bad_response").Inc()
		return domain.Translation{}, fmt.Errorf("decode translate response: %v: %w", err, domain.ErrProviderUpstream)
	}
	if len(parsed.Translations) == 0 {
		metrics.TranslationRequestsTotal.WithLabelValues(providerName, tgt, "error").Inc()
		metrics.TranslationErrorsTotal.WithLabelValues(providerName, tgt, "empty_response").Inc()
		return domain.Translation{}, fmt.Errorf("empty translations array: %w", domain.ErrProviderUpstream)
	}

	metrics.TranslationRequestsTotal.WithLabelValues(providerName, tgt, "success").Inc()
	metrics.TranslationRequestDuration.WithLabelValues(providerName, tgt).Observe(duration.Seconds())

	return domain.Translation{
		Text:               parsed.Translations[0].Text,
		DetectedSourceLang: domain.Language(strings.ToUpper(parsed.Translations[0].DetectedSourceLanguage)),
	}, nil
}

// HealthCheck probes the free usage endpoint with the configured key.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.usageURL, nil)
	if err != nil {
		return fmt.Errorf("build usage request: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("usage request: %v: %w", err, domain.ErrProviderTransport)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("usage API error %d: %w", resp.StatusCode, domain.ErrProviderUpstream)
	}
	return nil
}

// errorType buckets upstream statuses for the error counter. 456 is DeepL's
// own quota-exceeded status.
func errorType(status int) string {
	switch {
	case status == 456:
		return "quota_exceeded"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "upstream_5xx"
	default:
		return "upstream_4xx"
	}
}
