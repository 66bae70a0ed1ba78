// Package openai implements an LLM-backed fallback translator over the
// OpenAI-compatible chat completion API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kotoba-cloud/lingorelay/internal/domain"
	"github.com/kotoba-cloud/lingorelay/internal/metrics"
)

const providerName = "openai"

var languageNames = map[string]string{
	"JA": "Japanese",
	"EN": "English",
}

// Translator is a chat-completion translator of last resort.
type Translator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// Config holds the LLM translator settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// New creates an LLM translator.
func New(cfg *Config) *Translator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Translator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Name implements domain.Translator.
func (t *Translator) Name() string { return providerName }

// Translate implements domain.Translator via a single chat completion. The
// model does not report a detected source language.
func (t *Translator) Translate(ctx context.Context, text string, target domain.Language) (domain.Translation, error) {
	tgt := strings.ToUpper(string(target))
	name, ok := languageNames[tgt]
	if !ok {
		name = tgt
	}

	req := openai.ChatCompletionRequest{
		Model:       t.model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(
					"You are a translation engine for a chat community. "+
						"Translate the user message into %s. "+
						"Reply with the translation only, no commentary. "+
						"Keep casual tone and emoji as-is.", name,
				),
			},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	}

	start := time.Now()
	resp, err := t.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.TranslationRequestsTotal.WithLabelValues(providerName, tgt, "error").Inc()
		metrics.TranslationErrorsTotal.WithLabelValues(providerName, tgt, "api_error").Inc()
		return domain.Translation{}, fmt.Errorf("chat completion: %v: %w", err, domain.ErrProviderUpstream)
	}
	if len(resp.Choices) == 0 {
		metrics.TranslationRequestsTotal.WithLabelValues(providerName, tgt, "error").Inc()
		metrics.TranslationErrorsTotal.WithLabelValues(providerName, tgt, "empty_response").Inc()
		return domain.Translation{}, fmt.Errorf("empty completion response: %w", domain.ErrProviderUpstream)
	}

	metrics.TranslationRequestsTotal.WithLabelValues(providerName, tgt, "success").Inc()
	metrics.TranslationRequestDuration.WithLabelValues(providerName, tgt).Observe(duration.Seconds())

	return domain.Translation{
		Text: strings.TrimSpace(resp.Choices[0].Message.Content),
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (t *Translator) HealthCheck(ctx context.Context) error {
	if _, err := t.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
