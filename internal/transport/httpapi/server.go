// Package httpapi exposes the event ingestion and management API over chi.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kotoba-cloud/lingorelay/internal/domain"
	logpkg "github.com/kotoba-cloud/lingorelay/internal/logger"
	healthuc "github.com/kotoba-cloud/lingorelay/internal/usecase/health"
	relayuc "github.com/kotoba-cloud/lingorelay/internal/usecase/relay"
	usageuc "github.com/kotoba-cloud/lingorelay/internal/usecase/usage"
)

// Error codes returned to clients.
const (
	CodeBadRequest       = "bad_request"
	CodeNotFound         = "not_found"
	CodeRelayDisabled    = "relay_disabled"
	CodeProviderError    = "provider_error"
	CodeBroadcasterError = "broadcaster_error"
	CodeInternalError    = "internal_error"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server hosts the relay HTTP API.
type Server struct {
	relay         *relayuc.Service
	usage         *usageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	relay *relayuc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		relay:  relay,
		usage:  usage,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrRecordNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrRelayDisabled, http.StatusConflict, CodeRelayDisabled),
		sentinelHandler(domain.ErrNoTranslationProduced, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrProviderUpstream, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrProviderTransport, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrProviderUnconfigured, http.StatusServiceUnavailable, CodeProviderError),
		sentinelHandler(domain.ErrBroadcasterUnavailable, http.StatusBadGateway, CodeBroadcasterError),
	}
	return s
}

// Mount attaches all routes to the router.
func (s *Server) Mount(r chi.Router) {
	r.Get("/health", s.Health)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.MessageCreated)
		r.Patch("/messages/{id}", s.MessageUpdated)
		r.Delete("/messages/{id}", s.MessageDeleted)
		r.Get("/relay", s.GetRelay)
		r.Put("/relay", s.PutRelay)
		r.Get("/usage", s.GetUsage)
	})
}

type authorBody struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Bot       bool   `json:"bot"`
}

type messageEventBody struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channel_id"`
	Author    authorBody `json:"author"`
	Content   string     `json:"content"`
}

type eventResponse struct {
	Result string `json:"result"`
}

// MessageCreated handles POST /v1/messages.
func (s *Server) MessageCreated(w http.ResponseWriter, r *http.Request) {
	var req messageEventBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.ID == "" || req.ChannelID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "id and channel_id are required")
		return
	}

	res, err := s.relay.HandleCreate(r.Context(), toMessage(req))
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Result: string(res)})
}

// MessageUpdated handles PATCH /v1/messages/{id}.
func (s *Server) MessageUpdated(w http.ResponseWriter, r *http.Request) {
	var req messageEventBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req.ID = chi.URLParam(r, "id")
	if req.ChannelID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "channel_id is required")
		return
	}

	res, err := s.relay.HandleUpdate(r.Context(), toMessage(req))
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Result: string(res)})
}

// MessageDeleted handles DELETE /v1/messages/{id}. Deletion events carry no
// body, so the channel rides in the query string.
func (s *Server) MessageDeleted(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel_id")
	if channelID == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "channel_id query parameter is required")
		return
	}

	res, err := s.relay.HandleDelete(r.Context(), channelID, chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Result: string(res)})
}

type relayBody struct {
	Enabled   bool   `json:"enabled"`
	ChannelID string `json:"channel_id"`
}

// GetRelay handles GET /v1/relay.
func (s *Server) GetRelay(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.relay.Status(r.Context())
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, relayBody{Enabled: cfg.Enabled, ChannelID: cfg.ChannelID})
}

// PutRelay handles PUT /v1/relay.
func (s *Server) PutRelay(w http.ResponseWriter, r *http.Request) {
	var req relayBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	cfg, err := s.relay.Configure(r.Context(), req.Enabled, req.ChannelID)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, relayBody{Enabled: cfg.Enabled, ChannelID: cfg.ChannelID})
}

type usageBody struct {
	Provider       string  `json:"provider"`
	PeriodKey      string  `json:"period"`
	UsedCharacters int64   `json:"used_characters"`
	Limit          int64   `json:"limit"`
	Remaining      int64   `json:"remaining"`
	UsedPercent    float64 `json:"used_percent"`
	WarningSent    bool    `json:"warning_sent"`
	Exhausted      bool    `json:"exhausted"`
	ResetsAt       int64   `json:"resets_at"`
}

// GetUsage handles GET /v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	rep := s.usage.GetReport(r.Context())
	writeJSON(w, http.StatusOK, usageBody{
		Provider:       rep.Provider,
		PeriodKey:      rep.PeriodKey,
		UsedCharacters: rep.UsedCharacters,
		Limit:          rep.Limit,
		Remaining:      rep.Remaining,
		UsedPercent:    rep.UsedPercent,
		WarningSent:    rep.WarningSent,
		Exhausted:      rep.Exhausted,
		ResetsAt:       rep.ResetsAt,
	})
}

// Health handles GET /health. An unreachable store is a 503; degraded
// providers still answer 200 so orchestrators don't restart the relay over
// an upstream outage.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	rep := s.health.Check(r.Context())
	status := http.StatusOK
	if rep.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": rep.Status,
		"checks": rep.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func toMessage(req messageEventBody) domain.Message {
	return domain.Message{
		ID:              req.ID,
		ChannelID:       req.ChannelID,
		AuthorID:        req.Author.ID,
		AuthorName:      req.Author.Name,
		AuthorAvatarURL: req.Author.AvatarURL,
		AuthorIsBot:     req.Author.Bot,
		Content:         req.Content,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrRecordNotFound,
		domain.ErrRelayDisabled,
		domain.ErrNoTranslationProduced,
		domain.ErrProviderUpstream,
		domain.ErrProviderTransport,
		domain.ErrProviderUnconfigured,
		domain.ErrBroadcasterUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// handleDomainError prefers the request-scoped logger so errors carry the
// request id attached by the wide-event middleware.
func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logpkg.FromContext(ctx, s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
