package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kotoba-cloud/lingorelay/internal/config"
	"github.com/kotoba-cloud/lingorelay/internal/db"
	dbRedis "github.com/kotoba-cloud/lingorelay/internal/db/redis"
	"github.com/kotoba-cloud/lingorelay/internal/domain"
	logpkg "github.com/kotoba-cloud/lingorelay/internal/logger"
	"github.com/kotoba-cloud/lingorelay/internal/metrics"
	quotarepo "github.com/kotoba-cloud/lingorelay/internal/repository/quota"
	relayrepo "github.com/kotoba-cloud/lingorelay/internal/repository/relay"
	settingsrepo "github.com/kotoba-cloud/lingorelay/internal/repository/settings"
	deeplTransport "github.com/kotoba-cloud/lingorelay/internal/transport/deepl"
	"github.com/kotoba-cloud/lingorelay/internal/transport/gasproxy"
	"github.com/kotoba-cloud/lingorelay/internal/transport/httpapi"
	openaiTransport "github.com/kotoba-cloud/lingorelay/internal/transport/openai"
	"github.com/kotoba-cloud/lingorelay/internal/transport/webhook"
	healthuc "github.com/kotoba-cloud/lingorelay/internal/usecase/health"
	planneruc "github.com/kotoba-cloud/lingorelay/internal/usecase/planner"
	quotauc "github.com/kotoba-cloud/lingorelay/internal/usecase/quota"
	relayuc "github.com/kotoba-cloud/lingorelay/internal/usecase/relay"
	usageuc "github.com/kotoba-cloud/lingorelay/internal/usecase/usage"
	"github.com/kotoba-cloud/lingorelay/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting lingorelay server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterTranslationMetrics()

	// Translation providers
	primary, secondaries := buildTranslators(cfg, logger)
	if primary == nil && len(secondaries) == 0 {
		logger.Fatal("No translation provider configured")
	}

	// Quota ledger for the metered primary, persisted write-behind.
	var ledger *quotauc.Ledger
	if primary != nil {
		ledger = quotauc.NewLedger(cfg.Providers.DeepL.MonthlyCharLimit, logger).
			WithStore(ctx, quotarepo.New(store, cfg.Storage.KeyPrefix))
		logger.Info("Quota ledger initialized",
			zap.Int64("monthly_char_limit", cfg.Providers.DeepL.MonthlyCharLimit),
			zap.Int64("used", ledger.Used()),
		)
	}

	// Repositories
	recordRepo := relayrepo.New(store, cfg.Storage.KeyPrefix)
	settingsRepo := settingsrepo.New(store, cfg.Storage.KeyPrefix)

	// Broadcaster
	broadcaster := webhook.New(&webhook.Config{
		APIBaseURL:  cfg.Broadcaster.APIBaseURL,
		BotToken:    cfg.Broadcaster.BotToken,
		WebhookName: cfg.Broadcaster.WebhookName,
		Timeout:     time.Duration(cfg.Broadcaster.TimeoutSec) * time.Second,
		Logger:      logger,
	})

	// Pass nil interface (not typed nil pointer!) if the primary is absent.
	var plannerLedger planneruc.Ledger
	if ledger != nil {
		plannerLedger = ledger
	}
	plannerSvc := planneruc.New(
		primary, secondaries, plannerLedger,
		domain.Language(cfg.Relay.HomeLang), domain.Language(cfg.Relay.ComplementaryLang),
		logger,
	)

	relaySvc := relayuc.New(
		settingsRepo, recordRepo, plannerSvc, broadcaster,
		cfg.Relay.HomeLabel, cfg.Relay.ComplementaryLabel, logger,
	)
	// The orchestrator posts the out-of-band quota warning.
	plannerSvc.WithNotifier(relaySvc)

	usageSvc := usageuc.New(primaryName(primary), ledgerReader(ledger))
	healthSvc := buildHealth(store, primary, secondaries, broadcaster)

	server := httpapi.NewServer(relaySvc, usageSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(httpapi.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Flush pending quota writes before the store closes.
	if ledger != nil {
		if err := ledger.Flush(shutdownCtx); err != nil {
			logger.Error("Quota ledger flush failed", zap.Error(err))
		}
	}

	logger.Info("Server stopped gracefully")
}

// buildTranslators assembles the primary and the ordered secondary chain.
func buildTranslators(cfg config.Config, logger *zap.Logger) (domain.Translator, []domain.Translator) {
	var primary domain.Translator
	if cfg.Providers.DeepL.APIKey != "" {
		primary = deeplTransport.New(&deeplTransport.Config{
			Endpoint: cfg.Providers.DeepL.BaseURL,
			APIKey:   cfg.Providers.DeepL.APIKey,
			Timeout:  time.Duration(cfg.Providers.DeepL.TimeoutSec) * time.Second,
			Logger:   logger,
		})
		logger.Info("Primary translator configured", zap.String("provider", primary.Name()))
	}

	var secondaries []domain.Translator
	if cfg.Providers.AppsScript.URL != "" {
		secondaries = append(secondaries, gasproxy.New(&gasproxy.Config{
			Endpoint: cfg.Providers.AppsScript.URL,
			Timeout:  time.Duration(cfg.Providers.AppsScript.TimeoutSec) * time.Second,
			Logger:   logger,
		}))
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		secondaries = append(secondaries, openaiTransport.New(&openaiTransport.Config{
			APIKey:  cfg.Providers.OpenAI.APIKey,
			BaseURL: cfg.Providers.OpenAI.BaseURL,
			Model:   cfg.Providers.OpenAI.Model,
			Timeout: time.Duration(cfg.Providers.OpenAI.TimeoutSec) * time.Second,
			Logger:  logger,
		}))
	}
	for _, s := range secondaries {
		logger.Info("Secondary translator configured", zap.String("provider", s.Name()))
	}
	return primary, secondaries
}

func buildHealth(
	store db.Store, primary domain.Translator, secondaries []domain.Translator,
	broadcaster *webhook.Broadcaster,
) *healthuc.Service {
	svc := healthuc.New(store)
	svc.WithCheck(checkerName(primary), asChecker(primary))
	for _, s := range secondaries {
		svc.WithCheck(checkerName(s), asChecker(s))
	}
	svc.WithCheck("broadcaster", broadcaster)
	return svc
}

func checkerName(t domain.Translator) string {
	if t == nil {
		return ""
	}
	return t.Name()
}

// asChecker returns the translator's health check when it has one.
func asChecker(t domain.Translator) healthuc.Checker {
	if hc, ok := t.(healthuc.Checker); ok {
		return hc
	}
	return nil
}

func primaryName(primary domain.Translator) string {
	if primary == nil {
		return ""
	}
	return primary.Name()
}

// ledgerReader avoids handing a typed nil pointer to the usage service.
func ledgerReader(l *quotauc.Ledger) usageuc.QuotaReader {
	if l == nil {
		return nil
	}
	return l
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
