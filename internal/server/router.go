// Package server собирает HTTP API сервера документов: маршруты, middleware и /metrics.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/VictoriaMetrics/metrics"

	"github.com/iudanet/docsync/internal/server/handlers"
	"github.com/iudanet/docsync/internal/server/middleware"
	"github.com/iudanet/docsync/internal/server/storage"
)

// RouterConfig зависимости HTTP API
type RouterConfig struct {
	Logger *slog.Logger
	Store  storage.DocumentStore
	// JWT nil отключает проверку токенов
	JWT *handlers.JWTConfig
	// RateLimiter nil отключает ограничение частоты запросов
	RateLimiter *middleware.RateLimiter
	HealthCheck func(ctx context.Context) error
	Version     string
}

// NewRouter возвращает http.Handler со всеми маршрутами API
func NewRouter(cfg RouterConfig) http.Handler {
	documents := handlers.NewDocumentHandler(cfg.Logger, cfg.Store)
	watch := handlers.NewWatchHandler(cfg.Logger, cfg.Store)
	health := handlers.NewHealthHandler(cfg.Logger, cfg.Version, cfg.HealthCheck)

	protect := func(h http.Handler) http.Handler {
		if cfg.JWT == nil {
			return h
		}
		return middleware.AuthMiddleware(cfg.Logger, *cfg.JWT)(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", health.Health)
	mux.Handle("POST /api/v1/namespaces/{db}/{coll}/{op}", protect(http.HandlerFunc(documents.Handle)))
	mux.Handle("GET /api/v1/namespaces/{db}/{coll}/watch", protect(http.HandlerFunc(watch.Watch)))
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	var handler http.Handler = mux
	if cfg.RateLimiter != nil {
		handler = cfg.RateLimiter.Middleware(handler)
	}
	handler = middleware.RecoveryMiddleware(cfg.Logger)(handler)
	handler = middleware.LoggingWithSkip(cfg.Logger, []string{"/api/v1/health", "/metrics"})(handler)
	return handler
}
