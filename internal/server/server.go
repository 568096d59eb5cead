// Package server exposes the engine's HTTP + WebSocket API: read endpoints
// for the dashboard, operator controls, and the Prometheus scrape target.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gitco/alphatrader/internal/domain"
	"github.com/gitco/alphatrader/internal/server/handler"
	"github.com/gitco/alphatrader/internal/server/middleware"
	"github.com/gitco/alphatrader/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if both key fields are empty, authentication is disabled
	APIKeyHash  string // bcrypt hash, takes precedence over APIKey
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Stats     *handler.StatsHandler
	Positions *handler.PositionHandler
	Signals   *handler.SignalHandler
	Markets   *handler.MarketHandler
	Audit     *handler.AuditHandler
	Admin     *handler.AdminHandler

	// Metrics is the Prometheus scrape handler, served without auth.
	Metrics http.Handler
}

// Server is the headless HTTP + WebSocket API server for the trading engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limiting, logging, CORS, auth) and attaches
// the WebSocket hub. limiter may be nil to disable API rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Liveness, readiness, and metrics (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/ready", handlers.Health.ReadyCheck)
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	// Aggregate stats.
	mux.HandleFunc("GET /api/stats", handlers.Stats.GetStats)

	// Position endpoints.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListOpen)
	mux.HandleFunc("GET /api/positions/history", handlers.Positions.ListHistory)
	mux.HandleFunc("GET /api/trades", handlers.Positions.ListHistory) // dashboard alias
	mux.HandleFunc("GET /api/positions/{id}", handlers.Positions.GetPosition)
	mux.HandleFunc("POST /api/positions/{id}/close", handlers.Positions.ClosePosition)
	mux.HandleFunc("PUT /api/positions/{id}/exit-plan", handlers.Positions.UpdateExitPlan)

	// Signal and market endpoints.
	mux.HandleFunc("GET /api/signals", handlers.Signals.ListRecent)
	mux.HandleFunc("GET /api/tickers/{symbol}", handlers.Markets.GetTicker)

	// Audit log.
	mux.HandleFunc("GET /api/audit", handlers.Audit.ListEntries)

	// Operator controls.
	mux.HandleFunc("POST /api/admin/kill", handlers.Admin.Kill)
	mux.HandleFunc("POST /api/admin/resume", handlers.Admin.Resume)
	mux.HandleFunc("GET /api/admin/trade-usd", handlers.Admin.GetTradeUSD)
	mux.HandleFunc("PUT /api/admin/trade-usd", handlers.Admin.SetTradeUSD)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain. Health, readiness, and metrics stay open so
	// probes and the Prometheus scraper need no credentials.
	var h http.Handler = exemptPaths(
		middleware.Auth(cfg.APIKey, cfg.APIKeyHash)(mux),
		mux,
		"/api/health", "/api/ready", "/metrics",
	)

	if limiter != nil {
		h = middleware.RateLimit(limiter, 120, time.Minute)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// exemptPaths routes the listed paths to open, everything else to authed.
func exemptPaths(authed, open http.Handler, paths ...string) http.Handler {
	exempt := make(map[string]bool, len(paths))
	for _, p := range paths {
		exempt[p] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exempt[r.URL.Path] {
			open.ServeHTTP(w, r)
			return
		}
		authed.ServeHTTP(w, r)
	})
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
