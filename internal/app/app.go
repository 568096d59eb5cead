// Package app provides the top-level application lifecycle management for the
// trading bot. It wires together all dependencies (stores, caches, blob
// storage, the exchange client, the engine, and the API server) and runs them
// under a single errgroup until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gitco/alphatrader/internal/config"
	"github.com/gitco/alphatrader/internal/metrics"
	"github.com/gitco/alphatrader/internal/server"
	"github.com/gitco/alphatrader/internal/server/handler"
	"github.com/gitco/alphatrader/internal/server/ws"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the engine
// and (when enabled) the HTTP API, and blocks until the context is cancelled.
// On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	// Engine: scan, watch, reconcile, archive.
	g.Go(func() error {
		return deps.Engine.Run(ctx)
	})

	// HTTP + WebSocket API.
	if a.cfg.Server.Enabled {
		hub := ws.NewHub(deps.Bus, a.cfg.Mode, a.logger)
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("app: ws hub: %w", err)
			}
			return nil
		})

		srv := a.buildServer(deps, hub)
		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// buildServer assembles the handler set and middleware-wrapped HTTP server.
func (a *App) buildServer(deps *Dependencies, hub *ws.Hub) *server.Server {
	var metricsHandler http.Handler
	if deps.Metrics != nil {
		metricsHandler = metrics.Handler()
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": pingerFunc(deps.PostgresPing),
			"redis":    pingerFunc(deps.RedisPing),
		}, a.logger),
		Stats: handler.NewStatsHandler(
			deps.Accounting,
			deps.State,
			deps.Positions,
			a.cfg.Mode,
			deps.Registry.List(),
			a.logger,
		),
		Positions: handler.NewPositionHandler(deps.Positions, deps.Lifecycle, a.logger),
		Signals:   handler.NewSignalHandler(deps.Signals, a.logger),
		Markets:   handler.NewMarketHandler(deps.Tickers, a.logger),
		Audit:     handler.NewAuditHandler(deps.Audit, a.logger),
		Admin:     handler.NewAdminHandler(deps.State, deps.Audit, a.logger),
		Metrics:   metricsHandler,
	}

	return server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		APIKeyHash:  a.cfg.Server.APIKeyHash,
	}, handlers, hub, deps.RateLimiter, a.logger)
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// pingerFunc adapts a plain function to the handler.Pinger interface.
type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}
