package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gitco/alphatrader/internal/config"
	"github.com/gitco/alphatrader/internal/domain"
	"github.com/gitco/alphatrader/internal/metrics"
)

// leaderLockKey is the distributed-mutex key guarding the trading account.
const leaderLockKey = "engine:leader"

// Engine supervises the periodic tasks: the watcher tick, the scan-execute
// cycle, the reconciliation cycle, the day rollover, and optional archival.
// Each loop sleeps a fixed interval after its work completes, so a slow
// network-bound cycle naturally backs off instead of compounding backlog.
type Engine struct {
	watcher    *Watcher
	scanner    *Scanner
	reconciler *Reconciler
	accounting *Accounting
	state      domain.StateStore
	audit      domain.AuditStore
	bus        domain.EventBus
	locks      domain.LockManager
	archiver   domain.Archiver
	safety     *SafetyMonitor
	metrics    *metrics.Metrics

	lifecycleCfg config.LifecycleConfig
	scannerCfg   config.ScannerConfig
	engineCfg    config.EngineConfig
	archiveEvery time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an Engine. archiver may be nil when cold storage is
// disabled; locks may be nil when single-instance operation is assumed.
func NewEngine(
	watcher *Watcher,
	scanner *Scanner,
	reconciler *Reconciler,
	accounting *Accounting,
	state domain.StateStore,
	audit domain.AuditStore,
	bus domain.EventBus,
	locks domain.LockManager,
	archiver domain.Archiver,
	safety *SafetyMonitor,
	m *metrics.Metrics,
	lifecycleCfg config.LifecycleConfig,
	scannerCfg config.ScannerConfig,
	engineCfg config.EngineConfig,
	archiveEvery time.Duration,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		watcher:      watcher,
		scanner:      scanner,
		reconciler:   reconciler,
		accounting:   accounting,
		state:        state,
		audit:        audit,
		bus:          bus,
		locks:        locks,
		archiver:     archiver,
		safety:       safety,
		metrics:      m,
		lifecycleCfg: lifecycleCfg,
		scannerCfg:   scannerCfg,
		engineCfg:    engineCfg,
		archiveEvery: archiveEvery,
		logger:       logger.With(slog.String("component", "engine")),
		now:          time.Now,
	}
}

// Run acquires the leader lock, reconciles once, then starts every periodic
// loop. It blocks until ctx is cancelled or a loop fails unrecoverably.
func (e *Engine) Run(ctx context.Context) error {
	release, err := e.acquireLeadership(ctx)
	if err != nil {
		return err
	}
	defer release()

	e.rolloverIfNeeded(ctx)

	// Repair divergence left over from the previous run before trading.
	if err := e.reconciler.Reconcile(ctx); err != nil {
		e.logger.WarnContext(ctx, "startup reconcile failed", slog.String("error", err.Error()))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.loop(ctx, "watcher", e.lifecycleCfg.WatcherInterval.Duration, e.watcher.Tick)
	})
	g.Go(func() error {
		return e.loop(ctx, "scanner", e.scannerCfg.Interval.Duration, e.scanner.Cycle)
	})
	g.Go(func() error {
		return e.loop(ctx, "reconciler", e.lifecycleCfg.ReconcileInterval.Duration, e.reconciler.Reconcile)
	})
	g.Go(func() error {
		return e.loop(ctx, "rollover", time.Minute, func(ctx context.Context) error {
			e.rolloverIfNeeded(ctx)
			return nil
		})
	})
	g.Go(func() error {
		return e.loop(ctx, "stats", 30*time.Second, e.publishStats)
	})
	if e.archiver != nil && e.archiveEvery > 0 {
		g.Go(func() error {
			return e.loop(ctx, "archiver", e.archiveEvery, e.archiveClosed)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		e.logger.Info("engine stopped cleanly")
		return nil
	}
	return err
}

// loop runs fn immediately and then again after every fixed sleep. A cycle
// error is logged and swallowed: one bad cycle never kills the task.
func (e *Engine) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	e.logger.Info("loop started",
		slog.String("loop", name),
		slog.Duration("interval", interval),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("loop stopped", slog.String("loop", name))
			return ctx.Err()
		case <-timer.C:
		}

		if err := fn(ctx); err != nil && ctx.Err() == nil {
			e.logger.WarnContext(ctx, "cycle failed",
				slog.String("loop", name),
				slog.String("error", err.Error()),
			)
		}

		timer.Reset(interval)
	}
}

// acquireLeadership takes the distributed lock and keeps it refreshed in the
// background. A second engine instance blocks here until the first exits.
func (e *Engine) acquireLeadership(ctx context.Context) (func(), error) {
	if e.locks == nil || !e.engineCfg.LeaderLock {
		return func() {}, nil
	}

	ttl := e.engineCfg.LockTTL.Duration
	var token string
	for {
		var err error
		token, err = e.locks.Acquire(ctx, leaderLockKey, ttl)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("engine: acquire leader lock: %w", err)
		}

		e.logger.Info("leader lock held by another instance, waiting")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ttl / 2):
		}
	}
	e.logger.Info("leader lock acquired")

	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-refreshCtx.Done():
				return
			case <-ticker.C:
				if err := e.locks.Refresh(refreshCtx, leaderLockKey, token, ttl); err != nil {
					e.logger.Error("leader lock refresh failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	release := func() {
		stopRefresh()
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.locks.Release(releaseCtx, leaderLockKey, token); err != nil {
			e.logger.Warn("leader lock release failed", slog.String("error", err.Error()))
		}
	}
	return release, nil
}

// rolloverIfNeeded resets the day-scoped counters once per calendar day.
func (e *Engine) rolloverIfNeeded(ctx context.Context) {
	st, err := e.state.Snapshot(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "state snapshot failed", slog.String("error", err.Error()))
		return
	}

	today := e.now().UTC().Format("2006-01-02")
	if st.LastResetDate == today {
		return
	}

	if err := e.state.Set(ctx, domain.StateTradesToday, 0); err != nil {
		e.logger.WarnContext(ctx, "rollover write failed", slog.String("error", err.Error()))
		return
	}
	if err := e.state.Set(ctx, domain.StateDailyRealizedPnL, 0.0); err != nil {
		e.logger.WarnContext(ctx, "rollover write failed", slog.String("error", err.Error()))
		return
	}
	// The rolling-cooldown registry is day-scoped too; dropping it whole also
	// keeps it from growing without bound.
	if err := e.state.Set(ctx, domain.StateLastTradeAt, map[string]time.Time{}); err != nil {
		e.logger.WarnContext(ctx, "rollover write failed", slog.String("error", err.Error()))
		return
	}
	if err := e.state.Set(ctx, domain.StateLastResetDate, today); err != nil {
		e.logger.WarnContext(ctx, "rollover write failed", slog.String("error", err.Error()))
		return
	}

	e.metrics.DailyRealizedPnL.Set(0)
	e.logger.InfoContext(ctx, "day rollover",
		slog.String("date", today),
		slog.Int("yesterday_trades", st.TradesToday),
		slog.Float64("yesterday_pnl", st.DailyRealizedPnL),
	)
	if err := e.audit.Log(ctx, "day.rollover", map[string]any{
		"date":            today,
		"yesterday_trade": st.TradesToday,
		"yesterday_pnl":   st.DailyRealizedPnL,
	}); err != nil {
		e.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
}

// publishStats refreshes the account gauges and pushes a stats event for the
// websocket hub.
func (e *Engine) publishStats(ctx context.Context) error {
	snap, open, err := e.accounting.Snapshot(ctx)
	if err != nil {
		return err
	}
	st, err := e.state.Snapshot(ctx)
	if err != nil {
		return err
	}

	var unrealized float64
	for _, p := range open {
		unrealized += p.UnrealizedPnL
	}

	e.metrics.EquityUSD.Set(snap.EquityUSD)
	e.metrics.FreeUSD.Set(snap.FreeUSD)
	e.metrics.OpenPositions.Set(float64(snap.OpenCount))
	e.metrics.DailyRealizedPnL.Set(st.DailyRealizedPnL)
	if st.KillSwitch {
		e.metrics.KillSwitch.Set(1)
	} else {
		e.metrics.KillSwitch.Set(0)
	}
	if e.safety.Paused(e.now()) {
		e.metrics.CircuitState.Set(1)
	} else {
		e.metrics.CircuitState.Set(0)
	}

	return e.bus.Publish(ctx, ChanStats, map[string]any{
		"equity_usd":     snap.EquityUSD,
		"free_usd":       snap.FreeUSD,
		"locked_usd":     snap.LockedUSD,
		"open_positions": snap.OpenCount,
		"unrealized_pnl": money(unrealized),
		"daily_pnl":      st.DailyRealizedPnL,
		"total_pnl":      st.TotalRealizedPnL,
		"trades_today":   st.TradesToday,
		"kill_switch":    st.KillSwitch,
		"auto_trading":   st.AutoTrading,
	})
}

// archiveClosed sweeps positions closed in the last archive window to cold
// storage. Source rows stay in Postgres.
func (e *Engine) archiveClosed(ctx context.Context) error {
	until := e.now().UTC()
	since := until.Add(-e.archiveEvery)

	count, err := e.archiver.ArchivePositions(ctx, since, until)
	if err != nil {
		return err
	}
	if count > 0 {
		e.logger.InfoContext(ctx, "positions archived",
			slog.Int64("count", count),
			slog.Time("since", since),
			slog.Time("until", until),
		)
	}
	return nil
}
