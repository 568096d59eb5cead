package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/gitco/alphatrader/internal/config"
	"github.com/gitco/alphatrader/internal/domain"
	"github.com/gitco/alphatrader/internal/metrics"
)

// Watcher drives the per-tick update of every open position: mark refresh,
// breakeven shift, trailing-stop ratchet, and exit trigger evaluation. One
// symbol's failure never aborts the rest of the tick.
type Watcher struct {
	exchange  domain.Exchange
	positions domain.PositionStore
	lifecycle *Lifecycle
	safety    *SafetyMonitor
	metrics   *metrics.Metrics

	cfg    config.LifecycleConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewWatcher creates a Watcher.
func NewWatcher(
	exchange domain.Exchange,
	positions domain.PositionStore,
	lifecycle *Lifecycle,
	safety *SafetyMonitor,
	m *metrics.Metrics,
	cfg config.LifecycleConfig,
	logger *slog.Logger,
) *Watcher {
	return &Watcher{
		exchange:  exchange,
		positions: positions,
		lifecycle: lifecycle,
		safety:    safety,
		metrics:   m,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "watcher")),
		now:       time.Now,
	}
}

// Tick processes every open position once.
func (w *Watcher) Tick(ctx context.Context) error {
	open, err := w.positions.ListOpen(ctx)
	if err != nil {
		return err
	}
	w.metrics.OpenPositions.Set(float64(len(open)))

	for _, pos := range open {
		if err := w.tickPosition(ctx, pos); err != nil {
			w.logger.WarnContext(ctx, "position tick failed",
				slog.String("symbol", pos.Symbol),
				slog.String("id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	w.metrics.WatcherTicks.Inc()
	return nil
}

func (w *Watcher) tickPosition(ctx context.Context, pos domain.Position) error {
	now := w.now()

	// Time exit runs before price logic: a stale position leaves regardless
	// of where the market is.
	if w.cfg.MaxHold.Duration > 0 && now.Sub(pos.OpenedAt) >= w.cfg.MaxHold.Duration {
		_, err := w.lifecycle.ExecuteSell(ctx, pos, 0, "time_exit")
		return err
	}

	ticker, err := w.exchange.FetchTicker(ctx, pos.Symbol)
	w.safety.Record(err)
	if err != nil {
		w.metrics.ExchangeErrors.Inc()
		return err
	}
	price := sanitize(ticker.Last)
	if price <= 0 {
		return nil
	}

	pos.CurrentPrice = money(price)
	pos.UnrealizedPnL = money((price - pos.EntryPrice) * pos.Quantity)
	if price > pos.HighestPrice {
		pos.HighestPrice = money(price)
	}

	pos = w.applyRatchets(pos, price)

	if trigger := w.exitTrigger(pos, price); trigger != "" {
		_, err := w.lifecycle.ExecuteSell(ctx, pos, 0, trigger)
		return err
	}

	// Persist only while the row is still open. The reconciler or an operator
	// may have closed it since ListOpen, and closed is terminal.
	ok, err := w.positions.UpdateIfOpen(ctx, pos)
	if err != nil {
		return err
	}
	if !ok {
		w.logger.DebugContext(ctx, "mark refresh skipped, position closed concurrently",
			slog.String("id", pos.ID),
			slog.String("symbol", pos.Symbol),
		)
	}
	return nil
}

// applyRatchets runs the two one-way risk reducers. The breakeven shift
// raises the stop to entry once unrealized gain clears its threshold; the
// trailing stop arms off the highest price seen and only ever moves up.
func (w *Watcher) applyRatchets(pos domain.Position, price float64) domain.Position {
	gainPct := (price - pos.EntryPrice) / pos.EntryPrice * 100

	if w.cfg.BreakevenPct > 0 && gainPct >= w.cfg.BreakevenPct && pos.StopLoss < pos.EntryPrice {
		pos.StopLoss = pos.EntryPrice
	}

	highestGainPct := (pos.HighestPrice - pos.EntryPrice) / pos.EntryPrice * 100
	if w.cfg.TrailActivatePct > 0 && highestGainPct >= w.cfg.TrailActivatePct {
		candidate := money(pos.HighestPrice * (1 - w.cfg.TrailDistancePct/100))
		if !pos.TrailActive || candidate > pos.TrailStop {
			pos.TrailStop = candidate
		}
		pos.TrailActive = true
	}
	return pos
}

// exitTrigger evaluates price triggers in priority order: stop-loss first,
// then take-profit, then the trailing stop.
func (w *Watcher) exitTrigger(pos domain.Position, price float64) string {
	if pos.StopLoss > 0 && price <= pos.StopLoss {
		return "stop_loss"
	}
	if pos.TakeProfit > 0 && price >= pos.TakeProfit {
		return "take_profit"
	}
	if pos.TrailActive && pos.TrailStop > 0 && price <= pos.TrailStop {
		return "trailing_stop"
	}
	return ""
}
