package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gitco/alphatrader/internal/config"
	"github.com/gitco/alphatrader/internal/domain"
	"github.com/gitco/alphatrader/internal/metrics"
	"github.com/gitco/alphatrader/internal/notify"
)

// Event bus channels the engine publishes on. The websocket hub relays them
// to connected dashboards.
const (
	ChanPositions = "events:positions"
	ChanSignals   = "events:signals"
	ChanStats     = "events:stats"
)

// Lifecycle owns the position state machine: entry (with same-symbol
// same-strategy merge), exit-plan updates, and full or partial closure. All
// position mutation flows through here, except the reconciler's forced
// closures which go through PositionStore.CloseIfOpen directly.
type Lifecycle struct {
	exchange  domain.Exchange
	positions domain.PositionStore
	state     domain.StateStore
	audit     domain.AuditStore
	bus       domain.EventBus
	notifier  *notify.Notifier
	safety    *SafetyMonitor
	metrics   *metrics.Metrics

	cfg    config.LifecycleConfig
	risk   config.RiskConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewLifecycle creates a Lifecycle manager.
func NewLifecycle(
	exchange domain.Exchange,
	positions domain.PositionStore,
	state domain.StateStore,
	audit domain.AuditStore,
	bus domain.EventBus,
	notifier *notify.Notifier,
	safety *SafetyMonitor,
	m *metrics.Metrics,
	cfg config.LifecycleConfig,
	risk config.RiskConfig,
	logger *slog.Logger,
) *Lifecycle {
	return &Lifecycle{
		exchange:  exchange,
		positions: positions,
		state:     state,
		audit:     audit,
		bus:       bus,
		notifier:  notifier,
		safety:    safety,
		metrics:   m,
		cfg:       cfg,
		risk:      risk,
		logger:    logger.With(slog.String("component", "lifecycle")),
		now:       time.Now,
	}
}

// ExecuteBuy places a market buy for usd worth of symbol and opens (or merges
// into) the position row. Sanity failures abort before the order is placed;
// exchange failures abort without touching the store, so the next cycle can
// retry cleanly.
func (l *Lifecycle) ExecuteBuy(ctx context.Context, symbol, strategy string, usd float64, sig domain.SignalResult) (domain.Position, error) {
	if usd < l.cfg.MinOrderNotional {
		return domain.Position{}, fmt.Errorf("lifecycle: buy %s: notional %.2f below minimum %.2f: %w",
			symbol, usd, l.cfg.MinOrderNotional, domain.ErrInvalidOrder)
	}

	ticker, err := l.exchange.FetchTicker(ctx, symbol)
	l.safety.Record(err)
	if err != nil {
		l.metrics.ExchangeErrors.Inc()
		return domain.Position{}, fmt.Errorf("lifecycle: buy %s: fetch ticker: %w", symbol, err)
	}
	if ticker.Last <= 0 {
		return domain.Position{}, fmt.Errorf("lifecycle: buy %s: non-positive price %.8f: %w",
			symbol, ticker.Last, domain.ErrInvalidOrder)
	}

	// A stop at or above the market is implausible for a long. This must fail
	// before any order is placed: rejecting after the fill would leave bought
	// coins with no tracked position.
	if sig.StopLoss > 0 && sig.StopLoss >= ticker.Last {
		return domain.Position{}, fmt.Errorf("lifecycle: buy %s: stop %.6f not below price %.6f: %w",
			symbol, sig.StopLoss, ticker.Last, domain.ErrInvalidOrder)
	}

	quantity := l.exchange.AmountToPrecision(symbol, usd/ticker.Last)
	if quantity <= 0 {
		return domain.Position{}, fmt.Errorf("lifecycle: buy %s: quantity rounds to zero: %w",
			symbol, domain.ErrInvalidOrder)
	}

	fill, err := l.exchange.CreateMarketBuyOrder(ctx, symbol, quantity)
	l.safety.Record(err)
	if err != nil {
		l.metrics.ExchangeErrors.Inc()
		return domain.Position{}, fmt.Errorf("lifecycle: buy %s: place order: %w", symbol, err)
	}
	fill = l.resolveFill(ctx, fill, symbol, ticker.Last, quantity)

	stop, target := l.exitPlan(ctx, fill.Price, sig)

	now := l.now()
	cost := money(fill.Price * fill.Quantity)

	pos, err := l.upsertPosition(ctx, symbol, strategy, fill, cost, stop, target, now)
	if err != nil {
		return domain.Position{}, err
	}

	if err := l.registerTradeOpen(ctx, strategy, symbol, now); err != nil {
		l.logger.WarnContext(ctx, "trade registration failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}

	l.metrics.TradesExecuted.WithLabelValues("buy").Inc()
	l.emitPositionEvent(ctx, "position_opened", pos)
	l.logAudit(ctx, "position.opened", map[string]any{
		"id":       pos.ID,
		"symbol":   symbol,
		"strategy": strategy,
		"price":    pos.EntryPrice,
		"quantity": pos.Quantity,
		"used_usd": pos.UsedUSD,
		"stop":     pos.StopLoss,
		"target":   pos.TakeProfit,
		"trigger":  sig.Trigger,
	})
	_ = l.notifier.Notify(ctx, "position_opened", "Position opened",
		fmt.Sprintf("%s %s qty=%.6f @ %.6f ($%.2f)", strategy, symbol, pos.Quantity, fill.Price, cost))

	return pos, nil
}

// ExecuteSell closes quantity of pos at market. A remainder below the dust
// ratio or the minimum close notional widens the order to the full position,
// so dust never lingers. The store is only written after the fill succeeds.
func (l *Lifecycle) ExecuteSell(ctx context.Context, pos domain.Position, quantity float64, trigger string) (domain.Position, error) {
	if !pos.IsOpen() {
		return pos, fmt.Errorf("lifecycle: sell %s: position %s already closed", pos.Symbol, pos.ID)
	}
	if quantity <= 0 || quantity > pos.Quantity {
		quantity = pos.Quantity
	}

	// Decide full vs partial before placing the order: if what would remain
	// is dust, sell everything in one order.
	remainder := pos.Quantity - quantity
	fullClose := remainder <= 0 ||
		remainder < l.cfg.DustRatio*pos.Quantity ||
		remainder*pos.CurrentPrice < l.cfg.MinCloseNotional
	if fullClose {
		quantity = pos.Quantity
	}

	sellQty := l.exchange.AmountToPrecision(pos.Symbol, quantity)
	if sellQty <= 0 {
		sellQty = quantity
	}

	fill, err := l.exchange.CreateMarketSellOrder(ctx, pos.Symbol, sellQty)
	l.safety.Record(err)
	if err != nil {
		l.metrics.ExchangeErrors.Inc()
		return pos, fmt.Errorf("lifecycle: sell %s: place order: %w", pos.Symbol, err)
	}
	fill = l.resolveFill(ctx, fill, pos.Symbol, pos.CurrentPrice, sellQty)

	realized := money((fill.Price-pos.EntryPrice)*fill.Quantity - fill.FeeUSD)
	now := l.now()

	pos.RealizedPnL = money(pos.RealizedPnL + realized)
	pos.FeesUSD = money(pos.FeesUSD + fill.FeeUSD)

	if fullClose {
		closedAt := now
		pos.Status = domain.PositionStatusClosed
		pos.ClosedAt = &closedAt
		pos.ExitPrice = money(fill.Price)
		pos.UnrealizedPnL = 0
	} else {
		ratio := (pos.Quantity - fill.Quantity) / pos.Quantity
		pos.Quantity = money(pos.Quantity - fill.Quantity)
		pos.UsedUSD = money(pos.UsedUSD * ratio)
		pos.UnrealizedPnL = money((pos.CurrentPrice - pos.EntryPrice) * pos.Quantity)
	}

	if err := l.positions.Update(ctx, pos); err != nil {
		return pos, fmt.Errorf("lifecycle: sell %s: persist: %w", pos.Symbol, err)
	}

	l.metrics.TradesExecuted.WithLabelValues("sell").Inc()
	if fullClose {
		if err := l.registerTradeClose(ctx, pos, realized, now); err != nil {
			l.logger.WarnContext(ctx, "close registration failed",
				slog.String("symbol", pos.Symbol),
				slog.String("error", err.Error()),
			)
		}
		l.emitPositionEvent(ctx, "position_closed", pos)
		l.logAudit(ctx, "position.closed", map[string]any{
			"id":         pos.ID,
			"symbol":     pos.Symbol,
			"exit_price": pos.ExitPrice,
			"pnl":        pos.RealizedPnL,
			"trigger":    trigger,
		})
		_ = l.notifier.Notify(ctx, "position_closed", "Position closed",
			fmt.Sprintf("%s closed @ %.6f pnl=%.2f (%s)", pos.Symbol, pos.ExitPrice, pos.RealizedPnL, trigger))
	} else {
		l.logAudit(ctx, "position.reduced", map[string]any{
			"id":       pos.ID,
			"symbol":   pos.Symbol,
			"sold":     fill.Quantity,
			"remained": pos.Quantity,
			"pnl":      realized,
			"trigger":  trigger,
		})
	}

	return pos, nil
}

// CloseByID closes quantity of the position with the given id (0 = full
// close). The admin surface goes through here so manual closes share the
// automated code path.
func (l *Lifecycle) CloseByID(ctx context.Context, id string, quantity float64, trigger string) (domain.Position, error) {
	pos, err := l.positions.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("lifecycle: close %s: %w", id, err)
	}
	return l.ExecuteSell(ctx, pos, quantity, trigger)
}

// UpdateExitPlan sets a new stop and/or target on an open position. A zero
// value leaves the corresponding level unchanged; a negative value disables
// it.
func (l *Lifecycle) UpdateExitPlan(ctx context.Context, id string, stop, target float64) (domain.Position, error) {
	pos, err := l.positions.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("lifecycle: update exit plan %s: %w", id, err)
	}
	if !pos.IsOpen() {
		return pos, fmt.Errorf("lifecycle: update exit plan %s: position closed", id)
	}

	switch {
	case stop < 0:
		pos.StopLoss = 0
	case stop > 0:
		if stop >= pos.EntryPrice && stop > pos.CurrentPrice {
			return pos, fmt.Errorf("lifecycle: update exit plan %s: stop %.6f above market: %w",
				id, stop, domain.ErrInvalidOrder)
		}
		pos.StopLoss = money(stop)
	}
	switch {
	case target < 0:
		pos.TakeProfit = 0
	case target > 0:
		pos.TakeProfit = money(target)
	}

	if err := l.positions.Update(ctx, pos); err != nil {
		return pos, fmt.Errorf("lifecycle: update exit plan %s: persist: %w", id, err)
	}
	l.logAudit(ctx, "position.exit_plan_updated", map[string]any{
		"id": id, "stop": pos.StopLoss, "target": pos.TakeProfit,
	})
	return pos, nil
}

// resolveFill fills in missing price/quantity on an incomplete fill report.
// It first retries via FetchOrder, then falls back to the requested values;
// the fallback is logged for audit since the recorded economics are then
// approximate.
func (l *Lifecycle) resolveFill(ctx context.Context, fill domain.Fill, symbol string, reqPrice, reqQty float64) domain.Fill {
	if fill.Price > 0 && fill.Quantity > 0 {
		return fill
	}

	if fill.OrderID != "" {
		fetched, err := l.exchange.FetchOrder(ctx, fill.OrderID, symbol)
		if err == nil && fetched.Price > 0 && fetched.Quantity > 0 {
			fetched.OrderID = fill.OrderID
			return fetched
		}
	}

	l.logger.WarnContext(ctx, "incomplete fill, using requested values",
		slog.String("symbol", symbol),
		slog.String("order_id", fill.OrderID),
		slog.Float64("price", reqPrice),
		slog.Float64("quantity", reqQty),
	)
	if fill.Price <= 0 {
		fill.Price = reqPrice
	}
	if fill.Quantity <= 0 {
		fill.Quantity = reqQty
	}
	return fill
}

// exitPlan derives the stop/target for a fresh fill. An explicit signal stop
// wins over the percentage default. The signal stop was already validated
// against the ticker before the order; if slippage pushed the fill at or
// below it, the percentage default applies instead.
func (l *Lifecycle) exitPlan(ctx context.Context, entryPrice float64, sig domain.SignalResult) (stop, target float64) {
	switch {
	case sig.StopLoss > 0 && sig.StopLoss < entryPrice:
		stop = money(sig.StopLoss)
	default:
		if sig.StopLoss > 0 {
			l.logger.WarnContext(ctx, "fill slipped through signal stop, using percentage stop",
				slog.Float64("fill_price", entryPrice),
				slog.Float64("signal_stop", sig.StopLoss),
			)
		}
		if l.cfg.StopLossPct > 0 {
			stop = money(entryPrice * (1 - l.cfg.StopLossPct/100))
		}
	}

	switch {
	case sig.TakeProfit > 0:
		target = money(sig.TakeProfit)
	case l.cfg.TakeProfitPct > 0:
		target = money(entryPrice * (1 + l.cfg.TakeProfitPct/100))
	}
	return stop, target
}

// upsertPosition merges the fill into an existing open symbol+strategy row
// by cost-weighted average entry price, or creates a new row.
func (l *Lifecycle) upsertPosition(
	ctx context.Context,
	symbol, strategy string,
	fill domain.Fill,
	cost, stop, target float64,
	now time.Time,
) (domain.Position, error) {
	existing, err := l.positions.FindOpen(ctx, symbol, strategy)
	switch {
	case err == nil:
		total := existing.Quantity + fill.Quantity
		existing.EntryPrice = money((existing.EntryPrice*existing.Quantity + fill.Price*fill.Quantity) / total)
		existing.Quantity = money(total)
		existing.UsedUSD = money(existing.UsedUSD + cost)
		existing.FeesUSD = money(existing.FeesUSD + fill.FeeUSD)
		existing.CurrentPrice = money(fill.Price)
		if fill.Price > existing.HighestPrice {
			existing.HighestPrice = money(fill.Price)
		}
		// Merge exit plans conservatively: keep the lower stop and the higher
		// target, so averaging up never snaps the stop above where the older
		// tranche was allowed to run.
		if stop > 0 && (existing.StopLoss <= 0 || stop < existing.StopLoss) {
			existing.StopLoss = stop
		}
		if target > existing.TakeProfit {
			existing.TakeProfit = target
		}
		if err := l.positions.Update(ctx, existing); err != nil {
			return domain.Position{}, fmt.Errorf("lifecycle: merge %s: %w", symbol, err)
		}
		return existing, nil

	case errors.Is(err, domain.ErrNotFound):
		pos := domain.Position{
			ID:           uuid.New().String(),
			Symbol:       symbol,
			Strategy:     strategy,
			EntryPrice:   money(fill.Price),
			Quantity:     money(fill.Quantity),
			UsedUSD:      cost,
			FeesUSD:      money(fill.FeeUSD),
			CurrentPrice: money(fill.Price),
			HighestPrice: money(fill.Price),
			StopLoss:     stop,
			TakeProfit:   target,
			Status:       domain.PositionStatusOpen,
			OpenedAt:     now,
		}
		if err := l.positions.Create(ctx, pos); err != nil {
			return domain.Position{}, fmt.Errorf("lifecycle: create %s: %w", symbol, err)
		}
		return pos, nil

	default:
		return domain.Position{}, fmt.Errorf("lifecycle: find open %s/%s: %w", symbol, strategy, err)
	}
}

// registerTradeOpen records the fill's effect on the admission registries:
// today's trade count and the per-(strategy,symbol) last-trade timestamp.
func (l *Lifecycle) registerTradeOpen(ctx context.Context, strategy, symbol string, now time.Time) error {
	st, err := l.state.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: state snapshot: %w", err)
	}

	st.TradesToday++
	st.LastTradeAt[TradeKey(strategy, symbol)] = now

	if err := l.state.Set(ctx, domain.StateTradesToday, st.TradesToday); err != nil {
		return err
	}
	return l.state.Set(ctx, domain.StateLastTradeAt, st.LastTradeAt)
}

// registerTradeClose records a full close: post-exit cooldown, daily and
// lifetime realized P&L, and the sticky kill switch when the daily loss
// floor is breached.
func (l *Lifecycle) registerTradeClose(ctx context.Context, pos domain.Position, realized float64, now time.Time) error {
	st, err := l.state.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: state snapshot: %w", err)
	}

	st.ExitCooldowns[pos.Symbol] = now.Add(l.risk.ExitCooldown.Duration)
	st.DailyRealizedPnL = money(st.DailyRealizedPnL + realized)
	st.TotalRealizedPnL = money(st.TotalRealizedPnL + realized)

	if err := l.state.Set(ctx, domain.StateExitCooldowns, st.ExitCooldowns); err != nil {
		return err
	}
	if err := l.state.Set(ctx, domain.StateDailyRealizedPnL, st.DailyRealizedPnL); err != nil {
		return err
	}
	if err := l.state.Set(ctx, domain.StateTotalRealizedPnL, st.TotalRealizedPnL); err != nil {
		return err
	}
	l.metrics.DailyRealizedPnL.Set(st.DailyRealizedPnL)

	// Daily loss breach sets the sticky kill switch. Unlike the API pause it
	// never self-clears; an operator has to resume trading explicitly.
	if st.DailyRealizedPnL <= -l.risk.MaxDailyLossUSD && !st.KillSwitch {
		if err := l.state.Set(ctx, domain.StateKillSwitch, true); err != nil {
			return err
		}
		if err := l.state.Set(ctx, domain.StateAutoTrading, false); err != nil {
			return err
		}
		l.metrics.KillSwitch.Set(1)
		l.logger.ErrorContext(ctx, "daily loss limit breached, kill switch set",
			slog.Float64("daily_pnl", st.DailyRealizedPnL),
			slog.Float64("limit", l.risk.MaxDailyLossUSD),
		)
		l.logAudit(ctx, "kill_switch.tripped", map[string]any{
			"daily_pnl": st.DailyRealizedPnL,
			"limit":     l.risk.MaxDailyLossUSD,
		})
		_ = l.notifier.NotifyAll(ctx, "KILL SWITCH",
			fmt.Sprintf("daily pnl %.2f breached limit -%.2f, trading halted", st.DailyRealizedPnL, l.risk.MaxDailyLossUSD))
	}
	return nil
}

func (l *Lifecycle) emitPositionEvent(ctx context.Context, event string, pos domain.Position) {
	if err := l.bus.Publish(ctx, ChanPositions, map[string]any{
		"event":    event,
		"id":       pos.ID,
		"symbol":   pos.Symbol,
		"strategy": pos.Strategy,
		"status":   pos.Status,
		"pnl":      pos.RealizedPnL,
	}); err != nil {
		l.logger.WarnContext(ctx, "event publish failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Lifecycle) logAudit(ctx context.Context, event string, detail map[string]any) {
	if err := l.audit.Log(ctx, event, detail); err != nil {
		l.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
