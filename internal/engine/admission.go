package engine

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gitco/alphatrader/internal/config"
	"github.com/gitco/alphatrader/internal/domain"
)

// Reason explains why an admission check refused a candidate trade. Denial is
// normal control flow, not an error; every check failure maps to a distinct
// code so callers and tests can assert on cause.
type Reason string

const (
	ReasonOK             Reason = "ok"
	ReasonAPIPause       Reason = "api_pause"
	ReasonKillSwitch     Reason = "kill_switch"
	ReasonDailyLossLimit Reason = "daily_loss_limit"
	ReasonOrderTooLarge  Reason = "order_too_large"
	ReasonSymbolExposure Reason = "symbol_exposure"
	ReasonTradeLimit     Reason = "trade_limit"
	ReasonMaxPositions   Reason = "max_positions"
	ReasonSymbolHeld     Reason = "symbol_already_held"
	ReasonExitCooldown   Reason = "exit_cooldown_active"
	ReasonSymbolCooldown Reason = "symbol_cooldown"
)

// AdmissionController gates every candidate entry. CanAdmit is a pure check:
// it never mutates the registries it reads, so a denial leaves no trace and
// an approval reserves nothing. Registration of a filled trade's effect is a
// separate operation owned by the lifecycle manager.
type AdmissionController struct {
	alloc  *Allocator
	safety *SafetyMonitor
	cfg    config.RiskConfig
	logger *slog.Logger
}

// NewAdmissionController creates an AdmissionController.
func NewAdmissionController(alloc *Allocator, safety *SafetyMonitor, cfg config.RiskConfig, logger *slog.Logger) *AdmissionController {
	return &AdmissionController{
		alloc:  alloc,
		safety: safety,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "admission")),
	}
}

// CanAdmit runs the ordered admission checks against a snapshot of the
// account. It short-circuits on the first failure. The caller supplies the
// open-position list and state snapshot taken at the start of the execution
// phase; because execution is serial, the snapshot cannot go stale between
// the check and the order.
func (c *AdmissionController) CanAdmit(
	symbol string,
	proposedUSD float64,
	strategy string,
	equityUSD float64,
	open []domain.Position,
	st domain.BotState,
	now time.Time,
) (bool, Reason) {
	// 1. Circuit-breaker pause.
	if c.safety.Paused(now) {
		return false, ReasonAPIPause
	}

	// 2. Sticky kill switch.
	if st.KillSwitch {
		return false, ReasonKillSwitch
	}

	// 3. Daily realized loss floor.
	if st.DailyRealizedPnL <= -c.cfg.MaxDailyLossUSD {
		return false, ReasonDailyLossLimit
	}

	// 4. Hard per-order cap.
	if proposedUSD > c.cfg.MaxOrderUSD {
		return false, ReasonOrderTooLarge
	}

	// 5. Per-symbol committed-USD ceiling, counting what is already held.
	if c.cfg.MaxSymbolUSD > 0 {
		committed := proposedUSD
		for _, p := range open {
			if p.Symbol == symbol {
				committed += p.UsedUSD
			}
		}
		if committed > c.cfg.MaxSymbolUSD {
			return false, ReasonSymbolExposure
		}
	}

	// 6. Daily trade count.
	if st.TradesToday >= c.cfg.MaxTradesPerDay {
		return false, ReasonTradeLimit
	}

	// 7. Dynamic position cap.
	if len(open) >= c.alloc.MaxPositions(equityUSD) {
		return false, ReasonMaxPositions
	}

	// 8. No stacking: one open position per symbol, across all strategies.
	for _, p := range open {
		if p.Symbol == symbol {
			return false, ReasonSymbolHeld
		}
	}

	// 9. Post-exit cooldown.
	if until, ok := st.ExitCooldowns[symbol]; ok && now.Before(until) {
		return false, ReasonExitCooldown
	}

	// 10. Rolling per-symbol cooldown across every strategy's last trade.
	for key, at := range st.LastTradeAt {
		if tradeKeySymbol(key) != symbol {
			continue
		}
		if now.Sub(at) < c.cfg.SymbolCooldown.Duration {
			return false, ReasonSymbolCooldown
		}
	}

	return true, ReasonOK
}

// TradeKey builds the "strategy:symbol" key used in the last-trade registry.
func TradeKey(strategy, symbol string) string {
	return strategy + ":" + symbol
}

func tradeKeySymbol(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}
