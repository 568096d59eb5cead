package domain

import "time"

// Well-known keys of the app_state table. Each key is written atomically as a
// single row; no multi-key transactions are required by the engine design.
const (
	StateKillSwitch       = "kill_switch"
	StateAutoTrading      = "auto_trading"
	StateTradeUSD         = "trade_usd"
	StateTradesToday      = "trades_today"
	StateDailyRealizedPnL = "daily_realized_pnl"
	StateTotalRealizedPnL = "total_realized_pnl"
	StateLastResetDate    = "last_reset_date"
	StateLastTradeAt      = "last_trade_at"
	StateExitCooldowns    = "exit_cooldowns"
)

// BotState is a typed snapshot of the process-wide key/value state. It holds
// the cross-cutting counters and registries shared by the admission
// controller, the lifecycle manager, and the admin surface.
type BotState struct {
	KillSwitch       bool
	AutoTrading      bool
	TradeUSD         float64 // operator per-trade capital override, 0 = dynamic sizing
	TradesToday      int
	DailyRealizedPnL float64
	TotalRealizedPnL float64
	LastResetDate    string // "YYYY-MM-DD", day-scoped counters reset when it changes

	// LastTradeAt maps "strategy:symbol" to the last entry time, backing the
	// rolling per-symbol cooldown.
	LastTradeAt map[string]time.Time

	// ExitCooldowns maps a symbol to the time before which it may not be
	// re-entered after a close.
	ExitCooldowns map[string]time.Time
}

// DefaultBotState returns the state written on first boot.
func DefaultBotState() BotState {
	return BotState{
		AutoTrading:   true,
		TradeUSD:      20.0,
		LastResetDate: "",
		LastTradeAt:   map[string]time.Time{},
		ExitCooldowns: map[string]time.Time{},
	}
}
