package domain

import (
	"strings"
	"time"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position represents an open or historical spot holding managed by the bot.
// Rows are never deleted: closing a position is a status transition that
// preserves the row for audit and statistics.
type Position struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`   // exchange pair, e.g. "SOL/USDT"
	Strategy string `json:"strategy"` // signal provider that opened it

	EntryPrice    float64 `json:"entry_price"`
	Quantity      float64 `json:"quantity"`
	UsedUSD       float64 `json:"used_usd"` // capital committed at entry
	FeesUSD       float64 `json:"fees_usd"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	CurrentPrice  float64 `json:"current_price"`
	HighestPrice  float64 `json:"highest_price"` // highest mark seen since entry

	StopLoss    float64 `json:"stop_loss"`   // 0 = disabled
	TakeProfit  float64 `json:"take_profit"` // 0 = disabled
	TrailActive bool    `json:"trail_active"`
	TrailStop   float64 `json:"trail_stop"`

	Status    PositionStatus `json:"status"`
	OpenedAt  time.Time      `json:"opened_at"`
	ClosedAt  *time.Time     `json:"closed_at,omitempty"`
	ExitPrice float64        `json:"exit_price"` // 0 while open
}

// BaseAsset returns the base coin of the position's symbol ("SOL" for
// "SOL/USDT"). Symbols without a separator are returned unchanged.
func (p Position) BaseAsset() string {
	if i := strings.IndexByte(p.Symbol, '/'); i > 0 {
		return p.Symbol[:i]
	}
	return p.Symbol
}

// Notional returns the position's current market value.
func (p Position) Notional() float64 {
	return p.CurrentPrice * p.Quantity
}

// IsOpen reports whether the position is still live.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}
