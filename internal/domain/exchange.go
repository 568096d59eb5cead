package domain

import "context"

// Exchange is the client contract for the spot exchange. All calls are
// fallible; callers catch errors and route them through the safety monitor
// rather than letting them propagate out of a cycle.
type Exchange interface {
	// FetchTicker returns the latest snapshot for one symbol.
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)

	// FetchTickers returns snapshots for every listed symbol, keyed by symbol.
	FetchTickers(ctx context.Context) (map[string]Ticker, error)

	// FetchBalance returns per-asset free/total holdings.
	FetchBalance(ctx context.Context) (Balance, error)

	// FetchOHLCV returns up to limit most recent candles for the timeframe
	// (e.g. "1h"), oldest first.
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)

	// CreateMarketBuyOrder buys quantity of the base asset at market.
	CreateMarketBuyOrder(ctx context.Context, symbol string, quantity float64) (Fill, error)

	// CreateMarketSellOrder sells quantity of the base asset at market.
	CreateMarketSellOrder(ctx context.Context, symbol string, quantity float64) (Fill, error)

	// FetchOrder looks up a previously placed order, used as a fallback when
	// the immediate fill report is incomplete.
	FetchOrder(ctx context.Context, orderID, symbol string) (Fill, error)

	// AmountToPrecision rounds a base-asset quantity down to the exchange's
	// lot size for the symbol.
	AmountToPrecision(symbol string, quantity float64) float64
}
