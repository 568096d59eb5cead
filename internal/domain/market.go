package domain

import "time"

// Ticker is a 24h market snapshot for one symbol. It lives only within a
// single scan cycle and is never persisted.
type Ticker struct {
	Symbol      string    `json:"symbol"`
	Last        float64   `json:"last"`
	QuoteVolume float64   `json:"quote_volume"` // 24h quote-currency volume
	ChangePct   float64   `json:"change_pct"`   // 24h change, percent
	Timestamp   time.Time `json:"timestamp"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Balance holds per-asset free and total quantities as reported by the
// exchange.
type Balance struct {
	Free  map[string]float64
	Total map[string]float64
}

// Fill is the result of a market order. Quantity is the filled amount in the
// base asset; FeeUSD is the commission converted to quote currency.
type Fill struct {
	OrderID  string
	Price    float64
	Quantity float64
	FeeUSD   float64
}
