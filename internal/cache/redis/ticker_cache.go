package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gitco/alphatrader/internal/domain"
)

// tickerTTL bounds staleness: a ticker older than two scan cycles is useless
// and should read as missing.
const tickerTTL = 15 * time.Minute

// TickerCache implements domain.TickerCache using per-symbol Redis string
// keys holding JSON-encoded tickers. The scanner refreshes the whole set once
// per cycle; handlers and the websocket hub read individual symbols.
type TickerCache struct {
	rdb *redis.Client
}

// NewTickerCache creates a TickerCache backed by the given Client.
func NewTickerCache(c *Client) *TickerCache {
	return &TickerCache{rdb: c.Underlying()}
}

func tickerKey(symbol string) string {
	return "ticker:" + symbol
}

// SetAll writes the full ticker snapshot in one pipeline.
func (tc *TickerCache) SetAll(ctx context.Context, tickers map[string]domain.Ticker) error {
	if len(tickers) == 0 {
		return nil
	}

	pipe := tc.rdb.Pipeline()
	for symbol, t := range tickers {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("redis: encode ticker %s: %w", symbol, err)
		}
		pipe.Set(ctx, tickerKey(symbol), raw, tickerTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set tickers: %w", err)
	}
	return nil
}

// Get returns the cached ticker for a symbol, or domain.ErrNotFound when the
// key is missing or expired.
func (tc *TickerCache) Get(ctx context.Context, symbol string) (domain.Ticker, error) {
	raw, err := tc.rdb.Get(ctx, tickerKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Ticker{}, domain.ErrNotFound
		}
		return domain.Ticker{}, fmt.Errorf("redis: get ticker %s: %w", symbol, err)
	}

	var t domain.Ticker
	if err := json.Unmarshal(raw, &t); err != nil {
		return domain.Ticker{}, fmt.Errorf("redis: decode ticker %s: %w", symbol, err)
	}
	return t, nil
}

// Compile-time interface check.
var _ domain.TickerCache = (*TickerCache)(nil)
