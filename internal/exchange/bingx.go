// Package exchange implements the domain.Exchange contract: a live BingX spot
// REST client and a paper simulator that reuses live market data.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gitco/alphatrader/internal/crypto"
	"github.com/gitco/alphatrader/internal/domain"
)

const rateLimitKey = "exchange_api"

// BingXConfig holds the connection parameters for the live client.
type BingXConfig struct {
	BaseURL        string
	APIKey         string
	APISecret      string
	QuoteAsset     string
	CommissionPct  float64
	RequestTimeout time.Duration
	RateLimit      int           // max calls per RateWindow, 0 disables limiting
	RateWindow     time.Duration
}

// BingX is a REST client for the BingX spot API implementing domain.Exchange.
type BingX struct {
	cfg        BingXConfig
	auth       *crypto.HMACAuth
	httpClient *http.Client
	limiter    domain.RateLimiter // optional
	logger     *slog.Logger

	// lot sizes per symbol, lazily loaded from the symbols endpoint
	mu    sync.RWMutex
	steps map[string]float64
}

// NewBingX creates a live BingX client. The limiter may be nil, in which case
// outbound calls are not throttled.
func NewBingX(cfg BingXConfig, limiter domain.RateLimiter, logger *slog.Logger) *BingX {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = 10 * time.Second
	}
	return &BingX{
		cfg:        cfg,
		auth:       &crypto.HMACAuth{Key: cfg.APIKey, Secret: cfg.APISecret},
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    limiter,
		logger:     logger.With(slog.String("component", "exchange")),
		steps:      make(map[string]float64),
	}
}

// apiSymbol converts "SOL/USDT" to the wire format "SOL-USDT".
func apiSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "-")
}

// pairSymbol converts "SOL-USDT" back to "SOL/USDT".
func pairSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "-", "/")
}

// waitAllow blocks until the sliding-window limiter admits one more call, or
// the context is done. A nil limiter admits immediately.
func (b *BingX) waitAllow(ctx context.Context) error {
	if b.limiter == nil || b.cfg.RateLimit <= 0 {
		return nil
	}
	for {
		ok, err := b.limiter.Allow(ctx, rateLimitKey, b.cfg.RateLimit, b.cfg.RateWindow)
		if err != nil {
			// A broken limiter should not take trading down with it.
			b.logger.Warn("rate limiter unavailable, proceeding", slog.String("error", err.Error()))
			return nil
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// apiResponse is the common envelope of every BingX REST response.
type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// get performs a GET request against path. When signed is true the query is
// timestamped and signed with the account secret.
func (b *BingX) get(ctx context.Context, path string, params url.Values, signed bool, out any) error {
	return b.do(ctx, http.MethodGet, path, params, signed, out)
}

func (b *BingX) do(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	if err := b.waitAllow(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	}
	query := params.Encode()
	if signed {
		query += "&signature=" + b.auth.Sign(query)
	}

	reqURL := b.cfg.BaseURL + path
	if query != "" {
		reqURL += "?" + query
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return fmt.Errorf("exchange: build request %s: %w", path, err)
	}
	if signed {
		req.Header.Set("X-BX-APIKEY", b.auth.Key)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("exchange: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("exchange: read response %s: %w", path, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("exchange: %s: %w", path, domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("exchange: %s: http %d: %s", path, resp.StatusCode, truncate(body, 200))
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("exchange: decode %s: %w", path, err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("exchange: %s: api code %d: %s", path, envelope.Code, envelope.Msg)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("exchange: decode %s data: %w", path, err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// tickerPayload is one entry of the 24hr ticker endpoint.
type tickerPayload struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"lastPrice,string"`
	QuoteVolume        float64 `json:"quoteVolume,string"`
	PriceChangePercent float64 `json:"priceChangePercent,string"`
}

func (t tickerPayload) toDomain() domain.Ticker {
	return domain.Ticker{
		Symbol:      pairSymbol(t.Symbol),
		Last:        t.LastPrice,
		QuoteVolume: t.QuoteVolume,
		ChangePct:   t.PriceChangePercent,
		Timestamp:   time.Now().UTC(),
	}
}

// FetchTicker implements domain.Exchange.
func (b *BingX) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", apiSymbol(symbol))

	var payload []tickerPayload
	if err := b.get(ctx, "/openApi/spot/v1/ticker/24hr", params, false, &payload); err != nil {
		return domain.Ticker{}, err
	}
	if len(payload) == 0 {
		return domain.Ticker{}, fmt.Errorf("exchange: ticker %s: %w", symbol, domain.ErrNotFound)
	}
	return payload[0].toDomain(), nil
}

// FetchTickers implements domain.Exchange.
func (b *BingX) FetchTickers(ctx context.Context) (map[string]domain.Ticker, error) {
	var payload []tickerPayload
	if err := b.get(ctx, "/openApi/spot/v1/ticker/24hr", nil, false, &payload); err != nil {
		return nil, err
	}
	out := make(map[string]domain.Ticker, len(payload))
	for _, t := range payload {
		tk := t.toDomain()
		out[tk.Symbol] = tk
	}
	return out, nil
}

// balancePayload is the account balance response.
type balancePayload struct {
	Balances []struct {
		Asset  string  `json:"asset"`
		Free   float64 `json:"free,string"`
		Locked float64 `json:"locked,string"`
	} `json:"balances"`
}

// FetchBalance implements domain.Exchange.
func (b *BingX) FetchBalance(ctx context.Context) (domain.Balance, error) {
	var payload balancePayload
	if err := b.get(ctx, "/openApi/spot/v1/account/balance", nil, true, &payload); err != nil {
		return domain.Balance{}, err
	}
	bal := domain.Balance{
		Free:  make(map[string]float64, len(payload.Balances)),
		Total: make(map[string]float64, len(payload.Balances)),
	}
	for _, a := range payload.Balances {
		bal.Free[a.Asset] = a.Free
		bal.Total[a.Asset] = a.Free + a.Locked
	}
	return bal, nil
}

// FetchOHLCV implements domain.Exchange. Candles are returned oldest first.
func (b *BingX) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("symbol", apiSymbol(symbol))
	params.Set("interval", timeframe)
	params.Set("limit", strconv.Itoa(limit))

	// Kline rows arrive as [openTime, open, high, low, close, volume, ...]
	// with numbers either raw or quoted depending on endpoint version.
	var rows [][]json.Number
	if err := b.get(ctx, "/openApi/spot/v2/market/kline", params, false, &rows); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		ts, _ := row[0].Int64()
		c := domain.Candle{Timestamp: time.UnixMilli(ts).UTC()}
		c.Open, _ = row[1].Float64()
		c.High, _ = row[2].Float64()
		c.Low, _ = row[3].Float64()
		c.Close, _ = row[4].Float64()
		c.Volume, _ = row[5].Float64()
		candles = append(candles, c)
	}
	// Newest-first responses are normalized to oldest-first.
	if len(candles) > 1 && candles[0].Timestamp.After(candles[len(candles)-1].Timestamp) {
		for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
			candles[i], candles[j] = candles[j], candles[i]
		}
	}
	return candles, nil
}

// orderPayload is the order placement / lookup response.
type orderPayload struct {
	OrderID     int64   `json:"orderId"`
	Price       float64 `json:"price,string"`
	AvgPrice    float64 `json:"avgPrice,string"`
	ExecutedQty float64 `json:"executedQty,string"`
	Fee         float64 `json:"fee,string"`
}

func (o orderPayload) toFill() domain.Fill {
	price := o.AvgPrice
	if price <= 0 {
		price = o.Price
	}
	return domain.Fill{
		OrderID:  strconv.FormatInt(o.OrderID, 10),
		Price:    price,
		Quantity: o.ExecutedQty,
		FeeUSD:   math.Abs(o.Fee),
	}
}

func (b *BingX) placeMarketOrder(ctx context.Context, symbol, side string, quantity float64) (domain.Fill, error) {
	params := url.Values{}
	params.Set("symbol", apiSymbol(symbol))
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))

	var payload orderPayload
	if err := b.do(ctx, http.MethodPost, "/openApi/spot/v1/trade/order", params, true, &payload); err != nil {
		return domain.Fill{}, err
	}
	return payload.toFill(), nil
}

// CreateMarketBuyOrder implements domain.Exchange.
func (b *BingX) CreateMarketBuyOrder(ctx context.Context, symbol string, quantity float64) (domain.Fill, error) {
	return b.placeMarketOrder(ctx, symbol, "BUY", quantity)
}

// CreateMarketSellOrder implements domain.Exchange.
func (b *BingX) CreateMarketSellOrder(ctx context.Context, symbol string, quantity float64) (domain.Fill, error) {
	return b.placeMarketOrder(ctx, symbol, "SELL", quantity)
}

// FetchOrder implements domain.Exchange.
func (b *BingX) FetchOrder(ctx context.Context, orderID, symbol string) (domain.Fill, error) {
	params := url.Values{}
	params.Set("symbol", apiSymbol(symbol))
	params.Set("orderId", orderID)

	var payload orderPayload
	if err := b.get(ctx, "/openApi/spot/v1/trade/query", params, true, &payload); err != nil {
		return domain.Fill{}, err
	}
	return payload.toFill(), nil
}

// symbolPayload is one entry of the exchange symbols endpoint.
type symbolPayload struct {
	Symbols []struct {
		Symbol   string  `json:"symbol"`
		StepSize float64 `json:"stepSize"`
	} `json:"symbols"`
}

// LoadMarkets fetches per-symbol lot sizes. It is called once at startup;
// AmountToPrecision falls back to a conservative default until it succeeds.
func (b *BingX) LoadMarkets(ctx context.Context) error {
	var payload symbolPayload
	if err := b.get(ctx, "/openApi/spot/v1/common/symbols", nil, false, &payload); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range payload.Symbols {
		if s.StepSize > 0 {
			b.steps[pairSymbol(s.Symbol)] = s.StepSize
		}
	}
	return nil
}

// AmountToPrecision implements domain.Exchange. Quantities are rounded DOWN
// to the symbol's lot size so orders never exceed available balance.
func (b *BingX) AmountToPrecision(symbol string, quantity float64) float64 {
	b.mu.RLock()
	step := b.steps[symbol]
	b.mu.RUnlock()
	if step <= 0 {
		step = 1e-6
	}
	return math.Floor(quantity/step) * step
}

var _ domain.Exchange = (*BingX)(nil)
