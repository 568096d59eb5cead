package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/gitco/alphatrader/internal/domain"
)

// MarketData is the read-only subset of domain.Exchange that the paper
// simulator delegates to a live client for real prices.
type MarketData interface {
	FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error)
	FetchTickers(ctx context.Context) (map[string]domain.Ticker, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error)
	AmountToPrecision(symbol string, quantity float64) float64
}

// Paper simulates order execution against live market data. Fills happen at
// the last traded price with a fixed commission; balances are tracked
// in-memory, seeded with a configurable quote balance.
type Paper struct {
	market        MarketData
	quoteAsset    string
	commissionPct float64
	logger        *slog.Logger

	mu      sync.Mutex
	free    map[string]float64
	orderID int64
	orders  map[string]domain.Fill
}

// NewPaper creates a paper simulator with baseBalance of the quote asset.
func NewPaper(market MarketData, quoteAsset string, baseBalance, commissionPct float64, logger *slog.Logger) *Paper {
	return &Paper{
		market:        market,
		quoteAsset:    quoteAsset,
		commissionPct: commissionPct,
		logger:        logger.With(slog.String("component", "paper_exchange")),
		free:          map[string]float64{quoteAsset: baseBalance},
		orders:        map[string]domain.Fill{},
	}
}

// FetchTicker implements domain.Exchange by delegating to live market data.
func (p *Paper) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	return p.market.FetchTicker(ctx, symbol)
}

// FetchTickers implements domain.Exchange by delegating to live market data.
func (p *Paper) FetchTickers(ctx context.Context) (map[string]domain.Ticker, error) {
	return p.market.FetchTickers(ctx)
}

// FetchOHLCV implements domain.Exchange by delegating to live market data.
func (p *Paper) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	return p.market.FetchOHLCV(ctx, symbol, timeframe, limit)
}

// FetchBalance implements domain.Exchange with the simulated holdings.
func (p *Paper) FetchBalance(ctx context.Context) (domain.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bal := domain.Balance{
		Free:  make(map[string]float64, len(p.free)),
		Total: make(map[string]float64, len(p.free)),
	}
	for asset, qty := range p.free {
		bal.Free[asset] = qty
		bal.Total[asset] = qty
	}
	return bal, nil
}

func splitPair(symbol string) (base, quote string) {
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' {
			return symbol[:i], symbol[i+1:]
		}
	}
	return symbol, ""
}

// CreateMarketBuyOrder implements domain.Exchange with an instant simulated
// fill at the last price.
func (p *Paper) CreateMarketBuyOrder(ctx context.Context, symbol string, quantity float64) (domain.Fill, error) {
	ticker, err := p.market.FetchTicker(ctx, symbol)
	if err != nil {
		return domain.Fill{}, err
	}
	if ticker.Last <= 0 || quantity <= 0 {
		return domain.Fill{}, fmt.Errorf("paper: buy %s: %w", symbol, domain.ErrInvalidOrder)
	}

	base, _ := splitPair(symbol)
	cost := ticker.Last * quantity
	fee := cost * p.commissionPct

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.free[p.quoteAsset] < cost+fee {
		return domain.Fill{}, fmt.Errorf("paper: buy %s: insufficient %s balance", symbol, p.quoteAsset)
	}
	p.free[p.quoteAsset] -= cost + fee
	p.free[base] += quantity

	return p.recordFill(ticker.Last, quantity, fee), nil
}

// CreateMarketSellOrder implements domain.Exchange with an instant simulated
// fill at the last price.
func (p *Paper) CreateMarketSellOrder(ctx context.Context, symbol string, quantity float64) (domain.Fill, error) {
	ticker, err := p.market.FetchTicker(ctx, symbol)
	if err != nil {
		return domain.Fill{}, err
	}
	if ticker.Last <= 0 || quantity <= 0 {
		return domain.Fill{}, fmt.Errorf("paper: sell %s: %w", symbol, domain.ErrInvalidOrder)
	}

	base, _ := splitPair(symbol)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.free[base] < quantity {
		// Sell whatever is actually held, mirroring live dust handling.
		quantity = p.free[base]
	}
	if quantity <= 0 {
		return domain.Fill{}, fmt.Errorf("paper: sell %s: nothing held", symbol)
	}
	proceeds := ticker.Last * quantity
	fee := proceeds * p.commissionPct
	p.free[base] -= quantity
	p.free[p.quoteAsset] += proceeds - fee

	return p.recordFill(ticker.Last, quantity, fee), nil
}

// recordFill stores the fill for FetchOrder lookups. Caller holds p.mu.
func (p *Paper) recordFill(price, quantity, fee float64) domain.Fill {
	p.orderID++
	fill := domain.Fill{
		OrderID:  "paper-" + strconv.FormatInt(p.orderID, 10),
		Price:    price,
		Quantity: quantity,
		FeeUSD:   fee,
	}
	p.orders[fill.OrderID] = fill
	return fill
}

// FetchOrder implements domain.Exchange from the in-memory fill log.
func (p *Paper) FetchOrder(ctx context.Context, orderID, symbol string) (domain.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fill, ok := p.orders[orderID]
	if !ok {
		return domain.Fill{}, fmt.Errorf("paper: order %s: %w", orderID, domain.ErrNotFound)
	}
	return fill, nil
}

// AmountToPrecision implements domain.Exchange by delegating to market data.
func (p *Paper) AmountToPrecision(symbol string, quantity float64) float64 {
	return p.market.AmountToPrecision(symbol, quantity)
}

var _ domain.Exchange = (*Paper)(nil)
