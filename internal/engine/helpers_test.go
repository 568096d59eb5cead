package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gitco/alphatrader/internal/config"
	"github.com/gitco/alphatrader/internal/domain"
	"github.com/gitco/alphatrader/internal/metrics"
	"github.com/gitco/alphatrader/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *metrics.Metrics {
	return metrics.NewWith(prometheus.NewRegistry())
}

func testNotifier() *notify.Notifier {
	return notify.NewNotifier(nil, nil, testLogger())
}

// fakeExchange is a canned-response exchange. Every order succeeds at the
// ticker's last price unless an error is injected.
type fakeExchange struct {
	mu      sync.Mutex
	tickers map[string]domain.Ticker
	balance domain.Balance
	candles map[string][]domain.Candle

	tickerErr  error
	balanceErr error
	buyErr     error
	sellErr    error

	// buyFillPrice overrides the fill price of buys, simulating slippage
	// against the ticker. Zero means fill at the ticker's last.
	buyFillPrice float64

	buys  []domain.Fill
	sells []domain.Fill

	feeUSD float64
}

func (f *fakeExchange) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	if f.tickerErr != nil {
		return domain.Ticker{}, f.tickerErr
	}
	return f.tickers[symbol], nil
}

func (f *fakeExchange) FetchTickers(ctx context.Context) (map[string]domain.Ticker, error) {
	if f.tickerErr != nil {
		return nil, f.tickerErr
	}
	return f.tickers, nil
}

func (f *fakeExchange) FetchBalance(ctx context.Context) (domain.Balance, error) {
	if f.balanceErr != nil {
		return domain.Balance{}, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeExchange) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	return f.candles[symbol], nil
}

func (f *fakeExchange) CreateMarketBuyOrder(ctx context.Context, symbol string, quantity float64) (domain.Fill, error) {
	if f.buyErr != nil {
		return domain.Fill{}, f.buyErr
	}
	price := f.tickers[symbol].Last
	if f.buyFillPrice > 0 {
		price = f.buyFillPrice
	}
	fill := domain.Fill{
		OrderID:  "buy-1",
		Price:    price,
		Quantity: quantity,
		FeeUSD:   f.feeUSD,
	}
	f.mu.Lock()
	f.buys = append(f.buys, fill)
	f.mu.Unlock()
	return fill, nil
}

func (f *fakeExchange) CreateMarketSellOrder(ctx context.Context, symbol string, quantity float64) (domain.Fill, error) {
	if f.sellErr != nil {
		return domain.Fill{}, f.sellErr
	}
	fill := domain.Fill{
		OrderID:  "sell-1",
		Price:    f.tickers[symbol].Last,
		Quantity: quantity,
		FeeUSD:   f.feeUSD,
	}
	f.mu.Lock()
	f.sells = append(f.sells, fill)
	f.mu.Unlock()
	return fill, nil
}

func (f *fakeExchange) FetchOrder(ctx context.Context, orderID, symbol string) (domain.Fill, error) {
	return domain.Fill{}, domain.ErrNotFound
}

func (f *fakeExchange) AmountToPrecision(symbol string, quantity float64) float64 {
	return quantity
}

// fakePositionStore is an in-memory PositionStore.
type fakePositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
}

func newFakePositionStore() *fakePositionStore {
	return &fakePositionStore{positions: make(map[string]domain.Position)}
}

func (s *fakePositionStore) Create(ctx context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pos.ID] = pos
	return nil
}

func (s *fakePositionStore) Update(ctx context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[pos.ID]; !ok {
		return domain.ErrNotFound
	}
	s.positions[pos.ID] = pos
	return nil
}

func (s *fakePositionStore) UpdateIfOpen(ctx context.Context, pos domain.Position) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.positions[pos.ID]
	if !ok || !current.IsOpen() {
		return false, nil
	}
	s.positions[pos.ID] = pos
	return true, nil
}

func (s *fakePositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (s *fakePositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakePositionStore) FindOpen(ctx context.Context, symbol, strategy string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.positions {
		if p.IsOpen() && p.Symbol == symbol && p.Strategy == strategy {
			return p, nil
		}
	}
	return domain.Position{}, domain.ErrNotFound
}

func (s *fakePositionStore) ListAll(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakePositionStore) ListClosedBetween(ctx context.Context, since, until time.Time) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.ClosedAt == nil {
			continue
		}
		if p.ClosedAt.Before(since) || !p.ClosedAt.Before(until) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *fakePositionStore) CloseIfOpen(ctx context.Context, id string, exitPrice, pnl float64, closedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[id]
	if !ok || !pos.IsOpen() {
		return false, nil
	}
	pos.Status = domain.PositionStatusClosed
	pos.ClosedAt = &closedAt
	pos.ExitPrice = exitPrice
	pos.RealizedPnL = pnl
	s.positions[id] = pos
	return true, nil
}

// fakeStateStore keeps a BotState in memory and applies Set by key.
type fakeStateStore struct {
	mu sync.Mutex
	st domain.BotState
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{st: domain.DefaultBotState()}
}

func (s *fakeStateStore) Get(ctx context.Context, key string, out any) error {
	return domain.ErrNotFound
}

func (s *fakeStateStore) Set(ctx context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case domain.StateKillSwitch:
		s.st.KillSwitch = value.(bool)
	case domain.StateAutoTrading:
		s.st.AutoTrading = value.(bool)
	case domain.StateTradeUSD:
		s.st.TradeUSD = value.(float64)
	case domain.StateTradesToday:
		s.st.TradesToday = value.(int)
	case domain.StateDailyRealizedPnL:
		s.st.DailyRealizedPnL = value.(float64)
	case domain.StateTotalRealizedPnL:
		s.st.TotalRealizedPnL = value.(float64)
	case domain.StateLastResetDate:
		s.st.LastResetDate = value.(string)
	case domain.StateLastTradeAt:
		s.st.LastTradeAt = value.(map[string]time.Time)
	case domain.StateExitCooldowns:
		s.st.ExitCooldowns = value.(map[string]time.Time)
	}
	return nil
}

func (s *fakeStateStore) Snapshot(ctx context.Context) (domain.BotState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.st
	st.LastTradeAt = make(map[string]time.Time, len(s.st.LastTradeAt))
	for k, v := range s.st.LastTradeAt {
		st.LastTradeAt[k] = v
	}
	st.ExitCooldowns = make(map[string]time.Time, len(s.st.ExitCooldowns))
	for k, v := range s.st.ExitCooldowns {
		st.ExitCooldowns[k] = v
	}
	return st, nil
}

// fakeAuditStore records event names.
type fakeAuditStore struct {
	mu     sync.Mutex
	events []string
}

func (s *fakeAuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *fakeAuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (s *fakeAuditStore) has(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e == event {
			return true
		}
	}
	return false
}

// fakeBus records published channels and drops payloads.
type fakeBus struct {
	mu        sync.Mutex
	published []string
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload any) error {
	b.mu.Lock()
	b.published = append(b.published, channel)
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) publishedTo(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.published {
		if c == channel {
			return true
		}
	}
	return false
}

func (b *fakeBus) Subscribe(ctx context.Context, channels ...string) (<-chan domain.BusMessage, func(), error) {
	ch := make(chan domain.BusMessage)
	close(ch)
	return ch, func() {}, nil
}

// testLifecycle builds a Lifecycle over the given fakes with default config.
func testLifecycle(ex *fakeExchange, store *fakePositionStore, state *fakeStateStore, audit *fakeAuditStore) *Lifecycle {
	cfg := config.Defaults()
	return NewLifecycle(
		ex, store, state, audit, &fakeBus{}, testNotifier(),
		NewSafetyMonitor(cfg.Risk.FailureThreshold, cfg.Risk.PauseDuration.Duration, testLogger()),
		testMetrics(), cfg.Lifecycle, cfg.Risk, testLogger(),
	)
}
