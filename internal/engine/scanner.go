package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gitco/alphatrader/internal/config"
	"github.com/gitco/alphatrader/internal/domain"
	"github.com/gitco/alphatrader/internal/metrics"
	"github.com/gitco/alphatrader/internal/strategy"
)

// candidate is an ephemeral scan-cycle entry: a symbol plus its latest
// snapshot, discarded when the cycle ends.
type candidate struct {
	symbol string
	ticker domain.Ticker
}

// evaluation pairs a candidate with one provider's verdict.
type evaluation struct {
	symbol   string
	strategy string
	price    float64
	result   domain.SignalResult
}

// Scanner runs the scan-execute cycle: snapshot the market, filter and rank
// candidates, evaluate signals with bounded parallelism, then execute the
// positive ones strictly serially so concurrent entries can never both pass
// an admission check that only holds for one open slot.
type Scanner struct {
	exchange   domain.Exchange
	tickers    domain.TickerCache
	bus        domain.EventBus
	state      domain.StateStore
	registry   *strategy.Registry
	admission  *AdmissionController
	alloc      *Allocator
	lifecycle  *Lifecycle
	accounting *Accounting
	signals    *SignalLog
	safety     *SafetyMonitor
	metrics    *metrics.Metrics

	cfg        config.ScannerConfig
	quoteAsset string
	logger     *slog.Logger
	now        func() time.Time
}

// NewScanner creates a Scanner.
func NewScanner(
	exchange domain.Exchange,
	tickers domain.TickerCache,
	bus domain.EventBus,
	state domain.StateStore,
	registry *strategy.Registry,
	admission *AdmissionController,
	alloc *Allocator,
	lifecycle *Lifecycle,
	accounting *Accounting,
	signals *SignalLog,
	safety *SafetyMonitor,
	m *metrics.Metrics,
	cfg config.ScannerConfig,
	quoteAsset string,
	logger *slog.Logger,
) *Scanner {
	return &Scanner{
		exchange:   exchange,
		tickers:    tickers,
		bus:        bus,
		state:      state,
		registry:   registry,
		admission:  admission,
		alloc:      alloc,
		lifecycle:  lifecycle,
		accounting: accounting,
		signals:    signals,
		safety:     safety,
		metrics:    m,
		cfg:        cfg,
		quoteAsset: quoteAsset,
		logger:     logger.With(slog.String("component", "scanner")),
		now:        time.Now,
	}
}

// Cycle runs one full scan-execute pass.
func (s *Scanner) Cycle(ctx context.Context) error {
	started := s.now()
	defer func() {
		s.metrics.ScanCycles.Inc()
		s.metrics.ScanDuration.Observe(s.now().Sub(started).Seconds())
	}()

	all, err := s.exchange.FetchTickers(ctx)
	s.safety.Record(err)
	if err != nil {
		s.metrics.ExchangeErrors.Inc()
		return err
	}
	if err := s.tickers.SetAll(ctx, all); err != nil {
		s.logger.WarnContext(ctx, "ticker cache refresh failed", slog.String("error", err.Error()))
	}

	halted, err := s.volatilityHalted(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "volatility check failed", slog.String("error", err.Error()))
	}
	if halted {
		s.logger.InfoContext(ctx, "cycle skipped, benchmark volatility circuit open")
		return nil
	}

	st, err := s.state.Snapshot(ctx)
	if err != nil {
		return err
	}
	if st.KillSwitch || !st.AutoTrading {
		s.logger.DebugContext(ctx, "cycle skipped, trading disabled",
			slog.Bool("kill_switch", st.KillSwitch),
			slog.Bool("auto_trading", st.AutoTrading),
		)
		return nil
	}

	candidates := s.filterCandidates(all)
	if len(candidates) == 0 {
		return nil
	}

	evals := s.evaluate(ctx, candidates)
	s.execute(ctx, evals)
	return nil
}

// volatilityHalted opens the global circuit when the benchmark's recent
// high/low range exceeds the configured ceiling. A whipsawing market makes
// breakout entries unreliable across the board.
func (s *Scanner) volatilityHalted(ctx context.Context) (bool, error) {
	if s.cfg.VolatilityMaxRangePct <= 0 {
		return false, nil
	}

	candles, err := s.exchange.FetchOHLCV(ctx, s.cfg.Benchmark, s.cfg.Timeframe, 24)
	s.safety.Record(err)
	if err != nil {
		s.metrics.ExchangeErrors.Inc()
		return false, err
	}
	if len(candles) == 0 {
		return false, nil
	}

	high, low := candles[0].High, candles[0].Low
	for _, c := range candles[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low && c.Low > 0 {
			low = c.Low
		}
	}
	if low <= 0 {
		return false, nil
	}

	rangePct := (high - low) / low * 100
	return rangePct > s.cfg.VolatilityMaxRangePct, nil
}

// filterCandidates applies the liquidity floor found in the quote-volume,
// the denylist, and the benchmark exclusion, then ranks the survivors by 24h
// change and keeps the top N.
func (s *Scanner) filterCandidates(all map[string]domain.Ticker) []candidate {
	var out []candidate
	for symbol, t := range all {
		if !strings.HasSuffix(symbol, "/"+s.quoteAsset) {
			continue
		}
		if symbol == s.cfg.Benchmark {
			continue
		}
		if t.QuoteVolume < s.cfg.MinQuoteVolume || t.Last <= 0 {
			continue
		}
		base := strings.TrimSuffix(symbol, "/"+s.quoteAsset)
		if s.denied(base) {
			continue
		}
		out = append(out, candidate{symbol: symbol, ticker: t})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ticker.ChangePct > out[j].ticker.ChangePct
	})
	if s.cfg.TopN > 0 && len(out) > s.cfg.TopN {
		out = out[:s.cfg.TopN]
	}
	return out
}

func (s *Scanner) denied(base string) bool {
	for _, d := range s.cfg.Denylist {
		if strings.EqualFold(d, base) {
			return true
		}
	}
	return false
}

// evaluate runs every configured provider over every candidate with bounded
// parallelism. Evaluations are pure reads, so only the result slice needs a
// mutex.
func (s *Scanner) evaluate(ctx context.Context, candidates []candidate) []evaluation {
	sem := semaphore.NewWeighted(int64(s.cfg.Concurrency))
	var (
		mu    sync.Mutex
		evals []evaluation
		wg    sync.WaitGroup
	)

	for _, c := range candidates {
		for _, name := range s.cfg.Strategies {
			prov, err := s.registry.Get(name)
			if err != nil {
				s.logger.WarnContext(ctx, "unknown strategy", slog.String("strategy", name))
				continue
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				return evals
			}
			wg.Add(1)
			go func(c candidate, prov strategy.SignalProvider) {
				defer sem.Release(1)
				defer wg.Done()

				ev, err := s.evaluateOne(ctx, c, prov)
				if err != nil {
					s.logger.DebugContext(ctx, "evaluation failed",
						slog.String("symbol", c.symbol),
						slog.String("strategy", prov.Name()),
						slog.String("error", err.Error()),
					)
					return
				}

				mu.Lock()
				evals = append(evals, ev)
				mu.Unlock()
			}(c, prov)
		}
	}

	wg.Wait()
	return evals
}

func (s *Scanner) evaluateOne(ctx context.Context, c candidate, prov strategy.SignalProvider) (evaluation, error) {
	candles, err := s.exchange.FetchOHLCV(ctx, c.symbol, s.cfg.Timeframe, s.cfg.CandleLimit)
	s.safety.Record(err)
	if err != nil {
		s.metrics.ExchangeErrors.Inc()
		return evaluation{}, err
	}

	result, err := prov.CheckSignal(c.symbol, candles)
	if err != nil {
		return evaluation{}, err
	}

	rec := domain.SignalRecord{
		Symbol:    c.symbol,
		Strategy:  prov.Name(),
		Entry:     result.Entry,
		Trigger:   result.Trigger,
		Reason:    result.Reason,
		Price:     c.ticker.Last,
		Metadata:  result.Metadata,
		Timestamp: s.now(),
	}
	s.signals.Add(rec)
	if result.Entry {
		s.metrics.SignalsTotal.WithLabelValues(prov.Name()).Inc()
		if err := s.bus.Publish(ctx, ChanSignals, rec); err != nil {
			s.logger.DebugContext(ctx, "signal publish failed", slog.String("error", err.Error()))
		}
	}

	return evaluation{
		symbol:   c.symbol,
		strategy: prov.Name(),
		price:    c.ticker.Last,
		result:   result,
	}, nil
}

// execute runs the positive signals through admission, sizing, and entry,
// strictly one at a time. The account snapshot is refreshed after every fill
// because each entry changes free capital and the open-position set.
func (s *Scanner) execute(ctx context.Context, evals []evaluation) {
	for _, ev := range evals {
		if !ev.result.Entry {
			continue
		}

		snap, open, err := s.accounting.Snapshot(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "account snapshot failed", slog.String("error", err.Error()))
			return
		}
		st, err := s.state.Snapshot(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "state snapshot failed", slog.String("error", err.Error()))
			return
		}

		size := s.alloc.TradeSize(snap.EquityUSD, snap.FreeUSD, snap.OpenCount, st.TradeUSD)
		if size <= 0 {
			s.logger.DebugContext(ctx, "no capacity", slog.String("symbol", ev.symbol))
			continue
		}

		ok, reason := s.admission.CanAdmit(ev.symbol, size, ev.strategy, snap.EquityUSD, open, st, s.now())
		if !ok {
			s.metrics.AdmissionDenials.WithLabelValues(string(reason)).Inc()
			s.logger.DebugContext(ctx, "entry denied",
				slog.String("symbol", ev.symbol),
				slog.String("strategy", ev.strategy),
				slog.String("reason", string(reason)),
			)
			continue
		}

		if _, err := s.lifecycle.ExecuteBuy(ctx, ev.symbol, ev.strategy, size, ev.result); err != nil {
			if errors.Is(err, domain.ErrInvalidOrder) {
				s.logger.WarnContext(ctx, "entry rejected",
					slog.String("symbol", ev.symbol),
					slog.String("error", err.Error()),
				)
				continue
			}
			s.logger.ErrorContext(ctx, "entry failed",
				slog.String("symbol", ev.symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}
