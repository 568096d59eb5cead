// Package metrics registers the Prometheus collectors exposed by the trading
// engine and serves them over /metrics on the API server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	ScanCycles   prometheus.Counter
	ScanDuration prometheus.Histogram
	WatcherTicks prometheus.Counter

	SignalsTotal     *prometheus.CounterVec // labels: strategy
	AdmissionDenials *prometheus.CounterVec // labels: reason
	TradesExecuted   *prometheus.CounterVec // labels: side
	ReconcileRepairs *prometheus.CounterVec // labels: kind=phantom|dust

	OpenPositions    prometheus.Gauge
	EquityUSD        prometheus.Gauge
	FreeUSD          prometheus.Gauge
	DailyRealizedPnL prometheus.Gauge

	ExchangeErrors prometheus.Counter
	// CircuitState is 0 while trading is allowed and 1 while the exchange
	// circuit breaker holds entries paused.
	CircuitState prometheus.Gauge
	KillSwitch   prometheus.Gauge
}

// New registers all engine collectors on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all engine collectors on the given registerer. Tests pass
// a fresh registry so instances never collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScanCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alphatrader_scan_cycles_total",
			Help: "Completed market scan cycles",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alphatrader_scan_duration_seconds",
			Help:    "Wall time of one scan cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		WatcherTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alphatrader_watcher_ticks_total",
			Help: "Completed position watcher ticks",
		}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alphatrader_signals_total",
			Help: "Entry signals produced (by strategy)",
		}, []string{"strategy"}),
		AdmissionDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alphatrader_admission_denials_total",
			Help: "Entries refused by the admission controller (by reason)",
		}, []string{"reason"}),
		TradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alphatrader_trades_executed_total",
			Help: "Market orders filled (by side)",
		}, []string{"side"}),
		ReconcileRepairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alphatrader_reconcile_repairs_total",
			Help: "Positions force-closed by the reconciler (by kind)",
		}, []string{"kind"}),

		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alphatrader_open_positions",
			Help: "Currently open positions",
		}),
		EquityUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alphatrader_equity_usd",
			Help: "Total account equity in USD",
		}),
		FreeUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alphatrader_free_usd",
			Help: "Free quote balance in USD",
		}),
		DailyRealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alphatrader_daily_realized_pnl_usd",
			Help: "Realized profit and loss since the last day rollover",
		}),

		ExchangeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alphatrader_exchange_errors_total",
			Help: "Failed exchange API calls",
		}),
		CircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alphatrader_circuit_state",
			Help: "Exchange circuit breaker state (0=closed, 1=open)",
		}),
		KillSwitch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alphatrader_kill_switch",
			Help: "Kill switch state (0=off, 1=tripped)",
		}),
	}

	reg.MustRegister(
		m.ScanCycles,
		m.ScanDuration,
		m.WatcherTicks,
		m.SignalsTotal,
		m.AdmissionDenials,
		m.TradesExecuted,
		m.ReconcileRepairs,
		m.OpenPositions,
		m.EquityUSD,
		m.FreeUSD,
		m.DailyRealizedPnL,
		m.ExchangeErrors,
		m.CircuitState,
		m.KillSwitch,
	)

	return m
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
