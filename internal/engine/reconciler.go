package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gitco/alphatrader/internal/config"
	"github.com/gitco/alphatrader/internal/domain"
	"github.com/gitco/alphatrader/internal/metrics"
)

// dustEpsilon is the held quantity below which an asset counts as absent.
const dustEpsilon = 1e-8

// Reconciler repairs divergence between the store's open positions and the
// exchange's actual holdings. The exchange is ground truth for whether a
// position exists; realized P&L computed from actual fills is never
// overridden, so forced closes record zero P&L and a zero exit price.
type Reconciler struct {
	exchange  domain.Exchange
	positions domain.PositionStore
	audit     domain.AuditStore
	safety    *SafetyMonitor
	metrics   *metrics.Metrics

	cfg    config.LifecycleConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(
	exchange domain.Exchange,
	positions domain.PositionStore,
	audit domain.AuditStore,
	safety *SafetyMonitor,
	m *metrics.Metrics,
	cfg config.LifecycleConfig,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		exchange:  exchange,
		positions: positions,
		audit:     audit,
		safety:    safety,
		metrics:   m,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "reconciler")),
		now:       time.Now,
	}
}

// Reconcile compares every store-open position against the exchange balance
// and force-closes phantom and dust rows. It is idempotent: a second run with
// unchanged balances changes nothing.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	open, err := r.positions.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("reconciler: list open: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	bal, err := r.exchange.FetchBalance(ctx)
	r.safety.Record(err)
	if err != nil {
		r.metrics.ExchangeErrors.Inc()
		return fmt.Errorf("reconciler: fetch balance: %w", err)
	}

	for _, pos := range open {
		actual := bal.Total[pos.BaseAsset()]
		if actual == 0 {
			actual = bal.Free[pos.BaseAsset()]
		}

		kind := classify(actual, pos.Quantity, r.cfg.DustRatio)
		if kind == "" {
			continue
		}

		// CloseIfOpen re-checks status in the same statement, so a position
		// the lifecycle manager closed between our balance fetch and this
		// write is skipped silently (last-writer check, not a lock).
		changed, err := r.positions.CloseIfOpen(ctx, pos.ID, 0, 0, r.now())
		if err != nil {
			r.logger.WarnContext(ctx, "forced close failed",
				slog.String("id", pos.ID),
				slog.String("symbol", pos.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !changed {
			continue
		}

		r.metrics.ReconcileRepairs.WithLabelValues(kind).Inc()
		r.logger.InfoContext(ctx, "position force-closed",
			slog.String("kind", kind),
			slog.String("id", pos.ID),
			slog.String("symbol", pos.Symbol),
			slog.Float64("recorded_qty", pos.Quantity),
			slog.Float64("actual_qty", actual),
		)
		if err := r.audit.Log(ctx, "reconcile.forced_close", map[string]any{
			"id":           pos.ID,
			"symbol":       pos.Symbol,
			"kind":         kind,
			"recorded_qty": pos.Quantity,
			"actual_qty":   actual,
		}); err != nil {
			r.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	return nil
}

// classify returns "phantom" when the asset is effectively absent, "dust"
// when the held amount is below the dust ratio of the recorded quantity, and
// "" when the position is healthy.
func classify(actual, recorded, dustRatio float64) string {
	if actual <= dustEpsilon {
		return "phantom"
	}
	if recorded > 0 && actual < dustRatio*recorded {
		return "dust"
	}
	return ""
}
