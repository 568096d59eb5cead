package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gitco/alphatrader/internal/domain"
	"github.com/gitco/alphatrader/internal/engine"
)

// AccountSource provides a fresh account snapshot from the exchange.
type AccountSource interface {
	Snapshot(ctx context.Context) (engine.AccountSnapshot, []domain.Position, error)
}

// StateSource provides the current bot state.
type StateSource interface {
	Snapshot(ctx context.Context) (domain.BotState, error)
}

// HistorySource lists recent positions regardless of status, newest first.
type HistorySource interface {
	ListAll(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error)
}

// winRateWindow bounds how many recent rows feed the win-rate aggregate.
const winRateWindow = 500

// StatsHandler serves the aggregate account and engine state for the
// dashboard.
type StatsHandler struct {
	account    AccountSource
	state      StateSource
	history    HistorySource
	mode       string
	strategies []string
	startedAt  time.Time
	logger     *slog.Logger
}

// NewStatsHandler creates a StatsHandler. mode is "live" or "paper";
// strategies lists the registered signal providers.
func NewStatsHandler(account AccountSource, state StateSource, history HistorySource, mode string, strategies []string, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		account:    account,
		state:      state,
		history:    history,
		mode:       mode,
		strategies: strategies,
		startedAt:  time.Now().UTC(),
		logger:     logger,
	}
}

// statsResponse is the aggregate stats payload.
type statsResponse struct {
	Mode             string   `json:"mode"`
	Strategies       []string `json:"strategies"`
	UptimeSeconds    int64    `json:"uptime_seconds"`
	EquityUSD        float64  `json:"equity_usd"`
	FreeUSD          float64  `json:"free_usd"`
	LockedUSD        float64  `json:"locked_usd"`
	OpenPositions    int      `json:"open_positions"`
	KillSwitch       bool     `json:"kill_switch"`
	AutoTrading      bool     `json:"auto_trading"`
	TradeUSD         float64  `json:"trade_usd"`
	TradesToday      int      `json:"trades_today"`
	DailyRealizedPnL float64  `json:"daily_realized_pnl"`
	TotalRealizedPnL float64  `json:"total_realized_pnl"`
	UnrealizedPnL    float64  `json:"unrealized_pnl"`
	WinRate          float64  `json:"win_rate"`
}

// GetStats returns the account snapshot merged with the bot state.
// GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	snap, open, err := h.account.Snapshot(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: account snapshot failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to fetch account snapshot")
		return
	}

	st, err := h.state.Snapshot(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: state snapshot failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read bot state")
		return
	}

	var unrealized float64
	for _, p := range open {
		unrealized += p.UnrealizedPnL
	}

	recent, err := h.history.ListAll(r.Context(), domain.ListOpts{Limit: winRateWindow})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list position history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list position history")
		return
	}
	var closed, wins int
	for _, p := range recent {
		if p.IsOpen() {
			continue
		}
		closed++
		if p.RealizedPnL > 0 {
			wins++
		}
	}
	var winRate float64
	if closed > 0 {
		winRate = float64(wins) / float64(closed) * 100
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Mode:             h.mode,
		Strategies:       h.strategies,
		UptimeSeconds:    int64(time.Since(h.startedAt).Seconds()),
		EquityUSD:        snap.EquityUSD,
		FreeUSD:          snap.FreeUSD,
		LockedUSD:        snap.LockedUSD,
		OpenPositions:    snap.OpenCount,
		KillSwitch:       st.KillSwitch,
		AutoTrading:      st.AutoTrading,
		TradeUSD:         st.TradeUSD,
		TradesToday:      st.TradesToday,
		DailyRealizedPnL: st.DailyRealizedPnL,
		TotalRealizedPnL: st.TotalRealizedPnL,
		UnrealizedPnL:    unrealized,
		WinRate:          winRate,
	})
}
