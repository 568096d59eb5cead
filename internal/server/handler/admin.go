package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gitco/alphatrader/internal/domain"
)

// AdminHandler serves operator controls: kill switch, resume, and the
// per-trade capital override. All writes go through the state store so the
// engine picks them up at its next snapshot.
type AdminHandler struct {
	state  domain.StateStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler with the given stores and logger.
func NewAdminHandler(state domain.StateStore, audit domain.AuditStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{state: state, audit: audit, logger: logger}
}

// Kill engages the kill switch and disables auto-trading. Open positions
// keep being watched; no new entries are admitted until Resume.
// POST /api/admin/kill
func (h *AdminHandler) Kill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.state.Set(ctx, domain.StateKillSwitch, true); err != nil {
		h.logger.ErrorContext(ctx, "handler: engage kill switch failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to engage kill switch")
		return
	}
	if err := h.state.Set(ctx, domain.StateAutoTrading, false); err != nil {
		h.logger.ErrorContext(ctx, "handler: disable auto trading failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to disable auto trading")
		return
	}

	h.logAudit(ctx, "admin.kill", nil)
	h.logger.WarnContext(ctx, "kill switch engaged by operator")

	writeJSON(w, http.StatusOK, map[string]any{
		"kill_switch":  true,
		"auto_trading": false,
	})
}

// Resume clears the kill switch and re-enables auto-trading. This is the
// only way to clear a kill switch tripped by the daily loss limit.
// POST /api/admin/resume
func (h *AdminHandler) Resume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.state.Set(ctx, domain.StateKillSwitch, false); err != nil {
		h.logger.ErrorContext(ctx, "handler: clear kill switch failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to clear kill switch")
		return
	}
	if err := h.state.Set(ctx, domain.StateAutoTrading, true); err != nil {
		h.logger.ErrorContext(ctx, "handler: enable auto trading failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to enable auto trading")
		return
	}

	h.logAudit(ctx, "admin.resume", nil)
	h.logger.InfoContext(ctx, "trading resumed by operator")

	writeJSON(w, http.StatusOK, map[string]any{
		"kill_switch":  false,
		"auto_trading": true,
	})
}

// GetTradeUSD reports the current per-trade capital override.
// GET /api/admin/trade-usd
func (h *AdminHandler) GetTradeUSD(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	st, err := h.state.Snapshot(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: load state failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trade_usd": st.TradeUSD})
}

// tradeUSDRequest carries the operator sizing override. Zero restores
// dynamic sizing.
type tradeUSDRequest struct {
	TradeUSD float64 `json:"trade_usd"`
}

// SetTradeUSD sets the per-trade capital override.
// PUT /api/admin/trade-usd
func (h *AdminHandler) SetTradeUSD(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req tradeUSDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TradeUSD < 0 {
		writeError(w, http.StatusBadRequest, "trade_usd must be zero or positive")
		return
	}

	if err := h.state.Set(ctx, domain.StateTradeUSD, req.TradeUSD); err != nil {
		h.logger.ErrorContext(ctx, "handler: set trade usd failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to set trade size")
		return
	}

	h.logAudit(ctx, "admin.trade_usd", map[string]any{"trade_usd": req.TradeUSD})
	h.logger.InfoContext(ctx, "trade size override updated",
		slog.Float64("trade_usd", req.TradeUSD),
	)

	writeJSON(w, http.StatusOK, map[string]any{"trade_usd": req.TradeUSD})
}

func (h *AdminHandler) logAudit(ctx context.Context, event string, detail map[string]any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Log(ctx, event, detail); err != nil {
		h.logger.WarnContext(ctx, "handler: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
