package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gitco/alphatrader/internal/domain"
)

// PositionReader defines the read methods the position handler requires.
type PositionReader interface {
	GetByID(ctx context.Context, id string) (domain.Position, error)
	ListOpen(ctx context.Context) ([]domain.Position, error)
	ListAll(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error)
}

// PositionCloser defines the mutation methods the position handler requires.
// They are served by the lifecycle manager so manual closes share the same
// fill/cooldown/PnL path as automatic ones.
type PositionCloser interface {
	CloseByID(ctx context.Context, id string, quantity float64, trigger string) (domain.Position, error)
	UpdateExitPlan(ctx context.Context, id string, stop, target float64) (domain.Position, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionReader
	lifecycle PositionCloser
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given reader,
// lifecycle and logger.
func NewPositionHandler(positions PositionReader, lifecycle PositionCloser, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListOpen returns all open positions, oldest first.
// GET /api/positions
func (h *PositionHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.ListOpen(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list open positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// ListHistory returns positions regardless of status, newest first, with
// pagination and optional since/until bounds.
// GET /api/positions/history?limit=&offset=&since=&until=
func (h *PositionHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	positions, err := h.positions.ListAll(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list position history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list position history")
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns a single position by ID.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "position id required")
		return
	}

	pos, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// closePositionRequest is the body for a manual close. Quantity 0 means the
// full position.
type closePositionRequest struct {
	Quantity float64 `json:"quantity"`
}

// ClosePosition market-sells part or all of an open position.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "position id required")
		return
	}

	var req closePositionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Quantity < 0 {
		writeError(w, http.StatusBadRequest, "quantity must be zero or positive")
		return
	}

	pos, err := h.lifecycle.CloseByID(r.Context(), id, req.Quantity, "manual")
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "position not found")
		case errors.Is(err, domain.ErrInvalidOrder):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: close position failed",
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to close position")
		}
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// exitPlanRequest carries updated stop/target levels. Zero leaves a level
// unchanged; a negative value disables it.
type exitPlanRequest struct {
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// UpdateExitPlan adjusts the stop-loss and take-profit of an open position.
// PUT /api/positions/{id}/exit-plan
func (h *PositionHandler) UpdateExitPlan(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "position id required")
		return
	}

	var req exitPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pos, err := h.lifecycle.UpdateExitPlan(r.Context(), id, req.StopLoss, req.TakeProfit)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "position not found")
		case errors.Is(err, domain.ErrInvalidOrder):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: update exit plan failed",
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to update exit plan")
		}
		return
	}

	writeJSON(w, http.StatusOK, pos)
}
