package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gitco/alphatrader/internal/domain"
)

// SignalSource provides access to recently evaluated signals.
type SignalSource interface {
	Recent(n int) []domain.SignalRecord
}

// SignalHandler serves the recent-signals endpoint for the dashboard.
type SignalHandler struct {
	signals SignalSource
	logger  *slog.Logger
}

// NewSignalHandler creates a SignalHandler backed by the in-memory signal log.
func NewSignalHandler(signals SignalSource, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{signals: signals, logger: logger}
}

// listSignalsResponse wraps the recent signals response.
type listSignalsResponse struct {
	Signals []domain.SignalRecord `json:"signals"`
}

// ListRecent returns the most recent signal evaluations, newest first.
// GET /api/signals?limit=50
func (h *SignalHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	signals := h.signals.Recent(limit)
	if signals == nil {
		signals = []domain.SignalRecord{}
	}

	writeJSON(w, http.StatusOK, listSignalsResponse{Signals: signals})
}
