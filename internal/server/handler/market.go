package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gitco/alphatrader/internal/domain"
)

// MarketHandler serves cached ticker snapshots written by the scanner.
type MarketHandler struct {
	tickers domain.TickerCache
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler backed by the ticker cache.
func NewMarketHandler(tickers domain.TickerCache, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{tickers: tickers, logger: logger}
}

// GetTicker returns the last cached ticker for a symbol. Symbols use a dash
// in the path ("BTC-USDT") since slashes do not survive routing.
// GET /api/tickers/{symbol}
func (h *MarketHandler) GetTicker(w http.ResponseWriter, r *http.Request) {
	symbol := pathSymbol(pathParam(r, "symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol required")
		return
	}

	t, err := h.tickers.Get(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no cached ticker for symbol")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get ticker failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get ticker")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// pathSymbol converts a dash-separated path segment to the exchange's
// slash-separated pair notation.
func pathSymbol(s string) string {
	return strings.ReplaceAll(s, "-", "/")
}
