package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gitco/alphatrader/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// writeJSON marshals v and writes it with the given status. A marshal failure
// degrades to a generic 500 body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts reads the shared list parameters from the query string:
// limit (default 50, capped at 500), offset, and an optional RFC 3339
// since/until window. Malformed values fall back to the defaults.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	opts := domain.ListOpts{Limit: defaultListLimit}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		opts.Limit = min(n, maxListLimit)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		opts.Offset = n
	}
	if t, err := time.Parse(time.RFC3339, q.Get("since")); err == nil {
		opts.Since = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("until")); err == nil {
		opts.Until = &t
	}
	return opts
}

// pathParam reads a named path segment via Go 1.22 pattern routing.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler attaches the handler name for per-endpoint log context.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
