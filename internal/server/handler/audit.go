package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gitco/alphatrader/internal/domain"
)

// AuditReader lists audit log entries.
type AuditReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AuditHandler serves the audit log for operator review.
type AuditHandler struct {
	audit  AuditReader
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler with the given reader and logger.
func NewAuditHandler(audit AuditReader, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// listAuditResponse wraps the audit log response.
type listAuditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// ListEntries returns audit log entries, newest first.
// GET /api/audit?limit=&offset=&since=&until=
func (h *AuditHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit entries failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	if entries == nil {
		entries = []domain.AuditEntry{}
	}

	writeJSON(w, http.StatusOK, listAuditResponse{Entries: entries})
}
