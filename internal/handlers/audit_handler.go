package handlers

import (
	"net/http"
	"strconv"

	"github.com/gemachnet/backend/internal/services"
)

type AuditHandler struct {
	audit *services.AuditLogger
}

func NewAuditHandler(audit *services.AuditLogger) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// ListEntries returns the most recent audit trail entries
// @Summary List audit trail
// @Description Read the newest audit records, newest first; admin only
// @Tags audit
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries to return (default 100, max 500)"
// @Success 200 {array} models.AuditLogEntry
// @Failure 403 {object} services.ErrorResponse
// @Router /audit-log [get]
func (h *AuditHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	if !actor.IsAdmin {
		services.SendErrorResponse(w, "Admin access required", http.StatusForbidden, nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.audit.RecentEntries(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
