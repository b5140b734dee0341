package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/upb/model-router/services/audit"
	"github.com/upb/model-router/utils"
)

// DecisionsHandler exposes the persisted routing decision log
type DecisionsHandler struct {
	audit  *audit.Service
	logger *zap.Logger
}

// NewDecisionsHandler creates a new DecisionsHandler. audit may be nil when
// no decision database is configured.
func NewDecisionsHandler(auditService *audit.Service, logger *zap.Logger) *DecisionsHandler {
	return &DecisionsHandler{
		audit:  auditService,
		logger: logger,
	}
}

// HandleListRecent handles GET /api/v1/decisions?limit=N
func (h *DecisionsHandler) HandleListRecent(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		_ = utils.WriteServiceUnavailable(w, "Decision log is not configured")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			_ = utils.WriteBadRequest(w, "limit must be an integer between 1 and 500", nil)
			return
		}
		limit = parsed
	}

	records, err := h.audit.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list decision records", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to list decisions")
		return
	}

	_ = utils.WriteOK(w, records)
}
