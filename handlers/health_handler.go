package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/model-router/repositories/postgres"
	"github.com/upb/model-router/services/providers"
	"github.com/upb/model-router/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db      *postgres.DB
	clients map[string]providers.ChatClient
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db may be nil when no
// decision database is configured.
func NewHealthHandler(db *postgres.DB, clients map[string]providers.ChatClient, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		clients: clients,
		logger:  logger,
	}
}

// HandleHealth handles GET /healthz. Always returns 200 while the process
// is running.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz. Validates the decision database and
// each chat provider.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			h.logger.Warn("database health check failed", zap.Error(err))
			checks["database"] = "unhealthy"
			allHealthy = false
		} else {
			checks["database"] = "healthy"
		}
	}

	for name, client := range h.clients {
		if client.IsAvailable(ctx) {
			checks["provider:"+name] = "healthy"
		} else {
			checks["provider:"+name] = "unhealthy"
			allHealthy = false
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
