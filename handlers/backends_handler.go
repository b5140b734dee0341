package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/model-router/services/registry"
	"github.com/upb/model-router/utils"
)

// BackendsHandler handles backend catalog HTTP requests
type BackendsHandler struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// NewBackendsHandler creates a new BackendsHandler
func NewBackendsHandler(reg *registry.Registry, logger *zap.Logger) *BackendsHandler {
	return &BackendsHandler{
		registry: reg,
		logger:   logger,
	}
}

// BackendResponse is one entry in the backend listing
type BackendResponse struct {
	ID         string `json:"id"`
	Capability string `json:"capability"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`
	Default    bool   `json:"default"`
}

// HandleList handles GET /api/v1/backends. Backends are listed in
// registration order; the last one is marked as the default.
func (h *BackendsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	backends := h.registry.ListAll()

	out := make([]BackendResponse, len(backends))
	for i, desc := range backends {
		out[i] = BackendResponse{
			ID:         desc.ID,
			Capability: desc.CapabilityLabel,
			Model:      desc.ModelID,
			Provider:   desc.Provider,
			Default:    i == len(backends)-1,
		}
	}

	_ = utils.WriteOK(w, out)
}
