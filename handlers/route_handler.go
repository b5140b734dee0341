package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/model-router/middleware"
	"github.com/upb/model-router/services/providers"
	"github.com/upb/model-router/services/routing"
	"github.com/upb/model-router/utils"
)

// RouteHandler handles routing HTTP requests
type RouteHandler struct {
	router *routing.RouterService
	logger *zap.Logger
}

// NewRouteHandler creates a new RouteHandler
func NewRouteHandler(router *routing.RouterService, logger *zap.Logger) *RouteHandler {
	return &RouteHandler{
		router: router,
		logger: logger,
	}
}

// RouteRequest is the request body for POST /api/v1/route
type RouteRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

// RouteResponse is the response body for POST /api/v1/route
type RouteResponse struct {
	SelectedID   string `json:"selected_id"`
	Strategy     string `json:"strategy"`
	Reason       string `json:"reason"`
	FallbackUsed bool   `json:"fallback_used"`
}

// HandleRoute handles POST /api/v1/route. It returns the routing decision
// without dispatching the prompt.
func (h *RouteHandler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	decision, err := h.router.Route(r.Context(), req.Prompt)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Debug("route request handled",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("selected_id", decision.SelectedID))

	_ = utils.WriteOK(w, RouteResponse{
		SelectedID:   decision.SelectedID,
		Strategy:     decision.Strategy,
		Reason:       decision.Reason,
		FallbackUsed: decision.FallbackUsed,
	})
}

// ChatRequest is the request body for POST /api/v1/chat
type ChatRequest struct {
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	MaxTokens   int           `json:"max_tokens,omitempty" validate:"omitempty,min=1"`
	Temperature float64       `json:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
}

// ChatMessage is a single conversation message
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatResponse is the response body for POST /api/v1/chat
type ChatResponse struct {
	ID       string          `json:"id"`
	Model    string          `json:"model"`
	Provider string          `json:"provider"`
	Content  string          `json:"content"`
	Usage    providers.Usage `json:"usage"`
	Routing  RouteResponse   `json:"routing"`
}

// HandleChat handles POST /api/v1/chat. It routes the conversation and
// dispatches it to the selected backend.
func (h *RouteHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	chatReq := &providers.ChatRequest{
		Messages:    make([]providers.Message, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for i, msg := range req.Messages {
		chatReq.Messages[i] = providers.Message{Role: msg.Role, Content: msg.Content}
	}

	resp, decision, err := h.router.RouteCompletion(r.Context(), chatReq)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	_ = utils.WriteOK(w, ChatResponse{
		ID:       resp.ID,
		Model:    resp.Model,
		Provider: resp.Provider,
		Content:  content,
		Usage:    resp.Usage,
		Routing: RouteResponse{
			SelectedID:   decision.SelectedID,
			Strategy:     decision.Strategy,
			Reason:       decision.Reason,
			FallbackUsed: decision.FallbackUsed,
		},
	})
}
