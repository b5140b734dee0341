package routing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/model-router/services"
	"github.com/upb/model-router/services/providers"
	"github.com/upb/model-router/services/registry"
)

// RouterService is the routing entry point. It runs the configured strategy
// and degrades to the default backend when the strategy fails recoverably.
// Routing never mutates state, so repeated calls with the same prompt and
// the same collaborator answers yield the same decision.
type RouterService struct {
	registry *registry.Registry
	strategy Strategy
	clients  map[string]providers.ChatClient
	recorder DecisionRecorder
	logger   *zap.Logger
}

// NewRouterService creates a router over the given strategy. clients maps
// provider names to chat clients for dispatch; recorder may be nil.
func NewRouterService(reg *registry.Registry, strategy Strategy, clients map[string]providers.ChatClient, recorder DecisionRecorder, logger *zap.Logger) *RouterService {
	return &RouterService{
		registry: reg,
		strategy: strategy,
		clients:  clients,
		recorder: recorder,
		logger:   logger,
	}
}

// Route selects a backend for the prompt. Recoverable strategy failures
// (unreachable collaborator, ambiguous classification) fall back to the
// default backend and are recorded in the decision. Only configuration
// errors, like an empty registry, propagate to the caller.
func (s *RouterService) Route(ctx context.Context, prompt string) (*Decision, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, services.ErrEmptyText
	}

	desc, reason, err := s.strategy.Select(ctx, prompt)
	fallbackUsed := false

	if err != nil {
		if !services.IsRecoverableRoutingError(err) {
			return nil, err
		}

		def, defErr := s.registry.Default()
		if defErr != nil {
			return nil, defErr
		}

		s.logger.Warn("Strategy failed, using default backend",
			zap.String("strategy", s.strategy.Name()),
			zap.String("default", def.ID),
			zap.Error(err))

		desc = def
		reason = fmt.Sprintf("fallback to default: %v", err)
		fallbackUsed = true
	}

	decision := &Decision{
		SelectedID:   desc.ID,
		Strategy:     s.strategy.Name(),
		Reason:       reason,
		FallbackUsed: fallbackUsed,
		DecidedAt:    time.Now().UTC(),
	}

	s.logger.Info("Routed prompt",
		zap.String("backend", decision.SelectedID),
		zap.String("strategy", decision.Strategy),
		zap.Bool("fallback", decision.FallbackUsed))

	if s.recorder != nil {
		s.recorder.Record(ctx, decision, prompt)
	}

	return decision, nil
}

// RouteCompletion routes the prompt and dispatches the chat request to the
// selected backend's provider. The request's model is overridden with the
// backend's configured model.
func (s *RouterService) RouteCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, *Decision, error) {
	prompt := lastUserMessage(req)

	decision, err := s.Route(ctx, prompt)
	if err != nil {
		return nil, nil, err
	}

	desc, err := s.registry.Resolve(decision.SelectedID)
	if err != nil {
		return nil, nil, err
	}

	client, ok := s.clients[desc.Provider]
	if !ok {
		return nil, nil, services.WrapError(services.ErrorTypeConfiguration,
			fmt.Sprintf("no chat client configured for provider %q", desc.Provider), nil)
	}

	dispatched := *req
	dispatched.Model = desc.ModelID

	resp, err := client.ChatCompletion(ctx, &dispatched)
	if err != nil {
		return nil, decision, services.BackendUnavailableError(err)
	}

	return resp, decision, nil
}

func lastUserMessage(req *providers.ChatRequest) string {
	if req == nil {
		return ""
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}
