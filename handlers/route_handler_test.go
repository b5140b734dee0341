package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/model-router/services"
	"github.com/upb/model-router/services/providers"
	"github.com/upb/model-router/services/registry"
	"github.com/upb/model-router/services/routing"
	"github.com/upb/model-router/utils"
)

// stubStrategy returns a fixed backend or error
type stubStrategy struct {
	backendID string
	reason    string
	err       error
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Select(ctx context.Context, prompt string) (*registry.BackendDescriptor, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	return &registry.BackendDescriptor{ID: s.backendID, ModelID: s.backendID, Provider: "stub"}, s.reason, nil
}

// stubClient answers every completion with fixed content
type stubClient struct {
	content string
	err     error
}

func (c *stubClient) Name() string { return "stub" }

func (c *stubClient) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &providers.ChatResponse{
		ID:       "resp-1",
		Model:    req.Model,
		Provider: "stub",
		Choices: []providers.Choice{
			{Message: providers.Message{Role: "assistant", Content: c.content}},
		},
	}, nil
}

func (c *stubClient) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.content, nil
}

func (c *stubClient) IsAvailable(ctx context.Context) bool { return c.err == nil }

func newTestRouter(t *testing.T, strategy routing.Strategy, client providers.ChatClient) *routing.RouterService {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.Register(&registry.BackendDescriptor{ID: "phi3", CapabilityLabel: "science", ModelID: "phi3", Provider: "stub"}))
	require.NoError(t, reg.Register(&registry.BackendDescriptor{ID: "llama3", CapabilityLabel: "writing", ModelID: "llama3", Provider: "stub"}))

	clients := map[string]providers.ChatClient{"stub": client}
	return routing.NewRouterService(reg, strategy, clients, nil, zap.NewNop())
}

func TestRouteHandler_HandleRoute(t *testing.T) {
	t.Run("returns the routing decision", func(t *testing.T) {
		router := newTestRouter(t, &stubStrategy{backendID: "phi3", reason: "science prompt"}, &stubClient{})
		handler := NewRouteHandler(router, zap.NewNop())

		body := bytes.NewBufferString(`{"prompt": "what is gravity?"}`)
		req := httptest.NewRequest("POST", "/api/v1/route", body)
		rec := httptest.NewRecorder()

		handler.HandleRoute(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data RouteResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "phi3", resp.Data.SelectedID)
		assert.Equal(t, "stub", resp.Data.Strategy)
		assert.Equal(t, "science prompt", resp.Data.Reason)
		assert.False(t, resp.Data.FallbackUsed)
	})

	t.Run("reports fallback decisions", func(t *testing.T) {
		router := newTestRouter(t, &stubStrategy{err: services.AmbiguousResponseError("mistral")}, &stubClient{})
		handler := NewRouteHandler(router, zap.NewNop())

		req := httptest.NewRequest("POST", "/api/v1/route", bytes.NewBufferString(`{"prompt": "hello"}`))
		rec := httptest.NewRecorder()

		handler.HandleRoute(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data RouteResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "llama3", resp.Data.SelectedID)
		assert.True(t, resp.Data.FallbackUsed)
	})

	t.Run("rejects a missing prompt", func(t *testing.T) {
		router := newTestRouter(t, &stubStrategy{backendID: "phi3"}, &stubClient{})
		handler := NewRouteHandler(router, zap.NewNop())

		req := httptest.NewRequest("POST", "/api/v1/route", bytes.NewBufferString(`{}`))
		rec := httptest.NewRecorder()

		handler.HandleRoute(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		router := newTestRouter(t, &stubStrategy{backendID: "phi3"}, &stubClient{})
		handler := NewRouteHandler(router, zap.NewNop())

		req := httptest.NewRequest("POST", "/api/v1/route", bytes.NewBufferString(`{not json`))
		rec := httptest.NewRecorder()

		handler.HandleRoute(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps an empty registry to 500", func(t *testing.T) {
		reg := registry.New()
		router := routing.NewRouterService(reg, &stubStrategy{err: services.ErrEmptyRegistry}, nil, nil, zap.NewNop())
		handler := NewRouteHandler(router, zap.NewNop())

		req := httptest.NewRequest("POST", "/api/v1/route", bytes.NewBufferString(`{"prompt": "hello"}`))
		rec := httptest.NewRecorder()

		handler.HandleRoute(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestRouteHandler_HandleChat(t *testing.T) {
	t.Run("dispatches and returns routing metadata", func(t *testing.T) {
		router := newTestRouter(t, &stubStrategy{backendID: "phi3", reason: "science"}, &stubClient{content: "Gravity is a force."})
		handler := NewRouteHandler(router, zap.NewNop())

		body := bytes.NewBufferString(`{"messages": [{"role": "user", "content": "what is gravity?"}]}`)
		req := httptest.NewRequest("POST", "/api/v1/chat", body)
		rec := httptest.NewRecorder()

		handler.HandleChat(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data ChatResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Gravity is a force.", resp.Data.Content)
		assert.Equal(t, "phi3", resp.Data.Model)
		assert.Equal(t, "phi3", resp.Data.Routing.SelectedID)
	})

	t.Run("rejects an empty message list", func(t *testing.T) {
		router := newTestRouter(t, &stubStrategy{backendID: "phi3"}, &stubClient{})
		handler := NewRouteHandler(router, zap.NewNop())

		req := httptest.NewRequest("POST", "/api/v1/chat", bytes.NewBufferString(`{"messages": []}`))
		rec := httptest.NewRecorder()

		handler.HandleChat(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects an invalid role", func(t *testing.T) {
		router := newTestRouter(t, &stubStrategy{backendID: "phi3"}, &stubClient{})
		handler := NewRouteHandler(router, zap.NewNop())

		body := bytes.NewBufferString(`{"messages": [{"role": "robot", "content": "hi"}]}`)
		req := httptest.NewRequest("POST", "/api/v1/chat", body)
		rec := httptest.NewRecorder()

		handler.HandleChat(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps dispatch failures to 502", func(t *testing.T) {
		router := newTestRouter(t, &stubStrategy{backendID: "phi3"}, &stubClient{err: errors.New("backend down")})
		handler := NewRouteHandler(router, zap.NewNop())

		body := bytes.NewBufferString(`{"messages": [{"role": "user", "content": "hi"}]}`)
		req := httptest.NewRequest("POST", "/api/v1/chat", body)
		rec := httptest.NewRecorder()

		handler.HandleChat(rec, req)

		require.Equal(t, http.StatusBadGateway, rec.Code)

		var resp utils.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "bad_gateway", resp.Error)
	})
}
