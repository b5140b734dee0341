package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/model-router/services"
	"github.com/upb/model-router/services/providers"
	"github.com/upb/model-router/services/registry"
)

// mockChatClient returns a canned completion or error
type mockChatClient struct {
	name     string
	response string
	err      error

	lastSystemPrompt string
	lastUserPrompt   string
	calls            int
}

func (m *mockChatClient) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockChatClient) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &providers.ChatResponse{
		Model:    req.Model,
		Provider: m.Name(),
		Choices: []providers.Choice{
			{Message: providers.Message{Role: "assistant", Content: m.response}},
		},
	}, nil
}

func (m *mockChatClient) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	m.calls++
	m.lastSystemPrompt = systemPrompt
	m.lastUserPrompt = userPrompt
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockChatClient) IsAvailable(ctx context.Context) bool {
	return m.err == nil
}

func threeBackendRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	r := registry.New()
	require.NoError(t, r.Register(&registry.BackendDescriptor{ID: "phi3", CapabilityLabel: "science and mathematics", ModelID: "phi3", Provider: "ollama"}))
	require.NoError(t, r.Register(&registry.BackendDescriptor{ID: "llama3", CapabilityLabel: "creative writing", ModelID: "llama3", Provider: "ollama"}))
	require.NoError(t, r.Register(&registry.BackendDescriptor{ID: "gpt-4o-mini", CapabilityLabel: "general assistance", ModelID: "gpt-4o-mini", Provider: "openai"}))
	return r
}

func TestKeywordStrategy_Select(t *testing.T) {
	logger := zap.NewNop()

	t.Run("resolves the backend named by the classifier", func(t *testing.T) {
		reg := threeBackendRegistry(t)
		classifier := &mockChatClient{response: "phi3 because the request is about physics"}
		strategy := NewKeywordStrategy(reg, classifier, "gpt-4o-mini", logger)

		desc, reason, err := strategy.Select(context.Background(), "what is gravity?")
		require.NoError(t, err)
		assert.Equal(t, "phi3", desc.ID)
		assert.Equal(t, "because the request is about physics", reason)
	})

	t.Run("lists every backend with its capability in the system prompt", func(t *testing.T) {
		reg := threeBackendRegistry(t)
		classifier := &mockChatClient{response: "phi3"}
		strategy := NewKeywordStrategy(reg, classifier, "gpt-4o-mini", logger)

		_, _, err := strategy.Select(context.Background(), "anything")
		require.NoError(t, err)
		assert.Contains(t, classifier.lastSystemPrompt, "phi3: science and mathematics")
		assert.Contains(t, classifier.lastSystemPrompt, "llama3: creative writing")
		assert.Contains(t, classifier.lastSystemPrompt, "gpt-4o-mini: general assistance")
		assert.Equal(t, "anything", classifier.lastUserPrompt)
	})

	t.Run("tolerates quoting, punctuation and case around the id", func(t *testing.T) {
		reg := threeBackendRegistry(t)

		for _, response := range []string{`"Phi3"`, "PHI3.", "  phi3,\nit fits best", "'phi3':"} {
			classifier := &mockChatClient{response: response}
			strategy := NewKeywordStrategy(reg, classifier, "gpt-4o-mini", logger)

			desc, _, err := strategy.Select(context.Background(), "science question")
			require.NoError(t, err, "response %q", response)
			assert.Equal(t, "phi3", desc.ID)
		}
	})

	t.Run("unknown token maps to an ambiguous response error", func(t *testing.T) {
		reg := threeBackendRegistry(t)
		classifier := &mockChatClient{response: "mistral is the right choice"}
		strategy := NewKeywordStrategy(reg, classifier, "gpt-4o-mini", logger)

		_, _, err := strategy.Select(context.Background(), "some prompt")
		require.Error(t, err)
		assert.True(t, errors.Is(err, services.ErrAmbiguousResponse))
		assert.True(t, services.IsRecoverableRoutingError(err))
		assert.Equal(t, "mistral", services.GetErrorDetails(err)["token"])
	})

	t.Run("empty classifier response is ambiguous", func(t *testing.T) {
		reg := threeBackendRegistry(t)
		classifier := &mockChatClient{response: "   "}
		strategy := NewKeywordStrategy(reg, classifier, "gpt-4o-mini", logger)

		_, _, err := strategy.Select(context.Background(), "some prompt")
		require.Error(t, err)
		assert.True(t, errors.Is(err, services.ErrAmbiguousResponse))
	})

	t.Run("classifier failure maps to backend unavailable", func(t *testing.T) {
		reg := threeBackendRegistry(t)
		classifier := &mockChatClient{err: errors.New("connection refused")}
		strategy := NewKeywordStrategy(reg, classifier, "gpt-4o-mini", logger)

		_, _, err := strategy.Select(context.Background(), "some prompt")
		require.Error(t, err)
		assert.True(t, errors.Is(err, services.ErrBackendUnavailable))
		assert.True(t, services.IsRecoverableRoutingError(err))
	})

	t.Run("empty registry is not recoverable", func(t *testing.T) {
		strategy := NewKeywordStrategy(registry.New(), &mockChatClient{response: "phi3"}, "gpt-4o-mini", logger)

		_, _, err := strategy.Select(context.Background(), "some prompt")
		require.Error(t, err)
		assert.True(t, errors.Is(err, services.ErrEmptyRegistry))
		assert.False(t, services.IsRecoverableRoutingError(err))
	})
}
