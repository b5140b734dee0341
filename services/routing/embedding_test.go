package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/model-router/services"
	"github.com/upb/model-router/services/registry"
)

// mockEmbedder maps texts to fixed vectors
type mockEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	vec, ok := m.vectors[text]
	if !ok {
		return nil, errors.New("no vector for text: " + text)
	}
	return vec, nil
}

func TestEmbeddingStrategy_Prime(t *testing.T) {
	logger := zap.NewNop()

	t.Run("embeds every capability label once", func(t *testing.T) {
		reg := registry.New()
		require.NoError(t, reg.Register(&registry.BackendDescriptor{ID: "phi3", CapabilityLabel: "science"}))
		require.NoError(t, reg.Register(&registry.BackendDescriptor{ID: "llama3", CapabilityLabel: "writing"}))

		embedder := &mockEmbedder{vectors: map[string][]float32{
			"science": {1, 0},
			"writing": {0, 1},
		}}

		strategy := NewEmbeddingStrategy(reg, embedder, logger)
		require.NoError(t, strategy.Prime(context.Background()))
		assert.Equal(t, 2, embedder.calls)

		desc, err := reg.Resolve("phi3")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0}, desc.Embedding)

		// Re-priming skips already embedded backends
		require.NoError(t, strategy.Prime(context.Background()))
		assert.Equal(t, 2, embedder.calls)
	})

	t.Run("fails on an empty registry", func(t *testing.T) {
		strategy := NewEmbeddingStrategy(registry.New(), &mockEmbedder{}, logger)

		err := strategy.Prime(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, services.ErrEmptyRegistry))
	})

	t.Run("surfaces embedder failures as configuration errors", func(t *testing.T) {
		reg := registry.New()
		require.NoError(t, reg.Register(&registry.BackendDescriptor{ID: "phi3", CapabilityLabel: "science"}))

		strategy := NewEmbeddingStrategy(reg, &mockEmbedder{err: errors.New("boom")}, logger)

		err := strategy.Prime(context.Background())
		require.Error(t, err)
		assert.True(t, services.IsConfigurationError(err))
	})
}

func TestEmbeddingStrategy_Select(t *testing.T) {
	logger := zap.NewNop()

	prime := func(t *testing.T, embedder *mockEmbedder) (*EmbeddingStrategy, *registry.Registry) {
		t.Helper()

		reg := registry.New()
		require.NoError(t, reg.Register(&registry.BackendDescriptor{ID: "phi3", CapabilityLabel: "science"}))
		require.NoError(t, reg.Register(&registry.BackendDescriptor{ID: "llama3", CapabilityLabel: "writing"}))

		strategy := NewEmbeddingStrategy(reg, embedder, logger)
		require.NoError(t, strategy.Prime(context.Background()))
		return strategy, reg
	}

	t.Run("picks the nearest capability", func(t *testing.T) {
		embedder := &mockEmbedder{vectors: map[string][]float32{
			"science":         {1, 0},
			"writing":         {0, 1},
			"physics problem": {1, 0.1},
		}}
		strategy, _ := prime(t, embedder)

		desc, reason, err := strategy.Select(context.Background(), "physics problem")
		require.NoError(t, err)
		assert.Equal(t, "phi3", desc.ID)
		assert.Contains(t, reason, "cosine similarity")
	})

	t.Run("ties keep the earlier registered backend", func(t *testing.T) {
		// Equidistant from both capability vectors
		embedder := &mockEmbedder{vectors: map[string][]float32{
			"science":   {1, 0},
			"writing":   {0, 1},
			"undecided": {1, 1},
		}}
		strategy, _ := prime(t, embedder)

		desc, _, err := strategy.Select(context.Background(), "undecided")
		require.NoError(t, err)
		assert.Equal(t, "phi3", desc.ID)
	})

	t.Run("prompt embedding failure is recoverable", func(t *testing.T) {
		embedder := &mockEmbedder{vectors: map[string][]float32{
			"science": {1, 0},
			"writing": {0, 1},
		}}
		strategy, _ := prime(t, embedder)

		embedder.err = errors.New("embedder down")

		_, _, err := strategy.Select(context.Background(), "anything")
		require.Error(t, err)
		assert.True(t, errors.Is(err, services.ErrBackendUnavailable))
		assert.True(t, services.IsRecoverableRoutingError(err))
	})

	t.Run("fails without primed embeddings", func(t *testing.T) {
		reg := registry.New()
		require.NoError(t, reg.Register(&registry.BackendDescriptor{ID: "phi3", CapabilityLabel: "science"}))

		strategy := NewEmbeddingStrategy(reg, &mockEmbedder{}, logger)

		_, _, err := strategy.Select(context.Background(), "anything")
		require.Error(t, err)
		assert.True(t, errors.Is(err, services.ErrEmptyRegistry))
	})
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Degenerate inputs never win
	assert.Equal(t, float64(-1), cosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Equal(t, float64(-1), cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, float64(-1), cosineSimilarity(nil, nil))
}
