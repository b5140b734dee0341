package routing

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/upb/model-router/services"
	"github.com/upb/model-router/services/providers"
	"github.com/upb/model-router/services/registry"
)

// EmbeddingStrategy routes by cosine similarity between the prompt and each
// backend's capability label. Labels are embedded once at startup via Prime;
// only the prompt is embedded per request.
type EmbeddingStrategy struct {
	registry *registry.Registry
	embedder providers.EmbeddingClient
	logger   *zap.Logger
}

// NewEmbeddingStrategy creates an embedding strategy
func NewEmbeddingStrategy(reg *registry.Registry, embedder providers.EmbeddingClient, logger *zap.Logger) *EmbeddingStrategy {
	return &EmbeddingStrategy{
		registry: reg,
		embedder: embedder,
		logger:   logger,
	}
}

// Name returns the strategy name
func (s *EmbeddingStrategy) Name() string {
	return "embedding"
}

// Prime embeds every registered capability label. Must be called before
// Select; a failure here is a startup error, not a per-request one.
func (s *EmbeddingStrategy) Prime(ctx context.Context) error {
	backends := s.registry.ListAll()
	if len(backends) == 0 {
		return services.ErrEmptyRegistry
	}

	for _, desc := range backends {
		if desc.Embedding != nil {
			continue
		}

		vec, err := s.embedder.Embed(ctx, desc.CapabilityLabel)
		if err != nil {
			return services.WrapError(services.ErrorTypeConfiguration,
				fmt.Sprintf("failed to embed capability label for backend %q", desc.ID), err)
		}
		desc.Embedding = vec

		s.logger.Debug("Primed capability embedding",
			zap.String("backend", desc.ID),
			zap.Int("dims", len(vec)))
	}

	return nil
}

// Select embeds the prompt and returns the backend with the most similar
// capability label. Ties keep the earlier registered backend.
func (s *EmbeddingStrategy) Select(ctx context.Context, prompt string) (*registry.BackendDescriptor, string, error) {
	backends := primed(s.registry.ListAll())
	if len(backends) == 0 {
		return nil, "", services.ErrEmptyRegistry
	}

	promptVec, err := s.embedder.Embed(ctx, prompt)
	if err != nil {
		s.logger.Warn("Prompt embedding failed",
			zap.String("embedder", s.embedder.Name()),
			zap.Error(err))
		return nil, "", services.BackendUnavailableError(err)
	}

	var best *registry.BackendDescriptor
	bestScore := math.Inf(-1)

	for _, desc := range backends {
		score := cosineSimilarity(promptVec, desc.Embedding)
		// Strict comparison keeps the earlier backend on ties
		if score > bestScore {
			bestScore = score
			best = desc
		}
	}

	reason := fmt.Sprintf("cosine similarity %.4f to capability %q", bestScore, best.CapabilityLabel)
	return best, reason, nil
}

func primed(backends []*registry.BackendDescriptor) []*registry.BackendDescriptor {
	out := backends[:0]
	for _, desc := range backends {
		if len(desc.Embedding) > 0 {
			out = append(out, desc)
		}
	}
	return out
}

// cosineSimilarity returns the cosine of the angle between two vectors.
// Mismatched lengths and zero vectors score -1 so they never win.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return -1
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
