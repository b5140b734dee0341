package routing

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/model-router/services"
	"github.com/upb/model-router/services/providers"
	"github.com/upb/model-router/services/registry"
)

// KeywordStrategy asks a classifier model to pick a backend by id. The
// classifier sees every registered id with its capability label and must
// answer with one id, optionally followed by free-form reasoning.
type KeywordStrategy struct {
	registry   *registry.Registry
	classifier providers.ChatClient
	model      string
	logger     *zap.Logger
}

// NewKeywordStrategy creates a keyword strategy backed by the given
// classifier model
func NewKeywordStrategy(reg *registry.Registry, classifier providers.ChatClient, model string, logger *zap.Logger) *KeywordStrategy {
	return &KeywordStrategy{
		registry:   reg,
		classifier: classifier,
		model:      model,
		logger:     logger,
	}
}

// Name returns the strategy name
func (s *KeywordStrategy) Name() string {
	return "keyword"
}

// Select classifies the prompt and resolves the named backend. An
// unreachable classifier maps to ErrBackendUnavailable; a response whose
// first token is not a registered id maps to ErrAmbiguousResponse. Both are
// recoverable at the router.
func (s *KeywordStrategy) Select(ctx context.Context, prompt string) (*registry.BackendDescriptor, string, error) {
	backends := s.registry.ListAll()
	if len(backends) == 0 {
		return nil, "", services.ErrEmptyRegistry
	}

	raw, err := s.classifier.Complete(ctx, s.model, s.systemPrompt(backends), prompt)
	if err != nil {
		s.logger.Warn("Classifier call failed",
			zap.String("classifier", s.classifier.Name()),
			zap.Error(err))
		return nil, "", services.BackendUnavailableError(err)
	}

	token, reason := splitResponse(raw)

	desc, err := s.registry.Resolve(token)
	if err != nil {
		s.logger.Warn("Classifier named an unknown backend",
			zap.String("token", token),
			zap.String("response", raw))
		return nil, "", services.AmbiguousResponseError(token)
	}

	return desc, reason, nil
}

// systemPrompt lists every backend as "id: capability" and pins the answer
// format the parser expects
func (s *KeywordStrategy) systemPrompt(backends []*registry.BackendDescriptor) string {
	var b strings.Builder
	b.WriteString("You are a routing classifier. Pick the single best backend for the user's request from this list:\n")
	for _, desc := range backends {
		b.WriteString(desc.ID)
		b.WriteString(": ")
		b.WriteString(desc.CapabilityLabel)
		b.WriteString("\n")
	}
	b.WriteString("Answer with the backend id as the first word. You may add a short reason after it.")
	return b.String()
}

// splitResponse extracts the first whitespace-separated token and the
// remainder. The token is stripped of surrounding punctuation and lowercased
// so answers like `"Phi3",` still resolve.
func splitResponse(raw string) (token, reason string) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", ""
	}

	token = strings.ToLower(strings.Trim(fields[0], "\"'`.,;:!()[]"))
	reason = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), fields[0]))
	return token, reason
}
