package routing

import (
	"context"
	"time"

	"github.com/upb/model-router/services/registry"
)

// Decision records the outcome of one routing call
type Decision struct {
	// SelectedID is the id of the chosen backend
	SelectedID string `json:"selected_id"`

	// Strategy that produced the decision ("keyword", "embedding")
	Strategy string `json:"strategy"`

	// Reason is a human-readable explanation: the classifier's stated
	// reason, the winning similarity score, or the fallback cause.
	Reason string `json:"reason"`

	// FallbackUsed is true when the strategy failed and the router degraded
	// to the default backend.
	FallbackUsed bool `json:"fallback_used"`

	// DecidedAt is when the decision was made
	DecidedAt time.Time `json:"decided_at"`
}

// Strategy selects a backend for a prompt. Implementations return a
// recoverable routing or external error when they cannot decide; the router
// degrades to the default backend in that case.
type Strategy interface {
	// Name identifies the strategy in decisions and logs
	Name() string

	// Select returns the chosen descriptor and a reason string
	Select(ctx context.Context, prompt string) (*registry.BackendDescriptor, string, error)
}

// DecisionRecorder receives decisions for audit logging. Recording is
// best-effort and must not block or fail the routing path.
type DecisionRecorder interface {
	Record(ctx context.Context, decision *Decision, prompt string)
}
