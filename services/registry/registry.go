package registry

import (
	"strings"
	"sync"

	"github.com/upb/model-router/services"
)

// BackendDescriptor holds the registered metadata for one model-serving
// backend. Immutable after registration, except for the embedding vector
// which is primed once at startup by the embedding strategy.
type BackendDescriptor struct {
	// ID uniquely identifies the backend (normalized lowercase).
	ID string `json:"id"`

	// CapabilityLabel is the human-readable capability used for
	// classification ("science and mathematics", "creative writing").
	CapabilityLabel string `json:"capability"`

	// ModelID is the model the backend serves (e.g. "phi3", "gpt-4o-mini")
	ModelID string `json:"model"`

	// Provider names the chat client that dispatches to this backend
	// ("openai", "ollama").
	Provider string `json:"provider"`

	// Embedding is the capability label's vector, populated when the
	// embedding strategy primes the registry. Nil otherwise.
	Embedding []float32 `json:"-"`
}

// Registry is an ordered collection of backend descriptors. Registration
// happens once at startup; afterwards the registry is read-only and safe
// for concurrent reads. The last registered backend is the default.
type Registry struct {
	mu      sync.RWMutex
	ordered []*BackendDescriptor
	byID    map[string]int // normalized id -> insertion index
}

// New creates an empty backend registry
func New() *Registry {
	return &Registry{
		byID: make(map[string]int),
	}
}

// NormalizeID normalizes a backend id for registration and lookup
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Register adds a descriptor to the registry. The id is normalized before
// insertion. Returns ErrDuplicateBackend when the id is already present;
// the registry is left unchanged on failure.
func (r *Registry) Register(desc *BackendDescriptor) error {
	if desc == nil {
		return services.NewDomainError(services.ErrorTypeValidation, "descriptor cannot be nil", nil)
	}

	id := NormalizeID(desc.ID)
	if id == "" {
		return services.NewDomainError(services.ErrorTypeValidation, "backend id cannot be empty", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		return services.ErrDuplicateBackend
	}

	desc.ID = id
	r.byID[id] = len(r.ordered)
	r.ordered = append(r.ordered, desc)
	return nil
}

// Resolve returns the descriptor registered under id. Returns
// ErrUnknownBackend when absent.
func (r *Registry) Resolve(id string) (*BackendDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, exists := r.byID[NormalizeID(id)]
	if !exists {
		return nil, services.ErrUnknownBackend
	}
	return r.ordered[idx], nil
}

// ListAll returns the descriptors in insertion order. The returned slice is
// a fresh copy on every call, so callers can iterate it from the start
// without affecting each other.
func (r *Registry) ListAll() []*BackendDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*BackendDescriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Default returns the last registered backend. Returns ErrEmptyRegistry
// when nothing has been registered.
func (r *Registry) Default() (*BackendDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.ordered) == 0 {
		return nil, services.ErrEmptyRegistry
	}
	return r.ordered[len(r.ordered)-1], nil
}

// Count returns the number of registered backends
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.ordered)
}
