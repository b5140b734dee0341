package providers

import (
	"context"
	"time"
)

// ChatClient represents a unified chat-completion collaborator. Routing
// uses Complete for classification; dispatch uses ChatCompletion.
type ChatClient interface {
	// Name returns the client name (e.g., "openai", "ollama")
	Name() string

	// ChatCompletion performs a chat completion request
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Complete performs a single blocking completion with a system and a
	// user prompt and returns the raw assistant text.
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)

	// IsAvailable checks if the collaborator is currently reachable
	IsAvailable(ctx context.Context) bool
}

// EmbeddingClient represents a unified embedding collaborator. Vectors have
// a fixed dimensionality per deployment.
type EmbeddingClient interface {
	// Name returns the client name (e.g., "tei", "openai")
	Name() string

	// Embed returns the embedding vector for a single text
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChatRequest represents a unified chat completion request
type ChatRequest struct {
	// Model identifier (e.g., "phi3", "gpt-4o-mini")
	Model string `json:"model"`

	// Messages in the conversation
	Messages []Message `json:"messages"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// Metadata for tracking and logging
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// ChatResponse represents a unified chat completion response
type ChatResponse struct {
	// ID is the unique identifier for this completion
	ID string `json:"id"`

	// Model used for the completion
	Model string `json:"model"`

	// Choices contains the completion results
	Choices []Choice `json:"choices"`

	// Usage statistics
	Usage Usage `json:"usage"`

	// Provider that handled the request
	Provider string `json:"provider"`

	// Latency of the request
	Latency time.Duration `json:"latency"`

	// Created timestamp
	Created time.Time `json:"created"`
}

// Choice represents a completion choice
type Choice struct {
	Index int `json:"index"`

	// Message contains the response
	Message Message `json:"message"`

	// FinishReason indicates why the completion finished ("stop", "length")
	FinishReason string `json:"finish_reason"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ClientConfig holds common configuration for provider clients
type ClientConfig struct {
	// APIKey for authentication (empty for local servers)
	APIKey string

	// BaseURL for the API
	BaseURL string

	// Timeout for requests
	Timeout time.Duration

	// MaxRetries for failed requests
	MaxRetries int

	// RetryDelay between retries
	RetryDelay time.Duration

	// Additional headers
	Headers map[string]string
}

// DefaultClientConfig returns a sensible default configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		Headers:    make(map[string]string),
	}
}

// ProviderError represents an error from a collaborator
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if provErr, ok := err.(*ProviderError); ok {
		return provErr.Retryable
	}
	return false
}
