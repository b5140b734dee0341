package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/model-router/services/providers"
)

const (
	defaultBaseURL = "http://localhost:11434"

	defaultEmbeddingModel = "nomic-embed-text"
)

// Adapter implements the ChatClient and EmbeddingClient interfaces against a
// local Ollama server. Ollama has no authentication and streams by default,
// so every request pins stream to false.
type Adapter struct {
	config         providers.ClientConfig
	embeddingModel string
	httpClient     *http.Client
}

// NewAdapter creates a new Ollama adapter
func NewAdapter(config providers.ClientConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &Adapter{
		config:         config,
		embeddingModel: defaultEmbeddingModel,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// WithEmbeddingModel overrides the model used for embedding requests
func (a *Adapter) WithEmbeddingModel(model string) *Adapter {
	if model != "" {
		a.embeddingModel = model
	}
	return a
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return "ollama"
}

// ChatCompletion performs a chat completion request
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	ollamaReq := chatRequest{
		Model:    req.Model,
		Stream:   false,
		Messages: make([]chatMessage, len(req.Messages)),
	}
	for i, msg := range req.Messages {
		ollamaReq.Messages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}
	if req.Temperature > 0 {
		ollamaReq.Options = &chatOptions{Temperature: req.Temperature}
	}

	reqBody, err := json.Marshal(ollamaReq)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	respBody, statusCode, err := a.doWithRetry(ctx, "/api/chat", reqBody)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, a.handleErrorResponse(statusCode, respBody)
	}

	var ollamaResp chatResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", statusCode, false, err)
	}

	return &providers.ChatResponse{
		ID:       fmt.Sprintf("ollama-%d", startTime.UnixNano()),
		Model:    ollamaResp.Model,
		Provider: a.Name(),
		Choices: []providers.Choice{
			{
				Index:        0,
				Message:      providers.Message{Role: ollamaResp.Message.Role, Content: ollamaResp.Message.Content},
				FinishReason: ollamaResp.DoneReason,
			},
		},
		Usage: providers.Usage{
			PromptTokens:     ollamaResp.PromptEvalCount,
			CompletionTokens: ollamaResp.EvalCount,
			TotalTokens:      ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
		},
		Latency: time.Since(startTime),
		Created: startTime,
	}, nil
}

// Complete performs a single blocking completion and returns the raw
// assistant text
func (a *Adapter) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	resp, err := a.ChatCompletion(ctx, &providers.ChatRequest{
		Model: model,
		Messages: []providers.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "completion returned no choices", 0, false, nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for a single text
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(embeddingRequest{Model: a.embeddingModel, Prompt: text})
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	respBody, statusCode, err := a.doWithRetry(ctx, "/api/embeddings", reqBody)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, a.handleErrorResponse(statusCode, respBody)
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", statusCode, false, err)
	}

	if len(embResp.Embedding) == 0 {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "embedding response contained no data", statusCode, false, nil)
	}

	vec := make([]float32, len(embResp.Embedding))
	for i, v := range embResp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// IsAvailable checks if the local server is reachable
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", a.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// doWithRetry executes a JSON POST, retrying on transport errors and 5xx
// responses. The request is rebuilt per attempt so the body can be re-read.
func (a *Adapter) doWithRetry(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	var lastErr error

	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(a.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, 0, providers.NewProviderError(a.Name(), "CANCELLED", "request cancelled", 0, false, ctx.Err())
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", a.config.BaseURL+path, strings.NewReader(string(body)))
		if err != nil {
			return nil, 0, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "Failed to create request", 0, false, err)
		}

		httpReq.Header.Set("Content-Type", "application/json")

		httpResp, err := a.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, readErr := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if readErr != nil {
			return nil, httpResp.StatusCode, providers.NewProviderError(a.Name(), "READ_ERROR", "Failed to read response", httpResp.StatusCode, false, readErr)
		}

		if httpResp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: status %d", httpResp.StatusCode)
			continue
		}

		return respBody, httpResp.StatusCode, nil
	}

	return nil, 0, providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, true, lastErr)
}

// handleErrorResponse handles Ollama error responses
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", string(body), statusCode, statusCode >= 500, nil)
	}

	// Ollama reports a missing model as 404
	code := "API_ERROR"
	if statusCode == http.StatusNotFound {
		code = "MODEL_NOT_FOUND"
	}

	return providers.NewProviderError(a.Name(), code, errResp.Error, statusCode, statusCode >= 500, nil)
}

// Ollama-specific request/response types

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

type errorResponse struct {
	Error string `json:"error"`
}
