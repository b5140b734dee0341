package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/model-router/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	defaultEmbeddingModel = "text-embedding-3-small"
)

// Adapter implements the ChatClient and EmbeddingClient interfaces against
// an OpenAI-compatible API.
type Adapter struct {
	config         providers.ClientConfig
	embeddingModel string
	httpClient     *http.Client
}

// NewAdapter creates a new OpenAI adapter
func NewAdapter(config providers.ClientConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
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
	return "openai"
}

// ChatCompletion performs a chat completion request
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	openaiReq := a.buildChatRequest(req)

	reqBody, err := json.Marshal(openaiReq)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	respBody, statusCode, err := a.doWithRetry(ctx, "POST", "/chat/completions", reqBody)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, a.handleErrorResponse(statusCode, respBody)
	}

	var openaiResp chatResponse
	if err := json.Unmarshal(respBody, &openaiResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", statusCode, false, err)
	}

	return a.convertChatResponse(&openaiResp, time.Since(startTime)), nil
}

// Complete performs a single blocking completion and returns the raw
// assistant text. Used by the keyword strategy for classification.
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
	reqBody, err := json.Marshal(embeddingRequest{
		Model: a.embeddingModel,
		Input: []string{text},
	})
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	respBody, statusCode, err := a.doWithRetry(ctx, "POST", "/embeddings", reqBody)
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

	if len(embResp.Data) == 0 {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "embedding response contained no data", statusCode, false, nil)
	}

	return embResp.Data[0].Embedding, nil
}

// IsAvailable checks if the provider is currently available
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	// Simple health check - try to list models
	req, err := http.NewRequestWithContext(ctx, "GET", a.config.BaseURL+"/models", nil)
	if err != nil {
		return false
	}

	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// doWithRetry executes an authenticated JSON request, retrying on transport
// errors and 5xx responses. The request is rebuilt per attempt so the body
// can be re-read.
func (a *Adapter) doWithRetry(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var lastErr error

	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(a.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, 0, providers.NewProviderError(a.Name(), "CANCELLED", "request cancelled", 0, false, ctx.Err())
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, strings.NewReader(string(body)))
		if err != nil {
			return nil, 0, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "Failed to create request", 0, false, err)
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
		for k, v := range a.config.Headers {
			httpReq.Header.Set(k, v)
		}

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

// buildChatRequest converts the unified request to OpenAI format
func (a *Adapter) buildChatRequest(req *providers.ChatRequest) *chatRequest {
	openaiReq := &chatRequest{
		Model:    req.Model,
		Messages: make([]chatMessage, len(req.Messages)),
	}

	for i, msg := range req.Messages {
		openaiReq.Messages[i] = chatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	if req.MaxTokens > 0 {
		openaiReq.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		openaiReq.Temperature = &req.Temperature
	}

	return openaiReq
}

// convertChatResponse converts the OpenAI response to the unified format
func (a *Adapter) convertChatResponse(openaiResp *chatResponse, latency time.Duration) *providers.ChatResponse {
	resp := &providers.ChatResponse{
		ID:       openaiResp.ID,
		Model:    openaiResp.Model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, len(openaiResp.Choices)),
		Usage: providers.Usage{
			PromptTokens:     openaiResp.Usage.PromptTokens,
			CompletionTokens: openaiResp.Usage.CompletionTokens,
			TotalTokens:      openaiResp.Usage.TotalTokens,
		},
		Latency: latency,
		Created: time.Unix(openaiResp.Created, 0),
	}

	for i, choice := range openaiResp.Choices {
		resp.Choices[i] = providers.Choice{
			Index: choice.Index,
			Message: providers.Message{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
			},
			FinishReason: choice.FinishReason,
		}
	}

	return resp
}

// handleErrorResponse handles OpenAI error responses
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", string(body), statusCode, false, err)
	}

	retryable := statusCode >= 500 || statusCode == 429

	return providers.NewProviderError(
		a.Name(),
		errResp.Error.Type,
		errResp.Error.Message,
		statusCode,
		retryable,
		errors.New(errResp.Error.Message),
	)
}

// OpenAI-specific request/response types

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
