package tei

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

const defaultBaseURL = "http://localhost:8080"

// Embedder implements the EmbeddingClient interface against a Hugging Face
// Text Embeddings Inference server. TEI serves a single model, so there is
// no model field on requests.
type Embedder struct {
	config     providers.ClientConfig
	httpClient *http.Client
}

// NewEmbedder creates a new TEI embedder
func NewEmbedder(config providers.ClientConfig) *Embedder {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Embedder{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider name
func (e *Embedder) Name() string {
	return "tei"
}

// Embed returns the embedding vector for a single text
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(embedRequest{Inputs: []string{text}})
	if err != nil {
		return nil, providers.NewProviderError(e.Name(), "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	respBody, statusCode, err := e.doWithRetry(ctx, "/embed", reqBody)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, providers.NewProviderError(e.Name(), "API_ERROR", strings.TrimSpace(string(respBody)), statusCode, statusCode >= 500, nil)
	}

	// TEI returns one vector per input
	var vectors [][]float32
	if err := json.Unmarshal(respBody, &vectors); err != nil {
		return nil, providers.NewProviderError(e.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", statusCode, false, err)
	}

	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, providers.NewProviderError(e.Name(), "EMPTY_RESPONSE", "embedding response contained no data", statusCode, false, nil)
	}

	return vectors[0], nil
}

// IsAvailable checks if the TEI server is reachable
func (e *Embedder) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", e.config.BaseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// doWithRetry executes a JSON POST, retrying on transport errors and 5xx
// responses
func (e *Embedder) doWithRetry(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	var lastErr error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(e.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, 0, providers.NewProviderError(e.Name(), "CANCELLED", "request cancelled", 0, false, ctx.Err())
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", e.config.BaseURL+path, strings.NewReader(string(body)))
		if err != nil {
			return nil, 0, providers.NewProviderError(e.Name(), "REQUEST_ERROR", "Failed to create request", 0, false, err)
		}

		httpReq.Header.Set("Content-Type", "application/json")

		httpResp, err := e.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, readErr := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if readErr != nil {
			return nil, httpResp.StatusCode, providers.NewProviderError(e.Name(), "READ_ERROR", "Failed to read response", httpResp.StatusCode, false, readErr)
		}

		if httpResp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: status %d", httpResp.StatusCode)
			continue
		}

		return respBody, httpResp.StatusCode, nil
	}

	return nil, 0, providers.NewProviderError(e.Name(), "HTTP_ERROR", "HTTP request failed", 0, true, lastErr)
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}
