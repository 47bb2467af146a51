package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// EmbeddingClient talks to an OpenAI-compatible embeddings endpoint.
// The analysis memory uses it to vectorize refinement write-ups for
// similarity recall.
type EmbeddingClient struct {
	endpoint   string
	apiKey     string
	model      string
	dimensions int
	timeout    time.Duration
	httpClient *http.Client
}

// EmbeddingConfig contains configuration for the embedding client
type EmbeddingConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// NewEmbeddingClient creates a new embedding client
func NewEmbeddingClient(config EmbeddingConfig) *EmbeddingClient {
	if config.Endpoint == "" {
		config.Endpoint = "http://localhost:8080/v1/embeddings"
	}
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.Dimensions == 0 {
		config.Dimensions = 1536
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	return &EmbeddingClient{
		endpoint:   config.Endpoint,
		apiKey:     config.APIKey,
		model:      config.Model,
		dimensions: config.Dimensions,
		timeout:    config.Timeout,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Dimensions returns the expected vector width
func (ec *EmbeddingClient) Dimensions() int {
	return ec.dimensions
}

// Embed vectorizes a single text
func (ec *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := ec.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch vectorizes texts in one request. The result slice is in
// input order regardless of the order the API returns.
func (ec *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}

	request := EmbeddingRequest{
		Model: ec.model,
		Input: texts,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", ec.endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if ec.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+ec.apiKey)
	}

	start := time.Now()
	resp, err := ec.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, classifyHTTPError(resp.StatusCode, errResp.Error.Message)
		}
		return nil, classifyHTTPError(resp.StatusCode, string(body))
	}

	var embResp EmbeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(embResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embResp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range embResp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		if ec.dimensions > 0 && len(item.Embedding) != ec.dimensions {
			return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(item.Embedding), ec.dimensions)
		}
		vectors[item.Index] = item.Embedding
	}

	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}

	log.Debug().
		Str("model", ec.model).
		Int("texts", len(texts)).
		Int("tokens", embResp.Usage.TotalTokens).
		Dur("duration", time.Since(start)).
		Msg("Embeddings request completed")

	return vectors, nil
}
