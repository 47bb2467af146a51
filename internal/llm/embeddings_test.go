//nolint:goconst // Test files use repeated strings for clarity
package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEmbeddingClient_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req EmbeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req) // Test mock - decode error handled by test assertions

		if req.Model != "text-embedding-3-small" {
			t.Errorf("Expected model text-embedding-3-small, got %s", req.Model)
		}
		if len(req.Input) != 1 || req.Input[0] != "BTC LONG consensus during uptrend" {
			t.Errorf("Unexpected input: %v", req.Input)
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.1, 0.2, 0.3]}],
			"usage": {"prompt_tokens": 8, "total_tokens": 8}
		}`))
	}))
	defer server.Close()

	ec := NewEmbeddingClient(EmbeddingConfig{
		Endpoint:   server.URL,
		Dimensions: 3,
		Timeout:    5 * time.Second,
	})

	vec, err := ec.Embed(context.Background(), "BTC LONG consensus during uptrend")

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("Expected 3 dimensions, got %d", len(vec))
	}
	if vec[0] != 0.1 || vec[1] != 0.2 || vec[2] != 0.3 {
		t.Errorf("Unexpected vector: %v", vec)
	}
}

func TestEmbeddingClient_EmbedBatch_OrderedByIndex(t *testing.T) {
	// API may return items out of order; client must reorder by index
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [2.0, 2.0]},
				{"object": "embedding", "index": 0, "embedding": [1.0, 1.0]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer server.Close()

	ec := NewEmbeddingClient(EmbeddingConfig{
		Endpoint:   server.URL,
		Dimensions: 2,
		Timeout:    5 * time.Second,
	})

	vecs, err := ec.EmbedBatch(context.Background(), []string{"first", "second"})

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("Expected 2 vectors, got %d", len(vecs))
	}
	if vecs[0][0] != 1.0 {
		t.Errorf("Expected first vector reordered to slot 0, got %v", vecs[0])
	}
	if vecs[1][0] != 2.0 {
		t.Errorf("Expected second vector in slot 1, got %v", vecs[1])
	}
}

func TestEmbeddingClient_EmbedBatch_Errors(t *testing.T) {
	t.Run("Empty input", func(t *testing.T) {
		ec := NewEmbeddingClient(EmbeddingConfig{Timeout: time.Second})

		_, err := ec.EmbedBatch(context.Background(), nil)
		if err == nil {
			t.Error("Expected error for empty input")
		}
	})

	t.Run("Count mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{
				"data": [{"object": "embedding", "index": 0, "embedding": [0.1]}]
			}`))
		}))
		defer server.Close()

		ec := NewEmbeddingClient(EmbeddingConfig{Endpoint: server.URL, Timeout: 5 * time.Second})

		_, err := ec.EmbedBatch(context.Background(), []string{"a", "b"})
		if err == nil {
			t.Fatal("Expected error for count mismatch")
		}
		if err.Error() != "expected 2 embeddings, got 1" {
			t.Errorf("Unexpected error message: %v", err)
		}
	})

	t.Run("Dimension mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{
				"data": [{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]}]
			}`))
		}))
		defer server.Close()

		ec := NewEmbeddingClient(EmbeddingConfig{
			Endpoint:   server.URL,
			Dimensions: 1536,
			Timeout:    5 * time.Second,
		})

		_, err := ec.EmbedBatch(context.Background(), []string{"a"})
		if err == nil {
			t.Fatal("Expected error for dimension mismatch")
		}
		if err.Error() != "embedding has 2 dimensions, expected 1536" {
			t.Errorf("Unexpected error message: %v", err)
		}
	})

	t.Run("API error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "Rate limit exceeded"}}`))
		}))
		defer server.Close()

		ec := NewEmbeddingClient(EmbeddingConfig{Endpoint: server.URL, Timeout: 5 * time.Second})

		_, err := ec.EmbedBatch(context.Background(), []string{"a"})
		if err == nil {
			t.Fatal("Expected error for API failure")
		}

		llmErr, ok := err.(*LLMError)
		if !ok {
			t.Fatalf("Expected *LLMError, got %T", err)
		}
		if llmErr.StatusCode != http.StatusTooManyRequests {
			t.Errorf("Expected status 429, got %d", llmErr.StatusCode)
		}
		if !llmErr.IsRetryable() {
			t.Error("Rate limit error should be retryable")
		}
	})
}

func TestEmbeddingClient_Defaults(t *testing.T) {
	ec := NewEmbeddingClient(EmbeddingConfig{})

	if ec.Dimensions() != 1536 {
		t.Errorf("Expected default 1536 dimensions, got %d", ec.Dimensions())
	}
}
