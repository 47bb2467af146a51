//nolint:goconst // Test files use repeated strings for clarity
package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// refinementServer returns an httptest server whose chat endpoint
// always answers with the given JSON content string.
func refinementServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{
			"choices": [{"message": {"content": %q}}],
			"usage": {"total_tokens": 120}
		}`, content)
	}))
}

func panelInput() RefinementInput {
	return RefinementInput{
		Symbol:       "BTC",
		CurrentPrice: 67250.50,
		Direction:    "LONG",
		Confidence:   0.82,
		Regime:       "BULL",
		LongVotes:    31,
		ShortVotes:   9,
		Abstentions:  14,
		Agreement:    0.775,
	}
}

func TestPanel_Refine_BothSeats(t *testing.T) {
	primary := refinementServer(t, `{"refined_confidence": 0.85, "reasoning": "Tally and regime agree"}`)
	defer primary.Close()
	secondary := refinementServer(t, `{"refined_confidence": 0.83, "reasoning": "Slightly cautious on volume"}`)
	defer secondary.Close()

	panel := NewPanel([]PanelSeat{
		{Name: "claude-sonnet-4-20250514", Client: NewClient(ClientConfig{Endpoint: primary.URL, Timeout: 5 * time.Second})},
		{Name: "gpt-4-turbo", Client: NewClient(ClientConfig{Endpoint: secondary.URL, Timeout: 5 * time.Second})},
	})

	readings, err := panel.Refine(context.Background(), panelInput())

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("Expected 2 readings, got %d", len(readings))
	}

	// Seat order is preserved regardless of which goroutine finished first
	if readings[0].Model != "claude-sonnet-4-20250514" {
		t.Errorf("Expected first reading from primary seat, got %s", readings[0].Model)
	}
	if readings[1].Model != "gpt-4-turbo" {
		t.Errorf("Expected second reading from fallback seat, got %s", readings[1].Model)
	}

	if readings[0].Refinement.RefinedConfidence != 0.85 {
		t.Errorf("Expected refined confidence 0.85, got %v", readings[0].Refinement.RefinedConfidence)
	}
	if readings[1].Refinement.RefinedConfidence != 0.83 {
		t.Errorf("Expected refined confidence 0.83, got %v", readings[1].Refinement.RefinedConfidence)
	}

	if readings[0].Tokens != 120 {
		t.Errorf("Expected token usage recorded, got %d", readings[0].Tokens)
	}
}

func TestPanel_Refine_OneSeatFails(t *testing.T) {
	healthy := refinementServer(t, `{"refined_confidence": 0.80, "reasoning": "Setup holds"}`)
	defer healthy.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "Invalid request"}}`))
	}))
	defer broken.Close()

	panel := NewPanel([]PanelSeat{
		{Name: "claude-sonnet-4-20250514", Client: NewClient(ClientConfig{Endpoint: healthy.URL, Timeout: 5 * time.Second})},
		{Name: "gpt-4-turbo", Client: NewClient(ClientConfig{Endpoint: broken.URL, Timeout: 5 * time.Second})},
	})

	readings, err := panel.Refine(context.Background(), panelInput())

	if err != nil {
		t.Fatalf("One healthy seat should be enough, got error: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("Expected 1 reading, got %d", len(readings))
	}
	if readings[0].Model != "claude-sonnet-4-20250514" {
		t.Errorf("Expected reading from the healthy seat, got %s", readings[0].Model)
	}
}

func TestPanel_Refine_AllSeatsFail(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "Invalid request"}}`))
	}))
	defer broken.Close()

	panel := NewPanel([]PanelSeat{
		{Name: "claude-sonnet-4-20250514", Client: NewClient(ClientConfig{Endpoint: broken.URL, Timeout: 5 * time.Second})},
		{Name: "gpt-4-turbo", Client: NewClient(ClientConfig{Endpoint: broken.URL, Timeout: 5 * time.Second})},
	})

	_, err := panel.Refine(context.Background(), panelInput())

	if err == nil {
		t.Fatal("Expected error when every seat fails")
	}
	if err.Error() != "all 2 panel seats failed for BTC" {
		t.Errorf("Unexpected error message: %v", err)
	}
}

func TestPanel_Refine_NoSeats(t *testing.T) {
	panel := NewPanel(nil)

	_, err := panel.Refine(context.Background(), panelInput())

	if err == nil {
		t.Fatal("Expected error for empty panel")
	}
}

func TestPanel_Refine_MalformedJSONDropped(t *testing.T) {
	healthy := refinementServer(t, `{"refined_confidence": 0.79, "reasoning": "ok"}`)
	defer healthy.Close()
	garbled := refinementServer(t, `confidence looks fine to me, no JSON though`)
	defer garbled.Close()

	panel := NewPanel([]PanelSeat{
		{Name: "claude-sonnet-4-20250514", Client: NewClient(ClientConfig{Endpoint: healthy.URL, Timeout: 5 * time.Second})},
		{Name: "gpt-4-turbo", Client: NewClient(ClientConfig{Endpoint: garbled.URL, Timeout: 5 * time.Second})},
	})

	readings, err := panel.Refine(context.Background(), panelInput())

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("Expected the garbled seat to be dropped, got %d readings", len(readings))
	}
	if readings[0].Model != "claude-sonnet-4-20250514" {
		t.Errorf("Expected surviving reading from healthy seat, got %s", readings[0].Model)
	}
}

func TestPanel_Refine_NonFiniteConfidenceDropped(t *testing.T) {
	// NaN is not valid JSON, so a model emitting it produces an
	// unparseable verdict and the seat is dropped.
	healthy := refinementServer(t, `{"refined_confidence": 0.81, "reasoning": "ok"}`)
	defer healthy.Close()
	nanSeat := refinementServer(t, `{"refined_confidence": NaN, "reasoning": "broken"}`)
	defer nanSeat.Close()

	panel := NewPanel([]PanelSeat{
		{Name: "claude-sonnet-4-20250514", Client: NewClient(ClientConfig{Endpoint: healthy.URL, Timeout: 5 * time.Second})},
		{Name: "gpt-4-turbo", Client: NewClient(ClientConfig{Endpoint: nanSeat.URL, Timeout: 5 * time.Second})},
	})

	readings, err := panel.Refine(context.Background(), panelInput())

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("Expected 1 reading, got %d", len(readings))
	}
}

func TestPanel_Refine_RetriesBeforeGivingUp(t *testing.T) {
	var calls atomic.Int32
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "Rate limited"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "{\"refined_confidence\": 0.77, \"reasoning\": \"recovered\"}"}}],
			"usage": {"total_tokens": 90}
		}`))
	}))
	defer flaky.Close()

	panel := NewPanel([]PanelSeat{
		{Name: "claude-sonnet-4-20250514", Client: NewClient(ClientConfig{Endpoint: flaky.URL, Timeout: 5 * time.Second})},
	}, WithMaxRetries(2))

	readings, err := panel.Refine(context.Background(), panelInput())

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("Expected 1 reading, got %d", len(readings))
	}
	if readings[0].Refinement.RefinedConfidence != 0.77 {
		t.Errorf("Expected refined confidence 0.77, got %v", readings[0].Refinement.RefinedConfidence)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 calls (1 rate-limited + 1 success), got %d", calls.Load())
	}
}

func TestPanel_Seats(t *testing.T) {
	panel := NewPanel([]PanelSeat{
		{Name: "a", Client: NewClient(ClientConfig{Timeout: time.Second})},
		{Name: "b", Client: NewClient(ClientConfig{Timeout: time.Second})},
	})

	if panel.Seats() != 2 {
		t.Errorf("Expected 2 seats, got %d", panel.Seats())
	}
}
