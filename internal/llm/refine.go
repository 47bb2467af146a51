package llm

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Panel submits the same refinement prompt to independent models and
// collects whatever verdicts come back. Disagreement handling is the
// caller's business; the panel only guarantees that each Reading is a
// parsed, finite verdict and that seat order is preserved.
type Panel struct {
	seats      []PanelSeat
	maxRetries int
}

// PanelSeat is one independent model on the panel. Client may be a
// bare Client or a FallbackClient.
type PanelSeat struct {
	Name   string
	Client LLMClient
}

// PanelOption customizes panel behavior
type PanelOption func(*Panel)

// WithMaxRetries sets per-seat retry count (default 1)
func WithMaxRetries(n int) PanelOption {
	return func(p *Panel) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

// NewPanel creates a refinement panel over the given seats
func NewPanel(seats []PanelSeat, opts ...PanelOption) *Panel {
	p := &Panel{
		seats:      seats,
		maxRetries: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Seats returns the number of models on the panel
func (p *Panel) Seats() int {
	return len(p.seats)
}

// Refine asks every seat to review the draft and returns the verdicts
// that parsed, in seat order. An error is returned only when no seat
// produced a usable verdict.
func (p *Panel) Refine(ctx context.Context, in RefinementInput) ([]Reading, error) {
	if len(p.seats) == 0 {
		return nil, fmt.Errorf("refinement panel has no seats")
	}

	userPrompt := BuildRefinementPrompt(in)

	log.Debug().
		Str("symbol", in.Symbol).
		Str("direction", in.Direction).
		Float64("confidence", in.Confidence).
		Int("seats", len(p.seats)).
		Int("prompt_tokens_est", estimateTokens(userPrompt)).
		Msg("Consulting refinement panel")

	results := make([]*Reading, len(p.seats))
	var wg sync.WaitGroup

	for i, seat := range p.seats {
		wg.Add(1)
		go func(idx int, seat PanelSeat) {
			defer wg.Done()
			reading, err := p.consult(ctx, seat, userPrompt)
			if err != nil {
				log.Warn().
					Err(err).
					Str("symbol", in.Symbol).
					Str("model", seat.Name).
					Msg("Panel seat produced no verdict")
				return
			}
			results[idx] = reading
		}(i, seat)
	}

	wg.Wait()

	readings := make([]Reading, 0, len(p.seats))
	for _, r := range results {
		if r != nil {
			readings = append(readings, *r)
		}
	}

	if len(readings) == 0 {
		return nil, fmt.Errorf("all %d panel seats failed for %s", len(p.seats), in.Symbol)
	}

	return readings, nil
}

// consult runs one seat end to end: completion, JSON parse, sanity check
func (p *Panel) consult(ctx context.Context, seat PanelSeat, userPrompt string) (*Reading, error) {
	messages := []ChatMessage{
		{Role: "system", Content: refinementSystemPrompt},
		{Role: "user", Content: userPrompt},
	}

	start := time.Now()
	resp, err := seat.Client.CompleteWithRetry(ctx, messages, p.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}
	latency := time.Since(start)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	var refinement Refinement
	if err := seat.Client.ParseJSONResponse(resp.Choices[0].Message.Content, &refinement); err != nil {
		return nil, fmt.Errorf("unparseable verdict: %w", err)
	}

	if math.IsNaN(refinement.RefinedConfidence) || math.IsInf(refinement.RefinedConfidence, 0) {
		return nil, fmt.Errorf("non-finite refined confidence")
	}

	log.Debug().
		Str("model", seat.Name).
		Float64("refined_confidence", refinement.RefinedConfidence).
		Dur("latency", latency).
		Int("tokens", resp.Usage.TotalTokens).
		Msg("Panel seat verdict received")

	return &Reading{
		Model:      seat.Name,
		Refinement: refinement,
		Latency:    latency,
		Tokens:     resp.Usage.TotalTokens,
	}, nil
}
