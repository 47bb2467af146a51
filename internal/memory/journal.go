package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EmbeddingFunc generates an embedding vector for text.
type EmbeddingFunc func(ctx context.Context, text string) ([]float32, error)

// Entry is the raw material for one analysis memory: the consensus the
// engine reached for a coin plus the panel's reasoning, if any.
type Entry struct {
	RunID       *uuid.UUID
	Coin        string
	Direction   string
	Confidence  float64
	Regime      string
	LongVotes   int
	ShortVotes  int
	Abstentions int
	Flags       []string
	Reasoning   string
}

// ComposeSummary renders an entry as the natural-language text that is
// embedded and stored. Deterministic so identical analyses embed to
// identical vectors.
func ComposeSummary(e Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s at confidence %.2f in %s regime.", e.Coin, e.Direction, e.Confidence, e.Regime)
	fmt.Fprintf(&b, " Bot tally %d LONG / %d SHORT / %d abstained.", e.LongVotes, e.ShortVotes, e.Abstentions)

	if len(e.Flags) > 0 {
		fmt.Fprintf(&b, " Flags: %s.", strings.Join(e.Flags, ", "))
	}
	if e.Reasoning != "" {
		fmt.Fprintf(&b, " Reviewer: %s", e.Reasoning)
	}

	return b.String()
}

// archive is the slice of Store the journal needs.
type archive interface {
	Save(ctx context.Context, mem *AnalysisMemory) error
	FindSimilar(ctx context.Context, embedding []float32, limit int, filters ...Filter) ([]*AnalysisMemory, error)
	Recent(ctx context.Context, coin string, limit int) ([]*AnalysisMemory, error)
}

// Journal writes analysis memories after refinement and recalls
// similar past analyses into new refinement prompts.
type Journal struct {
	store       archive
	embed       EmbeddingFunc
	recallLimit int
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithRecallLimit sets how many memories a recall returns by default.
func WithRecallLimit(n int) JournalOption {
	return func(j *Journal) {
		if n > 0 {
			j.recallLimit = n
		}
	}
}

// NewJournal creates a journal over a memory store. The embedding
// function may be nil, in which case memories are stored without
// vectors and recalled by recency only.
func NewJournal(store *Store, embed EmbeddingFunc, opts ...JournalOption) *Journal {
	j := &Journal{
		store:       store,
		embed:       embed,
		recallLimit: 5,
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

// Record composes, embeds, and stores one analysis memory. An
// embedding failure is downgraded to a recency-only memory rather than
// losing the analysis.
func (j *Journal) Record(ctx context.Context, e Entry) (*AnalysisMemory, error) {
	if e.Coin == "" {
		return nil, fmt.Errorf("journal entry requires a coin symbol")
	}

	summary := ComposeSummary(e)

	var embedding []float32
	if j.embed != nil {
		vec, err := j.embed(ctx, summary)
		if err != nil {
			log.Warn().
				Err(err).
				Str("coin", e.Coin).
				Msg("Embedding failed, storing memory without vector")
		} else {
			embedding = vec
		}
	}

	mem := &AnalysisMemory{
		Coin:       e.Coin,
		RunID:      e.RunID,
		Summary:    summary,
		Regime:     e.Regime,
		Direction:  e.Direction,
		Confidence: e.Confidence,
		Embedding:  embedding,
	}

	if err := j.store.Save(ctx, mem); err != nil {
		return nil, err
	}

	return mem, nil
}

// Recall returns past analyses for a coin that resemble the query
// text, nearest first. Falls back to the latest memories when no
// embedding can be produced.
func (j *Journal) Recall(ctx context.Context, coin, query string, limit int) ([]*AnalysisMemory, error) {
	if limit <= 0 {
		limit = j.recallLimit
	}

	if j.embed != nil {
		vec, err := j.embed(ctx, query)
		if err == nil {
			return j.store.FindSimilar(ctx, vec, limit, CoinFilter{Coin: coin})
		}

		log.Warn().
			Err(err).
			Str("coin", coin).
			Msg("Embedding failed, recalling by recency")
	}

	return j.store.Recent(ctx, coin, limit)
}
