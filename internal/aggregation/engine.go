package aggregation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/bots"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/llm"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/memory"
)

// refiner is the review-panel surface the engine consumes. *llm.Panel
// satisfies it.
type refiner interface {
	Refine(ctx context.Context, in llm.RefinementInput) ([]llm.Reading, error)
}

// journal is the analysis-memory surface the engine consumes.
// *memory.Journal satisfies it.
type journal interface {
	Record(ctx context.Context, e memory.Entry) (*memory.AnalysisMemory, error)
	Recall(ctx context.Context, coin, query string, limit int) ([]*memory.AnalysisMemory, error)
}

// Engine wires the pure pipeline to its impure edges: the AI review
// panel and the analysis journal. Both are optional; with neither the
// engine degrades to Aggregate followed by Build.
type Engine struct {
	panel       refiner
	journal     journal
	minRefine   float64
	recallLimit int
}

// EngineOption customizes engine behavior.
type EngineOption func(*Engine)

// WithRefineThreshold overrides the confidence floor below which the
// panel is not consulted.
func WithRefineThreshold(v float64) EngineOption {
	return func(e *Engine) {
		if v > 0 {
			e.minRefine = v
		}
	}
}

// WithRecallLimit caps how many past analyses are pulled into the
// refinement prompt.
func WithRecallLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.recallLimit = n
		}
	}
}

// NewEngine builds an engine. Either dependency may be nil: no panel
// means drafts ship unrefined, no journal means nothing is recalled
// or recorded.
func NewEngine(panel *llm.Panel, jr *memory.Journal, opts ...EngineOption) *Engine {
	e := &Engine{
		minRefine:   refineMinConfidence,
		recallLimit: 5,
	}
	if panel != nil {
		e.panel = panel
	}
	if jr != nil {
		e.journal = jr
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs the full pipeline for one coin: aggregate, refine when
// the draft clears the confidence floor, journal the decision, and
// shape the rows. A nil result means the coin produced no
// recommendation and nothing should be persisted for it.
func (e *Engine) Process(ctx context.Context, in Input) *Result {
	d := Aggregate(in)
	if d == nil {
		log.Debug().
			Str("symbol", in.Coin.Symbol).
			Int("votes", len(in.Votes)).
			Msg("No signal after aggregation")
		return nil
	}

	e.refine(ctx, in, d)
	e.record(ctx, in, d)

	return Build(in, d, time.Now())
}

// refine consults the panel when the draft clears the floor and folds
// the verdicts back into the draft. A failed consultation leaves the
// draft untouched.
func (e *Engine) refine(ctx context.Context, in Input, d *Draft) {
	if e.panel == nil || d.Confidence < e.minRefine {
		return
	}

	readings, err := e.panel.Refine(ctx, llm.RefinementInput{
		Symbol:           in.Coin.Symbol,
		CurrentPrice:     in.Coin.Price,
		Direction:        string(d.Direction),
		Confidence:       d.Confidence,
		Regime:           string(d.Regime.Label),
		RegimeConfidence: d.Regime.Confidence,
		AlignmentScore:   d.Alignment,
		LongVotes:        d.LongVotes,
		ShortVotes:       d.ShortVotes,
		Abstentions:      d.Abstentions,
		Agreement:        d.Agreement,
		Notes:            d.Flags,
		Sentiment:        sentimentSummary(in.Features),
		OnChain:          onChainSummary(in.Features),
		Past:             e.recall(ctx, in, d),
	})
	if err != nil || len(readings) == 0 {
		log.Warn().
			Err(err).
			Str("symbol", in.Coin.Symbol).
			Msg("AI refinement unavailable, keeping draft confidence")
		return
	}

	applyReadings(d, readings)

	log.Debug().
		Str("symbol", in.Coin.Symbol).
		Int("seats", len(readings)).
		Float64("confidence", d.Confidence).
		Msg("Draft refined")
}

// applyReadings folds panel verdicts into the draft. Verdict
// confidences are clipped to the ceiling first; with two seats the
// disagreement rules apply, a lone verdict stands as is. The primary
// seat supplies the narrative fields.
func applyReadings(d *Draft, readings []llm.Reading) {
	a := clamp(readings[0].Refinement.RefinedConfidence, 0, refineCeiling)

	refined := a
	if len(readings) >= 2 {
		b := clamp(readings[1].Refinement.RefinedConfidence, 0, refineCeiling)
		switch diff := math.Abs(a - b); {
		case diff > refineDisagreement:
			refined = math.Min(a, b)
			d.Flags = appendFlag(d.Flags, FlagHighUncertainty)
		case diff <= refineAgreementBand:
			refined = math.Min((a+b)/2*refineAgreementBoost, refineCeiling)
		default:
			refined = (a + b) / 2
		}
	}

	ai := readings[0].Refinement
	d.Confidence = refined
	d.AI = &ai
	d.Refined = true
}

// recall pulls similar past analyses for the coin into the prompt.
// Best-effort: a recall failure just means an emptier prompt.
func (e *Engine) recall(ctx context.Context, in Input, d *Draft) []llm.PastAnalysis {
	if e.journal == nil {
		return nil
	}

	query := memory.ComposeSummary(memory.Entry{
		Coin:        in.Coin.Symbol,
		Direction:   string(d.Direction),
		Confidence:  d.Confidence,
		Regime:      string(d.Regime.Label),
		LongVotes:   d.LongVotes,
		ShortVotes:  d.ShortVotes,
		Abstentions: d.Abstentions,
		Flags:       d.Flags,
	})

	mems, err := e.journal.Recall(ctx, in.Coin.Symbol, query, e.recallLimit)
	if err != nil {
		log.Warn().
			Err(err).
			Str("symbol", in.Coin.Symbol).
			Msg("Past-analysis recall failed")
		return nil
	}

	past := make([]llm.PastAnalysis, 0, len(mems))
	for _, m := range mems {
		if m == nil {
			continue
		}
		content := m.Summary
		if m.Resolved() {
			content += " Outcome: " + *m.OutcomeNote
		}
		past = append(past, llm.PastAnalysis{
			Content:    content,
			Direction:  m.Direction,
			Confidence: m.Confidence,
			Regime:     m.Regime,
			CreatedAt:  m.CreatedAt,
		})
	}
	return past
}

// record journals the final call so later scans can recall how this
// setup read. Best-effort: a failed write never blocks the scan.
func (e *Engine) record(ctx context.Context, in Input, d *Draft) {
	if e.journal == nil {
		return
	}

	entry := memory.Entry{
		Coin:        in.Coin.Symbol,
		Direction:   string(d.Direction),
		Confidence:  d.Confidence,
		Regime:      string(d.Regime.Label),
		LongVotes:   d.LongVotes,
		ShortVotes:  d.ShortVotes,
		Abstentions: d.Abstentions,
		Flags:       d.Flags,
	}
	if in.RunID != uuid.Nil {
		runID := in.RunID
		entry.RunID = &runID
	}
	if d.AI != nil {
		entry.Reasoning = d.AI.Reasoning
	}

	if _, err := e.journal.Record(ctx, entry); err != nil {
		log.Warn().
			Err(err).
			Str("symbol", in.Coin.Symbol).
			Msg("Failed to journal analysis")
	}
}

// appendFlag adds a flag unless it is already present.
func appendFlag(flags []string, flag string) []string {
	for _, f := range flags {
		if f == flag {
			return flags
		}
	}
	return append(flags, flag)
}

// sentimentSummary renders the social read for the prompt, empty when
// the upstream fetch came back with nothing.
func sentimentSummary(fs *bots.FeatureSet) string {
	if fs == nil || fs.Sentiment == nil || fs.Sentiment.Classification == "" {
		return ""
	}
	if fs.Sentiment.Score != nil {
		return fmt.Sprintf("%s (score %.2f)", fs.Sentiment.Classification, *fs.Sentiment.Score)
	}
	return fs.Sentiment.Classification
}

// onChainSummary renders the on-chain read for the prompt.
func onChainSummary(fs *bots.FeatureSet) string {
	if fs == nil || fs.OnChain == nil || fs.OnChain.OverallSignal == "" {
		return ""
	}
	if fs.OnChain.WhaleActivity != nil {
		return fmt.Sprintf("%s (whale activity %.0f/100)", fs.OnChain.OverallSignal, *fs.OnChain.WhaleActivity)
	}
	return fs.OnChain.OverallSignal
}
