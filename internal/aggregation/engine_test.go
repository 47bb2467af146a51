package aggregation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/bots"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/indicators"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/llm"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/market"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/memory"
)

type fakePanel struct {
	readings []llm.Reading
	err      error
	calls    int
	gotInput llm.RefinementInput
}

func (p *fakePanel) Refine(_ context.Context, in llm.RefinementInput) ([]llm.Reading, error) {
	p.calls++
	p.gotInput = in
	if p.err != nil {
		return nil, p.err
	}
	return p.readings, nil
}

type fakeJournal struct {
	recorded   []memory.Entry
	recordErr  error
	recalled   []*memory.AnalysisMemory
	recallErr  error
	recallCoin string
	recallText string
	recallMax  int
}

func (j *fakeJournal) Record(_ context.Context, e memory.Entry) (*memory.AnalysisMemory, error) {
	j.recorded = append(j.recorded, e)
	if j.recordErr != nil {
		return nil, j.recordErr
	}
	return &memory.AnalysisMemory{ID: int64(len(j.recorded)), Coin: e.Coin}, nil
}

func (j *fakeJournal) Recall(_ context.Context, coin, query string, limit int) ([]*memory.AnalysisMemory, error) {
	j.recallCoin, j.recallText, j.recallMax = coin, query, limit
	if j.recallErr != nil {
		return nil, j.recallErr
	}
	return j.recalled, nil
}

func reading(model string, confidence float64) llm.Reading {
	return llm.Reading{
		Model: model,
		Refinement: llm.Refinement{
			RefinedConfidence: confidence,
			Reasoning:         "Broad participation across categories.",
			ActionPlan:        "Enter on strength.",
			RiskAssessment:    "Crowded positioning.",
			MarketContext:     "Risk appetite is healthy.",
		},
	}
}

func testEngine(p *fakePanel, j *fakeJournal) *Engine {
	e := NewEngine(nil, nil)
	if p != nil {
		e.panel = p
	}
	if j != nil {
		e.journal = j
	}
	return e
}

// strongConsensusInput is the heavy-long book from the aggregate
// tests: 18 long, 2 short, every boost firing, confidence clamped to
// 1.0 before refinement.
func strongConsensusInput() Input {
	var votes []*bots.Vote
	for i := 0; i < 5; i++ {
		votes = append(votes, vote("trend", bots.CategoryTrend, bots.DirectionLong, 8))
	}
	for i := 0; i < 4; i++ {
		votes = append(votes, vote("momo", bots.CategoryMomentum, bots.DirectionLong, 8))
	}
	for i := 0; i < 3; i++ {
		votes = append(votes, vote("fade", bots.CategoryContrarian, bots.DirectionLong, 7))
	}
	for i := 0; i < 6; i++ {
		votes = append(votes, vote("spec", bots.CategorySpecialized, bots.DirectionLong, 9))
	}
	votes = append(votes,
		vote("bear1", bots.CategoryMeanReversion, bots.DirectionShort, 6),
		vote("bear2", bots.CategoryVolume, bots.DirectionShort, 6),
	)

	fs := alignedFeatures(indicators.RegimeBull)
	fs.Sentiment = &market.SentimentMetrics{Classification: market.SentimentBullish, Score: fp(0.78)}
	fs.OnChain = &market.OnChainMetrics{OverallSignal: market.SignalAccumulation, WhaleActivity: fp(82)}

	in := input(votes, fs)
	in.EnabledBots = 54
	return in
}

// TestProcessStrongConsensus is the end-to-end happy path: the panel
// seats agree closely, so the averaged verdict earns the agreement
// boost and caps at the refinement ceiling.
func TestProcessStrongConsensus(t *testing.T) {
	panel := &fakePanel{readings: []llm.Reading{reading("model-a", 0.92), reading("model-b", 0.95)}}
	journal := &fakeJournal{}

	res := testEngine(panel, journal).Process(context.Background(), strongConsensusInput())
	require.NotNil(t, res)

	rec := res.Recommendation
	assert.Equal(t, 1, panel.calls)
	require.NotNil(t, rec.AvgConfidence)
	assert.Equal(t, 0.95, *rec.AvgConfidence, "mean 0.935 boosted by 1.08 caps at the ceiling")
	assert.Equal(t, 18, rec.LongBots)
	assert.Equal(t, 2, rec.ShortBots)
	assert.Equal(t, 20, rec.BotCount)
	assert.Len(t, res.Predictions, 20)
	assert.Equal(t, "BULL", rec.MarketRegime)

	require.NotNil(t, rec.AIReasoning)
	assert.Equal(t, "Broad participation across categories.", *rec.AIReasoning)
	require.NotNil(t, rec.RiskAssessment)
	assert.Contains(t, *rec.RiskAssessment, "Crowded positioning.")
}

func TestProcessPanelInput(t *testing.T) {
	panel := &fakePanel{readings: []llm.Reading{reading("model-a", 0.9)}}

	res := testEngine(panel, nil).Process(context.Background(), strongConsensusInput())
	require.NotNil(t, res)

	in := panel.gotInput
	assert.Equal(t, "BTC", in.Symbol)
	assert.Equal(t, 67250.50, in.CurrentPrice)
	assert.Equal(t, "LONG", in.Direction)
	assert.Equal(t, 1.0, in.Confidence)
	assert.Equal(t, "BULL", in.Regime)
	assert.Equal(t, 0.85, in.RegimeConfidence)
	assert.Equal(t, 100, in.AlignmentScore)
	assert.Equal(t, 18, in.LongVotes)
	assert.Equal(t, 2, in.ShortVotes)
	assert.Equal(t, 34, in.Abstentions)
	assert.InDelta(t, 0.90, in.Agreement, 1e-9)
	assert.Contains(t, in.Notes, FlagStrongConsensus)
	assert.Contains(t, in.Notes, FlagContrarianBoost)
	assert.Equal(t, "bullish (score 0.78)", in.Sentiment)
	assert.Equal(t, "accumulation (whale activity 82/100)", in.OnChain)
}

func TestProcessVerdictRules(t *testing.T) {
	cases := []struct {
		name     string
		readings []llm.Reading
		want     float64
		flagged  bool
	}{
		{
			name:     "close agreement earns the boost",
			readings: []llm.Reading{reading("a", 0.80), reading("b", 0.84)},
			want:     0.8856, // mean 0.82 × 1.08
		},
		{
			name:     "wide disagreement takes the minimum",
			readings: []llm.Reading{reading("a", 0.90), reading("b", 0.78)},
			want:     0.78,
			flagged:  true,
		},
		{
			name:     "moderate disagreement averages",
			readings: []llm.Reading{reading("a", 0.90), reading("b", 0.82)},
			want:     0.86,
		},
		{
			name:     "a lone verdict stands",
			readings: []llm.Reading{reading("a", 0.88)},
			want:     0.88,
		},
		{
			name:     "verdicts are clipped to the ceiling first",
			readings: []llm.Reading{reading("a", 0.99), reading("b", 0.99)},
			want:     0.95,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			panel := &fakePanel{readings: tc.readings}

			res := testEngine(panel, nil).Process(context.Background(), strongConsensusInput())
			require.NotNil(t, res)

			require.NotNil(t, res.Recommendation.AvgConfidence)
			assert.InDelta(t, tc.want, *res.Recommendation.AvgConfidence, 1e-9)

			require.NotNil(t, res.Recommendation.RiskAssessment)
			flagged := strings.Contains(*res.Recommendation.RiskAssessment, FlagHighUncertainty)
			assert.Equal(t, tc.flagged, flagged, "HIGH_UNCERTAINTY must appear exactly when the seats disagree")
		})
	}
}

// TestProcessPanelFailureIsNotFatal: a dead panel ships the draft at
// its pre-refinement confidence.
func TestProcessPanelFailureIsNotFatal(t *testing.T) {
	panel := &fakePanel{err: errors.New("all seats down")}

	res := testEngine(panel, nil).Process(context.Background(), strongConsensusInput())
	require.NotNil(t, res)

	require.NotNil(t, res.Recommendation.AvgConfidence)
	assert.Equal(t, 1.0, *res.Recommendation.AvgConfidence)
	assert.Nil(t, res.Recommendation.AIReasoning)
}

// TestProcessSkipsPanelBelowFloor: a draft under the refinement floor
// never reaches the panel, but is still journaled and persisted.
func TestProcessSkipsPanelBelowFloor(t *testing.T) {
	panel := &fakePanel{readings: []llm.Reading{reading("a", 0.9)}}
	journal := &fakeJournal{}

	// Three of five long is a mid-band book with a neutral alignment:
	// confidence 0.6, under the floor.
	votes := []*bots.Vote{
		vote("l1", bots.CategorySpecialized, bots.DirectionLong, 6),
		vote("l2", bots.CategorySpecialized, bots.DirectionLong, 6),
		vote("l3", bots.CategorySpecialized, bots.DirectionLong, 6),
		vote("s1", bots.CategorySpecialized, bots.DirectionShort, 6),
		vote("s2", bots.CategorySpecialized, bots.DirectionShort, 6),
	}

	res := testEngine(panel, journal).Process(context.Background(), input(votes, splitFeatures(indicators.RegimeBull, indicators.RegimeBear)))
	require.NotNil(t, res)

	assert.Equal(t, 0, panel.calls)
	assert.Nil(t, res.Recommendation.AIReasoning)
	require.NotNil(t, res.Recommendation.AvgConfidence)
	assert.InDelta(t, 0.6, *res.Recommendation.AvgConfidence, 1e-9)
	assert.Len(t, journal.recorded, 1, "unrefined drafts are journaled too")
}

// TestProcessNoSignal: a fully gated book produces nothing at all. No
// rows, no panel call, no journal entry.
func TestProcessNoSignal(t *testing.T) {
	panel := &fakePanel{readings: []llm.Reading{reading("a", 0.9)}}
	journal := &fakeJournal{}

	votes := make([]*bots.Vote, 0, 10)
	for i := 0; i < 10; i++ {
		votes = append(votes, vote("bot", bots.CategoryTrend, bots.DirectionLong, 5))
	}

	res := testEngine(panel, journal).Process(context.Background(), input(votes, alignedFeatures(indicators.RegimeBull)))
	assert.Nil(t, res)
	assert.Equal(t, 0, panel.calls)
	assert.Empty(t, journal.recorded)
}

func TestProcessRecallFeedsPrompt(t *testing.T) {
	note := "took profit inside 24h"
	journal := &fakeJournal{recalled: []*memory.AnalysisMemory{
		{
			Coin:        "BTC",
			Summary:     "BTC LONG at confidence 0.84 in BULL regime.",
			Regime:      "BULL",
			Direction:   "LONG",
			Confidence:  0.84,
			OutcomeNote: &note,
			CreatedAt:   time.Date(2026, 7, 12, 9, 0, 0, 0, time.UTC),
		},
		{
			Coin:       "BTC",
			Summary:    "BTC SHORT at confidence 0.79 in VOLATILE regime.",
			Regime:     "VOLATILE",
			Direction:  "SHORT",
			Confidence: 0.79,
			CreatedAt:  time.Date(2026, 6, 2, 15, 0, 0, 0, time.UTC),
		},
	}}
	panel := &fakePanel{readings: []llm.Reading{reading("a", 0.9)}}

	res := testEngine(panel, journal).Process(context.Background(), strongConsensusInput())
	require.NotNil(t, res)

	assert.Equal(t, "BTC", journal.recallCoin)
	assert.Contains(t, journal.recallText, "BTC LONG")
	assert.Equal(t, 5, journal.recallMax)

	require.Len(t, panel.gotInput.Past, 2)
	assert.Equal(t, "BTC LONG at confidence 0.84 in BULL regime. Outcome: took profit inside 24h", panel.gotInput.Past[0].Content)
	assert.Equal(t, "LONG", panel.gotInput.Past[0].Direction)
	assert.Equal(t, "BTC SHORT at confidence 0.79 in VOLATILE regime.", panel.gotInput.Past[1].Content)
}

func TestProcessRecallFailureIsNotFatal(t *testing.T) {
	journal := &fakeJournal{recallErr: errors.New("store offline")}
	panel := &fakePanel{readings: []llm.Reading{reading("a", 0.9)}}

	res := testEngine(panel, journal).Process(context.Background(), strongConsensusInput())
	require.NotNil(t, res)

	assert.Equal(t, 1, panel.calls, "recall failure must not block the panel")
	assert.Empty(t, panel.gotInput.Past)
}

// TestProcessJournalsFinalCall: the recorded entry carries the
// post-refinement confidence and the run id.
func TestProcessJournalsFinalCall(t *testing.T) {
	panel := &fakePanel{readings: []llm.Reading{reading("model-a", 0.92), reading("model-b", 0.95)}}
	journal := &fakeJournal{}
	in := strongConsensusInput()

	res := testEngine(panel, journal).Process(context.Background(), in)
	require.NotNil(t, res)

	require.Len(t, journal.recorded, 1)
	e := journal.recorded[0]
	assert.Equal(t, "BTC", e.Coin)
	assert.Equal(t, "LONG", e.Direction)
	assert.Equal(t, 0.95, e.Confidence)
	assert.Equal(t, "BULL", e.Regime)
	assert.Equal(t, 18, e.LongVotes)
	assert.Equal(t, 2, e.ShortVotes)
	assert.Equal(t, 34, e.Abstentions)
	assert.Contains(t, e.Flags, FlagStrongConsensus)
	assert.Equal(t, "Broad participation across categories.", e.Reasoning)
	require.NotNil(t, e.RunID)
	assert.Equal(t, in.RunID, *e.RunID)
}

func TestProcessJournalFailureIsNotFatal(t *testing.T) {
	journal := &fakeJournal{recordErr: errors.New("insert failed")}

	res := testEngine(nil, journal).Process(context.Background(), strongConsensusInput())
	require.NotNil(t, res, "a dead journal must not block the recommendation")
}

// TestProcessWithoutDependencies: a bare engine is the pure pipeline.
func TestProcessWithoutDependencies(t *testing.T) {
	res := NewEngine(nil, nil).Process(context.Background(), strongConsensusInput())
	require.NotNil(t, res)

	require.NotNil(t, res.Recommendation.AvgConfidence)
	assert.Equal(t, 1.0, *res.Recommendation.AvgConfidence)
	assert.Nil(t, res.Recommendation.AIReasoning)
}

func TestEngineOptions(t *testing.T) {
	e := NewEngine(nil, nil, WithRefineThreshold(0.5), WithRecallLimit(3))
	assert.Equal(t, 0.5, e.minRefine)
	assert.Equal(t, 3, e.recallLimit)

	e = NewEngine(nil, nil, WithRefineThreshold(-1), WithRecallLimit(0))
	assert.Equal(t, refineMinConfidence, e.minRefine)
	assert.Equal(t, 5, e.recallLimit)
}

// TestEngineLoweredThreshold: dropping the floor lets mid-confidence
// drafts reach the panel.
func TestEngineLoweredThreshold(t *testing.T) {
	panel := &fakePanel{readings: []llm.Reading{reading("a", 0.7)}}
	e := testEngine(panel, nil)
	e.minRefine = 0.5

	votes := []*bots.Vote{
		vote("l1", bots.CategorySpecialized, bots.DirectionLong, 6),
		vote("l2", bots.CategorySpecialized, bots.DirectionLong, 6),
		vote("l3", bots.CategorySpecialized, bots.DirectionLong, 6),
		vote("s1", bots.CategorySpecialized, bots.DirectionShort, 6),
		vote("s2", bots.CategorySpecialized, bots.DirectionShort, 6),
	}

	res := e.Process(context.Background(), input(votes, splitFeatures(indicators.RegimeBull, indicators.RegimeBear)))
	require.NotNil(t, res)

	assert.Equal(t, 1, panel.calls)
	require.NotNil(t, res.Recommendation.AvgConfidence)
	assert.Equal(t, 0.7, *res.Recommendation.AvgConfidence)
}
