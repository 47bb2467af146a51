package memory_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/db"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/db/testhelpers"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/memory"
)

// axisEmbedding returns a 1536-dim unit vector along one axis, so
// cosine distances between test memories are exact: 0 for the same
// axis, 1 for different axes.
func axisEmbedding(axis int) []float32 {
	vec := make([]float32, 1536)
	vec[axis] = 1.0
	return vec
}

// blendEmbedding mixes two axes equally (45 degrees from each, cosine
// distance ~0.29 to either axis vector).
func blendEmbedding(a, b int) []float32 {
	vec := make([]float32, 1536)
	vec[a] = 1.0
	vec[b] = 1.0
	return vec
}

func TestStore_SaveAndRecall(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	store := memory.NewStore(tc.DB.Pool())

	embedded := &memory.AnalysisMemory{
		Coin:       "BTC",
		Summary:    "BTC LONG at confidence 0.83 in BULL regime.",
		Regime:     "BULL",
		Direction:  "LONG",
		Confidence: 0.83,
		Embedding:  axisEmbedding(0),
	}
	require.NoError(t, store.Save(ctx, embedded))
	assert.NotZero(t, embedded.ID)
	assert.False(t, embedded.CreatedAt.IsZero())

	// No embedding: still stored, recallable by recency only
	plain := &memory.AnalysisMemory{
		Coin:       "BTC",
		Summary:    "BTC SHORT at confidence 0.70 in BEAR regime.",
		Regime:     "BEAR",
		Direction:  "SHORT",
		Confidence: 0.70,
	}
	require.NoError(t, store.Save(ctx, plain))

	similar, err := store.FindSimilar(ctx, axisEmbedding(0), 10)
	require.NoError(t, err)
	require.Len(t, similar, 1, "rows without embeddings stay out of similarity search")
	assert.Equal(t, embedded.ID, similar[0].ID)

	recent, err := store.Recent(ctx, "BTC", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestStore_FindSimilar_NearestFirst(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	store := memory.NewStore(tc.DB.Pool())

	exact := &memory.AnalysisMemory{
		Coin: "BTC", Summary: "exact match", Regime: "BULL", Direction: "LONG",
		Confidence: 0.8, Embedding: axisEmbedding(0),
	}
	mixed := &memory.AnalysisMemory{
		Coin: "BTC", Summary: "partial match", Regime: "BULL", Direction: "LONG",
		Confidence: 0.7, Embedding: blendEmbedding(0, 1),
	}
	orthogonal := &memory.AnalysisMemory{
		Coin: "BTC", Summary: "unrelated", Regime: "BEAR", Direction: "SHORT",
		Confidence: 0.6, Embedding: axisEmbedding(1),
	}

	for _, mem := range []*memory.AnalysisMemory{orthogonal, mixed, exact} {
		require.NoError(t, store.Save(ctx, mem))
	}

	similar, err := store.FindSimilar(ctx, axisEmbedding(0), 3)
	require.NoError(t, err)
	require.Len(t, similar, 3)

	assert.Equal(t, "exact match", similar[0].Summary)
	assert.Equal(t, "partial match", similar[1].Summary)
	assert.Equal(t, "unrelated", similar[2].Summary)

	assert.InDelta(t, 0.0, float64(similar[0].Distance), 0.001)
	assert.Less(t, similar[0].Distance, similar[1].Distance)
	assert.Less(t, similar[1].Distance, similar[2].Distance)
}

func TestStore_FindSimilar_Filters(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	store := memory.NewStore(tc.DB.Pool())

	memories := []*memory.AnalysisMemory{
		{Coin: "BTC", Summary: "btc bull long", Regime: "BULL", Direction: "LONG", Confidence: 0.8, Embedding: axisEmbedding(0)},
		{Coin: "BTC", Summary: "btc bear short", Regime: "BEAR", Direction: "SHORT", Confidence: 0.6, Embedding: axisEmbedding(0)},
		{Coin: "ETH", Summary: "eth bull long", Regime: "BULL", Direction: "LONG", Confidence: 0.9, Embedding: axisEmbedding(0)},
	}
	for _, mem := range memories {
		require.NoError(t, store.Save(ctx, mem))
	}

	btcOnly, err := store.FindSimilar(ctx, axisEmbedding(0), 10, memory.CoinFilter{Coin: "BTC"})
	require.NoError(t, err)
	assert.Len(t, btcOnly, 2)
	for _, mem := range btcOnly {
		assert.Equal(t, "BTC", mem.Coin)
	}

	confident, err := store.FindSimilar(ctx, axisEmbedding(0), 10,
		memory.CoinFilter{Coin: "BTC"},
		memory.MinConfidenceFilter{MinConfidence: 0.7},
	)
	require.NoError(t, err)
	require.Len(t, confident, 1)
	assert.Equal(t, "btc bull long", confident[0].Summary)
}

func TestStore_AnnotateOutcome(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	store := memory.NewStore(tc.DB.Pool())

	mem := &memory.AnalysisMemory{
		Coin: "BTC", Summary: "btc long", Regime: "BULL", Direction: "LONG", Confidence: 0.8,
	}
	require.NoError(t, store.Save(ctx, mem))
	assert.False(t, mem.Resolved())

	require.NoError(t, store.AnnotateOutcome(ctx, mem.ID, "TP hit within 26h"))

	recent, err := store.Recent(ctx, "BTC", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.True(t, recent[0].Resolved())
	assert.Equal(t, "TP hit within 26h", *recent[0].OutcomeNote)

	// Unknown id
	err = store.AnnotateOutcome(ctx, 999999, "note")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStore_AnnotateRunOutcomes(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	store := memory.NewStore(tc.DB.Pool())

	run := &db.ScanRun{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		Status:    db.ScanStatusRunning,
		ScanType:  "quick_scan",
	}
	require.NoError(t, tc.DB.InsertScanRun(ctx, run))

	inRun := []*memory.AnalysisMemory{
		{Coin: "BTC", RunID: &run.ID, Summary: "first", Regime: "BULL", Direction: "LONG", Confidence: 0.8},
		{Coin: "BTC", RunID: &run.ID, Summary: "second", Regime: "BULL", Direction: "LONG", Confidence: 0.7},
	}
	outside := &memory.AnalysisMemory{
		Coin: "BTC", Summary: "other run", Regime: "BULL", Direction: "LONG", Confidence: 0.6,
	}

	for _, mem := range inRun {
		require.NoError(t, store.Save(ctx, mem))
	}
	require.NoError(t, store.Save(ctx, outside))

	count, err := store.AnnotateRunOutcomes(ctx, run.ID, "BTC", "SL hit at 24h")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	forRun, err := store.ForRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, forRun, 2)
	for _, mem := range forRun {
		assert.True(t, mem.Resolved())
	}

	// Already-annotated rows are not overwritten by a second pass
	count, err = store.AnnotateRunOutcomes(ctx, run.ID, "BTC", "different note")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_PruneOlderThan(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	store := memory.NewStore(tc.DB.Pool())

	require.NoError(t, tc.ExecuteSQL(`
		INSERT INTO analysis_memories (coin, summary, market_regime, consensus_direction, avg_confidence, created_at)
		VALUES ('BTC', 'stale memory', 'BULL', 'LONG', 0.5, NOW() - INTERVAL '10 days')
	`))

	fresh := &memory.AnalysisMemory{
		Coin: "BTC", Summary: "fresh memory", Regime: "BULL", Direction: "LONG", Confidence: 0.8,
	}
	require.NoError(t, store.Save(ctx, fresh))

	pruned, err := store.PruneOlderThan(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	recent, err := store.Recent(ctx, "BTC", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "fresh memory", recent[0].Summary)
}

func TestJournal_RecordAndRecall(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrations("../../migrations"))

	ctx := context.Background()
	store := memory.NewStore(tc.DB.Pool())

	// Deterministic embedding keyed off marker words in the text
	embed := func(ctx context.Context, text string) ([]float32, error) {
		switch {
		case strings.Contains(text, "breakout"):
			return axisEmbedding(0), nil
		case strings.Contains(text, "capitulation"):
			return axisEmbedding(1), nil
		default:
			return axisEmbedding(2), nil
		}
	}

	journal := memory.NewJournal(store, embed, memory.WithRecallLimit(5))

	_, err := journal.Record(ctx, memory.Entry{
		Coin: "BTC", Direction: "LONG", Confidence: 0.85, Regime: "BULL",
		LongVotes: 30, ShortVotes: 8, Abstentions: 16,
		Reasoning: "Volume-confirmed breakout above resistance.",
	})
	require.NoError(t, err)

	_, err = journal.Record(ctx, memory.Entry{
		Coin: "BTC", Direction: "SHORT", Confidence: 0.72, Regime: "BEAR",
		LongVotes: 6, ShortVotes: 27, Abstentions: 21,
		Reasoning: "Signs of capitulation selling.",
	})
	require.NoError(t, err)

	// Same setup on another coin must not leak into BTC recall
	_, err = journal.Record(ctx, memory.Entry{
		Coin: "ETH", Direction: "LONG", Confidence: 0.80, Regime: "BULL",
		LongVotes: 25, ShortVotes: 10, Abstentions: 19,
		Reasoning: "Volume-confirmed breakout above resistance.",
	})
	require.NoError(t, err)

	memories, err := journal.Recall(ctx, "BTC", "fresh breakout setup forming", 2)
	require.NoError(t, err)
	require.Len(t, memories, 2)

	assert.Equal(t, "BTC", memories[0].Coin)
	assert.Equal(t, "LONG", memories[0].Direction, "breakout memory should rank first")
	assert.Contains(t, memories[0].Summary, "breakout")
}
