package weighting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/config"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/db"
)

var testNow = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

func fp(v float64) *float64 { return &v }

type weightChange struct {
	bot, regime, reason string
	weight              float64
}

type fakeStore struct {
	statsByCutoff func(cutoff time.Time) []*db.OutcomeWindowStats
	metrics       []*db.BotAccuracyMetrics
	guardrails    map[string]*db.BotGuardrails
	disabledNames []string

	rollups       []*db.BotAccuracyMetrics
	weightChanges []weightChange
	disabled      []string // "bot/regime"
	reenabled     []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{guardrails: map[string]*db.BotGuardrails{}}
}

func (f *fakeStore) OutcomeStatsSince(_ context.Context, cutoff time.Time) ([]*db.OutcomeWindowStats, error) {
	if f.statsByCutoff == nil {
		return nil, nil
	}
	return f.statsByCutoff(cutoff), nil
}

func (f *fakeStore) ListBotMetrics(context.Context) ([]*db.BotAccuracyMetrics, error) {
	return f.metrics, nil
}

func (f *fakeStore) ListGuardrails(context.Context) ([]*db.BotGuardrails, error) {
	var out []*db.BotGuardrails
	for _, g := range f.guardrails {
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeStore) UpsertRollup(_ context.Context, m *db.BotAccuracyMetrics) error {
	f.rollups = append(f.rollups, m)
	return nil
}

func (f *fakeStore) UpdateBotWeight(_ context.Context, bot, regime string, w float64, reason string) error {
	f.weightChanges = append(f.weightChanges, weightChange{bot: bot, regime: regime, weight: w, reason: reason})
	return nil
}

func (f *fakeStore) DisableBot(_ context.Context, bot, regime, _ string) error {
	f.disabled = append(f.disabled, bot+"/"+regime)
	return nil
}

func (f *fakeStore) ReenableBot(_ context.Context, bot string) error {
	f.reenabled = append(f.reenabled, bot)
	return nil
}

func (f *fakeStore) DisabledBotsSince(context.Context, time.Duration) ([]string, error) {
	return f.disabledNames, nil
}

func (f *fakeStore) GetBotGuardrails(_ context.Context, bot string) (*db.BotGuardrails, error) {
	return f.guardrails[bot], nil
}

func (f *fakeStore) UpsertBotGuardrails(_ context.Context, g *db.BotGuardrails) error {
	cp := *g
	f.guardrails[g.BotName] = &cp
	return nil
}

func testConfig() config.WeightingConfig {
	return config.WeightingConfig{
		RollupInterval: 6,
		AdjustInterval: 24,
		MinSamples:     10,
		MinWeight:      0.2,
		MaxWeight:      2.0,
	}
}

func newTestEngine(store *fakeStore) *Engine {
	return NewEngine(store, testConfig(), WithClock(func() time.Time { return testNow }))
}

func metricsRow(bot, regime string, weight float64, total int, acc30 *float64) *db.BotAccuracyMetrics {
	return &db.BotAccuracyMetrics{
		BotName:          bot,
		MarketRegime:     regime,
		TotalPredictions: total,
		CurrentWeight:    weight,
		IsEnabled:        true,
		Last30dAccuracy:  acc30,
	}
}

func TestBandedWeight(t *testing.T) {
	e := newTestEngine(newFakeStore())

	cases := []struct {
		accuracy float64
		current  float64
		want     float64
		band     string
	}{
		{0.75, 1.0, 1.30, "boost"},
		{0.70, 1.8, 2.0, "boost"}, // capped
		{0.65, 1.0, 1.10, "raise"},
		{0.55, 1.0, 1.0, "hold"},
		{0.40, 1.0, 0.50, "cut"},
		{0.40, 0.3, 0.2, "cut"}, // floored
	}
	for _, c := range cases {
		got, band := e.bandedWeight(c.current, c.accuracy)
		assert.InDelta(t, c.want, got, 1e-9, "accuracy %.2f", c.accuracy)
		assert.Equal(t, c.band, band)
	}
}

func TestRollupComputesWindowedAccuracy(t *testing.T) {
	store := newFakeStore()
	store.statsByCutoff = func(cutoff time.Time) []*db.OutcomeWindowStats {
		// Lifetime sees 100 settles at 60% correct; the last month 40
		// at 50%; the last week none.
		switch {
		case cutoff.IsZero():
			return []*db.OutcomeWindowStats{{
				BotName: "Trend Bot", MarketRegime: "BULL",
				TotalPredictions: 100, CorrectCount: 60, WinCount: 55, AvgProfitLoss: fp(1.8),
			}}
		case testNow.Sub(cutoff) > 8*24*time.Hour:
			return []*db.OutcomeWindowStats{{
				BotName: "Trend Bot", MarketRegime: "BULL",
				TotalPredictions: 40, CorrectCount: 20, WinCount: 18,
			}}
		default:
			return nil
		}
	}

	require.NoError(t, newTestEngine(store).Rollup(context.Background()))

	require.Len(t, store.rollups, 1)
	m := store.rollups[0]
	assert.Equal(t, "Trend Bot", m.BotName)
	assert.Equal(t, 100, m.TotalPredictions)
	assert.Equal(t, 60, m.CorrectPredictions)
	assert.InDelta(t, 0.60, *m.AccuracyRate, 1e-9)
	assert.InDelta(t, 0.55, *m.WinRate, 1e-9)
	assert.InDelta(t, 0.50, *m.Last30dAccuracy, 1e-9)
	assert.Nil(t, m.Last7dAccuracy)
}

func TestAdjustWeightsAppliesBands(t *testing.T) {
	store := newFakeStore()
	store.metrics = []*db.BotAccuracyMetrics{
		metricsRow("Hot Bot", "BULL", 1.0, 30, fp(0.75)),
		metricsRow("Steady Bot", "BULL", 1.0, 30, fp(0.55)),
		metricsRow("Cold Bot", "BULL", 1.0, 30, fp(0.42)),
		metricsRow("Fresh Bot", "BULL", 1.0, 5, fp(0.90)), // below min samples
	}

	require.NoError(t, newTestEngine(store).AdjustWeights(context.Background()))

	require.Len(t, store.weightChanges, 2)
	assert.Equal(t, "Hot Bot", store.weightChanges[0].bot)
	assert.InDelta(t, 1.30, store.weightChanges[0].weight, 1e-9)
	assert.Contains(t, store.weightChanges[0].reason, "0.75")
	assert.Equal(t, "Cold Bot", store.weightChanges[1].bot)
	assert.InDelta(t, 0.50, store.weightChanges[1].weight, 1e-9)
	assert.Empty(t, store.disabled)
}

func TestAdjustWeightsAutoDisablesAcrossRegimes(t *testing.T) {
	store := newFakeStore()
	store.metrics = []*db.BotAccuracyMetrics{
		metricsRow("Broken Bot", "BULL", 0.4, 60, fp(0.30)),
		metricsRow("Broken Bot", "BEAR", 0.5, 20, fp(0.55)),
	}

	require.NoError(t, newTestEngine(store).AdjustWeights(context.Background()))

	// Tripping in one regime benches the bot everywhere.
	assert.ElementsMatch(t, []string{"Broken Bot/BULL", "Broken Bot/BEAR"}, store.disabled)
	g := store.guardrails["Broken Bot"]
	require.NotNil(t, g)
	assert.Equal(t, 1, g.TimesDisabled)
	assert.False(t, g.PermanentlyDisabled)
}

func TestAdjustWeightsSkipsSmallSampleDisable(t *testing.T) {
	store := newFakeStore()
	store.metrics = []*db.BotAccuracyMetrics{
		metricsRow("New Bot", "BULL", 1.0, 30, fp(0.30)),
	}

	require.NoError(t, newTestEngine(store).AdjustWeights(context.Background()))

	// Under 50 lifetime predictions the bot is cut, not disabled.
	assert.Empty(t, store.disabled)
	require.Len(t, store.weightChanges, 1)
	assert.InDelta(t, 0.50, store.weightChanges[0].weight, 1e-9)
}

func TestThirdDisableIsPermanent(t *testing.T) {
	store := newFakeStore()
	store.metrics = []*db.BotAccuracyMetrics{
		metricsRow("Broken Bot", "BULL", 0.2, 80, fp(0.25)),
	}
	store.guardrails["Broken Bot"] = &db.BotGuardrails{BotName: "Broken Bot", TimesDisabled: 2}

	require.NoError(t, newTestEngine(store).AdjustWeights(context.Background()))

	g := store.guardrails["Broken Bot"]
	assert.Equal(t, 3, g.TimesDisabled)
	assert.True(t, g.PermanentlyDisabled)
}

func TestReviewDisabledReenablesIntoProbation(t *testing.T) {
	store := newFakeStore()
	store.disabledNames = []string{"Broken Bot", "Dead Bot"}
	store.guardrails["Broken Bot"] = &db.BotGuardrails{BotName: "Broken Bot", TimesDisabled: 1}
	store.guardrails["Dead Bot"] = &db.BotGuardrails{BotName: "Dead Bot", PermanentlyDisabled: true}

	require.NoError(t, newTestEngine(store).ReviewDisabled(context.Background()))

	assert.Equal(t, []string{"Broken Bot"}, store.reenabled, "permanently disabled bots stay benched")

	g := store.guardrails["Broken Bot"]
	assert.True(t, g.IsOnProbation)
	assert.True(t, g.IsProbationMode)
	assert.Equal(t, 1, g.TimesReenabled)
	assert.Zero(t, g.ProbationPredictions)
	require.NotNil(t, g.ProbationStart)
	assert.Equal(t, testNow, *g.ProbationStart)
	assert.Equal(t, 3, g.MaxLeverage)
	assert.InDelta(t, 0.70, g.MinConfidenceRequired, 1e-9)
	assert.InDelta(t, 0.50, g.StopLossMultiplier, 1e-9)
	assert.InDelta(t, 2.0, g.MaxPositionSizePercent, 1e-9)
}

func TestResolveProbationsClearsAtThreshold(t *testing.T) {
	store := newFakeStore()
	store.guardrails["Redeemed Bot"] = &db.BotGuardrails{
		BotName: "Redeemed Bot", IsOnProbation: true, IsProbationMode: true,
		ProbationPredictions: 24, ProbationCorrect: 13,
	}

	require.NoError(t, newTestEngine(store).ResolveProbations(context.Background()))

	g := store.guardrails["Redeemed Bot"]
	assert.False(t, g.IsOnProbation)
	assert.False(t, g.IsProbationMode)
	require.NotNil(t, g.ProbationEnd)
	assert.Empty(t, store.disabled)
}

func TestResolveProbationsRedisablesFailures(t *testing.T) {
	store := newFakeStore()
	store.metrics = []*db.BotAccuracyMetrics{
		metricsRow("Relapsed Bot", "BULL", 0.5, 40, fp(0.45)),
	}
	store.guardrails["Relapsed Bot"] = &db.BotGuardrails{
		BotName: "Relapsed Bot", IsOnProbation: true, IsProbationMode: true,
		ProbationPredictions: 20, ProbationCorrect: 6, TimesDisabled: 1,
	}

	require.NoError(t, newTestEngine(store).ResolveProbations(context.Background()))

	assert.Equal(t, []string{"Relapsed Bot/BULL"}, store.disabled)
	g := store.guardrails["Relapsed Bot"]
	assert.False(t, g.IsOnProbation)
	assert.Equal(t, 2, g.TimesDisabled)
}

func TestResolveProbationsWaitsForEvidence(t *testing.T) {
	store := newFakeStore()
	store.guardrails["Young Bot"] = &db.BotGuardrails{
		BotName: "Young Bot", IsOnProbation: true,
		ProbationPredictions: 7, ProbationCorrect: 7,
	}

	require.NoError(t, newTestEngine(store).ResolveProbations(context.Background()))

	assert.True(t, store.guardrails["Young Bot"].IsOnProbation)
}

func TestLoadSnapshot(t *testing.T) {
	store := newFakeStore()
	store.metrics = []*db.BotAccuracyMetrics{
		{BotName: "Trend Bot", MarketRegime: "BULL", CurrentWeight: 1.4, IsEnabled: true},
		{BotName: "Trend Bot", MarketRegime: "BEAR", CurrentWeight: 0.8, IsEnabled: true},
		{BotName: "Broken Bot", MarketRegime: "BULL", CurrentWeight: 0.2, IsEnabled: false},
		{BotName: "Broken Bot", MarketRegime: "BEAR", CurrentWeight: 1.0, IsEnabled: true},
	}
	store.guardrails["Probation Bot"] = &db.BotGuardrails{
		BotName: "Probation Bot", IsOnProbation: true,
		MaxLeverage: 3, MinConfidenceRequired: 0.7, StopLossMultiplier: 0.5, MaxPositionSizePercent: 2,
	}

	snap, err := newTestEngine(store).LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testNow, snap.TakenAt)

	trend, ok := snap.State("Trend Bot")
	require.True(t, ok)
	assert.True(t, trend.Enabled)
	assert.InDelta(t, 1.4, snap.Weight("Trend Bot", "BULL"), 1e-9)
	assert.InDelta(t, 0.8, snap.Weight("Trend Bot", "BEAR"), 1e-9)

	broken, ok := snap.State("Broken Bot")
	require.True(t, ok)
	assert.False(t, broken.Enabled, "one disabled regime row benches the bot")

	prob, ok := snap.State("Probation Bot")
	require.True(t, ok)
	assert.True(t, prob.OnProbation)
	assert.Equal(t, 3, prob.Guardrails.MaxLeverage)

	// Bots the snapshot has never seen default to weight 1.
	assert.InDelta(t, 1.0, snap.Weight("Unknown Bot", "BULL"), 1e-9)
}
