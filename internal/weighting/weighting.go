// Package weighting turns settled prediction outcomes into the
// adaptive bot weights the aggregation engine consumes. It owns three
// cadenced passes: metric rollups, the daily weight adjustment with
// its auto-disable rule, and the probation lifecycle that disabled
// bots work through on their way back.
package weighting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/bots"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/config"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/db"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/metrics"
)

const (
	boostAccuracy = 0.70
	raiseAccuracy = 0.60
	holdAccuracy  = 0.50

	boostFactor = 1.30
	raiseFactor = 1.10
	cutFactor   = 0.50

	// Auto-disable needs both a deeply negative record and enough
	// samples to trust it.
	disableAccuracy = 0.35
	disableSamples  = 50

	reenableAfter        = 7 * 24 * time.Hour
	probationPredictions = 20
	probationAccuracy    = 0.50
	maxDisables          = 3
)

// Store is the persistence surface the weighting engine needs.
type Store interface {
	OutcomeStatsSince(ctx context.Context, cutoff time.Time) ([]*db.OutcomeWindowStats, error)
	ListBotMetrics(ctx context.Context) ([]*db.BotAccuracyMetrics, error)
	ListGuardrails(ctx context.Context) ([]*db.BotGuardrails, error)
	UpsertRollup(ctx context.Context, m *db.BotAccuracyMetrics) error
	UpdateBotWeight(ctx context.Context, botName, regime string, newWeight float64, reason string) error
	DisableBot(ctx context.Context, botName, regime, reason string) error
	ReenableBot(ctx context.Context, botName string) error
	DisabledBotsSince(ctx context.Context, minAge time.Duration) ([]string, error)
	GetBotGuardrails(ctx context.Context, botName string) (*db.BotGuardrails, error)
	UpsertBotGuardrails(ctx context.Context, g *db.BotGuardrails) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs the weighting passes.
type Engine struct {
	store Store
	cfg   config.WeightingConfig
	now   func() time.Time
	log   zerolog.Logger
}

// NewEngine wires a weighting engine over the store.
func NewEngine(store Store, cfg config.WeightingConfig, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log.With().Str("component", "weighting").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadSnapshot assembles the immutable weights view a scan pins at
// start: per-bot enablement, probation guardrails and per-regime
// weights. A bot disabled in any regime sits the whole scan out.
func (e *Engine) LoadSnapshot(ctx context.Context) (*bots.WeightsSnapshot, error) {
	rows, err := e.store.ListBotMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load bot metrics: %w", err)
	}
	guardrails, err := e.store.ListGuardrails(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load guardrails: %w", err)
	}

	states := map[string]bots.BotState{}
	for _, m := range rows {
		st, ok := states[m.BotName]
		if !ok {
			st = bots.BotState{Enabled: true, Weights: map[string]float64{}}
		}
		if !m.IsEnabled {
			st.Enabled = false
		}
		st.Weights[m.MarketRegime] = m.CurrentWeight
		states[m.BotName] = st
	}

	for _, g := range guardrails {
		st, ok := states[g.BotName]
		if !ok {
			st = bots.BotState{Enabled: true, Weights: map[string]float64{}}
		}
		if g.PermanentlyDisabled {
			st.Enabled = false
		}
		if g.IsOnProbation {
			st.OnProbation = true
			st.Guardrails = bots.Guardrails{
				MaxLeverage:        g.MaxLeverage,
				MinConfidence:      g.MinConfidenceRequired,
				StopLossMultiplier: g.StopLossMultiplier,
				MaxPositionPercent: g.MaxPositionSizePercent,
			}
		}
		states[g.BotName] = st
	}

	enabled := 0
	for _, st := range states {
		if st.Enabled {
			enabled++
		}
	}
	metrics.BotsEnabled.Set(float64(enabled))

	return &bots.WeightsSnapshot{TakenAt: e.now(), States: states}, nil
}

// Rollup recomputes accuracy metrics per (bot, regime) from settled
// outcomes: lifetime aggregates plus rolling 7d and 30d windows.
// Weights and enablement are untouched; that is the daily pass's job.
func (e *Engine) Rollup(ctx context.Context) error {
	now := e.now()

	lifetime, err := e.store.OutcomeStatsSince(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to aggregate lifetime outcomes: %w", err)
	}
	week, err := e.store.OutcomeStatsSince(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		return fmt.Errorf("failed to aggregate 7d outcomes: %w", err)
	}
	month, err := e.store.OutcomeStatsSince(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		return fmt.Errorf("failed to aggregate 30d outcomes: %w", err)
	}

	weekAcc := windowAccuracies(week)
	monthAcc := windowAccuracies(month)

	for _, s := range lifetime {
		key := s.BotName + "\x00" + s.MarketRegime
		m := &db.BotAccuracyMetrics{
			BotName:            s.BotName,
			MarketRegime:       s.MarketRegime,
			TotalPredictions:   s.TotalPredictions,
			CorrectPredictions: s.CorrectCount,
			AvgProfitLoss:      s.AvgProfitLoss,
			Last7dAccuracy:     weekAcc[key],
			Last30dAccuracy:    monthAcc[key],
			// Only effective on first insert; the upsert leaves
			// existing weight and enablement alone.
			CurrentWeight: 1.0,
			IsEnabled:     true,
		}
		if s.TotalPredictions > 0 {
			acc := float64(s.CorrectCount) / float64(s.TotalPredictions)
			win := float64(s.WinCount) / float64(s.TotalPredictions)
			m.AccuracyRate = &acc
			m.WinRate = &win
		}
		if err := e.store.UpsertRollup(ctx, m); err != nil {
			return err
		}
	}

	e.log.Debug().Int("pairs", len(lifetime)).Msg("Metric rollup done")
	return nil
}

func windowAccuracies(stats []*db.OutcomeWindowStats) map[string]*float64 {
	out := make(map[string]*float64, len(stats))
	for _, s := range stats {
		if s.TotalPredictions == 0 {
			continue
		}
		acc := float64(s.CorrectCount) / float64(s.TotalPredictions)
		out[s.BotName+"\x00"+s.MarketRegime] = &acc
	}
	return out
}

// AdjustWeights runs the daily banded weight pass and the auto-disable
// rule over every enabled (bot, regime) row.
func (e *Engine) AdjustWeights(ctx context.Context) error {
	rows, err := e.store.ListBotMetrics(ctx)
	if err != nil {
		return fmt.Errorf("failed to load bot metrics: %w", err)
	}

	tripped := map[string]bool{}
	for _, m := range rows {
		if !m.IsEnabled {
			continue
		}
		acc, samples := effectiveAccuracy(m)
		if acc == nil || samples < e.cfg.MinSamples {
			continue
		}

		if *acc < disableAccuracy && m.TotalPredictions >= disableSamples {
			tripped[m.BotName] = true
			continue
		}

		next, band := e.bandedWeight(m.CurrentWeight, *acc)
		if band == "hold" || next == m.CurrentWeight {
			continue
		}
		reason := fmt.Sprintf("accuracy %.2f over %d predictions", *acc, samples)
		if err := e.store.UpdateBotWeight(ctx, m.BotName, m.MarketRegime, next, reason); err != nil {
			return err
		}
		metrics.WeightAdjustments.WithLabelValues(band).Inc()
		e.log.Info().
			Str("bot", m.BotName).
			Str("regime", m.MarketRegime).
			Float64("from", m.CurrentWeight).
			Float64("to", next).
			Str("band", band).
			Msg("Weight adjusted")
	}

	for bot := range tripped {
		if err := e.disableBot(ctx, rows, bot, "accuracy below 0.35 over 50+ predictions"); err != nil {
			return err
		}
	}
	return nil
}

// effectiveAccuracy prefers the 30d window, falling back to lifetime.
func effectiveAccuracy(m *db.BotAccuracyMetrics) (*float64, int) {
	if m.Last30dAccuracy != nil {
		return m.Last30dAccuracy, m.TotalPredictions
	}
	return m.AccuracyRate, m.TotalPredictions
}

func (e *Engine) bandedWeight(current, accuracy float64) (float64, string) {
	switch {
	case accuracy >= boostAccuracy:
		return clamp(current*boostFactor, e.cfg.MinWeight, e.cfg.MaxWeight), "boost"
	case accuracy >= raiseAccuracy:
		return clamp(current*raiseFactor, e.cfg.MinWeight, e.cfg.MaxWeight), "raise"
	case accuracy >= holdAccuracy:
		return current, "hold"
	default:
		return clamp(current*cutFactor, e.cfg.MinWeight, e.cfg.MaxWeight), "cut"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// disableBot turns every regime row for a bot off together and bumps
// its disable count. Three strikes makes it permanent.
func (e *Engine) disableBot(ctx context.Context, rows []*db.BotAccuracyMetrics, bot, reason string) error {
	for _, m := range rows {
		if m.BotName != bot || !m.IsEnabled {
			continue
		}
		if err := e.store.DisableBot(ctx, bot, m.MarketRegime, reason); err != nil {
			return err
		}
	}

	g, err := e.store.GetBotGuardrails(ctx, bot)
	if err != nil {
		return err
	}
	if g == nil {
		g = &db.BotGuardrails{BotName: bot}
	}
	g.TimesDisabled++
	g.IsOnProbation = false
	g.IsProbationMode = false
	if g.TimesDisabled >= maxDisables {
		g.PermanentlyDisabled = true
	}
	if err := e.store.UpsertBotGuardrails(ctx, g); err != nil {
		return err
	}

	metrics.BotsDisabled.Inc()
	e.log.Warn().
		Str("bot", bot).
		Int("times_disabled", g.TimesDisabled).
		Bool("permanent", g.PermanentlyDisabled).
		Msg("Bot disabled")
	return nil
}

// ReviewDisabled re-enables bots that have served their 7 days,
// putting them on probation with tightened guardrails.
func (e *Engine) ReviewDisabled(ctx context.Context) error {
	names, err := e.store.DisabledBotsSince(ctx, reenableAfter)
	if err != nil {
		return fmt.Errorf("failed to list disabled bots: %w", err)
	}

	now := e.now()
	for _, bot := range names {
		g, err := e.store.GetBotGuardrails(ctx, bot)
		if err != nil {
			return err
		}
		if g != nil && g.PermanentlyDisabled {
			continue
		}
		if g == nil {
			g = &db.BotGuardrails{BotName: bot}
		}

		if err := e.store.ReenableBot(ctx, bot); err != nil {
			return err
		}

		defaults := bots.DefaultProbationGuardrails()
		g.IsOnProbation = true
		g.IsProbationMode = true
		g.ProbationStart = &now
		g.ProbationEnd = nil
		g.ProbationPredictions = 0
		g.ProbationCorrect = 0
		g.TimesReenabled++
		g.MaxLeverage = defaults.MaxLeverage
		g.MinConfidenceRequired = defaults.MinConfidence
		g.StopLossMultiplier = defaults.StopLossMultiplier
		g.MaxPositionSizePercent = defaults.MaxPositionPercent
		if err := e.store.UpsertBotGuardrails(ctx, g); err != nil {
			return err
		}

		metrics.BotsReenabled.Inc()
		e.log.Info().Str("bot", bot).Int("times_reenabled", g.TimesReenabled).Msg("Bot re-enabled on probation")
	}
	return nil
}

// ResolveProbations settles probations with enough evidence: clear the
// bot or send it back to the bench.
func (e *Engine) ResolveProbations(ctx context.Context) error {
	all, err := e.store.ListGuardrails(ctx)
	if err != nil {
		return fmt.Errorf("failed to load guardrails: %w", err)
	}

	now := e.now()
	for _, g := range all {
		if !g.IsOnProbation || g.ProbationPredictions < probationPredictions {
			continue
		}
		acc := float64(g.ProbationCorrect) / float64(g.ProbationPredictions)

		if acc >= probationAccuracy {
			g.IsOnProbation = false
			g.IsProbationMode = false
			g.ProbationEnd = &now
			if err := e.store.UpsertBotGuardrails(ctx, g); err != nil {
				return err
			}
			e.log.Info().Str("bot", g.BotName).Float64("accuracy", acc).Msg("Probation cleared")
			continue
		}

		rows, err := e.store.ListBotMetrics(ctx)
		if err != nil {
			return err
		}
		reason := fmt.Sprintf("probation accuracy %.2f over %d predictions", acc, g.ProbationPredictions)
		if err := e.disableBot(ctx, rows, g.BotName, reason); err != nil {
			return err
		}
	}
	return nil
}
