package bots

import (
	"fmt"
	"math"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/indicators"
)

// ensembleBots (the "ai" category) blend many weak reads into one
// call instead of trading a single setup. They are deterministic
// composites; the model-backed refinement happens downstream in
// aggregation, not here.
func ensembleBots() []Bot {
	return []Bot{
		&rule{name: "ensemble_vote", category: CategoryAI, analyze: analyzeEnsembleVote},
		&rule{name: "feature_blend", category: CategoryAI, analyze: analyzeFeatureBlend},
		&rule{name: "regime_consensus", category: CategoryAI, analyze: analyzeRegimeConsensus},
	}
}

func analyzeEnsembleVote(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	var up, total int
	cast := func(p *float64, isUp func(v float64) bool) {
		v, ok := val(p)
		if !ok {
			return
		}
		total++
		if isUp(v) {
			up++
		}
	}
	cast(d.EMA20, func(v float64) bool { return f.Price > v })
	cast(d.MACDHistogram, func(v float64) bool { return v > 0 })
	cast(d.RSI, func(v float64) bool { return v > 50 })
	cast(d.ParabolicSAR, func(v float64) bool { return f.Price > v })
	cast(d.OBVSlope, func(v float64) bool { return v > 0 })
	cast(d.Momentum30, func(v float64) bool { return v > 0 })
	if total < 4 {
		return nil
	}
	down := total - up
	switch {
	case up*3 >= total*2: // two thirds or better
		return &signal{
			dir:        DirectionLong,
			confidence: clampConf(4 + up),
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3,
			rationale: fmt.Sprintf("ensemble %d-%d for long", up, down),
		}
	case down*3 >= total*2:
		return &signal{
			dir:        DirectionShort,
			confidence: clampConf(4 + down),
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3,
			rationale: fmt.Sprintf("ensemble %d-%d for short", down, up),
		}
	}
	return nil
}

func analyzeFeatureBlend(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil || f.Price <= 0 {
		return nil
	}
	clip := func(v float64) float64 { return math.Max(-1, math.Min(1, v)) }

	var score, weight float64
	blend := func(w float64, p *float64, normalize func(v float64) float64) {
		v, ok := val(p)
		if !ok {
			return
		}
		score += w * clip(normalize(v))
		weight += w
	}
	blend(0.20, d.RSI, func(v float64) float64 { return (v - 50) / 50 })
	blend(0.20, d.MACDHistogram, func(v float64) float64 { return v / f.Price * 100 })
	blend(0.25, d.EMA50, func(v float64) float64 { return (f.Price - v) / v * 100 / 3 })
	blend(0.15, d.OBVSlope, func(v float64) float64 { return v / 0.05 })
	blend(0.20, d.Momentum30, func(v float64) float64 { return v / 0.005 })
	if weight < 0.6 {
		return nil
	}
	score /= weight
	if math.Abs(score) < 0.25 {
		return nil
	}
	sig := &signal{
		confidence: clampConf(5 + int(math.Abs(score)*5)),
		leverage:   defaultLeverage,
		takeProfit: 6, stopLoss: 3,
	}
	if score > 0 {
		sig.dir = DirectionLong
		sig.rationale = fmt.Sprintf("blended feature score %+.2f", score)
	} else {
		sig.dir = DirectionShort
		sig.rationale = fmt.Sprintf("blended feature score %+.2f", score)
	}
	return sig
}

func analyzeRegimeConsensus(f *FeatureSet) *signal {
	if f.Daily == nil || f.FourHour == nil || f.Weekly == nil {
		return nil
	}
	labels := []indicators.RegimeLabel{
		f.Daily.Regime.Label,
		f.FourHour.Regime.Label,
		f.Weekly.Regime.Label,
	}
	allAre := func(want indicators.RegimeLabel) bool {
		for _, l := range labels {
			if l != want {
				return false
			}
		}
		return true
	}
	switch {
	case allAre(indicators.RegimeBull):
		return &signal{
			dir:        DirectionLong,
			confidence: 9,
			leverage:   3,
			takeProfit: 8, stopLoss: 4,
			rationale: "bull regime on weekly, daily and 4h",
		}
	case allAre(indicators.RegimeBear):
		return &signal{
			dir:        DirectionShort,
			confidence: 9,
			leverage:   3,
			takeProfit: 8, stopLoss: 4,
			rationale: "bear regime on weekly, daily and 4h",
		}
	}
	return nil
}
