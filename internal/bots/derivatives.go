package bots

import (
	"fmt"
	"math"
)

// derivativesBots trade positioning in the futures and options
// markets rather than spot price action.
func derivativesBots() []Bot {
	return []Bot{
		&rule{name: "funding_skew", category: CategoryDerivatives, analyze: analyzeFundingSkew},
		&rule{name: "long_short_crowd", category: CategoryDerivatives, analyze: analyzeLongShortCrowd},
		&rule{name: "put_call_flow", category: CategoryDerivatives, analyze: analyzePutCallFlow},
		&rule{name: "max_pain_magnet", category: CategoryDerivatives, analyze: analyzeMaxPainMagnet},
		&rule{name: "gamma_event", category: CategoryDerivatives, analyze: analyzeGammaEvent},
	}
}

func analyzeFundingSkew(f *FeatureSet) *signal {
	dv := f.Derivatives
	if dv == nil {
		return nil
	}
	rate, ok := val(dv.FundingRate)
	if !ok {
		return nil
	}
	// 0.01% per interval is the usual baseline; several times that
	// means one side is paying heavily to stay in.
	switch {
	case rate > 0.0005:
		return &signal{
			dir:        DirectionShort,
			confidence: clampConf(6 + int(rate/0.0005)),
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("longs paying %.3f%% per interval to hold", rate*100),
		}
	case rate < -0.0003:
		return &signal{
			dir:        DirectionLong,
			confidence: clampConf(6 + int(-rate/0.0003)),
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("shorts paying %.3f%% per interval to hold", -rate*100),
		}
	}
	return nil
}

func analyzeLongShortCrowd(f *FeatureSet) *signal {
	dv := f.Derivatives
	if dv == nil {
		return nil
	}
	ratio, ok := val(dv.LongShortRatio)
	if !ok || ratio <= 0 {
		return nil
	}
	switch {
	case ratio > 2:
		return &signal{
			dir:        DirectionShort,
			confidence: clampConf(6 + int(ratio-2)),
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("%.1f accounts long per short, crowded", ratio),
		}
	case ratio < 0.7:
		return &signal{
			dir:        DirectionLong,
			confidence: clampConf(6 + int(0.7/ratio-1)),
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("only %.2f accounts long per short, washed out", ratio),
		}
	}
	return nil
}

func analyzePutCallFlow(f *FeatureSet) *signal {
	op := f.Options
	if op == nil {
		return nil
	}
	pcr, ok := val(op.PutCallRatio)
	if !ok || pcr <= 0 {
		return nil
	}
	switch {
	case pcr < 0.7:
		return &signal{
			dir:        DirectionLong,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3.5,
			rationale: fmt.Sprintf("call-heavy options flow, PCR %.2f", pcr),
		}
	case pcr > 1.3:
		return &signal{
			dir:        DirectionShort,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3.5,
			rationale: fmt.Sprintf("put-heavy options flow, PCR %.2f", pcr),
		}
	}
	return nil
}

func analyzeMaxPainMagnet(f *FeatureSet) *signal {
	op := f.Options
	if op == nil {
		return nil
	}
	pain, ok := val(op.MaxPain)
	if !ok || pain <= 0 {
		return nil
	}
	gap := (f.Price - pain) / pain * 100
	if math.Abs(gap) < 4 || math.Abs(gap) > 20 {
		return nil
	}
	// Price tends to drift toward the strike where option writers
	// hurt least as expiry approaches.
	sig := &signal{
		confidence: 5,
		leverage:   1,
		takeProfit: math.Min(math.Abs(gap), 10), stopLoss: 4,
	}
	if gap > 0 {
		sig.dir = DirectionShort
		sig.rationale = fmt.Sprintf("price %.1f%% above max pain %.0f", gap, pain)
	} else {
		sig.dir = DirectionLong
		sig.rationale = fmt.Sprintf("price %.1f%% below max pain %.0f", -gap, pain)
	}
	return sig
}

func analyzeGammaEvent(f *FeatureSet) *signal {
	op := f.Options
	if op == nil || op.UnusualActivity == nil || !*op.UnusualActivity {
		return nil
	}
	iv, ok := val(op.ImpliedVolatility)
	if !ok || iv < 80 {
		return nil
	}
	d := f.Daily
	if d == nil {
		return nil
	}
	mom, ok := val(d.Momentum30)
	if !ok || math.Abs(mom) < 0.0005 {
		return nil
	}
	sig := &signal{
		confidence: 6,
		leverage:   1, // an options scramble cuts both ways
		takeProfit: 8, stopLoss: 5,
	}
	if mom > 0 {
		sig.dir = DirectionLong
		sig.rationale = fmt.Sprintf("unusual options turnover at IV %.0f, drift up", iv)
	} else {
		sig.dir = DirectionShort
		sig.rationale = fmt.Sprintf("unusual options turnover at IV %.0f, drift down", iv)
	}
	return sig
}
