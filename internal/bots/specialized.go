package bots

import (
	"fmt"
	"math"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/indicators"
)

// specializedBots are setups that do not reduce to one indicator
// family: regime plays, fib pockets, staged risk-reward entries.
func specializedBots() []Bot {
	return []Bot{
		&rule{name: "regime_rotator", category: CategorySpecialized, analyze: analyzeRegimeRotator},
		&rule{name: "confluence_stack", category: CategorySpecialized, analyze: analyzeConfluenceStack},
		&rule{name: "golden_pocket", category: CategorySpecialized, analyze: analyzeGoldenPocket},
		&rule{name: "risk_reward_sentinel", category: CategorySpecialized, analyze: analyzeRiskRewardSentinel},
	}
}

func analyzeRegimeRotator(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil || d.Regime.Confidence < 0.6 {
		return nil
	}
	conf := clampConf(5 + int(d.Regime.Confidence*4))
	switch d.Regime.Label {
	case indicators.RegimeBull:
		return &signal{
			dir:        DirectionLong,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 7, stopLoss: 3.5,
			rationale: fmt.Sprintf("bull regime at %.0f%% confidence", d.Regime.Confidence*100),
		}
	case indicators.RegimeBear:
		return &signal{
			dir:        DirectionShort,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 7, stopLoss: 3.5,
			rationale: fmt.Sprintf("bear regime at %.0f%% confidence", d.Regime.Confidence*100),
		}
	}
	return nil
}

func analyzeConfluenceStack(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	var up, down, counted int
	tally := func(p *float64, isUp func(v float64) bool) {
		v, ok := val(p)
		if !ok {
			return
		}
		counted++
		if isUp(v) {
			up++
		} else {
			down++
		}
	}
	tally(d.RSI, func(v float64) bool { return v > 50 })
	tally(d.MACDHistogram, func(v float64) bool { return v > 0 })
	tally(d.EMA50, func(v float64) bool { return f.Price > v })
	tally(d.OBVSlope, func(v float64) bool { return v > 0 })
	tally(d.Momentum30, func(v float64) bool { return v > 0 })
	if counted < 4 {
		return nil
	}
	switch {
	case up >= 4:
		return &signal{
			dir:        DirectionLong,
			confidence: clampConf(4 + up),
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3,
			rationale: fmt.Sprintf("%d of %d daily reads bullish", up, counted),
		}
	case down >= 4:
		return &signal{
			dir:        DirectionShort,
			confidence: clampConf(4 + down),
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3,
			rationale: fmt.Sprintf("%d of %d daily reads bearish", down, counted),
		}
	}
	return nil
}

func analyzeGoldenPocket(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	cs, ok := lastCandles(f.DailySeries, 90)
	if !ok {
		return nil
	}
	swingHigh, swingLow := cs[0].High, cs[0].Low
	for _, c := range cs {
		swingHigh = math.Max(swingHigh, c.High)
		swingLow = math.Min(swingLow, c.Low)
	}
	span := swingHigh - swingLow
	if span <= 0 {
		return nil
	}
	emas, ok := vals(d.EMA20, d.EMA50)
	if !ok {
		return nil
	}
	uptrend := emas[0] > emas[1]
	if uptrend {
		retrace := (swingHigh - f.Price) / span
		if retrace >= 0.55 && retrace <= 0.70 {
			return &signal{
				dir:        DirectionLong,
				confidence: 7,
				leverage:   defaultLeverage,
				takeProfit: 8, stopLoss: 4,
				rationale: fmt.Sprintf("pullback to the %.0f%% pocket of the 90d swing", retrace*100),
			}
		}
		return nil
	}
	retrace := (f.Price - swingLow) / span
	if retrace >= 0.55 && retrace <= 0.70 {
		return &signal{
			dir:        DirectionShort,
			confidence: 7,
			leverage:   defaultLeverage,
			takeProfit: 8, stopLoss: 4,
			rationale: fmt.Sprintf("bounce to the %.0f%% pocket of the 90d swing", retrace*100),
		}
	}
	return nil
}

func analyzeRiskRewardSentinel(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	v, ok := vals(d.EMA20, d.EMA50, d.ATR, d.Momentum30)
	if !ok || f.Price <= 0 {
		return nil
	}
	fast, slow, atr, mom := v[0], v[1], v[2], v[3]
	atrPct := atr / f.Price * 100
	if atrPct <= 0 {
		return nil
	}
	stop := math.Min(math.Max(1.5*atrPct, 1), 12)
	target := 2 * stop
	switch {
	case fast > slow && mom > 0.001:
		// Stage the entry back at the EMA20 instead of chasing.
		return &signal{
			dir:        DirectionLong,
			confidence: 7,
			leverage:   defaultLeverage,
			entry:      fast,
			takeProfit: target, stopLoss: stop,
			rationale: fmt.Sprintf("staged long at EMA20 with 2:1 on %.1f%% ATR", atrPct),
		}
	case fast < slow && mom < -0.001:
		return &signal{
			dir:        DirectionShort,
			confidence: 7,
			leverage:   defaultLeverage,
			entry:      fast,
			takeProfit: target, stopLoss: stop,
			rationale: fmt.Sprintf("staged short at EMA20 with 2:1 on %.1f%% ATR", atrPct),
		}
	}
	return nil
}
