package bots

import (
	"fmt"
	"math"
)

// volumeBots read the tape: where the money is actually moving, as
// opposed to where the price candle happens to sit.
func volumeBots() []Bot {
	return []Bot{
		&rule{name: "obv_trend", category: CategoryVolume, analyze: analyzeOBVTrend},
		&rule{name: "vwap_deviation", category: CategoryVolume, analyze: analyzeVWAPDeviation},
		&rule{name: "turnover_spike", category: CategoryVolume, analyze: analyzeTurnoverSpike},
		&rule{name: "obv_divergence", category: CategoryVolume, analyze: analyzeOBVDivergence},
	}
}

func analyzeOBVTrend(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	slope, ok := val(d.OBVSlope)
	if !ok {
		return nil
	}
	const floor = 0.02
	if math.Abs(slope) < floor {
		return nil
	}
	conf := clampConf(6 + int(math.Abs(slope)/floor/2))
	if slope > 0 {
		return &signal{
			dir:        DirectionLong,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: "on-balance volume climbing",
		}
	}
	return &signal{
		dir:        DirectionShort,
		confidence: conf,
		leverage:   defaultLeverage,
		takeProfit: 5, stopLoss: 3,
		rationale: "on-balance volume draining",
	}
}

func analyzeVWAPDeviation(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	vwap, ok := val(d.VWAP)
	if !ok || vwap == 0 {
		return nil
	}
	dev := (f.Price - vwap) / vwap * 100
	switch {
	case dev > 2:
		return &signal{
			dir:        DirectionLong,
			confidence: clampConf(6 + int(dev/4)),
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("price %.1f%% above volume-weighted average", dev),
		}
	case dev < -2:
		return &signal{
			dir:        DirectionShort,
			confidence: clampConf(6 + int(-dev/4)),
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("price %.1f%% below volume-weighted average", -dev),
		}
	}
	return nil
}

func analyzeTurnoverSpike(f *FeatureSet) *signal {
	q := f.Quote
	if q == nil {
		return nil
	}
	v, ok := vals(q.Volume24h, q.MarketCap, q.Change24h)
	if !ok || v[1] <= 0 {
		return nil
	}
	turnover := v[0] / v[1]
	change := v[2]
	if turnover < 0.15 || math.Abs(change) < 1 {
		return nil
	}
	conf := clampConf(6 + int(turnover/0.15))
	if change > 0 {
		return &signal{
			dir:        DirectionLong,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3.5,
			rationale: fmt.Sprintf("24h turnover %.0f%% of cap on a %.1f%% move", turnover*100, change),
		}
	}
	return &signal{
		dir:        DirectionShort,
		confidence: conf,
		leverage:   defaultLeverage,
		takeProfit: 6, stopLoss: 3.5,
		rationale: fmt.Sprintf("24h turnover %.0f%% of cap on a %.1f%% drop", turnover*100, -change),
	}
}

func analyzeOBVDivergence(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	v, ok := vals(d.OBVSlope, d.Momentum30)
	if !ok {
		return nil
	}
	obv, mom := v[0], v[1]
	// Volume leading against price is an early reversal read.
	switch {
	case mom > 0.001 && obv < -0.02:
		return &signal{
			dir:        DirectionShort,
			confidence: 6,
			leverage:   1,
			takeProfit: 5, stopLoss: 3,
			rationale: "price climbing on draining volume",
		}
	case mom < -0.001 && obv > 0.02:
		return &signal{
			dir:        DirectionLong,
			confidence: 6,
			leverage:   1,
			takeProfit: 5, stopLoss: 3,
			rationale: "price falling on accumulating volume",
		}
	}
	return nil
}
