package bots

import (
	"fmt"
	"math"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/indicators"
)

// volatilityBots size and direction their trades off the width of the
// recent range rather than its direction alone.
func volatilityBots() []Bot {
	return []Bot{
		&rule{name: "atr_breakout", category: CategoryVolatility, analyze: analyzeATRBreakout},
		&rule{name: "squeeze_release", category: CategoryVolatility, analyze: analyzeSqueezeRelease},
		&rule{name: "range_rider", category: CategoryVolatility, analyze: analyzeRangeRider},
		&rule{name: "calm_trend", category: CategoryVolatility, analyze: analyzeCalmTrend},
	}
}

func analyzeATRBreakout(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	v, ok := vals(d.ATR, d.SMA20)
	if !ok || v[0] <= 0 {
		return nil
	}
	atr, sma := v[0], v[1]
	excursion := f.Price - sma
	if math.Abs(excursion) < 1.5*atr {
		return nil
	}
	atrPct := atr / f.Price * 100
	stop := math.Min(math.Max(atrPct, 1.5), 12)
	conf := clampConf(6 + int(math.Abs(excursion)/atr-1.5))
	if excursion > 0 {
		return &signal{
			dir:        DirectionLong,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 2 * stop, stopLoss: stop,
			rationale: fmt.Sprintf("breakout %.1f ATRs above the 20d average", excursion/atr),
		}
	}
	return &signal{
		dir:        DirectionShort,
		confidence: conf,
		leverage:   defaultLeverage,
		takeProfit: 2 * stop, stopLoss: stop,
		rationale: fmt.Sprintf("breakdown %.1f ATRs below the 20d average", -excursion/atr),
	}
}

func analyzeSqueezeRelease(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	v, ok := vals(d.BollingerWidth, d.Momentum30)
	if !ok {
		return nil
	}
	width, mom := v[0], v[1]
	if width > 3.5 || math.Abs(mom) < 0.0005 {
		return nil
	}
	// Tight bands break in the direction the drift is already leaning.
	sig := &signal{
		confidence: 6,
		leverage:   defaultLeverage,
		takeProfit: 6, stopLoss: 2.5,
	}
	if mom > 0 {
		sig.dir = DirectionLong
		sig.rationale = fmt.Sprintf("bands squeezed to %.1f%%, drift leaning up", width)
	} else {
		sig.dir = DirectionShort
		sig.rationale = fmt.Sprintf("bands squeezed to %.1f%%, drift leaning down", width)
	}
	return sig
}

func analyzeRangeRider(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil || d.Regime.Label != indicators.RegimeVolatile {
		return nil
	}
	sar, ok := val(d.ParabolicSAR)
	if !ok || sar == f.Price {
		return nil
	}
	sig := &signal{
		confidence: 5,
		leverage:   1, // wide swings, keep the leverage down
		takeProfit: 9, stopLoss: 6,
	}
	if f.Price > sar {
		sig.dir = DirectionLong
		sig.rationale = "riding the volatile swing up off the SAR"
	} else {
		sig.dir = DirectionShort
		sig.rationale = "riding the volatile swing down off the SAR"
	}
	return sig
}

func analyzeCalmTrend(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	v, ok := vals(d.ATR, d.EMA20, d.EMA50)
	if !ok || f.Price <= 0 {
		return nil
	}
	atrPct := v[0] / f.Price * 100
	if atrPct > 1.5 {
		return nil
	}
	fast, slow := v[1], v[2]
	switch {
	case fast > slow:
		return &signal{
			dir:        DirectionLong,
			confidence: 7,
			leverage:   4, // quiet tape, trend intact
			takeProfit: 5, stopLoss: 2,
			rationale: fmt.Sprintf("trend up on a quiet tape, ATR %.1f%% of price", atrPct),
		}
	case fast < slow:
		return &signal{
			dir:        DirectionShort,
			confidence: 7,
			leverage:   4,
			takeProfit: 5, stopLoss: 2,
			rationale: fmt.Sprintf("trend down on a quiet tape, ATR %.1f%% of price", atrPct),
		}
	}
	return nil
}
