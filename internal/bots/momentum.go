package bots

import (
	"fmt"
	"math"
)

// momentumBots trade continuation: the move is underway and they join
// it while it still has room, before the reversal crowd shows up.
func momentumBots() []Bot {
	return []Bot{
		&rule{name: "macd_momentum", category: CategoryMomentum, analyze: analyzeMACDMomentum},
		&rule{name: "momentum_surge", category: CategoryMomentum, analyze: analyzeMomentumSurge},
		&rule{name: "rsi_momentum", category: CategoryMomentum, analyze: analyzeRSIMomentum},
		&rule{name: "stoch_cross", category: CategoryMomentum, analyze: analyzeStochCross},
		&rule{name: "rate_of_change", category: CategoryMomentum, analyze: analyzeRateOfChange},
		&rule{name: "hourly_thrust", category: CategoryMomentum, analyze: analyzeHourlyThrust},
	}
}

func analyzeMACDMomentum(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	hist, ok := val(d.MACDHistogram)
	if !ok {
		return nil
	}
	strength := math.Abs(hist) / f.Price * 100
	if strength < 0.2 {
		return nil
	}
	conf := clampConf(6 + int(strength))
	if hist > 0 {
		return &signal{
			dir:        DirectionLong,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("MACD histogram %.2f%% of price, expanding up", strength),
		}
	}
	return &signal{
		dir:        DirectionShort,
		confidence: conf,
		leverage:   defaultLeverage,
		takeProfit: 5, stopLoss: 3,
		rationale: fmt.Sprintf("MACD histogram %.2f%% of price, expanding down", strength),
	}
}

func analyzeMomentumSurge(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	mom, ok := val(d.Momentum30)
	if !ok {
		return nil
	}
	const surge = 0.004 // 0.4% per bar over the 30d window
	if math.Abs(mom) < surge {
		return nil
	}
	conf := clampConf(6 + int(math.Abs(mom)/surge))
	if mom > 0 {
		return &signal{
			dir:        DirectionLong,
			confidence: conf,
			leverage:   3,
			takeProfit: 8, stopLoss: 4,
			rationale: fmt.Sprintf("30d drift %.2f%%/bar", mom*100),
		}
	}
	return &signal{
		dir:        DirectionShort,
		confidence: conf,
		leverage:   3,
		takeProfit: 8, stopLoss: 4,
		rationale: fmt.Sprintf("30d drift %.2f%%/bar", mom*100),
	}
}

func analyzeRSIMomentum(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	rsi, ok := val(d.RSI)
	if !ok {
		return nil
	}
	// Continuation zone only: extremes belong to the reversal bots.
	switch {
	case rsi >= 55 && rsi <= 70:
		return &signal{
			dir:        DirectionLong,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("RSI %.0f in the bullish continuation zone", rsi),
		}
	case rsi >= 30 && rsi <= 45:
		return &signal{
			dir:        DirectionShort,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("RSI %.0f in the bearish continuation zone", rsi),
		}
	}
	return nil
}

func analyzeStochCross(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	v, ok := vals(d.StochK, d.StochD)
	if !ok {
		return nil
	}
	k, dLine := v[0], v[1]
	switch {
	case k > dLine && k >= 40 && k <= 80:
		return &signal{
			dir:        DirectionLong,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 4.5, stopLoss: 2.5,
			rationale: fmt.Sprintf("stochastic K %.0f crossed above D mid-range", k),
		}
	case k < dLine && k >= 20 && k <= 60:
		return &signal{
			dir:        DirectionShort,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 4.5, stopLoss: 2.5,
			rationale: fmt.Sprintf("stochastic K %.0f crossed below D mid-range", k),
		}
	}
	return nil
}

func analyzeRateOfChange(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	sma, ok := val(d.SMA20)
	if !ok || sma == 0 {
		return nil
	}
	roc := (f.Price - sma) / sma * 100
	if math.Abs(roc) < 3 {
		return nil
	}
	conf := clampConf(6 + int(math.Abs(roc)/3))
	if roc > 0 {
		return &signal{
			dir:        DirectionLong,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3,
			rationale: fmt.Sprintf("price %.1f%% above its 20d average", roc),
		}
	}
	return &signal{
		dir:        DirectionShort,
		confidence: conf,
		leverage:   defaultLeverage,
		takeProfit: 6, stopLoss: 3,
		rationale: fmt.Sprintf("price %.1f%% below its 20d average", -roc),
	}
}

func analyzeHourlyThrust(f *FeatureSet) *signal {
	h := f.Hourly
	if h == nil {
		return nil
	}
	v, ok := vals(h.Momentum30, h.RSI)
	if !ok {
		return nil
	}
	mom, rsi := v[0], v[1]
	const drift = 0.001
	switch {
	case mom > drift && rsi > 60 && rsi < 80:
		return &signal{
			dir:        DirectionLong,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 3, stopLoss: 2,
			rationale: "hourly thrust up with RSI backing it",
		}
	case mom < -drift && rsi < 40 && rsi > 20:
		return &signal{
			dir:        DirectionShort,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 3, stopLoss: 2,
			rationale: "hourly thrust down with RSI backing it",
		}
	}
	return nil
}
