package bots

import (
	"fmt"
	"math"
)

// trendBots follow an established directional move and want the
// market already pointing their way.
func trendBots() []Bot {
	return []Bot{
		&rule{name: "ema_crossover", category: CategoryTrend, analyze: analyzeEMACrossover},
		&rule{name: "golden_cross", category: CategoryTrend, analyze: analyzeGoldenCross},
		&rule{name: "adx_trend_rider", category: CategoryTrend, analyze: analyzeADXTrendRider},
		&rule{name: "ichimoku_cloud", category: CategoryTrend, analyze: analyzeIchimokuCloud},
		&rule{name: "parabolic_trail", category: CategoryTrend, analyze: analyzeParabolicTrail},
		&rule{name: "weekly_trendline", category: CategoryTrend, analyze: analyzeWeeklyTrendline},
		&rule{name: "macd_trend", category: CategoryTrend, analyze: analyzeMACDTrend},
		&rule{name: "timeframe_stack", category: CategoryTrend, analyze: analyzeTimeframeStack},
	}
}

func analyzeEMACrossover(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	v, ok := vals(d.EMA20, d.EMA50)
	if !ok || v[1] == 0 {
		return nil
	}
	spread := (v[0] - v[1]) / v[1] * 100
	switch {
	case spread > 0.5:
		return &signal{
			dir:        DirectionLong,
			confidence: clampConf(6 + int(spread/2)),
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3,
			rationale: fmt.Sprintf("daily EMA20 %.1f%% above EMA50", spread),
		}
	case spread < -0.5:
		return &signal{
			dir:        DirectionShort,
			confidence: clampConf(6 + int(-spread/2)),
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3,
			rationale: fmt.Sprintf("daily EMA20 %.1f%% below EMA50", -spread),
		}
	}
	return nil
}

func analyzeGoldenCross(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	v, ok := vals(d.EMA50, d.EMA200)
	if !ok || v[1] == 0 {
		return nil
	}
	spread := (v[0] - v[1]) / v[1] * 100
	switch {
	case spread > 1:
		return &signal{
			dir:        DirectionLong,
			confidence: clampConf(7 + int(spread/5)),
			leverage:   3,
			takeProfit: 10, stopLoss: 4,
			rationale: fmt.Sprintf("golden cross, EMA50 %.1f%% above EMA200", spread),
		}
	case spread < -1:
		return &signal{
			dir:        DirectionShort,
			confidence: clampConf(7 + int(-spread/5)),
			leverage:   3,
			takeProfit: 10, stopLoss: 4,
			rationale: fmt.Sprintf("death cross, EMA50 %.1f%% below EMA200", -spread),
		}
	}
	return nil
}

func analyzeADXTrendRider(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	v, ok := vals(d.ADX, d.Momentum30)
	if !ok {
		return nil
	}
	adx, mom := v[0], v[1]
	if adx < 25 || math.Abs(mom) < 0.001 {
		return nil
	}
	dir := DirectionLong
	if mom < 0 {
		dir = DirectionShort
	}
	return &signal{
		dir:        dir,
		confidence: clampConf(5 + int((adx-25)/10)),
		leverage:   defaultLeverage,
		takeProfit: 7, stopLoss: 3.5,
		rationale: fmt.Sprintf("ADX %.0f trend, 30d drift %.2f%%/bar", adx, mom*100),
	}
}

func analyzeIchimokuCloud(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	v, ok := vals(d.IchimokuSpanA, d.IchimokuSpanB)
	if !ok {
		return nil
	}
	top, bottom := math.Max(v[0], v[1]), math.Min(v[0], v[1])
	conf := 7
	if lines, ok := vals(d.IchimokuConversion, d.IchimokuBase); ok && lines[0] > lines[1] {
		conf++
	}
	switch {
	case f.Price > top:
		return &signal{
			dir:        DirectionLong,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 8, stopLoss: 4,
			rationale: "price above the Ichimoku cloud",
		}
	case f.Price < bottom:
		return &signal{
			dir:        DirectionShort,
			confidence: 7,
			leverage:   defaultLeverage,
			takeProfit: 8, stopLoss: 4,
			rationale: "price below the Ichimoku cloud",
		}
	}
	return nil
}

func analyzeParabolicTrail(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	sar, ok := val(d.ParabolicSAR)
	if !ok || sar == f.Price {
		return nil
	}
	dist := math.Abs(f.Price-sar) / f.Price * 100
	stop := math.Min(math.Max(dist, 1), 15) // stop sits at the SAR flip level
	sig := &signal{
		confidence: clampConf(5 + int(dist/2)),
		leverage:   defaultLeverage,
		takeProfit: 2 * stop, stopLoss: stop,
	}
	if f.Price > sar {
		sig.dir = DirectionLong
		sig.rationale = fmt.Sprintf("SAR trailing %.1f%% below price", dist)
	} else {
		sig.dir = DirectionShort
		sig.rationale = fmt.Sprintf("SAR trailing %.1f%% above price", dist)
	}
	return sig
}

func analyzeWeeklyTrendline(f *FeatureSet) *signal {
	w := f.Weekly
	if w == nil {
		return nil
	}
	ema, ok := val(w.EMA20)
	if !ok || ema == 0 {
		return nil
	}
	switch {
	case f.Price > ema*1.02:
		return &signal{
			dir:        DirectionLong,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 12, stopLoss: 6,
			rationale: "price holding above the weekly EMA20",
		}
	case f.Price < ema*0.98:
		return &signal{
			dir:        DirectionShort,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 12, stopLoss: 6,
			rationale: "price rejected below the weekly EMA20",
		}
	}
	return nil
}

func analyzeMACDTrend(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	v, ok := vals(d.MACD, d.MACDSignal)
	if !ok {
		return nil
	}
	line, sigLine := v[0], v[1]
	strength := math.Abs(line-sigLine) / f.Price * 100
	conf := clampConf(6 + int(strength*2))
	switch {
	case line > 0 && line > sigLine:
		return &signal{
			dir:        DirectionLong,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3,
			rationale: "MACD positive and above its signal line",
		}
	case line < 0 && line < sigLine:
		return &signal{
			dir:        DirectionShort,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3,
			rationale: "MACD negative and below its signal line",
		}
	}
	return nil
}

func analyzeTimeframeStack(f *FeatureSet) *signal {
	if f.Daily == nil || f.FourHour == nil {
		return nil
	}
	daily, ok := val(f.Daily.Momentum30)
	if !ok {
		return nil
	}
	intra, ok := val(f.FourHour.Momentum30)
	if !ok {
		return nil
	}
	const drift = 0.0015
	switch {
	case daily > drift && intra > drift:
		return &signal{
			dir:        DirectionLong,
			confidence: 7,
			leverage:   3,
			takeProfit: 6, stopLoss: 3,
			rationale: "daily and 4h drift aligned up",
		}
	case daily < -drift && intra < -drift:
		return &signal{
			dir:        DirectionShort,
			confidence: 7,
			leverage:   3,
			takeProfit: 6, stopLoss: 3,
			rationale: "daily and 4h drift aligned down",
		}
	}
	return nil
}
