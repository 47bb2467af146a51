package bots

import (
	"math"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/market"
)

// patternBots read raw candle structure off the daily series instead
// of derived indicators.
func patternBots() []Bot {
	return []Bot{
		&rule{name: "engulfing_bar", category: CategoryPattern, analyze: analyzeEngulfingBar},
		&rule{name: "wick_rejection", category: CategoryPattern, analyze: analyzeWickRejection},
		&rule{name: "inside_bar_break", category: CategoryPattern, analyze: analyzeInsideBarBreak},
		&rule{name: "three_soldiers", category: CategoryPattern, analyze: analyzeThreeSoldiers},
	}
}

// lastCandles returns the trailing n candles, oldest first, and
// whether the series is deep enough and well-formed.
func lastCandles(s *market.Series, n int) ([]market.Candle, bool) {
	if s == nil || len(s.Candles) < n {
		return nil, false
	}
	out := s.Candles[len(s.Candles)-n:]
	for _, c := range out {
		if !finitePositive(c.Open) || !finitePositive(c.High) || !finitePositive(c.Low) || !finitePositive(c.Close) {
			return nil, false
		}
	}
	return out, true
}

func candleBody(c market.Candle) float64  { return math.Abs(c.Close - c.Open) }
func candleRange(c market.Candle) float64 { return c.High - c.Low }
func upperWick(c market.Candle) float64   { return c.High - math.Max(c.Open, c.Close) }
func lowerWick(c market.Candle) float64   { return math.Min(c.Open, c.Close) - c.Low }
func bullish(c market.Candle) bool        { return c.Close > c.Open }
func bearish(c market.Candle) bool        { return c.Close < c.Open }

func analyzeEngulfingBar(f *FeatureSet) *signal {
	cs, ok := lastCandles(f.DailySeries, 2)
	if !ok {
		return nil
	}
	prev, last := cs[0], cs[1]
	if candleBody(prev) == 0 {
		return nil
	}
	engulfs := last.Open <= math.Min(prev.Open, prev.Close) &&
		last.Close >= math.Max(prev.Open, prev.Close) &&
		candleBody(last) > candleBody(prev)
	swallowed := last.Open >= math.Max(prev.Open, prev.Close) &&
		last.Close <= math.Min(prev.Open, prev.Close) &&
		candleBody(last) > candleBody(prev)
	switch {
	case bullish(last) && bearish(prev) && engulfs:
		return &signal{
			dir:        DirectionLong,
			confidence: 7,
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: "bullish engulfing bar on the daily",
		}
	case bearish(last) && bullish(prev) && swallowed:
		return &signal{
			dir:        DirectionShort,
			confidence: 7,
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: "bearish engulfing bar on the daily",
		}
	}
	return nil
}

func analyzeWickRejection(f *FeatureSet) *signal {
	cs, ok := lastCandles(f.DailySeries, 4)
	if !ok {
		return nil
	}
	last := cs[3]
	body := candleBody(last)
	if body == 0 || candleRange(last) == 0 {
		return nil
	}
	// Direction into the bar decides which wick counts as rejection.
	declined := cs[2].Close < cs[0].Close
	advanced := cs[2].Close > cs[0].Close
	switch {
	case declined && lowerWick(last) >= 2*body && upperWick(last) < body:
		return &signal{
			dir:        DirectionLong,
			confidence: 7,
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 2.5,
			rationale: "hammer after a decline, sellers rejected",
		}
	case advanced && upperWick(last) >= 2*body && lowerWick(last) < body:
		return &signal{
			dir:        DirectionShort,
			confidence: 7,
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 2.5,
			rationale: "shooting star after an advance, buyers rejected",
		}
	}
	return nil
}

func analyzeInsideBarBreak(f *FeatureSet) *signal {
	cs, ok := lastCandles(f.DailySeries, 3)
	if !ok {
		return nil
	}
	mother, inside, breakout := cs[0], cs[1], cs[2]
	if inside.High >= mother.High || inside.Low <= mother.Low {
		return nil
	}
	switch {
	case breakout.Close > mother.High:
		return &signal{
			dir:        DirectionLong,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: "close broke above an inside-bar coil",
		}
	case breakout.Close < mother.Low:
		return &signal{
			dir:        DirectionShort,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: "close broke below an inside-bar coil",
		}
	}
	return nil
}

func analyzeThreeSoldiers(f *FeatureSet) *signal {
	cs, ok := lastCandles(f.DailySeries, 3)
	if !ok {
		return nil
	}
	soldiers, crows := true, true
	for i, c := range cs {
		r := candleRange(c)
		fullBody := r > 0 && candleBody(c)/r >= 0.6
		if !(bullish(c) && fullBody) || (i > 0 && c.Close <= cs[i-1].Close) {
			soldiers = false
		}
		if !(bearish(c) && fullBody) || (i > 0 && c.Close >= cs[i-1].Close) {
			crows = false
		}
	}
	switch {
	case soldiers:
		return &signal{
			dir:        DirectionLong,
			confidence: 8,
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3,
			rationale: "three full-bodied advancing candles",
		}
	case crows:
		return &signal{
			dir:        DirectionShort,
			confidence: 8,
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3,
			rationale: "three full-bodied declining candles",
		}
	}
	return nil
}
