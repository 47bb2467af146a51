package bots

import (
	"fmt"
	"math"
)

// meanReversionBots fade stretched moves back toward a local
// equilibrium. They carry tighter targets than the trend bots.
func meanReversionBots() []Bot {
	return []Bot{
		&rule{name: "rsi_reversal", category: CategoryMeanReversion, analyze: analyzeRSIReversal},
		&rule{name: "bollinger_fade", category: CategoryMeanReversion, analyze: analyzeBollingerFade},
		&rule{name: "mean_snap", category: CategoryMeanReversion, analyze: analyzeMeanSnap},
		&rule{name: "stoch_reversal", category: CategoryMeanReversion, analyze: analyzeStochReversal},
		&rule{name: "cci_extreme", category: CategoryMeanReversion, analyze: analyzeCCIExtreme},
		&rule{name: "williams_snapback", category: CategoryMeanReversion, analyze: analyzeWilliamsSnapback},
	}
}

func analyzeRSIReversal(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	rsi, ok := val(d.RSI)
	if !ok {
		return nil
	}
	switch {
	case rsi < 30:
		return &signal{
			dir:        DirectionLong,
			confidence: clampConf(6 + int((30-rsi)/5)),
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("daily RSI oversold at %.0f", rsi),
		}
	case rsi > 70:
		return &signal{
			dir:        DirectionShort,
			confidence: clampConf(6 + int((rsi-70)/5)),
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("daily RSI overbought at %.0f", rsi),
		}
	}
	return nil
}

func analyzeBollingerFade(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	v, ok := vals(d.BollingerUpper, d.BollingerLower)
	if !ok {
		return nil
	}
	upper, lower := v[0], v[1]
	switch {
	case f.Price < lower:
		return &signal{
			dir:        DirectionLong,
			confidence: 7,
			leverage:   defaultLeverage,
			takeProfit: 4, stopLoss: 2.5,
			rationale: "close below the lower Bollinger band",
		}
	case f.Price > upper:
		return &signal{
			dir:        DirectionShort,
			confidence: 7,
			leverage:   defaultLeverage,
			takeProfit: 4, stopLoss: 2.5,
			rationale: "close above the upper Bollinger band",
		}
	}
	return nil
}

func analyzeMeanSnap(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	mid, ok := val(d.BollingerMid)
	if !ok || mid == 0 {
		return nil
	}
	stretch := (f.Price - mid) / mid * 100
	if math.Abs(stretch) < 5 {
		return nil
	}
	sig := &signal{
		confidence: clampConf(5 + int(math.Abs(stretch)/4)),
		leverage:   defaultLeverage,
		takeProfit: math.Min(math.Abs(stretch), 12), stopLoss: 3,
	}
	if stretch > 0 {
		sig.dir = DirectionShort
		sig.rationale = fmt.Sprintf("price stretched %.1f%% above the 20d mean", stretch)
	} else {
		sig.dir = DirectionLong
		sig.rationale = fmt.Sprintf("price stretched %.1f%% below the 20d mean", -stretch)
	}
	return sig
}

func analyzeStochReversal(f *FeatureSet) *signal {
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
	case k < 20 && dLine < 20:
		return &signal{
			dir:        DirectionLong,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 4, stopLoss: 2.5,
			rationale: fmt.Sprintf("stochastic oversold, K %.0f D %.0f", k, dLine),
		}
	case k > 80 && dLine > 80:
		return &signal{
			dir:        DirectionShort,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 4, stopLoss: 2.5,
			rationale: fmt.Sprintf("stochastic overbought, K %.0f D %.0f", k, dLine),
		}
	}
	return nil
}

func analyzeCCIExtreme(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	cci, ok := val(d.CCI)
	if !ok {
		return nil
	}
	switch {
	case cci < -150:
		return &signal{
			dir:        DirectionLong,
			confidence: clampConf(6 + int((-cci-150)/100)),
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("CCI washed out at %.0f", cci),
		}
	case cci > 150:
		return &signal{
			dir:        DirectionShort,
			confidence: clampConf(6 + int((cci-150)/100)),
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("CCI euphoric at %.0f", cci),
		}
	}
	return nil
}

func analyzeWilliamsSnapback(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	wr, ok := val(d.WilliamsR)
	if !ok {
		return nil
	}
	switch {
	case wr < -85:
		return &signal{
			dir:        DirectionLong,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 4, stopLoss: 2.5,
			rationale: fmt.Sprintf("Williams %%R pinned at %.0f", wr),
		}
	case wr > -15:
		return &signal{
			dir:        DirectionShort,
			confidence: 6,
			leverage:   defaultLeverage,
			takeProfit: 4, stopLoss: 2.5,
			rationale: fmt.Sprintf("Williams %%R pinned at %.0f", wr),
		}
	}
	return nil
}
