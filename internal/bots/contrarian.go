package bots

import (
	"fmt"
	"math"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/market"
)

// contrarianBots take the other side of a crowded trade. Aggregation
// amplifies them when several agree with the winning direction.
func contrarianBots() []Bot {
	return []Bot{
		&rule{name: "crowd_fade", category: CategoryContrarian, analyze: analyzeCrowdFade},
		&rule{name: "leverage_flush", category: CategoryContrarian, analyze: analyzeLeverageFlush},
		&rule{name: "overextension_fade", category: CategoryContrarian, analyze: analyzeOverextensionFade},
		&rule{name: "euphoria_fade", category: CategoryContrarian, analyze: analyzeEuphoriaFade},
	}
}

func analyzeCrowdFade(f *FeatureSet) *signal {
	s := f.Sentiment
	if s == nil {
		return nil
	}
	switch s.Classification {
	case market.SentimentVeryBullish:
		return &signal{
			dir:        DirectionShort,
			confidence: 6,
			leverage:   1,
			takeProfit: 5, stopLoss: 3.5,
			rationale: "crowd euphoric, fading the consensus",
		}
	case market.SentimentVeryBearish:
		return &signal{
			dir:        DirectionLong,
			confidence: 6,
			leverage:   1,
			takeProfit: 5, stopLoss: 3.5,
			rationale: "crowd capitulating, fading the consensus",
		}
	}
	return nil
}

func analyzeLeverageFlush(f *FeatureSet) *signal {
	dv := f.Derivatives
	if dv == nil {
		return nil
	}
	v, ok := vals(dv.FundingRate, dv.LongShortRatio)
	if !ok || v[1] <= 0 {
		return nil
	}
	rate, ratio := v[0], v[1]
	// Both gauges leaning the same way marks a one-sided book ripe
	// for a squeeze.
	switch {
	case rate > 0.0008 && ratio > 2.5:
		return &signal{
			dir:        DirectionShort,
			confidence: 8,
			leverage:   defaultLeverage,
			takeProfit: 7, stopLoss: 4,
			rationale: fmt.Sprintf("one-sided long book, funding %.3f%%, LSR %.1f", rate*100, ratio),
		}
	case rate < -0.0005 && ratio < 0.6:
		return &signal{
			dir:        DirectionLong,
			confidence: 8,
			leverage:   defaultLeverage,
			takeProfit: 7, stopLoss: 4,
			rationale: fmt.Sprintf("one-sided short book, funding %.3f%%, LSR %.2f", rate*100, ratio),
		}
	}
	return nil
}

func analyzeOverextensionFade(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	ema, ok := val(d.EMA20)
	if !ok || ema == 0 {
		return nil
	}
	stretch := (f.Price - ema) / ema * 100
	if math.Abs(stretch) < 10 {
		return nil
	}
	sig := &signal{
		confidence: clampConf(6 + int(math.Abs(stretch)/10)),
		leverage:   defaultLeverage,
		takeProfit: math.Min(math.Abs(stretch)/2, 12), stopLoss: 4,
	}
	if stretch > 0 {
		sig.dir = DirectionShort
		sig.rationale = fmt.Sprintf("price %.0f%% above its EMA20, rubber band stretched", stretch)
	} else {
		sig.dir = DirectionLong
		sig.rationale = fmt.Sprintf("price %.0f%% below its EMA20, rubber band stretched", -stretch)
	}
	return sig
}

func analyzeEuphoriaFade(f *FeatureSet) *signal {
	d := f.Daily
	if d == nil {
		return nil
	}
	rsi, ok := val(d.RSI)
	if !ok {
		return nil
	}
	switch {
	case rsi > 80:
		return &signal{
			dir:        DirectionShort,
			confidence: clampConf(7 + int((rsi-80)/7)),
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3,
			rationale: fmt.Sprintf("RSI blown out at %.0f", rsi),
		}
	case rsi < 20:
		return &signal{
			dir:        DirectionLong,
			confidence: clampConf(7 + int((20-rsi)/7)),
			leverage:   defaultLeverage,
			takeProfit: 6, stopLoss: 3,
			rationale: fmt.Sprintf("RSI flushed to %.0f", rsi),
		}
	}
	return nil
}
