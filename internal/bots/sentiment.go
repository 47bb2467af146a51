package bots

import (
	"fmt"
	"math"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/market"
)

// sentimentBots follow the social read. Unlike the contrarian bank
// they treat the crowd as informed until it reaches euphoria.
func sentimentBots() []Bot {
	return []Bot{
		&rule{name: "social_tide", category: CategorySentiment, analyze: analyzeSocialTide},
		&rule{name: "sentiment_divergence", category: CategorySentiment, analyze: analyzeSentimentDivergence},
		&rule{name: "buzz_surge", category: CategorySentiment, analyze: analyzeBuzzSurge},
	}
}

func analyzeSocialTide(f *FeatureSet) *signal {
	s := f.Sentiment
	if s == nil {
		return nil
	}
	score, ok := val(s.Score)
	if !ok {
		return nil
	}
	conf := clampConf(5 + int(math.Abs(score)*5))
	switch s.Classification {
	case market.SentimentBullish, market.SentimentVeryBullish:
		return &signal{
			dir:        DirectionLong,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("social sentiment %s at %+.2f", s.Classification, score),
		}
	case market.SentimentBearish, market.SentimentVeryBearish:
		return &signal{
			dir:        DirectionShort,
			confidence: conf,
			leverage:   defaultLeverage,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("social sentiment %s at %+.2f", s.Classification, score),
		}
	}
	return nil
}

func analyzeSentimentDivergence(f *FeatureSet) *signal {
	s, q := f.Sentiment, f.Quote
	if s == nil || q == nil {
		return nil
	}
	score, ok := val(s.Score)
	if !ok {
		return nil
	}
	change, ok := val(q.Change24h)
	if !ok {
		return nil
	}
	// Sentiment running ahead of price often resolves in sentiment's
	// direction.
	switch {
	case score > 0.3 && change < -2:
		return &signal{
			dir:        DirectionLong,
			confidence: 6,
			leverage:   1,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("crowd bullish %+.2f into a %.1f%% dip", score, change),
		}
	case score < -0.3 && change > 2:
		return &signal{
			dir:        DirectionShort,
			confidence: 6,
			leverage:   1,
			takeProfit: 5, stopLoss: 3,
			rationale: fmt.Sprintf("crowd bearish %+.2f into a %.1f%% pop", score, change),
		}
	}
	return nil
}

func analyzeBuzzSurge(f *FeatureSet) *signal {
	s := f.Sentiment
	if s == nil {
		return nil
	}
	v, ok := vals(s.Score, s.Volume)
	if !ok {
		return nil
	}
	score, volume := v[0], v[1]
	if volume < 1e6 || math.Abs(score) < 0.2 {
		return nil
	}
	sig := &signal{
		confidence: 6,
		leverage:   defaultLeverage,
		takeProfit: 5, stopLoss: 3.5,
	}
	if score > 0 {
		sig.dir = DirectionLong
		sig.rationale = fmt.Sprintf("%.1fM interactions leaning bullish", volume/1e6)
	} else {
		sig.dir = DirectionShort
		sig.rationale = fmt.Sprintf("%.1fM interactions leaning bearish", volume/1e6)
	}
	return sig
}
