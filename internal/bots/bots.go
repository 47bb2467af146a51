// Package bots holds the signal bot bank: a catalog of independent,
// stateless strategies that each look at one coin's feature set and
// either cast a directional vote or abstain. Bots never do I/O; every
// input they need is carried in the FeatureSet assembled by the scan
// orchestrator.
package bots

import (
	"math"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/indicators"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/market"
)

// Category groups bots by the kind of edge they trade.
type Category string

const (
	CategoryTrend         Category = "trend"
	CategoryMeanReversion Category = "mean_reversion"
	CategoryMomentum      Category = "momentum"
	CategoryVolume        Category = "volume"
	CategoryVolatility    Category = "volatility"
	CategoryPattern       Category = "pattern"
	CategoryDerivatives   Category = "derivatives"
	CategoryContrarian    Category = "contrarian"
	CategoryOnChain       Category = "on_chain"
	CategorySentiment     Category = "sentiment"
	CategorySpecialized   Category = "specialized"
	CategoryAI            Category = "ai"
)

// Direction is the side of a vote.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Leverage bounds for emitted votes. Probation guardrails clamp
// tighter than MaxLeverage.
const (
	MaxLeverage     = 5
	defaultLeverage = 2
)

// maxEntryDrift bounds how far a staged entry may sit from the
// current price before the vote is discarded as stale.
const maxEntryDrift = 0.10

// maxTargetPct bounds TP/SL distances, in percent of entry.
const maxTargetPct = 50.0

// FeatureSet is everything a bot may look at for one coin: indicator
// vectors per timeframe, the raw daily/4h candles for structure bots,
// and the external market readings. Any field may be nil when the
// upstream fetch failed; bots abstain on what they cannot see.
type FeatureSet struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`

	Daily    *indicators.FeatureVector `json:"daily,omitempty"`
	FourHour *indicators.FeatureVector `json:"four_hour,omitempty"`
	Hourly   *indicators.FeatureVector `json:"hourly,omitempty"`
	Weekly   *indicators.FeatureVector `json:"weekly,omitempty"`

	DailySeries    *market.Series `json:"-"`
	FourHourSeries *market.Series `json:"-"`

	Quote       *market.Quote              `json:"quote,omitempty"`
	Derivatives *market.DerivativesMetrics `json:"derivatives,omitempty"`
	Options     *market.OptionsMetrics     `json:"options,omitempty"`
	OnChain     *market.OnChainMetrics     `json:"on_chain,omitempty"`
	Sentiment   *market.SentimentMetrics   `json:"sentiment,omitempty"`
}

// Vote is one bot's call on one coin. Confidence is an integer 1..10
// before aggregation touches it; Entry, TakeProfit and StopLoss are
// finite positives with the TP on the profitable side of the entry.
type Vote struct {
	BotName    string    `json:"bot_name"`
	Category   Category  `json:"bot_category"`
	Direction  Direction `json:"direction"`
	Confidence int       `json:"confidence"`
	Entry      float64   `json:"entry"`
	TakeProfit float64   `json:"take_profit"`
	StopLoss   float64   `json:"stop_loss"`
	Leverage   int       `json:"leverage"`
	Rationale  string    `json:"rationale,omitempty"`
}

// Bot is a pure strategy. Analyze returns (nil, nil) to abstain; it
// never blocks, never does I/O, and returns the same vote for the
// same features.
type Bot interface {
	Name() string
	Category() Category
	Analyze(f *FeatureSet) (*Vote, error)
}

// signal is the raw output of a bot closure before validation. TP and
// SL are percent distances from the entry; entry zero means "use the
// current price".
type signal struct {
	dir        Direction
	confidence int
	leverage   int
	takeProfit float64 // percent
	stopLoss   float64 // percent
	entry      float64
	rationale  string
}

// rule adapts a bot closure to the Bot interface and enforces the
// vote contract: clamped integer confidence, bounded leverage, finite
// positive prices, abstain on anything non-finite.
type rule struct {
	name     string
	category Category
	analyze  func(f *FeatureSet) *signal
}

func (r *rule) Name() string       { return r.name }
func (r *rule) Category() Category { return r.category }

func (r *rule) Analyze(f *FeatureSet) (*Vote, error) {
	if f == nil || !finitePositive(f.Price) {
		return nil, nil
	}
	sig := r.analyze(f)
	if sig == nil {
		return nil, nil
	}

	entry := sig.entry
	if entry == 0 {
		entry = f.Price
	}
	if !finitePositive(entry) || math.Abs(entry-f.Price) > f.Price*maxEntryDrift {
		return nil, nil
	}
	if !finiteIn(sig.takeProfit, 0, maxTargetPct) || !finiteIn(sig.stopLoss, 0, maxTargetPct) {
		return nil, nil
	}

	var tp, sl float64
	switch sig.dir {
	case DirectionLong:
		tp = entry * (1 + sig.takeProfit/100)
		sl = entry * (1 - sig.stopLoss/100)
	case DirectionShort:
		tp = entry * (1 - sig.takeProfit/100)
		sl = entry * (1 + sig.stopLoss/100)
	default:
		return nil, nil
	}
	if !finitePositive(tp) || !finitePositive(sl) {
		return nil, nil
	}

	conf := sig.confidence
	if conf < 1 {
		conf = 1
	} else if conf > 10 {
		conf = 10
	}
	lev := sig.leverage
	if lev < 1 {
		lev = 1
	} else if lev > MaxLeverage {
		lev = MaxLeverage
	}

	return &Vote{
		BotName:    r.name,
		Category:   r.category,
		Direction:  sig.dir,
		Confidence: conf,
		Entry:      entry,
		TakeProfit: tp,
		StopLoss:   sl,
		Leverage:   lev,
		Rationale:  sig.rationale,
	}, nil
}

// val unwraps an optional reading. The second return is false when
// the pointer is nil or the value is not finite.
func val(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	v := *p
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// vals unwraps a set of optional readings all-or-nothing.
func vals(ps ...*float64) ([]float64, bool) {
	out := make([]float64, len(ps))
	for i, p := range ps {
		v, ok := val(p)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// finiteIn reports whether v is finite and lo < v <= hi.
func finiteIn(v, lo, hi float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > lo && v <= hi
}

// clampConf keeps a derived confidence inside the vote range.
func clampConf(c int) int {
	if c < 1 {
		return 1
	}
	if c > 10 {
		return 10
	}
	return c
}
