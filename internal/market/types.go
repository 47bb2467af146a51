package market

import (
	"context"
	"time"
)

// Timeframe identifies a candle interval.
type Timeframe string

const (
	Timeframe1h Timeframe = "1h"
	Timeframe4h Timeframe = "4h"
	Timeframe1d Timeframe = "1d"
	Timeframe1w Timeframe = "1w"
)

// Coin is one entry of the tradable universe, ranked by market cap.
type Coin struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	MarketCap float64 `json:"market_cap"`
	Volume24h float64 `json:"volume_24h"`
	Change24h float64 `json:"change_24h"` // percent
	Rank      int     `json:"rank"`
}

// Candle is a single OHLCV bar. Volume is quote (USD) volume.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Series is a candle history for one symbol and timeframe, oldest first.
type Series struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Candles   []Candle  `json:"candles"`
	Provider  string    `json:"provider"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Closes returns the close prices in series order.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Highs returns the high prices in series order.
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.High
	}
	return out
}

// Lows returns the low prices in series order.
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Low
	}
	return out
}

// Volumes returns the quote volumes in series order.
func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Volume
	}
	return out
}

// LastClose returns the most recent close, or 0 for an empty series.
func (s *Series) LastClose() float64 {
	if len(s.Candles) == 0 {
		return 0
	}
	return s.Candles[len(s.Candles)-1].Close
}

// Quote is a point-in-time price snapshot. Optional fields are nil
// when the provider has no reading, never zero.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume24h *float64  `json:"volume_24h,omitempty"`
	MarketCap *float64  `json:"market_cap,omitempty"`
	Change24h *float64  `json:"change_24h,omitempty"` // percent
	Provider  string    `json:"provider"`
	At        time.Time `json:"at"`
}

// DerivativesMetrics carries futures market readings for one asset.
// Nil fields mean the provider had no value, never zero.
type DerivativesMetrics struct {
	Symbol         string    `json:"symbol"`
	FundingRate    *float64  `json:"funding_rate,omitempty"`     // per funding interval, 0.0001 = 0.01%
	OpenInterest   *float64  `json:"open_interest,omitempty"`    // USD notional
	LongShortRatio *float64  `json:"long_short_ratio,omitempty"` // accounts long / accounts short
	Provider       string    `json:"provider"`
	At             time.Time `json:"at"`
}

// OptionsMetrics carries options market readings for one asset.
type OptionsMetrics struct {
	Symbol            string    `json:"symbol"`
	PutCallRatio      *float64  `json:"put_call_ratio,omitempty"`     // open-interest weighted
	ImpliedVolatility *float64  `json:"implied_volatility,omitempty"` // annualized, percent
	MaxPain           *float64  `json:"max_pain,omitempty"`           // strike of the highest-OI expiry
	UnusualActivity   *bool     `json:"unusual_activity,omitempty"`
	Provider          string    `json:"provider"`
	At                time.Time `json:"at"`
}

// On-chain composite signal values.
const (
	SignalAccumulation = "accumulation"
	SignalDistribution = "distribution"
	SignalNeutral      = "neutral"
)

// OnChainMetrics carries on-chain activity readings for one asset.
type OnChainMetrics struct {
	Symbol          string    `json:"symbol"`
	WhaleActivity   *float64  `json:"whale_activity,omitempty"`   // 0-100 score
	ExchangeFlows   *float64  `json:"exchange_flows,omitempty"`   // net USD, negative = leaving exchanges
	NetworkActivity *float64  `json:"network_activity,omitempty"` // active-address change, percent
	OverallSignal   string    `json:"overall_signal"`
	Provider        string    `json:"provider"`
	At              time.Time `json:"at"`
}

// Sentiment classification buckets.
const (
	SentimentVeryBullish = "very_bullish"
	SentimentBullish     = "bullish"
	SentimentNeutral     = "neutral"
	SentimentBearish     = "bearish"
	SentimentVeryBearish = "very_bearish"
)

// SentimentMetrics carries social sentiment readings for one asset.
// Score and Sources values are normalized to [-1, 1].
type SentimentMetrics struct {
	Symbol         string             `json:"symbol"`
	Score          *float64           `json:"score,omitempty"`
	Volume         *float64           `json:"volume,omitempty"` // social interactions over 24h
	Classification string             `json:"classification"`
	Sources        map[string]float64 `json:"sources,omitempty"`
	Provider       string             `json:"provider"`
	At             time.Time          `json:"at"`
}

// ClassifySentiment buckets a normalized score.
func ClassifySentiment(score float64) string {
	switch {
	case score >= 0.6:
		return SentimentVeryBullish
	case score >= 0.2:
		return SentimentBullish
	case score <= -0.6:
		return SentimentVeryBearish
	case score <= -0.2:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

// UniverseQuery bounds a top-coins request. Zero price bounds mean
// no bound on that side.
type UniverseQuery struct {
	Limit    int     `json:"limit"`
	MinPrice float64 `json:"min_price"`
	MaxPrice float64 `json:"max_price"`
}

func (q UniverseQuery) keep(c Coin) bool {
	if q.MinPrice > 0 && c.Price < q.MinPrice {
		return false
	}
	if q.MaxPrice > 0 && c.Price > q.MaxPrice {
		return false
	}
	return true
}

// filterUniverse applies the price bounds and trims to the limit.
func filterUniverse(coins []Coin, q UniverseQuery) []Coin {
	out := make([]Coin, 0, len(coins))
	for _, c := range coins {
		if !q.keep(c) {
			continue
		}
		out = append(out, c)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

// UniverseProvider lists the top coins by market cap.
type UniverseProvider interface {
	Name() string
	TopCoins(ctx context.Context, q UniverseQuery) ([]Coin, error)
}

// OHLCVProvider serves candle history.
type OHLCVProvider interface {
	Name() string
	OHLCV(ctx context.Context, symbol string, tf Timeframe, limit int) (*Series, error)
}

// QuoteProvider serves spot price snapshots.
type QuoteProvider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (*Quote, error)
}

// DerivativesProvider serves futures market metrics.
type DerivativesProvider interface {
	Name() string
	Derivatives(ctx context.Context, symbol string) (*DerivativesMetrics, error)
}

// OptionsProvider serves options market metrics.
type OptionsProvider interface {
	Name() string
	Options(ctx context.Context, symbol string) (*OptionsMetrics, error)
}

// OnChainProvider serves on-chain activity metrics.
type OnChainProvider interface {
	Name() string
	OnChain(ctx context.Context, symbol string) (*OnChainMetrics, error)
}

// SentimentProvider serves social sentiment metrics.
type SentimentProvider interface {
	Name() string
	Sentiment(ctx context.Context, symbol string) (*SentimentMetrics, error)
}

// SymbolSupporter is implemented by providers that only cover an
// allowlist of assets. The router skips unsupported symbols without
// spending the provider's budget.
type SymbolSupporter interface {
	SupportsSymbol(symbol string) bool
}
