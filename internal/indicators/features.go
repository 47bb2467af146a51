package indicators

import (
	"math"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/market"
)

// RegimeLabel classifies the prevailing market structure.
type RegimeLabel string

const (
	RegimeBull     RegimeLabel = "BULL"
	RegimeBear     RegimeLabel = "BEAR"
	RegimeSideways RegimeLabel = "SIDEWAYS"
	RegimeVolatile RegimeLabel = "VOLATILE"
)

// Regime is a label plus how decisively the classification thresholds
// were exceeded, in [0, 1].
type Regime struct {
	Label      RegimeLabel `json:"label"`
	Confidence float64     `json:"confidence"`
}

// FeatureVector holds the derived indicators for one (symbol,
// timeframe). Pointer fields are nil when the series is too shallow
// for the indicator or the computation produced a non-finite value;
// consumers must treat nil as "no reading", never as zero.
type FeatureVector struct {
	Symbol    string           `json:"symbol"`
	Timeframe market.Timeframe `json:"timeframe"`
	Price     float64          `json:"price"` // last close

	RSI           *float64 `json:"rsi,omitempty"`
	MACD          *float64 `json:"macd,omitempty"`
	MACDSignal    *float64 `json:"macd_signal,omitempty"`
	MACDHistogram *float64 `json:"macd_histogram,omitempty"`

	BollingerUpper *float64 `json:"bollinger_upper,omitempty"`
	BollingerMid   *float64 `json:"bollinger_mid,omitempty"`
	BollingerLower *float64 `json:"bollinger_lower,omitempty"`
	BollingerWidth *float64 `json:"bollinger_width,omitempty"` // percent of mid

	EMA20  *float64 `json:"ema_20,omitempty"`
	EMA50  *float64 `json:"ema_50,omitempty"`
	EMA200 *float64 `json:"ema_200,omitempty"`
	SMA20  *float64 `json:"sma_20,omitempty"`

	ATR *float64 `json:"atr,omitempty"`
	ADX *float64 `json:"adx,omitempty"`

	StochK    *float64 `json:"stoch_k,omitempty"`
	StochD    *float64 `json:"stoch_d,omitempty"`
	CCI       *float64 `json:"cci,omitempty"`
	WilliamsR *float64 `json:"williams_r,omitempty"`

	VWAP     *float64 `json:"vwap,omitempty"`
	OBVSlope *float64 `json:"obv_slope,omitempty"`

	IchimokuConversion *float64 `json:"ichimoku_conversion,omitempty"`
	IchimokuBase       *float64 `json:"ichimoku_base,omitempty"`
	IchimokuSpanA      *float64 `json:"ichimoku_span_a,omitempty"`
	IchimokuSpanB      *float64 `json:"ichimoku_span_b,omitempty"`

	ParabolicSAR *float64 `json:"parabolic_sar,omitempty"`

	// Momentum30 is the least-squares slope of the last 30 closes
	// divided by their mean: fractional drift per bar.
	Momentum30 *float64 `json:"momentum_30,omitempty"`

	Regime Regime `json:"regime"`

	// Invalid names indicators whose computation produced NaN or Inf
	// and were therefore nulled.
	Invalid []string `json:"invalid,omitempty"`
}

// feed converts a value slice into the closed channel form the
// indicator library computes over.
func feed(vals []float64) chan float64 {
	ch := make(chan float64, len(vals))
	for _, v := range vals {
		ch <- v
	}
	close(ch)
	return ch
}

// drain collects a result channel into a slice.
func drain(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}

func lastOf(vals []float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	v := vals[len(vals)-1]
	return &v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// lsSlope is the least-squares slope of vals over index 0..n-1.
func lsSlope(vals []float64) float64 {
	n := float64(len(vals))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range vals {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / den
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func highestOf(vals []float64) float64 {
	h := vals[0]
	for _, v := range vals[1:] {
		if v > h {
			h = v
		}
	}
	return h
}

func lowestOf(vals []float64) float64 {
	l := vals[0]
	for _, v := range vals[1:] {
		if v < l {
			l = v
		}
	}
	return l
}
