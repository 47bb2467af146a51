package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/market"
)

func makeSeries(tf market.Timeframe, closes []float64) *market.Series {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		candles[i] = market.Candle{
			OpenTime: start.Add(time.Duration(i) * 24 * time.Hour),
			Open:     c,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   1_000_000,
		}
	}
	return &market.Series{
		Symbol:    "BTC",
		Timeframe: tf,
		Candles:   candles,
		Provider:  "test",
		FetchedAt: start,
	}
}

func linearCloses(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestComputeRejectsEmptySeries(t *testing.T) {
	_, err := Compute(nil)
	assert.Error(t, err)

	_, err = Compute(&market.Series{Symbol: "BTC"})
	assert.Error(t, err)
}

func TestComputeShallowSeriesKeepsPartialVector(t *testing.T) {
	fv, err := Compute(makeSeries(market.Timeframe1d, linearCloses(10, 100, 2)))
	require.NoError(t, err)

	assert.Equal(t, "BTC", fv.Symbol)
	assert.Equal(t, market.Timeframe1d, fv.Timeframe)
	assert.Equal(t, 118.0, fv.Price)

	// too shallow for everything with a real warmup
	assert.Nil(t, fv.RSI)
	assert.Nil(t, fv.MACD)
	assert.Nil(t, fv.BollingerMid)
	assert.Nil(t, fv.ADX)
	assert.Nil(t, fv.ATR)
	assert.Nil(t, fv.EMA200)
	assert.Nil(t, fv.SMA20)
	assert.Nil(t, fv.StochK)
	assert.Nil(t, fv.IchimokuSpanB)
	assert.Nil(t, fv.Momentum30)

	// but the cheap readings still exist
	assert.NotNil(t, fv.VWAP)
	assert.NotNil(t, fv.ParabolicSAR)

	// no evidence either way defaults to low-conviction SIDEWAYS
	assert.Equal(t, RegimeSideways, fv.Regime.Label)
	assert.InDelta(t, 0.25, fv.Regime.Confidence, 1e-9)
}

func TestComputeRisingDailySeries(t *testing.T) {
	fv, err := Compute(makeSeries(market.Timeframe1d, linearCloses(60, 100, 2)))
	require.NoError(t, err)

	require.NotNil(t, fv.RSI)
	assert.GreaterOrEqual(t, *fv.RSI, 99.0) // gains only
	assert.LessOrEqual(t, *fv.RSI, 100.0)

	require.NotNil(t, fv.MACD)
	assert.Greater(t, *fv.MACD, 0.0)
	require.NotNil(t, fv.MACDHistogram)
	assert.InDelta(t, *fv.MACD-*fv.MACDSignal, *fv.MACDHistogram, 1e-9)

	require.NotNil(t, fv.BollingerUpper)
	assert.GreaterOrEqual(t, *fv.BollingerUpper, *fv.BollingerMid)
	assert.GreaterOrEqual(t, *fv.BollingerMid, *fv.BollingerLower)
	require.NotNil(t, fv.BollingerWidth)
	assert.Greater(t, *fv.BollingerWidth, 0.0)

	require.NotNil(t, fv.EMA20)
	require.NotNil(t, fv.EMA50)
	assert.Nil(t, fv.EMA200) // 60 bars cannot seed it
	require.NotNil(t, fv.SMA20)
	assert.Less(t, *fv.SMA20, fv.Price)

	require.NotNil(t, fv.ATR)
	assert.InDelta(t, 3.0, *fv.ATR, 1e-9)
	require.NotNil(t, fv.ADX)
	assert.Greater(t, *fv.ADX, 30.0)

	require.NotNil(t, fv.StochK)
	assert.Greater(t, *fv.StochK, 90.0)
	require.NotNil(t, fv.CCI)
	assert.Greater(t, *fv.CCI, 0.0)
	require.NotNil(t, fv.WilliamsR)
	assert.Greater(t, *fv.WilliamsR, -10.0)

	require.NotNil(t, fv.IchimokuSpanB)
	require.NotNil(t, fv.OBVSlope)
	assert.Greater(t, *fv.OBVSlope, 0.0)

	require.NotNil(t, fv.Momentum30)
	assert.Greater(t, *fv.Momentum30, 0.0)

	assert.Equal(t, RegimeBull, fv.Regime.Label)
	assert.Greater(t, fv.Regime.Confidence, 0.5)
	assert.Empty(t, fv.Invalid)
}

func TestComputeFallingDailySeries(t *testing.T) {
	fv, err := Compute(makeSeries(market.Timeframe1d, linearCloses(60, 300, -2)))
	require.NoError(t, err)

	require.NotNil(t, fv.Momentum30)
	assert.Less(t, *fv.Momentum30, 0.0)
	assert.Equal(t, RegimeBear, fv.Regime.Label)
}

func TestComputeVolatileSeries(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 40)
	for i := range candles {
		candles[i] = market.Candle{
			OpenTime: start.Add(time.Duration(i) * 24 * time.Hour),
			Open:     100,
			High:     115,
			Low:      85,
			Close:    100,
			Volume:   1_000_000,
		}
	}
	s := &market.Series{Symbol: "DOGE", Timeframe: market.Timeframe1d, Candles: candles}

	fv, err := Compute(s)
	require.NoError(t, err)

	// flat closes with thirty-unit ranges: no trend, huge ATR
	require.NotNil(t, fv.ATR)
	assert.InDelta(t, 30.0, *fv.ATR, 1e-9)
	assert.Equal(t, RegimeVolatile, fv.Regime.Label)
	assert.Equal(t, 1.0, fv.Regime.Confidence)
}

func TestComputeIsDeterministic(t *testing.T) {
	s := makeSeries(market.Timeframe4h, linearCloses(80, 100, 1.5))

	a, err := Compute(s)
	require.NoError(t, err)
	b, err := Compute(s)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestComputeSecondPassCarriesTimeframe(t *testing.T) {
	fv, err := Compute(makeSeries(market.Timeframe4h, linearCloses(60, 100, 2)))
	require.NoError(t, err)
	assert.Equal(t, market.Timeframe4h, fv.Timeframe)
}

func TestScrubDropsNonFinite(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)
	ok := 42.5

	fv := &FeatureVector{RSI: &nan, ATR: &inf, CCI: &ok}
	fv.scrub()

	assert.Nil(t, fv.RSI)
	assert.Nil(t, fv.ATR)
	require.NotNil(t, fv.CCI)
	assert.Equal(t, 42.5, *fv.CCI)
	assert.ElementsMatch(t, []string{"rsi", "atr"}, fv.Invalid)
}
