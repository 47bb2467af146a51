package indicators

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/market"
)

const (
	emaShortPeriod = 20
	emaMidPeriod   = 50
	emaLongPeriod  = 200
	smaPeriod      = 20
	momentumPeriod = 30
)

// Compute derives the feature vector for one series. Pure and
// deterministic: no I/O, same candles always give the same vector.
// Indicators the series is too shallow for come back nil; the vector
// itself is produced whenever at least one candle exists.
func Compute(s *market.Series) (*FeatureVector, error) {
	if s == nil || len(s.Candles) == 0 {
		return nil, fmt.Errorf("compute features: empty series")
	}

	closes := s.Closes()
	highs := s.Highs()
	lows := s.Lows()
	volumes := s.Volumes()
	price := closes[len(closes)-1]

	fv := &FeatureVector{Symbol: s.Symbol, Timeframe: s.Timeframe, Price: price}

	fv.RSI = computeRSI(closes)
	fv.MACD, fv.MACDSignal, fv.MACDHistogram = computeMACD(closes)
	fv.BollingerUpper, fv.BollingerMid, fv.BollingerLower, fv.BollingerWidth = computeBollinger(closes)
	fv.EMA20 = computeEMA(closes, emaShortPeriod)
	fv.EMA50 = computeEMA(closes, emaMidPeriod)
	fv.EMA200 = computeEMA(closes, emaLongPeriod)
	fv.SMA20 = computeSMA(closes, smaPeriod)
	fv.ATR = computeATR(highs, lows, closes)
	fv.ADX = computeADX(highs, lows, closes)
	fv.StochK, fv.StochD = computeStochastic(highs, lows, closes)
	fv.CCI = computeCCI(highs, lows, closes)
	fv.WilliamsR = computeWilliamsR(highs, lows, closes)
	fv.VWAP = computeVWAP(highs, lows, closes, volumes)
	fv.OBVSlope = computeOBVSlope(closes, volumes)
	fv.IchimokuConversion, fv.IchimokuBase, fv.IchimokuSpanA, fv.IchimokuSpanB = computeIchimoku(highs, lows)
	fv.ParabolicSAR = computeParabolicSAR(highs, lows, closes)
	fv.Momentum30 = computeMomentum(closes)

	fv.scrub()

	var atrRatio *float64
	if fv.ATR != nil && price > 0 {
		r := *fv.ATR / price
		atrRatio = &r
	}
	fv.Regime = classifyRegime(fv.ADX, atrRatio, fv.Momentum30)

	return fv, nil
}

// computeMomentum returns the normalized 30-bar close drift used for
// regime direction.
func computeMomentum(closes []float64) *float64 {
	if len(closes) < momentumPeriod {
		return nil
	}
	window := closes[len(closes)-momentumPeriod:]
	avg := mean(window)
	m := 0.0
	if avg != 0 {
		m = lsSlope(window) / avg
	}
	return &m
}

// scrub nulls every non-finite reading and records which indicators
// were dropped.
func (fv *FeatureVector) scrub() {
	fields := []struct {
		name string
		p    **float64
	}{
		{"rsi", &fv.RSI},
		{"macd", &fv.MACD},
		{"macd_signal", &fv.MACDSignal},
		{"macd_histogram", &fv.MACDHistogram},
		{"bollinger_upper", &fv.BollingerUpper},
		{"bollinger_mid", &fv.BollingerMid},
		{"bollinger_lower", &fv.BollingerLower},
		{"bollinger_width", &fv.BollingerWidth},
		{"ema_20", &fv.EMA20},
		{"ema_50", &fv.EMA50},
		{"ema_200", &fv.EMA200},
		{"sma_20", &fv.SMA20},
		{"atr", &fv.ATR},
		{"adx", &fv.ADX},
		{"stoch_k", &fv.StochK},
		{"stoch_d", &fv.StochD},
		{"cci", &fv.CCI},
		{"williams_r", &fv.WilliamsR},
		{"vwap", &fv.VWAP},
		{"obv_slope", &fv.OBVSlope},
		{"ichimoku_conversion", &fv.IchimokuConversion},
		{"ichimoku_base", &fv.IchimokuBase},
		{"ichimoku_span_a", &fv.IchimokuSpanA},
		{"ichimoku_span_b", &fv.IchimokuSpanB},
		{"parabolic_sar", &fv.ParabolicSAR},
		{"momentum_30", &fv.Momentum30},
	}

	for _, f := range fields {
		if *f.p != nil && !finite(**f.p) {
			*f.p = nil
			fv.Invalid = append(fv.Invalid, f.name)
		}
	}
	if len(fv.Invalid) > 0 {
		log.Debug().
			Str("symbol", fv.Symbol).
			Str("timeframe", string(fv.Timeframe)).
			Strs("indicators", fv.Invalid).
			Msg("Dropped non-finite indicator values")
	}
}
