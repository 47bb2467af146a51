package indicators

import "math"

const obvSlopePeriod = 14

// computeVWAP returns the volume-weighted average price over the whole
// series. Candle volume is quote-denominated (USD), so base volume is
// recovered as quote volume over typical price before weighting.
func computeVWAP(highs, lows, closes, volumes []float64) *float64 {
	n := len(closes)
	if n == 0 || len(highs) != n || len(lows) != n || len(volumes) != n {
		return nil
	}

	var sumQuote, sumBase float64
	for i := 0; i < n; i++ {
		typical := (highs[i] + lows[i] + closes[i]) / 3
		if typical <= 0 || volumes[i] <= 0 {
			continue
		}
		sumQuote += volumes[i]
		sumBase += volumes[i] / typical
	}
	if sumBase == 0 {
		return nil
	}
	vwap := sumQuote / sumBase
	return &vwap
}

// computeOBVSlope returns the least-squares slope of the last 14
// on-balance volume points, normalized by their mean absolute level so
// the reading is comparable across coins. Positive values mean volume
// is flowing in on up-bars.
func computeOBVSlope(closes, volumes []float64) *float64 {
	n := len(closes)
	if n < obvSlopePeriod+1 || len(volumes) != n {
		return nil
	}

	obv := make([]float64, n)
	for i := 1; i < n; i++ {
		switch {
		case closes[i] > closes[i-1]:
			obv[i] = obv[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			obv[i] = obv[i-1] - volumes[i]
		default:
			obv[i] = obv[i-1]
		}
	}

	window := obv[n-obvSlopePeriod:]
	scale := 0.0
	for _, v := range window {
		scale += math.Abs(v)
	}
	scale /= float64(len(window))

	slope := 0.0
	if scale != 0 {
		slope = lsSlope(window) / scale
	}
	return &slope
}
