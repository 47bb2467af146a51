package indicators

import "math"

const adxPeriod = 14

// computeADX returns the latest 14-period Average Directional Index.
// The indicator library carries no ADX, so the classic Wilder
// construction is implemented here: smoothed directional movement over
// smoothed true range, then a smoothed DX. Needs two full periods of
// candles to warm up.
func computeADX(highs, lows, closes []float64) *float64 {
	n := len(closes)
	if n < adxPeriod*2 || len(highs) != n || len(lows) != n {
		return nil
	}

	tr := trueRanges(highs, lows, closes)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothTR := smoothWilder(tr, adxPeriod)
	smoothPlus := smoothWilder(plusDM, adxPeriod)
	smoothMinus := smoothWilder(minusDM, adxPeriod)

	dx := make([]float64, n)
	for i := adxPeriod; i < n; i++ {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI := 100 * smoothPlus[i] / smoothTR[i]
		minusDI := 100 * smoothMinus[i] / smoothTR[i]
		if sum := plusDI + minusDI; sum != 0 {
			dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
		}
	}

	adx := smoothWilder(dx, adxPeriod)[n-1]
	return &adx
}

// trueRanges computes the per-bar true range; index 0 is zero because
// it has no prior close.
func trueRanges(highs, lows, closes []float64) []float64 {
	n := len(closes)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]),
				math.Abs(lows[i]-closes[i-1])))
	}
	return tr
}

// smoothWilder applies Wilder's smoothing: a simple average seeds the
// first value, then each step blends one new observation into the
// running smooth.
func smoothWilder(data []float64, period int) []float64 {
	n := len(data)
	out := make([]float64, n)
	if n < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	out[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + data[i]) / float64(period)
	}
	return out
}
