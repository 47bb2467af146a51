package indicators

const atrPeriod = 14

// computeATR returns the latest 14-period Average True Range smoothed
// Wilder-style, or nil when the series has fewer than period+1 bars.
func computeATR(highs, lows, closes []float64) *float64 {
	n := len(closes)
	if n < atrPeriod+1 || len(highs) != n || len(lows) != n {
		return nil
	}

	// Drop the zero seed at index 0: true range needs a prior close.
	tr := trueRanges(highs, lows, closes)[1:]
	atr := smoothWilder(tr, atrPeriod)[len(tr)-1]
	return &atr
}
