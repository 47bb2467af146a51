package indicators

import "math"

const (
	psarAfStart = 0.02
	psarAfStep  = 0.02
	psarAfMax   = 0.2
)

// computeParabolicSAR returns the latest Parabolic SAR level using the
// standard 0.02/0.02/0.2 acceleration schedule. Nil below five bars;
// the stop-and-reverse needs a little history to be meaningful.
func computeParabolicSAR(highs, lows, closes []float64) *float64 {
	n := len(closes)
	if n < 5 || len(highs) != n || len(lows) != n {
		return nil
	}

	uptrend := closes[1] >= closes[0]
	af := psarAfStart
	var sar, ep float64
	if uptrend {
		sar = lows[0]
		ep = highs[1]
	} else {
		sar = highs[0]
		ep = lows[1]
	}

	for i := 2; i < n; i++ {
		next := sar + af*(ep-sar)

		if uptrend {
			// SAR may never enter the prior two bars' range
			next = math.Min(next, math.Min(lows[i-1], lows[i-2]))
			if lows[i] < next {
				uptrend = false
				sar = ep
				ep = lows[i]
				af = psarAfStart
				continue
			}
			sar = next
			if highs[i] > ep {
				ep = highs[i]
				af = math.Min(af+psarAfStep, psarAfMax)
			}
		} else {
			next = math.Max(next, math.Max(highs[i-1], highs[i-2]))
			if highs[i] > next {
				uptrend = true
				sar = ep
				ep = highs[i]
				af = psarAfStart
				continue
			}
			sar = next
			if lows[i] < ep {
				ep = lows[i]
				af = math.Min(af+psarAfStep, psarAfMax)
			}
		}
	}

	return &sar
}
