package indicators

import (
	"github.com/cinar/indicator/v2/momentum"
)

const rsiPeriod = 14

// computeRSI returns the latest 14-period RSI, or nil when the series
// is too shallow.
func computeRSI(closes []float64) *float64 {
	if len(closes) < rsiPeriod {
		return nil
	}
	rsi := momentum.NewRsiWithPeriod[float64](rsiPeriod)
	return lastOf(drain(rsi.Compute(feed(closes))))
}
