package indicators

import (
	"github.com/cinar/indicator/v2/trend"
)

// computeEMA returns the latest EMA for the period, or nil when the
// series is shallower than the period.
func computeEMA(closes []float64, period int) *float64 {
	if len(closes) < period {
		return nil
	}
	ema := trend.NewEmaWithPeriod[float64](period)
	return lastOf(drain(ema.Compute(feed(closes))))
}

// computeSMA returns the latest simple moving average for the period.
func computeSMA(closes []float64, period int) *float64 {
	if len(closes) < period {
		return nil
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	return lastOf(drain(sma.Compute(feed(closes))))
}
