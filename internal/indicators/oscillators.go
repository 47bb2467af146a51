package indicators

import "math"

const (
	stochPeriod  = 14
	stochDPeriod = 3
	cciPeriod    = 20
	williamsRPer = 14
)

// computeStochastic returns the latest %K and %D of the 14-period
// stochastic oscillator. %D (the 3-period average of %K) needs two
// extra bars; it is nil on its own when only %K can be formed.
func computeStochastic(highs, lows, closes []float64) (k, d *float64) {
	n := len(closes)
	if n < stochPeriod || len(highs) != n || len(lows) != n {
		return nil, nil
	}

	ks := make([]float64, 0, n-stochPeriod+1)
	for i := stochPeriod - 1; i < n; i++ {
		hh := highestOf(highs[i-stochPeriod+1 : i+1])
		ll := lowestOf(lows[i-stochPeriod+1 : i+1])
		if hh == ll {
			// flat window: park at the midline
			ks = append(ks, 50)
			continue
		}
		ks = append(ks, 100*(closes[i]-ll)/(hh-ll))
	}

	kv := ks[len(ks)-1]
	k = &kv
	if len(ks) >= stochDPeriod {
		dv := mean(ks[len(ks)-stochDPeriod:])
		d = &dv
	}
	return k, d
}

// computeCCI returns the latest 20-period Commodity Channel Index:
// typical price deviation from its mean, scaled by 0.015 times the
// mean absolute deviation.
func computeCCI(highs, lows, closes []float64) *float64 {
	n := len(closes)
	if n < cciPeriod || len(highs) != n || len(lows) != n {
		return nil
	}

	tp := make([]float64, n)
	for i := range tp {
		tp[i] = (highs[i] + lows[i] + closes[i]) / 3
	}

	window := tp[n-cciPeriod:]
	avg := mean(window)
	dev := 0.0
	for _, v := range window {
		dev += math.Abs(v - avg)
	}
	dev /= float64(cciPeriod)

	cci := 0.0
	if dev != 0 {
		cci = (tp[n-1] - avg) / (0.015 * dev)
	}
	return &cci
}

// computeWilliamsR returns the latest 14-period Williams %R in
// [-100, 0].
func computeWilliamsR(highs, lows, closes []float64) *float64 {
	n := len(closes)
	if n < williamsRPer || len(highs) != n || len(lows) != n {
		return nil
	}

	hh := highestOf(highs[n-williamsRPer:])
	ll := lowestOf(lows[n-williamsRPer:])
	wr := -50.0
	if hh != ll {
		wr = (hh - closes[n-1]) / (hh - ll) * -100
	}
	return &wr
}
