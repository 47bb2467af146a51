package indicators

import (
	"github.com/cinar/indicator/v2/volatility"
)

const bollingerPeriod = 20

// computeBollinger returns the latest Bollinger Bands (2 standard
// deviations around a 20-period mean) plus the band width as a percent
// of the middle band. All four are nil when the series is too shallow.
func computeBollinger(closes []float64) (upper, mid, lower, widthPct *float64) {
	if len(closes) < bollingerPeriod {
		return nil, nil, nil, nil
	}

	bb := volatility.NewBollingerBandsWithPeriod[float64](bollingerPeriod)
	lowerChan, midChan, upperChan := bb.Compute(feed(closes))

	var lowers, mids, uppers []float64
	for {
		l, lok := <-lowerChan
		m, mok := <-midChan
		u, uok := <-upperChan
		if !lok || !mok || !uok {
			break
		}
		lowers = append(lowers, l)
		mids = append(mids, m)
		uppers = append(uppers, u)
	}

	if len(mids) == 0 {
		return nil, nil, nil, nil
	}
	u := uppers[len(uppers)-1]
	m := mids[len(mids)-1]
	l := lowers[len(lowers)-1]
	upper, mid, lower = &u, &m, &l
	if m != 0 {
		w := (u - l) / m * 100
		widthPct = &w
	}
	return upper, mid, lower, widthPct
}
