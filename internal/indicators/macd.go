package indicators

import (
	"github.com/cinar/indicator/v2/trend"
)

const (
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
)

// computeMACD returns the latest MACD line, signal line, and
// histogram. All three are nil when the series cannot warm up the slow
// EMA plus the signal EMA.
func computeMACD(closes []float64) (line, signal, histogram *float64) {
	if len(closes) < macdSlowPeriod {
		return nil, nil, nil
	}

	macd := trend.NewMacdWithPeriod[float64](macdFastPeriod, macdSlowPeriod, macdSignalPeriod)
	macdChan, signalChan := macd.Compute(feed(closes))

	var lines, signals []float64
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		lines = append(lines, m)
		signals = append(signals, s)
	}

	if len(lines) == 0 {
		return nil, nil, nil
	}
	l := lines[len(lines)-1]
	s := signals[len(signals)-1]
	h := l - s
	return &l, &s, &h
}
