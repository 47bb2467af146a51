package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fp(v float64) *float64 { return &v }

func TestClassifyRegime(t *testing.T) {
	tests := []struct {
		name     string
		adx      *float64
		atrRatio *float64
		drift    *float64
		want     RegimeLabel
		conf     float64
	}{
		{"strong uptrend", fp(45), fp(0.02), fp(0.01), RegimeBull, 0.875},
		{"strong downtrend", fp(45), fp(0.02), fp(-0.01), RegimeBear, 0.875},
		{"extreme trend caps confidence", fp(80), fp(0.02), fp(0.01), RegimeBull, 1.0},
		{"threshold trend scores half", fp(30.0000001), fp(0.02), fp(0.01), RegimeBull, 0.5},
		{"volatile chop", fp(20), fp(0.06), fp(0.001), RegimeVolatile, 1.0},
		{"trend outranks volatility", fp(45), fp(0.10), fp(0.01), RegimeBull, 0.875},
		{"flat drift falls through to volatility", fp(45), fp(0.05), fp(0), RegimeVolatile, 0.75},
		{"quiet range", fp(20), fp(0.02), fp(0.001), RegimeSideways, 1 - (20.0 / 30.0 / 2)},
		{"nothing to classify on", nil, nil, nil, RegimeSideways, 0.25},
		{"trend unusable without drift", fp(45), nil, nil, RegimeSideways, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyRegime(tt.adx, tt.atrRatio, tt.drift)
			assert.Equal(t, tt.want, got.Label)
			assert.InDelta(t, tt.conf, got.Confidence, 1e-6)
		})
	}
}

func TestClassifyRegimeConfidenceBounds(t *testing.T) {
	for _, adx := range []float64{0, 15, 29, 31, 50, 100} {
		for _, ratio := range []float64{0, 0.01, 0.039, 0.05, 0.5} {
			for _, drift := range []float64{-0.1, 0, 0.1} {
				got := classifyRegime(fp(adx), fp(ratio), fp(drift))
				assert.GreaterOrEqual(t, got.Confidence, 0.0)
				assert.LessOrEqual(t, got.Confidence, 1.0)
			}
		}
	}
}
