package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeParabolicSAR(t *testing.T) {
	t.Run("uptrend stop sits below price", func(t *testing.T) {
		highs, lows, closes := trendBars(40, 100, 2)
		sar := computeParabolicSAR(highs, lows, closes)
		require.NotNil(t, sar)
		assert.Less(t, *sar, closes[len(closes)-1])
	})

	t.Run("downtrend stop sits above price", func(t *testing.T) {
		highs, lows, closes := trendBars(40, 200, -2)
		sar := computeParabolicSAR(highs, lows, closes)
		require.NotNil(t, sar)
		assert.Greater(t, *sar, closes[len(closes)-1])
	})

	t.Run("reversal flips the stop", func(t *testing.T) {
		// 20 bars up then 20 bars sharply down
		upH, upL, upC := trendBars(20, 100, 2)
		downH, downL, downC := trendBars(20, upC[len(upC)-1], -5)
		highs := append(upH, downH...)
		lows := append(upL, downL...)
		closes := append(upC, downC...)

		sar := computeParabolicSAR(highs, lows, closes)
		require.NotNil(t, sar)
		assert.Greater(t, *sar, closes[len(closes)-1])
	})

	t.Run("insufficient data", func(t *testing.T) {
		highs, lows, closes := trendBars(4, 100, 2)
		assert.Nil(t, computeParabolicSAR(highs, lows, closes))
	})
}
