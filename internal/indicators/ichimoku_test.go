package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIchimoku(t *testing.T) {
	t.Run("flat market collapses to the price", func(t *testing.T) {
		highs, lows, _ := flatBars(52, 100)
		conv, base, spanA, spanB := computeIchimoku(highs, lows)
		require.NotNil(t, conv)
		assert.Equal(t, 100.0, *conv)
		assert.Equal(t, 100.0, *base)
		assert.Equal(t, 100.0, *spanA)
		assert.Equal(t, 100.0, *spanB)
	})

	t.Run("rising market orders the lines", func(t *testing.T) {
		highs, lows, _ := trendBars(60, 100, 2)
		conv, base, spanA, spanB := computeIchimoku(highs, lows)
		require.NotNil(t, conv)
		// shorter windows sit higher in an uptrend
		assert.Greater(t, *conv, *base)
		assert.Greater(t, *base, *spanB)
		assert.Equal(t, (*conv+*base)/2, *spanA)
	})

	t.Run("whole cloud is nil below the span B window", func(t *testing.T) {
		highs, lows, _ := trendBars(51, 100, 2)
		conv, base, spanA, spanB := computeIchimoku(highs, lows)
		assert.Nil(t, conv)
		assert.Nil(t, base)
		assert.Nil(t, spanA)
		assert.Nil(t, spanB)
	})
}
