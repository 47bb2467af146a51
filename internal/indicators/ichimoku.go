package indicators

const (
	ichimokuConversionPeriod = 9
	ichimokuBasePeriod       = 26
	ichimokuSpanBPeriod      = 52
)

// computeIchimoku returns the current Ichimoku lines: conversion
// (tenkan), base (kijun), span A, and span B, each the midpoint of its
// window's high/low range. The whole cloud is nil until the series can
// seed the 52-bar span B so consumers never see half a cloud.
func computeIchimoku(highs, lows []float64) (conversion, base, spanA, spanB *float64) {
	n := len(highs)
	if n < ichimokuSpanBPeriod || len(lows) != n {
		return nil, nil, nil, nil
	}

	mid := func(period int) float64 {
		hh := highestOf(highs[n-period:])
		ll := lowestOf(lows[n-period:])
		return (hh + ll) / 2
	}

	c := mid(ichimokuConversionPeriod)
	b := mid(ichimokuBasePeriod)
	a := (c + b) / 2
	sb := mid(ichimokuSpanBPeriod)
	return &c, &b, &a, &sb
}
