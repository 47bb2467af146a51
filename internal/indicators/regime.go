package indicators

// Regime classification thresholds.
const (
	adxTrendThreshold = 30.0 // ADX above this marks a directional market
	volatileAtrRatio  = 0.04 // ATR/price above this marks a volatile one
)

// classifyRegime labels the market from trend strength (ADX), 30-bar
// drift direction, and ATR-normalized volatility. Rule order matters:
// a strongly trending market is BULL or BEAR even when volatile.
// Confidence measures how decisively the winning rule's threshold was
// exceeded; a reading right at a threshold scores 0.5.
func classifyRegime(adx, atrRatio, drift *float64) Regime {
	if adx != nil && drift != nil && *adx > adxTrendThreshold {
		conf := clamp01(0.5 + (*adx-adxTrendThreshold)/40)
		if *drift > 0 {
			return Regime{Label: RegimeBull, Confidence: conf}
		}
		if *drift < 0 {
			return Regime{Label: RegimeBear, Confidence: conf}
		}
	}

	if atrRatio != nil && *atrRatio > volatileAtrRatio {
		conf := clamp01(0.5 + (*atrRatio-volatileAtrRatio)/volatileAtrRatio)
		return Regime{Label: RegimeVolatile, Confidence: conf}
	}

	if adx == nil && atrRatio == nil {
		// nothing to classify on: a shallow series defaults to a
		// low-conviction SIDEWAYS
		return Regime{Label: RegimeSideways, Confidence: 0.25}
	}

	// confidence shrinks as either threshold gets close
	adxFrac, volFrac := 0.0, 0.0
	if adx != nil {
		adxFrac = *adx / adxTrendThreshold
	}
	if atrRatio != nil {
		volFrac = *atrRatio / volatileAtrRatio
	}
	nearest := adxFrac
	if volFrac > nearest {
		nearest = volFrac
	}
	return Regime{Label: RegimeSideways, Confidence: clamp01(1 - nearest/2)}
}
