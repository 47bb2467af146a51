package db

import "math"

// SanitizeFloat returns nil for NaN or ±Inf so the value lands as SQL
// NULL instead of poisoning the row. Finite values pass through.
func SanitizeFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// SanitizeFloatPtr is SanitizeFloat for already-nullable values.
func SanitizeFloatPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return SanitizeFloat(*v)
}

// RoundConfidence clamps a float confidence to the 1..10 scale and
// rounds it to the whole number stored at rest.
func RoundConfidence(v float64) int {
	if math.IsNaN(v) {
		return 1
	}
	r := int(math.Round(v))
	if r < 1 {
		return 1
	}
	if r > 10 {
		return 10
	}
	return r
}
