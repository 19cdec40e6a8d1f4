// Package util provides common utility functions for price and strike rounding.
package util

import "math"

// tickEpsilon absorbs float noise such as 1.30/0.05 = 26.000000000000004.
const tickEpsilon = 1e-12

// normalizeTick returns |tick| and whether x can be snapped to it at all.
func normalizeTick(x, tick float64) (float64, bool) {
	if tick == 0 || math.IsNaN(tick) || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, false
	}
	return math.Abs(tick), true
}

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=2.5, 251.3 becomes 252.5 and 250.9 becomes 250.
func RoundToTick(x, tick float64) float64 {
	t, ok := normalizeTick(x, tick)
	if !ok {
		return x
	}
	return math.Round(x/t) * t
}

// FloorToTick rounds x down to the closest tick increment at or below x.
func FloorToTick(x, tick float64) float64 {
	t, ok := normalizeTick(x, tick)
	if !ok {
		return x
	}
	return math.Floor(x/t+tickEpsilon) * t
}

// CeilToTick rounds x up to the closest tick increment at or above x.
func CeilToTick(x, tick float64) float64 {
	t, ok := normalizeTick(x, tick)
	if !ok {
		return x
	}
	return math.Ceil(x/t-tickEpsilon) * t
}

// RoundCents rounds a currency amount to two decimals.
func RoundCents(x float64) float64 {
	return math.Round(x*100) / 100
}
