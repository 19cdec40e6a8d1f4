// Package volatility converts spot, implied volatility and time to expiration into
// expected-move bands and range probabilities.
package volatility

import (
	"errors"
	"fmt"
	"math"

	"github.com/eddiefleurent/premium_scout/internal/models"
)

// ErrInvalidInput is returned when price, IV or DTE is missing, zero or negative.
var ErrInvalidInput = errors.New("invalid volatility input")

const (
	daysPerYear = 365.0

	// Theoretical coverage of a normal distribution; attached, not measured.
	oneSigmaCoverage = 0.682
	twoSigmaCoverage = 0.954

	positiveGammaDamping   = 0.85
	negativeGammaExpansion = 1.15
	zeroGammaProximityPct  = 0.02
	zeroGammaMultiplier    = 1.10
)

// Level is one sigma band around the spot price.
type Level struct {
	Upper       float64 `json:"upper"`
	Lower       float64 `json:"lower"`
	Move        float64 `json:"move"`
	MovePct     float64 `json:"move_pct"`
	Probability float64 `json:"probability"`
}

// Band holds the 1σ and 2σ expected-move levels.
type Band struct {
	Price    float64 `json:"price"`
	IV       float64 `json:"iv"`
	DTE      int     `json:"dte"`
	OneSigma Level   `json:"one_sigma"`
	TwoSigma Level   `json:"two_sigma"`
}

// TimeFactor returns √(dte/365).
func TimeFactor(dte int) float64 {
	return math.Sqrt(float64(dte) / daysPerYear)
}

func validate(price, iv float64, dte int) error {
	switch {
	case math.IsNaN(price) || math.IsInf(price, 0) || price <= 0:
		return fmt.Errorf("%w: price %v", ErrInvalidInput, price)
	case math.IsNaN(iv) || math.IsInf(iv, 0) || iv <= 0:
		return fmt.Errorf("%w: iv %v", ErrInvalidInput, iv)
	case dte <= 0:
		return fmt.Errorf("%w: dte %d", ErrInvalidInput, dte)
	}
	return nil
}

func newLevel(price, move, coverage float64) Level {
	return Level{
		Upper:       price + move,
		Lower:       price - move,
		Move:        move,
		MovePct:     move / price * 100,
		Probability: coverage,
	}
}

// ComputeBand returns the 1σ and 2σ expected-move band for the given inputs.
func ComputeBand(price, iv float64, dte int) (Band, error) {
	if err := validate(price, iv, dte); err != nil {
		return Band{}, err
	}
	move := price * iv * TimeFactor(dte)
	return Band{
		Price:    price,
		IV:       iv,
		DTE:      dte,
		OneSigma: newLevel(price, move, oneSigmaCoverage),
		TwoSigma: newLevel(price, 2*move, twoSigmaCoverage),
	}, nil
}

// ProbabilityInRange returns the probability that price finishes between lower and
// upper at expiration. Use math.Inf(-1) or math.Inf(1) for an open side.
func ProbabilityInRange(price, lower, upper, iv float64, dte int) (float64, error) {
	if err := validate(price, iv, dte); err != nil {
		return 0, err
	}
	if math.IsNaN(lower) || math.IsNaN(upper) || lower > upper {
		return 0, fmt.Errorf("%w: range [%v, %v]", ErrInvalidInput, lower, upper)
	}
	sigma := price * iv * TimeFactor(dte)
	p := NormalCDF((upper-price)/sigma) - NormalCDF((lower-price)/sigma)
	return math.Max(0, math.Min(1, p)), nil
}

// Abramowitz & Stegun 26.2.17 coefficients.
const (
	asP  = 0.2316419
	asB1 = 0.319381530
	asB2 = -0.356563782
	asB3 = 1.781477937
	asB4 = -1.821255978
	asB5 = 1.330274429
)

// NormalCDF approximates the standard normal CDF with the Abramowitz–Stegun
// rational form (absolute error below 7.5e-8).
func NormalCDF(x float64) float64 {
	switch {
	case math.IsInf(x, 1):
		return 1
	case math.IsInf(x, -1):
		return 0
	}
	ax := math.Abs(x)
	t := 1 / (1 + asP*ax)
	poly := t * (asB1 + t*(asB2+t*(asB3+t*(asB4+t*asB5))))
	pdf := math.Exp(-ax*ax/2) / math.Sqrt(2*math.Pi)
	cdf := 1 - pdf*poly
	if x < 0 {
		return 1 - cdf
	}
	return cdf
}

// GammaMultiplier returns the band-width multiplier implied by dealer gamma.
func GammaMultiplier(price float64, gamma models.GammaSummary) float64 {
	if !gamma.Available {
		return 1
	}
	m := 1.0
	switch gamma.Environment {
	case models.GammaPositive:
		m = positiveGammaDamping
	case models.GammaNegative:
		m = negativeGammaExpansion
	}
	if gamma.ZeroGammaLevel > 0 && price > 0 &&
		math.Abs(price-gamma.ZeroGammaLevel)/price <= zeroGammaProximityPct {
		m *= zeroGammaMultiplier
	}
	return m
}

// AdjustForGamma widens or narrows the band according to the gamma environment.
// Positive gamma pins price (narrower), negative gamma amplifies moves (wider),
// and spot near the zero-gamma flip adds instability.
func AdjustForGamma(band Band, gamma models.GammaSummary) Band {
	m := GammaMultiplier(band.Price, gamma)
	if m == 1 || band.Price <= 0 {
		return band
	}
	out := band
	out.OneSigma = newLevel(band.Price, band.OneSigma.Move*m, band.OneSigma.Probability)
	out.TwoSigma = newLevel(band.Price, band.TwoSigma.Move*m, band.TwoSigma.Probability)
	return out
}
