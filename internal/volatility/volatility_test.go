package volatility

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/premium_scout/internal/models"
)

func TestComputeBand_ScenarioA(t *testing.T) {
	band, err := ComputeBand(250.50, 0.35, 7)
	require.NoError(t, err)

	expectedMove := 250.50 * 0.35 * math.Sqrt(7.0/365.0)
	assert.InDelta(t, expectedMove, band.OneSigma.Move, 1e-9)
	assert.InDelta(t, 12.14, band.OneSigma.Move, 0.01)
	assert.InDelta(t, 250.50-expectedMove, band.OneSigma.Lower, 1e-9)
	assert.InDelta(t, 250.50+expectedMove, band.OneSigma.Upper, 1e-9)
	assert.InDelta(t, 2*expectedMove, band.TwoSigma.Move, 1e-9)
	assert.InDelta(t, expectedMove/250.50*100, band.OneSigma.MovePct, 1e-9)
	assert.Equal(t, 0.682, band.OneSigma.Probability)
	assert.Equal(t, 0.954, band.TwoSigma.Probability)
}

func TestComputeBand_Ordering(t *testing.T) {
	prices := []float64{0.5, 12.3, 99.99, 250.5, 4800}
	ivs := []float64{0.01, 0.2, 0.35, 1.5}
	dtes := []int{1, 3, 7, 14, 45}

	for _, p := range prices {
		for _, iv := range ivs {
			for _, d := range dtes {
				band, err := ComputeBand(p, iv, d)
				require.NoError(t, err)
				assert.Less(t, band.OneSigma.Lower, p)
				assert.Greater(t, band.OneSigma.Upper, p)
				assert.Less(t, band.TwoSigma.Lower, band.OneSigma.Lower)
				assert.Greater(t, band.TwoSigma.Upper, band.OneSigma.Upper)
			}
		}
	}
}

func TestComputeBand_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		iv    float64
		dte   int
	}{
		{"zero price", 0, 0.3, 7},
		{"negative price", -10, 0.3, 7},
		{"zero iv", 100, 0, 7},
		{"negative iv", 100, -0.2, 7},
		{"NaN iv", 100, math.NaN(), 7},
		{"infinite price", math.Inf(1), 0.3, 7},
		{"zero dte", 100, 0.3, 0},
		{"negative dte", 100, 0.3, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeBand(tt.price, tt.iv, tt.dte)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput), "expected ErrInvalidInput, got %v", err)
		})
	}
}

func TestProbabilityInRange_Unbounded(t *testing.T) {
	p, err := ProbabilityInRange(250.5, math.Inf(-1), math.Inf(1), 0.35, 7)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p, 1e-9)
}

func TestProbabilityInRange_OneSided(t *testing.T) {
	below, err := ProbabilityInRange(100, math.Inf(-1), 100, 0.3, 30)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, below, 1e-6)

	above, err := ProbabilityInRange(100, 100, math.Inf(1), 0.3, 30)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, above, 1e-6)
}

func TestProbabilityInRange_OneSigmaCoverage(t *testing.T) {
	band, err := ComputeBand(250.5, 0.35, 7)
	require.NoError(t, err)

	p, err := ProbabilityInRange(250.5, band.OneSigma.Lower, band.OneSigma.Upper, 0.35, 7)
	require.NoError(t, err)
	assert.InDelta(t, 0.6827, p, 1e-3)
}

func TestProbabilityInRange_MonotonicAsBoundsWiden(t *testing.T) {
	prev := 0.0
	for half := 0.0; half <= 60; half += 2.5 {
		p, err := ProbabilityInRange(250.5, 250.5-half, 250.5+half, 0.35, 7)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p, prev, "half-width %v", half)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		prev = p
	}
}

func TestProbabilityInRange_Invalid(t *testing.T) {
	_, err := ProbabilityInRange(100, 110, 90, 0.3, 7)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ProbabilityInRange(100, 90, 110, 0, 7)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNormalCDF(t *testing.T) {
	tests := []struct {
		x    float64
		want float64
	}{
		{0, 0.5},
		{1, 0.841345},
		{-1, 0.158655},
		{1.96, 0.975002},
		{-1.96, 0.024998},
		{3, 0.998650},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalCDF(tt.x), 1e-6, "x=%v", tt.x)
	}
	assert.Equal(t, 1.0, NormalCDF(math.Inf(1)))
	assert.Equal(t, 0.0, NormalCDF(math.Inf(-1)))
}

func TestAdjustForGamma(t *testing.T) {
	band, err := ComputeBand(250.5, 0.35, 7)
	require.NoError(t, err)
	move := band.OneSigma.Move

	tests := []struct {
		name       string
		gamma      models.GammaSummary
		multiplier float64
	}{
		{
			name:       "unavailable is a no-op",
			gamma:      models.GammaSummary{Environment: models.GammaPositive, Available: false},
			multiplier: 1,
		},
		{
			name:       "positive gamma narrows",
			gamma:      models.GammaSummary{Environment: models.GammaPositive, ZeroGammaLevel: 230, Available: true},
			multiplier: 0.85,
		},
		{
			name:       "negative gamma widens",
			gamma:      models.GammaSummary{Environment: models.GammaNegative, ZeroGammaLevel: 270, Available: true},
			multiplier: 1.15,
		},
		{
			name:       "negative gamma near zero-gamma flip",
			gamma:      models.GammaSummary{Environment: models.GammaNegative, ZeroGammaLevel: 248, Available: true},
			multiplier: 1.15 * 1.10,
		},
		{
			name:       "neutral near zero-gamma flip",
			gamma:      models.GammaSummary{Environment: models.GammaNeutral, ZeroGammaLevel: 252, Available: true},
			multiplier: 1.10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adjusted := AdjustForGamma(band, tt.gamma)
			assert.InDelta(t, move*tt.multiplier, adjusted.OneSigma.Move, 1e-9)
			assert.InDelta(t, 2*move*tt.multiplier, adjusted.TwoSigma.Move, 1e-9)
			assert.InDelta(t, band.Price-move*tt.multiplier, adjusted.OneSigma.Lower, 1e-9)
			assert.InDelta(t, band.Price+move*tt.multiplier, adjusted.OneSigma.Upper, 1e-9)
			assert.Equal(t, band.OneSigma.Probability, adjusted.OneSigma.Probability)
		})
	}
}
