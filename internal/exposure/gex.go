// Package exposure estimates dealer gamma exposure (GEX) from an option chain.
//
// Dealers are assumed long calls and short puts against customer flow, so call
// gamma counts positive and put gamma negative. Per-contract exposure is
// gamma × open interest × 100 × spot² × 1%, the dollar delta change for a 1% move.
package exposure

import (
	"math"
	"sort"
	"strings"

	"github.com/eddiefleurent/premium_scout/internal/models"
)

// NeutralBand is the share of gross exposure below which net exposure counts
// as neutral.
const NeutralBand = 0.05

// Level is net exposure at one strike.
type Level struct {
	Strike float64 `json:"strike"`
	Net    float64 `json:"net"`
}

// Profile is the strike-by-strike exposure of a chain.
type Profile struct {
	Spot   float64 `json:"spot"`
	Levels []Level `json:"levels"`
	Net    float64 `json:"net"`
	Gross  float64 `json:"gross"`
}

// Build aggregates exposure by strike. Contracts without greeks or open interest
// are skipped.
func Build(spot float64, contracts []models.RawContract) Profile {
	p := Profile{Spot: spot}
	if spot <= 0 {
		return p
	}
	byStrike := make(map[float64]float64)
	scale := 100 * spot * spot * 0.01

	for _, c := range contracts {
		if c.Greeks == nil || c.OpenInterest <= 0 || math.IsNaN(c.Greeks.Gamma) {
			continue
		}
		gex := c.Greeks.Gamma * float64(c.OpenInterest) * scale
		switch models.OptionType(strings.ToLower(c.OptionType)) {
		case models.OptionTypeCall:
		case models.OptionTypePut:
			gex = -gex
		default:
			continue
		}
		byStrike[c.Strike] += gex
		p.Net += gex
		p.Gross += math.Abs(gex)
	}

	p.Levels = make([]Level, 0, len(byStrike))
	for k, v := range byStrike {
		p.Levels = append(p.Levels, Level{Strike: k, Net: v})
	}
	sort.Slice(p.Levels, func(i, j int) bool { return p.Levels[i].Strike < p.Levels[j].Strike })
	return p
}

// ZeroGammaLevel returns the strike where cumulative exposure, summed from the
// lowest strike up, changes sign; the crossing is linearly interpolated between
// neighbouring strikes. ok is false when the cumulative curve never crosses zero.
func (p Profile) ZeroGammaLevel() (level float64, ok bool) {
	cum := 0.0
	for i, l := range p.Levels {
		prev := cum
		cum += l.Net
		if i == 0 {
			continue
		}
		if (prev < 0 && cum >= 0) || (prev > 0 && cum <= 0) {
			lo := p.Levels[i-1].Strike
			frac := prev / (prev - cum)
			return lo + frac*(l.Strike-lo), true
		}
	}
	return 0, false
}

// Summary reduces the profile to the environment the pipeline consumes.
func (p Profile) Summary() models.GammaSummary {
	if p.Gross == 0 {
		return models.GammaSummary{}
	}
	s := models.GammaSummary{Available: true}
	switch {
	case math.Abs(p.Net) < NeutralBand*p.Gross:
		s.Environment = models.GammaNeutral
	case p.Net > 0:
		s.Environment = models.GammaPositive
	default:
		s.Environment = models.GammaNegative
	}
	if lvl, ok := p.ZeroGammaLevel(); ok {
		s.ZeroGammaLevel = math.Round(lvl*100) / 100
	}
	return s
}

// FromChain builds the profile and returns its summary.
func FromChain(spot float64, contracts []models.RawContract) models.GammaSummary {
	return Build(spot, contracts).Summary()
}
