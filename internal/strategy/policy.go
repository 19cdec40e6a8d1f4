package strategy

import (
	"fmt"

	"github.com/eddiefleurent/premium_scout/internal/models"
)

// PriceTier maps underlyings priced below MaxPrice to Value. A zero MaxPrice
// terminates the table and matches every remaining price.
type PriceTier struct {
	MaxPrice float64
	Value    float64
}

// Policy holds every tunable constant the catalog consumes.
type Policy struct {
	// MinNetPremium is the total premium a candidate must collect or pay; contracts
	// are sized by ceiling division against it.
	MinNetPremium float64
	// MinPremiumPerShare floors the estimated premium of a single contract.
	MinPremiumPerShare float64

	StrikeGrid []PriceTier
	WidthTable []PriceTier

	PremiumFactors map[models.StrategyType]float64
	BaseWinRates   map[models.StrategyType]float64
	// TierWinRateAdjustment shifts base win rates by IV-rank tier.
	TierWinRateAdjustment float64

	IronCondorMinIVRank float64
	ButterflyMaxIVRank  float64
	MinTimeSpreadDTE    int
	// FarLegOffsetDays is how much later the long leg of a time spread expires.
	FarLegOffsetDays int
	CSPStrikePct     float64
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		MinNetPremium:      150,
		MinPremiumPerShare: 0.05,
		StrikeGrid: []PriceTier{
			{MaxPrice: 25, Value: 0.5},
			{MaxPrice: 100, Value: 1},
			{MaxPrice: 200, Value: 2.5},
			{MaxPrice: 500, Value: 5},
			{MaxPrice: 0, Value: 10},
		},
		WidthTable: []PriceTier{
			{MaxPrice: 25, Value: 1},
			{MaxPrice: 100, Value: 5},
			{MaxPrice: 200, Value: 5},
			{MaxPrice: 500, Value: 10},
			{MaxPrice: 0, Value: 20},
		},
		PremiumFactors: map[models.StrategyType]float64{
			models.StrategyIronCondor:     0.12,
			models.StrategyVerticalSpread: 0.08,
			models.StrategyCashSecuredPut: 0.10,
			models.StrategyButterfly:      0.05,
			models.StrategyCalendarSpread: 0.06,
			models.StrategyDiagonalSpread: 0.07,
		},
		BaseWinRates: map[models.StrategyType]float64{
			models.StrategyIronCondor:     68,
			models.StrategyVerticalSpread: 70,
			models.StrategyButterfly:      35,
			models.StrategyCashSecuredPut: 75,
			models.StrategyCalendarSpread: 55,
			models.StrategyDiagonalSpread: 50,
		},
		TierWinRateAdjustment: 5,
		IronCondorMinIVRank:   45,
		ButterflyMaxIVRank:    60,
		MinTimeSpreadDTE:      7,
		FarLegOffsetDays:      7,
		CSPStrikePct:          0.95,
	}
}

func lookupTier(tiers []PriceTier, price float64) float64 {
	for _, t := range tiers {
		if t.MaxPrice <= 0 || price < t.MaxPrice {
			return t.Value
		}
	}
	if len(tiers) == 0 {
		return 0
	}
	return tiers[len(tiers)-1].Value
}

// StrikeIncrement returns the strike grid step for an underlying price.
func (p Policy) StrikeIncrement(price float64) float64 {
	return lookupTier(p.StrikeGrid, price)
}

// Width returns the wing/spread width for an underlying price.
func (p Policy) Width(price float64) float64 {
	return lookupTier(p.WidthTable, price)
}

// Factor returns the premium-estimation factor for a strategy type.
func (p Policy) Factor(t models.StrategyType) float64 {
	return p.PremiumFactors[t]
}

func validateTiers(name string, tiers []PriceTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%s must not be empty", name)
	}
	prev := 0.0
	for i, t := range tiers {
		if t.Value <= 0 {
			return fmt.Errorf("%s[%d] value must be > 0", name, i)
		}
		if t.MaxPrice <= 0 {
			if i != len(tiers)-1 {
				return fmt.Errorf("%s[%d] open-ended tier must be last", name, i)
			}
			continue
		}
		if t.MaxPrice <= prev {
			return fmt.Errorf("%s[%d] max_price must be ascending", name, i)
		}
		prev = t.MaxPrice
	}
	return nil
}

// Validate checks that the policy is internally consistent.
func (p Policy) Validate() error {
	if p.MinNetPremium <= 0 {
		return fmt.Errorf("min_net_premium must be > 0")
	}
	if p.MinPremiumPerShare <= 0 {
		return fmt.Errorf("min_premium_per_share must be > 0")
	}
	if err := validateTiers("strike_grid", p.StrikeGrid); err != nil {
		return err
	}
	if err := validateTiers("width_table", p.WidthTable); err != nil {
		return err
	}
	for _, t := range models.AllStrategyTypes {
		if p.PremiumFactors[t] <= 0 {
			return fmt.Errorf("premium_factors.%s must be > 0", t)
		}
		if r, ok := p.BaseWinRates[t]; !ok || r < 0 || r > 100 {
			return fmt.Errorf("base_win_rates.%s must be between 0 and 100", t)
		}
	}
	if p.IronCondorMinIVRank < 0 || p.IronCondorMinIVRank > 100 {
		return fmt.Errorf("iron_condor_min_iv_rank must be between 0 and 100")
	}
	if p.ButterflyMaxIVRank < 0 || p.ButterflyMaxIVRank > 100 {
		return fmt.Errorf("butterfly_max_iv_rank must be between 0 and 100")
	}
	if p.MinTimeSpreadDTE <= 0 {
		return fmt.Errorf("min_time_spread_dte must be > 0")
	}
	if p.FarLegOffsetDays <= 0 {
		return fmt.Errorf("far_leg_offset_days must be > 0")
	}
	if p.CSPStrikePct <= 0 || p.CSPStrikePct > 1 {
		return fmt.Errorf("csp_strike_pct must be in (0,1]")
	}
	return nil
}
