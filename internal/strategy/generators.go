package strategy

import (
	"fmt"
	"math"

	"github.com/eddiefleurent/premium_scout/internal/models"
	"github.com/eddiefleurent/premium_scout/internal/util"
)

func always(Inputs, Policy) (bool, string) { return true, "" }

// spreadWidth returns hi-lo, or 0 when the spread is inverted or the lower
// strike is not a real price.
func spreadWidth(lo, hi float64) float64 {
	if math.IsNaN(lo) || math.IsNaN(hi) || lo <= 0 || hi <= lo {
		return 0
	}
	return hi - lo
}

func grid(in Inputs, p Policy) (price, inc, width float64) {
	price = in.Snapshot.Price
	return price, p.StrikeIncrement(price), p.Width(price)
}

func ironCondor() Generator {
	return Generator{
		Type: models.StrategyIronCondor,
		Eligible: func(in Inputs, p Policy) (bool, string) {
			if in.Snapshot.IVRank < p.IronCondorMinIVRank {
				return false, fmt.Sprintf("IV rank %.0f below iron condor minimum %.0f",
					in.Snapshot.IVRank, p.IronCondorMinIVRank)
			}
			return true, ""
		},
		Plan: func(in Inputs, p Policy) Plan {
			_, inc, w := grid(in, p)
			shortPut := util.FloorToTick(in.Band.OneSigma.Lower, inc)
			shortCall := util.CeilToTick(in.Band.OneSigma.Upper, inc)
			return Plan{
				Direction: models.DirectionNeutral,
				Legs: []LegSpec{
					{Role: models.RoleLongPut, Action: models.ActionBuy, Type: models.OptionTypePut, Strike: shortPut - w},
					{Role: models.RoleShortPut, Action: models.ActionSell, Type: models.OptionTypePut, Strike: shortPut},
					{Role: models.RoleShortCall, Action: models.ActionSell, Type: models.OptionTypeCall, Strike: shortCall},
					{Role: models.RoleLongCall, Action: models.ActionBuy, Type: models.OptionTypeCall, Strike: shortCall + w},
				},
				Width: func(legs []models.Leg) float64 {
					putW := spreadWidth(legStrike(legs, models.RoleLongPut), legStrike(legs, models.RoleShortPut))
					callW := spreadWidth(legStrike(legs, models.RoleShortCall), legStrike(legs, models.RoleLongCall))
					if putW <= 0 || callW <= 0 || legStrike(legs, models.RoleShortPut) >= legStrike(legs, models.RoleShortCall) {
						return 0
					}
					return math.Max(putW, callW)
				},
				Breakevens: func(legs []models.Leg, perShare float64) (float64, float64) {
					return legStrike(legs, models.RoleShortPut) - perShare, legStrike(legs, models.RoleShortCall) + perShare
				},
				Notes: []string{fmt.Sprintf("Short strikes outside the 1σ band %.2f–%.2f",
					in.Band.OneSigma.Lower, in.Band.OneSigma.Upper)},
			}
		},
	}
}

func verticalSpread() Generator {
	return Generator{
		Type:     models.StrategyVerticalSpread,
		Eligible: always,
		Plan: func(in Inputs, p Policy) Plan {
			_, inc, w := grid(in, p)
			trend := in.Snapshot.Trend

			if trend == models.TrendBearish {
				short := util.CeilToTick(in.Band.OneSigma.Upper, inc)
				return Plan{
					Direction: models.DirectionBearish,
					Legs: []LegSpec{
						{Role: models.RoleShortCall, Action: models.ActionSell, Type: models.OptionTypeCall, Strike: short},
						{Role: models.RoleLongCall, Action: models.ActionBuy, Type: models.OptionTypeCall, Strike: short + w},
					},
					Width: func(legs []models.Leg) float64 {
						return spreadWidth(legStrike(legs, models.RoleShortCall), legStrike(legs, models.RoleLongCall))
					},
					Breakevens: func(legs []models.Leg, perShare float64) (float64, float64) {
						return math.Inf(-1), legStrike(legs, models.RoleShortCall) + perShare
					},
					Notes: []string{"Selling call side: trend bearish"},
				}
			}

			short := util.FloorToTick(in.Band.OneSigma.Lower, inc)
			return Plan{
				Direction: models.DirectionBullish,
				Legs: []LegSpec{
					{Role: models.RoleShortPut, Action: models.ActionSell, Type: models.OptionTypePut, Strike: short},
					{Role: models.RoleLongPut, Action: models.ActionBuy, Type: models.OptionTypePut, Strike: short - w},
				},
				Width: func(legs []models.Leg) float64 {
					return spreadWidth(legStrike(legs, models.RoleLongPut), legStrike(legs, models.RoleShortPut))
				},
				Breakevens: func(legs []models.Leg, perShare float64) (float64, float64) {
					return legStrike(legs, models.RoleShortPut) - perShare, math.Inf(1)
				},
				Notes: []string{fmt.Sprintf("Selling put side: trend %s", trend)},
			}
		},
	}
}

func butterfly() Generator {
	return Generator{
		Type: models.StrategyButterfly,
		Eligible: func(in Inputs, p Policy) (bool, string) {
			if in.Snapshot.IVRank > p.ButterflyMaxIVRank {
				return false, fmt.Sprintf("IV rank %.0f above butterfly maximum %.0f",
					in.Snapshot.IVRank, p.ButterflyMaxIVRank)
			}
			return true, ""
		},
		Plan: func(in Inputs, p Policy) Plan {
			price, inc, w := grid(in, p)
			center := util.RoundToTick(price, inc)
			return Plan{
				Direction: models.DirectionNeutral,
				Legs: []LegSpec{
					{Role: models.RoleLowerWing, Action: models.ActionBuy, Type: models.OptionTypeCall, Strike: center - w},
					{Role: models.RoleCenter, Action: models.ActionSell, Type: models.OptionTypeCall, Strike: center, Ratio: 2},
					{Role: models.RoleUpperWing, Action: models.ActionBuy, Type: models.OptionTypeCall, Strike: center + w},
				},
				Width: func(legs []models.Leg) float64 {
					lower := spreadWidth(legStrike(legs, models.RoleLowerWing), legStrike(legs, models.RoleCenter))
					upper := spreadWidth(legStrike(legs, models.RoleCenter), legStrike(legs, models.RoleUpperWing))
					return math.Min(lower, upper)
				},
				Breakevens: func(legs []models.Leg, perShare float64) (float64, float64) {
					return legStrike(legs, models.RoleLowerWing) + perShare, legStrike(legs, models.RoleUpperWing) - perShare
				},
				Notes: []string{fmt.Sprintf("Centered at %.2f for a pin near spot", center)},
			}
		},
	}
}

func cashSecuredPut() Generator {
	return Generator{
		Type: models.StrategyCashSecuredPut,
		Eligible: func(in Inputs, _ Policy) (bool, string) {
			if in.Snapshot.Trend == models.TrendBearish {
				return false, "trend bearish"
			}
			return true, ""
		},
		Plan: func(in Inputs, p Policy) Plan {
			price, inc, _ := grid(in, p)
			strike := util.RoundToTick(price*p.CSPStrikePct, inc)
			return Plan{
				Direction: models.DirectionBullish,
				Legs: []LegSpec{
					{Role: models.RoleShortPut, Action: models.ActionSell, Type: models.OptionTypePut, Strike: strike},
				},
				// Cash secured: the full strike is at risk.
				Width: func(legs []models.Leg) float64 {
					k := legStrike(legs, models.RoleShortPut)
					if math.IsNaN(k) || k <= 0 {
						return 0
					}
					return k
				},
				Breakevens: func(legs []models.Leg, perShare float64) (float64, float64) {
					return legStrike(legs, models.RoleShortPut) - perShare, math.Inf(1)
				},
				Notes: []string{fmt.Sprintf("Strike at %.0f%% of spot", p.CSPStrikePct*100)},
			}
		},
	}
}

func timeSpreadEligible(in Inputs, p Policy) (bool, string) {
	if in.Snapshot.DTE < p.MinTimeSpreadDTE {
		return false, fmt.Sprintf("DTE %d below time-spread minimum %d", in.Snapshot.DTE, p.MinTimeSpreadDTE)
	}
	return true, ""
}

func calendarSpread() Generator {
	return Generator{
		Type:     models.StrategyCalendarSpread,
		Eligible: timeSpreadEligible,
		Plan: func(in Inputs, p Policy) Plan {
			price, inc, w := grid(in, p)
			strike := util.RoundToTick(price, inc)
			return Plan{
				Direction: models.DirectionNeutral,
				Legs: []LegSpec{
					{Role: models.RoleNearShort, Action: models.ActionSell, Type: models.OptionTypeCall, Strike: strike},
					{Role: models.RoleFarLong, Action: models.ActionBuy, Type: models.OptionTypeCall, Strike: strike, Far: true},
				},
				// Same-strike spread: the width table stands in for the profit zone.
				// Quoted legs that land on different strikes are not a calendar.
				Width: func(legs []models.Leg) float64 {
					nearK, farK := legStrike(legs, models.RoleNearShort), legStrike(legs, models.RoleFarLong)
					if math.IsNaN(nearK) || math.IsNaN(farK) || nearK != farK {
						return 0
					}
					return w
				},
				Breakevens: func(legs []models.Leg, perShare float64) (float64, float64) {
					k := legStrike(legs, models.RoleNearShort)
					return k - (w - perShare), k + (w - perShare)
				},
				Notes: []string{fmt.Sprintf("Long leg expires %d days after the short leg", p.FarLegOffsetDays)},
			}
		},
	}
}

func diagonalSpread() Generator {
	return Generator{
		Type: models.StrategyDiagonalSpread,
		Eligible: func(in Inputs, p Policy) (bool, string) {
			if ok, reason := timeSpreadEligible(in, p); !ok {
				return false, reason
			}
			if in.Snapshot.Trend == models.TrendNeutral {
				return false, "trend neutral"
			}
			return true, ""
		},
		Plan: func(in Inputs, p Policy) Plan {
			price, inc, w := grid(in, p)
			long := util.RoundToTick(price, inc)

			typ, dir, short := models.OptionTypeCall, models.DirectionBullish, long+w
			if in.Snapshot.Trend == models.TrendBearish {
				typ, dir, short = models.OptionTypePut, models.DirectionBearish, long-w
			}
			return Plan{
				Direction: dir,
				Legs: []LegSpec{
					{Role: models.RoleNearShort, Action: models.ActionSell, Type: typ, Strike: short},
					{Role: models.RoleFarLong, Action: models.ActionBuy, Type: typ, Strike: long, Far: true},
				},
				Width: func(legs []models.Leg) float64 {
					s, l := legStrike(legs, models.RoleNearShort), legStrike(legs, models.RoleFarLong)
					if dir == models.DirectionBullish {
						return spreadWidth(l, s)
					}
					return spreadWidth(s, l)
				},
				Breakevens: func(legs []models.Leg, perShare float64) (float64, float64) {
					l := legStrike(legs, models.RoleFarLong)
					if dir == models.DirectionBullish {
						return l + perShare, math.Inf(1)
					}
					return math.Inf(-1), l - perShare
				},
				Notes: []string{fmt.Sprintf("Long %s leg expires %d days after the short leg", typ, p.FarLegOffsetDays)},
			}
		},
	}
}
