package strategy

import (
	"fmt"
	"math"

	"github.com/eddiefleurent/premium_scout/internal/chain"
	"github.com/eddiefleurent/premium_scout/internal/models"
	"github.com/eddiefleurent/premium_scout/internal/util"
	"github.com/eddiefleurent/premium_scout/internal/volatility"
)

const sharesPerContract = 100.0

// EstimatePremium returns the formula premium per share:
// iv · price · √(dte/365) · factor, floored at minPerShare.
func EstimatePremium(iv, price float64, dte int, factor, minPerShare float64) float64 {
	est := iv * price * volatility.TimeFactor(dte) * factor
	if math.IsNaN(est) || est < minPerShare {
		return minPerShare
	}
	return est
}

// SizeContracts returns ceil(minNetPremium / perContract), never less than one.
func SizeContracts(minNetPremium, perContract float64) int {
	if perContract <= 0 || minNetPremium <= 0 {
		return 1
	}
	n := int(math.Ceil(minNetPremium / perContract))
	if n < 1 {
		return 1
	}
	return n
}

// EstimateWinRate returns the probability (in percent) that price settles between
// the breakevens. When the probability model cannot be evaluated it falls back to
// the per-strategy base rate adjusted by IV-rank tier.
func EstimateWinRate(snap models.MarketSnapshot, t models.StrategyType,
	lower, upper float64, p Policy) (float64, models.WinRateSource) {
	prob, err := volatility.ProbabilityInRange(snap.Price, lower, upper, snap.IV, snap.DTE)
	if err == nil {
		return math.Round(prob*1000) / 10, models.WinRateProbability
	}
	return baseWinRate(t, snap.IVRankTier, p), models.WinRateBaseRate
}

func baseWinRate(t models.StrategyType, tier models.IVRankTier, p Policy) float64 {
	rate := p.BaseWinRates[t]
	adj := p.TierWinRateAdjustment
	if !t.IsCredit() {
		adj = -adj
	}
	switch tier {
	case models.IVRankHigh:
		rate += adj
	case models.IVRankLow:
		rate -= adj
	}
	return math.Max(0, math.Min(100, rate))
}

func specToLeg(s LegSpec) models.Leg {
	ratio := s.Ratio
	if ratio <= 0 {
		ratio = 1
	}
	return models.Leg{
		Role:     s.Role,
		Action:   s.Action,
		Type:     s.Type,
		Strike:   s.Strike,
		Ratio:    ratio,
		FarDated: s.Far,
	}
}

// resolveLegs prices every leg from quoted mids. Any leg without a usable quote
// fails the whole resolution with ErrLegNotResolved.
func resolveLegs(in Inputs, t models.StrategyType, plan Plan) ([]models.Leg, float64, error) {
	legs := make([]models.Leg, 0, len(plan.Legs))
	net := 0.0
	for _, spec := range plan.Legs {
		src := in.Chain
		if spec.Far {
			src = in.FarChain
		}
		q, err := chain.Nearest(src.Side(spec.Type), spec.Strike)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s: %v", ErrLegNotResolved, spec.Role, err)
		}
		if q.Mid <= 0 {
			return nil, 0, fmt.Errorf("%w: %s %.2f has no quoted mid", ErrLegNotResolved, spec.Role, q.Strike)
		}

		leg := specToLeg(spec)
		leg.Strike = q.Strike
		leg.Mid = q.Mid
		leg.Volume = q.Volume
		leg.OpenInterest = q.OpenInterest
		legs = append(legs, leg)

		if leg.Action == models.ActionSell {
			net += q.Mid * float64(leg.Ratio)
		} else {
			net -= q.Mid * float64(leg.Ratio)
		}
	}

	if !t.IsCredit() {
		net = -net
	}
	if net <= 0 {
		return nil, 0, fmt.Errorf("%w: quoted net premium %.2f has the wrong sign", ErrLegNotResolved, net)
	}
	if w := plan.Width(legs); math.IsNaN(w) || w <= 0 {
		return nil, 0, fmt.Errorf("%w: quoted strikes collapse to width %.2f", ErrLegNotResolved, w)
	}
	return legs, net, nil
}

type pricing struct {
	legs     []models.Leg
	perShare float64
	real     bool
	note     string
}

func priceLegs(in Inputs, p Policy, t models.StrategyType, plan Plan) pricing {
	note := "no option chain supplied"
	if in.Chain != nil {
		legs, perShare, err := resolveLegs(in, t, plan)
		if err == nil {
			return pricing{legs: legs, perShare: perShare, real: true}
		}
		note = err.Error()
	}

	legs := make([]models.Leg, 0, len(plan.Legs))
	for _, spec := range plan.Legs {
		legs = append(legs, specToLeg(spec))
	}
	snap := in.Snapshot
	return pricing{
		legs:     legs,
		perShare: EstimatePremium(snap.IV, snap.Price, snap.DTE, p.Factor(t), p.MinPremiumPerShare),
		note:     note,
	}
}

// build turns a plan into a sized, priced candidate.
func build(in Inputs, p Policy, t models.StrategyType, plan Plan) (*models.StrategyCandidate, error) {
	pr := priceLegs(in, p, t, plan)

	width := plan.Width(pr.legs)
	if math.IsNaN(width) || width <= 0 {
		return nil, fmt.Errorf("%w: width %.2f", ErrDegenerateRange, width)
	}
	perContract := pr.perShare * sharesPerContract
	if math.IsNaN(perContract) || perContract <= 0 {
		return nil, fmt.Errorf("%w: premium per contract %.2f", ErrDegenerateRange, perContract)
	}

	contracts := SizeContracts(p.MinNetPremium, perContract)
	total := util.RoundCents(perContract * float64(contracts))
	notional := width * sharesPerContract * float64(contracts)

	cand := &models.StrategyCandidate{
		Name:            t.DisplayName(),
		Type:            t,
		Direction:       plan.Direction,
		Strikes:         make(map[models.LegRole]float64, len(pr.legs)),
		Legs:            pr.legs,
		Width:           width,
		Contracts:       contracts,
		UsingRealPrices: pr.real,
	}
	for _, l := range pr.legs {
		cand.Strikes[l.Role] = l.Strike
	}

	if t.IsCredit() {
		maxRisk := util.RoundCents(notional - total)
		if maxRisk <= 0 {
			return nil, fmt.Errorf("%w: credit %.2f covers width %.2f", ErrDegenerateRange, total, notional)
		}
		cand.NetCredit = total
		cand.MaxRisk = maxRisk
		cand.MaxProfit = total
		cand.ROC = math.Round(total / maxRisk * 100)
	} else {
		maxProfit := util.RoundCents(notional - total)
		if maxProfit <= 0 {
			return nil, fmt.Errorf("%w: debit %.2f exceeds width %.2f", ErrDegenerateRange, total, notional)
		}
		cand.NetDebit = total
		cand.MaxRisk = total
		cand.MaxProfit = maxProfit
		cand.ROC = math.Round(maxProfit / total * 100)
	}

	lower, upper := plan.Breakevens(pr.legs, pr.perShare)
	cand.WinRate, cand.WinRateSource = EstimateWinRate(in.Snapshot, t, lower, upper, p)
	cand.Rationale = rationale(in, cand, plan.Notes, pr)
	return cand, nil
}
