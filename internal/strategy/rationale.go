package strategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eddiefleurent/premium_scout/internal/models"
)

func rationale(in Inputs, cand *models.StrategyCandidate, notes []string, pr pricing) []string {
	snap := in.Snapshot
	lines := []string{
		fmt.Sprintf("IV rank %.0f (%s)", snap.IVRank, snap.IVRankTier),
		fmt.Sprintf("Trend %s, score %.0f", snap.Trend, snap.TrendScore),
		"Strikes " + formatStrikes(cand.Legs),
	}
	lines = append(lines, notes...)

	if snap.DTE > 0 {
		perDay := cand.NetPremium() / float64(snap.DTE)
		if cand.Type.IsCredit() {
			lines = append(lines, fmt.Sprintf("Collects about $%.2f/day of decay over %d days", perDay, snap.DTE))
		} else {
			lines = append(lines, fmt.Sprintf("Costs about $%.2f/day of theta over %d days", perDay, snap.DTE))
		}
	}

	if g := snap.Gamma; g.Available {
		lines = append(lines, fmt.Sprintf("Dealer gamma %s, zero-gamma level %.2f", g.Environment, g.ZeroGammaLevel))
	} else {
		lines = append(lines, "Gamma exposure unavailable")
	}

	if pr.real {
		lines = append(lines, "Priced from quoted mids")
	} else {
		lines = append(lines, "Estimated pricing: "+pr.note)
	}
	if cand.WinRateSource == models.WinRateBaseRate {
		lines = append(lines, "Win rate from base-rate table")
	}
	return lines
}

func formatStrikes(legs []models.Leg) string {
	sorted := make([]models.Leg, len(legs))
	copy(sorted, legs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Strike < sorted[j].Strike })

	parts := make([]string, 0, len(sorted))
	for _, l := range sorted {
		s := fmt.Sprintf("%s %g %s", l.Action, l.Strike, l.Type)
		if l.Ratio > 1 {
			s = fmt.Sprintf("%s %dx %g %s", l.Action, l.Ratio, l.Strike, l.Type)
		}
		if l.FarDated {
			s += " (far)"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " / ")
}
