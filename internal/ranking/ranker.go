// Package ranking orders scored candidates and keeps the best few.
package ranking

import (
	"sort"

	"github.com/eddiefleurent/premium_scout/internal/models"
)

// DefaultLimit is the number of candidates a ranking returns.
const DefaultLimit = 3

// Tier markers by rank.
const (
	TierGold     = "gold"
	TierSilver   = "silver"
	TierBronze   = "bronze"
	TierStandard = "standard"
)

// TierFor returns the marker for a 1-based rank.
func TierFor(rank int) string {
	switch rank {
	case 1:
		return TierGold
	case 2:
		return TierSilver
	case 3:
		return TierBronze
	default:
		return TierStandard
	}
}

// Rank stable-sorts candidates by score descending, assigns ranks and tiers and
// truncates to limit. Ties keep their input order. A limit <= 0 keeps everything.
// The input slice is not reordered.
func Rank(cands []*models.StrategyCandidate, limit int) []*models.StrategyCandidate {
	out := make([]*models.StrategyCandidate, 0, len(cands))
	for _, c := range cands {
		if c != nil {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	for i, c := range out {
		c.Rank = i + 1
		c.Tier = TierFor(c.Rank)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
