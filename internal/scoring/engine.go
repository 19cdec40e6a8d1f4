// Package scoring rates strategy candidates on a 0-100 scale against the market
// context they were generated for.
package scoring

import (
	"fmt"
	"math"

	"github.com/eddiefleurent/premium_scout/internal/models"
)

// Weights are the point budgets of each scoring factor.
type Weights struct {
	WinRate   float64 `yaml:"win_rate"`  // 25 pts at a 100% win rate
	ROC       float64 `yaml:"roc"`       // 20 pts, reached at ROCCap
	ROCCap    float64 `yaml:"roc_cap"`   // ROC percent that earns the full ROC weight
	Technical float64 `yaml:"technical"` // 15 pts at trend score 100
	IVFit     float64 `yaml:"iv_fit"`
	Direction float64 `yaml:"direction"`
	Gamma     float64 `yaml:"gamma"`
	Liquidity float64 `yaml:"liquidity"`

	EarningsPenalty    float64 `yaml:"earnings_penalty"`
	EarningsWindowDays int     `yaml:"earnings_window_days"`
}

// DefaultWeights returns the production weights.
func DefaultWeights() Weights {
	return Weights{
		WinRate:            25,
		ROC:                20,
		ROCCap:             50,
		Technical:          15,
		IVFit:              15,
		Direction:          10,
		Gamma:              10,
		Liquidity:          5,
		EarningsPenalty:    10,
		EarningsWindowDays: 7,
	}
}

// Validate rejects negative weights and a non-positive ROC cap.
func (w Weights) Validate() error {
	named := []struct {
		name string
		v    float64
	}{
		{"win_rate", w.WinRate},
		{"roc", w.ROC},
		{"technical", w.Technical},
		{"iv_fit", w.IVFit},
		{"direction", w.Direction},
		{"gamma", w.Gamma},
		{"liquidity", w.Liquidity},
		{"earnings_penalty", w.EarningsPenalty},
	}
	for _, n := range named {
		if n.v < 0 || math.IsNaN(n.v) {
			return fmt.Errorf("%s must be >= 0", n.name)
		}
	}
	if w.ROCCap <= 0 {
		return fmt.Errorf("roc_cap must be > 0")
	}
	if w.EarningsWindowDays < 0 {
		return fmt.Errorf("earnings_window_days must be >= 0")
	}
	return nil
}

// Engine scores candidates. It holds no state beyond its weights.
type Engine struct {
	weights Weights
}

// NewEngine creates a scoring engine; nil selects DefaultWeights.
func NewEngine(weights *Weights) *Engine {
	if weights == nil {
		w := DefaultWeights()
		weights = &w
	}
	return &Engine{weights: *weights}
}

// Weights returns the engine's weights.
func (e *Engine) Weights() Weights {
	return e.weights
}

// Score returns the candidate's integer score in [0,100].
func (e *Engine) Score(c *models.StrategyCandidate, ctx models.ScoringContext) int {
	return int(e.Evaluate(c, ctx).Total)
}

// Apply scores every candidate in place, setting Score and Breakdown.
func (e *Engine) Apply(cands []*models.StrategyCandidate, ctx models.ScoringContext) {
	for _, c := range cands {
		b := e.Evaluate(c, ctx)
		c.Breakdown = &b
		c.Score = int(b.Total)
	}
}

// Evaluate returns the per-factor breakdown. Total is clamped to [0,100] and
// rounded to a whole point.
func (e *Engine) Evaluate(c *models.StrategyCandidate, ctx models.ScoringContext) models.ScoreBreakdown {
	w := e.weights
	b := models.ScoreBreakdown{
		WinRate:      clamp(c.WinRate, 0, 100) / 100 * w.WinRate,
		ROC:          math.Min(math.Max(c.ROC, 0)/w.ROCCap*w.ROC, w.ROC),
		Technical:    clamp(ctx.TrendScore, 0, 100) / 100 * w.Technical,
		IVRankFit:    ivFit(c.Type, ctx.IVRank) / 15 * w.IVFit,
		DirectionFit: directionFit(c.Direction, ctx.Trend) / 10 * w.Direction,
		GammaFit:     gammaFit(c, ctx.Gamma) / 10 * w.Gamma,
		Liquidity:    liquidity(c) / 5 * w.Liquidity,
	}
	if ctx.Earnings.Within(w.EarningsWindowDays) {
		b.EarningsPenalty = -w.EarningsPenalty
	}

	sum := b.WinRate + b.ROC + b.Technical + b.IVRankFit + b.DirectionFit + b.GammaFit + b.Liquidity + b.EarningsPenalty
	b.Total = math.Round(clamp(sum, 0, 100))
	return b
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}

// ivFit is on a 15-point scale. Sellers want rich premium, buyers want it cheap.
func ivFit(t models.StrategyType, ivRank float64) float64 {
	if t.IsCredit() {
		switch {
		case ivRank >= 70:
			return 15
		case ivRank >= 50:
			return 12
		case ivRank >= 30:
			return 8
		default:
			return 4
		}
	}
	switch {
	case ivRank < 30:
		return 15
	case ivRank < 50:
		return 10
	default:
		return 5
	}
}

// directionFit is on a 10-point scale.
func directionFit(d models.Direction, trend models.Trend) float64 {
	switch {
	case d == models.DirectionNeutral:
		return 10
	case string(d) == string(trend):
		return 10
	case trend == models.TrendNeutral:
		return 7
	default:
		return 3
	}
}

// rangeBound reports whether a candidate profits from price staying put.
func rangeBound(c *models.StrategyCandidate) bool {
	return c.Type.IsCredit() || c.Direction == models.DirectionNeutral
}

// gammaFit is on a 10-point scale.
func gammaFit(c *models.StrategyCandidate, g models.GammaSummary) float64 {
	if !g.Available {
		return 5
	}
	favoured := models.GammaNegative
	if rangeBound(c) {
		favoured = models.GammaPositive
	}
	if g.Environment == favoured {
		return 10
	}
	return 6
}

// liquidity is on a 5-point scale, keyed on the thinnest leg.
func liquidity(c *models.StrategyCandidate) float64 {
	if !c.UsingRealPrices {
		return 3
	}
	oi := c.MinOpenInterest()
	switch {
	case oi >= 1000:
		return 5
	case oi >= 500:
		return 4
	case oi >= 100:
		return 3
	default:
		return 1
	}
}
