// Package models provides the data structures shared by the recommendation pipeline.
package models

// Trend is the technical trend category of the underlying.
type Trend string

const (
	// TrendBullish indicates an up-trending underlying
	TrendBullish Trend = "bullish"
	// TrendBearish indicates a down-trending underlying
	TrendBearish Trend = "bearish"
	// TrendNeutral indicates a range-bound underlying
	TrendNeutral Trend = "neutral"
)

// Valid returns true if the Trend is one of the defined constants
func (t Trend) Valid() bool {
	switch t {
	case TrendBullish, TrendBearish, TrendNeutral:
		return true
	default:
		return false
	}
}

// IVRankTier buckets the IV rank into coarse regimes.
type IVRankTier string

const (
	// IVRankLow is IV rank below 30
	IVRankLow IVRankTier = "low"
	// IVRankMedium is IV rank in [30,50)
	IVRankMedium IVRankTier = "medium"
	// IVRankHigh is IV rank of 50 and above
	IVRankHigh IVRankTier = "high"
)

// TierForIVRank maps an IV rank percentage onto its tier.
func TierForIVRank(ivRank float64) IVRankTier {
	switch {
	case ivRank < 30:
		return IVRankLow
	case ivRank < 50:
		return IVRankMedium
	default:
		return IVRankHigh
	}
}

// GammaEnvironment is the sign of aggregate dealer gamma.
type GammaEnvironment string

const (
	GammaPositive GammaEnvironment = "positive"
	GammaNegative GammaEnvironment = "negative"
	GammaNeutral  GammaEnvironment = "neutral"
)

// GammaSummary is the gamma-exposure digest for the underlying.
type GammaSummary struct {
	ZeroGammaLevel float64          `json:"zero_gamma_level"`
	Environment    GammaEnvironment `json:"environment"`
	Available      bool             `json:"available"`
}

// EarningsInfo describes the next scheduled earnings event, if any.
type EarningsInfo struct {
	Upcoming  bool `json:"upcoming"`
	DaysUntil int  `json:"days_until"`
}

// Within reports whether the next earnings event falls within the given number of days.
func (e EarningsInfo) Within(days int) bool {
	return e.Upcoming && e.DaysUntil >= 0 && e.DaysUntil <= days
}

// MarketSnapshot is the immutable market input of a single analysis.
type MarketSnapshot struct {
	Symbol     string       `json:"symbol"`
	Price      float64      `json:"price"`
	IV         float64      `json:"iv"` // Implied volatility as decimal (0.35 = 35%)
	DTE        int          `json:"dte"`
	IVRank     float64      `json:"iv_rank"`
	IVRankTier IVRankTier   `json:"iv_rank_tier"`
	Trend      Trend        `json:"trend"`
	TrendScore float64      `json:"trend_score"` // 0-100
	Gamma      GammaSummary `json:"gamma"`
	Earnings   EarningsInfo `json:"earnings"`
}

// ScoringContext carries the snapshot fields the scoring engine reads.
type ScoringContext struct {
	IVRank     float64
	IVRankTier IVRankTier
	Trend      Trend
	TrendScore float64
	Gamma      GammaSummary
	Earnings   EarningsInfo
}

// ScoringContext returns the scoring view of the snapshot.
func (s MarketSnapshot) ScoringContext() ScoringContext {
	return ScoringContext{
		IVRank:     s.IVRank,
		IVRankTier: s.IVRankTier,
		Trend:      s.Trend,
		TrendScore: s.TrendScore,
		Gamma:      s.Gamma,
		Earnings:   s.Earnings,
	}
}
