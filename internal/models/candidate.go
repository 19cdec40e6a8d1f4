package models

// StrategyType tags the strategy variant a candidate was generated from.
type StrategyType string

const (
	StrategyIronCondor     StrategyType = "iron_condor"
	StrategyVerticalSpread StrategyType = "vertical_spread"
	StrategyButterfly      StrategyType = "butterfly"
	StrategyCashSecuredPut StrategyType = "cash_secured_put"
	StrategyCalendarSpread StrategyType = "calendar_spread"
	StrategyDiagonalSpread StrategyType = "diagonal_spread"
)

// AllStrategyTypes lists every strategy type in generation order.
var AllStrategyTypes = []StrategyType{
	StrategyIronCondor,
	StrategyVerticalSpread,
	StrategyButterfly,
	StrategyCashSecuredPut,
	StrategyCalendarSpread,
	StrategyDiagonalSpread,
}

// Valid returns true if the StrategyType is one of the defined constants
func (t StrategyType) Valid() bool {
	switch t {
	case StrategyIronCondor, StrategyVerticalSpread, StrategyButterfly,
		StrategyCashSecuredPut, StrategyCalendarSpread, StrategyDiagonalSpread:
		return true
	default:
		return false
	}
}

// IsCredit reports whether the strategy is opened for a net credit (a net seller).
func (t StrategyType) IsCredit() bool {
	switch t {
	case StrategyIronCondor, StrategyVerticalSpread, StrategyCashSecuredPut:
		return true
	default:
		return false
	}
}

// DisplayName returns the human-readable strategy name.
func (t StrategyType) DisplayName() string {
	switch t {
	case StrategyIronCondor:
		return "Iron Condor"
	case StrategyVerticalSpread:
		return "Vertical Spread"
	case StrategyButterfly:
		return "Butterfly"
	case StrategyCashSecuredPut:
		return "Cash-Secured Put"
	case StrategyCalendarSpread:
		return "Calendar Spread"
	case StrategyDiagonalSpread:
		return "Diagonal Spread"
	default:
		return string(t)
	}
}

// Direction is the directional bias of a strategy.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// LegRole names the role a strike plays inside a strategy.
type LegRole string

const (
	RoleShortPut  LegRole = "short_put"
	RoleLongPut   LegRole = "long_put"
	RoleShortCall LegRole = "short_call"
	RoleLongCall  LegRole = "long_call"
	RoleLowerWing LegRole = "lower_wing"
	RoleCenter    LegRole = "center"
	RoleUpperWing LegRole = "upper_wing"
	RoleNearShort LegRole = "near_short"
	RoleFarLong   LegRole = "far_long"
)

// LegAction is the side of the trade for one leg.
type LegAction string

const (
	ActionSell LegAction = "sell"
	ActionBuy  LegAction = "buy"
)

// Leg is a single option leg of a candidate.
type Leg struct {
	Role         LegRole    `json:"role"`
	Action       LegAction  `json:"action"`
	Type         OptionType `json:"type"`
	Strike       float64    `json:"strike"`
	Ratio        int        `json:"ratio"`
	FarDated     bool       `json:"far_dated,omitempty"`
	Mid          float64    `json:"mid,omitempty"`
	Volume       int64      `json:"volume,omitempty"`
	OpenInterest int64      `json:"open_interest,omitempty"`
}

// WinRateSource records which model produced a win-rate estimate.
type WinRateSource string

const (
	// WinRateProbability is the volatility-model probability between breakevens
	WinRateProbability WinRateSource = "probability"
	// WinRateBaseRate is the per-strategy fallback table
	WinRateBaseRate WinRateSource = "base_rate"
)

// ScoreBreakdown is the per-factor contribution to a candidate's score.
type ScoreBreakdown struct {
	WinRate         float64 `json:"win_rate"`
	ROC             float64 `json:"roc"`
	Technical       float64 `json:"technical"`
	IVRankFit       float64 `json:"iv_rank_fit"`
	DirectionFit    float64 `json:"direction_fit"`
	GammaFit        float64 `json:"gamma_fit"`
	Liquidity       float64 `json:"liquidity"`
	EarningsPenalty float64 `json:"earnings_penalty"`
	Total           float64 `json:"total"`
}

// StrategyCandidate is one recommended strategy. Generators create it, the scoring
// engine adds Score and Breakdown, the ranker adds Rank and Tier.
type StrategyCandidate struct {
	Name            string              `json:"name"`
	Type            StrategyType        `json:"type"`
	Direction       Direction           `json:"direction"`
	Strikes         map[LegRole]float64 `json:"strikes"`
	Legs            []Leg               `json:"legs"`
	Width           float64             `json:"width"`
	Contracts       int                 `json:"contracts"`
	NetCredit       float64             `json:"net_credit,omitempty"`
	NetDebit        float64             `json:"net_debit,omitempty"`
	MaxRisk         float64             `json:"max_risk"`
	MaxProfit       float64             `json:"max_profit"`
	WinRate         float64             `json:"win_rate"` // Percent, 0-100
	WinRateSource   WinRateSource       `json:"win_rate_source"`
	ROC             float64             `json:"roc"` // Percent
	UsingRealPrices bool                `json:"using_real_prices"`
	Rationale       []string            `json:"rationale"`
	Score           int                 `json:"score"`
	Breakdown       *ScoreBreakdown     `json:"breakdown,omitempty"`
	Rank            int                 `json:"rank,omitempty"`
	Tier            string              `json:"tier,omitempty"`
}

// NetPremium returns the credit for credit strategies and the debit otherwise.
func (c *StrategyCandidate) NetPremium() float64 {
	if c.Type.IsCredit() {
		return c.NetCredit
	}
	return c.NetDebit
}

// MinOpenInterest returns the smallest open interest across legs, or -1 when
// no leg carries quote data.
func (c *StrategyCandidate) MinOpenInterest() int64 {
	minOI := int64(-1)
	for _, leg := range c.Legs {
		if minOI < 0 || leg.OpenInterest < minOI {
			minOI = leg.OpenInterest
		}
	}
	return minOI
}
