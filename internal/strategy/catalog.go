// Package strategy generates short-dated option strategy candidates from a market
// snapshot, its volatility band and, when available, a quoted option chain.
package strategy

import (
	"errors"
	"math"

	"github.com/eddiefleurent/premium_scout/internal/models"
	"github.com/eddiefleurent/premium_scout/internal/volatility"
)

var (
	// ErrLegNotResolved means a required leg has no usable quote; the generator
	// falls back to estimated pricing.
	ErrLegNotResolved = errors.New("leg not resolved")
	// ErrDegenerateRange means width or risk collapsed to zero or below and the
	// return on capital is undefined; the candidate is excluded.
	ErrDegenerateRange = errors.New("degenerate range")
)

// Inputs is everything a generator reads. Chain and FarChain are optional.
type Inputs struct {
	Snapshot models.MarketSnapshot
	Band     volatility.Band
	Chain    *models.OptionsChain
	// FarChain prices the long leg of calendar and diagonal spreads.
	FarChain *models.OptionsChain
}

// LegSpec is a leg at its target strike before pricing.
type LegSpec struct {
	Role   models.LegRole
	Action models.LegAction
	Type   models.OptionType
	Strike float64
	Ratio  int
	Far    bool
}

// Plan is what a generator decides: which legs to trade and how to read their risk.
type Plan struct {
	Direction models.Direction
	Legs      []LegSpec
	// Width returns the spread width used for risk/reward; it is evaluated on the
	// final (possibly quote-snapped) leg strikes.
	Width func(legs []models.Leg) float64
	// Breakevens returns the price range in which the trade profits, given the
	// net premium per share.
	Breakevens func(legs []models.Leg, perShare float64) (lower, upper float64)
	Notes      []string
}

// Generator is one entry in the strategy registry.
type Generator struct {
	Type     models.StrategyType
	Eligible func(in Inputs, p Policy) (bool, string)
	Plan     func(in Inputs, p Policy) Plan
}

// Generate returns nil without error when the eligibility gate fails.
func (g Generator) Generate(in Inputs, p Policy) (*models.StrategyCandidate, error) {
	if ok, _ := g.Eligible(in, p); !ok {
		return nil, nil
	}
	return build(in, p, g.Type, g.Plan(in, p))
}

// Exclusion explains why a strategy type produced no candidate.
type Exclusion struct {
	Type   models.StrategyType `json:"type"`
	Reason string              `json:"reason"`
}

// Catalog is the registry of generators keyed by strategy type.
type Catalog struct {
	policy     Policy
	order      []models.StrategyType
	generators map[models.StrategyType]Generator
}

// NewCatalog creates a catalog with every built-in generator registered.
func NewCatalog(policy Policy) *Catalog {
	c := &Catalog{
		policy:     policy,
		generators: make(map[models.StrategyType]Generator),
	}
	for _, g := range builtinGenerators() {
		c.Register(g)
	}
	return c
}

// Register adds or replaces a generator. New types are appended to the run order.
func (c *Catalog) Register(g Generator) {
	if _, exists := c.generators[g.Type]; !exists {
		c.order = append(c.order, g.Type)
	}
	c.generators[g.Type] = g
}

// Policy returns the policy the catalog was built with.
func (c *Catalog) Policy() Policy {
	return c.policy
}

// Generate runs every registered generator in order.
func (c *Catalog) Generate(in Inputs) ([]*models.StrategyCandidate, []Exclusion) {
	var (
		candidates []*models.StrategyCandidate
		excluded   []Exclusion
	)
	for _, t := range c.order {
		g := c.generators[t]
		if ok, reason := g.Eligible(in, c.policy); !ok {
			excluded = append(excluded, Exclusion{Type: t, Reason: reason})
			continue
		}
		cand, err := build(in, c.policy, t, g.Plan(in, c.policy))
		if err != nil {
			excluded = append(excluded, Exclusion{Type: t, Reason: err.Error()})
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, excluded
}

func builtinGenerators() []Generator {
	return []Generator{
		ironCondor(),
		verticalSpread(),
		butterfly(),
		cashSecuredPut(),
		calendarSpread(),
		diagonalSpread(),
	}
}

// legStrike returns the strike of the first leg with the given role, or NaN.
func legStrike(legs []models.Leg, role models.LegRole) float64 {
	for _, l := range legs {
		if l.Role == role {
			return l.Strike
		}
	}
	return math.NaN()
}
