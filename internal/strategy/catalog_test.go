package strategy

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/premium_scout/internal/chain"
	"github.com/eddiefleurent/premium_scout/internal/models"
	"github.com/eddiefleurent/premium_scout/internal/volatility"
)

func snapshot(price, iv float64, dte int, ivRank float64, trend models.Trend) models.MarketSnapshot {
	return models.MarketSnapshot{
		Symbol:     "SPY",
		Price:      price,
		IV:         iv,
		DTE:        dte,
		IVRank:     ivRank,
		IVRankTier: models.TierForIVRank(ivRank),
		Trend:      trend,
		TrendScore: 72,
		Gamma: models.GammaSummary{
			ZeroGammaLevel: 240,
			Environment:    models.GammaPositive,
			Available:      true,
		},
	}
}

func inputs(t *testing.T, snap models.MarketSnapshot) Inputs {
	t.Helper()
	band, err := volatility.ComputeBand(snap.Price, snap.IV, snap.DTE)
	require.NoError(t, err)
	return Inputs{Snapshot: snap, Band: band}
}

func byType(cands []*models.StrategyCandidate) map[models.StrategyType]*models.StrategyCandidate {
	out := make(map[models.StrategyType]*models.StrategyCandidate, len(cands))
	for _, c := range cands {
		out[c.Type] = c
	}
	return out
}

func excludedTypes(ex []Exclusion) map[models.StrategyType]string {
	out := make(map[models.StrategyType]string, len(ex))
	for _, e := range ex {
		out[e.Type] = e.Reason
	}
	return out
}

func scenarioA() models.MarketSnapshot {
	return snapshot(250.50, 0.35, 7, 65, models.TrendBullish)
}

func TestCatalog_ScenarioA(t *testing.T) {
	in := inputs(t, scenarioA())
	cands, ex := NewCatalog(DefaultPolicy()).Generate(in)
	got := byType(cands)
	skipped := excludedTypes(ex)

	require.Contains(t, got, models.StrategyIronCondor)
	require.Contains(t, got, models.StrategyVerticalSpread)
	require.Contains(t, got, models.StrategyCashSecuredPut)
	assert.Contains(t, skipped, models.StrategyButterfly, "IV rank 65 is above the butterfly gate")
	assert.Len(t, cands, 5)

	ic := got[models.StrategyIronCondor]
	assert.Equal(t, 235.0, ic.Strikes[models.RoleShortPut])
	assert.Equal(t, 225.0, ic.Strikes[models.RoleLongPut])
	assert.Equal(t, 265.0, ic.Strikes[models.RoleShortCall])
	assert.Equal(t, 275.0, ic.Strikes[models.RoleLongCall])
	assert.Equal(t, 10.0, ic.Width)
	assert.Equal(t, 2, ic.Contracts)
	assert.InDelta(t, 291.40, ic.NetCredit, 0.01)
	assert.InDelta(t, 1708.60, ic.MaxRisk, 0.01)
	assert.Equal(t, 17.0, ic.ROC)
	assert.Equal(t, models.WinRateProbability, ic.WinRateSource)
	assert.InDelta(t, 82.4, ic.WinRate, 1.0)
	assert.False(t, ic.UsingRealPrices)

	vs := got[models.StrategyVerticalSpread]
	assert.Equal(t, models.DirectionBullish, vs.Direction)
	assert.Equal(t, 235.0, vs.Strikes[models.RoleShortPut])
	assert.Equal(t, 225.0, vs.Strikes[models.RoleLongPut])
	assert.NotContains(t, vs.Strikes, models.RoleShortCall)

	csp := got[models.StrategyCashSecuredPut]
	assert.Equal(t, 240.0, csp.Strikes[models.RoleShortPut])
	assert.Equal(t, 240.0, csp.Width)
}

func TestCatalog_ScenarioB_LowIVRank(t *testing.T) {
	in := inputs(t, snapshot(250.50, 0.35, 7, 20, models.TrendNeutral))
	cands, ex := NewCatalog(DefaultPolicy()).Generate(in)
	got := byType(cands)
	skipped := excludedTypes(ex)

	assert.Contains(t, skipped, models.StrategyIronCondor)
	assert.Contains(t, skipped[models.StrategyIronCondor], "below iron condor minimum 45")
	require.Contains(t, got, models.StrategyButterfly)
	require.Contains(t, got, models.StrategyVerticalSpread)

	bf := got[models.StrategyButterfly]
	assert.Equal(t, 250.0, bf.Strikes[models.RoleCenter])
	assert.Equal(t, 240.0, bf.Strikes[models.RoleLowerWing])
	assert.Equal(t, 260.0, bf.Strikes[models.RoleUpperWing])
	assert.Greater(t, bf.NetDebit, 0.0)
	assert.InDelta(t, bf.NetDebit, bf.MaxRisk, 1e-9)
	for _, l := range bf.Legs {
		if l.Role == models.RoleCenter {
			assert.Equal(t, 2, l.Ratio)
			assert.Equal(t, models.ActionSell, l.Action)
		}
	}

	assert.Contains(t, skipped, models.StrategyDiagonalSpread, "neutral trend has no diagonal bias")
}

func TestCatalog_ScenarioC_ShortDTE(t *testing.T) {
	in := inputs(t, snapshot(250.50, 0.35, 3, 65, models.TrendBullish))
	cands, ex := NewCatalog(DefaultPolicy()).Generate(in)
	got := byType(cands)
	skipped := excludedTypes(ex)

	assert.NotContains(t, got, models.StrategyCalendarSpread)
	assert.NotContains(t, got, models.StrategyDiagonalSpread)
	assert.Contains(t, skipped[models.StrategyCalendarSpread], "DTE 3")
	assert.Contains(t, skipped[models.StrategyDiagonalSpread], "DTE 3")
	assert.Contains(t, got, models.StrategyIronCondor)
}

func TestCatalog_ScenarioD_EmptyChainFallsBack(t *testing.T) {
	asOf := time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC)
	raw := []models.RawContract{
		{OptionType: "put", Strike: 235, Bid: 1, Ask: 1.2, ExpirationDate: "2026-12-18"},
		{OptionType: "call", Strike: 265, Bid: 1, Ask: 1.2, ExpirationDate: "2026-12-18"},
	}
	parsed := chain.NewMatcher(asOf).Parse(raw, 7)
	require.True(t, parsed.Empty())

	in := inputs(t, scenarioA())
	in.Chain = &parsed
	cands, _ := NewCatalog(DefaultPolicy()).Generate(in)
	require.NotEmpty(t, cands)
	for _, c := range cands {
		assert.False(t, c.UsingRealPrices, c.Name)
		assert.True(t, hasLine(c.Rationale, "Estimated pricing"), c.Name)
	}
}

func TestCatalog_DiagonalBearish(t *testing.T) {
	in := inputs(t, snapshot(250.50, 0.35, 14, 40, models.TrendBearish))
	cands, ex := NewCatalog(DefaultPolicy()).Generate(in)
	got := byType(cands)

	assert.Contains(t, excludedTypes(ex), models.StrategyCashSecuredPut)

	d := got[models.StrategyDiagonalSpread]
	require.NotNil(t, d)
	assert.Equal(t, models.DirectionBearish, d.Direction)
	assert.Equal(t, 250.0, d.Strikes[models.RoleFarLong])
	assert.Equal(t, 240.0, d.Strikes[models.RoleNearShort])
	for _, l := range d.Legs {
		assert.Equal(t, models.OptionTypePut, l.Type)
	}

	vs := got[models.StrategyVerticalSpread]
	require.NotNil(t, vs)
	assert.Equal(t, models.DirectionBearish, vs.Direction)
	assert.Greater(t, vs.Strikes[models.RoleLongCall], vs.Strikes[models.RoleShortCall])
}

func TestCatalog_EstimatedModeSizing(t *testing.T) {
	p := DefaultPolicy()
	catalog := NewCatalog(p)
	for _, price := range []float64{12, 48.7, 150, 250.5, 612} {
		for _, iv := range []float64{0.08, 0.2, 0.45} {
			for _, dte := range []int{1, 7, 14} {
				in := inputs(t, snapshot(price, iv, dte, 50, models.TrendBullish))
				cands, _ := catalog.Generate(in)
				for _, c := range cands {
					assert.GreaterOrEqual(t, c.Contracts, 1)
					assert.GreaterOrEqual(t, c.NetPremium(), p.MinNetPremium, "%s price=%v iv=%v dte=%d", c.Type, price, iv, dte)
					assert.Greater(t, c.MaxRisk, 0.0)
					assert.Greater(t, c.MaxProfit, 0.0)
					assert.GreaterOrEqual(t, c.WinRate, 0.0)
					assert.LessOrEqual(t, c.WinRate, 100.0)
				}
			}
		}
	}
}

func TestCatalog_DegenerateCandidatesExcluded(t *testing.T) {
	in := inputs(t, snapshot(250, 5, 60, 65, models.TrendBullish))
	cands, ex := NewCatalog(DefaultPolicy()).Generate(in)
	skipped := excludedTypes(ex)

	for _, typ := range []models.StrategyType{
		models.StrategyIronCondor,
		models.StrategyVerticalSpread,
		models.StrategyCalendarSpread,
		models.StrategyDiagonalSpread,
	} {
		assert.Contains(t, skipped[typ], ErrDegenerateRange.Error(), typ)
	}
	got := byType(cands)
	assert.Contains(t, got, models.StrategyCashSecuredPut)
}

func quote(strike, mid float64, oi int64) models.OptionQuote {
	return models.OptionQuote{Strike: strike, Mid: mid, Bid: mid - 0.05, Ask: mid + 0.05, OpenInterest: oi, Volume: 10}
}

func condorChain() *models.OptionsChain {
	return &models.OptionsChain{
		Puts:  []models.OptionQuote{quote(225, 0.50, 800), quote(230, 0.80, 1200), quote(235, 1.20, 1500)},
		Calls: []models.OptionQuote{quote(265, 1.10, 2000), quote(270, 0.70, 1100), quote(275, 0.40, 900)},
	}
}

func TestIronCondor_RealPrices(t *testing.T) {
	in := inputs(t, scenarioA())
	in.Chain = condorChain()

	cand, err := ironCondor().Generate(in, DefaultPolicy())
	require.NoError(t, err)
	require.NotNil(t, cand)

	assert.True(t, cand.UsingRealPrices)
	assert.Equal(t, 2, cand.Contracts)
	assert.InDelta(t, 280.0, cand.NetCredit, 0.01)
	assert.InDelta(t, 1720.0, cand.MaxRisk, 0.01)
	assert.Equal(t, 16.0, cand.ROC)
	assert.Equal(t, int64(800), cand.MinOpenInterest())
	assert.True(t, hasLine(cand.Rationale, "Priced from quoted mids"))
}

func TestIronCondor_FallbackWhenLegUnpriced(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *models.OptionsChain)
		reason string
	}{
		{
			name:   "zero mid",
			mutate: func(c *models.OptionsChain) { c.Puts[0].Mid = 0 },
			reason: "no quoted mid",
		},
		{
			name:   "empty call side",
			mutate: func(c *models.OptionsChain) { c.Calls = nil },
			reason: chain.ErrNotFound.Error(),
		},
		{
			name: "wrong sign",
			mutate: func(c *models.OptionsChain) {
				c.Puts[0].Mid = 3
				c.Calls[2].Mid = 3
			},
			reason: "wrong sign",
		},
		{
			name: "strikes collapse",
			mutate: func(c *models.OptionsChain) {
				c.Puts = []models.OptionQuote{quote(235, 1.2, 100)}
			},
			reason: "collapse",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := inputs(t, scenarioA())
			in.Chain = condorChain()
			tt.mutate(in.Chain)

			cand, err := ironCondor().Generate(in, DefaultPolicy())
			require.NoError(t, err)
			require.NotNil(t, cand)
			assert.False(t, cand.UsingRealPrices)
			assert.True(t, hasLine(cand.Rationale, tt.reason), "rationale %v", cand.Rationale)
			assert.InDelta(t, 291.40, cand.NetCredit, 0.01)
		})
	}
}

func TestCalendar_UsesFarChain(t *testing.T) {
	in := inputs(t, snapshot(250.50, 0.35, 7, 40, models.TrendNeutral))
	in.Chain = &models.OptionsChain{Calls: []models.OptionQuote{quote(250, 4.00, 3000)}}

	cand, err := calendarSpread().Generate(in, DefaultPolicy())
	require.NoError(t, err)
	assert.False(t, cand.UsingRealPrices, "far leg needs the far chain")

	in.FarChain = &models.OptionsChain{Calls: []models.OptionQuote{quote(250, 5.20, 2500)}}
	cand, err = calendarSpread().Generate(in, DefaultPolicy())
	require.NoError(t, err)
	assert.True(t, cand.UsingRealPrices)
	assert.Equal(t, 2, cand.Contracts) // 1.20 debit → 120 per contract
	assert.InDelta(t, 240.0, cand.NetDebit, 0.01)
	assert.InDelta(t, 1760.0, cand.MaxProfit, 0.01)
	assert.Equal(t, 733.0, cand.ROC)
}

func TestCalendar_MismatchedQuotedStrikesFallBack(t *testing.T) {
	in := inputs(t, snapshot(250.50, 0.35, 7, 40, models.TrendNeutral))
	in.Chain = &models.OptionsChain{Calls: []models.OptionQuote{quote(250, 4.00, 3000)}}
	in.FarChain = &models.OptionsChain{Calls: []models.OptionQuote{quote(290, 1.60, 2500)}}

	cand, err := calendarSpread().Generate(in, DefaultPolicy())
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.False(t, cand.UsingRealPrices)
	assert.Equal(t, legStrike(cand.Legs, models.RoleNearShort), legStrike(cand.Legs, models.RoleFarLong))
	assert.Equal(t, 250.0, legStrike(cand.Legs, models.RoleFarLong))
}

func TestGenerator_GateReturnsNil(t *testing.T) {
	in := inputs(t, snapshot(250.50, 0.35, 7, 10, models.TrendBullish))
	cand, err := ironCondor().Generate(in, DefaultPolicy())
	assert.NoError(t, err)
	assert.Nil(t, cand)
}

func TestCatalog_RegisterReplaces(t *testing.T) {
	c := NewCatalog(DefaultPolicy())
	c.Register(Generator{
		Type: models.StrategyIronCondor,
		Eligible: func(Inputs, Policy) (bool, string) {
			return false, "disabled"
		},
		Plan: func(Inputs, Policy) Plan { return Plan{} },
	})
	_, ex := c.Generate(inputs(t, scenarioA()))
	require.NotEmpty(t, ex)
	assert.Equal(t, models.StrategyIronCondor, ex[0].Type)
	assert.Equal(t, "disabled", ex[0].Reason)
}

func TestEstimateWinRate_BaseRateFallback(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name string
		typ  models.StrategyType
		tier models.IVRankTier
		want float64
	}{
		{"seller high tier", models.StrategyIronCondor, models.IVRankHigh, 73},
		{"seller low tier", models.StrategyCashSecuredPut, models.IVRankLow, 70},
		{"seller medium tier", models.StrategyVerticalSpread, models.IVRankMedium, 70},
		{"buyer high tier", models.StrategyButterfly, models.IVRankHigh, 30},
		{"buyer low tier", models.StrategyCalendarSpread, models.IVRankLow, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := models.MarketSnapshot{Price: 250, IV: 0, DTE: 7, IVRankTier: tt.tier}
			rate, src := EstimateWinRate(snap, tt.typ, 240, 260, p)
			assert.Equal(t, models.WinRateBaseRate, src)
			assert.Equal(t, tt.want, rate)
		})
	}

	snap := scenarioA()
	_, src := EstimateWinRate(snap, models.StrategyIronCondor, 260, 240, p)
	assert.Equal(t, models.WinRateBaseRate, src, "inverted breakevens")

	rate, src := EstimateWinRate(snap, models.StrategyVerticalSpread, math.Inf(-1), math.Inf(1), p)
	assert.Equal(t, models.WinRateProbability, src)
	assert.InDelta(t, 100, rate, 0.1)
}

func TestEstimatePremiumAndSizing(t *testing.T) {
	assert.InDelta(t, 1.457, EstimatePremium(0.35, 250.5, 7, 0.12, 0.05), 0.001)
	assert.Equal(t, 0.05, EstimatePremium(0.01, 10, 1, 0.05, 0.05))

	assert.Equal(t, 2, SizeContracts(150, 145.70))
	assert.Equal(t, 1, SizeContracts(150, 150))
	assert.Equal(t, 1, SizeContracts(150, 900))
	assert.Equal(t, 30, SizeContracts(150, 5))
	assert.Equal(t, 1, SizeContracts(150, 0))
}

func hasLine(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
