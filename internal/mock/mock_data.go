// Package mock provides a synthetic market-data provider for offline runs and tests.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/eddiefleurent/premium_scout/internal/broker"
	"github.com/eddiefleurent/premium_scout/internal/chain"
	"github.com/eddiefleurent/premium_scout/internal/exposure"
	"github.com/eddiefleurent/premium_scout/internal/models"
	"github.com/eddiefleurent/premium_scout/internal/util"
	"github.com/eddiefleurent/premium_scout/internal/volatility"
)

const (
	historyDays    = 252
	expirationsOut = 8
	strikeSpanPct  = 0.30
	baseOpenInt    = 5000
	oiTilt         = 1.5
)

// Scenario pins the market state the provider reports.
type Scenario struct {
	Price      float64                 `yaml:"price"`
	IV         float64                 `yaml:"iv"`      // decimal, e.g. 0.18
	IVRank     float64                 `yaml:"iv_rank"` // 0-100
	Trend      models.Trend            `yaml:"trend"`
	TrendScore float64                 `yaml:"trend_score"`
	Gamma      models.GammaEnvironment `yaml:"gamma"`
	// EarningsDays is the number of days to the next earnings event; zero means
	// none scheduled.
	EarningsDays int `yaml:"earnings_days"`
	// Jitter makes the quote drift randomly between calls.
	Jitter bool `yaml:"jitter"`
}

// DefaultScenario is a calm, range-bound index.
func DefaultScenario() Scenario {
	return Scenario{
		Price:      450,
		IV:         0.18,
		IVRank:     55,
		Trend:      models.TrendNeutral,
		TrendScore: 60,
		Gamma:      models.GammaPositive,
	}
}

// DataProvider serves a deterministic Black-Scholes chain around the scenario.
type DataProvider struct {
	mu       sync.Mutex
	scenario Scenario
	price    float64
	now      func() time.Time
}

var _ broker.MarketData = (*DataProvider)(nil)

// NewDataProvider creates a provider for the scenario. A zero price, IV, trend or
// gamma environment falls back to the DefaultScenario value.
func NewDataProvider(s Scenario) *DataProvider {
	d := DefaultScenario()
	if s.Price <= 0 {
		s.Price = d.Price
	}
	if s.IV <= 0 {
		s.IV = d.IV
	}
	if s.Trend == "" {
		s.Trend = d.Trend
	}
	if s.Gamma == "" {
		s.Gamma = d.Gamma
	}
	s.IVRank = math.Max(0, math.Min(100, s.IVRank))
	return &DataProvider{scenario: s, price: s.Price, now: time.Now}
}

// WithClock replaces the wall clock used for expirations and DTE.
func (m *DataProvider) WithClock(now func() time.Time) *DataProvider {
	if now != nil {
		m.now = now
	}
	return m
}

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

func (m *DataProvider) spot() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.price
}

// GetQuote returns the scenario price with a two cent market.
func (m *DataProvider) GetQuote(ctx context.Context, symbol string) (*broker.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.scenario.Jitter {
		m.price = math.Max(0.01, m.price+(secureFloat64()-0.5)*2)
	}
	price := m.price
	m.mu.Unlock()

	spread := 0.02
	return &broker.Quote{
		Symbol:    symbol,
		Last:      util.RoundCents(price),
		Bid:       util.RoundCents(price - spread/2),
		Ask:       util.RoundCents(price + spread/2),
		PrevClose: m.scenario.Price,
	}, nil
}

// GetExpirations lists the next eight Friday expirations after today.
func (m *DataProvider) GetExpirations(ctx context.Context, _ string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	today := m.now()
	ahead := (int(time.Friday) - int(today.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	first := today.AddDate(0, 0, ahead)
	out := make([]string, 0, expirationsOut)
	for i := 0; i < expirationsOut; i++ {
		out = append(out, first.AddDate(0, 0, 7*i).Format("2006-01-02"))
	}
	return out, nil
}

func strikeInterval(price float64) float64 {
	if price < 25 {
		return 0.5
	}
	return 1
}

// openInterest decays with distance from spot and leans toward calls or puts
// so the chain's dealer gamma matches the scenario.
func (m *DataProvider) openInterest(optType models.OptionType, strike, spot float64) int64 {
	oi := baseOpenInt * math.Exp(-10*math.Abs(math.Log(strike/spot)))
	switch {
	case m.scenario.Gamma == models.GammaPositive && optType == models.OptionTypeCall,
		m.scenario.Gamma == models.GammaNegative && optType == models.OptionTypePut:
		oi *= oiTilt
	}
	return int64(math.Round(oi)) + 10
}

func quoteSides(price float64) (bid, ask float64) {
	mid := math.Max(util.RoundCents(price), 0.01)
	half := math.Max(0.01, util.RoundCents(mid*0.02))
	return math.Max(0, util.RoundCents(mid-half)), util.RoundCents(mid + half)
}

// GetOptionChain prices every strike within ±30% of spot with Black-Scholes at
// the scenario IV and zero rates.
func (m *DataProvider) GetOptionChain(ctx context.Context, symbol, expiration string) ([]models.RawContract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	expDate, err := time.Parse("2006-01-02", expiration)
	if err != nil {
		return nil, fmt.Errorf("invalid expiration format: %w", err)
	}
	dte, err := chain.DaysUntil(m.now(), expiration)
	if err != nil {
		return nil, err
	}
	if dte < 1 {
		dte = 1 // Clamp to one day to keep time value positive
	}

	spot := m.spot()
	vol := m.scenario.IV
	t := float64(dte) / 365
	sqrtT := math.Sqrt(t)

	step := strikeInterval(spot)
	first := int(math.Ceil(spot*(1-strikeSpanPct)/step - 1e-9))
	last := int(math.Floor(spot*(1+strikeSpanPct)/step + 1e-9))

	var out []models.RawContract
	for i := first; i <= last; i++ {
		strike := float64(i) * step
		d1 := (math.Log(spot/strike) + vol*vol*t/2) / (vol * sqrtT)
		d2 := d1 - vol*sqrtT
		pdf := math.Exp(-d1*d1/2) / math.Sqrt(2*math.Pi)

		callPrice := spot*volatility.NormalCDF(d1) - strike*volatility.NormalCDF(d2)
		putPrice := strike*volatility.NormalCDF(-d2) - spot*volatility.NormalCDF(-d1)
		gamma := pdf / (spot * vol * sqrtT)
		theta := -spot * pdf * vol / (2 * sqrtT) / 365
		vega := spot * pdf * sqrtT / 100

		for _, leg := range []struct {
			typ   models.OptionType
			code  string
			price float64
			delta float64
		}{
			{models.OptionTypePut, "P", putPrice, volatility.NormalCDF(d1) - 1},
			{models.OptionTypeCall, "C", callPrice, volatility.NormalCDF(d1)},
		} {
			bid, ask := quoteSides(leg.price)
			out = append(out, models.RawContract{
				Symbol:         fmt.Sprintf("%s%s%s%08d", symbol, expDate.Format("060102"), leg.code, int(math.Round(strike*1000))),
				OptionType:     string(leg.typ),
				ExpirationDate: expiration,
				Strike:         strike,
				Bid:            bid,
				Ask:            ask,
				Last:           util.RoundCents((bid + ask) / 2),
				IV:             vol,
				Greeks: &models.Greeks{
					Delta: leg.delta,
					Gamma: gamma,
					Theta: theta,
					Vega:  vega,
				},
				Volume:       m.openInterest(leg.typ, strike, spot) / 10,
				OpenInterest: m.openInterest(leg.typ, strike, spot),
			})
		}
	}
	return out, nil
}

// GetIVHistory returns a year of daily IV whose range places the scenario IV at
// the scenario IV rank.
func (m *DataProvider) GetIVHistory(ctx context.Context, _ string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iv := m.scenario.IV
	width := 0.8 * iv
	lo := iv - m.scenario.IVRank/100*width
	hi := lo + width

	out := make([]float64, historyDays)
	for i := range out {
		out[i] = lo + width*(0.5+0.5*math.Sin(2*math.Pi*float64(i)/63))
	}
	// Pin both extremes so the rank is exact.
	out[historyDays/4] = hi
	out[historyDays/2] = lo
	return out, nil
}

// GetTechnicals reports the scenario trend.
func (m *DataProvider) GetTechnicals(ctx context.Context, _ string) (*broker.Technicals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &broker.Technicals{Trend: m.scenario.Trend, Score: m.scenario.TrendScore}, nil
}

// GetGammaExposure estimates dealer gamma from the front expiration's chain.
func (m *DataProvider) GetGammaExposure(ctx context.Context, symbol string) (*models.GammaSummary, error) {
	exps, err := m.GetExpirations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	contracts, err := m.GetOptionChain(ctx, symbol, exps[0])
	if err != nil {
		return nil, err
	}
	s := exposure.FromChain(m.spot(), contracts)
	return &s, nil
}

// GetEarnings reports the scenario's next earnings event.
func (m *DataProvider) GetEarnings(ctx context.Context, _ string) (*models.EarningsInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.scenario.EarningsDays <= 0 {
		return &models.EarningsInfo{}, nil
	}
	return &models.EarningsInfo{Upcoming: true, DaysUntil: m.scenario.EarningsDays}, nil
}
