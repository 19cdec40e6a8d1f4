package marketdata

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/premium_scout/internal/analyzer"
	"github.com/eddiefleurent/premium_scout/internal/broker"
	"github.com/eddiefleurent/premium_scout/internal/cache"
	"github.com/eddiefleurent/premium_scout/internal/metrics"
	"github.com/eddiefleurent/premium_scout/internal/mock"
	"github.com/eddiefleurent/premium_scout/internal/models"
	"github.com/eddiefleurent/premium_scout/internal/retry"
	"github.com/eddiefleurent/premium_scout/internal/storage"
)

var asOf = time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC)

// flakyProvider wraps a provider, counting chain calls and failing selected
// operations.
type flakyProvider struct {
	broker.MarketData
	chainCalls atomic.Int32
	fail       map[string]error
}

func (p *flakyProvider) err(op string) error { return p.fail[op] }

func (p *flakyProvider) GetQuote(ctx context.Context, s string) (*broker.Quote, error) {
	if err := p.err("quote"); err != nil {
		return nil, err
	}
	return p.MarketData.GetQuote(ctx, s)
}

func (p *flakyProvider) GetOptionChain(ctx context.Context, s, e string) ([]models.RawContract, error) {
	p.chainCalls.Add(1)
	if err := p.err("chain"); err != nil {
		return nil, err
	}
	return p.MarketData.GetOptionChain(ctx, s, e)
}

func (p *flakyProvider) GetTechnicals(ctx context.Context, s string) (*broker.Technicals, error) {
	if err := p.err("technicals"); err != nil {
		return nil, err
	}
	return p.MarketData.GetTechnicals(ctx, s)
}

func (p *flakyProvider) GetGammaExposure(ctx context.Context, s string) (*models.GammaSummary, error) {
	if err := p.err("gamma"); err != nil {
		return nil, err
	}
	return p.MarketData.GetGammaExposure(ctx, s)
}

func (p *flakyProvider) GetEarnings(ctx context.Context, s string) (*models.EarningsInfo, error) {
	if err := p.err("earnings"); err != nil {
		return nil, err
	}
	return p.MarketData.GetEarnings(ctx, s)
}

func newFlaky(s mock.Scenario, fail map[string]error) *flakyProvider {
	base := mock.NewDataProvider(s).WithClock(func() time.Time { return asOf })
	return &flakyProvider{MarketData: base, fail: fail}
}

func fastRetry() *retry.Client {
	return retry.NewClient(nil, retry.Config{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Timeout:        time.Second,
	})
}

func newFetcher(p broker.MarketData, c cache.Cache) *Fetcher {
	return NewFetcher(p, c, fastRetry(), nil).WithClock(func() time.Time { return asOf })
}

func TestFetch_BuildsSnapshot(t *testing.T) {
	f := newFetcher(newFlaky(mock.DefaultScenario(), nil), nil)

	req, err := f.Fetch(context.Background(), " spy ", 7)
	require.NoError(t, err)

	snap := req.Snapshot
	assert.Equal(t, "SPY", snap.Symbol)
	assert.Equal(t, 450.0, snap.Price)
	assert.Equal(t, 7, snap.DTE)
	assert.InDelta(t, 0.18, snap.IV, 1e-12)
	assert.InDelta(t, 55, snap.IVRank, 1e-6)
	assert.Equal(t, models.IVRankHigh, snap.IVRankTier)
	assert.Equal(t, models.TrendNeutral, snap.Trend)
	assert.Equal(t, 60.0, snap.TrendScore)
	assert.True(t, snap.Gamma.Available)
	assert.Equal(t, models.GammaPositive, snap.Gamma.Environment)
	assert.False(t, snap.Earnings.Upcoming)

	require.NotEmpty(t, req.Contracts)
	require.NotEmpty(t, req.FarContracts)
	assert.Equal(t, "2026-10-23", req.Contracts[0].ExpirationDate)
	assert.Equal(t, "2026-10-30", req.FarContracts[0].ExpirationDate)
	assert.Equal(t, asOf, req.AsOf)
}

func TestFetch_FeedsAnalyzer(t *testing.T) {
	f := newFetcher(newFlaky(mock.DefaultScenario(), nil), nil)
	req, err := f.Fetch(context.Background(), "SPY", 7)
	require.NoError(t, err)

	res, err := analyzer.NewDefault(nil).Analyze(*req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Candidates)
	assert.LessOrEqual(t, len(res.Candidates), 3)

	priced := false
	for _, c := range res.Candidates {
		priced = priced || c.UsingRealPrices
		assert.GreaterOrEqual(t, c.Score, 0)
		assert.LessOrEqual(t, c.Score, 100)
	}
	assert.True(t, priced, "mock chain should price at least one candidate")
}

func TestFetch_CachesChains(t *testing.T) {
	p := newFlaky(mock.DefaultScenario(), nil)
	m := metrics.NewRegistry()
	f := newFetcher(p, cache.NewMemory(time.Minute)).WithMetrics(m)
	ctx := context.Background()

	first, err := f.Fetch(ctx, "SPY", 7)
	require.NoError(t, err)
	assert.Equal(t, int32(2), p.chainCalls.Load())

	second, err := f.Fetch(ctx, "SPY", 7)
	require.NoError(t, err)
	assert.Equal(t, int32(2), p.chainCalls.Load(), "second fetch is served from cache")
	assert.Equal(t, first.Contracts, second.Contracts)
}

func TestFetch_IVJournal(t *testing.T) {
	t.Run("too few readings uses provider history", func(t *testing.T) {
		store := storage.NewMockStorage()
		f := newFetcher(newFlaky(mock.DefaultScenario(), nil), nil).WithIVStore(store)

		req, err := f.Fetch(context.Background(), "SPY", 7)
		require.NoError(t, err)
		assert.InDelta(t, 55, req.Snapshot.IVRank, 1e-6)
		assert.Equal(t, 1, store.StoreCalls())

		latest, err := store.GetLatestIVReading("SPY")
		require.NoError(t, err)
		assert.InDelta(t, 0.18, latest.IV, 1e-12)
		assert.True(t, latest.Date.Equal(models.TradingDay(asOf)))
	})

	t.Run("enough readings rank against the journal", func(t *testing.T) {
		store := storage.NewMockStorage()
		// 29 prior days spanning 0.10 to 0.26; today's 0.18 sits at the midpoint
		for i := 1; i <= 29; i++ {
			iv := 0.10 + 0.16*float64(i-1)/28
			require.NoError(t, store.StoreIVReading(&models.IVReading{
				Symbol: "SPY", Date: asOf.AddDate(0, 0, -i), IV: iv,
			}))
		}
		f := newFetcher(newFlaky(mock.DefaultScenario(), nil), nil).WithIVStore(store)

		req, err := f.Fetch(context.Background(), "SPY", 7)
		require.NoError(t, err)
		assert.InDelta(t, 50, req.Snapshot.IVRank, 1e-6)
		assert.Equal(t, models.IVRankHigh, req.Snapshot.IVRankTier)
	})

	t.Run("journal failures are soft", func(t *testing.T) {
		store := storage.NewMockStorage()
		store.SetStoreError(errors.New("disk full"))
		f := newFetcher(newFlaky(mock.DefaultScenario(), nil), nil).WithIVStore(store)

		req, err := f.Fetch(context.Background(), "SPY", 7)
		require.NoError(t, err)
		assert.InDelta(t, 55, req.Snapshot.IVRank, 1e-6)
	})
}

type emptyQuoteProvider struct {
	broker.MarketData
}

func (emptyQuoteProvider) GetQuote(context.Context, string) (*broker.Quote, error) {
	return nil, nil
}

func TestFetch_EmptyQuote(t *testing.T) {
	p := emptyQuoteProvider{MarketData: newFlaky(mock.DefaultScenario(), nil)}
	f := newFetcher(broker.NewCircuitBreakerProvider(p), nil)

	req, err := f.Fetch(context.Background(), "SPY", 7)
	assert.Nil(t, req)
	assert.ErrorIs(t, err, broker.ErrNoQuote)
}

func TestFetch_SoftFailuresDegrade(t *testing.T) {
	boom := errors.New("feed unavailable")
	p := newFlaky(mock.DefaultScenario(), map[string]error{
		"technicals": boom,
		"gamma":      boom,
		"earnings":   boom,
	})
	req, err := newFetcher(p, nil).Fetch(context.Background(), "SPY", 7)
	require.NoError(t, err)

	assert.Equal(t, models.TrendNeutral, req.Snapshot.Trend)
	assert.Equal(t, 50.0, req.Snapshot.TrendScore)
	assert.False(t, req.Snapshot.Gamma.Available)
	assert.False(t, req.Snapshot.Earnings.Upcoming)
}

func TestFetch_HardFailures(t *testing.T) {
	tests := []struct {
		name    string
		fail    map[string]error
		wantMsg string
	}{
		{"quote", map[string]error{"quote": errors.New("unknown symbol")}, "quote: get_quote failed: unknown symbol"},
		{"near chain", map[string]error{"chain": errors.New("bad expiration")}, "chain 2026-10-23"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newFetcher(newFlaky(mock.DefaultScenario(), tt.fail), nil).Fetch(context.Background(), "SPY", 7)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestFetch_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newFetcher(newFlaky(mock.DefaultScenario(), nil), nil).Fetch(ctx, "SPY", 7)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNearestExpiration(t *testing.T) {
	exps := []string{"2026-10-09", "2026-10-23", "2026-10-30", "2026-11-20", "bogus"}
	tests := []struct {
		target int
		want   string
	}{
		{0, "2026-10-23"},
		{7, "2026-10-23"},
		{10, "2026-10-23"},
		{11, "2026-10-30"},
		{30, "2026-11-20"},
	}
	for _, tt := range tests {
		got, err := NearestExpiration(asOf, exps, tt.target)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "target %d", tt.target)
	}

	_, err := NearestExpiration(asOf, []string{"2026-10-09"}, 7)
	assert.ErrorIs(t, err, ErrNoExpiration)
}

func TestATMImpliedVol(t *testing.T) {
	contracts := []models.RawContract{
		{OptionType: "put", Strike: 95, IV: 0.30},
		{OptionType: "put", Strike: 100, IV: 0.22},
		{OptionType: "call", Strike: 100, IV: 0.20},
		{OptionType: "call", Strike: 101, IV: 0},
		{OptionType: "call", Strike: 105, IV: 0.18},
	}
	assert.InDelta(t, 0.21, ATMImpliedVol(contracts, 100.8), 1e-12)
	assert.Equal(t, 0.0, ATMImpliedVol(nil, 100))
}
