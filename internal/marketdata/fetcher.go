// Package marketdata assembles a market snapshot and raw option chains from a
// provider, fetching independent pieces concurrently.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/premium_scout/internal/analyzer"
	"github.com/eddiefleurent/premium_scout/internal/broker"
	"github.com/eddiefleurent/premium_scout/internal/cache"
	"github.com/eddiefleurent/premium_scout/internal/chain"
	"github.com/eddiefleurent/premium_scout/internal/metrics"
	"github.com/eddiefleurent/premium_scout/internal/models"
	"github.com/eddiefleurent/premium_scout/internal/retry"
	"github.com/eddiefleurent/premium_scout/internal/storage"
)

var (
	// ErrNoExpiration is returned when the provider lists no future expiration.
	ErrNoExpiration = errors.New("no option expiration available")
	// ErrNoVolatility is returned when neither the chain nor the history yields an IV.
	ErrNoVolatility = errors.New("no implied volatility available")
)

// Config tunes the fetcher.
type Config struct {
	// ChainTTL is how long a fetched chain is served from cache.
	ChainTTL time.Duration
	// FarLegOffsetDays places the far expiration at DTE plus this offset.
	FarLegOffsetDays int
	// MinStoredReadings is how many journaled IV readings a symbol needs before
	// they replace the provider's history for IV rank.
	MinStoredReadings int
}

// DefaultConfig caches chains for one minute and looks a week past the near leg.
var DefaultConfig = Config{
	ChainTTL:          time.Minute,
	FarLegOffsetDays:  7,
	MinStoredReadings: 30,
}

// Fetcher gathers everything one analysis needs.
type Fetcher struct {
	provider broker.MarketData
	retry    *retry.Client
	cache    cache.Cache
	metrics  *metrics.Registry
	ivStore  storage.Interface
	logger   logrus.FieldLogger
	now      func() time.Time
	cfg      Config
}

// NewFetcher creates a fetcher. provider is typically a CircuitBreakerProvider.
// A nil cache disables caching, a nil retry client uses the defaults and a nil
// logger discards output.
func NewFetcher(provider broker.MarketData, c cache.Cache, rc *retry.Client, logger logrus.FieldLogger, config ...Config) *Fetcher {
	if provider == nil {
		panic("marketdata.NewFetcher: provider must not be nil")
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	if rc == nil {
		rc = retry.NewClient(logger)
	}
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.FarLegOffsetDays <= 0 {
		cfg.FarLegOffsetDays = DefaultConfig.FarLegOffsetDays
	}
	if cfg.MinStoredReadings <= 0 {
		cfg.MinStoredReadings = DefaultConfig.MinStoredReadings
	}
	return &Fetcher{
		provider: provider,
		retry:    rc,
		cache:    c,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
	}
}

// WithMetrics records provider calls, cache lookups and fetch latency.
func (f *Fetcher) WithMetrics(m *metrics.Registry) *Fetcher {
	f.metrics = m
	return f
}

// WithIVStore journals each observed ATM IV and, once enough readings exist,
// ranks IV against them instead of the provider history.
func (f *Fetcher) WithIVStore(s storage.Interface) *Fetcher {
	f.ivStore = s
	return f
}

// WithClock replaces the wall clock that anchors expirations.
func (f *Fetcher) WithClock(now func() time.Time) *Fetcher {
	if now != nil {
		f.now = now
	}
	return f
}

func call[T any](ctx context.Context, f *Fetcher, op string, fn func(context.Context) (T, error)) (T, error) {
	v, err := retry.Do(ctx, f.retry, op, fn)
	f.metrics.ObserveProviderCall(op, err)
	return v, err
}

// Fetch builds the analysis request for symbol at the target DTE. Quote,
// expirations and IV history are required; technicals, gamma exposure and
// earnings degrade to neutral defaults when the provider cannot serve them.
func (f *Fetcher) Fetch(ctx context.Context, symbol string, dte int) (*analyzer.Request, error) {
	start := time.Now()
	defer func() { f.metrics.ObserveFetch(time.Since(start)) }()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	asOf := f.now()
	log := f.logger.WithFields(logrus.Fields{"symbol": symbol, "dte": dte})

	var (
		quote       *broker.Quote
		expirations []string
		ivHistory   []float64
		tech        = &broker.Technicals{Trend: models.TrendNeutral, Score: 50}
		gamma       models.GammaSummary
		earnings    models.EarningsInfo
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := call(gctx, f, "get_quote", func(ctx context.Context) (*broker.Quote, error) {
			return f.provider.GetQuote(ctx, symbol)
		})
		if err != nil {
			return fmt.Errorf("quote: %w", err)
		}
		if q == nil {
			return fmt.Errorf("quote: %w", broker.ErrNoQuote)
		}
		quote = q
		return nil
	})
	g.Go(func() error {
		exps, err := call(gctx, f, "get_expirations", func(ctx context.Context) ([]string, error) {
			return f.provider.GetExpirations(ctx, symbol)
		})
		if err != nil {
			return fmt.Errorf("expirations: %w", err)
		}
		expirations = exps
		return nil
	})
	g.Go(func() error {
		h, err := call(gctx, f, "get_iv_history", func(ctx context.Context) ([]float64, error) {
			return f.provider.GetIVHistory(ctx, symbol)
		})
		if err != nil {
			return fmt.Errorf("iv history: %w", err)
		}
		ivHistory = h
		return nil
	})
	g.Go(func() error {
		t, err := call(gctx, f, "get_technicals", func(ctx context.Context) (*broker.Technicals, error) {
			return f.provider.GetTechnicals(ctx, symbol)
		})
		if err != nil {
			log.WithError(err).Warn("Technicals unavailable, assuming neutral trend")
			return nil
		}
		if t != nil && t.Trend.Valid() {
			tech = t
		}
		return nil
	})
	g.Go(func() error {
		gs, err := call(gctx, f, "get_gamma_exposure", func(ctx context.Context) (*models.GammaSummary, error) {
			return f.provider.GetGammaExposure(ctx, symbol)
		})
		if err != nil {
			log.WithError(err).Warn("Gamma exposure unavailable")
			return nil
		}
		if gs != nil {
			gamma = *gs
		}
		return nil
	})
	g.Go(func() error {
		e, err := call(gctx, f, "get_earnings", func(ctx context.Context) (*models.EarningsInfo, error) {
			return f.provider.GetEarnings(ctx, symbol)
		})
		if err != nil {
			log.WithError(err).Warn("Earnings calendar unavailable")
			return nil
		}
		if e != nil {
			earnings = *e
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	price := quote.Price()
	if price <= 0 {
		return nil, fmt.Errorf("quote for %s has no usable price", symbol)
	}

	nearExp, err := NearestExpiration(asOf, expirations, dte)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	farExp, _ := NearestExpiration(asOf, expirations, dte+f.cfg.FarLegOffsetDays)

	var near, far []models.RawContract
	cg, cctx := errgroup.WithContext(ctx)
	cg.Go(func() error {
		c, err := f.chain(cctx, symbol, nearExp)
		if err != nil {
			return fmt.Errorf("chain %s: %w", nearExp, err)
		}
		near = c
		return nil
	})
	if farExp != "" && farExp != nearExp {
		cg.Go(func() error {
			c, err := f.chain(cctx, symbol, farExp)
			if err != nil {
				log.WithError(err).WithField("expiration", farExp).Warn("Far chain unavailable")
				return nil
			}
			far = c
			return nil
		})
	}
	if err := cg.Wait(); err != nil {
		return nil, err
	}

	iv := ATMImpliedVol(near, price)
	if iv <= 0 && len(ivHistory) > 0 {
		iv = ivHistory[len(ivHistory)-1]
	}
	if iv <= 0 || math.IsNaN(iv) {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoVolatility)
	}
	ivRank := broker.CalculateIVR(iv, f.rankHistory(log, symbol, asOf, iv, ivHistory))

	snap := models.MarketSnapshot{
		Symbol:     symbol,
		Price:      price,
		IV:         iv,
		DTE:        dte,
		IVRank:     ivRank,
		IVRankTier: models.TierForIVRank(ivRank),
		Trend:      tech.Trend,
		TrendScore: tech.Score,
		Gamma:      gamma,
		Earnings:   earnings,
	}
	log.WithFields(logrus.Fields{
		"price":      price,
		"iv":         iv,
		"iv_rank":    ivRank,
		"near":       nearExp,
		"far":        farExp,
		"near_count": len(near),
		"far_count":  len(far),
	}).Debug("Fetched market snapshot")

	return &analyzer.Request{
		Snapshot:     snap,
		Contracts:    near,
		FarContracts: far,
		AsOf:         asOf,
	}, nil
}

// rankHistory records today's IV and returns the journaled readings when there
// are enough of them, else the provider history.
func (f *Fetcher) rankHistory(log logrus.FieldLogger, symbol string, asOf time.Time, iv float64, provided []float64) []float64 {
	if f.ivStore == nil {
		return provided
	}
	if err := f.ivStore.StoreIVReading(&models.IVReading{Symbol: symbol, Date: asOf, IV: iv, Timestamp: asOf}); err != nil {
		log.WithError(err).Warn("Failed to journal IV reading")
	}
	readings, err := f.ivStore.GetIVReadings(symbol, asOf.AddDate(-1, 0, 0), asOf)
	if err != nil {
		log.WithError(err).Warn("Failed to read IV journal")
		return provided
	}
	if len(readings) < f.cfg.MinStoredReadings {
		return provided
	}
	out := make([]float64, len(readings))
	for i, r := range readings {
		out[i] = r.IV
	}
	log.WithField("readings", len(out)).Debug("Ranking IV against journal")
	return out
}

// chain returns the chain for one expiration, served from cache when fresh.
func (f *Fetcher) chain(ctx context.Context, symbol, expiration string) ([]models.RawContract, error) {
	key := cache.ChainKey(symbol, expiration)
	if f.cache != nil {
		b, ok, err := f.cache.Get(ctx, key)
		switch {
		case err != nil:
			f.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
		case ok:
			var out []models.RawContract
			if err := json.Unmarshal(b, &out); err == nil {
				f.metrics.ObserveCache(true)
				return out, nil
			}
			f.logger.WithField("key", key).Warn("Discarding undecodable cache entry")
		}
		f.metrics.ObserveCache(false)
	}

	contracts, err := call(ctx, f, "get_option_chain", func(ctx context.Context) ([]models.RawContract, error) {
		return f.provider.GetOptionChain(ctx, symbol, expiration)
	})
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		b, err := json.Marshal(contracts)
		if err == nil {
			err = f.cache.Set(ctx, key, b, f.cfg.ChainTTL)
		}
		if err != nil {
			f.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
		}
	}
	return contracts, nil
}

// NearestExpiration picks the unexpired expiration whose DTE is closest to
// target; ties go to the earlier date.
func NearestExpiration(asOf time.Time, expirations []string, target int) (string, error) {
	best := ""
	bestDiff := math.MaxInt
	bestDTE := math.MaxInt
	for _, exp := range expirations {
		d, err := chain.DaysUntil(asOf, exp)
		if err != nil || d < 0 {
			continue
		}
		diff := d - target
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff || (diff == bestDiff && d < bestDTE) {
			best, bestDiff, bestDTE = exp, diff, d
		}
	}
	if best == "" {
		return "", ErrNoExpiration
	}
	return best, nil
}

// ATMImpliedVol averages the quoted IV of the contracts at the strike nearest
// price. It returns 0 when no contract carries an IV.
func ATMImpliedVol(contracts []models.RawContract, price float64) float64 {
	bestStrike := math.NaN()
	bestDiff := math.Inf(1)
	for _, c := range contracts {
		if c.IV <= 0 || math.IsNaN(c.IV) {
			continue
		}
		if d := math.Abs(c.Strike - price); d < bestDiff {
			bestStrike, bestDiff = c.Strike, d
		}
	}
	if math.IsNaN(bestStrike) {
		return 0
	}
	sum, n := 0.0, 0
	for _, c := range contracts {
		if c.Strike == bestStrike && c.IV > 0 {
			sum += c.IV
			n++
		}
	}
	return sum / float64(n)
}
