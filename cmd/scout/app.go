package main

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/premium_scout/internal/analyzer"
	"github.com/eddiefleurent/premium_scout/internal/broker"
	"github.com/eddiefleurent/premium_scout/internal/cache"
	"github.com/eddiefleurent/premium_scout/internal/config"
	"github.com/eddiefleurent/premium_scout/internal/marketdata"
	"github.com/eddiefleurent/premium_scout/internal/metrics"
	"github.com/eddiefleurent/premium_scout/internal/mock"
	"github.com/eddiefleurent/premium_scout/internal/retry"
	"github.com/eddiefleurent/premium_scout/internal/scoring"
	"github.com/eddiefleurent/premium_scout/internal/storage"
	"github.com/eddiefleurent/premium_scout/internal/strategy"
)

// app holds the wired pipeline shared by every command.
type app struct {
	fetcher  *marketdata.Fetcher
	analyzer *analyzer.Analyzer
	metrics  *metrics.Registry
	cache    cache.Cache
}

// Close releases the cache connection, if any.
func (a *app) Close() error {
	if c, ok := a.cache.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func buildApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) *app {
	m := metrics.NewRegistry()

	provider := newProvider(cfg, logger)
	protected := broker.NewCircuitBreakerProviderWithSettings(provider, cfg.BreakerSettings(), logger)

	c := newCache(ctx, cfg, logger)
	fetcher := marketdata.NewFetcher(
		protected,
		c,
		retry.NewClient(logger, cfg.RetryConfig()),
		logger,
		marketdata.Config{
			ChainTTL:          cfg.CacheTTL(),
			FarLegOffsetDays:  cfg.Strategy.FarLegOffsetDays,
			MinStoredReadings: cfg.Storage.MinReadings,
		},
	).WithMetrics(m)

	if path := cfg.Storage.IVHistoryPath; path != "" {
		store, err := storage.NewStorage(path)
		if err != nil {
			logger.WithError(err).WithField("path", path).Warn("IV journal unavailable")
		} else {
			fetcher.WithIVStore(store)
		}
	}

	weights := cfg.Scoring
	a := analyzer.New(
		strategy.NewCatalog(cfg.Policy()),
		scoring.NewEngine(&weights),
		logger,
		analyzer.Config{
			Limit:      cfg.Strategy.Limit,
			WindowDays: cfg.Strategy.WindowDays,
		},
	)

	return &app{fetcher: fetcher, analyzer: a, metrics: m, cache: c}
}

func newProvider(cfg *config.Config, logger *logrus.Logger) broker.MarketData {
	if cfg.Provider.Kind == config.ProviderTradier {
		logger.WithField("sandbox", cfg.Provider.Sandbox).Info("Using Tradier market data")
		return broker.NewTradierProvider(cfg.Provider.APIKey, cfg.Provider.Sandbox, cfg.Provider.BaseURL, logger).
			WithTimeout(cfg.ProviderTimeout())
	}
	logger.WithFields(logrus.Fields{
		"price":   cfg.Provider.Mock.Price,
		"iv_rank": cfg.Provider.Mock.IVRank,
		"trend":   cfg.Provider.Mock.Trend,
	}).Info("Using mock market data")
	return mock.NewDataProvider(cfg.Provider.Mock)
}

// newCache returns nil when caching is disabled. An unreachable Redis falls
// back to the in-process cache.
func newCache(ctx context.Context, cfg *config.Config, logger *logrus.Logger) cache.Cache {
	switch cfg.Cache.Backend {
	case config.CacheNone:
		return nil
	case config.CacheRedis:
		r := cache.NewRedis(cache.RedisOptions{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			Prefix:   cfg.Cache.Prefix,
			TTL:      cfg.CacheTTL(),
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := r.Ping(pingCtx); err != nil {
			logger.WithError(err).WithField("addr", cfg.Cache.Addr).Warn("Redis unreachable, using in-memory cache")
			if cerr := r.Close(); cerr != nil {
				logger.WithError(cerr).Debug("Closing unreachable redis client")
			}
			return cache.NewMemory(cfg.CacheTTL())
		}
		return r
	default:
		return cache.NewMemory(cfg.CacheTTL())
	}
}
