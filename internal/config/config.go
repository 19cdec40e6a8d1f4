// Package config provides configuration management for the premium scout.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/premium_scout/internal/broker"
	"github.com/eddiefleurent/premium_scout/internal/mock"
	"github.com/eddiefleurent/premium_scout/internal/models"
	"github.com/eddiefleurent/premium_scout/internal/retry"
	"github.com/eddiefleurent/premium_scout/internal/scoring"
	"github.com/eddiefleurent/premium_scout/internal/strategy"
)

// Provider kinds
const (
	ProviderMock    = "mock"
	ProviderTradier = "tradier"
)

// Cache backends
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Provider    ProviderConfig    `yaml:"provider"`
	Cache       CacheConfig       `yaml:"cache"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Scoring     scoring.Weights   `yaml:"scoring"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug | info | warn | error
	LogFormat string `yaml:"log_format"` // text | json
}

// ProviderConfig selects and tunes the market-data provider.
type ProviderConfig struct {
	Kind    string        `yaml:"kind"` // mock | tradier
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Sandbox bool          `yaml:"sandbox"`
	Timeout string        `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
	// Mock is the market scenario served when Kind is mock.
	Mock mock.Scenario `yaml:"mock"`
}

// RetryConfig mirrors retry.Config with string durations.
type RetryConfig struct {
	MaxRetries     int    `yaml:"max_retries"`
	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
	Timeout        string `yaml:"timeout"`
}

// BreakerConfig mirrors broker.CircuitBreakerSettings with string durations.
type BreakerConfig struct {
	MaxRequests  uint32  `yaml:"max_requests"`
	Interval     string  `yaml:"interval"`
	Timeout      string  `yaml:"timeout"`
	MinRequests  uint32  `yaml:"min_requests"`
	FailureRatio float64 `yaml:"failure_ratio"`
}

// CacheConfig defines where fetched option chains are cached.
type CacheConfig struct {
	Backend  string `yaml:"backend"` // none | memory | redis
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	TTL      string `yaml:"ttl"`
}

// ServerConfig defines the HTTP API listener.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// StorageConfig defines the IV reading journal.
type StorageConfig struct {
	// IVHistoryPath is the JSON journal file; empty disables journaling.
	IVHistoryPath string `yaml:"iv_history_path"`
	// MinReadings is how many journaled readings replace the provider history.
	MinReadings int `yaml:"min_readings"`
}

// TierConfig is one row of a price-tiered table; max_price 0 is open-ended.
type TierConfig struct {
	MaxPrice float64 `yaml:"max_price"`
	Value    float64 `yaml:"value"`
}

// StrategyConfig defines request defaults and the catalog policy.
type StrategyConfig struct {
	DefaultDTE int `yaml:"default_dte"`
	Limit      int `yaml:"limit"`
	WindowDays int `yaml:"window_days"`

	MinNetPremium         float64            `yaml:"min_net_premium"`
	MinPremiumPerShare    float64            `yaml:"min_premium_per_share"`
	StrikeGrid            []TierConfig       `yaml:"strike_grid"`
	WidthTable            []TierConfig       `yaml:"width_table"`
	PremiumFactors        map[string]float64 `yaml:"premium_factors"`
	BaseWinRates          map[string]float64 `yaml:"base_win_rates"`
	TierWinRateAdjustment float64            `yaml:"tier_win_rate_adjustment"`
	IronCondorMinIVRank   float64            `yaml:"iron_condor_min_iv_rank"`
	ButterflyMaxIVRank    float64            `yaml:"butterfly_max_iv_rank"`
	MinTimeSpreadDTE      int                `yaml:"min_time_spread_dte"`
	FarLegOffsetDays      int                `yaml:"far_leg_offset_days"`
	CSPStrikePct          float64            `yaml:"csp_strike_pct"`
}

func tiersFrom(in []strategy.PriceTier) []TierConfig {
	out := make([]TierConfig, len(in))
	for i, t := range in {
		out[i] = TierConfig{MaxPrice: t.MaxPrice, Value: t.Value}
	}
	return out
}

func byName(in map[models.StrategyType]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

// Default returns a fully populated configuration using the mock provider.
func Default() *Config {
	p := strategy.DefaultPolicy()
	br := broker.DefaultCircuitBreakerSettings
	rc := retry.DefaultConfig
	return &Config{
		Environment: EnvironmentConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Provider: ProviderConfig{
			Kind:    ProviderMock,
			Sandbox: true,
			Timeout: "10s",
			Retry: RetryConfig{
				MaxRetries:     rc.MaxRetries,
				InitialBackoff: rc.InitialBackoff.String(),
				MaxBackoff:     rc.MaxBackoff.String(),
				Timeout:        rc.Timeout.String(),
			},
			Breaker: BreakerConfig{
				MaxRequests:  br.MaxRequests,
				Interval:     br.Interval.String(),
				Timeout:      br.Timeout.String(),
				MinRequests:  br.MinRequests,
				FailureRatio: br.FailureRatio,
			},
			Mock: mock.DefaultScenario(),
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			Addr:    "localhost:6379",
			Prefix:  "scout:",
			TTL:     "1m",
		},
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  "10s",
			WriteTimeout: "60s",
		},
		Storage: StorageConfig{
			MinReadings: 30,
		},
		Strategy: StrategyConfig{
			DefaultDTE:            7,
			Limit:                 3,
			WindowDays:            3,
			MinNetPremium:         p.MinNetPremium,
			MinPremiumPerShare:    p.MinPremiumPerShare,
			StrikeGrid:            tiersFrom(p.StrikeGrid),
			WidthTable:            tiersFrom(p.WidthTable),
			PremiumFactors:        byName(p.PremiumFactors),
			BaseWinRates:          byName(p.BaseWinRates),
			TierWinRateAdjustment: p.TierWinRateAdjustment,
			IronCondorMinIVRank:   p.IronCondorMinIVRank,
			ButterflyMaxIVRank:    p.ButterflyMaxIVRank,
			MinTimeSpreadDTE:      p.MinTimeSpreadDTE,
			FarLegOffsetDays:      p.FarLegOffsetDays,
			CSPStrikePct:          p.CSPStrikePct,
		},
		Scoring: scoring.DefaultWeights(),
	}
}

// Load reads the YAML file at configPath over the defaults. An empty path
// returns the defaults.
func Load(configPath string) (*Config, error) {
	config := Default()
	if configPath == "" {
		return config, nil
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func checkDuration(path, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s invalid: %w", path, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be > 0", path)
	}
	return nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	// Environment validation
	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}
	switch c.Environment.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("environment.log_format must be 'text' or 'json'")
	}

	// Provider validation
	switch c.Provider.Kind {
	case ProviderMock:
		if c.Provider.Mock.Price <= 0 {
			return fmt.Errorf("provider.mock.price must be > 0")
		}
		if c.Provider.Mock.IV <= 0 {
			return fmt.Errorf("provider.mock.iv must be > 0")
		}
		if c.Provider.Mock.IVRank < 0 || c.Provider.Mock.IVRank > 100 {
			return fmt.Errorf("provider.mock.iv_rank must be between 0 and 100")
		}
		if c.Provider.Mock.Trend != "" && !c.Provider.Mock.Trend.Valid() {
			return fmt.Errorf("provider.mock.trend %q is not a trend", c.Provider.Mock.Trend)
		}
	case ProviderTradier:
		if c.Provider.APIKey == "" {
			return fmt.Errorf("provider.api_key is required for tradier")
		}
	default:
		return fmt.Errorf("provider.kind must be 'mock' or 'tradier'")
	}
	if err := checkDuration("provider.timeout", c.Provider.Timeout); err != nil {
		return err
	}
	if c.Provider.Retry.MaxRetries < 0 {
		return fmt.Errorf("provider.retry.max_retries must be >= 0")
	}
	for path, v := range map[string]string{
		"provider.retry.initial_backoff": c.Provider.Retry.InitialBackoff,
		"provider.retry.max_backoff":     c.Provider.Retry.MaxBackoff,
		"provider.retry.timeout":         c.Provider.Retry.Timeout,
		"provider.breaker.interval":      c.Provider.Breaker.Interval,
		"provider.breaker.timeout":       c.Provider.Breaker.Timeout,
	} {
		if err := checkDuration(path, v); err != nil {
			return err
		}
	}
	if c.Provider.Breaker.MaxRequests == 0 {
		return fmt.Errorf("provider.breaker.max_requests must be > 0")
	}
	if c.Provider.Breaker.FailureRatio <= 0 || c.Provider.Breaker.FailureRatio > 1 {
		return fmt.Errorf("provider.breaker.failure_ratio must be in (0,1]")
	}

	// Cache validation
	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required for redis")
		}
	default:
		return fmt.Errorf("cache.backend must be 'none', 'memory' or 'redis'")
	}
	if c.Cache.Backend != CacheNone {
		if err := checkDuration("cache.ttl", c.Cache.TTL); err != nil {
			return err
		}
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if err := checkDuration("server.read_timeout", c.Server.ReadTimeout); err != nil {
		return err
	}
	if err := checkDuration("server.write_timeout", c.Server.WriteTimeout); err != nil {
		return err
	}

	// Storage validation
	if c.Storage.IVHistoryPath != "" && c.Storage.MinReadings < 2 {
		return fmt.Errorf("storage.min_readings must be >= 2")
	}

	// Strategy validation
	if c.Strategy.DefaultDTE <= 0 {
		return fmt.Errorf("strategy.default_dte must be > 0")
	}
	if c.Strategy.Limit <= 0 {
		return fmt.Errorf("strategy.limit must be > 0")
	}
	if c.Strategy.WindowDays < 0 {
		return fmt.Errorf("strategy.window_days must be >= 0")
	}
	for _, m := range []struct {
		path string
		vals map[string]float64
	}{
		{"strategy.premium_factors", c.Strategy.PremiumFactors},
		{"strategy.base_win_rates", c.Strategy.BaseWinRates},
	} {
		for k := range m.vals {
			if !models.StrategyType(k).Valid() {
				return fmt.Errorf("%s.%s is not a strategy type", m.path, k)
			}
		}
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("strategy.%w", err)
	}

	// Scoring validation
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring.%w", err)
	}

	return nil
}

// Policy converts the strategy section into a catalog policy.
func (c *Config) Policy() strategy.Policy {
	s := c.Strategy
	p := strategy.Policy{
		MinNetPremium:         s.MinNetPremium,
		MinPremiumPerShare:    s.MinPremiumPerShare,
		PremiumFactors:        make(map[models.StrategyType]float64, len(s.PremiumFactors)),
		BaseWinRates:          make(map[models.StrategyType]float64, len(s.BaseWinRates)),
		TierWinRateAdjustment: s.TierWinRateAdjustment,
		IronCondorMinIVRank:   s.IronCondorMinIVRank,
		ButterflyMaxIVRank:    s.ButterflyMaxIVRank,
		MinTimeSpreadDTE:      s.MinTimeSpreadDTE,
		FarLegOffsetDays:      s.FarLegOffsetDays,
		CSPStrikePct:          s.CSPStrikePct,
	}
	for _, t := range s.StrikeGrid {
		p.StrikeGrid = append(p.StrikeGrid, strategy.PriceTier{MaxPrice: t.MaxPrice, Value: t.Value})
	}
	for _, t := range s.WidthTable {
		p.WidthTable = append(p.WidthTable, strategy.PriceTier{MaxPrice: t.MaxPrice, Value: t.Value})
	}
	for k, v := range s.PremiumFactors {
		p.PremiumFactors[models.StrategyType(k)] = v
	}
	for k, v := range s.BaseWinRates {
		p.BaseWinRates[models.StrategyType(k)] = v
	}
	return p
}

// mustDuration parses a duration already checked by Validate, falling back to def.
func mustDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// RetryConfig returns the provider retry settings.
func (c *Config) RetryConfig() retry.Config {
	r := c.Provider.Retry
	return retry.Config{
		MaxRetries:     r.MaxRetries,
		InitialBackoff: mustDuration(r.InitialBackoff, retry.DefaultConfig.InitialBackoff),
		MaxBackoff:     mustDuration(r.MaxBackoff, retry.DefaultConfig.MaxBackoff),
		Timeout:        mustDuration(r.Timeout, retry.DefaultConfig.Timeout),
	}
}

// BreakerSettings returns the provider circuit breaker settings.
func (c *Config) BreakerSettings() broker.CircuitBreakerSettings {
	b := c.Provider.Breaker
	def := broker.DefaultCircuitBreakerSettings
	return broker.CircuitBreakerSettings{
		MaxRequests:  b.MaxRequests,
		Interval:     mustDuration(b.Interval, def.Interval),
		Timeout:      mustDuration(b.Timeout, def.Timeout),
		MinRequests:  b.MinRequests,
		FailureRatio: b.FailureRatio,
	}
}

// ProviderTimeout returns the per-request HTTP timeout.
func (c *Config) ProviderTimeout() time.Duration {
	return mustDuration(c.Provider.Timeout, 10*time.Second)
}

// CacheTTL returns how long fetched chains stay cached.
func (c *Config) CacheTTL() time.Duration {
	return mustDuration(c.Cache.TTL, time.Minute)
}

// ReadTimeout returns the HTTP server read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return mustDuration(c.Server.ReadTimeout, 10*time.Second)
}

// WriteTimeout returns the HTTP server write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return mustDuration(c.Server.WriteTimeout, 60*time.Second)
}
