package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/premium_scout/internal/broker"
	"github.com/eddiefleurent/premium_scout/internal/cache"
	"github.com/eddiefleurent/premium_scout/internal/config"
	"github.com/eddiefleurent/premium_scout/internal/mock"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestAnalyze_JSON(t *testing.T) {
	stdout, _, err := execute(t, "analyze", "--symbol", "spy", "--dte", "7", "--format", "json")
	require.NoError(t, err)

	var body struct {
		Snapshot struct {
			Symbol string  `json:"symbol"`
			Price  float64 `json:"price"`
			DTE    int     `json:"dte"`
		} `json:"snapshot"`
		Result struct {
			Candidates []struct {
				Rank  int `json:"rank"`
				Score int `json:"score"`
			} `json:"candidates"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &body))
	assert.Equal(t, "SPY", body.Snapshot.Symbol)
	assert.Equal(t, 450.0, body.Snapshot.Price)
	assert.Equal(t, 7, body.Snapshot.DTE)
	require.NotEmpty(t, body.Result.Candidates)
	assert.Equal(t, 1, body.Result.Candidates[0].Rank)
}

func TestAnalyze_Text(t *testing.T) {
	stdout, _, err := execute(t, "analyze", "--symbol", "SPY")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "SPY @ 450.00"), stdout)
	assert.Contains(t, stdout, "RANK")
	assert.Contains(t, stdout, "Expected move (7 DTE)")
}

func TestAnalyze_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment:
  log_format: json
provider:
  mock:
    price: 80
    iv: 0.40
    iv_rank: 85
    trend: bearish
    trend_score: 30
    gamma: negative
cache:
  backend: none
strategy:
  default_dte: 14
  limit: 2
`), 0o600))

	stdout, _, err := execute(t, "--config", path, "analyze", "--symbol", "XYZ", "--format", "json")
	require.NoError(t, err)

	var body struct {
		Snapshot struct {
			Price float64 `json:"price"`
			DTE   int     `json:"dte"`
			Trend string  `json:"trend"`
		} `json:"snapshot"`
		Result struct {
			Candidates []json.RawMessage `json:"candidates"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &body))
	assert.Equal(t, 80.0, body.Snapshot.Price)
	assert.Equal(t, 14, body.Snapshot.DTE)
	assert.Equal(t, "bearish", body.Snapshot.Trend)
	assert.LessOrEqual(t, len(body.Result.Candidates), 2)
}

func TestAnalyze_WritesIVJournal(t *testing.T) {
	dir := t.TempDir()
	journal := filepath.Join(dir, "data", "iv.json")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  iv_history_path: "+journal+"\n"), 0o600))

	_, _, err := execute(t, "--config", path, "analyze", "--symbol", "SPY", "--format", "json")
	require.NoError(t, err)

	raw, err := os.ReadFile(journal)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"SPY"`)
}

func TestAnalyze_Errors(t *testing.T) {
	_, _, err := execute(t, "analyze")
	assert.ErrorContains(t, err, `required flag(s) "symbol" not set`)

	_, _, err = execute(t, "analyze", "--symbol", "SPY", "--format", "xml")
	assert.ErrorContains(t, err, `unknown format "xml"`)

	_, _, err = execute(t, "--config", "missing.yaml", "analyze", "--symbol", "SPY")
	assert.ErrorContains(t, err, "reading config file")
}

func TestProbe(t *testing.T) {
	stdout, _, err := execute(t, "probe", "--symbol", "qqq")
	require.NoError(t, err)
	for _, check := range []string{"quote", "expirations", "option chain", "iv history", "technicals", "gamma exposure", "earnings"} {
		assert.Contains(t, stdout, check)
	}
	assert.Contains(t, stdout, "price 450.00")
	assert.NotContains(t, stdout, "FAILED")
}

func TestProbe_ReportsFailures(t *testing.T) {
	p := &failingQuote{MarketData: mock.NewDataProvider(mock.DefaultScenario())}
	results := probe(context.Background(), p, "SPY")
	require.Len(t, results, 7)
	assert.False(t, results[0].OK)
	assert.Equal(t, "no quote", results[0].Detail)
	for _, r := range results[1:] {
		assert.True(t, r.OK, r.Op)
	}
}

type failingQuote struct {
	broker.MarketData
}

func (f *failingQuote) GetQuote(context.Context, string) (*broker.Quote, error) {
	return nil, errors.New("no quote")
}

func TestNewLogger(t *testing.T) {
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetErr(&buf)

	logger := newLogger(config.EnvironmentConfig{LogLevel: "debug", LogFormat: "json"}, cmd)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	logger.Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	logger = newLogger(config.EnvironmentConfig{LogLevel: "nope", LogFormat: "text"}, cmd)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNewProviderAndCache(t *testing.T) {
	logger := logrus.New()
	cfg := config.Default()

	_, isMock := newProvider(cfg, logger).(*mock.DataProvider)
	assert.True(t, isMock)

	cfg.Provider.Kind = config.ProviderTradier
	cfg.Provider.APIKey = "k"
	_, isTradier := newProvider(cfg, logger).(*broker.TradierProvider)
	assert.True(t, isTradier)

	ctx := context.Background()
	cfg.Cache.Backend = config.CacheNone
	assert.Nil(t, newCache(ctx, cfg, logger))

	cfg.Cache.Backend = config.CacheMemory
	_, isMemory := newCache(ctx, cfg, logger).(*cache.Memory)
	assert.True(t, isMemory)

	cfg.Cache.Backend = config.CacheRedis
	cfg.Cache.Addr = "127.0.0.1:1"
	_, fellBack := newCache(ctx, cfg, logger).(*cache.Memory)
	assert.True(t, fellBack, "unreachable redis falls back to memory")
}

func TestApp_Close(t *testing.T) {
	logger := logrus.New()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Cache.Backend = config.CacheNone
	assert.NoError(t, buildApp(ctx, cfg, logger).Close())

	cfg.Cache.Backend = config.CacheMemory
	assert.NoError(t, buildApp(ctx, cfg, logger).Close())

	redisCache := cache.NewRedis(cache.RedisOptions{Addr: "127.0.0.1:1", TTL: time.Minute})
	a := &app{cache: redisCache}
	require.NoError(t, a.Close())
	assert.ErrorIs(t, redisCache.Ping(ctx), redis.ErrClosed)
}
