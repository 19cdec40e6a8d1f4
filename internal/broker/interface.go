package broker

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/premium_scout/internal/models"
)

// MarketData is the read-only market-data surface the scout consumes.
type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetExpirations(ctx context.Context, symbol string) ([]string, error)
	GetOptionChain(ctx context.Context, symbol, expiration string) ([]models.RawContract, error)
	// GetIVHistory returns daily implied (or proxy) volatility observations,
	// oldest first, as decimals.
	GetIVHistory(ctx context.Context, symbol string) ([]float64, error)
	GetTechnicals(ctx context.Context, symbol string) (*Technicals, error)
	GetGammaExposure(ctx context.Context, symbol string) (*models.GammaSummary, error)
	GetEarnings(ctx context.Context, symbol string) (*models.EarningsInfo, error)
}

// Quote is the underlying's last trade and top of book.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	PrevClose float64 `json:"prev_close"`
}

// Price returns the last trade, falling back to the bid/ask midpoint.
func (q *Quote) Price() float64 {
	if q.Last > 0 {
		return q.Last
	}
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return 0
}

// Technicals is the provider's trend read.
type Technicals struct {
	Trend models.Trend `json:"trend"`
	Score float64      `json:"score"`
}

// CalculateIVR calculates Implied Volatility Rank from historical data
func CalculateIVR(currentIV float64, historicalIVs []float64) float64 {
	if math.IsNaN(currentIV) || math.IsInf(currentIV, 0) {
		return 0
	}

	// Filter invalid historical values
	clean := make([]float64, 0, len(historicalIVs))
	for _, v := range historicalIVs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean = append(clean, v)
		}
	}

	if len(clean) == 0 {
		return 0
	}

	minIV := clean[0]
	maxIV := clean[0]

	for _, iv := range clean {
		if iv < minIV {
			minIV = iv
		}
		if iv > maxIV {
			maxIV = iv
		}
	}

	// IVR = (Current IV - period low) / (period high - period low) * 100
	if maxIV == minIV {
		return 0
	}
	// Rounded to 0.01 so a rank on a tier boundary is not split by float noise.
	r := math.Round((currentIV-minIV)/(maxIV-minIV)*10000) / 100
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}

// CircuitBreakerProvider wraps a MarketData provider with circuit breaker functionality
type CircuitBreakerProvider struct {
	provider MarketData
	breaker  *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerProvider implements MarketData at compile time.
var _ MarketData = (*CircuitBreakerProvider)(nil)

// exec is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	provider MarketData,
	fn func(MarketData) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(provider) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings trips at a 60% failure rate over at least five
// requests and stays open for 30 seconds.
var DefaultCircuitBreakerSettings = CircuitBreakerSettings{
	MaxRequests:  3,
	Interval:     60 * time.Second,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.6,
}

// NewCircuitBreakerProvider creates a new CircuitBreakerProvider with sensible defaults
func NewCircuitBreakerProvider(provider MarketData) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(provider, DefaultCircuitBreakerSettings, nil)
}

// NewCircuitBreakerProviderWithSettings creates a CircuitBreakerProvider with custom settings.
// State changes are logged to logger, or the standard logrus logger when nil.
func NewCircuitBreakerProviderWithSettings(provider MarketData, settings CircuitBreakerSettings, logger logrus.FieldLogger) *CircuitBreakerProvider {
	if provider == nil {
		panic("broker.NewCircuitBreakerProvider: provider must not be nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		// Caller cancellation says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &CircuitBreakerProvider{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// State returns the breaker's current state.
func (c *CircuitBreakerProvider) State() gobreaker.State {
	return c.breaker.State()
}

// GetQuote wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p MarketData) (*Quote, error) {
		return p.GetQuote(ctx, symbol)
	})
}

// GetExpirations wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p MarketData) ([]string, error) {
		return p.GetExpirations(ctx, symbol)
	})
}

// GetOptionChain wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetOptionChain(ctx context.Context, symbol, expiration string) ([]models.RawContract, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p MarketData) ([]models.RawContract, error) {
		return p.GetOptionChain(ctx, symbol, expiration)
	})
}

// GetIVHistory wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetIVHistory(ctx context.Context, symbol string) ([]float64, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p MarketData) ([]float64, error) {
		return p.GetIVHistory(ctx, symbol)
	})
}

// GetTechnicals wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetTechnicals(ctx context.Context, symbol string) (*Technicals, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p MarketData) (*Technicals, error) {
		return p.GetTechnicals(ctx, symbol)
	})
}

// GetGammaExposure wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetGammaExposure(ctx context.Context, symbol string) (*models.GammaSummary, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p MarketData) (*models.GammaSummary, error) {
		return p.GetGammaExposure(ctx, symbol)
	})
}

// GetEarnings wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetEarnings(ctx context.Context, symbol string) (*models.EarningsInfo, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p MarketData) (*models.EarningsInfo, error) {
		return p.GetEarnings(ctx, symbol)
	})
}
