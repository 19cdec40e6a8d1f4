// Package technicals derives trend and volatility signals from daily closes.
package technicals

import (
	"errors"
	"math"

	"github.com/eddiefleurent/premium_scout/internal/models"
)

// ErrInsufficientData is returned when a series is shorter than the indicator window.
var ErrInsufficientData = errors.New("insufficient price history")

const (
	fastWindow = 20
	slowWindow = 50
	rsiWindow  = 14

	tradingDaysPerYear = 252
)

// Signal is the technical read of an underlying.
type Signal struct {
	Trend models.Trend `json:"trend"`
	Score float64      `json:"score"` // 0-100, conviction in Trend
	RSI   float64      `json:"rsi"`
	Fast  float64      `json:"sma_fast"`
	Slow  float64      `json:"sma_slow"`
}

// SMA returns the simple moving average of the last n values.
func SMA(xs []float64, n int) float64 {
	if n <= 0 || len(xs) < n {
		return 0
	}
	sum := 0.0
	for _, x := range xs[len(xs)-n:] {
		sum += x
	}
	return sum / float64(n)
}

// RSI returns the n-period relative strength index of the last n changes. A
// series with no losses scores 100; too short a series scores a neutral 50.
func RSI(closes []float64, n int) float64 {
	if n <= 0 || len(closes) < n+1 {
		return 50
	}
	var gain, loss float64
	for i := len(closes) - n; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// HistoricalVolatility returns the rolling annualized standard deviation of daily
// log returns over window, one value per day once the window is full.
func HistoricalVolatility(closes []float64, window int) []float64 {
	if window < 2 || len(closes) < window+1 {
		return nil
	}
	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			rets = append(rets, 0)
			continue
		}
		rets = append(rets, math.Log(closes[i]/closes[i-1]))
	}

	out := make([]float64, 0, len(rets)-window+1)
	for end := window; end <= len(rets); end++ {
		w := rets[end-window : end]
		mean := 0.0
		for _, r := range w {
			mean += r
		}
		mean /= float64(window)
		v := 0.0
		for _, r := range w {
			v += (r - mean) * (r - mean)
		}
		v /= float64(window - 1)
		out = append(out, math.Sqrt(v*tradingDaysPerYear))
	}
	return out
}

// Analyze classifies the trend from the 20/50-day moving-average stack and scores
// conviction from the 14-day RSI: RSI itself when bullish, 100-RSI when bearish,
// and closeness to 50 when neutral.
func Analyze(closes []float64) (Signal, error) {
	if len(closes) < slowWindow {
		return Signal{}, ErrInsufficientData
	}
	last := closes[len(closes)-1]
	s := Signal{
		RSI:  RSI(closes, rsiWindow),
		Fast: SMA(closes, fastWindow),
		Slow: SMA(closes, slowWindow),
	}

	switch {
	case last > s.Fast && s.Fast > s.Slow:
		s.Trend = models.TrendBullish
		s.Score = s.RSI
	case last < s.Fast && s.Fast < s.Slow:
		s.Trend = models.TrendBearish
		s.Score = 100 - s.RSI
	default:
		s.Trend = models.TrendNeutral
		s.Score = 100 - 2*math.Abs(s.RSI-50)
	}
	s.Score = math.Round(math.Max(0, math.Min(100, s.Score))*10) / 10
	return s, nil
}
