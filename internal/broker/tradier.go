// Package broker provides market-data clients for the premium scout.
// It includes the Tradier API client and the circuit breaker wrapper.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/premium_scout/internal/exposure"
	"github.com/eddiefleurent/premium_scout/internal/models"
	"github.com/eddiefleurent/premium_scout/internal/technicals"
)

const (
	// ivHistoryLookback is the calendar window of daily closes used for the
	// volatility proxy and the trend read.
	ivHistoryLookback = 400 * 24 * time.Hour
	// hvWindow is the realized-volatility window standing in for IV history.
	hvWindow = 20
)

// ErrNoQuote is returned when the quotes endpoint has nothing for a symbol.
var ErrNoQuote = errors.New("no quote found")

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierProvider reads quotes, chains and daily history from the Tradier REST API.
type TradierProvider struct {
	client  *http.Client
	logger  logrus.FieldLogger
	now     func() time.Time
	apiKey  string
	baseURL string
	sandbox bool
}

// Ensure TradierProvider implements MarketData at compile time.
var _ MarketData = (*TradierProvider)(nil)

// NewTradierProvider creates a Tradier client. An empty baseURL selects the
// sandbox or production endpoint.
func NewTradierProvider(apiKey string, sandbox bool, baseURL string, logger logrus.FieldLogger) *TradierProvider {
	if baseURL == "" {
		if sandbox {
			baseURL = "https://sandbox.tradier.com/v1"
		} else {
			baseURL = "https://api.tradier.com/v1"
		}
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &TradierProvider{
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		now:     time.Now,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		sandbox: sandbox,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (t *TradierProvider) WithHTTPClient(c *http.Client) *TradierProvider {
	if c != nil {
		t.client = c
	}
	return t
}

// WithTimeout sets the HTTP client timeout duration.
func (t *TradierProvider) WithTimeout(timeout time.Duration) *TradierProvider {
	if timeout > 0 && t.client != nil {
		t.client.Timeout = timeout
	}
	return t
}

// WithClock replaces the wall clock used for history windows.
func (t *TradierProvider) WithClock(now func() time.Time) *TradierProvider {
	if now != nil {
		t.now = now
	}
	return t
}

// ============ API Response Structures ============

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// OptionChainResponse represents the API response for option chain requests.
type OptionChainResponse struct {
	Options struct {
		Option singleOrArray[Option] `json:"option"`
	} `json:"options"`
}

// Option represents an option contract from the Tradier API.
type Option struct {
	Greeks         *Greeks `json:"greeks,omitempty"`
	Symbol         string  `json:"symbol"`
	OptionType     string  `json:"option_type"`
	ExpirationDate string  `json:"expiration_date"`
	Underlying     string  `json:"underlying"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Last           float64 `json:"last"`
	Volume         int64   `json:"volume"`
	OpenInterest   int64   `json:"open_interest"`
	Strike         float64 `json:"strike"`
}

// Greeks contains option Greeks data from the Tradier API.
type Greeks struct {
	UpdatedAt string  `json:"updated_at"`
	Delta     float64 `json:"delta"`
	Gamma     float64 `json:"gamma"`
	Theta     float64 `json:"theta"`
	Vega      float64 `json:"vega"`
	BidIV     float64 `json:"bid_iv"`
	MidIV     float64 `json:"mid_iv"`
	AskIV     float64 `json:"ask_iv"`
	SmvVol    float64 `json:"smv_vol"`
}

// RawContract converts the API option into the pipeline's contract shape.
// Implied volatility comes from the mid IV, falling back to the SMV surface.
func (o Option) RawContract() models.RawContract {
	rc := models.RawContract{
		Symbol:         o.Symbol,
		OptionType:     o.OptionType,
		ExpirationDate: o.ExpirationDate,
		Strike:         o.Strike,
		Bid:            o.Bid,
		Ask:            o.Ask,
		Last:           o.Last,
		Volume:         o.Volume,
		OpenInterest:   o.OpenInterest,
	}
	if o.Greeks != nil {
		rc.IV = o.Greeks.MidIV
		if rc.IV <= 0 {
			rc.IV = o.Greeks.SmvVol
		}
		rc.Greeks = &models.Greeks{
			Delta: o.Greeks.Delta,
			Gamma: o.Greeks.Gamma,
			Theta: o.Greeks.Theta,
			Vega:  o.Greeks.Vega,
		}
	}
	return rc
}

// QuotesResponse represents the quotes response from the Tradier API.
type QuotesResponse struct {
	Quotes struct {
		Quote singleOrArray[QuoteItem] `json:"quote"`
	} `json:"quotes"`
}

// QuoteItem represents a single quote item from the Tradier API.
type QuoteItem struct {
	Symbol    string  `json:"symbol"`
	Type      string  `json:"type"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	PrevClose float64 `json:"prevclose"`
	Volume    int64   `json:"volume"`
}

// ExpirationsResponse represents the expirations response from the Tradier API.
type ExpirationsResponse struct {
	Expirations struct {
		Date []string `json:"date"`
	} `json:"expirations"`
}

// HistoricalDataResponse represents the response from historical data API
type HistoricalDataResponse struct {
	History struct {
		Day singleOrArray[HistoricalDay] `json:"day"`
	} `json:"history"`
}

// HistoricalDay is one daily bar.
type HistoricalDay struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// ============ API Methods ============

// GetQuote retrieves the current market quote for a symbol.
func (t *TradierProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	var response QuotesResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	quotes := response.Quotes.Quote
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w for symbol: %s", ErrNoQuote, symbol)
	}

	first := quotes[0]
	return &Quote{
		Symbol:    first.Symbol,
		Last:      first.Last,
		Bid:       first.Bid,
		Ask:       first.Ask,
		PrevClose: first.PrevClose,
	}, nil
}

// GetExpirations retrieves available expiration dates for options on a symbol.
func (t *TradierProvider) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "false")
	endpoint := t.baseURL + "/markets/options/expirations?" + params.Encode()

	var response ExpirationsResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	dates := append([]string(nil), response.Expirations.Date...)
	sort.Strings(dates)
	return dates, nil
}

// GetOptionChain retrieves the option chain, with greeks, for one expiration.
func (t *TradierProvider) GetOptionChain(ctx context.Context, symbol, expiration string) ([]models.RawContract, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration)
	params.Set("greeks", "true")
	endpoint := t.baseURL + "/markets/options/chains?" + params.Encode()

	var response OptionChainResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	out := make([]models.RawContract, 0, len(response.Options.Option))
	for _, o := range response.Options.Option {
		out = append(out, o.RawContract())
	}
	return out, nil
}

// GetHistoricalCloses returns daily closes, oldest first, between start and end.
func (t *TradierProvider) GetHistoricalCloses(ctx context.Context, symbol string, start, end time.Time) ([]float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "daily")
	params.Set("start", start.Format("2006-01-02"))
	params.Set("end", end.Format("2006-01-02"))
	endpoint := t.baseURL + "/markets/history?" + params.Encode()

	var response HistoricalDataResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
	}

	days := []HistoricalDay(response.History.Day)
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	closes := make([]float64, 0, len(days))
	for _, d := range days {
		if d.Close > 0 {
			closes = append(closes, d.Close)
		}
	}
	return closes, nil
}

func (t *TradierProvider) recentCloses(ctx context.Context, symbol string) ([]float64, error) {
	end := t.now()
	return t.GetHistoricalCloses(ctx, symbol, end.Add(-ivHistoryLookback), end)
}

// GetIVHistory returns 20-day realized volatility over roughly a year of closes.
// Tradier does not serve implied-volatility history, so realized volatility is
// the proxy the IV rank is computed against.
func (t *TradierProvider) GetIVHistory(ctx context.Context, symbol string) ([]float64, error) {
	closes, err := t.recentCloses(ctx, symbol)
	if err != nil {
		return nil, err
	}
	hv := technicals.HistoricalVolatility(closes, hvWindow)
	if len(hv) == 0 {
		return nil, fmt.Errorf("iv history for %s: %w", symbol, technicals.ErrInsufficientData)
	}
	return hv, nil
}

// GetTechnicals derives the trend read from daily closes.
func (t *TradierProvider) GetTechnicals(ctx context.Context, symbol string) (*Technicals, error) {
	closes, err := t.recentCloses(ctx, symbol)
	if err != nil {
		return nil, err
	}
	sig, err := technicals.Analyze(closes)
	if err != nil {
		return nil, fmt.Errorf("technicals for %s: %w", symbol, err)
	}
	return &Technicals{Trend: sig.Trend, Score: sig.Score}, nil
}

// GetGammaExposure estimates dealer gamma from the front expiration's chain.
// A chain without greeks yields an unavailable summary rather than an error.
func (t *TradierProvider) GetGammaExposure(ctx context.Context, symbol string) (*models.GammaSummary, error) {
	quote, err := t.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	dates, err := t.GetExpirations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	today := t.now().Format("2006-01-02")
	front := ""
	for _, d := range dates {
		if d >= today {
			front = d
			break
		}
	}
	if front == "" {
		return &models.GammaSummary{}, nil
	}
	contracts, err := t.GetOptionChain(ctx, symbol, front)
	if err != nil {
		return nil, err
	}
	summary := exposure.FromChain(quote.Price(), contracts)
	t.logger.WithFields(logrus.Fields{
		"symbol":      symbol,
		"expiration":  front,
		"environment": summary.Environment,
	}).Debug("Estimated gamma exposure")
	return &summary, nil
}

// GetEarnings reports no scheduled event; the Tradier market-data API carries no
// earnings calendar.
func (t *TradierProvider) GetEarnings(_ context.Context, _ string) (*models.EarningsInfo, error) {
	return &models.EarningsInfo{}, nil
}

// makeRequestCtx makes a GET request with context support for timeout/cancellation
func (t *TradierProvider) makeRequestCtx(ctx context.Context, method, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
	if err != nil {
		return err
	}

	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "premium-scout/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.logger.WithError(err).Warn("Failed to close response body")
		}
	}()

	// Check rate limit headers
	remaining := resp.Header.Get("X-Ratelimit-Available")
	if remaining == "" {
		remaining = resp.Header.Get("X-RateLimit-Remaining")
	}
	if remaining != "" && t.sandbox {
		t.logger.WithField("remaining", remaining).Debug("Rate limit")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		ct := resp.Header.Get("Content-Type")
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s (%s) -> %s (retry-after: %s)", method, endpoint, ct, string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s (%s) -> %s", method, endpoint, ct, string(body))}
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
