// Package chain normalizes raw option-chain feeds and resolves target strikes to
// quoted contracts.
package chain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/eddiefleurent/premium_scout/internal/models"
)

// ErrNotFound is returned when no quoted contract is available to match against.
var ErrNotFound = errors.New("no matching contract")

// DefaultWindowDays is how far a contract's DTE may drift from the target DTE.
const DefaultWindowDays = 3

const expirationLayout = "2006-01-02"

// Matcher parses raw contracts relative to a fixed as-of date so results do not
// depend on the wall clock.
type Matcher struct {
	AsOf       time.Time
	WindowDays int
}

// NewMatcher creates a matcher anchored at asOf with the default ±3 day window.
func NewMatcher(asOf time.Time) *Matcher {
	return &Matcher{AsOf: asOf, WindowDays: DefaultWindowDays}
}

// DaysUntil returns calendar days from asOf to the expiration date (negative once expired).
func DaysUntil(asOf time.Time, expiration string) (int, error) {
	exp, err := time.Parse(expirationLayout, expiration)
	if err != nil {
		return 0, fmt.Errorf("parsing expiration %q: %w", expiration, err)
	}
	from := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(to.Sub(from).Hours() / 24)), nil
}

// Parse keeps contracts whose DTE lies within the window of targetDTE, splits them
// into calls and puts, derives mid prices and sorts each side by strike.
func (m *Matcher) Parse(raw []models.RawContract, targetDTE int) models.OptionsChain {
	window := m.WindowDays
	if window < 0 {
		window = DefaultWindowDays
	}

	out := models.OptionsChain{
		Calls: []models.OptionQuote{},
		Puts:  []models.OptionQuote{},
	}
	for _, rc := range raw {
		dte, err := DaysUntil(m.AsOf, rc.ExpirationDate)
		if err != nil {
			continue
		}
		if diff := dte - targetDTE; diff > window || diff < -window {
			continue
		}

		q := normalize(rc, dte)
		switch q.Type {
		case models.OptionTypeCall:
			out.Calls = append(out.Calls, q)
		case models.OptionTypePut:
			out.Puts = append(out.Puts, q)
		}
	}

	sort.SliceStable(out.Calls, func(i, j int) bool { return out.Calls[i].Strike < out.Calls[j].Strike })
	sort.SliceStable(out.Puts, func(i, j int) bool { return out.Puts[i].Strike < out.Puts[j].Strike })
	return out
}

func normalize(rc models.RawContract, dte int) models.OptionQuote {
	bid := math.Max(rc.Bid, 0)
	ask := math.Max(rc.Ask, 0)
	if math.IsNaN(bid) {
		bid = 0
	}
	if math.IsNaN(ask) {
		ask = 0
	}

	q := models.OptionQuote{
		Symbol:       rc.Symbol,
		Type:         models.OptionType(strings.ToLower(rc.OptionType)),
		Strike:       rc.Strike,
		Bid:          bid,
		Ask:          ask,
		Mid:          (bid + ask) / 2,
		IV:           rc.IV,
		Volume:       rc.Volume,
		OpenInterest: rc.OpenInterest,
		Expiration:   rc.ExpirationDate,
		DTE:          dte,
	}
	if rc.Greeks != nil {
		q.Greeks = *rc.Greeks
	}
	return q
}

// Nearest returns the contract whose strike is closest to target. On ties the
// earlier contract in the slice wins.
func Nearest(side []models.OptionQuote, target float64) (models.OptionQuote, error) {
	if len(side) == 0 {
		return models.OptionQuote{}, fmt.Errorf("%w: strike %.2f", ErrNotFound, target)
	}
	best := side[0]
	bestDiff := math.Abs(best.Strike - target)
	for _, q := range side[1:] {
		if diff := math.Abs(q.Strike - target); diff < bestDiff {
			best, bestDiff = q, diff
		}
	}
	return best, nil
}
