// Package analyzer runs the full recommendation pipeline for one market snapshot:
// volatility band, chain normalization, strategy generation, scoring and ranking.
package analyzer

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/premium_scout/internal/chain"
	"github.com/eddiefleurent/premium_scout/internal/models"
	"github.com/eddiefleurent/premium_scout/internal/ranking"
	"github.com/eddiefleurent/premium_scout/internal/scoring"
	"github.com/eddiefleurent/premium_scout/internal/strategy"
	"github.com/eddiefleurent/premium_scout/internal/volatility"
)

// ErrCannotAnalyze wraps every input problem that stops an analysis.
var ErrCannotAnalyze = errors.New("cannot analyze")

// Request is the input of a single analysis. Contracts and FarContracts are
// optional raw chains; AsOf anchors their DTE and is required when either is set.
type Request struct {
	Snapshot     models.MarketSnapshot
	Contracts    []models.RawContract
	FarContracts []models.RawContract
	AsOf         time.Time
}

// Result is the ranked recommendation for one snapshot.
type Result struct {
	Symbol       string                      `json:"symbol"`
	Band         volatility.Band             `json:"band"`
	AdjustedBand volatility.Band             `json:"adjusted_band"`
	Candidates   []*models.StrategyCandidate `json:"candidates"`
	Considered   int                         `json:"considered"`
	Exclusions   []strategy.Exclusion        `json:"exclusions"`
}

// Config tunes the pipeline around the catalog and engine.
type Config struct {
	Limit      int // candidates kept after ranking
	WindowDays int // ± DTE tolerance when matching expirations
}

// DefaultConfig keeps the top three and matches expirations within ±3 days.
var DefaultConfig = Config{
	Limit:      ranking.DefaultLimit,
	WindowDays: chain.DefaultWindowDays,
}

// Analyzer is safe for concurrent use; it keeps no per-request state.
type Analyzer struct {
	catalog *strategy.Catalog
	engine  *scoring.Engine
	cfg     Config
	logger  logrus.FieldLogger
}

// New creates an analyzer. A nil logger discards output.
func New(catalog *strategy.Catalog, engine *scoring.Engine, logger logrus.FieldLogger, config ...Config) *Analyzer {
	if catalog == nil {
		panic("analyzer.New: catalog must not be nil")
	}
	if engine == nil {
		panic("analyzer.New: engine must not be nil")
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultConfig.Limit
	}
	if cfg.WindowDays < 0 {
		cfg.WindowDays = DefaultConfig.WindowDays
	}

	return &Analyzer{catalog: catalog, engine: engine, cfg: cfg, logger: logger}
}

// NewDefault creates an analyzer with the default policy and weights.
func NewDefault(logger logrus.FieldLogger) *Analyzer {
	return New(strategy.NewCatalog(strategy.DefaultPolicy()), scoring.NewEngine(nil), logger)
}

func validateSnapshot(s *models.MarketSnapshot) error {
	if strings.TrimSpace(s.Symbol) == "" {
		return errors.New("symbol is required")
	}
	if math.IsNaN(s.IVRank) || s.IVRank < 0 || s.IVRank > 100 {
		return fmt.Errorf("iv rank %v must be between 0 and 100", s.IVRank)
	}
	if s.Trend == "" {
		s.Trend = models.TrendNeutral
	}
	if !s.Trend.Valid() {
		return fmt.Errorf("unknown trend %q", s.Trend)
	}
	if s.IVRankTier == "" {
		s.IVRankTier = models.TierForIVRank(s.IVRank)
	}
	return nil
}

// Analyze produces ranked candidates. Given the same Request it always returns
// the same Result.
func (a *Analyzer) Analyze(req Request) (*Result, error) {
	snap := req.Snapshot
	if err := validateSnapshot(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotAnalyze, err)
	}
	band, err := volatility.ComputeBand(snap.Price, snap.IV, snap.DTE)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotAnalyze, err)
	}
	adjusted := volatility.AdjustForGamma(band, snap.Gamma)

	log := a.logger.WithFields(logrus.Fields{
		"symbol": snap.Symbol,
		"dte":    snap.DTE,
	})
	log.WithFields(logrus.Fields{
		"lower":      adjusted.OneSigma.Lower,
		"upper":      adjusted.OneSigma.Upper,
		"multiplier": volatility.GammaMultiplier(snap.Price, snap.Gamma),
	}).Debug("Computed expected-move band")

	in := strategy.Inputs{Snapshot: snap, Band: adjusted}
	if req.Contracts != nil || req.FarContracts != nil {
		if req.AsOf.IsZero() {
			return nil, fmt.Errorf("%w: as-of date is required with option contracts", ErrCannotAnalyze)
		}
		m := &chain.Matcher{AsOf: req.AsOf, WindowDays: a.cfg.WindowDays}
		near := m.Parse(req.Contracts, snap.DTE)
		in.Chain = &near
		if req.FarContracts != nil {
			far := m.Parse(req.FarContracts, snap.DTE+a.catalog.Policy().FarLegOffsetDays)
			in.FarChain = &far
		}
		log.WithFields(logrus.Fields{
			"calls": len(near.Calls),
			"puts":  len(near.Puts),
		}).Debug("Parsed option chain")
	}

	cands, excluded := a.catalog.Generate(in)
	for _, ex := range excluded {
		log.WithField("strategy", ex.Type).Debugf("Excluded: %s", ex.Reason)
	}

	a.engine.Apply(cands, snap.ScoringContext())
	ranked := ranking.Rank(cands, a.cfg.Limit)

	log.WithFields(logrus.Fields{
		"considered": len(cands),
		"kept":       len(ranked),
	}).Debug("Ranked candidates")

	return &Result{
		Symbol:       snap.Symbol,
		Band:         band,
		AdjustedBand: adjusted,
		Candidates:   ranked,
		Considered:   len(cands),
		Exclusions:   excluded,
	}, nil
}
