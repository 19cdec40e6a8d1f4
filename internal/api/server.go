// Package api serves strategy recommendations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/premium_scout/internal/analyzer"
	"github.com/eddiefleurent/premium_scout/internal/marketdata"
	"github.com/eddiefleurent/premium_scout/internal/metrics"
	"github.com/eddiefleurent/premium_scout/internal/models"
)

// MaxDTE bounds the dte query parameter.
const MaxDTE = 365

// Server exposes the recommendation pipeline.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	fetcher  *marketdata.Fetcher
	analyzer *analyzer.Analyzer
	metrics  *metrics.Registry
	logger   *logrus.Logger
	cfg      Config
	now      func() time.Time
}

// Config holds listener settings and request defaults.
type Config struct {
	Port           int
	DefaultDTE     int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
}

// StrategyResponse is the body of a successful recommendation.
type StrategyResponse struct {
	ID          string                `json:"id"`
	GeneratedAt time.Time             `json:"generated_at"`
	Snapshot    models.MarketSnapshot `json:"snapshot"`
	Result      *analyzer.Result      `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer wires the routes. m may be nil.
func NewServer(cfg Config, fetcher *marketdata.Fetcher, a *analyzer.Analyzer, m *metrics.Registry, logger *logrus.Logger) *Server {
	if fetcher == nil || a == nil {
		panic("api.NewServer: fetcher and analyzer are required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.DefaultDTE <= 0 {
		cfg.DefaultDTE = 7
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		router:   chi.NewRouter(),
		fetcher:  fetcher,
		analyzer: a,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}

	s.setupRoutes()
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.observe)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.RequestTimeout))

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())
	s.router.Get("/api/strategies/{symbol}", s.handleGetStrategies)
}

// observe logs each request and records it by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(route, status, elapsed)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     status,
			"duration":   elapsed.String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("Handled request")
	})
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	s.logger.Infof("Starting API server on port %d", s.cfg.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.now().Unix(),
	})
}

func (s *Server) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	dte := s.cfg.DefaultDTE
	if raw := r.URL.Query().Get("dte"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxDTE {
			s.metrics.ObserveAnalysis("invalid", 0)
			s.writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("dte must be an integer between 1 and %d", MaxDTE))
			return
		}
		dte = n
	}

	log := s.logger.WithFields(logrus.Fields{
		"symbol":     symbol,
		"dte":        dte,
		"request_id": middleware.GetReqID(r.Context()),
	})

	req, err := s.fetcher.Fetch(r.Context(), symbol, dte)
	if err != nil {
		status := statusForFetchError(err)
		log.WithError(err).Warn("Failed to fetch market data")
		s.metrics.ObserveAnalysis("fetch_error", 0)
		s.writeError(w, status, err.Error())
		return
	}

	res, err := s.analyzer.Analyze(*req)
	if err != nil {
		log.WithError(err).Warn("Analysis rejected")
		s.metrics.ObserveAnalysis("invalid", 0)
		status := http.StatusInternalServerError
		if errors.Is(err, analyzer.ErrCannotAnalyze) {
			status = http.StatusUnprocessableEntity
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.metrics.ObserveAnalysis("ok", len(res.Candidates))

	s.writeJSON(w, http.StatusOK, StrategyResponse{
		ID:          uuid.NewString(),
		GeneratedAt: s.now().UTC(),
		Snapshot:    req.Snapshot,
		Result:      res,
	})
}

// statusForFetchError maps a fetch failure to an HTTP status.
func statusForFetchError(err error) int {
	switch {
	case errors.Is(err, marketdata.ErrNoExpiration), errors.Is(err, marketdata.ErrNoVolatility):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
