// Package metrics holds the Prometheus collectors exported by the scout.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "premium_scout"

// Registry owns the collectors and the registry they are exposed from.
// A nil *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	ProviderCalls   *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	CandidatesKept  prometheus.Histogram
	AnalysisResults *prometheus.CounterVec
}

// NewRegistry creates and registers every collector on a fresh registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route"},
		),
		ProviderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Market-data provider calls by operation and result",
			},
			[]string{"op", "result"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Option-chain cache lookups by result",
			},
			[]string{"result"},
		),
		FetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Time to assemble a market snapshot",
				Buckets:   prometheus.DefBuckets,
			},
		),
		CandidatesKept: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "candidates_kept",
				Help:      "Ranked candidates returned per analysis",
				Buckets:   []float64{0, 1, 2, 3, 4, 5, 6},
			},
		),
		AnalysisResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyses_total",
				Help:      "Analyses by outcome",
			},
			[]string{"outcome"},
		),
	}
	r.reg.MustRegister(
		r.HTTPRequests,
		r.HTTPDuration,
		r.ProviderCalls,
		r.CacheLookups,
		r.FetchDuration,
		r.CandidatesKept,
		r.AnalysisResults,
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveHTTP records one served request.
func (r *Registry) ObserveHTTP(route string, code int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	r.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveProviderCall records the outcome of one provider operation.
func (r *Registry) ObserveProviderCall(op string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.ProviderCalls.WithLabelValues(op, result).Inc()
}

// ObserveCache records a chain cache hit or miss.
func (r *Registry) ObserveCache(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveFetch records snapshot assembly latency.
func (r *Registry) ObserveFetch(elapsed time.Duration) {
	if r == nil {
		return
	}
	r.FetchDuration.Observe(elapsed.Seconds())
}

// ObserveAnalysis records an analysis outcome and, on success, how many
// candidates were kept.
func (r *Registry) ObserveAnalysis(outcome string, kept int) {
	if r == nil {
		return
	}
	r.AnalysisResults.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		r.CandidatesKept.Observe(float64(kept))
	}
}
