// Package metrics exports retrieval engine metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter collects retrieval metrics for a Prometheus registry.
type Exporter struct {
	registry *prometheus.Registry

	searchLatency *prometheus.HistogramVec
	searches      *prometheus.CounterVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	sourceResults *prometheus.CounterVec
	adapterErrors *prometheus.CounterVec
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one).
	Registry *prometheus.Registry

	// Buckets for latency histograms, in seconds.
	LatencyBuckets []float64
}

// DefaultConfig returns default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}
}

// NewExporter creates a retrieval metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.searchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "recall",
		Name:      "search_duration_seconds",
		Help:      "Search latency by query type.",
		Buckets:   cfg.LatencyBuckets,
	}, []string{"query_type"})

	e.searches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "searches_total",
		Help:      "Searches by query type and outcome.",
	}, []string{"query_type", "outcome"})

	e.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "cache_hits_total",
		Help:      "Result cache hits.",
	})

	e.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "cache_misses_total",
		Help:      "Result cache misses.",
	})

	e.sourceResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "source_results_total",
		Help:      "Raw candidate counts by source.",
	}, []string{"source"})

	e.adapterErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "adapter_errors_total",
		Help:      "Degraded adapter calls by adapter.",
	}, []string{"adapter"})

	registry.MustRegister(
		e.searchLatency,
		e.searches,
		e.cacheHits,
		e.cacheMisses,
		e.sourceResults,
		e.adapterErrors,
	)

	return e
}

// RecordSearch records one completed search.
func (e *Exporter) RecordSearch(queryType string, duration time.Duration, cacheHit bool) {
	outcome := "computed"
	if cacheHit {
		outcome = "cached"
		e.cacheHits.Inc()
	} else {
		e.cacheMisses.Inc()
	}
	e.searches.WithLabelValues(queryType, outcome).Inc()
	e.searchLatency.WithLabelValues(queryType).Observe(duration.Seconds())
}

// RecordSourceResults records raw candidate counts for one search.
func (e *Exporter) RecordSourceResults(vectorCount, graphCount int) {
	e.sourceResults.WithLabelValues("vector").Add(float64(vectorCount))
	e.sourceResults.WithLabelValues("graph").Add(float64(graphCount))
}

// RecordAdapterError records a degraded adapter call.
func (e *Exporter) RecordAdapterError(adapter string) {
	e.adapterErrors.WithLabelValues(adapter).Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
