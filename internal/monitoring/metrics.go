// Package monitoring exposes prometheus metrics for the analysis pipeline:
// cache effectiveness, external source health, prefetch queue depth and
// per-phase latency.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "property_analyzer"

// Metrics holds every collector registered by the service. A nil *Metrics is
// valid and records nothing, so components can be built without metrics in
// tests.
type Metrics struct {
	registry *prometheus.Registry

	cacheAccess   *prometheus.CounterVec
	sourceFetches *prometheus.CounterVec
	listings      *prometheus.CounterVec
	prefetchQueue prometheus.Gauge
	prefetchTasks *prometheus.CounterVec
	phaseSeconds  *prometheus.HistogramVec
	analyses      *prometheus.CounterVec
}

// New creates a Metrics instance on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheAccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "access_total",
			Help:      "Cache lookups by data kind and result.",
		}, []string{"kind", "result"}),
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_total",
			Help:      "External source calls by source and outcome.",
		}, []string{"source", "outcome"}),
		listings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "listings_total",
			Help:      "Usable listings returned per source.",
		}, []string{"source"}),
		prefetchQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "prefetch",
			Name:      "queue_length",
			Help:      "Tasks waiting in the prefetch queue.",
		}),
		prefetchTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prefetch",
			Name:      "tasks_total",
			Help:      "Prefetch tasks by outcome (processed, skipped, failed, dropped).",
		}, []string{"outcome"}),
		phaseSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each analysis phase.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"phase"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "analyses_total",
			Help:      "Completed analyses by recommendation.",
		}, []string{"recommendation"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cacheAccess,
		m.sourceFetches,
		m.listings,
		m.prefetchQueue,
		m.prefetchTasks,
		m.phaseSeconds,
		m.analyses,
	)
	return m
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// CacheAccess records a cache hit or miss for a data kind.
func (m *Metrics) CacheAccess(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheAccess.WithLabelValues(kind, result).Inc()
}

// SourceFetch records the outcome of a call to an external source.
func (m *Metrics) SourceFetch(source string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sourceFetches.WithLabelValues(source, outcome).Inc()
}

// Listings adds n usable listings for source.
func (m *Metrics) Listings(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.listings.WithLabelValues(source).Add(float64(n))
}

// PrefetchQueue sets the current prefetch queue length.
func (m *Metrics) PrefetchQueue(n int) {
	if m == nil {
		return
	}
	m.prefetchQueue.Set(float64(n))
}

// PrefetchTask counts a prefetch task outcome.
func (m *Metrics) PrefetchTask(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.prefetchTasks.WithLabelValues(outcome).Add(float64(n))
}

// ObservePhase records the duration of a pipeline phase.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseSeconds.WithLabelValues(phase).Observe(d.Seconds())
}

// Analysis counts a completed analysis.
func (m *Metrics) Analysis(recommendation string) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(recommendation).Inc()
}
