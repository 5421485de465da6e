// Package metrics defines the Prometheus collectors of the fetch/cache core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing,
// so components can be built without instrumentation.
type Metrics struct {
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	CacheWrites  prometheus.Counter
	CacheEntries prometheus.Gauge
	Batches      *prometheus.CounterVec
	Retrievals   *prometheus.HistogramVec
	Reconciles   prometheus.Counter

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickerlens", Subsystem: "cache", Name: "hits_total",
			Help: "Cache lookups that found an entry.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickerlens", Subsystem: "cache", Name: "misses_total",
			Help: "Cache lookups that found no entry.",
		}),
		CacheWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickerlens", Subsystem: "cache", Name: "writes_total",
			Help: "Series written into the cache.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tickerlens", Subsystem: "cache", Name: "entries",
			Help: "Series currently held by the cache.",
		}),
		Batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tickerlens", Subsystem: "fetch", Name: "batches_total",
			Help: "Completed fetch batches by outcome.",
		}, []string{"outcome"}),
		Retrievals: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tickerlens", Subsystem: "fetch", Name: "retrieval_seconds",
			Help:    "Duration of single-instrument upstream retrievals.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"result"}),
		Reconciles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickerlens", Subsystem: "view", Name: "reconciliations_total",
			Help: "Desired states processed by the controller.",
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(m.CacheHits, m.CacheMisses, m.CacheWrites, m.CacheEntries,
		m.Batches, m.Retrievals, m.Reconciles)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Hit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) Miss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) Wrote(entries int) {
	if m != nil {
		m.CacheWrites.Inc()
		m.CacheEntries.Set(float64(entries))
	}
}

func (m *Metrics) Batch(outcome string) {
	if m != nil {
		m.Batches.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Retrieval(ok bool, seconds float64) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Retrievals.WithLabelValues(result).Observe(seconds)
}

func (m *Metrics) Reconciled() {
	if m != nil {
		m.Reconciles.Inc()
	}
}
