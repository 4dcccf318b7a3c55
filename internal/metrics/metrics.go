// Package metrics registers kura's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperjump/kura/internal/apperr"
)

const namespace = "kura"

// Metrics holds the collectors. All methods are safe on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ingestTotal      *prometheus.CounterVec
	ingestDuration   prometheus.Histogram
	chunksIndexed    prometheus.Counter
	searchTotal      *prometheus.CounterVec
	answerTotal      *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
}

// New creates collectors on a private registry that also carries the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ingestTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_total",
				Help:      "Ingestion runs by outcome",
			},
			[]string{"outcome"},
		),
		ingestDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_duration_seconds",
				Help:      "Duration of ingestion runs",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		chunksIndexed: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_indexed_total",
				Help:      "Chunks embedded into persisted stores",
			},
		),
		searchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_total",
				Help:      "Similarity searches by outcome",
			},
			[]string{"outcome"},
		),
		answerTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answer_total",
				Help:      "RAG answers by outcome",
			},
			[]string{"outcome"},
		),
		providerDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Latency of embedding and generation provider calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
		providerErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Failed embedding and generation provider calls",
			},
			[]string{"provider", "operation"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
	}
}

// Outcome returns the label value for err: "ok" or the error kind code.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.KindOf(err).Code()
}

// ObserveIngest records one ingestion run.
func (m *Metrics) ObserveIngest(start time.Time, chunks int, err error) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(Outcome(err)).Inc()
	m.ingestDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		m.chunksIndexed.Add(float64(chunks))
	}
}

// ObserveSearch records one search.
func (m *Metrics) ObserveSearch(err error) {
	if m == nil {
		return
	}
	m.searchTotal.WithLabelValues(Outcome(err)).Inc()
}

// ObserveAnswer records one RAG answer.
func (m *Metrics) ObserveAnswer(err error) {
	if m == nil {
		return
	}
	m.answerTotal.WithLabelValues(Outcome(err)).Inc()
}

// ObserveProvider records the latency of a provider call that started at start.
func (m *Metrics) ObserveProvider(provider, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.providerDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.providerErrors.WithLabelValues(provider, operation).Inc()
	}
}

// ObserveCache records a cache hit or miss.
func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
