// Package metrics exposes Prometheus instrumentation for the extraction
// pipeline and the HTTP API. All collectors live on a private registry so
// tests and embedded servers never collide with the default registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pgxbridge/internal/domain"
)

const namespace = "pgxbridge"

// Metrics implements domain.MetricsRecorder on top of a private
// Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	documentsTotal     *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	factsTotal         *prometheus.CounterVec
	matchStatusTotal   *prometheus.CounterVec
	highRiskTotal      prometheus.Counter
	lookupHits         prometheus.Counter
	lookupMisses       prometheus.Counter
	httpDuration       *prometheus.HistogramVec
}

// New creates the collector set and registers it on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_processed_total",
			Help:      "Documents processed, by extraction method",
		}, []string{"method"}),
		extractionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "End-to-end document processing duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		factsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_extracted_total",
			Help:      "Gene facts produced, by CPIC lookup outcome",
		}, []string{"status"}),
		matchStatusTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_status_total",
			Help:      "Phenotype validation outcomes",
		}, []string{"status"}),
		highRiskTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "high_risk_facts_total",
			Help:      "Facts flagged high risk by the EHR priority column",
		}),
		lookupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_hits_total",
			Help:      "Diplotype lookup cache hits",
		}),
		lookupMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_misses_total",
			Help:      "Diplotype lookup cache misses",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
	}

	m.registry.MustRegister(
		m.documentsTotal,
		m.extractionDuration,
		m.factsTotal,
		m.matchStatusTotal,
		m.highRiskTotal,
		m.lookupHits,
		m.lookupMisses,
		m.httpDuration,
	)

	return m
}

// RecordDocument counts a processed document and observes its duration.
func (m *Metrics) RecordDocument(method domain.ExtractionMethod, duration time.Duration) {
	m.documentsTotal.WithLabelValues(method.String()).Inc()
	m.extractionDuration.WithLabelValues(method.String()).Observe(duration.Seconds())
}

// RecordFact counts a gene fact by whether its diplotype resolved in CPIC.
func (m *Metrics) RecordFact(found bool) {
	status := "found"
	if !found {
		status = "not_found"
	}
	m.factsTotal.WithLabelValues(status).Inc()
}

// RecordMatchStatus counts a phenotype validation outcome.
func (m *Metrics) RecordMatchStatus(status domain.MatchStatus) {
	m.matchStatusTotal.WithLabelValues(string(status)).Inc()
}

// RecordHighRisk counts a high-risk fact.
func (m *Metrics) RecordHighRisk() {
	m.highRiskTotal.Inc()
}

// RecordLookup counts a diplotype lookup cache access.
func (m *Metrics) RecordLookup(hit bool) {
	if hit {
		m.lookupHits.Inc()
	} else {
		m.lookupMisses.Inc()
	}
}

// ObserveHTTPRequest records one HTTP request for the API latency histogram.
func (m *Metrics) ObserveHTTPRequest(path, method string, status int, duration time.Duration) {
	m.httpDuration.WithLabelValues(path, method, strconv.Itoa(status)).Observe(duration.Seconds())
}

// Handler returns the scrape endpoint for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
