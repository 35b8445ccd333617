// Package metrics defines the Prometheus metric collectors used across the
// detector and serves them for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the detector.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	DetectionsTotal      *prometheus.CounterVec
	DetectionReasons     *prometheus.CounterVec
	DetectionConfidence  *prometheus.HistogramVec
	DetectionLatency     *prometheus.HistogramVec
	SkippedCandidates    prometheus.Counter
	CatalogueSize        prometheus.Gauge
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the metrics and registers them on reg. Tests pass
// a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DetectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detections_total",
				Help: "Total detections by method (symptoms, image) and status (confident, inconclusive).",
			},
			[]string{"method", "status"},
		),
		DetectionReasons: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detection_reasons_total",
				Help: "Inconclusive detections by reason.",
			},
			[]string{"reason"},
		),
		DetectionConfidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "detection_confidence",
				Help:    "Confidence (0-100) of the best candidate per detection.",
				Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
			[]string{"method"},
		),
		DetectionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "detection_latency_seconds",
				Help:    "Detection latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SkippedCandidates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "detection_skipped_candidates_total",
				Help: "Malformed catalogue records skipped while matching.",
			},
		),
		CatalogueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalogue_active_diseases",
				Help: "Number of active disease records in the last catalogue fetch.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DetectionsTotal,
		m.DetectionReasons,
		m.DetectionConfidence,
		m.DetectionLatency,
		m.SkippedCandidates,
		m.CatalogueSize,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}
