// Package metrics provides Prometheus metrics for harmonic analysis runs and the HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns the analysis metrics and the registry they are served from.
// A disabled manager accepts every call and records nothing.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         *prometheus.Registry

	// Analysis
	filesAnalyzed    *prometheus.CounterVec
	filesFailed      *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	labelsProduced   *prometheus.CounterVec
	inFlight         prometheus.Gauge

	// Batch runs
	batchRuns     prometheus.Counter
	batchDuration prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a metrics manager on its own registry unless one is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "harmony",
		subsystem:        "analysis",
		histogramBuckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		enabled:          true,
		constLabels:      make(map[string]string),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.filesAnalyzed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "files_analyzed_total",
		Help:        "Total number of inputs analyzed successfully, by analysis kind",
		ConstLabels: m.constLabels,
	}, []string{"kind"})

	m.filesFailed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "files_failed_total",
		Help:        "Total number of inputs that failed, by error kind",
		ConstLabels: m.constLabels,
	}, []string{"error_kind"})

	m.analysisDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "duration_seconds",
		Help:        "Time spent analyzing one input, decoding included",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"kind"})

	m.labelsProduced = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "labels_total",
		Help:        "Progression entries produced, by status (labeled, rest, incomplete)",
		ConstLabels: m.constLabels,
	}, []string{"status"})

	m.inFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "in_flight",
		Help:        "Analyses currently running",
		ConstLabels: m.constLabels,
	})

	m.batchRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "batch",
		Name:        "runs_total",
		Help:        "Total number of batch runs",
		ConstLabels: m.constLabels,
	})

	m.batchDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "batch",
		Name:        "run_duration_seconds",
		Help:        "Wall time of a batch run",
		Buckets:     prometheus.ExponentialBuckets(0.1, 4, 8),
		ConstLabels: m.constLabels,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        "requests_total",
		Help:        "Total number of HTTP requests by route, method and status code",
		ConstLabels: m.constLabels,
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        "request_duration_seconds",
		Help:        "HTTP request duration by route and method",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"route", "method"})
}

// Enabled reports whether the manager records anything
func (m *Manager) Enabled() bool {
	return m != nil && m.enabled
}

// RecordAnalysis records one successful analysis of the given kind.
func (m *Manager) RecordAnalysis(kind string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.filesAnalyzed.WithLabelValues(kind).Inc()
	m.analysisDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordFailure records one failed analysis by error kind.
func (m *Manager) RecordFailure(errorKind string) {
	if !m.Enabled() {
		return
	}
	m.filesFailed.WithLabelValues(errorKind).Inc()
}

// RecordLabels adds n progression entries of the given status.
func (m *Manager) RecordLabels(status string, n int) {
	if !m.Enabled() || n <= 0 {
		return
	}
	m.labelsProduced.WithLabelValues(status).Add(float64(n))
}

// TrackInFlight bumps the in-flight gauge and returns the function that lowers it.
func (m *Manager) TrackInFlight() func() {
	if !m.Enabled() {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// RecordBatchRun records a finished batch run.
func (m *Manager) RecordBatchRun(duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.batchRuns.Inc()
	m.batchDuration.Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request.
func (m *Manager) RecordHTTPRequest(route, method, statusCode string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.httpRequests.WithLabelValues(route, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// Registry returns the registry the metrics live on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
