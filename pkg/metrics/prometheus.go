// Package metrics provides Prometheus metrics for the farewatch service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the farewatch service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Pipeline metrics
	batchesProcessed prometheus.Counter
	batchesFailed    *prometheus.CounterVec
	rowsIngested     prometheus.Counter
	rowsDropped      *prometheus.CounterVec
	anomalies        prometheus.Counter
	highRiskAlerts   prometheus.Counter
	fitLatency       prometheus.Histogram
	batchLatency     prometheus.Histogram
	lastBatchRows    prometheus.Gauge
	lastAnomalyRate  prometheus.Gauge
	fitWorkers       prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "farewatch",
		subsystem:        "pipeline",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.batchesProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "batches_processed_total",
		Help:        "Total number of ride batches scored successfully",
		ConstLabels: m.customLabels,
	})

	m.batchesFailed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "batches_failed_total",
		Help:        "Total number of ride batches rejected, by error kind",
		ConstLabels: m.customLabels,
	}, []string{"kind"})

	m.rowsIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rows_ingested_total",
		Help:        "Total number of raw rows read from uploads",
		ConstLabels: m.customLabels,
	})

	m.rowsDropped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rows_dropped_total",
		Help:        "Total number of rows removed by cleaning, by reason",
		ConstLabels: m.customLabels,
	}, []string{"reason"})

	m.anomalies = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "anomalies_detected_total",
		Help:        "Total number of rides labeled anomalous",
		ConstLabels: m.customLabels,
	})

	m.highRiskAlerts = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "high_risk_alerts_total",
		Help:        "Total number of anomalies escalated below the alert threshold",
		ConstLabels: m.customLabels,
	})

	m.fitLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "fit_latency_milliseconds",
		Help:        "Isolation forest fit and score latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})

	m.batchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "batch_latency_milliseconds",
		Help:        "End-to-end batch latency (read, clean, score, summarize) in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})

	m.lastBatchRows = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "last_batch_rows",
		Help:        "Number of clean rows in the most recent batch",
		ConstLabels: m.customLabels,
	})

	m.lastAnomalyRate = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "last_anomaly_rate_ratio",
		Help:        "Anomaly rate of the most recent batch",
		ConstLabels: m.customLabels,
	})

	m.fitWorkers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "fit_workers",
		Help:        "Configured number of goroutines building isolation trees",
		ConstLabels: m.customLabels,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_component_total",
			Help:        "Total number of errors by component",
			ConstLabels: m.customLabels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_type_total",
			Help:        "Total number of errors by type",
			ConstLabels: m.customLabels,
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_endpoint_total",
			Help:        "Total number of errors by endpoint",
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "error_latency_milliseconds",
			Help:        "Latency of operations that resulted in errors",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.customLabels,
		},
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_memory_usage_bytes",
		Help:        "System memory usage in bytes",
		ConstLabels: m.customLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_goroutine_count",
		Help:        "Number of goroutines",
		ConstLabels: m.customLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.customLabels,
	})
}

// active reports whether package-level recorders should update the global manager.
func active() bool {
	return globalManager != nil && globalManager.enabled
}

// Pipeline Metrics Functions.

// RecordBatchProcessed increments the successful batch counter.
func RecordBatchProcessed() {
	if !active() {
		return
	}
	globalManager.batchesProcessed.Inc()
}

// RecordBatchFailed increments the failed batch counter for an error kind.
func RecordBatchFailed(kind string) {
	if !active() {
		return
	}
	globalManager.batchesFailed.WithLabelValues(kind).Inc()
}

// RecordRowsIngested adds n raw rows.
func RecordRowsIngested(n int) {
	if !active() {
		return
	}
	if n > 0 {
		globalManager.rowsIngested.Add(float64(n))
	}
}

// RecordRowsDropped adds n rows dropped for reason.
func RecordRowsDropped(reason string, n int) {
	if !active() {
		return
	}
	if n > 0 {
		globalManager.rowsDropped.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordAnomalies adds n anomalous rows.
func RecordAnomalies(n int) {
	if !active() {
		return
	}
	if n > 0 {
		globalManager.anomalies.Add(float64(n))
	}
}

// RecordHighRiskAlerts adds n high-risk alerts.
func RecordHighRiskAlerts(n int) {
	if !active() {
		return
	}
	if n > 0 {
		globalManager.highRiskAlerts.Add(float64(n))
	}
}

// RecordFitLatency records model fit latency in milliseconds.
func RecordFitLatency(latencyMs float64) {
	if !active() {
		return
	}
	globalManager.fitLatency.Observe(latencyMs)
}

// RecordBatchLatency records end-to-end batch latency in milliseconds.
func RecordBatchLatency(latencyMs float64) {
	if !active() {
		return
	}
	globalManager.batchLatency.Observe(latencyMs)
}

// UpdateLastBatch publishes the size and anomaly rate of the latest batch.
func UpdateLastBatch(rows int, anomalyRate float64) {
	if !active() {
		return
	}
	globalManager.lastBatchRows.Set(float64(rows))
	globalManager.lastAnomalyRate.Set(anomalyRate)
}

// UpdateFitWorkers sets the configured fit worker count.
func UpdateFitWorkers(count int) {
	if !active() {
		return
	}
	globalManager.fitWorkers.Set(float64(count))
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !active() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !active() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !active() {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	if !active() {
		return
	}
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !active() {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if !active() {
		return
	}
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !active() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !active() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !active() {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Default returns the process-wide manager backing the package-level recorders.
func Default() *Manager {
	return globalManager
}
