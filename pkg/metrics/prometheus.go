// Package metrics provides Prometheus metrics for the stride analytics service.
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

// Manager manages all Prometheus metrics for the stride service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Pipeline metrics
	pipelineRuns      *prometheus.CounterVec
	pipelineLatency   prometheus.Histogram
	stageLatency      *prometheus.HistogramVec
	rowsIngested      prometheus.Counter
	rowsDropped       *prometheus.CounterVec
	rowErrors         *prometheus.CounterVec
	activitiesInViews *prometheus.GaugeVec

	// Job queue and workers
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueRejected     prometheus.Counter
	workerCount       prometheus.Gauge
	workerLatency     prometheus.Histogram
	workerJobFailures prometheus.Counter

	// Cache and store
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	storeLatency *prometheus.HistogramVec
	storedRuns   prometheus.Gauge

	// Ingest
	sourceFetches *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByType        *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure replaces the process-wide manager with one built from opts on a
// fresh registry. Call it before serving; recorders are not synchronized
// against the swap.
func Configure(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(customRegistry)}, opts...)...)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "stride",
		subsystem:        "",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
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

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		})
	}
	counterVec := func(name, help string, l ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		}, l)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		})
	}
	histogram := func(name, help string) prometheus.Histogram {
		return auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
			Buckets: m.histogramBuckets,
		})
	}
	histogramVec := func(name, help string, l ...string) *prometheus.HistogramVec {
		return auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
			Buckets: m.histogramBuckets,
		}, l)
	}

	m.pipelineRuns = counterVec("pipeline_runs_total", "Pipeline runs by outcome", "outcome")
	m.pipelineLatency = histogram("pipeline_latency_milliseconds", "End-to-end pipeline latency in milliseconds")
	m.stageLatency = histogramVec("pipeline_stage_latency_milliseconds", "Per-stage pipeline latency in milliseconds", "stage")
	m.rowsIngested = counter("pipeline_rows_ingested_total", "Raw rows handed to the normalizer")
	m.rowsDropped = counterVec("pipeline_rows_dropped_total", "Rows dropped before the views, by reason", "reason")
	m.rowErrors = counterVec("pipeline_row_errors_total", "Contained per-row computation errors, by stage", "stage")
	m.activitiesInViews = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("view_rows"), Help: "Rows in the last computed view per sport", ConstLabels: labels,
	}, []string{"sport"})

	m.queueSize = gauge("queue_size", "Current number of queued pipeline jobs")
	m.queueCapacity = gauge("queue_capacity", "Maximum number of queued pipeline jobs")
	m.queueRejected = counter("queue_rejected_total", "Jobs rejected because the queue was full or closed")
	m.workerCount = gauge("worker_count", "Number of pipeline workers")
	m.workerLatency = histogram("worker_job_latency_milliseconds", "Worker job latency in milliseconds")
	m.workerJobFailures = counter("worker_job_failures_total", "Pipeline jobs that finished with an error")

	m.cacheHits = counter("cache_hits_total", "Result cache hits")
	m.cacheMisses = counter("cache_misses_total", "Result cache misses")
	m.storeLatency = histogramVec("store_latency_milliseconds", "Run store operation latency in milliseconds", "op")
	m.storedRuns = gauge("stored_runs", "Number of runs held by the run store")

	m.sourceFetches = counterVec("source_fetches_total", "Upstream activity fetches by source and outcome", "source", "outcome")

	m.httpRequests = counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.errorsByEndpoint = counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorsByType = counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")

	m.systemMemoryUsage = gauge("system_memory_usage_bytes", "Current memory usage in bytes")
	m.systemGoroutineCount = gauge("system_goroutine_count", "Current number of goroutines")
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("system_gc_pause_time_milliseconds"),
		Help: "GC pause time in milliseconds", ConstLabels: labels,
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Pipeline.

// RecordPipelineRun counts a finished run by outcome (ok, schema_error, empty, range_error, error).
func RecordPipelineRun(outcome string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.pipelineRuns.WithLabelValues(outcome).Inc()
	globalManager.pipelineLatency.Observe(latencyMs)
}

// RecordStageLatency records a single stage duration.
func RecordStageLatency(stage string, latencyMs float64) {
	globalManager.stageLatency.WithLabelValues(stage).Observe(latencyMs)
}

// RecordRowsIngested adds n raw rows.
func RecordRowsIngested(n int) {
	globalManager.rowsIngested.Add(float64(n))
}

// RecordRowsDropped adds n rows dropped for reason.
func RecordRowsDropped(reason string, n int) {
	if n <= 0 {
		return
	}
	globalManager.rowsDropped.WithLabelValues(reason).Add(float64(n))
}

// RecordRowErrors adds n contained row errors for stage.
func RecordRowErrors(stage string, n int) {
	if n <= 0 {
		return
	}
	globalManager.rowErrors.WithLabelValues(stage).Add(float64(n))
}

// UpdateViewRows sets the row count of the last computed view for sport.
func UpdateViewRows(sport string, n int) {
	globalManager.activitiesInViews.WithLabelValues(sport).Set(float64(n))
}

// Queue and workers.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected increments the rejected job counter.
func RecordQueueRejected() {
	globalManager.queueRejected.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerLatency records how long a worker spent on one job.
func RecordWorkerLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordWorkerFailure increments the failed job counter.
func RecordWorkerFailure() {
	globalManager.workerJobFailures.Inc()
}

// Cache and store.

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() { globalManager.cacheHits.Inc() }

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() { globalManager.cacheMisses.Inc() }

// RecordStoreLatency records a run store operation.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdateStoredRuns sets the number of stored runs.
func UpdateStoredRuns(n int) {
	globalManager.storedRuns.Set(float64(n))
}

// RecordSourceFetch counts an upstream fetch.
func RecordSourceFetch(source, outcome string) {
	globalManager.sourceFetches.WithLabelValues(source, outcome).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
