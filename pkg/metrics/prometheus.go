// Package metrics provides Prometheus metrics for the pooling engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pooling engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Pool metrics
	poolsBuilt        prometheus.Counter
	poolsFailed       *prometheus.CounterVec
	poolBuildLatency  prometheus.Histogram
	poolPairs         prometheus.Histogram
	poolsEmpty        prometheus.Counter
	poolRequestsTotal prometheus.Gauge

	// Retrieval metrics
	retrievalLatency  *prometheus.HistogramVec
	retrievalFailures *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec

	// Transform metrics
	upscalingFailures      prometheus.Counter
	upscalingSkipped       prometheus.Counter
	baselineSeriesDropped  prometheus.Counter
	crossPairSeriesDropped prometheus.Counter
	covariateEventsRemoved prometheus.Counter
	eventsDetected         *prometheus.CounterVec

	// Runner metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	workerActiveCount  prometheus.Gauge
	taskLatency        prometheus.Histogram
	enqueueErrors      prometheus.Counter
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Init replaces the global manager with one built from opts on a fresh
// registry. Call it once at startup, before anything records.
func Init(opts ...Option) {
	registry := prometheus.NewRegistry()
	customRegistry = registry
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(registry)}, opts...)...)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "hydropool",
		subsystem:        "pooling",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
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

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	latencyBuckets := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

	m.poolsBuilt = auto.NewCounter(m.counterOpts("pools_built_total", "Total number of pools assembled successfully"))
	m.poolsFailed = auto.NewCounterVec(m.counterOpts("pools_failed_total", "Total number of pools that failed to build, by cause"),
		[]string{"cause"})
	m.poolBuildLatency = auto.NewHistogram(m.histogramOpts("pool_build_latency_milliseconds",
		"Time taken by one pool supplier invocation in milliseconds", latencyBuckets))
	m.poolPairs = auto.NewHistogram(m.histogramOpts("pool_pairs",
		"Number of pairs per assembled pool", prometheus.ExponentialBuckets(1, 4, 10)))
	m.poolsEmpty = auto.NewCounter(m.counterOpts("pools_empty_total", "Total number of pools assembled with zero pairs"))
	m.poolRequestsTotal = auto.NewGauge(m.gaugeOpts("pool_requests", "Number of pool requests in the current evaluation"))

	m.retrievalLatency = auto.NewHistogramVec(m.histogramOpts("retrieval_latency_milliseconds",
		"Retriever latency in milliseconds by dataset orientation", latencyBuckets), []string{"orientation"})
	m.retrievalFailures = auto.NewCounterVec(m.counterOpts("retrieval_failures_total",
		"Total number of retrieval failures by dataset orientation"), []string{"orientation"})
	m.breakerState = auto.NewGaugeVec(m.gaugeOpts("retriever_breaker_state",
		"Circuit breaker state per retriever: 0 closed, 1 half-open, 2 open"), []string{"name"})

	m.upscalingFailures = auto.NewCounter(m.counterOpts("upscaling_failures_total", "Total number of rejected upscaling requests"))
	m.upscalingSkipped = auto.NewCounter(m.counterOpts("upscaling_buckets_skipped_total",
		"Total number of buckets skipped for being incomplete or unevenly spaced"))
	m.baselineSeriesDropped = auto.NewCounter(m.counterOpts("baseline_series_dropped_total",
		"Total number of generated baseline series dropped for insufficient history"))
	m.crossPairSeriesDropped = auto.NewCounter(m.counterOpts("cross_pair_series_dropped_total",
		"Total number of series removed by cross-pairing"))
	m.covariateEventsRemoved = auto.NewCounter(m.counterOpts("covariate_events_removed_total",
		"Total number of paired events removed by covariate filters"))
	m.eventsDetected = auto.NewCounterVec(m.counterOpts("events_detected_total",
		"Total number of event windows detected by dataset"), []string{"dataset"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current number of queued pool tasks"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Capacity of the pool task queue"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of running pool workers"))
	m.taskLatency = auto.NewHistogram(m.histogramOpts("task_latency_milliseconds",
		"Time from dequeue to completion of a pool task in milliseconds", latencyBuckets))
	m.enqueueErrors = auto.NewCounter(m.counterOpts("enqueue_errors_total", "Total number of rejected pool task enqueues"))
	m.evaluationsTotal = auto.NewCounterVec(m.counterOpts("evaluations_total", "Total number of evaluations by outcome"),
		[]string{"outcome"})
	m.evaluationDuration = auto.NewHistogram(m.histogramOpts("evaluation_duration_seconds",
		"Wall time of a complete evaluation in seconds", prometheus.ExponentialBuckets(0.01, 4, 10)))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of status server requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"Status server request duration in milliseconds", nil), []string{"endpoint", "method", "status_code"})
}

func on() bool { return globalManager != nil && globalManager.enabled }

// RecordPoolBuilt records a successfully assembled pool and its size.
func RecordPoolBuilt(pairs int, latencyMs float64) {
	if !on() {
		return
	}
	globalManager.poolsBuilt.Inc()
	globalManager.poolPairs.Observe(float64(pairs))
	globalManager.poolBuildLatency.Observe(latencyMs)
	if pairs == 0 {
		globalManager.poolsEmpty.Inc()
	}
}

// RecordPoolFailed records a pool that failed to build.
func RecordPoolFailed(cause string, latencyMs float64) {
	if !on() {
		return
	}
	globalManager.poolsFailed.WithLabelValues(cause).Inc()
	globalManager.poolBuildLatency.Observe(latencyMs)
}

// UpdatePoolRequests sets the number of pool requests in the current evaluation.
func UpdatePoolRequests(count int) {
	if !on() {
		return
	}
	globalManager.poolRequestsTotal.Set(float64(count))
}

// RecordRetrieval records retrieval latency for one orientation.
func RecordRetrieval(orientation string, latencyMs float64) {
	if !on() {
		return
	}
	globalManager.retrievalLatency.WithLabelValues(orientation).Observe(latencyMs)
}

// RecordRetrievalFailure counts a retrieval failure for one orientation.
func RecordRetrievalFailure(orientation string) {
	if !on() {
		return
	}
	globalManager.retrievalFailures.WithLabelValues(orientation).Inc()
}

// UpdateBreakerState publishes a circuit breaker state.
func UpdateBreakerState(name string, state int) {
	if !on() {
		return
	}
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordUpscalingFailure counts a rejected upscaling request.
func RecordUpscalingFailure() {
	if !on() {
		return
	}
	globalManager.upscalingFailures.Inc()
}

// RecordUpscalingSkipped counts skipped buckets.
func RecordUpscalingSkipped(n int) {
	if !on() || n <= 0 {
		return
	}
	globalManager.upscalingSkipped.Add(float64(n))
}

// RecordBaselineSeriesDropped counts baseline series dropped for lack of history.
func RecordBaselineSeriesDropped() {
	if !on() {
		return
	}
	globalManager.baselineSeriesDropped.Inc()
}

// RecordCrossPairSeriesDropped counts series removed by cross-pairing.
func RecordCrossPairSeriesDropped(n int) {
	if !on() || n <= 0 {
		return
	}
	globalManager.crossPairSeriesDropped.Add(float64(n))
}

// RecordCovariateEventsRemoved counts events removed by covariate filtering.
func RecordCovariateEventsRemoved(n int) {
	if !on() || n <= 0 {
		return
	}
	globalManager.covariateEventsRemoved.Add(float64(n))
}

// RecordEventsDetected counts detected event windows for one dataset.
func RecordEventsDetected(dataset string, n int) {
	if !on() || n <= 0 {
		return
	}
	globalManager.eventsDetected.WithLabelValues(dataset).Add(float64(n))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if !on() {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !on() {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError() {
	if !on() {
		return
	}
	globalManager.enqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	if !on() {
		return
	}
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordTaskLatency records the processing time of one pool task.
func RecordTaskLatency(latencyMs float64) {
	if !on() {
		return
	}
	globalManager.taskLatency.Observe(latencyMs)
}

// RecordEvaluation records a finished evaluation.
func RecordEvaluation(outcome string, seconds float64) {
	if !on() {
		return
	}
	globalManager.evaluationsTotal.WithLabelValues(outcome).Inc()
	globalManager.evaluationDuration.Observe(seconds)
}

// RecordHTTPRequest records an HTTP request with its latency.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if !on() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
