// Package metrics provides Prometheus metrics for the curator pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingestion
	itemsIngested     *prometheus.CounterVec
	sourceFetchErrors *prometheus.CounterVec
	duplicatesByTier  *prometheus.CounterVec
	candidatesCreated prometheus.Counter

	// Scoring
	scoringDuration prometheus.Histogram
	scoringErrors   prometheus.Counter

	// Admission
	admissionDecisions *prometheus.CounterVec
	publications       prometheus.Counter

	// Scheduler
	taskRuns     *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	// Health gauges
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueUtilization  prometheus.Gauge
	workerCount       prometheus.Gauge
	pendingCandidates prometheus.Gauge
	modelSampleCount  prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with configuration options.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "curator",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.itemsIngested = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "items_ingested_total",
			Help:      "Total number of raw items fetched, by source",
		},
		[]string{"source"},
	)

	m.sourceFetchErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "source_fetch_errors_total",
			Help:      "Total number of failed source fetches, by source",
		},
		[]string{"source"},
	)

	m.duplicatesByTier = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "duplicates_total",
			Help:      "Total number of duplicate items detected, by matching tier",
		},
		[]string{"tier"},
	)

	m.candidatesCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "candidates_created_total",
		Help:      "Total number of review candidates created",
	})

	m.scoringDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_duration_milliseconds",
		Help:      "Quality scoring duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.scoringErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_errors_total",
		Help:      "Total number of quality scoring failures",
	})

	m.admissionDecisions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "admission_decisions_total",
			Help:      "Total number of admission decisions, by outcome and reason",
		},
		[]string{"decision", "reason"},
	)

	m.publications = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "publications_total",
		Help:      "Total number of published candidates",
	})

	m.taskRuns = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "task_runs_total",
			Help:      "Total number of scheduled task runs, by task and result",
		},
		[]string{"task", "result"},
	)

	m.taskDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "task_duration_seconds",
			Help:      "Scheduled task run duration in seconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"task"},
	)

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current size of the raw-item queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum raw-item queue capacity",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_utilization_ratio",
		Help:      "Queue utilization ratio (current size / capacity)",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Number of running ingestion workers",
	})

	m.pendingCandidates = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pending_candidates",
		Help:      "Number of candidates awaiting admission",
	})

	m.modelSampleCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_sample_count",
		Help:      "Training sample count of the loaded quality model (0 when heuristic only)",
	})
}

// RecordItemIngested increments the ingested counter for a source.
func RecordItemIngested(source string) {
	globalManager.itemsIngested.WithLabelValues(source).Inc()
}

// RecordSourceFetchError increments the fetch error counter for a source.
func RecordSourceFetchError(source string) {
	globalManager.sourceFetchErrors.WithLabelValues(source).Inc()
}

// RecordDuplicate increments the duplicate counter for a matching tier.
func RecordDuplicate(tier string) {
	globalManager.duplicatesByTier.WithLabelValues(tier).Inc()
}

// RecordCandidateCreated increments the candidates created counter.
func RecordCandidateCreated() {
	globalManager.candidatesCreated.Inc()
}

// RecordScoringDuration records quality scoring duration in milliseconds.
func RecordScoringDuration(ms float64) {
	globalManager.scoringDuration.Observe(ms)
}

// RecordScoringError increments the scoring error counter.
func RecordScoringError() {
	globalManager.scoringErrors.Inc()
}

// RecordAdmissionDecision increments the decision counter. Reason is empty
// for published decisions.
func RecordAdmissionDecision(decision, reason string) {
	globalManager.admissionDecisions.WithLabelValues(decision, reason).Inc()
}

// RecordPublication increments the publications counter.
func RecordPublication() {
	globalManager.publications.Inc()
}

// RecordTaskRun records one scheduled task run.
func RecordTaskRun(task string, success bool, durationSeconds float64) {
	result := "ok"
	if !success {
		result = "error"
	}
	globalManager.taskRuns.WithLabelValues(task, result).Inc()
	globalManager.taskDuration.WithLabelValues(task).Observe(durationSeconds)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdatePendingCandidates sets the pending candidate gauge.
func UpdatePendingCandidates(count int) {
	globalManager.pendingCandidates.Set(float64(count))
}

// UpdateModelSampleCount sets the loaded model's training sample count.
func UpdateModelSampleCount(count int) {
	globalManager.modelSampleCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
