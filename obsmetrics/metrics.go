package obsmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Analysis execution metrics
	analysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "End-to-end analyze() duration in seconds, including cache checks",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"granularity", "status"},
	)

	analysisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_total",
			Help: "Total analyze() invocations by terminal status",
		},
		[]string{"status"},
	)

	analysisErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_errors_total",
			Help: "Total analyze() failures by error kind",
		},
		[]string{"kind"},
	)

	cacheHitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_cache_hit_total",
			Help: "Total analyze() calls served from the ready-space cache",
		},
		[]string{"hit"},
	)

	inflightGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analysis_inflight_gauge",
			Help: "Current number of fingerprints with a held in-flight lease",
		},
	)

	recordsFetched = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_records_fetched",
			Help:    "Number of freight records fetched per analysis",
			Buckets: []float64{10, 100, 1000, 10000, 100000, 1000000},
		},
		[]string{"granularity"},
	)

	bucketsProduced = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_buckets_produced",
			Help:    "Number of time buckets produced by time-period expansion",
			Buckets: []float64{1, 7, 30, 90, 365, 1000, 10000},
		},
		[]string{"granularity"},
	)

	// Schedule executor metrics
	scheduleExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_executions_total",
			Help: "Total schedule executions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	schedulePollLag = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schedule_poll_lag_seconds",
			Help:    "Seconds between a schedule's next_run_at and its actual pickup by the poll loop",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	scheduleWorkerPoolSaturated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "schedule_worker_pool_saturated_total",
			Help: "Total times a due schedule was deferred because the worker pool was full",
		},
	)

	// Cache backend metrics
	cacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resultcache_operation_duration_seconds",
			Help:    "Duration of result-cache operations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"operation"},
	)
)

// RecordAnalysis records one terminal analyze() outcome.
func RecordAnalysis(granularity, status string, durationSeconds float64) {
	analysisDuration.WithLabelValues(granularity, status).Observe(durationSeconds)
	analysisTotal.WithLabelValues(status).Inc()
}

// RecordAnalysisError records a classified analyze() failure.
func RecordAnalysisError(kind string) {
	analysisErrors.WithLabelValues(kind).Inc()
}

// RecordCacheLookup records whether an analyze() call was served from cache.
func RecordCacheLookup(hit bool) {
	if hit {
		cacheHitTotal.WithLabelValues("true").Inc()
	} else {
		cacheHitTotal.WithLabelValues("false").Inc()
	}
}

// SetInFlightGauge reports the current count of held in-flight leases.
func SetInFlightGauge(count int) {
	inflightGauge.Set(float64(count))
}

// RecordRecordsFetched records the row count C1 returned for one analysis.
func RecordRecordsFetched(granularity string, count int) {
	recordsFetched.WithLabelValues(granularity).Observe(float64(count))
}

// RecordBucketsProduced records the bucket count C2 produced.
func RecordBucketsProduced(granularity string, count int) {
	bucketsProduced.WithLabelValues(granularity).Observe(float64(count))
}

// RecordScheduleExecution records one schedule firing.
func RecordScheduleExecution(kind, outcome string) {
	scheduleExecutions.WithLabelValues(kind, outcome).Inc()
}

// RecordSchedulePollLag records how late the poll loop picked up a due schedule.
func RecordSchedulePollLag(seconds float64) {
	schedulePollLag.Observe(seconds)
}

// RecordWorkerPoolSaturated records a deferred schedule due to pool exhaustion.
func RecordWorkerPoolSaturated() {
	scheduleWorkerPoolSaturated.Inc()
}

// RecordCacheOperation records the duration of one resultcache primitive call.
func RecordCacheOperation(operation string, seconds float64) {
	cacheOperationDuration.WithLabelValues(operation).Observe(seconds)
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
