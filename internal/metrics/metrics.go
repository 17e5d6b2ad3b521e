// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

// Package metrics defines the Prometheus instrumentation for Rowlens.
//
// Collectors register with the default registry through promauto and are
// exposed by the API at /metrics. Call sites use the Record*/Set* helpers so
// label values stay consistent.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtom215/rowlens/internal/analytics"
)

var (
	// Training
	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rowlens_training_duration_seconds",
			Help:    "Duration of one train or merge run in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"kind", "mode"}, // mode: "train", "merge"
	)

	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlens_training_runs_total",
			Help: "Total number of train or merge runs",
		},
		[]string{"kind", "mode", "result"}, // result: "success", "error"
	)

	TrainingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlens_training_errors_total",
			Help: "Total number of failed runs by error type",
		},
		[]string{"kind", "error_type"},
	)

	TrainingRowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlens_training_rows_total",
			Help: "Total number of input rows handed to the engine",
		},
		[]string{"kind"},
	)

	TrainingPagesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlens_training_pages_skipped_total",
			Help: "Total number of source pages the engine rejected and sync stepped past",
		},
		[]string{"kind", "error_type"},
	)

	// Merge outcomes
	MergeOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlens_merge_outcomes_total",
			Help: "Clusters and anomalies by what the incremental merge did with them",
		},
		[]string{"kind", "outcome"}, // outcome: "merged", "appended", "anomaly_added", "dropped", "duplicate"
	)

	// Model state
	ModelPoints = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rowlens_model_points",
			Help: "Total points represented by the stored model",
		},
		[]string{"model"},
	)

	ModelClusters = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rowlens_model_clusters",
			Help: "Number of clusters in the stored model",
		},
		[]string{"model"},
	)

	ModelAnomalies = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rowlens_model_anomalies",
			Help: "Number of anomalies in the stored model",
		},
		[]string{"model"},
	)

	ModelVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rowlens_model_version",
			Help: "Version of the stored model",
		},
		[]string{"model"},
	)

	// Model store
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlens_store_operations_total",
			Help: "Total number of model store operations",
		},
		[]string{"backend", "operation", "result"}, // result: "success", "not_found", "error"
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rowlens_store_operation_duration_seconds",
			Help:    "Duration of model store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	StoreCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rowlens_store_cache_hits_total",
			Help: "Total number of model cache hits",
		},
	)

	StoreCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rowlens_store_cache_misses_total",
			Help: "Total number of model cache misses",
		},
	)

	StoreMaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlens_store_maintenance_runs_total",
			Help: "Total number of store maintenance passes",
		},
		[]string{"result"},
	)

	// Scheduler
	ScheduledRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlens_scheduled_runs_total",
			Help: "Total number of scheduled training runs over all endpoints",
		},
		[]string{"result"}, // result: "success", "partial", "error"
	)

	ScheduledRunLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rowlens_scheduled_run_last_success_timestamp_seconds",
			Help: "Unix time of the last scheduled run without errors",
		},
	)

	// Row source
	SourceQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rowlens_source_query_duration_seconds",
			Help:    "Duration of row source queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	SourceRowsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlens_source_rows_total",
			Help: "Total number of rows read from the source",
		},
		[]string{"table"},
	)

	SourceQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlens_source_query_errors_total",
			Help: "Total number of failed row source queries",
		},
		[]string{"table"},
	)

	// Circuit Breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rowlens_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlens_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlens_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowlens_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rowlens_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rowlens_api_active_requests",
			Help: "Number of API requests currently being served",
		},
	)
)

// ErrorType buckets err into a low-cardinality label value.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, analytics.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, analytics.ErrNoValidFields):
		return "no_valid_fields"
	case errors.Is(err, analytics.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, analytics.ErrEmptyBatch):
		return "empty_batch"
	case errors.Is(err, analytics.ErrInconsistentDimension):
		return "inconsistent_dimension"
	case errors.Is(err, analytics.ErrInvalidTuning):
		return "invalid_tuning"
	case errors.Is(err, analytics.ErrUnknownModelKind), errors.Is(err, analytics.ErrKindMismatch):
		return "model_kind"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}

// RecordTraining records one engine run. merge selects the mode label.
func RecordTraining(kind analytics.ModelKind, merge bool, rows int, duration time.Duration, err error) {
	mode := "train"
	if merge {
		mode = "merge"
	}
	k := kind.String()

	TrainingDuration.WithLabelValues(k, mode).Observe(duration.Seconds())
	TrainingRowsProcessed.WithLabelValues(k).Add(float64(rows))
	if err != nil {
		TrainingRuns.WithLabelValues(k, mode, "error").Inc()
		TrainingErrors.WithLabelValues(k, ErrorType(err)).Inc()
		return
	}
	TrainingRuns.WithLabelValues(k, mode, "success").Inc()
}

// RecordSkippedPage counts a source page rejected with a data error.
func RecordSkippedPage(kind analytics.ModelKind, err error) {
	TrainingPagesSkipped.WithLabelValues(kind.String(), ErrorType(err)).Inc()
}

// RecordMerge adds a merge outcome to the outcome counters.
func RecordMerge(kind analytics.ModelKind, outcome *analytics.MergeOutcome) {
	if outcome == nil {
		return
	}
	k := kind.String()
	MergeOutcomes.WithLabelValues(k, "merged").Add(float64(outcome.Merged))
	MergeOutcomes.WithLabelValues(k, "appended").Add(float64(outcome.Appended))
	MergeOutcomes.WithLabelValues(k, "anomaly_added").Add(float64(outcome.AnomaliesAdded))
	MergeOutcomes.WithLabelValues(k, "dropped").Add(float64(outcome.Dropped))
	MergeOutcomes.WithLabelValues(k, "duplicate").Add(float64(outcome.Duplicates))
}

// SetModelGauges publishes the size of a stored model.
func SetModelGauges(m *analytics.Model) {
	if m == nil {
		return
	}
	ModelPoints.WithLabelValues(m.Key).Set(float64(m.Stats.TotalPoints))
	ModelClusters.WithLabelValues(m.Key).Set(float64(m.Stats.ClusterCount))
	ModelAnomalies.WithLabelValues(m.Key).Set(float64(m.Stats.AnomalyCount))
	ModelVersion.WithLabelValues(m.Key).Set(float64(m.Version))
}

// DeleteModelGauges drops the gauges of a deleted model.
func DeleteModelGauges(key string) {
	ModelPoints.DeleteLabelValues(key)
	ModelClusters.DeleteLabelValues(key)
	ModelAnomalies.DeleteLabelValues(key)
	ModelVersion.DeleteLabelValues(key)
}

// RecordStoreOperation records one store call. notFound marks a clean miss.
func RecordStoreOperation(backend, operation string, duration time.Duration, err error, notFound bool) {
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	result := "success"
	switch {
	case notFound:
		result = "not_found"
	case err != nil:
		result = "error"
	}
	StoreOperations.WithLabelValues(backend, operation, result).Inc()
}

// RecordMaintenance records one store maintenance pass.
func RecordMaintenance(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	StoreMaintenanceRuns.WithLabelValues(result).Inc()
}

// RecordScheduledRun records one scheduled run over all endpoints. failed
// counts the endpoints that returned an error.
func RecordScheduledRun(endpoints, failed int, finished time.Time) {
	switch {
	case failed == 0:
		ScheduledRuns.WithLabelValues("success").Inc()
		ScheduledRunLastSuccess.Set(float64(finished.Unix()))
	case failed < endpoints:
		ScheduledRuns.WithLabelValues("partial").Inc()
	default:
		ScheduledRuns.WithLabelValues("error").Inc()
	}
}

// RecordSourceQuery records one batch fetch.
func RecordSourceQuery(table string, rows int, duration time.Duration, err error) {
	SourceQueryDuration.WithLabelValues(table).Observe(duration.Seconds())
	if err != nil {
		SourceQueryErrors.WithLabelValues(table).Inc()
		return
	}
	SourceRowsFetched.WithLabelValues(table).Add(float64(rows))
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
