package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Sync cycle outcomes
	OutcomeSuccess          = "success"
	OutcomeDisabled         = "disabled"
	OutcomeNotAuthenticated = "not_authenticated"
	OutcomeEmpty            = "empty"
	OutcomeSubmitFailed     = "submit_failed"
	OutcomeSourceFailed     = "source_failed"
	OutcomeStoreFailed      = "store_failed"

	// Submission paths
	PathIncremental = "incremental"
	PathBackfill    = "backfill"

	// Trigger kinds
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerWatch    = "watch"

	// Generic results
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"

	// HTTP endpoints
	EndpointSync        = "sync"
	EndpointSubmit      = "submit"
	EndpointActivities  = "activities"
	EndpointReconcile   = "reconcile"
	EndpointStatus      = "status"
	EndpointSyncEnabled = "sync_enabled"
	EndpointSession     = "session"
	EndpointHealth      = "health"

	// Backend API operations
	OpSubmitBatch   = "submit_batch"
	OpFetchSyncedID = "fetch_synced_ids"

	// Health source skip reasons
	SkipReasonDecode  = "decode"
	SkipReasonInvalid = "invalid"
	SkipReasonOutside = "outside_window"

	// Database operations
	DBOpGetWatermark        = "get_watermark"
	DBOpSetWatermark        = "set_watermark"
	DBOpGetQueue            = "get_queue"
	DBOpAppendQueue         = "append_queue"
	DBOpCommitSync          = "commit_sync"
	DBOpGetSyncedIDs        = "get_synced_ids"
	DBOpAddSyncedIDs        = "add_synced_ids"
	DBOpCountSyncedIDs      = "count_synced_ids"
	DBOpGetSyncEnabled      = "get_sync_enabled"
	DBOpSetSyncEnabled      = "set_sync_enabled"
	DBOpGetCachedActivities = "get_cached_activities"
	DBOpSetCachedActivities = "set_cached_activities"
	DBOpGetSessionToken     = "get_session_token"
	DBOpSetSessionToken     = "set_session_token"
	DBOpGetQueueLength      = "get_queue_length"
	DBOpWipe                = "wipe"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of control API requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Control API request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Sync Metrics
var (
	SyncCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_cycles_total",
			Help: "Total number of sync cycles by outcome",
		},
		[]string{"outcome"},
	)

	SyncCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_cycle_duration_seconds",
			Help:    "Time spent in a sync cycle",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	SyncTriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_triggers_total",
			Help: "Total number of sync invocations by trigger",
		},
		[]string{"trigger"},
	)

	SyncJoinedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_joined_total",
			Help: "Sync invocations that joined an in-flight cycle instead of starting one",
		},
	)

	ActivitiesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activities_processed_total",
			Help: "Activities accepted by the backend",
		},
		[]string{"path"},
	)

	ActivitiesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activities_skipped_total",
			Help: "Activities the backend reported as skipped",
		},
		[]string{"path"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Batch submissions by path and result",
		},
		[]string{"path", "result"},
	)

	RetryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "retry_queue_depth",
			Help: "Number of activities waiting in the retry queue",
		},
	)

	WatermarkTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_watermark_timestamp_seconds",
			Help: "Current sync watermark as unix seconds",
		},
	)

	ReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliations_total",
			Help: "Remote reconciliation attempts by result",
		},
		[]string{"result"},
	)

	ReconciledIDsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciled_ids_total",
			Help: "Synced identifiers seeded by reconciliation",
		},
	)
)

// Health Source Metrics
var (
	HealthRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_records_total",
			Help: "Records returned by the health source",
		},
		[]string{"source"},
	)

	HealthRecordsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_records_skipped_total",
			Help: "Records skipped by the health source adapter",
		},
		[]string{"source", "reason"},
	)

	HealthQueryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "health_query_failures_total",
			Help: "Total health source query failures",
		},
		[]string{"source"},
	)
)

// Backend API Metrics
var (
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_requests_total",
			Help: "Total number of backend API requests",
		},
		[]string{"operation", "status_code"},
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_request_duration_seconds",
			Help:    "Backend API request latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation", "status_code"},
	)

	BackendRateLimitUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backend_rate_limit_usage",
			Help: "Backend API rate limit usage",
		},
		[]string{"bucket"},
	)
)

// Database Metrics
var (
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)
)

// Worker Metrics
var (
	WorkerActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_active",
			Help: "Whether the background trigger is currently scheduled (1) or not (0)",
		},
	)
)
