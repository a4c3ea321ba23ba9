package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deckview_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deckview_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Artifact ledger (SQLite) metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_db_queries_total",
			Help: "Total number of artifact ledger queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deckview_db_query_duration_seconds",
			Help:    "Artifact ledger query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deckview_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deckview_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_filesystem_retry_attempts_total",
			Help: "Total number of NFS retry attempts",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_filesystem_retry_success_total",
			Help: "Total number of operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_filesystem_retry_failures_total",
			Help: "Total number of operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_filesystem_stale_errors_total",
			Help: "Total number of ESTALE errors encountered",
		},
		[]string{"operation", "volume"},
	)
)

// Artifact cache metrics
var (
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_cache_lookups_total",
			Help: "Artifact cache lookups by artifact type and result",
		},
		[]string{"type", "result"}, // result: "hit", "miss", "pending", "failed"
	)

	CacheJobsJoinedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_cache_jobs_joined_total",
			Help: "Requests that awaited an already in-flight job instead of starting one",
		},
		[]string{"type"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deckview_cache_entries",
			Help: "Number of ready artifacts by type",
		},
		[]string{"type"},
	)

	CacheSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deckview_cache_size_bytes",
			Help: "Total size of ready artifacts by type",
		},
		[]string{"type"},
	)

	CacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deckview_cache_evictions_total",
			Help: "Artifacts evicted to honor the cache size ceiling",
		},
	)

	CacheSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deckview_cache_sweeps_total",
			Help: "Total number of cache sweeps",
		},
	)

	CacheSweepRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deckview_cache_sweep_removed_total",
			Help: "Artifacts removed by sweeps because their source changed or vanished",
		},
	)

	CacheSweepErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deckview_cache_sweep_errors_total",
			Help: "Per-entry failures during sweeps",
		},
	)
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_conversions_total",
			Help: "Total number of document to PDF conversions",
		},
		[]string{"status"}, // "success", "failed", "timeout", "unavailable"
	)

	ConversionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deckview_conversion_duration_seconds",
			Help:    "Conversion duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	ConversionsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deckview_conversions_in_progress",
			Help: "Number of conversions currently running",
		},
	)

	ConverterBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deckview_converter_breaker_state",
			Help: "Converter circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailRendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_thumbnail_renders_total",
			Help: "Total number of page thumbnail renders",
		},
		[]string{"resolution", "status"},
	)

	ThumbnailRenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deckview_thumbnail_render_duration_seconds",
			Help:    "Page thumbnail render duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"renderer"},
	)
)

// Indexer metrics
var (
	IndexerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_indexer_runs_total",
			Help: "Total number of directory scans",
		},
		[]string{"trigger"}, // "startup", "watcher", "periodic", "manual"
	)

	IndexerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deckview_indexer_last_run_timestamp",
			Help: "Timestamp of the last completed scan",
		},
	)

	IndexerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deckview_indexer_last_run_duration_seconds",
			Help: "Duration of the last scan in seconds",
		},
	)

	IndexerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deckview_indexer_errors_total",
			Help: "Total number of scan errors",
		},
	)

	IndexerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deckview_indexer_running",
			Help: "Whether a scan is currently running (1 = running, 0 = idle)",
		},
	)
)

// Library metrics
var (
	LibraryFilesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deckview_library_files_total",
			Help: "Number of library files by kind",
		},
		[]string{"kind"},
	)

	LibraryFoldersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deckview_library_folders_total",
			Help: "Number of non-empty folders in the library tree",
		},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_watcher_events_total",
			Help: "Total number of relevant filesystem watcher events",
		},
		[]string{"event_type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deckview_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deckview_watcher_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)

	WatcherRescansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_watcher_rescans_total",
			Help: "Rescans triggered by debounced filesystem events",
		},
		[]string{"status"},
	)
)

// Change notification metrics
var (
	HubSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deckview_hub_subscribers",
			Help: "Number of connected change notification subscribers",
		},
	)

	HubEventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckview_hub_events_published_total",
			Help: "Change notifications published",
		},
		[]string{"type"},
	)

	HubEventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deckview_hub_events_dropped_total",
			Help: "Notifications dropped because a subscriber buffer was full",
		},
	)
)

// Memory backpressure metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deckview_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deckview_memory_paused",
			Help: "1 when thumbnail rendering is paused for memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deckview_memory_gc_pauses_total",
			Help: "Times rendering was paused and a GC forced for memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deckview_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
