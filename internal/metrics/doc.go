// Package metrics provides Prometheus instrumentation for deckview.
//
// All metrics are registered at package init through promauto and are
// prefixed with "deckview_". They are exposed on the metrics port
// (METRICS_PORT, default 9090) at /metrics.
//
// # Metric Categories
//
//   - HTTP: request counts, durations and in-flight requests
//   - Ledger: SQLite query counts and durations, database file sizes
//   - Filesystem: operation latency per volume, NFS retry behavior
//   - Cache: lookups by result, joined in-flight jobs, size, evictions, sweeps
//   - Conversion: conversions by outcome, duration, running jobs, breaker state
//   - Thumbnail: renders by resolution and outcome, render duration
//   - Indexer and library: scans by trigger, last run, files by kind
//   - Watcher: relevant events, errors, watched directories, rescans
//   - Hub: subscribers, published and dropped notifications
//
// # Collector
//
// Gauges that summarize state (library size, cache size, database file
// sizes) are sampled by a Collector on an interval:
//
//	collector := metrics.NewCollector(provider, dbPath, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// Call InitializeMetrics once at startup so labelled series exist before
// their first observation.
package metrics
