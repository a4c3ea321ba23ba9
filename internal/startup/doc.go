// Package startup handles configuration loading and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] layers four sources, later ones winning:
//
//  1. Built-in defaults ([DefaultConfig])
//  2. A TOML file named by --config or DECKVIEW_CONFIG
//  3. Environment variables
//  4. Command-line flags ([Overrides])
//
// Supported environment variables:
//
//   - DECKVIEW_CONTENT_DIR, DECKVIEW_DATA_DIR (default: ~/.deckview)
//   - DECKVIEW_HOST (default: 127.0.0.1), DECKVIEW_PORT (default: 8000)
//   - METRICS_PORT (default: 9090), METRICS_ENABLED (default: true)
//   - DECKVIEW_WATCH (default: true)
//   - LIBREOFFICE_PATH (default: soffice), CONVERSION_TIMEOUT (default: 120s), CONVERSION_WORKERS
//   - THUMBNAIL_TIMEOUT (default: 30s), THUMBNAIL_RENDERER (vips or pdftoppm), THUMBNAIL_FORMAT (png or jpeg), THUMBNAIL_WORKERS
//   - CACHE_FAILURE_GRACE (default: 30s), CACHE_MAX_SIZE (default: 2GiB), CACHE_SWEEP_INTERVAL (default: 1h)
//   - INDEX_INTERVAL (default: 30m), INDEX_WORKERS
//   - WATCH_DEBOUNCE (default: 500ms), WATCH_MIN_INTERVAL (default: 1s)
//   - FINGERPRINT_CONTENT_HASH, FINGERPRINT_CONTENT_HASH_MAX
//   - LOG_LEVEL, LOG_THUMBNAILS, LOG_HEALTH_CHECKS
//
// Sizes accept binary and decimal suffixes, see [ParseBytes].
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// [LogBanner], [LogConfig] and the Log*Init helpers print a sectioned
// startup report; [LogShutdownInitiated] and friends do the same on exit.
package startup
