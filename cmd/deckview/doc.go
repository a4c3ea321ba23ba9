// Package main provides the deckview command.
//
// deckview serves a content directory of presentations, documents, PDFs and
// Markdown notes to the browser. Office documents are converted to PDF with
// LibreOffice the first time they are opened, page thumbnails are rendered
// from those PDFs, and both are kept in an on-disk artifact cache keyed by a
// fingerprint of the source file.
//
// # Application Lifecycle
//
//  1. Configuration: defaults, an optional TOML file, environment variables
//     and finally command-line flags
//  2. Memory: GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
//  3. Storage: the SQLite artifact ledger and the cache directory
//  4. Pipeline: the conversion gate (soffice), the thumbnail gate (libvips or
//     pdftoppm), the directory index and the filesystem watcher
//  5. HTTP: the application server and, when enabled, the metrics server
//  6. Shutdown: SIGINT/SIGTERM stop the watcher, close event streams, drain
//     the servers and kill running render processes
//
// # Background Services
//
//   - Indexer: initial scan plus periodic safety-net rescans
//   - Watcher: debounced rescans on filesystem changes, published to
//     connected browsers
//   - Cache maintenance: enforces CACHE_MAX_SIZE every CACHE_SWEEP_INTERVAL
//   - Metrics collector: library and cache gauges every minute
//
// # Commands
//
//	deckview [directory]         serve directory (default: current directory)
//	deckview cache stats         show cached artifact counts and sizes
//	deckview cache sweep [dir]   drop orphaned artifacts and enforce the limit
//	deckview cache clear --yes   remove every cached artifact
//	deckview version             print build information
//
// # Flags
//
//	-p, --port      listen port (DECKVIEW_PORT, default 8000)
//	--host          bind address (DECKVIEW_HOST, default 127.0.0.1)
//	--no-watch      disable the filesystem watcher and live updates
//	--data-dir      database and cache location (DECKVIEW_DATA_DIR)
//	--config        TOML config file (DECKVIEW_CONFIG)
//	--log-level     debug, info, warn or error (LOG_LEVEL)
//
// See the startup package for the complete list of environment variables.
package main
