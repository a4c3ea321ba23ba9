package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deckview/internal/artifacts"
	"deckview/internal/converter"
	"deckview/internal/hub"
	"deckview/internal/indexer"
	"deckview/internal/logging"
	"deckview/internal/thumbnail"
)

// DefaultHeartbeat is the interval between event stream heartbeats.
const DefaultHeartbeat = 30 * time.Second

// PDFProvider is the conversion side of the pipeline.
type PDFProvider interface {
	EnsurePDF(ctx context.Context, src converter.Source) (*converter.Result, error)
	Peek(ctx context.Context, src converter.Source) (converter.State, error)
}

// ThumbnailProvider is the page rendering side of the pipeline.
type ThumbnailProvider interface {
	EnsureThumbnail(ctx context.Context, src converter.Source, page int, res thumbnail.Resolution) (*thumbnail.Result, error)
	PageCountOf(pdf *converter.Result) (int, error)
}

// Checker reports whether an external tool can run.
type Checker interface {
	CheckInstalled(ctx context.Context) (string, error)
}

// WatchStatus reports whether live change notifications are flowing.
type WatchStatus interface {
	IsRunning() bool
}

// Options wires a Handlers. Watcher, Converter and Rasterizer may be nil.
type Options struct {
	Indexer    *indexer.Indexer
	Cache      *artifacts.Cache
	Hub        *hub.Hub
	PDFs       PDFProvider
	Thumbnails ThumbnailProvider
	Watcher    WatchStatus
	Converter  Checker
	Rasterizer Checker
	// Heartbeat defaults to DefaultHeartbeat.
	Heartbeat time.Duration
}

// Handlers serves the library API.
type Handlers struct {
	idx       *indexer.Indexer
	cache     *artifacts.Cache
	hub       *hub.Hub
	pdfs      PDFProvider
	thumbs    ThumbnailProvider
	watcher   WatchStatus
	heartbeat time.Duration
	log       logging.Logger

	converterProbe  *probe
	rasterizerProbe *probe
}

// New creates Handlers.
func New(opts Options) *Handlers {
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Handlers{
		idx:             opts.Indexer,
		cache:           opts.Cache,
		hub:             opts.Hub,
		pdfs:            opts.PDFs,
		thumbs:          opts.Thumbnails,
		watcher:         opts.Watcher,
		heartbeat:       heartbeat,
		log:             logging.Component("handlers"),
		converterProbe:  newProbe(opts.Converter),
		rasterizerProbe: newProbe(opts.Rasterizer),
	}
}

// Register adds every route to r.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/cache/stats", h.GetCacheStats).Methods(http.MethodGet)

	lib := api.PathPrefix("/library").Subrouter()
	lib.HandleFunc("/tree", h.GetTree).Methods(http.MethodGet)
	lib.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	lib.HandleFunc("/events", h.StreamEvents).Methods(http.MethodGet)
	lib.HandleFunc("/reindex", h.TriggerReindex).Methods(http.MethodPost)
	lib.HandleFunc("/files/{id}", h.GetFileInfo).Methods(http.MethodGet)
	lib.HandleFunc("/files/{id}/pdf", h.GetPDF).Methods(http.MethodGet, http.MethodHead)
	lib.HandleFunc("/files/{id}/thumbnails/{page:[0-9]+}", h.GetThumbnail).Methods(http.MethodGet, http.MethodHead)
	lib.HandleFunc("/files/{id}/content", h.GetContent).Methods(http.MethodGet)
	lib.HandleFunc("/files/{id}/content", h.PutContent).Methods(http.MethodPut)
}

// probeTTL bounds how often an external tool is started for health checks.
const probeTTL = time.Minute

// probe caches the result of a Checker.
type probe struct {
	checker Checker

	mu      sync.Mutex
	checked time.Time
	version string
	err     error
}

func newProbe(c Checker) *probe {
	if c == nil {
		return nil
	}
	return &probe{checker: c}
}

// available reports the cached check result, refreshing it when stale.
// A nil probe is never available.
func (p *probe) available(ctx context.Context) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.checked) > probeTTL {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		p.version, p.err = p.checker.CheckInstalled(ctx)
		cancel()
		p.checked = time.Now()
	}
	return p.err == nil
}

// MetricsHandler serves the Prometheus registry. It is mounted on the
// separate metrics port, not on the application router.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
