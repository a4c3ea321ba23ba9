package handlers

import (
	"net/http"
	"runtime"

	"deckview/internal/indexer"
	"deckview/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status     string `json:"status"`
	Ready      bool   `json:"ready"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	ContentDir string `json:"content_dir"`

	ConverterAvailable  bool `json:"libreoffice_available"`
	RasterizerAvailable bool `json:"rasterizer_available"`
	WatcherAvailable    bool `json:"watcher_available"`
	WatcherRunning      bool `json:"watcher_running"`

	Scanning  bool          `json:"scanning"`
	LastScan  string        `json:"lastScan,omitempty"`
	LastError string        `json:"lastError,omitempty"`
	FileStats indexer.Stats `json:"file_stats"`

	Subscribers  int    `json:"subscribers"`
	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports tool availability, watcher state and library stats.
// Missing tools degrade the service but do not make it unhealthy; only an
// incomplete first scan yields 503.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	hs := h.idx.HealthStatus()

	response := HealthResponse{
		Ready:               hs.Ready,
		Version:             startup.Version,
		Uptime:              hs.Uptime,
		ContentDir:          h.idx.Root(),
		ConverterAvailable:  h.converterProbe.available(r.Context()),
		RasterizerAvailable: h.rasterizerProbe.available(r.Context()),
		WatcherAvailable:    h.watcher != nil,
		WatcherRunning:      h.watcher != nil && h.watcher.IsRunning(),
		Scanning:            hs.Scanning,
		LastError:           hs.LastError,
		FileStats:           h.idx.Stats(),
		Subscribers:         h.hub.Subscribers(),
		GoVersion:           runtime.Version(),
		NumGoroutine:        runtime.NumGoroutine(),
	}
	if !hs.LastScan.IsZero() {
		response.LastScan = hs.LastScan.Format("2006-01-02T15:04:05Z07:00")
	}

	switch {
	case !hs.Ready:
		response.Status = statusStarting
	case hs.LastError != "" || !response.ConverterAvailable || !response.RasterizerAvailable:
		response.Status = statusDegraded
	default:
		response.Status = statusHealthy
	}

	statusCode := http.StatusOK
	if !hs.Ready {
		statusCode = http.StatusServiceUnavailable
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		return
	}
	writeJSONStatusCode(w, statusCode, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the first scan has completed
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.idx.IsReady() {
		writeJSONStatusCode(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSONStatusCode(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

// GetVersion returns build information.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, startup.GetBuildInfo())
}
