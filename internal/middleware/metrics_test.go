package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"deckview/internal/metrics"
)

func TestDefaultMetricsConfig(t *testing.T) {
	config := DefaultMetricsConfig()

	want := map[string]bool{"/metrics": true, "/health": true, "/healthz": true, "/livez": true, "/readyz": true}
	for _, p := range config.SkipPaths {
		delete(want, p)
	}
	if len(want) != 0 {
		t.Errorf("missing default skip paths: %v", want)
	}
}

func TestMetricsResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	mrw := newMetricsResponseWriter(w)

	if mrw.statusCode != http.StatusOK {
		t.Errorf("Expected default status code 200, got %d", mrw.statusCode)
	}

	mrw.WriteHeader(http.StatusBadGateway)
	mrw.WriteHeader(http.StatusOK)
	if mrw.statusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", mrw.statusCode)
	}

	mrw.Flush()
	if !w.Flushed {
		t.Error("Flush was not forwarded")
	}
	if mrw.Unwrap() != w {
		t.Error("Unwrap should return the underlying writer")
	}
}

func TestMetricsMiddlewareRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Metrics(DefaultMetricsConfig()))
	router.HandleFunc("/api/library/files/{id}/thumbnails/{page}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/library/files/{id}/thumbnails/{page}", "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"aaa", "bbb", "ccc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/library/files/"+id+"/thumbnails/2", http.NoBody)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("requests recorded under template = %v, want 3", got)
	}
}

func TestMetricsMiddlewareSkipPaths(t *testing.T) {
	called := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	})
	wrapped := Metrics(DefaultMetricsConfig())(handler)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/health", "200")
	before := testutil.ToFloat64(counter)

	for _, p := range []string{"/health", "/metrics", "/readyz"} {
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, http.NoBody))
	}

	if called != 3 {
		t.Errorf("handler called %d times, want 3", called)
	}
	if testutil.ToFloat64(counter) != before {
		t.Error("skipped paths must not be recorded")
	}
}

func TestMetricsMiddlewareEventStream(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/library/events", http.NoBody)
	Metrics(DefaultMetricsConfig())(handler).ServeHTTP(w, req)

	if !w.Flushed {
		t.Error("event stream flush did not reach the client")
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/", "/"},
		{"/health", "/health"},
		{"/api/library/tree", "/api/library/tree"},
		{"/api/library/files/abc123", "/api/library/files/{id}"},
		{"/api/library/files/abc123/pdf", "/api/library/files/{id}/pdf"},
		{"/api/library/files/abc123/thumbnails/7", "/api/library/files/{id}/thumbnails/{page}"},
		{"/api/cache/stats", "/api/cache/stats"},
		{"/a/b/c/d/e/f/g/h", "/a/b/c/d/e/{path}"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.expected {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}
