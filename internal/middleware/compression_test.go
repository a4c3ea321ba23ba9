package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDefaultCompressionConfig(t *testing.T) {
	config := DefaultCompressionConfig()

	if config.MinSize != 1024 {
		t.Errorf("Expected MinSize to be 1024, got %d", config.MinSize)
	}
	if config.Level != gzip.DefaultCompression {
		t.Errorf("Expected Level to be DefaultCompression (%d), got %d", gzip.DefaultCompression, config.Level)
	}

	types := map[string]bool{}
	for _, ct := range config.CompressibleTypes {
		types[ct] = true
	}
	for _, want := range []string{"application/json", "text/markdown", "text/html"} {
		if !types[want] {
			t.Errorf("Expected %s in CompressibleTypes", want)
		}
	}
	for _, never := range []string{"application/pdf", "image/png", "image/jpeg", "text/event-stream"} {
		if types[never] {
			t.Errorf("%s must not be compressed", never)
		}
	}
}

func TestCompressionMiddleware(t *testing.T) {
	tests := []struct {
		name              string
		body              string
		contentType       string
		status            int
		reqHeaders        map[string]string
		expectCompression bool
	}{
		{
			name:              "compresses large JSON",
			body:              strings.Repeat(`{"name":"deck.pptx"}`, 200),
			contentType:       "application/json",
			reqHeaders:        map[string]string{"Accept-Encoding": "gzip"},
			expectCompression: true,
		},
		{
			name:              "compresses markdown",
			body:              strings.Repeat("# Slide\n\n- point\n", 200),
			contentType:       "text/markdown; charset=utf-8",
			reqHeaders:        map[string]string{"Accept-Encoding": "gzip"},
			expectCompression: true,
		},
		{
			name:        "small responses stay plain",
			body:        `{"ok":true}`,
			contentType: "application/json",
			reqHeaders:  map[string]string{"Accept-Encoding": "gzip"},
		},
		{
			name:        "PDFs stay plain",
			body:        strings.Repeat("%PDF", 1000),
			contentType: "application/pdf",
			reqHeaders:  map[string]string{"Accept-Encoding": "gzip"},
		},
		{
			name:        "client without gzip",
			body:        strings.Repeat("data", 500),
			contentType: "application/json",
		},
		{
			name:        "ranged requests bypass",
			body:        strings.Repeat("data", 500),
			contentType: "application/json",
			reqHeaders:  map[string]string{"Accept-Encoding": "gzip", "Range": "bytes=0-99"},
		},
		{
			name:        "event streams bypass",
			body:        strings.Repeat("data: x\n\n", 500),
			contentType: "text/event-stream",
			reqHeaders:  map[string]string{"Accept-Encoding": "gzip", "Accept": "text/event-stream"},
		},
		{
			name:        "partial content stays plain",
			body:        strings.Repeat("data", 500),
			contentType: "application/json",
			status:      http.StatusPartialContent,
			reqHeaders:  map[string]string{"Accept-Encoding": "gzip"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := tt.status
			if status == 0 {
				status = http.StatusOK
			}
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(status)
				_, _ = w.Write([]byte(tt.body))
			})

			req := httptest.NewRequest(http.MethodGet, "/api/library/tree", http.NoBody)
			for k, v := range tt.reqHeaders {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			Compression(DefaultCompressionConfig())(handler).ServeHTTP(w, req)

			if w.Code != status {
				t.Errorf("Expected status %d, got %d", status, w.Code)
			}

			compressed := w.Header().Get("Content-Encoding") == "gzip"
			if compressed != tt.expectCompression {
				t.Fatalf("compressed = %v, want %v", compressed, tt.expectCompression)
			}

			got := w.Body.Bytes()
			if compressed {
				gr, err := gzip.NewReader(w.Body)
				if err != nil {
					t.Fatalf("Failed to create gzip reader: %v", err)
				}
				defer gr.Close()
				if got, err = io.ReadAll(gr); err != nil {
					t.Fatalf("Failed to decompress: %v", err)
				}
			}
			if string(got) != tt.body {
				t.Error("body does not round-trip")
			}
		})
	}
}

func TestGzipResponseWriterBuffering(t *testing.T) {
	w := httptest.NewRecorder()
	grw := newGzipResponseWriter(w, DefaultCompressionConfig())

	small := []byte("small")
	n, err := grw.Write(small)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != len(small) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(small), n)
	}
	if !bytes.Equal(grw.buffer, small) {
		t.Error("small writes should be buffered")
	}
	if w.Body.Len() != 0 {
		t.Error("nothing should reach the client before the decision")
	}

	if err := grw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if w.Body.String() != "small" {
		t.Errorf("Close should flush the buffer, got %q", w.Body.String())
	}
}

func TestGzipResponseWriterFlush(t *testing.T) {
	w := httptest.NewRecorder()
	grw := newGzipResponseWriter(w, DefaultCompressionConfig())

	_, _ = grw.Write([]byte("data: connected\n\n"))
	grw.Flush()

	if !w.Flushed {
		t.Error("Flush was not forwarded")
	}
	if w.Body.String() != "data: connected\n\n" {
		t.Errorf("body = %q", w.Body.String())
	}
	_ = grw.Close()
}

func TestCompressionWithMultipleWrites(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 50; i++ {
			_, _ = w.Write([]byte(strings.Repeat(`{"a":1}`, 10)))
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/library/tree", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	Compression(DefaultCompressionConfig())(handler).ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Error("Expected response to be compressed")
	}
}

func TestAcceptsGzip(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"gzip", true},
		{"deflate, gzip;q=0.8", true},
		{"GZIP", true},
		{"*", true},
		{"gzip;q=0", false},
		{"br, deflate", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := acceptsGzip(tt.header); got != tt.want {
			t.Errorf("acceptsGzip(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestCompressionSkipsHead(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodHead, "/health", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	Compression(DefaultCompressionConfig())(handler).ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "" {
		t.Error("HEAD responses must not be encoded")
	}
}

func TestCompressionLevels(t *testing.T) {
	body := strings.Repeat(`{"name":"quarterly-review.pptx","kind":"slide-deck"}`, 100)
	for _, level := range []int{gzip.BestSpeed, gzip.BestCompression} {
		config := DefaultCompressionConfig()
		config.Level = level

		handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		})
		req := httptest.NewRequest(http.MethodGet, "/api/library/tree", http.NoBody)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		Compression(config)(handler).ServeHTTP(w, req)

		gr, err := gzip.NewReader(w.Body)
		if err != nil {
			t.Fatalf("level %d: %v", level, err)
		}
		got, err := io.ReadAll(gr)
		if err != nil || string(got) != body {
			t.Errorf("level %d: body does not round-trip (err %v)", level, err)
		}
	}
}

func BenchmarkCompressionMiddleware(b *testing.B) {
	body := []byte(strings.Repeat(`{"name":"deck.pptx"}`, 200))
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
	wrapped := Compression(DefaultCompressionConfig())(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/library/tree", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapped.ServeHTTP(httptest.NewRecorder(), req)
	}
}
