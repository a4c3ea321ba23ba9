package streaming

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// blockingWriter never returns from Write until released.
type blockingWriter struct {
	header  http.Header
	release chan struct{}
}

func newBlockingWriter() *blockingWriter {
	return &blockingWriter{header: http.Header{}, release: make(chan struct{})}
}

func (b *blockingWriter) Header() http.Header { return b.header }
func (b *blockingWriter) WriteHeader(int)     {}
func (b *blockingWriter) Write(p []byte) (int, error) {
	<-b.release
	return len(p), nil
}

func TestDefaultTimeoutWriterConfig(t *testing.T) {
	config := DefaultTimeoutWriterConfig()

	if config.WriteTimeout != 30*time.Second {
		t.Errorf("Expected WriteTimeout=30s, got %v", config.WriteTimeout)
	}
	if config.IdleTimeout != 60*time.Second {
		t.Errorf("Expected IdleTimeout=60s, got %v", config.IdleTimeout)
	}
	if config.MaxDuration != 0 {
		t.Errorf("Expected MaxDuration=0 (unlimited), got %v", config.MaxDuration)
	}
	if config.ChunkSize != 64*1024 {
		t.Errorf("Expected ChunkSize=64KB, got %d", config.ChunkSize)
	}
}

func TestEventStreamConfig(t *testing.T) {
	config := EventStreamConfig()

	if config.IdleTimeout != 0 || config.MaxDuration != 0 {
		t.Errorf("event streams must not idle out: %+v", config)
	}
	if config.WriteTimeout <= 0 {
		t.Errorf("Expected a positive WriteTimeout, got %v", config.WriteTimeout)
	}
}

func TestTimeoutWriterWrite(t *testing.T) {
	w := httptest.NewRecorder()
	tw := NewTimeoutWriter(context.Background(), w, DefaultTimeoutWriterConfig())
	defer tw.Close()

	data := []byte("test data")
	n, err := tw.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(data), n)
	}

	bytesWritten, _ := tw.Stats()
	if bytesWritten != int64(len(data)) {
		t.Errorf("Expected bytes written=%d, got %d", len(data), bytesWritten)
	}
	if w.Body.String() != "test data" {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestTimeoutWriterChunkedWrites(t *testing.T) {
	w := httptest.NewRecorder()
	config := DefaultTimeoutWriterConfig()
	config.ChunkSize = 4

	tw := NewTimeoutWriter(context.Background(), w, config)
	defer tw.Close()

	data := bytes.Repeat([]byte("x"), 10)
	n, err := tw.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 10 {
		t.Errorf("Expected 10 bytes, wrote %d", n)
	}
	if w.Body.Len() != 10 {
		t.Errorf("Expected 10 bytes in recorder, got %d", w.Body.Len())
	}
	if !w.Flushed {
		t.Error("Expected chunked write to flush")
	}
}

func TestTimeoutWriterClose(t *testing.T) {
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), DefaultTimeoutWriterConfig())

	if err := tw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if _, err := tw.Write([]byte("late")); !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("Expected ErrStreamCanceled after Close, got %v", err)
	}

	select {
	case <-tw.Done():
	default:
		t.Error("Done should be closed after Close")
	}
}

func TestTimeoutWriterClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tw := NewTimeoutWriter(ctx, httptest.NewRecorder(), DefaultTimeoutWriterConfig())
	defer tw.Close()

	cancel()

	if _, err := tw.Write([]byte("data")); !errors.Is(err, ErrClientGone) {
		t.Errorf("Expected ErrClientGone, got %v", err)
	}
}

func TestTimeoutWriterWriteTimeout(t *testing.T) {
	bw := newBlockingWriter()
	defer close(bw.release)

	config := TimeoutWriterConfig{WriteTimeout: 20 * time.Millisecond}
	tw := NewTimeoutWriter(context.Background(), bw, config)
	defer tw.Close()

	start := time.Now()
	if _, err := tw.Write([]byte("stuck")); !errors.Is(err, ErrWriteTimeout) {
		t.Fatalf("Expected ErrWriteTimeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Write did not give up promptly")
	}

	// The writer is unusable once a write has timed out.
	if _, err := tw.Write([]byte("again")); !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("Expected ErrWriteTimeout on later write, got %v", err)
	}
}

func TestTimeoutWriterMaxDuration(t *testing.T) {
	config := TimeoutWriterConfig{WriteTimeout: time.Second, MaxDuration: time.Nanosecond}
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), config)
	defer tw.Close()

	time.Sleep(time.Millisecond)

	if _, err := tw.Write([]byte("data")); !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("Expected ErrWriteTimeout, got %v", err)
	}
}

func TestTimeoutWriterIdleTimeout(t *testing.T) {
	config := TimeoutWriterConfig{WriteTimeout: time.Second, IdleTimeout: 20 * time.Millisecond}
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), config)
	defer tw.Close()

	select {
	case <-tw.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("idle writer was not canceled")
	}

	if _, err := tw.Write([]byte("data")); !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("Expected ErrStreamCanceled, got %v", err)
	}
}

func TestStreamWithTimeout(t *testing.T) {
	w := httptest.NewRecorder()
	body := strings.Repeat("# Slide\n", 20000)

	err := StreamWithTimeout(context.Background(), w, strings.NewReader(body), DefaultTimeoutWriterConfig())
	if err != nil {
		t.Fatalf("StreamWithTimeout failed: %v", err)
	}
	if w.Body.String() != body {
		t.Errorf("Body length = %d, want %d", w.Body.Len(), len(body))
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	errs := []error{ErrWriteTimeout, ErrClientGone, ErrStreamCanceled}
	for i := range errs {
		for j := range errs {
			if i != j && errors.Is(errs[i], errs[j]) {
				t.Errorf("%v should not match %v", errs[i], errs[j])
			}
		}
	}
}
