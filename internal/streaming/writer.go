package streaming

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"deckview/internal/logging"
)

var log = logging.Component("streaming")

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates a single write, or the whole stream, ran past its deadline.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates the request context was canceled before the stream finished.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled indicates the writer was closed or went idle.
	ErrStreamCanceled = errors.New("stream canceled")
)

// TimeoutWriterConfig configures the timeout writer behavior
type TimeoutWriterConfig struct {
	// WriteTimeout bounds a single write to the client
	WriteTimeout time.Duration
	// IdleTimeout is the maximum time between successful writes (0 = never idle out)
	IdleTimeout time.Duration
	// MaxDuration is the absolute maximum streaming duration (0 = unlimited)
	MaxDuration time.Duration
	// ChunkSize splits large writes (0 = write as received)
	ChunkSize int
}

// DefaultTimeoutWriterConfig suits file downloads: PDFs, thumbnails, Markdown.
func DefaultTimeoutWriterConfig() TimeoutWriterConfig {
	return TimeoutWriterConfig{
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ChunkSize:    64 * 1024,
	}
}

// EventStreamConfig suits long-lived event streams, which are quiet between
// heartbeats and must never hit an idle or total deadline.
func EventStreamConfig() TimeoutWriterConfig {
	return TimeoutWriterConfig{
		WriteTimeout: 10 * time.Second,
	}
}

// TimeoutWriter wraps an http.ResponseWriter so a stalled client cannot pin
// a handler goroutine forever.
type TimeoutWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	cancel  context.CancelCauseFunc
	config  TimeoutWriterConfig

	mu           sync.Mutex
	start        time.Time
	lastWrite    time.Time
	bytesWritten int64
	closed       bool
}

// NewTimeoutWriter creates a new timeout-protected writer
func NewTimeoutWriter(ctx context.Context, w http.ResponseWriter, config TimeoutWriterConfig) *TimeoutWriter {
	writerCtx, cancel := context.WithCancelCause(ctx)
	now := time.Now()

	tw := &TimeoutWriter{
		w:         w,
		ctx:       writerCtx,
		cancel:    cancel,
		config:    config,
		start:     now,
		lastWrite: now,
	}
	if f, ok := w.(http.Flusher); ok {
		tw.flusher = f
	}

	if config.IdleTimeout > 0 {
		go tw.idleChecker()
	}
	return tw
}

// Write implements io.Writer with timeout protection
func (tw *TimeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	closed := tw.closed
	tw.mu.Unlock()
	if closed {
		return 0, ErrStreamCanceled
	}

	if err := tw.ctx.Err(); err != nil {
		return 0, tw.contextError()
	}

	if tw.config.MaxDuration > 0 && time.Since(tw.start) > tw.config.MaxDuration {
		return 0, ErrWriteTimeout
	}

	size := tw.config.ChunkSize
	if size <= 0 || len(p) <= size {
		return tw.writeWithTimeout(p)
	}

	total := 0
	for len(p) > 0 {
		if tw.ctx.Err() != nil {
			return total, tw.contextError()
		}
		chunk := min(size, len(p))
		n, err := tw.writeWithTimeout(p[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		p = p[chunk:]
		tw.Flush()
	}
	return total, nil
}

// Flush pushes buffered bytes to the client when the underlying writer supports it.
func (tw *TimeoutWriter) Flush() {
	if tw.flusher != nil {
		tw.flusher.Flush()
	}
}

func (tw *TimeoutWriter) writeWithTimeout(p []byte) (int, error) {
	type writeResult struct {
		n   int
		err error
	}
	resultCh := make(chan writeResult, 1)

	go func() {
		n, err := tw.w.Write(p)
		resultCh <- writeResult{n, err}
	}()

	timeout := tw.config.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultTimeoutWriterConfig().WriteTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if res.err == nil {
			tw.mu.Lock()
			tw.lastWrite = time.Now()
			tw.bytesWritten += int64(res.n)
			tw.mu.Unlock()
		}
		return res.n, res.err

	case <-timer.C:
		tw.cancel(ErrWriteTimeout)
		return 0, ErrWriteTimeout

	case <-tw.ctx.Done():
		return 0, tw.contextError()
	}
}

func (tw *TimeoutWriter) idleChecker() {
	ticker := time.NewTicker(tw.config.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tw.mu.Lock()
			idle := time.Since(tw.lastWrite)
			closed := tw.closed
			tw.mu.Unlock()

			if closed {
				return
			}
			if idle > tw.config.IdleTimeout {
				log.Warn("Stream idle timeout exceeded: %v", idle)
				tw.cancel(ErrStreamCanceled)
				return
			}

		case <-tw.ctx.Done():
			return
		}
	}
}

func (tw *TimeoutWriter) contextError() error {
	cause := context.Cause(tw.ctx)
	if errors.Is(cause, ErrWriteTimeout) || errors.Is(cause, ErrStreamCanceled) {
		return cause
	}
	return ErrClientGone
}

// Done is closed when the stream ends for any reason.
func (tw *TimeoutWriter) Done() <-chan struct{} {
	return tw.ctx.Done()
}

// Close marks the writer as closed. Safe to call more than once.
func (tw *TimeoutWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return nil
	}
	tw.closed = true
	tw.cancel(ErrStreamCanceled)
	return nil
}

// Stats returns bytes written and time since the writer was created.
func (tw *TimeoutWriter) Stats() (bytesWritten int64, duration time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten, time.Since(tw.start)
}

// StreamWithTimeout copies r to the response with timeout protection.
// Headers must already be set by the caller.
func StreamWithTimeout(ctx context.Context, w http.ResponseWriter, r io.Reader, config TimeoutWriterConfig) error {
	tw := NewTimeoutWriter(ctx, w, config)
	defer func() {
		if err := tw.Close(); err != nil {
			log.Warn("Failed to close timeout writer: %v", err)
		}
	}()

	w.Header().Set("X-Content-Type-Options", "nosniff")

	_, err := io.Copy(tw, r)

	bytesWritten, duration := tw.Stats()
	log.Debug("Stream completed: %d bytes in %v", bytesWritten, duration)

	return err
}
