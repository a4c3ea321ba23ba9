package streaming

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// EventWriter writes a text/event-stream response. Each frame is flushed
// immediately so viewers see changes without waiting on proxy buffers.
type EventWriter struct {
	tw *TimeoutWriter
}

// NewEventWriter sets the event-stream headers and wraps w. The caller must
// Close the writer when the stream ends.
func NewEventWriter(ctx context.Context, w http.ResponseWriter, config TimeoutWriterConfig) *EventWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	return &EventWriter{tw: NewTimeoutWriter(ctx, w, config)}
}

// Data sends one "data:" frame. Multi-line payloads become one data line each.
func (ew *EventWriter) Data(payload string) error {
	var b strings.Builder
	for _, line := range strings.Split(payload, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return ew.write(b.String())
}

// Comment sends a comment frame, used as a heartbeat.
func (ew *EventWriter) Comment(text string) error {
	return ew.write(fmt.Sprintf(": %s\n\n", text))
}

func (ew *EventWriter) write(frame string) error {
	if _, err := ew.tw.Write([]byte(frame)); err != nil {
		return err
	}
	ew.tw.Flush()
	return nil
}

// Done is closed when the client goes away or a write times out.
func (ew *EventWriter) Done() <-chan struct{} {
	return ew.tw.Done()
}

// Close ends the stream.
func (ew *EventWriter) Close() error {
	return ew.tw.Close()
}
