package streaming

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestEventWriterHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	ew := NewEventWriter(context.Background(), w, EventStreamConfig())
	defer ew.Close()

	tests := map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"X-Accel-Buffering": "no",
	}
	for k, want := range tests {
		if got := w.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if w.Code != 200 {
		t.Errorf("status = %d", w.Code)
	}
}

func TestEventWriterFrames(t *testing.T) {
	tests := []struct {
		name  string
		write func(*EventWriter) error
		want  string
	}{
		{"data", func(ew *EventWriter) error { return ew.Data("connected") }, "data: connected\n\n"},
		{"multiline data", func(ew *EventWriter) error { return ew.Data("a\nb") }, "data: a\ndata: b\n\n"},
		{"comment", func(ew *EventWriter) error { return ew.Comment("heartbeat") }, ": heartbeat\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ew := NewEventWriter(context.Background(), w, EventStreamConfig())
			defer ew.Close()

			if err := tt.write(ew); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			if got := w.Body.String(); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
			if !w.Flushed {
				t.Error("frame was not flushed")
			}
		})
	}
}

func TestEventWriterAfterClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ew := NewEventWriter(ctx, httptest.NewRecorder(), EventStreamConfig())
	defer ew.Close()

	cancel()
	<-ew.Done()

	if err := ew.Data("tree_changed"); !errors.Is(err, ErrClientGone) {
		t.Errorf("Expected ErrClientGone, got %v", err)
	}
}
