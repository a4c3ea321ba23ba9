package handlers

import (
	"errors"
	"net/http"
	"time"

	"deckview/internal/streaming"
)

// StreamEvents pushes change notifications to the client as server-sent
// events: "connected" once, then one frame per event and a heartbeat
// comment whenever the stream is quiet.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.watcher == nil || !h.watcher.IsRunning() {
		writeJSONError(w, "filesystem watcher is not running", http.StatusServiceUnavailable)
		return
	}

	sub := h.hub.Subscribe(r.Context())
	defer sub.Close()

	ew := streaming.NewEventWriter(r.Context(), w, streaming.EventStreamConfig())
	defer ew.Close()

	if err := ew.Data("connected"); err != nil {
		return
	}
	h.log.Debug("Event stream %s opened", sub.ID)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		var err error
		select {
		case e, ok := <-sub.Events():
			if !ok {
				h.log.Debug("Event stream %s closed by hub", sub.ID)
				return
			}
			err = ew.Data(e.Type)
			heartbeat.Reset(h.heartbeat)
		case <-heartbeat.C:
			err = ew.Comment("heartbeat")
		case <-ew.Done():
			return
		}

		if err != nil {
			if !errors.Is(err, streaming.ErrClientGone) {
				h.log.Debug("Event stream %s ended: %v", sub.ID, err)
			}
			return
		}
	}
}
