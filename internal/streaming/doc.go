/*
Package streaming writes response bodies to HTTP clients with timeout
protection.

A viewer that stops reading (a closed laptop lid, a dead proxy) would otherwise
hold a handler goroutine and an open file until the TCP stack gives up.
TimeoutWriter bounds every write, optionally bounds idle time and total
duration, and reports why a stream ended through sentinel errors:

	err := streaming.StreamWithTimeout(r.Context(), w, f, streaming.DefaultTimeoutWriterConfig())
	if errors.Is(err, streaming.ErrClientGone) {
		return
	}

EventWriter builds the change-notification stream on top of TimeoutWriter. It
sets the text/event-stream headers, frames "data:" and comment lines, and
flushes after every frame:

	ew := streaming.NewEventWriter(r.Context(), w, streaming.EventStreamConfig())
	defer ew.Close()
	ew.Data("connected")

Event streams use EventStreamConfig, which has no idle or total deadline;
heartbeats keep intermediaries from closing quiet connections.
*/
package streaming
