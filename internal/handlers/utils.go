package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"deckview/internal/converter"
	"deckview/internal/fingerprint"
	"deckview/internal/logging"
	"deckview/internal/thumbnail"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatusCode writes v as JSON with the given status code.
func writeJSONStatusCode(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONStatusCode(w, statusCode, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, status, message string) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": status, "message": message})
}

// statusForError maps pipeline errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, converter.ErrUnsupportedFormat),
		errors.Is(err, thumbnail.ErrInvalidPage),
		errors.Is(err, thumbnail.ErrInvalidResolution):
		return http.StatusBadRequest
	case errors.Is(err, fingerprint.ErrSourceUnavailable):
		return http.StatusNotFound
	case errors.Is(err, converter.ErrConversionFailed),
		errors.Is(err, thumbnail.ErrThumbnailFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return statusClientClosed
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// statusClientClosed is logged for requests abandoned by the client.
const statusClientClosed = 499

// writePipelineError logs err and writes the mapped status. Nothing is
// written when the client has already gone.
func (h *Handlers) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	switch {
	case status == statusClientClosed:
		h.log.Debug("%s %s: client went away: %v", r.Method, r.URL.Path, err)
		return
	case status >= 500:
		h.log.Error("%s %s: %v", r.Method, r.URL.Path, err)
	default:
		h.log.Debug("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSONError(w, err.Error(), status)
}
