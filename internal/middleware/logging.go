package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"deckview/internal/logging"
)

// DefaultServiceName identifies the server in access log lines.
const DefaultServiceName = "DeckView/1.0"

// DefaultSlowThreshold is the duration above which a completed request is
// logged as a warning. First-time conversions routinely take seconds.
const DefaultSlowThreshold = 10 * time.Second

var accessLog = logging.Component("access")

// Request classes used to decide what gets logged.
const (
	classAPI       = "api"
	classHealth    = "health"
	classThumbnail = "thumbnail"
	classPDF       = "pdf"
	classEvents    = "events"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// LoggingConfig holds configuration for the access log middleware.
type LoggingConfig struct {
	ServiceName string
	// SkipPaths are path prefixes that are never logged.
	SkipPaths []string
	// LogThumbnails logs page image requests. A deck view fetches one per
	// page, so they are off by default.
	LogThumbnails   bool
	LogHealthChecks bool
	// SlowThreshold raises the log level of slow requests (0 disables).
	// Event streams are exempt.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig returns the default access log configuration.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		ServiceName:     DefaultServiceName,
		SkipPaths:       []string{},
		LogThumbnails:   false,
		LogHealthChecks: true,
		SlowThreshold:   DefaultSlowThreshold,
	}
}

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// classify maps a request path onto a request class.
func classify(path string) string {
	switch {
	case healthCheckPaths[path]:
		return classHealth
	case path == "/api/library/events":
		return classEvents
	case strings.HasPrefix(path, "/api/library/files/") && strings.Contains(path, "/thumbnails/"):
		return classThumbnail
	case strings.HasPrefix(path, "/api/library/files/") && strings.HasSuffix(path, "/pdf"):
		return classPDF
	default:
		return classAPI
	}
}

// sanitizeLogField removes control characters that could forge log lines or
// inject terminal escapes. Newlines become spaces.
func sanitizeLogField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteRune(' ')
		case r == '\x00', r == '\x1b':
			continue
		case r < 0x20 && r != '\t':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Logger returns access log middleware. Each completed request produces one
// line; server errors log at error level and slow requests at warn level.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := classify(r.URL.Path)
			if shouldSkip(r.URL.Path, class, config) {
				next.ServeHTTP(w, r)
				return
			}

			if class == classEvents {
				accessLog.Debug("Event stream opened by %s", sanitizeLogField(getClientIP(r)))
			}

			start := time.Now()
			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			logRequest(config, class, r, wrapped, time.Since(start))
		})
	}
}

// logRequest writes one access line:
//
//	date time service client method path query status bytes ms encoding agent
func logRequest(config LoggingConfig, class string, r *http.Request, rw *responseWriter, duration time.Duration) {
	now := time.Now().UTC()

	query := sanitizeLogField(r.URL.RawQuery)
	if query == "" {
		query = "-"
	}
	encoding := rw.Header().Get("Content-Encoding")
	if encoding == "" {
		encoding = "-"
	}
	agent := sanitizeLogField(r.Header.Get("User-Agent"))
	if agent == "" {
		agent = "-"
	} else {
		agent = quoteField(agent)
	}

	line := fmt.Sprintf("%s %s %s %s %s %s %s %d %d %d %s %s",
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		config.ServiceName,
		sanitizeLogField(getClientIP(r)),
		sanitizeLogField(r.Method),
		sanitizeLogField(r.URL.Path),
		query,
		rw.statusCode,
		rw.bytesWritten,
		duration.Milliseconds(),
		encoding,
		agent,
	)

	switch {
	case rw.statusCode >= http.StatusInternalServerError:
		accessLog.Error("%s", line)
	case config.SlowThreshold > 0 && class != classEvents && duration > config.SlowThreshold:
		accessLog.Warn("%s (slow)", line)
	default:
		accessLog.Info("%s", line)
	}
}

func shouldSkip(path, class string, config LoggingConfig) bool {
	for _, prefix := range config.SkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	switch class {
	case classHealth:
		return !config.LogHealthChecks
	case classThumbnail:
		return !config.LogThumbnails
	}
	return false
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// quoteField quotes values that contain whitespace or quotes, doubling any
// embedded quotes.
func quoteField(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}
