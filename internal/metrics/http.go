package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPMiddleware wraps an HTTP handler to collect request count, duration
// and in-flight metrics.
func HTTPMiddleware(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		m.RecordHTTP(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code and calls the underlying WriteHeader.
func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write ensures status code is set before writing.
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(w.statusCode)
	}
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker if the underlying ResponseWriter supports it.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
}

// knownPaths are served as-is; anything else collapses to "other" so that
// scanners probing random URLs cannot blow up label cardinality.
var knownPaths = map[string]bool{
	"/":           true,
	"/healthz":    true,
	"/readyz":     true,
	"/metrics":    true,
	"/v1/answer":  true,
	"/v1/plan":    true,
	"/v1/catalog": true,
	"/v1/queries": true,
}

// normalizePath normalizes HTTP paths to reduce cardinality.
//
// Examples:
//   - /v1/answer -> /v1/answer
//   - /v1/catalog/discover/movie -> /v1/catalog/{path}
//   - /wp-login.php -> other
func normalizePath(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if knownPaths[path] {
		return path
	}
	if strings.HasPrefix(path, "/v1/catalog/") {
		return "/v1/catalog/{path}"
	}
	return "other"
}

// statusCode converts an HTTP status code to a metric label.
func statusCode(code int) string {
	switch code {
	case 200, 201, 204, 400, 401, 403, 404, 405, 429, 500, 502, 503, 504:
		return strconv.Itoa(code)
	}

	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	}
	return strconv.Itoa(code)
}
