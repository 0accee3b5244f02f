package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ResponseMeta contains metadata for API responses.
type ResponseMeta struct {
	RequestID string `json:"request_id"`
	LatencyMS int64  `json:"latency_ms"`
	Timestamp string `json:"timestamp"`
}

// WrappedResponse wraps API responses with data and metadata.
type WrappedResponse struct {
	Data json.RawMessage `json:"data"`
	Meta ResponseMeta    `json:"meta"`
}

// responseWrapper captures response body for wrapping.
type responseWrapper struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	wroteBody  bool
}

func newResponseWrapper(w http.ResponseWriter) *responseWrapper {
	return &responseWrapper{
		ResponseWriter: w,
		body:           &bytes.Buffer{},
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
}

func (rw *responseWrapper) Write(b []byte) (int, error) {
	rw.wroteBody = true
	return rw.body.Write(b)
}

// unwrapped lists /v1 paths whose bodies are passed through as is.
var unwrapped = map[string]bool{
	"/v1/version": true,
	"/v1/queries": true,
}

// ResponseWrapperMiddleware wraps successful JSON responses of /v1/*
// endpoints in a data/meta envelope and tags every response with a
// request id.
func ResponseWrapperMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") || unwrapped[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		rw := newResponseWrapper(w)
		next.ServeHTTP(rw, r)

		body := rw.body.Bytes()
		if !rw.wroteBody || rw.statusCode >= 400 || !json.Valid(body) {
			w.WriteHeader(rw.statusCode)
			_, _ = w.Write(body)
			return
		}

		wrapped := WrappedResponse{
			Data: json.RawMessage(bytes.TrimSpace(body)),
			Meta: ResponseMeta{
				RequestID: requestID,
				LatencyMS: time.Since(start).Milliseconds(),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rw.statusCode)
		_ = json.NewEncoder(w).Encode(wrapped)
	})
}

// GenerateRequestID generates a short unique request ID.
func GenerateRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
