package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/stride/pkg/metrics"
)

// MetricsMiddleware records request count, latency and error class for
// endpoint.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		code := strconv.Itoa(sw.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, float64(time.Since(start).Milliseconds()))

		if class, severity, ok := errorLabels(sw.status); ok {
			metrics.RecordErrorByEndpoint(endpoint, r.Method, class)
			metrics.RecordErrorByType(class, severity)
		}
	}
}

// errorLabels maps an error status to its metric labels. ok is false for
// non-error statuses.
func errorLabels(status int) (class, severity string, ok bool) {
	switch {
	case status < http.StatusBadRequest:
		return "", "", false
	case status >= http.StatusInternalServerError:
		return "server_error", "high", true
	case status == http.StatusTooManyRequests:
		return "rate_limit", "medium", true
	case status == http.StatusNotFound:
		return "not_found", "medium", true
	case status == http.StatusConflict:
		// run exists but has no result yet
		return "not_ready", "low", true
	case status == http.StatusUnprocessableEntity:
		return "unprocessable", "medium", true
	case status == http.StatusRequestEntityTooLarge:
		return "too_large", "medium", true
	default:
		return "client_error", "medium", true
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
