// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/farewatch/pkg/metrics"
)

// errorClass labels a failed response for the error metrics.
type errorClass struct {
	kind     string
	severity string
}

// classifyStatus groups error statuses. Rejected batches are the user's data,
// not a fault, so they rank lowest.
func classifyStatus(status int) errorClass {
	switch {
	case status >= http.StatusInternalServerError:
		return errorClass{"server_error", "high"}
	case status == http.StatusUnprocessableEntity:
		return errorClass{"rejected_batch", "low"}
	case status == http.StatusRequestEntityTooLarge:
		return errorClass{"payload_too_large", "medium"}
	case status == http.StatusNotFound, status == http.StatusMethodNotAllowed:
		return errorClass{"not_found", "low"}
	default:
		return errorClass{"client_error", "medium"}
	}
}

// MetricsMiddleware records request counts and latency per endpoint, plus
// error metrics for 4xx and 5xx responses.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		took := float64(time.Since(start).Milliseconds())
		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, took)

		if rec.status < http.StatusBadRequest {
			return
		}
		c := classifyStatus(rec.status)
		metrics.RecordErrorByEndpoint(endpoint, r.Method, c.kind)
		metrics.RecordErrorByType(c.kind, c.severity)
		metrics.RecordErrorLatency("http", c.kind, took)
	}
}

// statusRecorder remembers the first status written.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
