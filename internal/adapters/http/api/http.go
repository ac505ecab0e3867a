// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	service "github.com/okian/farewatch/internal/app"
	"github.com/okian/farewatch/internal/adapters/table"
	"github.com/okian/farewatch/internal/domain/cleaning"
	"github.com/okian/farewatch/pkg/logger"
)

// Default request limits.
const (
	defaultMaxUploadBytes = 32 << 20
	defaultMaxRows        = 5000
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the pipeline implementation.
type Dependencies interface {
	// Analyze runs one CSV batch through the pipeline.
	Analyze(ctx context.Context, r io.Reader, p service.Params) (*service.Result, error)

	// Defaults are used for parameters the request omits.
	Defaults() service.Params
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxUploadBytes limits the accepted CSV size.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithMaxRows caps rows echoed back by POST /analyze; 0 means no cap.
func WithMaxRows(n int) Option {
	return func(s *Server) {
		if n >= 0 {
			s.maxRows = n
		}
	}
}

// WithLogger sets the logger used for failed requests.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	analyzeHandler   *AnalyzeHandler
	exportHandler    *ExportHandler
	dashboardHandler *dashboardHandler

	maxUploadBytes int64
	maxRows        int
	logger         logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		maxUploadBytes: defaultMaxUploadBytes,
		maxRows:        defaultMaxRows,
		logger:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	up := uploader{deps: deps, maxBytes: s.maxUploadBytes, logger: s.logger}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.analyzeHandler = NewAnalyzeHandler(up, s.maxRows)
	s.exportHandler = NewExportHandler(up)
	s.dashboardHandler = newdashboardHandler()
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/dashboard", s.dashboardHandler.HandleDashboard)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/analyze", MetricsMiddleware(s.analyzeHandler.HandleAnalyze, "analyze"))
	mux.HandleFunc("/export/anomalies", MetricsMiddleware(s.exportHandler.HandleAnomalies, "export_anomalies"))
	mux.HandleFunc("/export/high-risk", MetricsMiddleware(s.exportHandler.HandleHighRisk, "export_high_risk"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps pipeline errors to an HTTP status and a stable code.
func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, ErrMethod):
		return http.StatusMethodNotAllowed, "method_not_allowed"
	case errors.Is(err, cleaning.ErrSchema):
		return http.StatusUnprocessableEntity, "schema_error"
	case errors.Is(err, cleaning.ErrParse):
		return http.StatusUnprocessableEntity, "parse_error"
	case errors.Is(err, cleaning.ErrEmptyResult):
		return http.StatusUnprocessableEntity, "empty_result"
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrInvalidParams), errors.Is(err, table.ErrRead):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
