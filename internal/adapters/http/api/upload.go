package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	service "github.com/okian/farewatch/internal/app"
	"github.com/okian/farewatch/pkg/logger"
	"github.com/okian/farewatch/pkg/metrics"
)

// Request parameter names.
const (
	paramContamination  = "contamination"
	paramAlertThreshold = "alert_threshold"
	formFileField       = "file"
)

// uploader turns a request into one pipeline run.
type uploader struct {
	deps     Dependencies
	maxBytes int64
	logger   logger.Logger
}

// analyze reads the CSV and parameters from r and runs the batch. On failure
// it writes the error response and returns nil.
func (u uploader) analyze(w http.ResponseWriter, r *http.Request, op string) *service.Result {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		u.fail(w, r, NewKind(op, ErrMethod))
		return nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, u.maxBytes)

	body, closeBody, multipart, err := u.body(r)
	if err != nil {
		u.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return nil
	}
	defer closeBody()

	// Raw bodies may be sent as form-encoded by curl, so only multipart
	// requests read parameters from the body.
	lookup := r.URL.Query().Get
	if multipart {
		lookup = r.FormValue
	}
	params, err := parseParams(lookup, u.deps.Defaults())
	if err != nil {
		u.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return nil
	}

	res, err := u.deps.Analyze(r.Context(), body, params)
	if err != nil {
		u.fail(w, r, Wrap(op, err))
		return nil
	}
	return res
}

// body returns the CSV stream: the multipart "file" field or the raw body.
func (u uploader) body(r *http.Request) (io.Reader, func(), bool, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, func() {}, false, nil
	}
	if err := r.ParseMultipartForm(u.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, true, fmt.Errorf("%w: %w", ErrPayloadTooLarge, err)
		}
		return nil, nil, true, err
	}
	f, _, err := r.FormFile(formFileField)
	if err != nil {
		return nil, nil, true, fmt.Errorf("%w: field %q: %w", ErrMissingUpload, formFileField, err)
	}
	return f, func() { _ = f.Close() }, true, nil
}

func (u uploader) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		metrics.RecordErrorByComponent("api", code)
		u.logger.Error(r.Context(), "request failed", logger.String("path", r.URL.Path), logger.Error(err))
	} else {
		u.logger.Debug(r.Context(), "request rejected", logger.String("path", r.URL.Path), logger.String("code", code), logger.Error(err))
	}
	writeError(w, status, code, err)
}

// parseParams reads optional contamination and alert_threshold values,
// falling back to defaults.
func parseParams(lookup func(string) string, defaults service.Params) (service.Params, error) {
	p := defaults
	if v := strings.TrimSpace(lookup(paramContamination)); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return service.Params{}, fmt.Errorf("invalid %s %q", paramContamination, v)
		}
		p.Contamination = f
	}
	if v := strings.TrimSpace(lookup(paramAlertThreshold)); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return service.Params{}, fmt.Errorf("invalid %s %q", paramAlertThreshold, v)
		}
		p.AlertThreshold = f
	}
	if err := p.Validate(); err != nil {
		return service.Params{}, err
	}
	return p, nil
}
