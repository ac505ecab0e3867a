package batchrun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	service "github.com/okian/farewatch/internal/app"
)

const maxErrorBody = 4 << 10

// remoteError mirrors the server's JSON error body.
type remoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// remoteReport mirrors the subset of POST /analyze used here.
type remoteReport struct {
	Report
	DurationMs int64 `json:"duration_ms"`
}

// runRemote posts the batch to /analyze and, when asked, to the export
// routes. The server refits on every call with the same seed, so the
// exports match the report.
func runRemote(ctx context.Context, cfg *Config, input []byte, params service.Params) (*Report, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	base := strings.TrimRight(cfg.URL, "/")

	var rr remoteReport
	if err := post(ctx, client, endpoint(base, "/analyze", params), input, func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&rr)
	}); err != nil {
		return nil, err
	}
	report := rr.Report
	report.Duration = time.Duration(rr.DurationMs) * time.Millisecond

	exports := []struct{ path, out string }{
		{"/export/anomalies", cfg.AnomaliesOut},
		{"/export/high-risk", cfg.HighRiskOut},
	}
	for _, e := range exports {
		if e.out == "" {
			continue
		}
		if err := writeFile(e.out, func(w io.Writer) error {
			return post(ctx, client, endpoint(base, e.path, params), input, func(body io.Reader) error {
				_, err := io.Copy(w, body)
				return err
			})
		}); err != nil {
			return nil, err
		}
	}
	return &report, nil
}

func endpoint(base, path string, p service.Params) string {
	q := url.Values{}
	q.Set("contamination", strconv.FormatFloat(p.Contamination, 'f', -1, 64))
	q.Set("alert_threshold", strconv.FormatFloat(p.AlertThreshold, 'f', -1, 64))
	return base + path + "?" + q.Encode()
}

func post(ctx context.Context, client *http.Client, target string, body []byte, read func(io.Reader) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemote, err)
	}
	req.Header.Set("Content-Type", "text/csv")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemote, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var re remoteError
		if json.Unmarshal(raw, &re) == nil && re.Code != "" {
			return fmt.Errorf("%w: %d %s: %s", ErrRemote, resp.StatusCode, re.Code, re.Message)
		}
		return fmt.Errorf("%w: status %d", ErrRemote, resp.StatusCode)
	}
	return read(resp.Body)
}
