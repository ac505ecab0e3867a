package api

import (
	"net/http"

	service "github.com/okian/farewatch/internal/app"
	"github.com/okian/farewatch/internal/domain/alerting"
	"github.com/okian/farewatch/internal/domain/cleaning"
)

// analyzeResponse is the JSON body of POST /analyze.
type analyzeResponse struct {
	BatchID       string                   `json:"batch_id"`
	Params        service.Params           `json:"params"`
	Cleaning      cleaning.Stats           `json:"cleaning"`
	Summary       alerting.Summary         `json:"summary"`
	Alerts        []alerting.Alert         `json:"alerts"`
	Columns       []string                 `json:"columns"`
	Rows          []map[string]interface{} `json:"rows"`
	RowsTruncated bool                     `json:"rows_truncated"`
	DurationMs    int64                    `json:"duration_ms"`
}

// AnalyzeHandler handles batch analysis requests.
type AnalyzeHandler struct {
	up      uploader
	maxRows int
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(up uploader, maxRows int) *AnalyzeHandler {
	return &AnalyzeHandler{up: up, maxRows: maxRows}
}

// HandleAnalyze handles POST /analyze requests.
func (h *AnalyzeHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	const op = "api.analyze"
	res := h.up.analyze(w, r, op)
	if res == nil {
		return
	}

	rows := res.Scored.Maps()
	truncated := false
	if h.maxRows > 0 && len(rows) > h.maxRows {
		rows = rows[:h.maxRows]
		truncated = true
	}
	alerts := res.Alerts
	if alerts == nil {
		alerts = []alerting.Alert{}
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		BatchID:       res.BatchID,
		Params:        res.Params,
		Cleaning:      res.Stats,
		Summary:       res.Summary,
		Alerts:        alerts,
		Columns:       res.Scored.Names(),
		Rows:          rows,
		RowsTruncated: truncated,
		DurationMs:    res.Duration.Milliseconds(),
	})
}
