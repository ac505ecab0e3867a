package api

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-gota/gota/dataframe"

	service "github.com/okian/farewatch/internal/app"
	"github.com/okian/farewatch/internal/adapters/table"
	"github.com/okian/farewatch/internal/domain/alerting"
)

// ExportHandler serves the anomaly CSV downloads.
type ExportHandler struct {
	up uploader
}

// NewExportHandler creates a new export handler.
func NewExportHandler(up uploader) *ExportHandler {
	return &ExportHandler{up: up}
}

// HandleAnomalies handles POST /export/anomalies requests.
func (h *ExportHandler) HandleAnomalies(w http.ResponseWriter, r *http.Request) {
	const op = "api.export_anomalies"
	h.export(w, r, op, alerting.AnomaliesFileName, (*service.Result).Anomalies)
}

// HandleHighRisk handles POST /export/high-risk requests.
func (h *ExportHandler) HandleHighRisk(w http.ResponseWriter, r *http.Request) {
	const op = "api.export_high_risk"
	h.export(w, r, op, alerting.HighRiskFileName, (*service.Result).HighRisk)
}

func (h *ExportHandler) export(w http.ResponseWriter, r *http.Request, op, filename string, subset func(*service.Result) dataframe.DataFrame) {
	res := h.up.analyze(w, r, op)
	if res == nil {
		return
	}

	// Buffer so a write failure can still produce an error status.
	var buf bytes.Buffer
	if err := table.WriteCSV(&buf, subset(res)); err != nil {
		h.up.fail(w, r, Wrap(op, err))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Batch-Id", res.BatchID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
