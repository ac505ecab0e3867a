package batchrun

import (
	"io"
	"time"

	"github.com/okian/farewatch/internal/domain/alerting"
	"github.com/okian/farewatch/internal/domain/cleaning"
)

// Config holds configuration for one batch run.
type Config struct {
	Input           string        // CSV path, "-" for Stdin
	Generate        int           // synthesize this many rides instead of reading Input
	Seed            int64         // generator and forest seed
	SaveGenerated   string        // optional path for the synthesized CSV
	Contamination   float64       // expected outlier fraction
	Threshold       float64       // high-risk alert threshold
	AnomaliesOut    string        // all_anomalies.csv destination, empty to skip
	HighRiskOut     string        // high_risk_anomalies.csv destination, empty to skip
	TimestampPolicy string        // fail or drop
	Trees           int           // isolation trees per fit
	URL             string        // analyze against a running server instead of in-process
	Timeout         time.Duration // HTTP request timeout for URL mode
	TopAlerts       int           // alerts printed in the report
	Verbose         bool

	Stdin  io.Reader
	Stdout io.Writer
}

// Report is what a run prints, whichever mode produced it.
type Report struct {
	BatchID  string           `json:"batch_id"`
	Cleaning cleaning.Stats   `json:"cleaning"`
	Summary  alerting.Summary `json:"summary"`
	Alerts   []alerting.Alert `json:"alerts"`
	Duration time.Duration    `json:"-"`
}
