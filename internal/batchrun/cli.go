package batchrun

import (
	"io"
	"log/slog"

	"github.com/okian/farewatch/pkg/logger"
)

// SetupLogging initializes the global logger on stderr-like w.
func SetupLogging(w io.Writer, verbose bool) error {
	if err := logger.Init(logger.WithOutput(w)); err != nil {
		return err
	}
	if verbose {
		logger.SetLevel(slog.LevelDebug)
	} else {
		logger.SetLevel(slog.LevelWarn)
	}
	return nil
}

// ShowHelp prints usage information for the batch tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `farebatch
=========

Scores one CSV batch of rides for fare anomalies and writes the exports.

Usage:
  go run ./cmd/farebatch [options]

Options:
  -input string
        CSV file to analyze, "-" for stdin
  -generate int
        Synthesize this many rides instead of reading -input
  -save-generated string
        Also write the synthesized rides to this path
  -seed int
        Seed for the generator and the forest (default 42)
  -contamination float
        Expected fraction of anomalies, 0.01..0.5 (default 0.1)
  -threshold float
        High-risk alert threshold, -1..0 (default -0.5)
  -anomalies-out string
        Where to write all flagged rides (default "all_anomalies.csv")
  -high-risk-out string
        Where to write high-risk rides (default "high_risk_anomalies.csv")
  -timestamp-policy string
        fail or drop rows with unparseable timestamps (default "fail")
  -trees int
        Isolation trees per fit (default 100)
  -url string
        Analyze against a running farewatch server instead of in-process
  -timeout duration
        HTTP request timeout for -url (default 2m)
  -top int
        Alerts to print (default 10)
  -verbose
        Enable debug logging
  -help
        Show this help message

Examples:
  # Score a file
  go run ./cmd/farebatch -input rides.csv

  # Score 10k synthetic rides at 5% contamination
  go run ./cmd/farebatch -generate 10000 -contamination 0.05

  # Use a running server
  go run ./cmd/farebatch -input rides.csv -url http://localhost:9080
`)
}
