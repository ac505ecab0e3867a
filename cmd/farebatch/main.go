package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/farewatch/internal/batchrun"
	"github.com/okian/farewatch/internal/domain/alerting"
	"github.com/okian/farewatch/internal/domain/cleaning"
	"github.com/okian/farewatch/internal/domain/isoforest"
	"github.com/okian/farewatch/internal/domain/scoring"
)

const (
	defaultContamination = 0.1
	defaultTimeout       = 2 * time.Minute
	defaultTopAlerts     = 10
)

func main() {
	var (
		input         = flag.String("input", "", `CSV file to analyze, "-" for stdin`)
		generate      = flag.Int("generate", 0, "Synthesize this many rides instead of reading -input")
		saveGenerated = flag.String("save-generated", "", "Also write the synthesized rides to this path")
		seed          = flag.Int64("seed", scoring.DefaultSeed, "Seed for the generator and the forest")
		contamination = flag.Float64("contamination", defaultContamination, "Expected fraction of anomalies")
		threshold     = flag.Float64("threshold", alerting.DefaultThreshold, "High-risk alert threshold")
		anomaliesOut  = flag.String("anomalies-out", alerting.AnomaliesFileName, "Where to write all flagged rides")
		highRiskOut   = flag.String("high-risk-out", alerting.HighRiskFileName, "Where to write high-risk rides")
		policy        = flag.String("timestamp-policy", string(cleaning.PolicyFail), "fail or drop rows with unparseable timestamps")
		trees         = flag.Int("trees", isoforest.DefaultTrees, "Isolation trees per fit")
		baseURL       = flag.String("url", "", "Analyze against a running farewatch server")
		timeout       = flag.Duration("timeout", defaultTimeout, "HTTP request timeout for -url")
		top           = flag.Int("top", defaultTopAlerts, "Alerts to print")
		verbose       = flag.Bool("verbose", false, "Enable debug logging")
		help          = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		batchrun.ShowHelp(os.Stdout)
		return
	}

	if err := batchrun.SetupLogging(os.Stderr, *verbose); err != nil {
		os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &batchrun.Config{
		Input:           *input,
		Generate:        *generate,
		Seed:            *seed,
		SaveGenerated:   *saveGenerated,
		Contamination:   *contamination,
		Threshold:       *threshold,
		AnomaliesOut:    *anomaliesOut,
		HighRiskOut:     *highRiskOut,
		TimestampPolicy: *policy,
		Trees:           *trees,
		URL:             *baseURL,
		Timeout:         *timeout,
		TopAlerts:       *top,
		Verbose:         *verbose,
		Stdin:           os.Stdin,
		Stdout:          os.Stdout,
	}

	if _, err := batchrun.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("farebatch: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
