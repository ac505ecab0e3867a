package batchrun

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	service "github.com/okian/farewatch/internal/app"
	"github.com/okian/farewatch/internal/domain/alerting"
	"github.com/okian/farewatch/internal/domain/cleaning"
	"github.com/okian/farewatch/internal/ridegen"
	"github.com/okian/farewatch/pkg/logger"
)

const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run loads the batch, analyzes it in-process or against cfg.URL, writes the
// requested exports and prints a report to cfg.Stdout.
func Run(ctx context.Context, cfg *Config) (*Report, error) {
	log := logger.Get().Named("batchrun")

	input, err := loadInput(ctx, cfg)
	if err != nil {
		return nil, err
	}
	params := service.Params{Contamination: cfg.Contamination, AlertThreshold: cfg.Threshold}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	log.Info(ctx, "analyzing batch",
		logger.Int("bytes", len(input)),
		logger.String("url", cfg.URL),
		logger.Float64("contamination", params.Contamination),
		logger.Float64("threshold", params.AlertThreshold),
	)

	var report *Report
	if cfg.URL != "" {
		report, err = runRemote(ctx, cfg, input, params)
	} else {
		report, err = runLocal(ctx, cfg, log, input, params)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Stdout != nil {
		printReport(cfg.Stdout, report, cfg.TopAlerts)
	}
	log.Info(ctx, "batch done", logger.String("batchID", report.BatchID), logger.Duration("took", report.Duration))
	return report, nil
}

// loadInput returns the raw CSV bytes, generating them when asked.
func loadInput(ctx context.Context, cfg *Config) ([]byte, error) {
	switch {
	case cfg.Generate > 0:
		rides := ridegen.New(ridegen.WithSeed(cfg.Seed)).Generate(cfg.Generate)
		var buf bytes.Buffer
		if err := ridegen.WriteCSV(&buf, rides); err != nil {
			return nil, err
		}
		if cfg.SaveGenerated != "" {
			if err := writeFile(cfg.SaveGenerated, func(w io.Writer) error {
				_, err := w.Write(buf.Bytes())
				return err
			}); err != nil {
				return nil, err
			}
			logger.Get().Info(ctx, "saved generated rides", logger.String("path", cfg.SaveGenerated))
		}
		return buf.Bytes(), nil
	case cfg.Input == "-":
		if cfg.Stdin == nil {
			return nil, fmt.Errorf("%w: stdin not available", ErrInvalidInput)
		}
		return io.ReadAll(cfg.Stdin)
	case cfg.Input != "":
		data, err := os.ReadFile(cfg.Input)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return data, nil
	default:
		return nil, ErrNoInput
	}
}

func runLocal(ctx context.Context, cfg *Config, log logger.Logger, input []byte, params service.Params) (*Report, error) {
	opts := []service.Option{
		service.WithLogger(log),
		service.WithSeed(cfg.Seed),
		service.WithDefaultParams(params),
	}
	if cfg.Trees > 0 {
		opts = append(opts, service.WithTrees(cfg.Trees))
	}
	if cfg.TimestampPolicy != "" {
		opts = append(opts, service.WithTimestampPolicy(cleaning.TimestampPolicy(cfg.TimestampPolicy)))
	}

	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	defer svc.Stop()

	res, err := svc.Analyze(ctx, bytes.NewReader(input), params)
	if err != nil {
		return nil, err
	}

	if cfg.AnomaliesOut != "" {
		if err := writeFile(cfg.AnomaliesOut, func(w io.Writer) error {
			return alerting.WriteAnomalies(w, res.Scored)
		}); err != nil {
			return nil, err
		}
	}
	if cfg.HighRiskOut != "" {
		if err := writeFile(cfg.HighRiskOut, func(w io.Writer) error {
			return alerting.WriteHighRisk(w, res.Scored, params.AlertThreshold)
		}); err != nil {
			return nil, err
		}
	}

	return &Report{
		BatchID:  res.BatchID,
		Cleaning: res.Stats,
		Summary:  res.Summary,
		Alerts:   res.Alerts,
		Duration: res.Duration,
	}, nil
}

// writeFile creates path (and its directory) and fills it with fill.
func writeFile(path string, fill func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermission)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fill(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func printReport(w io.Writer, r *Report, top int) {
	s := r.Summary
	fmt.Fprintf(w, "batch %s (%s)\n", r.BatchID, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  total rides:   %d\n", s.TotalRides)
	fmt.Fprintf(w, "  clean rides:   %d (dropped %d: null %d, negative %d, timestamp %d)\n",
		s.CleanRides, s.DroppedRows, r.Cleaning.DroppedNull, r.Cleaning.DroppedNegative, r.Cleaning.DroppedTimestamp)
	fmt.Fprintf(w, "  anomalies:     %d (%.1f%%)\n", s.Anomalies, s.AnomalyRate*100)
	fmt.Fprintf(w, "  high risk:     %d\n", s.HighRisk)
	fmt.Fprintf(w, "  average fare:  $%.2f\n", s.AverageFare)

	if top <= 0 || len(r.Alerts) == 0 {
		return
	}
	fmt.Fprintln(w, "alerts:")
	for i, a := range r.Alerts {
		if i == top {
			fmt.Fprintf(w, "  ... %d more\n", len(r.Alerts)-top)
			break
		}
		fmt.Fprintf(w, "  %s\n", a.Message)
	}
}
