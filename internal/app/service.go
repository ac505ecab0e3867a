// Package service runs the ride-fare anomaly pipeline for one uploaded batch
// at a time: read, clean, score, summarise.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"

	"github.com/okian/farewatch/internal/adapters/table"
	"github.com/okian/farewatch/internal/domain/alerting"
	"github.com/okian/farewatch/internal/domain/cleaning"
	"github.com/okian/farewatch/internal/domain/isoforest"
	"github.com/okian/farewatch/internal/domain/scoring"
	"github.com/okian/farewatch/pkg/logger"
	"github.com/okian/farewatch/pkg/metrics"
)

// Params are the two user-facing knobs of a batch.
type Params struct {
	Contamination  float64 `json:"contamination"`
	AlertThreshold float64 `json:"alert_threshold"`
}

// DefaultParams returns contamination 0.1 and threshold -0.5.
func DefaultParams() Params {
	return Params{Contamination: 0.1, AlertThreshold: alerting.DefaultThreshold}
}

// Validate checks contamination in [0.01, 0.5] and threshold in [-1, 0].
func (p Params) Validate() error {
	if math.IsNaN(p.Contamination) || p.Contamination < 0.01 || p.Contamination > 0.5 {
		return fmt.Errorf("%w: contamination must be within [0.01, 0.5], got %v", ErrInvalidParams, p.Contamination)
	}
	if !alerting.ValidThreshold(p.AlertThreshold) {
		return fmt.Errorf("%w: alert_threshold must be within [-1, 0], got %v", ErrInvalidParams, p.AlertThreshold)
	}
	return nil
}

// Result is everything the presentation layer needs for one batch.
type Result struct {
	BatchID  string
	Params   Params
	Stats    cleaning.Stats
	Scored   dataframe.DataFrame
	Summary  alerting.Summary
	Alerts   []alerting.Alert
	Duration time.Duration
}

// Anomalies returns the rows labeled anomalous.
func (r *Result) Anomalies() dataframe.DataFrame {
	return alerting.Anomalies(r.Scored)
}

// HighRisk returns the anomalous rows below the batch's alert threshold.
func (r *Result) HighRisk() dataframe.DataFrame {
	return alerting.HighRisk(r.Scored, r.Params.AlertThreshold)
}

// Service holds immutable pipeline configuration; each Analyze call fits its
// own model, so concurrent calls do not share state.
type Service struct {
	mu sync.RWMutex

	cleaner  *cleaning.Cleaner
	scorer   *scoring.Scorer
	detector isoforest.Detector

	trees      int
	maxSamples int
	fitWorkers int
	seed       int64
	policy     cleaning.TimestampPolicy
	defaults   Params

	started bool

	processed atomic.Int64
	failed    atomic.Int64
	lastBatch atomic.Value // string

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		trees:      isoforest.DefaultTrees,
		maxSamples: isoforest.DefaultMaxSamples,
		fitWorkers: runtime.NumCPU(),
		seed:       scoring.DefaultSeed,
		policy:     cleaning.PolicyFail,
		defaults:   DefaultParams(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the pipeline stages.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.cleaner = cleaning.New(cleaning.WithTimestampPolicy(s.policy))
	detector := s.detector
	if detector == nil {
		detector = isoforest.New(
			isoforest.WithTrees(s.trees),
			isoforest.WithMaxSamples(s.maxSamples),
			isoforest.WithWorkers(s.fitWorkers),
			isoforest.WithTieBreak(scoring.FareEfficiency),
		)
	}
	s.scorer = scoring.New(scoring.WithDetector(detector), scoring.WithSeed(s.seed))
	metrics.UpdateFitWorkers(s.fitWorkers)

	s.started = true
	s.logger.Info(ctx, "fare pipeline started",
		logger.Int("trees", s.trees),
		logger.Int("maxSamples", s.maxSamples),
		logger.Int("fitWorkers", s.fitWorkers),
		logger.String("timestampPolicy", string(s.policy)),
	)
	return nil
}

// Stop marks the service stopped. In-flight batches finish normally.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "fare pipeline stopped")
}

// Defaults returns the parameters used when a caller supplies none.
func (s *Service) Defaults() Params {
	return s.defaults
}

// Analyze reads one CSV batch from r and runs it through the pipeline.
func (s *Service) Analyze(ctx context.Context, r io.Reader, p Params) (*Result, error) {
	s.mu.RLock()
	started, cleaner, scorer, log := s.started, s.cleaner, s.scorer, s.logger
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	batchID := uuid.NewString()
	log = log.With(logger.String("batchID", batchID))

	res, err := s.run(ctx, log, cleaner, scorer, r, p)
	if err != nil {
		s.failed.Add(1)
		metrics.RecordBatchFailed(errorKind(err))
		log.Warn(ctx, "batch rejected", logger.String("kind", errorKind(err)), logger.Error(err))
		return nil, err
	}

	res.BatchID = batchID
	res.Duration = time.Since(start)
	s.processed.Add(1)
	s.lastBatch.Store(batchID)

	metrics.RecordBatchProcessed()
	metrics.RecordBatchLatency(float64(res.Duration.Milliseconds()))
	metrics.RecordAnomalies(res.Summary.Anomalies)
	metrics.RecordHighRiskAlerts(res.Summary.HighRisk)
	metrics.UpdateLastBatch(res.Summary.TotalRides, res.Summary.AnomalyRate)

	log.Info(ctx, "batch analyzed",
		logger.Int("rows", res.Summary.TotalRides),
		logger.Int("clean", res.Summary.CleanRides),
		logger.Int("anomalies", res.Summary.Anomalies),
		logger.Int("highRisk", res.Summary.HighRisk),
		logger.Duration("took", res.Duration),
	)
	return res, nil
}

func (s *Service) run(ctx context.Context, log logger.Logger, cleaner *cleaning.Cleaner, scorer *scoring.Scorer, r io.Reader, p Params) (*Result, error) {
	raw, err := table.ReadCSV(r)
	if err != nil {
		return nil, err
	}
	metrics.RecordRowsIngested(raw.Nrow())

	clean, stats, err := cleaner.Clean(raw)
	recordDropped(stats)
	if err != nil {
		return nil, err
	}
	log.Debug(ctx, "batch cleaned",
		logger.Int("input", stats.InputRows),
		logger.Int("droppedNull", stats.DroppedNull),
		logger.Int("droppedNegative", stats.DroppedNegative),
		logger.Int("droppedTimestamp", stats.DroppedTimestamp),
	)

	fitStart := time.Now()
	scored, err := scorer.Score(ctx, clean, p.Contamination)
	if err != nil {
		return nil, err
	}
	metrics.RecordFitLatency(float64(time.Since(fitStart).Milliseconds()))

	summary, err := alerting.Summarize(raw.Nrow(), scored, p.AlertThreshold)
	if err != nil {
		return nil, err
	}
	alerts, err := alerting.Alerts(scored, p.AlertThreshold)
	if err != nil {
		return nil, err
	}

	return &Result{
		Params:  p,
		Stats:   stats,
		Scored:  scored,
		Summary: summary,
		Alerts:  alerts,
	}, nil
}

func recordDropped(stats cleaning.Stats) {
	metrics.RecordRowsDropped("null", stats.DroppedNull)
	metrics.RecordRowsDropped("negative", stats.DroppedNegative)
	metrics.RecordRowsDropped("timestamp", stats.DroppedTimestamp)
}

// errorKind classifies pipeline errors for metrics and logs.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidParams):
		return "invalid_params"
	case errors.Is(err, table.ErrRead):
		return "read"
	case errors.Is(err, cleaning.ErrSchema):
		return "schema"
	case errors.Is(err, cleaning.ErrParse):
		return "parse"
	case errors.Is(err, cleaning.ErrEmptyResult):
		return "empty_result"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"trees":            s.trees,
		"maxSamples":       s.maxSamples,
		"fitWorkers":       s.fitWorkers,
		"seed":             s.seed,
		"timestampPolicy":  string(s.policy),
		"defaults":         s.defaults,
		"batchesProcessed": s.processed.Load(),
		"batchesFailed":    s.failed.Load(),
	}
	if id, ok := s.lastBatch.Load().(string); ok {
		stats["lastBatchID"] = id
	}
	return stats
}
