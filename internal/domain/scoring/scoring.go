// Package scoring labels processed ride tables with an outlier model.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/farewatch/internal/domain/isoforest"
	"github.com/okian/farewatch/internal/domain/model"
)

// DefaultSeed makes fits reproducible across runs.
const DefaultSeed = 42

// Feature positions inside a row of FeatureMatrix.
const (
	featureFarePerKM     = 3
	featureFarePerMinute = 4
)

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithDetector replaces the outlier model.
func WithDetector(d isoforest.Detector) Option {
	return func(s *Scorer) {
		if d != nil {
			s.detector = d
		}
	}
}

// WithSeed sets the seed passed to the detector.
func WithSeed(seed int64) Option {
	return func(s *Scorer) {
		s.seed = seed
	}
}

// Scorer appends is_anomaly and anomaly_score to processed ride tables.
type Scorer struct {
	detector isoforest.Detector
	seed     int64
}

// New creates a Scorer backed by a default isolation forest that breaks
// score ties at the offset by fare efficiency.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		detector: isoforest.New(isoforest.WithTieBreak(FareEfficiency)),
		seed:     DefaultSeed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score fits the detector on df's feature columns and returns a new frame
// with the verdict columns appended. Existing verdict columns are replaced.
func (s *Scorer) Score(ctx context.Context, df dataframe.DataFrame, contamination float64) (dataframe.DataFrame, error) {
	if math.IsNaN(contamination) || contamination <= 0 || contamination > 0.5 {
		return dataframe.DataFrame{}, fmt.Errorf("%w: %v is outside (0, 0.5]", ErrInvalidContamination, contamination)
	}
	matrix, err := FeatureMatrix(df)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	if len(matrix) == 0 {
		return dataframe.DataFrame{}, ErrEmptyBatch
	}

	labels, scores, err := s.detector.FitAndScore(ctx, matrix, contamination, s.seed)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("score batch: %w", err)
	}

	out := df.Mutate(series.New(labels, series.Bool, model.ColIsAnomaly)).
		Mutate(series.New(scores, series.Float, model.ColAnomalyScore))
	if out.Err != nil {
		return dataframe.DataFrame{}, out.Err
	}
	return out, nil
}

// FeatureMatrix returns one row per record holding model.FeatureColumns in order.
func FeatureMatrix(df dataframe.DataFrame) ([][]float64, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	cols := make([][]float64, len(model.FeatureColumns))
	for j, name := range model.FeatureColumns {
		if !model.HasColumn(df, name) {
			return nil, fmt.Errorf("%w: %q", ErrMissingFeature, name)
		}
		cols[j] = df.Col(name).Float()
	}

	matrix := make([][]float64, df.Nrow())
	for i := range matrix {
		row := make([]float64, len(cols))
		for j := range cols {
			row[j] = cols[j][i]
		}
		matrix[i] = row
	}
	return matrix, nil
}

// FareEfficiency ranks rows by fare_per_km and fare_per_minute, each relative
// to the batch median. Rows charging more per unit rank higher.
func FareEfficiency(matrix [][]float64) []float64 {
	perKM := column(matrix, featureFarePerKM)
	perMinute := column(matrix, featureFarePerMinute)
	mKM, mMinute := median(perKM), median(perMinute)

	out := make([]float64, len(matrix))
	for i := range matrix {
		out[i] = perKM[i]/mKM + perMinute[i]/mMinute
	}
	return out
}

func column(matrix [][]float64, j int) []float64 {
	out := make([]float64, len(matrix))
	for i, row := range matrix {
		if j < len(row) {
			out[i] = row[j]
		}
	}
	return out
}

// median falls back to 1 for empty or non-positive medians so ratios stay finite.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 1
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	m := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if m <= 0 || math.IsNaN(m) {
		return 1
	}
	return m
}
