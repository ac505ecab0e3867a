// Package isoforest implements a seeded isolation forest outlier detector.
//
// Scores follow the usual convention of negated isolation scores:
// score = -2^(-E[h(x)]/c(psi)), so values lie in [-1, 0) and lower means
// easier to isolate. Scores are only comparable within one fit.
package isoforest

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// Default forest parameters.
const (
	DefaultTrees      = 100
	DefaultMaxSamples = 256
	DefaultWorkers    = 1

	// DegenerateScore is assigned to every row when a batch is too small to fit.
	DegenerateScore = -0.5

	eulerGamma = 0.5772156649015329
)

// Detector fits an outlier model on a whole matrix and labels its rows.
type Detector interface {
	FitAndScore(ctx context.Context, matrix [][]float64, contamination float64, seed int64) (labels []bool, scores []float64, err error)
}

// PriorityFunc ranks rows for tie-breaking at the contamination offset.
type PriorityFunc func(matrix [][]float64) []float64

// Forest is a Detector. It holds only configuration; every call fits a new
// model, so a Forest is safe for concurrent use.
type Forest struct {
	trees      int
	maxSamples int
	workers    int
	tieBreak   PriorityFunc
}

var _ Detector = (*Forest)(nil)

// New creates a Forest with 100 trees and 256 samples per tree.
func New(opts ...Option) *Forest {
	f := &Forest{
		trees:      DefaultTrees,
		maxSamples: DefaultMaxSamples,
		workers:    DefaultWorkers,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Trees reports the configured number of trees.
func (f *Forest) Trees() int { return f.trees }

// Workers reports the configured worker bound.
func (f *Forest) Workers() int { return f.workers }

// FitAndScore fits a forest on matrix and returns per-row labels and scores.
// Batches with fewer than two rows get DegenerateScore and no anomalies.
func (f *Forest) FitAndScore(ctx context.Context, matrix [][]float64, contamination float64, seed int64) ([]bool, []float64, error) {
	if math.IsNaN(contamination) || contamination <= 0 || contamination > 0.5 {
		return nil, nil, fmt.Errorf("%w: got %v", ErrInvalidContamination, contamination)
	}
	if err := validate(matrix); err != nil {
		return nil, nil, err
	}

	n := len(matrix)
	if n < 2 {
		return make([]bool, n), []float64{DegenerateScore}, nil
	}

	m, err := f.Fit(ctx, matrix, seed)
	if err != nil {
		return nil, nil, err
	}
	scores, err := m.score(ctx, matrix, f.workers)
	if err != nil {
		return nil, nil, err
	}

	var priority []float64
	if f.tieBreak != nil {
		priority = f.tieBreak(matrix)
	}
	return Label(scores, contamination, priority), scores, nil
}

// Fit builds the trees for matrix. Per-tree seeds are drawn from seed in tree
// order, so the result does not depend on the number of workers.
func (f *Forest) Fit(ctx context.Context, matrix [][]float64, seed int64) (*Model, error) {
	if err := validate(matrix); err != nil {
		return nil, err
	}
	n := len(matrix)
	psi := min(f.maxSamples, n)

	master := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible fits
	seeds := make([]int64, f.trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	m := &Model{
		trees:  make([]tree, f.trees),
		psi:    psi,
		dims:   len(matrix[0]),
		height: int(math.Ceil(math.Log2(float64(max(psi, 2))))),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i := range m.trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i])) //nolint:gosec // reproducible fits
			sample := rng.Perm(n)[:psi]
			m.trees[i] = grow(rng, matrix, sample, m.height)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fit isolation forest: %w", err)
	}
	return m, nil
}

func validate(matrix [][]float64) error {
	if len(matrix) == 0 {
		return ErrEmptyMatrix
	}
	dims := len(matrix[0])
	if dims == 0 {
		return fmt.Errorf("%w: rows have no features", ErrInvalidMatrix)
	}
	for i, row := range matrix {
		if len(row) != dims {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrInvalidMatrix, i, len(row), dims)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d feature %d is not finite", ErrInvalidMatrix, i, j)
			}
		}
	}
	return nil
}

// averagePathLength is c(n), the mean path length of an unsuccessful search
// in a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}
