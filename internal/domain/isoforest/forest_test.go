package isoforest_test

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/farewatch/internal/domain/isoforest"
)

// cluster returns n rows around a common centre plus the given extra rows.
func cluster(n int, seed int64, extra ...[]float64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float64, 0, n+len(extra))
	for i := 0; i < n; i++ {
		out = append(out, []float64{
			20 + rng.NormFloat64()*3,
			8 + rng.NormFloat64(),
			18 + rng.NormFloat64()*2,
		})
	}
	return append(out, extra...)
}

func TestForest_FitAndScore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a forest and a clustered batch with one far outlier", t, func() {
		matrix := cluster(150, 7, []float64{400, 1, 2})
		forest := isoforest.New()

		Convey("When fitting and scoring", func() {
			labels, scores, err := forest.FitAndScore(ctx, matrix, 0.05, 42)
			So(err, ShouldBeNil)
			So(labels, ShouldHaveLength, len(matrix))
			So(scores, ShouldHaveLength, len(matrix))

			Convey("Then the outlier has the lowest score and is labeled", func() {
				last := len(matrix) - 1
				for i := 0; i < last; i++ {
					So(scores[last], ShouldBeLessThan, scores[i])
				}
				So(labels[last], ShouldBeTrue)
			})

			Convey("And every score lies in [-1, 0)", func() {
				for _, s := range scores {
					So(s, ShouldBeGreaterThanOrEqualTo, -1)
					So(s, ShouldBeLessThan, 0)
				}
			})
		})

		Convey("When fitting twice with the same seed", func() {
			l1, s1, err1 := forest.FitAndScore(ctx, matrix, 0.1, 42)
			l2, s2, err2 := forest.FitAndScore(ctx, matrix, 0.1, 42)

			Convey("Then labels and scores are identical", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(l2, ShouldResemble, l1)
				So(s2, ShouldResemble, s1)
			})
		})

		Convey("When the number of workers changes", func() {
			_, serial, err := isoforest.New(isoforest.WithWorkers(1)).FitAndScore(ctx, matrix, 0.1, 42)
			So(err, ShouldBeNil)
			_, parallel, err := isoforest.New(isoforest.WithWorkers(8)).FitAndScore(ctx, matrix, 0.1, 42)
			So(err, ShouldBeNil)

			Convey("Then the scores do not change", func() {
				So(parallel, ShouldResemble, serial)
			})
		})

		Convey("When the seed changes", func() {
			_, a, _ := forest.FitAndScore(ctx, matrix, 0.1, 42)
			_, b, _ := forest.FitAndScore(ctx, matrix, 0.1, 43)

			Convey("Then the scores differ", func() {
				So(b, ShouldNotResemble, a)
			})
		})
	})

	Convey("Given a representative batch of 200 rows", t, func() {
		matrix := cluster(200, 11)

		Convey("Then the labeled fraction tracks the contamination", func() {
			for _, c := range []float64{0.05, 0.1, 0.25} {
				labels, _, err := isoforest.New().FitAndScore(ctx, matrix, c, 42)
				So(err, ShouldBeNil)

				flagged := 0
				for _, l := range labels {
					if l {
						flagged++
					}
				}
				So(math.Abs(float64(flagged)/200-c), ShouldBeLessThanOrEqualTo, 0.02)
			}
		})
	})
}

func TestForest_Degenerate(t *testing.T) {
	ctx := context.Background()

	Convey("Given degenerate batches", t, func() {
		forest := isoforest.New()

		Convey("When the batch has a single row", func() {
			labels, scores, err := forest.FitAndScore(ctx, [][]float64{{1, 2, 3}}, 0.1, 42)

			Convey("Then it gets the neutral score and no label", func() {
				So(err, ShouldBeNil)
				So(scores, ShouldResemble, []float64{isoforest.DegenerateScore})
				So(labels, ShouldResemble, []bool{false})
			})
		})

		Convey("When every row is identical", func() {
			matrix := make([][]float64, 10)
			for i := range matrix {
				matrix[i] = []float64{5, 5, 5}
			}
			labels, scores, err := forest.FitAndScore(ctx, matrix, 0.2, 42)

			Convey("Then every row shares one score and none is labeled", func() {
				So(err, ShouldBeNil)
				for i := range matrix {
					So(scores[i], ShouldEqual, scores[0])
					So(scores[i], ShouldAlmostEqual, -0.5, 1e-9)
					So(labels[i], ShouldBeFalse)
				}
			})
		})

		Convey("When two rows tie and a tie-break is configured", func() {
			matrix := [][]float64{{10, 5, 10, 2, 1}, {500, 1, 1, 500, 500}}
			byLastFeature := func(m [][]float64) []float64 {
				out := make([]float64, len(m))
				for i, row := range m {
					out[i] = row[len(row)-1]
				}
				return out
			}
			labels, scores, err := isoforest.New(isoforest.WithTieBreak(byLastFeature)).FitAndScore(ctx, matrix, 0.5, 42)

			Convey("Then the higher priority row is labeled", func() {
				So(err, ShouldBeNil)
				So(scores[0], ShouldEqual, scores[1])
				So(labels, ShouldResemble, []bool{false, true})
			})
		})

		Convey("When the input is invalid", func() {
			_, _, err := forest.FitAndScore(ctx, nil, 0.1, 42)
			So(errors.Is(err, isoforest.ErrEmptyMatrix), ShouldBeTrue)

			_, _, err = forest.FitAndScore(ctx, [][]float64{{1, 2}, {1}}, 0.1, 42)
			So(errors.Is(err, isoforest.ErrInvalidMatrix), ShouldBeTrue)

			_, _, err = forest.FitAndScore(ctx, [][]float64{{1, 2}, {1, math.NaN()}}, 0.1, 42)
			So(errors.Is(err, isoforest.ErrInvalidMatrix), ShouldBeTrue)

			for _, c := range []float64{0, -0.1, 0.51, math.NaN()} {
				_, _, err = forest.FitAndScore(ctx, [][]float64{{1}, {2}}, c, 42)
				So(errors.Is(err, isoforest.ErrInvalidContamination), ShouldBeTrue)
			}
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, _, err := forest.FitAndScore(cctx, cluster(20, 1), 0.1, 42)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestForest_Fit(t *testing.T) {
	Convey("Given a fitted model", t, func() {
		matrix := cluster(200, 3)
		m, err := isoforest.New(isoforest.WithMaxSamples(64), isoforest.WithTrees(10)).Fit(context.Background(), matrix, 42)
		So(err, ShouldBeNil)

		Convey("Then the sample size and height limit follow the batch", func() {
			So(m.SampleSize(), ShouldEqual, 64)
			So(m.HeightLimit(), ShouldEqual, 6)
		})

		Convey("And it scores new rows of the same width", func() {
			scores, err := m.Score(context.Background(), [][]float64{{20, 8, 18}, {900, 0, 0}})
			So(err, ShouldBeNil)
			So(scores[1], ShouldBeLessThan, scores[0])

			_, err = m.Score(context.Background(), [][]float64{{1, 2}})
			So(errors.Is(err, isoforest.ErrInvalidMatrix), ShouldBeTrue)
		})
	})
}

func TestLabel(t *testing.T) {
	Convey("Given scores and a contamination", t, func() {
		Convey("Offset interpolates linearly between ranks", func() {
			So(isoforest.Offset([]float64{4, 1, 3, 2}, 0.5), ShouldAlmostEqual, 2.5, 1e-12)
			So(isoforest.Offset([]float64{1, 2, 3, 4}, 0.1), ShouldAlmostEqual, 1.3, 1e-12)
		})

		Convey("Rows strictly below the offset are labeled", func() {
			labels := isoforest.Label([]float64{-0.9, -0.4, -0.45, -0.41, -0.42}, 0.2, nil)
			So(labels, ShouldResemble, []bool{true, false, false, false, false})
		})

		Convey("Ties at the offset are filled by priority", func() {
			So(isoforest.Label([]float64{-0.5, -0.5}, 0.5, []float64{1, 2}), ShouldResemble, []bool{false, true})
		})

		Convey("Tied rows with equal priority are never split", func() {
			So(isoforest.Label([]float64{-0.5, -0.5}, 0.5, []float64{3, 3}), ShouldResemble, []bool{false, false})
			So(isoforest.Label([]float64{-0.5, -0.5, -0.5}, 0.5, []float64{9, 9, 1}), ShouldResemble, []bool{true, true, false})
		})

		Convey("Without a priority ties stay unlabeled", func() {
			So(isoforest.Label([]float64{-0.5, -0.5}, 0.5, nil), ShouldResemble, []bool{false, false})
		})
	})
}
