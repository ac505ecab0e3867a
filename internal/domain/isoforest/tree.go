package isoforest

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

const leaf = -1

// node is a flat tree node; leaves have feature == leaf.
type node struct {
	feature     int
	split       float64
	left, right int
	size        int
}

type tree struct {
	nodes []node
}

// Model is one fitted forest.
type Model struct {
	trees  []tree
	psi    int
	dims   int
	height int
}

// SampleSize reports the number of rows each tree was built from.
func (m *Model) SampleSize() int { return m.psi }

// HeightLimit reports the maximum tree depth.
func (m *Model) HeightLimit() int { return m.height }

// Score returns the anomaly score of every row of matrix.
func (m *Model) Score(ctx context.Context, matrix [][]float64) ([]float64, error) {
	for i, row := range matrix {
		if len(row) != m.dims {
			return nil, fmt.Errorf("%w: row %d has %d features, model has %d", ErrInvalidMatrix, i, len(row), m.dims)
		}
	}
	return m.score(ctx, matrix, 1)
}

func (m *Model) score(ctx context.Context, matrix [][]float64, workers int) ([]float64, error) {
	scores := make([]float64, len(matrix))
	norm := averagePathLength(m.psi)
	chunk := (len(matrix) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(matrix); lo += chunk {
		hi := min(lo+chunk, len(matrix))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				var total float64
				for t := range m.trees {
					total += m.trees[t].pathLength(matrix[i])
				}
				mean := total / float64(len(m.trees))
				if norm == 0 {
					scores[i] = DegenerateScore
					continue
				}
				scores[i] = -math.Pow(2, -mean/norm)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (t *tree) pathLength(x []float64) float64 {
	i, depth := 0, 0
	for t.nodes[i].feature != leaf {
		n := t.nodes[i]
		if x[n.feature] < n.split {
			i = n.left
		} else {
			i = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(t.nodes[i].size)
}

// grow builds one isolation tree over the sampled row indexes.
func grow(rng *rand.Rand, matrix [][]float64, sample []int, height int) tree {
	t := tree{nodes: make([]node, 0, 2*len(sample))}
	dims := len(matrix[0])
	lo := make([]float64, dims)
	hi := make([]float64, dims)
	candidates := make([]int, 0, dims)

	var build func(idx []int, depth int) int
	build = func(idx []int, depth int) int {
		at := len(t.nodes)
		t.nodes = append(t.nodes, node{feature: leaf, size: len(idx)})
		if depth >= height || len(idx) <= 1 {
			return at
		}

		// Only features that vary inside the node can split it.
		candidates = candidates[:0]
		for f := 0; f < dims; f++ {
			lo[f], hi[f] = math.Inf(1), math.Inf(-1)
			for _, r := range idx {
				v := matrix[r][f]
				lo[f] = math.Min(lo[f], v)
				hi[f] = math.Max(hi[f], v)
			}
			if hi[f] > lo[f] {
				candidates = append(candidates, f)
			}
		}
		if len(candidates) == 0 {
			return at
		}

		f := candidates[rng.Intn(len(candidates))]
		split := lo[f] + rng.Float64()*(hi[f]-lo[f])

		// Partition idx in place: [0, p) goes left.
		p := 0
		for i, r := range idx {
			if matrix[r][f] < split {
				idx[p], idx[i] = idx[i], idx[p]
				p++
			}
		}

		left := build(idx[:p], depth+1)
		right := build(idx[p:], depth+1)
		t.nodes[at] = node{feature: f, split: split, left: left, right: right, size: len(idx)}
		return at
	}

	build(sample, 0)
	return t
}
