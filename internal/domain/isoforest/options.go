package isoforest

// Option applies a configuration option to the Forest.
type Option func(*Forest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *Forest) {
		if n > 0 {
			f.trees = n
		}
	}
}

// WithMaxSamples caps the number of rows drawn for each tree.
func WithMaxSamples(n int) Option {
	return func(f *Forest) {
		if n >= 2 {
			f.maxSamples = n
		}
	}
}

// WithWorkers bounds the goroutines used to build trees and score rows.
func WithWorkers(n int) Option {
	return func(f *Forest) {
		if n > 0 {
			f.workers = n
		}
	}
}

// WithTieBreak sets the priority used to label rows whose scores tie exactly
// with the contamination offset. Higher priority is labeled first.
func WithTieBreak(fn PriorityFunc) Option {
	return func(f *Forest) {
		f.tieBreak = fn
	}
}
