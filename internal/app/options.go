package service

import (
	"github.com/okian/farewatch/internal/domain/cleaning"
	"github.com/okian/farewatch/internal/domain/isoforest"
	"github.com/okian/farewatch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTrees sets the number of isolation trees per fit.
func WithTrees(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.trees = n
		}
	}
}

// WithMaxSamples caps the per-tree sub-sample size.
func WithMaxSamples(n int) Option {
	return func(s *Service) {
		if n >= 2 {
			s.maxSamples = n
		}
	}
}

// WithFitWorkers bounds the goroutines used inside one fit.
func WithFitWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fitWorkers = n
		}
	}
}

// WithSeed sets the model seed.
func WithSeed(seed int64) Option {
	return func(s *Service) {
		s.seed = seed
	}
}

// WithTimestampPolicy sets what happens to unparsable timestamps.
func WithTimestampPolicy(p cleaning.TimestampPolicy) Option {
	return func(s *Service) {
		if p == cleaning.PolicyFail || p == cleaning.PolicyDrop {
			s.policy = p
		}
	}
}

// WithDefaultParams sets the parameters used when a caller supplies none.
func WithDefaultParams(p Params) Option {
	return func(s *Service) {
		if p.Validate() == nil {
			s.defaults = p
		}
	}
}

// WithDetector replaces the isolation forest built by Start.
func WithDetector(d isoforest.Detector) Option {
	return func(s *Service) {
		s.detector = d
	}
}
