// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load layers file and env on top.
// - Blocking functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"math"
	"runtime"
	"strings"
)

// Timestamp parse-failure policies.
const (
	TimestampPolicyFail = "fail"
	TimestampPolicyDrop = "drop"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogJSON switches log output to JSON lines.
	LogJSON bool `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Contamination is the default expected outlier fraction, [0.01, 0.5].
	Contamination float64 `koanf:"contamination"`

	// AlertThreshold is the default high-risk score threshold, [-1, 0].
	AlertThreshold float64 `koanf:"alert_threshold"`

	// Trees is the number of isolation trees per fit.
	Trees int `koanf:"trees"`

	// MaxSamples caps the per-tree sub-sample size.
	MaxSamples int `koanf:"max_samples"`

	// Seed makes fits reproducible.
	Seed int64 `koanf:"seed"`

	// FitWorkers bounds the goroutines building trees inside one fit.
	FitWorkers int `koanf:"fit_workers"`

	// TimestampPolicy is "fail" (reject the batch) or "drop" (drop the row).
	TimestampPolicy string `koanf:"timestamp_policy"`

	// MaxUploadBytes limits the accepted CSV body size.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// MaxRowsInResponse caps rows echoed back by POST /analyze; 0 means all.
	MaxRowsInResponse int `koanf:"max_rows_in_response"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		Contamination:     0.1,
		AlertThreshold:    -0.5,
		Trees:             100,
		MaxSamples:        256,
		Seed:              42,
		FitWorkers:        runtime.NumCPU(),
		TimestampPolicy:   TimestampPolicyFail,
		MaxUploadBytes:    32 << 20,
		MaxRowsInResponse: 5000,
	}
}

// Validate reports the first invalid setting wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case math.IsNaN(c.Contamination) || c.Contamination < 0.01 || c.Contamination > 0.5:
		return fmt.Errorf("%w: contamination must be within [0.01, 0.5], got %v", ErrInvalidConfig, c.Contamination)
	case math.IsNaN(c.AlertThreshold) || c.AlertThreshold < -1 || c.AlertThreshold > 0:
		return fmt.Errorf("%w: alert_threshold must be within [-1, 0], got %v", ErrInvalidConfig, c.AlertThreshold)
	case c.Trees < 1:
		return fmt.Errorf("%w: trees must be positive, got %d", ErrInvalidConfig, c.Trees)
	case c.MaxSamples < 2:
		return fmt.Errorf("%w: max_samples must be at least 2, got %d", ErrInvalidConfig, c.MaxSamples)
	case c.FitWorkers < 1:
		return fmt.Errorf("%w: fit_workers must be positive, got %d", ErrInvalidConfig, c.FitWorkers)
	case c.TimestampPolicy != TimestampPolicyFail && c.TimestampPolicy != TimestampPolicyDrop:
		return fmt.Errorf("%w: timestamp_policy must be %q or %q, got %q", ErrInvalidConfig, TimestampPolicyFail, TimestampPolicyDrop, c.TimestampPolicy)
	case c.MaxUploadBytes < 1:
		return fmt.Errorf("%w: max_upload_bytes must be positive, got %d", ErrInvalidConfig, c.MaxUploadBytes)
	case c.MaxRowsInResponse < 0:
		return fmt.Errorf("%w: max_rows_in_response must not be negative, got %d", ErrInvalidConfig, c.MaxRowsInResponse)
	}
	return nil
}
