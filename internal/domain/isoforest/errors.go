package isoforest

import "errors"

// Sentinel error kinds for this package.
var (
	ErrEmptyMatrix          = errors.New("empty feature matrix")
	ErrInvalidMatrix        = errors.New("invalid feature matrix")
	ErrInvalidContamination = errors.New("contamination must be in (0, 0.5]")
)
