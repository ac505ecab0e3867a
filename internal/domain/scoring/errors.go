package scoring

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidContamination = errors.New("invalid contamination")
	ErrEmptyBatch           = errors.New("empty batch")
	ErrMissingFeature       = errors.New("missing feature column")
)
