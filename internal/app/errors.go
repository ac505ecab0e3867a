package service

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidParams = errors.New("invalid parameters")
	ErrNotStarted    = errors.New("service not started")
)
