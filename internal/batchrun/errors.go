package batchrun

import "errors"

var (
	ErrNoInput      = errors.New("batchrun: no input; use -input or -generate")
	ErrInvalidInput = errors.New("batchrun: invalid input")
	ErrRemote       = errors.New("batchrun: remote analyze failed")
)
