package cleaning

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds for this package. These allow errors.Is from callers.
var (
	ErrSchema      = errors.New("schema error")
	ErrParse       = errors.New("parse error")
	ErrEmptyResult = errors.New("empty result")
)

// SchemaError reports required columns absent from the input table.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: missing required column(s): %s", strings.Join(e.Missing, ", "))
}

// Is matches ErrSchema.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// ParseError reports a timestamp that matches none of the accepted layouts.
// Row is the 1-based data row, not counting the header.
type ParseError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: row %d: column %q: cannot parse %q as a date-time", e.Row, e.Column, e.Value)
}

// Is matches ErrParse.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

func (e *ParseError) Unwrap() error { return e.Err }

// EmptyResultError reports that cleaning dropped every row.
type EmptyResultError struct {
	InputRows   int
	DroppedRows int
}

func (e *EmptyResultError) Error() string {
	if e.InputRows == 0 {
		return "empty result: the table has no data rows"
	}
	return fmt.Sprintf("empty result: all %d row(s) were dropped during cleaning", e.DroppedRows)
}

// Is matches ErrEmptyResult.
func (e *EmptyResultError) Is(target error) bool { return target == ErrEmptyResult }
