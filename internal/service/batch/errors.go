package batch

import "errors"

// Common errors returned by the Tracker
var (
	// ErrNoValidRows is returned when a submission would create no tasks.
	ErrNoValidRows = errors.New("no valid rows to process")

	// ErrTooManyRows is returned when a submission exceeds the configured row limit.
	ErrTooManyRows = errors.New("too many rows in batch")
)
