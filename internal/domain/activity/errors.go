package activity

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds for pipeline errors. Typed errors below match them via errors.Is.
var (
	ErrSchema         = errors.New("schema error")
	ErrEmptyResult    = errors.New("empty result")
	ErrRowComputation = errors.New("row computation error")
	ErrDateRange      = errors.New("invalid date range")
)

// SchemaError reports a required column that is absent or entirely empty.
type SchemaError struct {
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: required column %q is missing", e.Column)
}

// Is matches ErrSchema.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// EmptyResultError reports that filtering left no rows.
type EmptyResultError struct {
	Reason string
}

func (e *EmptyResultError) Error() string {
	return "empty result: " + e.Reason
}

// Is matches ErrEmptyResult.
func (e *EmptyResultError) Is(target error) bool { return target == ErrEmptyResult }

// RowComputationError reports a derived metric that could not be computed for
// one row. The row stays in the table with the metric masked.
type RowComputationError struct {
	Index    int
	Category Category
	Metric   string
	Reason   string
}

func (e *RowComputationError) Error() string {
	return fmt.Sprintf("row %d (%s): cannot compute %s: %s", e.Index, e.Category, e.Metric, e.Reason)
}

// Is matches ErrRowComputation.
func (e *RowComputationError) Is(target error) bool { return target == ErrRowComputation }

// DateRangeError reports a range whose start is after its end.
type DateRangeError struct {
	From, To time.Time
}

func (e *DateRangeError) Error() string {
	return fmt.Sprintf("invalid date range: start %s is after end %s",
		e.From.Format(dateLayout), e.To.Format(dateLayout))
}

// Is matches ErrDateRange.
func (e *DateRangeError) Is(target error) bool { return target == ErrDateRange }
