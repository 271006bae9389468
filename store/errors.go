package store

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument is returned for malformed requests to the store.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDimensionMismatch is returned when an embedding length differs from the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrIndexNotFound is returned when an operation targets an index that was never created.
	ErrIndexNotFound = errors.New("index not found")
	// ErrIndexConflict is returned by EnsureIndex when the index exists with another dimension or metric.
	ErrIndexConflict = errors.New("index exists with a different configuration")
)

// SchemaError reports a catalog source that is missing or lacks a required field.
type SchemaError struct {
	Source string
	Field  string
	Row    int // 1-based data row, 0 when not row specific
	Reason string
}

func (e *SchemaError) Error() string {
	msg := "schema error"
	if e.Source != "" {
		msg += " in " + e.Source
	}
	if e.Row > 0 {
		msg += fmt.Sprintf(" at row %d", e.Row)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(": field %q", e.Field)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// DataUnavailableError reports a supporting data source that is absent.
type DataUnavailableError struct {
	Source string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("data unavailable: %s", e.Source)
	}
	return fmt.Sprintf("data unavailable: %s: %v", e.Source, e.Err)
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a caller error that retrying cannot fix.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var schemaErr *SchemaError
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrIndexNotFound) ||
		errors.Is(err, ErrIndexConflict) ||
		errors.As(err, &schemaErr)
}
