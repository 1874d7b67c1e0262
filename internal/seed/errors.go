package seed

import (
	"errors"
	"fmt"
)

var (
	// ErrSeeding matches every *SeedingError
	ErrSeeding = errors.New("data seeding failed")

	// ErrPrecondition matches every *PreconditionError
	ErrPrecondition = errors.New("precondition failed")

	// ErrNotSupported is returned by repositories that cannot perform an operation
	ErrNotSupported = errors.New("operation not supported by this repository")
)

// SeedingError is the error raised for every data seeding failure: malformed
// paths, nil navigations, count mismatches, missing lookups and constructor
// failures.
type SeedingError struct {
	Message string
	Err     error
}

// Error implements the error interface
func (e *SeedingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("seeding: %s: %v", e.Message, e.Err)
	}
	return "seeding: " + e.Message
}

// Unwrap returns the underlying cause
func (e *SeedingError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrSeeding) match any seeding error
func (e *SeedingError) Is(target error) bool {
	return target == ErrSeeding
}

// PreconditionError reports a contract violation on an entry point
type PreconditionError struct {
	Arg     string
	Message string
}

// Error implements the error interface
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s: %s", e.Arg, e.Message)
}

// Is lets errors.Is(err, ErrPrecondition) match any precondition error
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

func seedingErrorf(format string, args ...interface{}) error {
	return &SeedingError{Message: fmt.Sprintf(format, args...)}
}

// wrapSeeding wraps err into a *SeedingError unless it already is one
func wrapSeeding(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var se *SeedingError
	if errors.As(err, &se) {
		return err
	}
	return &SeedingError{Message: fmt.Sprintf(format, args...), Err: err}
}
