package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound matches ErrSessionNotFound and ErrOrderNotFound.
	ErrNotFound = errors.New("not found")

	ErrSessionNotFound = &notFoundError{what: "payment session not found"}
	ErrOrderNotFound   = &notFoundError{what: "order not found"}
)

// ValidationError is malformed or missing caller input.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type notFoundError struct {
	what string
}

func (e *notFoundError) Error() string { return e.what }

func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }
