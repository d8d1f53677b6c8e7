package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Domain sentinels wrap exactly one of these so transports can
// classify failures with errors.Is.
var (
	// ErrNotFound indicates an unknown resource.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates input or state rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConfiguration indicates missing reference data such as a ledger
	// account or agreement. Never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrConflict indicates a concurrent or duplicate request.
	ErrConflict = errors.New("conflict")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// NotFoundf builds a not-found error.
func NotFoundf(format string, args ...any) error {
	return &kindError{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

// Validationf builds a validation error.
func Validationf(format string, args ...any) error {
	return &kindError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// Configurationf builds a configuration error.
func Configurationf(format string, args ...any) error {
	return &kindError{kind: ErrConfiguration, msg: fmt.Sprintf(format, args...)}
}

// Conflictf builds a conflict error.
func Conflictf(format string, args ...any) error {
	return &kindError{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}
