// Package errs defines the error kinds raised by the service layer.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks errors where a referenced entity does not exist or is inactive
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks operations attempted in a state that forbids them
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation marks malformed input
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks concurrent-modification races
	ErrConflict = errors.New("conflict")
)

// NotFoundf wraps ErrNotFound with context, preserving errors.Is
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// InvalidStatef wraps ErrInvalidState with context
func InvalidStatef(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidState)...)
}

// Validationf wraps ErrValidation with context
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// Conflictf wraps ErrConflict with context
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidState reports whether err is an invalid-state error
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict reports whether err is a conflict error
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
