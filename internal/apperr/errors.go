// Package apperr defines the error taxonomy shared by the collar core.
// Callers wrap one of the sentinels with context and match with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a referenced collar, animal or assignment that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a duplicate business key or a lost uniqueness race.
	ErrConflict = errors.New("conflict")
	// ErrValidation marks malformed input such as a bad collar code.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks a broken deployment, e.g. a missing collar state row.
	// It must never be swallowed.
	ErrConfiguration = errors.New("configuration error")
	// ErrGeometry marks a parcel boundary that cannot be parsed.
	ErrGeometry = errors.New("geometry error")
)

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func Conflict(format string, args ...any) error {
	return wrap(ErrConflict, format, args...)
}

func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

func Configuration(format string, args ...any) error {
	return wrap(ErrConfiguration, format, args...)
}

func Geometry(format string, args ...any) error {
	return wrap(ErrGeometry, format, args...)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
