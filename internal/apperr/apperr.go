// Package apperr holds the error taxonomy shared by the rendering and dispatch layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller mistakes detected before any rendering or printer I/O.
	ErrValidation = errors.New("validation error")

	// ErrRender marks content that cannot be laid out on the requested label.
	ErrRender = errors.New("render error")
)

// Validation returns an error wrapping ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Render returns an error wrapping ErrRender.
func Render(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRender, fmt.Sprintf(format, args...))
}

// IsValidation reports whether err is (or wraps) a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRender reports whether err is (or wraps) a render error.
func IsRender(err error) bool {
	return errors.Is(err, ErrRender)
}
