// Package errors provides formatted error construction and wrapping on top
// of github.com/pkg/errors so call sites get stack traces for free.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// New returns an error with the given format and a stack trace.
func New(format string, args ...interface{}) error {
	if len(args) == 0 {
		return errors.New(format)
	}
	return errors.New(fmt.Sprintf(format, args...))
}

// Wrap annotates err with a formatted message and a stack trace.
// Returns nil if err is nil.
func Wrap(err error, format string, args ...interface{}) error {
	if len(args) == 0 {
		return errors.Wrap(err, format)
	}
	return errors.Wrapf(err, format, args...)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Cause returns the underlying cause of the error, if possible.
func Cause(err error) error {
	return errors.Cause(err)
}
