// Package catalogerr defines the error taxonomy shared across the catalog
// maintenance engine and maps each class to a process exit code.
package catalogerr

import (
	"errors"
	"fmt"
)

// Class identifies one of the error categories named by the maintenance
// engine's error taxonomy.
type Class int

const (
	// ClassInvalidArgument covers malformed options or option combinations.
	ClassInvalidArgument Class = iota
	ClassURIParse
	ClassBackendUnavailable
	ClassAuthorizationRequired
	ClassOpen
	ClassSchema
	ClassTransaction
	ClassQuery
	ClassConstraint
	ClassIntegrityViolation
	ClassUnknownVersion
	ClassUnsupportedVersion
	ClassOutOfMemory
	ClassCancelled
)

func (c Class) String() string {
	switch c {
	case ClassInvalidArgument:
		return "InvalidArgument"
	case ClassURIParse:
		return "UriParseError"
	case ClassBackendUnavailable:
		return "BackendUnavailable"
	case ClassAuthorizationRequired:
		return "AuthorizationRequired"
	case ClassOpen:
		return "Open"
	case ClassSchema:
		return "Schema"
	case ClassTransaction:
		return "Transaction"
	case ClassQuery:
		return "Query"
	case ClassConstraint:
		return "Constraint"
	case ClassIntegrityViolation:
		return "IntegrityViolation"
	case ClassUnknownVersion:
		return "UnknownVersion"
	case ClassUnsupportedVersion:
		return "UnsupportedVersion"
	case ClassOutOfMemory:
		return "OutOfMemory"
	case ClassCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error is a classified, wrapped error. Step-local context (storage id,
// entity id, operation name) belongs in the Op field, not baked into the
// message string, so callers can match on Class without parsing text.
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Class, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode maps the error's class to the process exit status from spec §6.
// Argument and URI errors are 2, an unreachable backend or a failed open is
// 3 (fatal environment error), everything else recognized is 1 (operation
// failure); unrecognized errors also map to 1 so a bare Go error from a
// driver still produces a sane exit status.
func (e *Error) ExitCode() int {
	switch e.Class {
	case ClassInvalidArgument, ClassURIParse:
		return 2
	case ClassBackendUnavailable, ClassOpen:
		return 3
	default:
		return 1
	}
}

// New wraps err under the given class and operation label.
func New(class Class, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Op: op, Err: err}
}

// Newf is New with a formatted operation label.
func Newf(class Class, err error, format string, args ...any) error {
	return New(class, fmt.Sprintf(format, args...), err)
}

// ExitCode returns the mapped exit code for any error, defaulting to 1 for
// unclassified errors and 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.ExitCode()
	}
	return 1
}

// Is reports whether err is classified as class.
func Is(err error, class Class) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Class == class
	}
	return false
}
