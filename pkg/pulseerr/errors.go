// Package pulseerr classifies the errors Pulse's components return so
// callers can branch on recoverability without string matching.
package pulseerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error classes a component-level operation can fail
// with.
type Kind string

const (
	// Transient errors are worth a bounded retry with backoff.
	Transient Kind = "transient"
	// Conflict errors mean the object changed underneath us; refetch and retry.
	Conflict Kind = "conflict"
	// Permission errors are never retried; they are logged and alerted on.
	Permission Kind = "permission"
	// InvariantViolation aborts the current tick, never the process.
	InvariantViolation Kind = "invariant_violation"
	// ExternalUnknown means a dependent signal could not be obtained and
	// must be treated as unknown, never as zero.
	ExternalUnknown Kind = "external_unknown"
)

// Error wraps an underlying error with a Kind so it can be classified by
// errors.As without parsing messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind and the operation name that produced it. A nil
// err still yields a non-nil *Error so callers can build sentinel failures.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind of err, defaulting to ExternalUnknown when err
// was not produced by this package.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ExternalUnknown
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether an error of this kind is worth retrying at all
// (Transient or Conflict); Permission, InvariantViolation, and
// ExternalUnknown are not retried by the caller that classifies them.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Transient, Conflict:
		return true
	default:
		return false
	}
}
