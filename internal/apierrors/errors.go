// Package apierrors implements the error taxonomy from spec §7: a small
// set of kinds (not Go types) that every component's call sites can branch
// on without string matching.
package apierrors

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind is one of the taxonomy buckets from spec §7.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not-found"
	KindConflict           Kind = "conflict"
	KindDegradedDependency Kind = "degraded-dependency"
	KindCircuitOpen        Kind = "circuit-open"
	KindTransient          Kind = "transient"
	KindFatal              Kind = "fatal"
)

// Error wraps an underlying cause with a Kind and a stable code string
// (e.g. "id-unavailable", "alias-taken") used by callers and tests.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error with no underlying cause.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// Wrap attaches a Kind and code to an underlying error, preserving it in
// the chain via go-faster/errors so callers can still Unwrap/Is/As through
// to the original cause (e.g. a driver-level sql.ErrNoRows).
func Wrap(kind Kind, code string, err error, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg, Err: errors.Wrap(err, msg)}
}

// Is reports whether err (or anything in its chain) is an *Error of kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// CodeOf extracts the stable code string, or "" if err isn't an *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Common sentinel constructors used across the core.
func NotFound(code, msg string) *Error  { return New(KindNotFound, code, msg) }
func Validation(code, msg string) *Error { return New(KindValidation, code, msg) }
func Conflict(code, msg string) *Error  { return New(KindConflict, code, msg) }
func CircuitOpen(code, msg string) *Error {
	return New(KindCircuitOpen, code, msg)
}
