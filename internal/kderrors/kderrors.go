// Package kderrors defines the closed taxonomy of error kinds used
// throughout kingdom. Every surfaced failure wraps exactly one Kind so
// callers can branch on classification with errors.As instead of
// string matching.
package kderrors

import "fmt"

// Kind is a closed enumeration of error classifications. New values
// must be added here, not invented ad hoc at call sites.
type Kind string

const (
	NotFound        Kind = "NotFound"
	Ambiguous       Kind = "Ambiguous"
	Conflict        Kind = "Conflict"
	Cycle           Kind = "Cycle"
	Timeout         Kind = "Timeout"
	NonZeroExit     Kind = "NonZeroExit"
	Parse           Kind = "Parse"
	CommandNotFound Kind = "CommandNotFound"
	InvalidConfig   Kind = "InvalidConfig"
	IO              Kind = "IO"
)

// Error carries a Kind plus a human-readable detail and optional
// wrapped cause. It implements error and errors.Unwrap.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with the given kind and formatted detail.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error that also chains an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ke, ok := err.(*Error); ok {
			e = ke
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}

// Retriable reports whether an error of this kind should be retried by
// the adapter query loop (spec §4.4 step 6).
func (k Kind) Retriable() bool {
	switch k {
	case Timeout, NonZeroExit, Parse:
		return true
	default:
		return false
	}
}
