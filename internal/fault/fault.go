// SPDX-License-Identifier: MIT

// Package fault defines the closed set of error kinds used across the
// control plane. Every operation returns a plain error; callers classify
// it with Kind and the HTTP layer maps kinds to status codes.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a failure.
type Kind string

const (
	// KindNotFound means the addressed zone, client or resource does not exist.
	KindNotFound Kind = "NotFound"
	// KindInvalid means input validation failed before any side effect.
	KindInvalid Kind = "Invalid"
	// KindUnavailable means a backing adapter is disconnected or unreachable.
	KindUnavailable Kind = "Unavailable"
	// KindTimeout means the operation deadline was exceeded.
	KindTimeout Kind = "Timeout"
	// KindConflict means a state precondition was violated.
	KindConflict Kind = "Conflict"
	// KindHandlerMissing means no handler is registered for a command type.
	// This is a wiring bug, not a runtime condition.
	KindHandlerMissing Kind = "HandlerMissing"
	// KindBackpressure means a bounded queue rejected the operation.
	KindBackpressure Kind = "Backpressure"
	// KindExternal wraps an error reported by a third-party service.
	KindExternal Kind = "External"
	// KindInternal is a bug in this process.
	KindInternal Kind = "Internal"
)

// Error carries a kind and a human-readable message, optionally wrapping
// a lower-level cause.
type Error struct {
	Kind Kind
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

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error. A nil cause
// returns nil so call sites can wrap unconditionally.
func Wrap(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) error    { return New(KindNotFound, format, args...) }
func Invalid(format string, args ...any) error     { return New(KindInvalid, format, args...) }
func Unavailable(format string, args ...any) error { return New(KindUnavailable, format, args...) }
func Timeout(format string, args ...any) error     { return New(KindTimeout, format, args...) }
func Conflict(format string, args ...any) error    { return New(KindConflict, format, args...) }
func Internal(format string, args ...any) error    { return New(KindInternal, format, args...) }

// Message returns the human-readable message chain of an error without
// the kind prefixes Error() renders. Non-fault errors report Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if !errors.As(err, &fe) {
		return err.Error()
	}
	if fe.Err != nil {
		return fmt.Sprintf("%s: %s", fe.Msg, Message(fe.Err))
	}
	return fe.Msg
}

// KindOf classifies an arbitrary error. Unclassified errors report
// KindInternal; a nil error has no kind and reports "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
