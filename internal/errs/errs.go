// Package errs defines the dispatcher's abstract error kinds and the
// structured error type carried across package boundaries, so router,
// ctrl and the public API share one vocabulary without an import cycle
// back to the root package.
package errs

import (
	"errors"
	"fmt"
)

// Kind is an abstract error category, independent of any host's errno
// mapping.
type Kind string

const (
	Fault            Kind = "fault"             // user-buffer copy failure
	InvalidArgument  Kind = "invalid_argument"   // malformed opcode or size
	NoMemory         Kind = "no_memory"
	DeadReply        Kind = "dead_reply"         // target queue unreachable
	FailedReply      Kind = "failed_reply"       // protocol violation by caller
	NoSpace          Kind = "no_space"           // read buffer too small; retryable
	Busy             Kind = "busy"               // context manager already bound
	PermissionDenied Kind = "permission_denied"  // context manager bound by a different euid
)

// Error is the structured error type returned by dispatcher operations.
type Error struct {
	Op       string
	PID      uint32
	ThreadID uint64
	Kind     Kind
	Msg      string
	Inner    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return fmt.Sprintf("binder: %s: %s (pid=%d)", e.Op, msg, e.PID)
	}
	return fmt.Sprintf("binder: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// New creates a structured error of the given kind.
func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// Wrap attaches op and kind to an existing error.
func Wrap(op string, kind Kind, inner error) *Error {
	if inner == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Msg: inner.Error(), Inner: inner}
}

// WithProcess returns a copy of e annotated with process context.
func (e *Error) WithProcess(pid uint32) *Error {
	c := *e
	c.PID = pid
	return &c
}

// WithThread returns a copy of e annotated with thread context.
func (e *Error) WithThread(threadID uint64) *Error {
	c := *e
	c.ThreadID = threadID
	return &c
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}
