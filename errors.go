package binder

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/openbinder/binder/internal/errs"
)

// Error is a structured dispatcher error with enough context to log or
// branch on without parsing a message string.
type Error struct {
	Op        string    // failing command, e.g. "BC_TRANSACTION"
	Code      ErrorCode // high-level error category
	ProcessID uint32    // process id (0 if not applicable)
	ThreadID  uint64    // OS thread id (0 if not applicable)
	Errno     syscall.Errno // kernel errno, present for parity with host-reported failures; unused on most paths
	Msg       string
	Inner     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.ProcessID != 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", e.ProcessID))
	}
	if e.ThreadID != 0 {
		parts = append(parts, fmt.Sprintf("tid=%d", e.ThreadID))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("binder: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("binder: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode names one of the abstract error kinds a control-surface call or
// a routed command can fail with.
type ErrorCode string

const (
	ErrCodeFault            ErrorCode = "fault"
	ErrCodeInvalidArgument  ErrorCode = "invalid argument"
	ErrCodeNoMemory         ErrorCode = "no memory"
	ErrCodeDeadReply        ErrorCode = "dead reply"
	ErrCodeFailedReply      ErrorCode = "failed reply"
	ErrCodeNoSpace          ErrorCode = "no space"
	ErrCodeBusy             ErrorCode = "busy"
	ErrCodePermissionDenied ErrorCode = "permission denied"
	ErrCodeUnknown          ErrorCode = "unknown"
)

var kindToCode = map[errs.Kind]ErrorCode{
	errs.Fault:            ErrCodeFault,
	errs.InvalidArgument:  ErrCodeInvalidArgument,
	errs.NoMemory:         ErrCodeNoMemory,
	errs.DeadReply:        ErrCodeDeadReply,
	errs.FailedReply:      ErrCodeFailedReply,
	errs.NoSpace:          ErrCodeNoSpace,
	errs.Busy:             ErrCodeBusy,
	errs.PermissionDenied: ErrCodePermissionDenied,
}

// NewError creates a structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// wrapInternal converts an *internal/errs.Error surfaced by ctrl or router
// into the public Error type, preserving op, process/thread context and the
// original error as Inner. Errors of any other shape pass through wrapped
// with ErrCodeUnknown so callers always see a *binder.Error at the
// package boundary.
func wrapInternal(err error) error {
	if err == nil {
		return nil
	}

	var ie *errs.Error
	if errors.As(err, &ie) {
		code, ok := kindToCode[ie.Kind]
		if !ok {
			code = ErrCodeUnknown
		}
		return &Error{
			Op:        ie.Op,
			Code:      code,
			ProcessID: ie.PID,
			ThreadID:  ie.ThreadID,
			Msg:       ie.Msg,
			Inner:     err,
		}
	}

	return &Error{Code: ErrCodeUnknown, Msg: err.Error(), Inner: err}
}

// IsCode reports whether err is, or wraps, a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}
