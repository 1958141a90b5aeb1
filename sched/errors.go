package sched

import (
	"errors"
	"fmt"
)

// ViolationError reports a broken runtime contract.
//
// Violations are programmer errors, not data errors. They are raised with
// panic and must never be recovered into a Failure event: letting them pass
// silently would corrupt the close handshake.
type ViolationError struct {
	// Code identifies the violated contract.
	Code ViolationCode

	// Message is a human-readable description.
	Message string

	// Context names the context or component that detected the violation.
	Context string
}

// ViolationCode categorizes contract violations.
type ViolationCode string

const (
	// ErrCodeActorMismatch indicates code ran on the wrong actor.
	ErrCodeActorMismatch ViolationCode = "ACTOR_MISMATCH"

	// ErrCodeDoubleSubscribe indicates Subscribe was called twice on a channel.
	ErrCodeDoubleSubscribe ViolationCode = "DOUBLE_SUBSCRIBE"

	// ErrCodeDoubleCloseHandler indicates SetCloseHandler was called twice.
	ErrCodeDoubleCloseHandler ViolationCode = "DOUBLE_CLOSE_HANDLER"

	// ErrCodeEmitAfterClose indicates a producer emitted after termination.
	ErrCodeEmitAfterClose ViolationCode = "EMIT_AFTER_CLOSE"

	// ErrCodeClockRewind indicates a virtual clock was asked to move backwards.
	ErrCodeClockRewind ViolationCode = "CLOCK_REWIND"

	// ErrCodeExecutorStopped indicates work was submitted to a stopped executor.
	ErrCodeExecutorStopped ViolationCode = "EXECUTOR_STOPPED"
)

// Error implements the error interface.
func (e *ViolationError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (context=%s)", e.Code, e.Message, e.Context)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Violate panics with a ViolationError.
func Violate(code ViolationCode, context, format string, args ...any) {
	panic(&ViolationError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Context: context,
	})
}

// IsViolation reports whether a recovered panic value is a ViolationError.
func IsViolation(recovered any) bool {
	err, ok := recovered.(error)
	if !ok {
		return false
	}
	var ve *ViolationError
	return errors.As(err, &ve)
}

// CodeOf returns the violation code of a recovered panic value, or "" when
// the value is not a ViolationError.
func CodeOf(recovered any) ViolationCode {
	err, ok := recovered.(error)
	if !ok {
		return ""
	}
	var ve *ViolationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
