package stream

import (
	"errors"
	"fmt"
)

// Error is the data error carried by Failure events.
//
// The runtime never inspects Payload; collaborators decide what it holds.
type Error struct {
	// Code categorizes the failure (e.g., "TIMEOUT", "VALIDATION").
	Code string

	// Payload is an arbitrary value attached by the producer.
	Payload any

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Payload != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Payload)
	default:
		return e.Code
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error carrying payload.
func NewError(code string, payload any) *Error {
	return &Error{Code: code, Payload: payload}
}

// WrapError creates an Error wrapping err.
func WrapError(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

// PayloadOf extracts the payload of the first *Error in err's chain.
func PayloadOf(err error) (any, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Payload, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
