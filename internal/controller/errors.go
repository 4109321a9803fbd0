package controller

import (
	"errors"
	"fmt"
)

// ErrEmbeddedNewline is returned when a forwarded body contains a line
// break and the newline policy is reject.
var ErrEmbeddedNewline = errors.New("controller: body contains a line break")

// ErrLineTooLong is the cause of a MalformedRequestError for a controller
// line longer than the configured limit.
var ErrLineTooLong = errors.New("controller: line too long")

// MalformedRequestError indicates a controller line that is not a valid
// send request.
type MalformedRequestError struct {
	Line   string
	Reason string
	Cause  error
}

func (e *MalformedRequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("controller: malformed request (%s): %v: %q", e.Reason, e.Cause, e.Line)
	}
	return fmt.Sprintf("controller: malformed request (%s): %q", e.Reason, e.Line)
}

func (e *MalformedRequestError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for MalformedRequestError.
func (e *MalformedRequestError) Is(target error) bool {
	_, ok := target.(*MalformedRequestError)
	return ok
}

// ErrMalformedRequest is a sentinel for errors.Is matching.
var ErrMalformedRequest = &MalformedRequestError{}
