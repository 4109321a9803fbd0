package bridge

import (
	"errors"
	"fmt"

	"wabridge/pkg/channel"
)

var (
	// ErrNotReady is returned for outbound requests while the session is
	// not Ready.
	ErrNotReady = errors.New("bridge: session not ready")

	// ErrAuthTimeout is returned when session.auth_timeout elapses before
	// the session becomes Ready.
	ErrAuthTimeout = errors.New("bridge: authentication timed out")

	// ErrQueueFull is returned by TrySubmit when the dispatch queue has no
	// free slot.
	ErrQueueFull = errors.New("bridge: dispatch queue full")
)

// DispatchFailedError indicates a send request the session client did not
// deliver. It is logged and never retried.
type DispatchFailedError struct {
	Request channel.SendRequest
	Source  Source
	Cause   error
}

func (e *DispatchFailedError) Error() string {
	return fmt.Sprintf("bridge: dispatch to %s failed: %v", e.Request.ChatID, e.Cause)
}

func (e *DispatchFailedError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for DispatchFailedError.
func (e *DispatchFailedError) Is(target error) bool {
	_, ok := target.(*DispatchFailedError)
	return ok
}

// SessionFatalError indicates the session ended and the bridge cannot
// continue.
type SessionFatalError struct {
	Reason string
	Cause  error
}

func (e *SessionFatalError) Error() string {
	switch {
	case e.Cause != nil && e.Reason != "":
		return fmt.Sprintf("bridge: session fatal: %s: %v", e.Reason, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("bridge: session fatal: %v", e.Cause)
	default:
		return fmt.Sprintf("bridge: session fatal: %s", e.Reason)
	}
}

func (e *SessionFatalError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for SessionFatalError.
func (e *SessionFatalError) Is(target error) bool {
	_, ok := target.(*SessionFatalError)
	return ok
}

// Sentinel errors for errors.Is matching.
var (
	ErrDispatchFailed = &DispatchFailedError{}
	ErrSessionFatal   = &SessionFatalError{}
)
