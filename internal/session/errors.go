package session

import "fmt"

// TransitionError reports a lifecycle transition that the state machine
// does not allow.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: invalid transition %s -> %s", e.From, e.To)
}

// Is implements errors.Is for TransitionError.
func (e *TransitionError) Is(target error) bool {
	_, ok := target.(*TransitionError)
	return ok
}

// ErrInvalidTransition is a sentinel for errors.Is matching.
var ErrInvalidTransition = &TransitionError{}
