// Package session tracks the lifecycle of the single chat session owned by
// the bridge process.
package session

import (
	"fmt"
	"sync"
	"time"
)

// State is a session lifecycle state.
type State int32

const (
	Uninitialized State = iota
	AwaitingAuth
	Ready
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case AwaitingAuth:
		return "awaiting_auth"
	case Ready:
		return "ready"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Lifecycle is the session state machine:
//
//	Uninitialized -> AwaitingAuth -> Ready -> Terminated
//
// Terminated is reachable from every state and is final. There is no way
// back to AwaitingAuth; re-authentication requires a process restart.
type Lifecycle struct {
	mu        sync.RWMutex
	state     State
	cause     error
	changedAt time.Time

	ready chan struct{}
	done  chan struct{}
}

// NewLifecycle returns a lifecycle in the Uninitialized state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		state:     Uninitialized,
		changedAt: time.Now(),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Since returns when the current state was entered.
func (l *Lifecycle) Since() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.changedAt
}

// IsReady reports whether the session is usable.
func (l *Lifecycle) IsReady() bool {
	return l.State() == Ready
}

// Begin moves Uninitialized to AwaitingAuth.
func (l *Lifecycle) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Uninitialized {
		return &TransitionError{From: l.state, To: AwaitingAuth}
	}
	l.set(AwaitingAuth)
	return nil
}

// MarkReady moves AwaitingAuth to Ready. It reports whether the state
// changed; a duplicate ready signal returns false and no error.
func (l *Lifecycle) MarkReady() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case Ready:
		return false, nil
	case AwaitingAuth:
		l.set(Ready)
		close(l.ready)
		return true, nil
	default:
		return false, &TransitionError{From: l.state, To: Ready}
	}
}

// Terminate moves any state to Terminated and records the cause. Only the
// first call has an effect; it reports whether this call terminated.
func (l *Lifecycle) Terminate(cause error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == Terminated {
		return false
	}
	l.set(Terminated)
	l.cause = cause
	close(l.done)
	return true
}

// Cause returns the error passed to Terminate, if any.
func (l *Lifecycle) Cause() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cause
}

// ReadyC is closed once the session becomes Ready.
func (l *Lifecycle) ReadyC() <-chan struct{} {
	return l.ready
}

// Done is closed once the session is Terminated.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

// caller holds l.mu
func (l *Lifecycle) set(s State) {
	l.state = s
	l.changedAt = time.Now()
}
