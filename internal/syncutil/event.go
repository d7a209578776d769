package syncutil

import (
	"errors"
	"time"
)

var (
	// ErrWaitTimeout is returned by Event.Wait when the timeout elapses first.
	ErrWaitTimeout = errors.New("wait timed out")
	// ErrWaitAborted is returned by Event.Wait when the event is aborted.
	ErrWaitAborted = errors.New("wait aborted")
)

// Event is a named rendezvous between one waiter and one notifier.
//
// A waiter takes the event lock, issues the command whose confirmation it
// expects, then calls Wait. Notifiers take the same lock before delivering,
// so a confirmation can never overtake the waiter's registration. Signals are
// not remembered: a Notify with nobody waiting is dropped.
type Event struct {
	name   string
	mu     Mutex
	state  Mutex
	waiter chan error
	skip   int
}

// NewEvent creates an event with the given name.
func NewEvent(name string) *Event {
	return &Event{name: name}
}

// Name returns the event name.
func (e *Event) Name() string {
	return e.name
}

// Lock acquires the event lock.
func (e *Event) Lock() {
	e.mu.Lock()
}

// Unlock releases the event lock.
func (e *Event) Unlock() {
	e.mu.Unlock()
}

// Wait blocks until the event is notified, aborted, or the timeout elapses.
// It must be called with the event locked; the lock is released while
// blocked and held again on return. A zero timeout waits forever.
//
// The returned error is the result passed to Notify, ErrWaitAborted, or
// ErrWaitTimeout.
func (e *Event) Wait(timeout time.Duration) error {
	ch := make(chan error, 1)

	e.state.Lock()
	e.waiter = ch
	e.state.Unlock()
	e.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var err error
	select {
	case err = <-ch:
	case <-expired:
		err = ErrWaitTimeout
	}

	e.mu.Lock()
	e.state.Lock()
	if e.waiter == ch {
		e.waiter = nil
	}
	e.state.Unlock()
	return err
}

// Notify wakes the single blocked waiter with result. It reports whether a
// waiter was woken. If SkipNext was called, the notification is consumed
// without waking anyone.
func (e *Event) Notify(result error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Lock()
	defer e.state.Unlock()
	if e.skip > 0 {
		e.skip--
		return false
	}
	return e.deliverLocked(result)
}

// Abort wakes the blocked waiter, if any, with ErrWaitAborted. Pending skips
// are cleared because the confirmations they stood for will not arrive.
func (e *Event) Abort() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Lock()
	defer e.state.Unlock()
	e.skip = 0
	return e.deliverLocked(ErrWaitAborted)
}

// SkipNext marks the next notification as belonging to a command nobody
// waits for.
func (e *Event) SkipNext() {
	e.state.Lock()
	e.skip++
	e.state.Unlock()
}

// Waiting reports whether a waiter is currently blocked.
func (e *Event) Waiting() bool {
	e.state.Lock()
	defer e.state.Unlock()
	return e.waiter != nil
}

func (e *Event) deliverLocked(result error) bool {
	if e.waiter == nil {
		return false
	}
	e.waiter <- result
	e.waiter = nil
	return true
}
