package changes

import (
	"errors"
	"fmt"
)

// ErrListenerPanic is wrapped by a ListenerError created from a recovered panic.
var ErrListenerPanic = errors.New("listener panicked")

// MalformedEventError reports a change payload that could not be translated.
// The original event is dropped.
type MalformedEventError struct {
	Type       string
	Collection string
	Reason     string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s event on %q: %s", e.Type, e.Collection, e.Reason)
}

// ListenerError wraps a failure raised by a caller-supplied callback.
type ListenerError struct {
	// Callback names the failing callback (OnInsert, OnUpdate, ...).
	Callback string
	Err      error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %s: %v", e.Callback, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}
