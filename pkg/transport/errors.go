package transport

import (
	"errors"
	"fmt"
)

// Channel errors.
var (
	ErrChannelClosed     = errors.New("channel closed")
	ErrAlreadySubscribed = errors.New("channel already subscribed")
	ErrNotSubscribed     = errors.New("channel not subscribed")
	ErrConnectionLost    = errors.New("connection lost")
	ErrSubscribeRejected = errors.New("subscribe rejected")
)

// Error describes a transport failure on a topic: the channel failed to
// open, subscribe or send.
type Error struct {
	// Op is the failed operation ("open", "subscribe", "send", "close").
	Op string

	// Topic is the affected topic.
	Topic string

	// Err is the underlying cause.
	Err error
}

// NewError wraps err as a transport error for op on topic.
func NewError(op, topic string, err error) *Error {
	return &Error{Op: op, Topic: topic, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s %q: %v", e.Op, e.Topic, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
