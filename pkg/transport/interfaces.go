package transport

import "context"

// EventHandler receives events delivered on a channel.
type EventHandler func(Event)

// StatusHandler receives channel status transitions. err is set for
// StatusError and may be set for StatusClosed.
type StatusHandler func(status Status, err error)

// Transport opens channels to a change-notification source.
type Transport interface {
	// Open creates a channel for topic. The channel is not subscribed yet.
	Open(topic string) (Channel, error)
}

// Channel is a single subscription to one topic. A Channel owns its
// underlying transport resource; Close releases it.
type Channel interface {
	// Topic returns the topic this channel was opened for.
	Topic() string

	// OnEvent sets the event handler. Events arriving before a handler is
	// set are dropped. Handlers are invoked sequentially, in delivery order.
	OnEvent(h EventHandler)

	// Subscribe asks the transport to start delivering events. It returns
	// immediately; cb receives every status transition.
	Subscribe(cb StatusHandler) error

	// Send transmits a signaling message (broadcast, presence track/untrack).
	Send(ctx context.Context, msg Message) error

	// Status returns the current status.
	Status() Status

	// Close releases the channel. It is safe to call Close multiple times.
	Close() error
}
