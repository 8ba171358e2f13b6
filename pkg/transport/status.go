package transport

// Status is the subscription status of a channel.
type Status uint8

const (
	// StatusConnecting means the subscription has not been confirmed yet.
	StatusConnecting Status = iota

	// StatusSubscribed means the transport confirmed the subscription.
	StatusSubscribed

	// StatusClosed means the channel was closed locally or by the peer.
	StatusClosed

	// StatusError means the subscription failed or the connection was lost.
	StatusError
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "CONNECTING"
	case StatusSubscribed:
		return "SUBSCRIBED"
	case StatusClosed:
		return "CLOSED"
	case StatusError:
		return "CHANNEL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the status ends a pending subscribe.
func (s Status) IsTerminal() bool {
	return s == StatusSubscribed || s == StatusClosed || s == StatusError
}
