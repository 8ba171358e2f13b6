package log

import (
	"time"
)

// Event represents a realtime log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the engine or connection that captured the event.
	SessionID string `cbor:"2,keyasint"`

	// Topic is the channel topic, empty for connection-level events.
	Topic string `cbor:"3,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"4,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"5,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"6,keyasint"`

	// RemoteAddr is the peer address (IP:port), when known.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Change    *ChangeEventData    `cbor:"10,keyasint,omitempty"`
	Presence  *PresenceEventData  `cbor:"11,keyasint,omitempty"`
	Status    *StatusEventData    `cbor:"12,keyasint,omitempty"`
	Broadcast *BroadcastEventData `cbor:"13,keyasint,omitempty"`
	Control   *ControlMsgEvent    `cbor:"14,keyasint,omitempty"`
	Health    *HealthEventData    `cbor:"15,keyasint,omitempty"`
	Error     *ErrorEventData     `cbor:"16,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming event.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the connection layer (websocket, keep-alive).
	LayerTransport Layer = 0
	// LayerChannel is the per-topic channel layer.
	LayerChannel Layer = 1
	// LayerEngine is the registry, presence and health layer.
	LayerEngine Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerChannel:
		return "CHANNEL"
	case LayerEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryChange indicates a record change notification.
	CategoryChange Category = 0
	// CategoryBroadcast indicates a custom broadcast message.
	CategoryBroadcast Category = 1
	// CategoryPresence indicates a presence roster event.
	CategoryPresence Category = 2
	// CategoryState indicates a status transition.
	CategoryState Category = 3
	// CategoryControl indicates a control message (ping/pong/close).
	CategoryControl Category = 4
	// CategoryHealth indicates a health check result.
	CategoryHealth Category = 5
	// CategoryError indicates an error event.
	CategoryError Category = 6
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryChange:
		return "CHANGE"
	case CategoryBroadcast:
		return "BROADCAST"
	case CategoryPresence:
		return "PRESENCE"
	case CategoryState:
		return "STATE"
	case CategoryControl:
		return "CONTROL"
	case CategoryHealth:
		return "HEALTH"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ChangeEventData captures a record change routed to listeners.
type ChangeEventData struct {
	// Operation is the raw change type (INSERT, UPDATE, DELETE).
	Operation string `cbor:"1,keyasint"`

	// Collection is the record collection.
	Collection string `cbor:"2,keyasint,omitempty"`

	// RecordID is the id of the changed record, if it has one.
	RecordID string `cbor:"3,keyasint,omitempty"`

	// CommitTimestamp is when the source committed the change.
	CommitTimestamp time.Time `cbor:"4,keyasint,omitempty"`
}

// PresenceEventData captures presence tracking and roster changes.
type PresenceEventData struct {
	// Action is what happened to the roster.
	Action PresenceAction `cbor:"1,keyasint"`

	// ParticipantID is the participant concerned (empty for sync).
	ParticipantID string `cbor:"2,keyasint,omitempty"`

	// RecordID is the record being edited, if any.
	RecordID string `cbor:"3,keyasint,omitempty"`

	// Intent is VIEWING or EDITING.
	Intent string `cbor:"4,keyasint,omitempty"`

	// RosterSize is the number of participants after the event.
	RosterSize int `cbor:"5,keyasint"`
}

// PresenceAction indicates what happened to a presence roster.
type PresenceAction uint8

const (
	// PresenceTrack indicates the local participant was tracked.
	PresenceTrack PresenceAction = 0
	// PresenceUntrack indicates the local participant was untracked.
	PresenceUntrack PresenceAction = 1
	// PresenceSync indicates a full roster snapshot arrived.
	PresenceSync PresenceAction = 2
	// PresenceJoin indicates a participant joined.
	PresenceJoin PresenceAction = 3
	// PresenceLeave indicates a participant left.
	PresenceLeave PresenceAction = 4
)

// String returns the presence action name.
func (a PresenceAction) String() string {
	switch a {
	case PresenceTrack:
		return "TRACK"
	case PresenceUntrack:
		return "UNTRACK"
	case PresenceSync:
		return "SYNC"
	case PresenceJoin:
		return "JOIN"
	case PresenceLeave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// StatusEventData captures channel and connection lifecycle events.
type StatusEventData struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityChannel indicates a channel status change.
	StateEntityChannel StateEntity = 0
	// StateEntityConnection indicates a websocket connection state change.
	StateEntityConnection StateEntity = 1
	// StateEntitySubscription indicates a registry entry was added, replaced or removed.
	StateEntitySubscription StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityChannel:
		return "CHANNEL"
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	default:
		return "UNKNOWN"
	}
}

// BroadcastEventData captures a custom broadcast message.
type BroadcastEventData struct {
	// Name is the broadcast event name.
	Name string `cbor:"1,keyasint"`

	// Payload is the message payload.
	Payload map[string]any `cbor:"2,keyasint,omitempty"`
}

// ControlMsgEvent captures connection-level control messages.
type ControlMsgEvent struct {
	// Type of control message.
	Type ControlMsgType `cbor:"1,keyasint"`

	// Seq is the ping sequence number.
	Seq uint32 `cbor:"2,keyasint,omitempty"`

	// Latency is the ping round trip (pong only).
	Latency time.Duration `cbor:"3,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	// ControlMsgPing indicates a ping message.
	ControlMsgPing ControlMsgType = 0
	// ControlMsgPong indicates a pong message.
	ControlMsgPong ControlMsgType = 1
	// ControlMsgClose indicates a close message.
	ControlMsgClose ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// HealthEventData captures a health check result.
type HealthEventData struct {
	Connected bool          `cbor:"1,keyasint"`
	Latency   time.Duration `cbor:"2,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
