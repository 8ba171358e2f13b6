package transport

import "time"

// EventKind tags an Event.
type EventKind uint8

const (
	// KindChange carries a record change notification.
	KindChange EventKind = iota

	// KindBroadcast carries a custom message sent by another channel.
	KindBroadcast

	// KindPresence carries the full presence roster of the topic.
	KindPresence
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case KindChange:
		return "CHANGE"
	case KindBroadcast:
		return "BROADCAST"
	case KindPresence:
		return "PRESENCE"
	default:
		return "UNKNOWN"
	}
}

// Change types as emitted by the change-notification source.
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

// Event is a tagged notification delivered on a channel.
// Exactly one of Change, Broadcast or Presence is set, matching Kind.
type Event struct {
	Kind      EventKind                 `cbor:"1,keyasint"`
	Topic     string                    `cbor:"2,keyasint"`
	Change    *RawChange                `cbor:"3,keyasint,omitempty"`
	Broadcast *Broadcast                `cbor:"4,keyasint,omitempty"`
	Presence  map[string][]PresenceMeta `cbor:"5,keyasint,omitempty"`
}

// RawChange is the transport payload of a record mutation.
type RawChange struct {
	// Type is one of ChangeInsert, ChangeUpdate, ChangeDelete.
	Type string `cbor:"1,keyasint" json:"type"`

	// Collection names the record collection (table).
	Collection string `cbor:"2,keyasint" json:"collection"`

	// New is the row after the mutation (INSERT, UPDATE).
	New map[string]any `cbor:"3,keyasint,omitempty" json:"new,omitempty"`

	// Old is the row before the mutation (UPDATE, DELETE).
	Old map[string]any `cbor:"4,keyasint,omitempty" json:"old,omitempty"`

	// CommitTimestamp is when the source committed the mutation.
	CommitTimestamp time.Time `cbor:"5,keyasint" json:"commit_timestamp"`
}

// Broadcast is a custom message relayed between channels of a topic.
type Broadcast struct {
	Event   string         `cbor:"1,keyasint"`
	Payload map[string]any `cbor:"2,keyasint,omitempty"`
}

// PresenceMeta is one tracked presence payload.
type PresenceMeta map[string]any

// MessageKind tags a Message sent on a channel.
type MessageKind uint8

const (
	// MessageBroadcast relays Event/Payload to the other channels of the topic.
	MessageBroadcast MessageKind = iota

	// MessageTrack sets the presence entry for Key to Payload.
	MessageTrack

	// MessageUntrack removes the presence entry for Key.
	MessageUntrack
)

// String returns the message kind name.
func (k MessageKind) String() string {
	switch k {
	case MessageBroadcast:
		return "BROADCAST"
	case MessageTrack:
		return "TRACK"
	case MessageUntrack:
		return "UNTRACK"
	default:
		return "UNKNOWN"
	}
}

// Message is a signaling payload sent on a channel.
type Message struct {
	Kind    MessageKind    `cbor:"1,keyasint"`
	Event   string         `cbor:"2,keyasint,omitempty"`
	Key     string         `cbor:"3,keyasint,omitempty"`
	Payload map[string]any `cbor:"4,keyasint,omitempty"`
}
