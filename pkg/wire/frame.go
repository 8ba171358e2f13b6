package wire

import (
	"errors"

	"github.com/orgdesk/realtime-go/pkg/transport"
)

// Frame validation errors.
var (
	ErrUnknownFrameType = errors.New("unknown frame type")
	ErrMissingRef       = errors.New("channel frame without ref")
	ErrMissingTopic     = errors.New("join frame without topic")
	ErrMissingEvent     = errors.New("event frame without event")
	ErrMissingMessage   = errors.New("send frame without message")
)

// FrameType identifies a frame.
type FrameType uint8

const (
	// FrameJoin asks the server to open and subscribe a channel (client -> server).
	FrameJoin FrameType = iota + 1

	// FrameJoined confirms a join (server -> client).
	FrameJoined

	// FrameError reports a failed join or a channel failure (server -> client).
	FrameError

	// FrameLeave closes a channel (client -> server).
	FrameLeave

	// FrameClosed reports a channel closed by the server (server -> client).
	FrameClosed

	// FrameSend carries a channel message (client -> server).
	FrameSend

	// FrameEvent carries a channel event (server -> client).
	FrameEvent

	// FramePing is a keep-alive probe; Ref carries the sequence number.
	FramePing

	// FramePong answers a ping with the same sequence number.
	FramePong
)

// String returns the frame type name.
func (t FrameType) String() string {
	switch t {
	case FrameJoin:
		return "JOIN"
	case FrameJoined:
		return "JOINED"
	case FrameError:
		return "ERROR"
	case FrameLeave:
		return "LEAVE"
	case FrameClosed:
		return "CLOSED"
	case FrameSend:
		return "SEND"
	case FrameEvent:
		return "EVENT"
	case FramePing:
		return "PING"
	case FramePong:
		return "PONG"
	default:
		return "UNKNOWN"
	}
}

// IsControl reports whether the frame is a keep-alive frame.
func (t FrameType) IsControl() bool {
	return t == FramePing || t == FramePong
}

// Frame is the unit exchanged on a websocket connection. Many channels share
// one connection; Ref identifies the channel, chosen by the client at join.
type Frame struct {
	Type    FrameType          `cbor:"1,keyasint"`
	Ref     uint32             `cbor:"2,keyasint,omitempty"`
	Topic   string             `cbor:"3,keyasint,omitempty"`
	Event   *transport.Event   `cbor:"4,keyasint,omitempty"`
	Message *transport.Message `cbor:"5,keyasint,omitempty"`
	Error   string             `cbor:"6,keyasint,omitempty"`
}

// Validate checks the fields required by the frame type.
func (f *Frame) Validate() error {
	switch f.Type {
	case FramePing, FramePong:
		return nil
	case FrameJoin:
		if f.Topic == "" {
			return ErrMissingTopic
		}
	case FrameJoined, FrameError, FrameLeave, FrameClosed:
	case FrameSend:
		if f.Message == nil {
			return ErrMissingMessage
		}
	case FrameEvent:
		if f.Event == nil {
			return ErrMissingEvent
		}
	default:
		return ErrUnknownFrameType
	}
	if f.Ref == 0 {
		return ErrMissingRef
	}
	return nil
}
