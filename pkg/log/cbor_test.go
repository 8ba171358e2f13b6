package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 4, 2, 10, 11, 12, 123456789, time.UTC)
	event := Event{
		Timestamp:  ts,
		SessionID:  "sess-1",
		Topic:      "org:42",
		Direction:  DirectionOut,
		Layer:      LayerChannel,
		Category:   CategoryState,
		RemoteAddr: "10.0.0.2:8080",
		Status: &StatusEventData{
			Entity:   StateEntityChannel,
			OldState: "CONNECTING",
			NewState: "SUBSCRIBED",
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(ts) {
		t.Errorf("Timestamp: got %v, want %v (nanoseconds must survive)", decoded.Timestamp, ts)
	}
	if decoded.SessionID != "sess-1" || decoded.Topic != "org:42" || decoded.RemoteAddr != "10.0.0.2:8080" {
		t.Errorf("identifiers not preserved: %+v", decoded)
	}
	if decoded.Direction != DirectionOut || decoded.Layer != LayerChannel || decoded.Category != CategoryState {
		t.Errorf("classification not preserved: %+v", decoded)
	}
	if decoded.Status == nil || decoded.Status.NewState != "SUBSCRIBED" || decoded.Status.OldState != "CONNECTING" {
		t.Errorf("Status: got %+v", decoded.Status)
	}
}

func TestPayloadCBORRoundTrip(t *testing.T) {
	commit := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		event Event
		check func(t *testing.T, got Event)
	}{
		{
			name: "change",
			event: Event{Category: CategoryChange, Change: &ChangeEventData{
				Operation: "DELETE", Collection: "tasks", RecordID: "t9", CommitTimestamp: commit,
			}},
			check: func(t *testing.T, got Event) {
				if got.Change == nil || got.Change.RecordID != "t9" || !got.Change.CommitTimestamp.Equal(commit) {
					t.Errorf("Change: got %+v", got.Change)
				}
			},
		},
		{
			name: "presence",
			event: Event{Category: CategoryPresence, Presence: &PresenceEventData{
				Action: PresenceJoin, ParticipantID: "u2", RecordID: "r1", Intent: "EDITING", RosterSize: 3,
			}},
			check: func(t *testing.T, got Event) {
				if got.Presence == nil || got.Presence.Action != PresenceJoin || got.Presence.RosterSize != 3 {
					t.Errorf("Presence: got %+v", got.Presence)
				}
			},
		},
		{
			name: "broadcast",
			event: Event{Category: CategoryBroadcast, Broadcast: &BroadcastEventData{
				Name: "cursor", Payload: map[string]any{"pos": map[string]any{"x": 1}},
			}},
			check: func(t *testing.T, got Event) {
				if got.Broadcast == nil || got.Broadcast.Name != "cursor" {
					t.Fatalf("Broadcast: got %+v", got.Broadcast)
				}
				if _, ok := got.Broadcast.Payload["pos"].(map[string]any); !ok {
					t.Errorf("nested payload decoded as %T", got.Broadcast.Payload["pos"])
				}
			},
		},
		{
			name: "control",
			event: Event{Category: CategoryControl, Control: &ControlMsgEvent{
				Type: ControlMsgPong, Seq: 12, Latency: 35 * time.Millisecond,
			}},
			check: func(t *testing.T, got Event) {
				if got.Control == nil || got.Control.Seq != 12 || got.Control.Latency != 35*time.Millisecond {
					t.Errorf("Control: got %+v", got.Control)
				}
			},
		},
		{
			name:  "health",
			event: Event{Category: CategoryHealth, Health: &HealthEventData{Connected: true, Latency: 4 * time.Millisecond}},
			check: func(t *testing.T, got Event) {
				if got.Health == nil || !got.Health.Connected || got.Health.Latency != 4*time.Millisecond {
					t.Errorf("Health: got %+v", got.Health)
				}
			},
		},
		{
			name: "error",
			event: Event{Category: CategoryError, Error: &ErrorEventData{
				Layer: LayerTransport, Message: "connection lost", Context: "read",
			}},
			check: func(t *testing.T, got Event) {
				if got.Error == nil || got.Error.Message != "connection lost" || got.Error.Context != "read" {
					t.Errorf("Error: got %+v", got.Error)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.event.Timestamp = time.Now()
			tt.event.SessionID = "sess-x"

			data, err := EncodeEvent(tt.event)
			if err != nil {
				t.Fatalf("EncodeEvent failed: %v", err)
			}
			got, err := DecodeEvent(data)
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestStreamEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i, topic := range []string{"a", "b", "c"} {
		if err := enc.Encode(Event{Timestamp: time.Now(), SessionID: "s", Topic: topic, Category: Category(i)}); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}

	dec := NewDecoder(&buf)
	for _, want := range []string{"a", "b", "c"} {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if ev.Topic != want {
			t.Errorf("Topic: got %q, want %q", ev.Topic, want)
		}
	}
}

func TestEventCBORUsesIntegerKeys(t *testing.T) {
	event := Event{
		Timestamp: time.Now(),
		SessionID: "sess-1",
		Category:  CategoryHealth,
		Health:    &HealthEventData{Connected: false},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	var raw map[any]any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		t.Fatalf("failed to decode as map: %v", err)
	}

	for k := range raw {
		if _, ok := k.(uint64); !ok {
			t.Errorf("key %v has type %T, want integer", k, k)
		}
	}
	if _, ok := raw[uint64(2)]; !ok {
		t.Error("SessionID missing under key 2")
	}
	if _, ok := raw[uint64(15)]; !ok {
		t.Error("Health payload missing under key 15")
	}
}
