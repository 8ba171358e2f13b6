package changes

import (
	"time"

	"github.com/orgdesk/realtime-go/pkg/record"
	"github.com/orgdesk/realtime-go/pkg/transport"
)

// Operation classifies a record mutation.
type Operation uint8

const (
	// Created means a record was inserted.
	Created Operation = iota + 1

	// Updated means an existing record changed.
	Updated

	// Deleted means a record was removed.
	Deleted
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case Created:
		return "CREATED"
	case Updated:
		return "UPDATED"
	case Deleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// ChangeEvent is a transport-neutral record mutation.
type ChangeEvent struct {
	Operation  Operation
	Collection string

	// Record is the new row for Created/Updated and the removed row for
	// Deleted, falling back to whichever row the source sent.
	Record record.Record

	// PreviousRecord is only set for Updated, and only when the source sent it.
	PreviousRecord record.Record

	CommitTimestamp time.Time
}

// Translate maps a raw transport change to a ChangeEvent.
//
// The event's record is the one the operation implies (new for inserts and
// updates, old for deletes), or the other one when only that was sent. A
// payload carrying neither record, or an unknown change type, yields a
// *MalformedEventError.
func Translate(raw transport.RawChange) (ChangeEvent, error) {
	newRec := record.FromMap(raw.New)
	oldRec := record.FromMap(raw.Old)

	if newRec.IsEmpty() && oldRec.IsEmpty() {
		return ChangeEvent{}, &MalformedEventError{Type: raw.Type, Collection: raw.Collection, Reason: "missing both new and old record"}
	}

	ev := ChangeEvent{
		Collection:      raw.Collection,
		CommitTimestamp: raw.CommitTimestamp,
	}

	switch raw.Type {
	case transport.ChangeInsert:
		ev.Operation = Created
		ev.Record = firstPresent(newRec, oldRec)
	case transport.ChangeUpdate:
		ev.Operation = Updated
		ev.Record = firstPresent(newRec, oldRec)
		if !newRec.IsEmpty() && !oldRec.IsEmpty() {
			ev.PreviousRecord = oldRec
		}
	case transport.ChangeDelete:
		ev.Operation = Deleted
		ev.Record = firstPresent(oldRec, newRec)
	default:
		return ChangeEvent{}, &MalformedEventError{Type: raw.Type, Collection: raw.Collection, Reason: "unknown change type"}
	}

	return ev, nil
}

func firstPresent(preferred, fallback record.Record) record.Record {
	if preferred.IsEmpty() {
		return fallback
	}
	return preferred
}
