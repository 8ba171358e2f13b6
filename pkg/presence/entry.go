package presence

import (
	"sort"
	"time"

	"github.com/orgdesk/realtime-go/pkg/record"
	"github.com/orgdesk/realtime-go/pkg/transport"
)

// Intent is what a participant is doing within a topic.
type Intent uint8

const (
	// Viewing means the participant is looking at the topic without a record.
	Viewing Intent = iota

	// Editing means the participant is editing Entry.RecordID.
	Editing
)

// String returns the intent name.
func (i Intent) String() string {
	switch i {
	case Viewing:
		return "VIEWING"
	case Editing:
		return "EDITING"
	default:
		return "UNKNOWN"
	}
}

// ParseIntent parses an intent name. Unknown names are Viewing.
func ParseIntent(s string) Intent {
	if s == "EDITING" || s == "editing" {
		return Editing
	}
	return Viewing
}

// Presence meta keys.
const (
	metaParticipant = "participant_id"
	metaRecord      = "record_id"
	metaIntent      = "intent"
	metaLastSeen    = "last_seen_at"
)

// Entry is one presence registration of a participant.
type Entry struct {
	ParticipantID string
	RecordID      string
	Intent        Intent
	LastSeenAt    time.Time
}

// NewEntry builds the entry for a participant. An empty recordID means
// Viewing, anything else Editing that record.
func NewEntry(participantID, recordID string, now time.Time) Entry {
	e := Entry{ParticipantID: participantID, RecordID: recordID, LastSeenAt: now}
	if recordID != "" {
		e.Intent = Editing
	}
	return e
}

// Meta encodes the entry as a transport presence payload.
func (e Entry) Meta() transport.PresenceMeta {
	m := transport.PresenceMeta{
		metaParticipant: e.ParticipantID,
		metaIntent:      e.Intent.String(),
		metaLastSeen:    e.LastSeenAt.UTC().Format(time.RFC3339Nano),
	}
	if e.RecordID != "" {
		m[metaRecord] = e.RecordID
	}
	return m
}

// EntryFromMeta decodes a transport presence payload. key is used when the
// payload carries no participant id.
func EntryFromMeta(key string, m transport.PresenceMeta) Entry {
	e := Entry{ParticipantID: key}
	if id, ok := m[metaParticipant].(string); ok && id != "" {
		e.ParticipantID = id
	}
	if rid, ok := m[metaRecord].(string); ok {
		e.RecordID = rid
	}
	if s, ok := m[metaIntent].(string); ok {
		e.Intent = ParseIntent(s)
	} else if e.RecordID != "" {
		e.Intent = Editing
	}
	if t, ok := record.ParseTime(m[metaLastSeen]); ok {
		e.LastSeenAt = t
	}
	return e
}

// State is a roster: participant id to its entries.
type State map[string][]Entry

// StateFromRoster converts a transport roster snapshot.
func StateFromRoster(roster map[string][]transport.PresenceMeta) State {
	s := make(State, len(roster))
	for key, metas := range roster {
		if len(metas) == 0 {
			continue
		}
		entries := make([]Entry, 0, len(metas))
		for _, m := range metas {
			entries = append(entries, EntryFromMeta(key, m))
		}
		s[key] = entries
	}
	return s
}

// Clone returns a deep copy of the state. A nil state clones to an empty one.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, entries := range s {
		out[k] = append([]Entry(nil), entries...)
	}
	return out
}

// Participants returns the participant ids in sorted order.
func (s State) Participants() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Editors returns the participants editing recordID, sorted.
func (s State) Editors(recordID string) []string {
	var ids []string
	for _, id := range s.Participants() {
		for _, e := range s[id] {
			if e.Intent == Editing && e.RecordID == recordID {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

// Diff compares two snapshots by participant key. joins holds participants
// present in next but not in prev, leaves the reverse.
func Diff(prev, next State) (joins, leaves State) {
	joins, leaves = State{}, State{}
	for id, entries := range next {
		if _, ok := prev[id]; !ok {
			joins[id] = entries
		}
	}
	for id, entries := range prev {
		if _, ok := next[id]; !ok {
			leaves[id] = entries
		}
	}
	return joins, leaves
}
