package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/orgdesk/realtime-go/pkg/changes"
	"github.com/orgdesk/realtime-go/pkg/log"
	"github.com/orgdesk/realtime-go/pkg/transport"
)

// Tracker errors.
var (
	ErrEmptyTopic       = errors.New("topic must not be empty")
	ErrEmptyParticipant = errors.New("participant id must not be empty")
	ErrTrackerClosed    = errors.New("tracker closed")
)

// Callbacks receive roster changes. Any field may be nil.
type Callbacks struct {
	// OnSync receives every full roster snapshot.
	OnSync func(state State)

	// OnJoin fires once per participant absent from the previous snapshot.
	OnJoin func(participantID string, entries []Entry)

	// OnLeave fires once per participant missing from the new snapshot.
	OnLeave func(participantID string, entries []Entry)

	OnError func(err error)
}

// Untrack removes the local participant and closes the presence channel.
// Calling it more than once is a no-op.
type Untrack func()

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the event logger.
func WithLogger(l log.Logger) Option {
	return func(t *Tracker) {
		t.logger = log.OrNoop(l)
	}
}

// WithSessionID sets the session id recorded with logged events.
func WithSessionID(id string) Option {
	return func(t *Tracker) {
		t.sessionID = id
	}
}

// WithClock overrides the time source used for LastSeenAt.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker maintains presence registrations for one session.
type Tracker struct {
	transport transport.Transport
	logger    log.Logger
	sessionID string
	now       func() time.Time

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
}

type slot struct {
	mu      sync.Mutex
	topic   string
	current *tracked
	removed bool
}

// tracked is one presence channel and its cached roster.
type tracked struct {
	topic string
	ch    transport.Channel

	mu          sync.Mutex
	participant string
	entry       Entry
	callbacks   Callbacks
	state       State
	closed      bool

	// gen identifies the Track call that owns this registration.
	gen uint64
	// waiting is set while Track waits for the first terminal status.
	waiting bool
	// sent is set once the entry went out on the current subscription.
	sent bool
}

// New creates a tracker opening presence channels on t.
func New(t transport.Transport, opts ...Option) *Tracker {
	tr := &Tracker{
		transport: t,
		logger:    log.NoopLogger{},
		now:       time.Now,
		slots:     make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(tr)
	}
	return tr
}

// Track registers participantID on topic. An empty recordID registers the
// participant as Viewing, otherwise as Editing that record.
//
// Tracking the same participant again on a topic reuses the channel and
// replaces the entry. Tracking a different participant replaces the channel.
// Track blocks until the channel is subscribed and the entry sent, or ctx is
// done. Transport failures are reported to cb.OnError, not returned.
func (t *Tracker) Track(ctx context.Context, topic, participantID, recordID string, cb Callbacks) (Untrack, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if participantID == "" {
		return nil, ErrEmptyParticipant
	}

	s, err := t.acquire(topic)
	if err != nil {
		return nil, err
	}

	entry := NewEntry(participantID, recordID, t.now())

	if cur := s.current; cur != nil && cur.participant == participantID && cur.ch.Status() == transport.StatusSubscribed {
		cur.mu.Lock()
		cur.entry = entry
		cur.callbacks = cb
		cur.gen++
		gen := cur.gen
		cur.sent = true
		cur.mu.Unlock()
		s.mu.Unlock()

		t.send(ctx, cur, entry)
		return func() { t.untrack(s, cur, gen) }, nil
	}

	if old := s.current; old != nil {
		s.current = nil
		t.closeTracked(old)
	}

	ch, err := t.transport.Open(topic)
	if err != nil {
		t.release(s)
		s.mu.Unlock()
		terr := transport.NewError("open", topic, err)
		t.logError(topic, terr, "open")
		fail(cb, terr)
		return func() {}, nil
	}

	tr := &tracked{
		topic:       topic,
		ch:          ch,
		participant: participantID,
		entry:       entry,
		callbacks:   cb,
		state:       State{},
		gen:         1,
		waiting:     true,
	}
	ch.OnEvent(func(ev transport.Event) {
		if ev.Kind == transport.KindPresence {
			t.handleSnapshot(tr, ev.Presence)
		}
	})
	s.current = tr
	s.mu.Unlock()

	_, err = transport.SubscribeAndWait(ctx, ch, func(status transport.Status, err error) {
		t.onStatus(tr, status, err)
	})
	tr.mu.Lock()
	tr.waiting = false
	tr.mu.Unlock()

	switch {
	case ch.Status() == transport.StatusSubscribed:
		if tr.claimSend(false) {
			t.send(ctx, tr, entry)
		}
	case err != nil && errors.Is(err, ctx.Err()):
		terr := transport.NewError("subscribe", topic, err)
		t.logError(topic, terr, "subscribe")
		tr.fail(terr)
	}

	return func() { t.untrack(s, tr, 1) }, nil
}

// State returns a copy of the last roster snapshot for topic. It returns an
// empty state when the topic is not tracked.
func (t *Tracker) State(topic string) State {
	t.mu.Lock()
	s := t.slots[topic]
	t.mu.Unlock()
	if s == nil {
		return State{}
	}

	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil {
		return State{}
	}

	cur.mu.Lock()
	defer cur.mu.Unlock()
	return cur.state.Clone()
}

// Topics returns the number of tracked topics.
func (t *Tracker) Topics() int {
	t.mu.Lock()
	slots := make([]*slot, 0, len(t.slots))
	for _, s := range t.slots {
		slots = append(slots, s)
	}
	t.mu.Unlock()

	n := 0
	for _, s := range slots {
		s.mu.Lock()
		if s.current != nil {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Cleanup untracks every participant and closes every presence channel.
// Subsequent Track calls fail with ErrTrackerClosed.
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	slots := t.slots
	t.slots = make(map[string]*slot)
	t.mu.Unlock()

	for _, s := range slots {
		s.mu.Lock()
		cur := s.current
		s.current = nil
		s.removed = true
		s.mu.Unlock()

		if cur != nil {
			t.closeTracked(cur)
		}
	}
}

func (t *Tracker) acquire(topic string) (*slot, error) {
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return nil, ErrTrackerClosed
		}
		s, ok := t.slots[topic]
		if !ok {
			s = &slot{topic: topic}
			t.slots[topic] = s
		}
		t.mu.Unlock()

		s.mu.Lock()
		if !s.removed {
			return s, nil
		}
		s.mu.Unlock()
	}
}

// release drops an empty slot from the map. s.mu must be held.
func (t *Tracker) release(s *slot) {
	if s.current != nil || s.removed {
		return
	}
	s.removed = true
	t.mu.Lock()
	if t.slots[s.topic] == s {
		delete(t.slots, s.topic)
	}
	t.mu.Unlock()
}

// untrack removes the registration made by Track call gen. Calls from a
// Track that was since replaced by re-tracking are ignored.
func (t *Tracker) untrack(s *slot, tr *tracked, gen uint64) {
	tr.mu.Lock()
	stale := tr.gen != gen
	tr.mu.Unlock()
	if stale {
		return
	}

	s.mu.Lock()
	if s.current == tr {
		s.current = nil
		t.release(s)
	}
	s.mu.Unlock()

	t.closeTracked(tr)
}

// closeTracked sends a best-effort untrack and closes the channel. The local
// roster is cleared immediately.
func (t *Tracker) closeTracked(tr *tracked) {
	tr.mu.Lock()
	if tr.closed {
		tr.mu.Unlock()
		return
	}
	tr.closed = true
	participant := tr.participant
	tr.state = State{}
	tr.mu.Unlock()

	if tr.ch.Status() == transport.StatusSubscribed {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = tr.ch.Send(ctx, transport.Message{Kind: transport.MessageUntrack, Key: participant})
		cancel()
	}
	_ = tr.ch.Close()

	t.logPresence(tr.topic, &log.PresenceEventData{
		Action:        log.PresenceUntrack,
		ParticipantID: participant,
	})
}

func (t *Tracker) send(ctx context.Context, tr *tracked, entry Entry) {
	err := tr.ch.Send(ctx, transport.Message{
		Kind:    transport.MessageTrack,
		Key:     entry.ParticipantID,
		Payload: entry.Meta(),
	})
	if err != nil {
		tr.mu.Lock()
		tr.sent = false
		tr.mu.Unlock()
		terr := transport.NewError("send", tr.topic, err)
		t.logError(tr.topic, terr, "track")
		tr.fail(terr)
		return
	}

	t.logPresence(tr.topic, &log.PresenceEventData{
		Action:        log.PresenceTrack,
		ParticipantID: entry.ParticipantID,
		RecordID:      entry.RecordID,
		Intent:        entry.Intent.String(),
	})
}

func (t *Tracker) onStatus(tr *tracked, status transport.Status, err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	t.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: t.sessionID,
		Topic:     tr.topic,
		Direction: log.DirectionIn,
		Layer:     log.LayerChannel,
		Category:  log.CategoryState,
		Status: &log.StatusEventData{
			Entity:   log.StateEntityChannel,
			NewState: status.String(),
			Reason:   reason,
		},
	})

	tr.mu.Lock()
	closed := tr.closed
	entry := tr.entry
	tr.mu.Unlock()
	if closed {
		return
	}

	if status == transport.StatusError || status == transport.StatusClosed {
		// The hub forgets the entry with the subscription.
		tr.mu.Lock()
		tr.sent = false
		tr.mu.Unlock()
		if err != nil {
			tr.fail(transport.NewError("subscribe", tr.topic, err))
		}
		return
	}

	if status == transport.StatusSubscribed && tr.claimSend(true) {
		go t.send(context.Background(), tr, entry)
	}
}

// handleSnapshot replaces the cached roster and fires join, leave and sync
// callbacks.
func (t *Tracker) handleSnapshot(tr *tracked, roster map[string][]transport.PresenceMeta) {
	next := StateFromRoster(roster)

	tr.mu.Lock()
	if tr.closed {
		tr.mu.Unlock()
		return
	}
	prev := tr.state
	tr.state = next
	cb := tr.callbacks
	tr.mu.Unlock()

	joins, leaves := Diff(prev, next)

	for _, id := range joins.Participants() {
		t.logPresence(tr.topic, &log.PresenceEventData{Action: log.PresenceJoin, ParticipantID: id, RosterSize: len(next)})
		if cb.OnJoin != nil {
			entries := joins[id]
			invoke(cb, "OnJoin", func() { cb.OnJoin(id, entries) })
		}
	}
	for _, id := range leaves.Participants() {
		t.logPresence(tr.topic, &log.PresenceEventData{Action: log.PresenceLeave, ParticipantID: id, RosterSize: len(next)})
		if cb.OnLeave != nil {
			entries := leaves[id]
			invoke(cb, "OnLeave", func() { cb.OnLeave(id, entries) })
		}
	}

	t.logPresence(tr.topic, &log.PresenceEventData{Action: log.PresenceSync, RosterSize: len(next)})
	if cb.OnSync != nil {
		snapshot := next.Clone()
		invoke(cb, "OnSync", func() { cb.OnSync(snapshot) })
	}
}

// claimSend marks the entry as sent and reports whether the caller should
// send it. Status callbacks leave the first send to a waiting Track.
func (tr *tracked) claimSend(fromStatus bool) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.sent || tr.closed || (fromStatus && tr.waiting) {
		return false
	}
	tr.sent = true
	return true
}

func (tr *tracked) fail(err error) {
	tr.mu.Lock()
	cb := tr.callbacks
	tr.mu.Unlock()
	fail(cb, err)
}

func fail(cb Callbacks, err error) {
	if cb.OnError == nil {
		return
	}
	defer func() { _ = recover() }()
	cb.OnError(err)
}

func invoke(cb Callbacks, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			fail(cb, &changes.ListenerError{
				Callback: name,
				Err:      fmt.Errorf("%w: %v", changes.ErrListenerPanic, r),
			})
		}
	}()
	fn()
}

func (t *Tracker) logPresence(topic string, data *log.PresenceEventData) {
	ev := log.Event{
		Timestamp: time.Now(),
		SessionID: t.sessionID,
		Topic:     topic,
		Direction: log.DirectionIn,
		Layer:     log.LayerEngine,
		Category:  log.CategoryPresence,
		Presence:  data,
	}
	if data.Action == log.PresenceTrack || data.Action == log.PresenceUntrack {
		ev.Direction = log.DirectionOut
	}
	t.logger.Log(ev)
}

func (t *Tracker) logError(topic string, err error, op string) {
	t.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: t.sessionID,
		Topic:     topic,
		Direction: log.DirectionOut,
		Layer:     log.LayerEngine,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerEngine,
			Message: err.Error(),
			Context: op,
		},
	})
}
