package subscription

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orgdesk/realtime-go/pkg/changes"
	"github.com/orgdesk/realtime-go/pkg/log"
	"github.com/orgdesk/realtime-go/pkg/record"
	"github.com/orgdesk/realtime-go/pkg/transport"
)

// Registry errors.
var (
	ErrEmptyTopic     = errors.New("topic must not be empty")
	ErrRegistryClosed = errors.New("registry closed")
)

// Unsubscribe closes a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the event logger.
func WithLogger(l log.Logger) Option {
	return func(r *Registry) {
		r.logger = log.OrNoop(l)
	}
}

// WithSessionID sets the session id recorded with logged events.
func WithSessionID(id string) Option {
	return func(r *Registry) {
		r.sessionID = id
	}
}

// Registry manages the topic subscriptions of one session.
type Registry struct {
	transport transport.Transport
	logger    log.Logger
	sessionID string

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
}

// slot serializes operations on one topic.
type slot struct {
	mu      sync.Mutex
	topic   string
	current *entry

	// removed is set once the slot left the map; holders must retry.
	removed bool
}

// entry is one live subscription.
type entry struct {
	topic     string
	ch        transport.Channel
	listeners changes.Listeners

	// closed stops delivery to listeners once the entry is replaced or removed.
	closed atomic.Bool
	once   sync.Once
}

// New creates a registry opening channels on t.
func New(t transport.Transport, opts ...Option) *Registry {
	r := &Registry{
		transport: t,
		logger:    log.NoopLogger{},
		slots:     make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe opens a channel for topic and routes its events to l.
//
// It blocks until the transport confirms or rejects the subscription, or ctx
// is done. Only ErrEmptyTopic and ErrRegistryClosed are returned; transport
// failures and ctx cancellation are reported to l.OnError and the returned
// Unsubscribe must still be called to release the channel.
func (r *Registry) Subscribe(ctx context.Context, topic string, l changes.Listeners) (Unsubscribe, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	s, err := r.acquire(topic)
	if err != nil {
		return nil, err
	}

	if old := s.current; old != nil {
		s.current = nil
		old.close()
		r.logStatus(topic, log.StateEntitySubscription, "ACTIVE", "REPLACED", "re-subscribed")
	}

	ch, err := r.transport.Open(topic)
	if err != nil {
		r.release(s)
		s.mu.Unlock()
		terr := transport.NewError("open", topic, err)
		r.logError(topic, log.LayerChannel, terr, "open")
		l.Fail(terr)
		return func() {}, nil
	}

	e := &entry{topic: topic, ch: ch, listeners: l}
	ch.OnEvent(func(ev transport.Event) {
		if e.closed.Load() {
			return
		}
		r.logEvent(topic, ev)
		changes.Dispatch(ev, l)
	})
	s.current = e
	s.mu.Unlock()

	r.logStatus(topic, log.StateEntitySubscription, "", "ACTIVE", "")

	_, err = transport.SubscribeAndWait(ctx, ch, func(status transport.Status, err error) {
		r.onStatus(e, status, err)
	})
	if err != nil && errors.Is(err, ctx.Err()) {
		terr := transport.NewError("subscribe", topic, err)
		r.logError(topic, log.LayerChannel, terr, "subscribe")
		l.Fail(terr)
	}

	return func() { r.unsubscribe(s, e) }, nil
}

// Broadcast sends a custom message on the open channel for topic. It is a
// no-op when the topic has no channel. Send failures go to the topic's
// OnError.
func (r *Registry) Broadcast(ctx context.Context, topic, name string, payload map[string]any) {
	e := r.current(topic)
	if e == nil {
		return
	}

	err := e.ch.Send(ctx, transport.Message{
		Kind:    transport.MessageBroadcast,
		Event:   name,
		Payload: payload,
	})
	if err != nil {
		terr := transport.NewError("send", topic, err)
		r.logError(topic, log.LayerChannel, terr, "broadcast")
		e.listeners.Fail(terr)
		return
	}

	r.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: r.sessionID,
		Topic:     topic,
		Direction: log.DirectionOut,
		Layer:     log.LayerChannel,
		Category:  log.CategoryBroadcast,
		Broadcast: &log.BroadcastEventData{Name: name, Payload: payload},
	})
}

// Count returns the number of live subscriptions.
func (r *Registry) Count() int {
	n := 0
	for _, s := range r.snapshot() {
		s.mu.Lock()
		if s.current != nil {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Topics returns the subscribed topics in sorted order.
func (r *Registry) Topics() []string {
	var topics []string
	for _, s := range r.snapshot() {
		s.mu.Lock()
		if s.current != nil {
			topics = append(topics, s.topic)
		}
		s.mu.Unlock()
	}
	sort.Strings(topics)
	return topics
}

// Status returns the channel status for topic, or StatusClosed when the
// topic has no channel.
func (r *Registry) Status(topic string) transport.Status {
	e := r.current(topic)
	if e == nil {
		return transport.StatusClosed
	}
	return e.ch.Status()
}

// Cleanup closes every channel. Subsequent Subscribe calls fail with
// ErrRegistryClosed. It is safe to call Cleanup more than once.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	slots := r.slots
	r.slots = make(map[string]*slot)
	r.mu.Unlock()

	for _, s := range slots {
		s.mu.Lock()
		e := s.current
		s.current = nil
		s.removed = true
		s.mu.Unlock()

		if e != nil {
			e.close()
			r.logStatus(s.topic, log.StateEntitySubscription, "ACTIVE", "REMOVED", "cleanup")
		}
	}
}

// acquire returns the locked slot for topic, creating it if needed.
func (r *Registry) acquire(topic string) (*slot, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrRegistryClosed
		}
		s, ok := r.slots[topic]
		if !ok {
			s = &slot{topic: topic}
			r.slots[topic] = s
		}
		r.mu.Unlock()

		s.mu.Lock()
		if !s.removed {
			return s, nil
		}
		s.mu.Unlock()
	}
}

// release drops an empty slot from the map. s.mu must be held.
func (r *Registry) release(s *slot) {
	if s.current != nil || s.removed {
		return
	}
	s.removed = true
	r.mu.Lock()
	if r.slots[s.topic] == s {
		delete(r.slots, s.topic)
	}
	r.mu.Unlock()
}

func (r *Registry) unsubscribe(s *slot, e *entry) {
	s.mu.Lock()
	replaced := s.current != e
	if !replaced {
		s.current = nil
		r.release(s)
	}
	s.mu.Unlock()

	if replaced {
		return
	}
	e.close()
	r.logStatus(e.topic, log.StateEntitySubscription, "ACTIVE", "REMOVED", "unsubscribed")
}

func (r *Registry) current(topic string) *entry {
	r.mu.Lock()
	s := r.slots[topic]
	r.mu.Unlock()
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (r *Registry) snapshot() []*slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	slots := make([]*slot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	return slots
}

// onStatus records a channel status transition and reports failures of a
// live entry to its listeners.
func (r *Registry) onStatus(e *entry, status transport.Status, err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	r.logStatus(e.topic, log.StateEntityChannel, "", status.String(), reason)

	if err == nil || e.closed.Load() {
		return
	}
	if status == transport.StatusError || status == transport.StatusClosed {
		e.listeners.Fail(transport.NewError("subscribe", e.topic, err))
	}
}

func (e *entry) close() {
	e.once.Do(func() {
		e.closed.Store(true)
		_ = e.ch.Close()
	})
}

func (r *Registry) logEvent(topic string, ev transport.Event) {
	event := log.Event{
		Timestamp: time.Now(),
		SessionID: r.sessionID,
		Topic:     topic,
		Direction: log.DirectionIn,
		Layer:     log.LayerChannel,
	}

	switch ev.Kind {
	case transport.KindChange:
		if ev.Change == nil {
			return
		}
		rec := record.FromMap(ev.Change.New)
		if rec.IsEmpty() {
			rec = record.FromMap(ev.Change.Old)
		}
		event.Category = log.CategoryChange
		event.Change = &log.ChangeEventData{
			Operation:       ev.Change.Type,
			Collection:      ev.Change.Collection,
			RecordID:        rec.ID(),
			CommitTimestamp: ev.Change.CommitTimestamp,
		}
	case transport.KindBroadcast:
		if ev.Broadcast == nil {
			return
		}
		event.Category = log.CategoryBroadcast
		event.Broadcast = &log.BroadcastEventData{Name: ev.Broadcast.Event, Payload: ev.Broadcast.Payload}
	default:
		return
	}

	r.logger.Log(event)
}

func (r *Registry) logStatus(topic string, entity log.StateEntity, oldState, newState, reason string) {
	r.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: r.sessionID,
		Topic:     topic,
		Direction: log.DirectionIn,
		Layer:     log.LayerEngine,
		Category:  log.CategoryState,
		Status: &log.StatusEventData{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (r *Registry) logError(topic string, layer log.Layer, err error, op string) {
	r.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: r.sessionID,
		Topic:     topic,
		Direction: log.DirectionIn,
		Layer:     layer,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: op,
		},
	})
}
