package memory

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/orgdesk/realtime-go/pkg/transport"
)

// ErrHubClosed is returned by Open after Close.
var ErrHubClosed = errors.New("hub closed")

// Hub is an in-process Transport. The zero value is not usable; use NewHub.
type Hub struct {
	mu sync.Mutex

	topics map[string]*topicState
	open   map[*channel]struct{}
	nextID uint64
	closed bool

	subscribeErr   error
	subscribeDelay time.Duration
}

// topicState holds the subscribed channels and presence roster of a topic.
type topicState struct {
	channels map[*channel]struct{}

	// roster maps presence key -> tracking channel -> meta.
	roster map[string]map[*channel]transport.PresenceMeta
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]*topicState),
		open:   make(map[*channel]struct{}),
	}
}

// Open creates an unsubscribed channel for topic.
func (h *Hub) Open(topic string) (transport.Channel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	h.nextID++
	ch := newChannel(h, h.nextID, topic)
	h.open[ch] = struct{}{}
	return ch, nil
}

// Publish delivers ev to every subscribed channel of topic and returns the
// number of channels it was queued for.
func (h *Hub) Publish(topic string, ev transport.Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	ts := h.topics[topic]
	if ts == nil {
		return 0
	}
	ev.Topic = topic
	for ch := range ts.channels {
		ch.box.PushEvent(ev)
	}
	return len(ts.channels)
}

// PublishChange publishes a record change on topic.
func (h *Hub) PublishChange(topic string, change transport.RawChange) int {
	return h.Publish(topic, transport.Event{Kind: transport.KindChange, Change: &change})
}

// FailSubscribe makes every later subscribe report StatusError with err.
// Pass nil to restore normal behaviour.
func (h *Hub) FailSubscribe(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribeErr = err
}

// SetSubscribeDelay delays subscription confirmation by d.
func (h *Hub) SetSubscribeDelay(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribeDelay = d
}

// OpenChannels returns the number of channels opened and not yet closed.
func (h *Hub) OpenChannels() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.open)
}

// Subscribers returns the number of subscribed channels on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ts := h.topics[topic]; ts != nil {
		return len(ts.channels)
	}
	return 0
}

// Roster returns the current presence roster of topic.
func (h *Hub) Roster(topic string) map[string][]transport.PresenceMeta {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rosterLocked(h.topics[topic])
}

// Close closes every open channel and rejects later Opens.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	channels := make([]*channel, 0, len(h.open))
	for ch := range h.open {
		channels = append(channels, ch)
	}
	h.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}
}

func (h *Hub) subscribeSettings() (delay time.Duration, failErr error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribeDelay, h.subscribeErr
}

// join adds ch to its topic and queues the SUBSCRIBED status followed by the
// current roster, if any.
func (h *Hub) join(ch *channel) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.open[ch]; !ok {
		return false
	}

	ts := h.topics[ch.topic]
	if ts == nil {
		ts = &topicState{
			channels: make(map[*channel]struct{}),
			roster:   make(map[string]map[*channel]transport.PresenceMeta),
		}
		h.topics[ch.topic] = ts
	}
	ts.channels[ch] = struct{}{}

	ch.setStatus(transport.StatusSubscribed)
	ch.box.PushStatus(transport.StatusSubscribed, nil)

	if len(ts.roster) > 0 {
		ch.box.PushEvent(transport.Event{
			Kind:     transport.KindPresence,
			Topic:    ch.topic,
			Presence: h.rosterLocked(ts),
		})
	}
	return true
}

// leave removes ch from the hub, drops its presence keys and returns whether
// the channel was still open.
func (h *Hub) leave(ch *channel) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.open[ch]; !ok {
		return false
	}
	delete(h.open, ch)

	ts := h.topics[ch.topic]
	if ts == nil {
		return true
	}
	delete(ts.channels, ch)

	changed := false
	for key, owners := range ts.roster {
		if _, ok := owners[ch]; ok {
			delete(owners, ch)
			changed = true
			if len(owners) == 0 {
				delete(ts.roster, key)
			}
		}
	}
	if changed {
		h.pushRosterLocked(ts, ch.topic)
	}
	if len(ts.channels) == 0 && len(ts.roster) == 0 {
		delete(h.topics, ch.topic)
	}
	return true
}

// send applies a message from ch.
func (h *Hub) send(ch *channel, msg transport.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ts := h.topics[ch.topic]
	if ts == nil {
		return transport.ErrNotSubscribed
	}
	if _, ok := ts.channels[ch]; !ok {
		return transport.ErrNotSubscribed
	}

	switch msg.Kind {
	case transport.MessageBroadcast:
		for other := range ts.channels {
			if other == ch {
				continue
			}
			other.box.PushEvent(transport.Event{
				Kind:      transport.KindBroadcast,
				Topic:     ch.topic,
				Broadcast: &transport.Broadcast{Event: msg.Event, Payload: msg.Payload},
			})
		}

	case transport.MessageTrack:
		if msg.Key == "" {
			return errors.New("presence key required")
		}
		owners := ts.roster[msg.Key]
		if owners == nil {
			owners = make(map[*channel]transport.PresenceMeta)
			ts.roster[msg.Key] = owners
		}
		meta := make(transport.PresenceMeta, len(msg.Payload))
		for k, v := range msg.Payload {
			meta[k] = v
		}
		owners[ch] = meta
		h.pushRosterLocked(ts, ch.topic)

	case transport.MessageUntrack:
		owners := ts.roster[msg.Key]
		if _, ok := owners[ch]; !ok {
			return nil
		}
		delete(owners, ch)
		if len(owners) == 0 {
			delete(ts.roster, msg.Key)
		}
		h.pushRosterLocked(ts, ch.topic)

	default:
		return errors.New("unknown message kind")
	}
	return nil
}

func (h *Hub) pushRosterLocked(ts *topicState, topic string) {
	for ch := range ts.channels {
		ch.box.PushEvent(transport.Event{
			Kind:     transport.KindPresence,
			Topic:    topic,
			Presence: h.rosterLocked(ts),
		})
	}
}

// rosterLocked builds a roster snapshot. Metas of one key are ordered by the
// id of the tracking channel.
func (h *Hub) rosterLocked(ts *topicState) map[string][]transport.PresenceMeta {
	out := make(map[string][]transport.PresenceMeta)
	if ts == nil {
		return out
	}
	for key, owners := range ts.roster {
		chans := make([]*channel, 0, len(owners))
		for ch := range owners {
			chans = append(chans, ch)
		}
		sort.Slice(chans, func(i, j int) bool { return chans[i].id < chans[j].id })

		metas := make([]transport.PresenceMeta, 0, len(chans))
		for _, ch := range chans {
			meta := make(transport.PresenceMeta, len(owners[ch]))
			for k, v := range owners[ch] {
				meta[k] = v
			}
			metas = append(metas, meta)
		}
		out[key] = metas
	}
	return out
}

var _ transport.Transport = (*Hub)(nil)
