package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orgdesk/realtime-go/pkg/changes"
	"github.com/orgdesk/realtime-go/pkg/conflict"
	"github.com/orgdesk/realtime-go/pkg/health"
	"github.com/orgdesk/realtime-go/pkg/log"
	"github.com/orgdesk/realtime-go/pkg/presence"
	"github.com/orgdesk/realtime-go/pkg/record"
	"github.com/orgdesk/realtime-go/pkg/subscription"
	"github.com/orgdesk/realtime-go/pkg/transport"
)

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger        log.Logger
	healthTimeout time.Duration
	sessionID     string
}

// WithLogger sets the event logger shared by every component.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithHealthTimeout bounds health checks.
func WithHealthTimeout(d time.Duration) Option {
	return func(o *options) {
		o.healthTimeout = d
	}
}

// WithSessionID sets the session id. A random UUID is used by default.
func WithSessionID(id string) Option {
	return func(o *options) {
		o.sessionID = id
	}
}

// Engine is the realtime surface of one user session.
type Engine struct {
	sessionID string
	registry  *subscription.Registry
	tracker   *presence.Tracker
	monitor   *health.Monitor

	cleanupOnce sync.Once
}

// New creates an engine on t.
func New(t transport.Transport, opts ...Option) *Engine {
	o := options{healthTimeout: health.DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	logger := log.OrNoop(o.logger)

	return &Engine{
		sessionID: o.sessionID,
		registry: subscription.New(t,
			subscription.WithLogger(logger),
			subscription.WithSessionID(o.sessionID),
		),
		tracker: presence.New(t,
			presence.WithLogger(logger),
			presence.WithSessionID(o.sessionID),
		),
		monitor: health.New(t,
			health.WithTimeout(o.healthTimeout),
			health.WithLogger(logger),
			health.WithSessionID(o.sessionID),
		),
	}
}

// SessionID returns the engine's session id.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Subscribe routes change and broadcast events on topic to l. Subscribing
// again to the same topic replaces the previous listeners.
func (e *Engine) Subscribe(ctx context.Context, topic string, l changes.Listeners) (subscription.Unsubscribe, error) {
	return e.registry.Subscribe(ctx, topic, l)
}

// BroadcastEvent sends a custom message on topic's open channel. It is a
// no-op when the topic is not subscribed.
func (e *Engine) BroadcastEvent(ctx context.Context, topic, name string, payload map[string]any) {
	e.registry.Broadcast(ctx, topic, name, payload)
}

// Subscriptions returns the subscribed topics.
func (e *Engine) Subscriptions() []string {
	return e.registry.Topics()
}

// Track registers participantID on topic's presence roster, editing recordID
// when it is not empty.
func (e *Engine) Track(ctx context.Context, topic, participantID, recordID string, cb presence.Callbacks) (presence.Untrack, error) {
	return e.tracker.Track(ctx, topic, participantID, recordID, cb)
}

// PresenceState returns the current roster of topic, empty when untracked.
func (e *Engine) PresenceState(topic string) presence.State {
	return e.tracker.State(topic)
}

// Resolve merges a local and a remote copy of a record.
func (e *Engine) Resolve(local, remote record.Record, fields []string) conflict.Report {
	return conflict.Resolve(local, remote, fields)
}

// Check measures connectivity with a throwaway channel in namespace.
func (e *Engine) Check(ctx context.Context, namespace string) health.Result {
	return e.monitor.Check(ctx, namespace)
}

// Cleanup closes every channel and presence registration. The engine cannot
// be used afterwards.
func (e *Engine) Cleanup() {
	e.cleanupOnce.Do(func() {
		e.registry.Cleanup()
		e.tracker.Cleanup()
	})
}
