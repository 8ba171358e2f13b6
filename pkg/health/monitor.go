// Package health measures transport connectivity by opening a throwaway
// channel and timing its subscription.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orgdesk/realtime-go/pkg/log"
	"github.com/orgdesk/realtime-go/pkg/transport"
)

// DefaultTimeout bounds a check when the transport never reports a terminal
// status.
const DefaultTimeout = 10 * time.Second

// ErrTimeout is reported when no terminal status arrived within the timeout.
var ErrTimeout = errors.New("health check timed out")

// Result is the outcome of a check.
type Result struct {
	Connected bool

	// Latency is the subscribe round trip. Zero when not connected.
	Latency time.Duration

	// Err explains a failed check.
	Err error
}

// LatencyMillis returns the latency in milliseconds, or false when the check
// failed.
func (r Result) LatencyMillis() (float64, bool) {
	if !r.Connected {
		return 0, false
	}
	return float64(r.Latency) / float64(time.Millisecond), true
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithTimeout sets the per-check timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the event logger.
func WithLogger(l log.Logger) Option {
	return func(m *Monitor) {
		m.logger = log.OrNoop(l)
	}
}

// WithSessionID sets the session id recorded with logged events.
func WithSessionID(id string) Option {
	return func(m *Monitor) {
		m.sessionID = id
	}
}

// Monitor runs health checks. It holds no channel between checks.
type Monitor struct {
	transport transport.Transport
	timeout   time.Duration
	logger    log.Logger
	sessionID string
}

// New creates a monitor opening throwaway channels on t.
func New(t transport.Transport, opts ...Option) *Monitor {
	m := &Monitor{
		transport: t,
		timeout:   DefaultTimeout,
		logger:    log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Topic returns a unique throwaway topic in namespace.
func Topic(namespace string) string {
	return fmt.Sprintf("%s:health:%s", namespace, uuid.NewString())
}

// Check opens a throwaway channel in namespace, waits for the transport to
// confirm or reject the subscription and closes the channel before
// returning.
func (m *Monitor) Check(ctx context.Context, namespace string) Result {
	topic := Topic(namespace)
	res := m.check(ctx, topic)

	data := &log.HealthEventData{Connected: res.Connected, Latency: res.Latency}
	ev := log.Event{
		Timestamp: time.Now(),
		SessionID: m.sessionID,
		Topic:     topic,
		Direction: log.DirectionOut,
		Layer:     log.LayerEngine,
		Category:  log.CategoryHealth,
		Health:    data,
	}
	m.logger.Log(ev)
	if res.Err != nil {
		ev.Category = log.CategoryError
		ev.Health = nil
		ev.Error = &log.ErrorEventData{Layer: log.LayerEngine, Message: res.Err.Error(), Context: "health check"}
		m.logger.Log(ev)
	}
	return res
}

func (m *Monitor) check(ctx context.Context, topic string) Result {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()

	ch, err := m.transport.Open(topic)
	if err != nil {
		return Result{Err: transport.NewError("open", topic, err)}
	}
	defer func() { _ = ch.Close() }()

	status, err := transport.SubscribeAndWait(ctx, ch, nil)
	if status == transport.StatusSubscribed {
		return Result{Connected: true, Latency: time.Since(start)}
	}

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		err = fmt.Errorf("%w after %s: %w", ErrTimeout, m.timeout, err)
	}
	return Result{Err: transport.NewError("subscribe", topic, err)}
}
