package connection

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

var (
	// ErrClosed is returned once the supervisor has been closed.
	ErrClosed = errors.New("connection: supervisor closed")

	// ErrStarted is returned by a second call to Start.
	ErrStarted = errors.New("connection: supervisor already started")

	errDroppedDuringDial = errors.New("connection: dropped during dial")
)

// State is the supervised connection's lifecycle state.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes one connection. It returns once the connection
// is usable; its later loss is reported through Supervisor.Lost.
type ConnectFunc func(ctx context.Context) error

// DefaultConnectTimeout bounds each dial.
const DefaultConnectTimeout = 30 * time.Second

// Hooks observe the supervisor. They run on the goroutine that caused the
// transition and must not call back into the supervisor synchronously.
type Hooks struct {
	OnStateChange func(from, to State)

	// OnRetry runs before waiting out the delay of a redial attempt.
	OnRetry func(attempt int, delay time.Duration)
}

// Config customizes a Supervisor.
type Config struct {
	Policy         Policy
	ConnectTimeout time.Duration
	Hooks          Hooks
}

// Supervisor keeps one connection alive: it dials once in Start, and after
// every reported loss it redials following its Policy until a dial succeeds
// or it is closed.
type Supervisor struct {
	connect ConnectFunc
	policy  Policy
	timeout time.Duration
	hooks   Hooks
	rnd     func() float64

	ctx    context.Context
	cancel context.CancelFunc
	kick   chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	state    State
	started  bool
	running  bool
	attempts int
	dropped  bool
}

// NewSupervisor creates a supervisor for connect. Nothing is dialed until
// Start.
func NewSupervisor(connect ConnectFunc, cfg Config) *Supervisor {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		connect: connect,
		policy:  cfg.Policy.withDefaults(),
		timeout: cfg.ConnectTimeout,
		hooks:   cfg.Hooks,
		rnd:     rand.Float64,
		ctx:     ctx,
		cancel:  cancel,
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start performs the first dial and, if it succeeds, begins supervising.
// A failed first dial is returned as is and nothing is retried.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrStarted
	}
	s.started = true
	s.mu.Unlock()

	err := s.dial(ctx, StateDisconnected)
	if err != nil && !errors.Is(err, errDroppedDuringDial) {
		return err
	}
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.running = true
	s.mu.Unlock()
	go s.run()
	if err != nil {
		s.wake()
	}
	return nil
}

// Lost reports that the current connection is gone. Losses reported while
// a dial is in flight are applied once it returns.
func (s *Supervisor) Lost() {
	s.mu.Lock()
	switch s.state {
	case StateConnecting:
		s.dropped = true
		s.mu.Unlock()
		return
	case StateConnected:
	default:
		s.mu.Unlock()
		return
	}
	s.state = StateReconnecting
	s.mu.Unlock()

	s.changed(StateConnected, StateReconnecting)
	s.wake()
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns the number of redials since the last successful dial.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Close stops supervising and waits for a pending redial to give up. It
// does not close the connection itself.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	from := s.state
	s.state = StateClosed
	running := s.running
	s.mu.Unlock()

	s.changed(from, StateClosed)
	s.cancel()
	if running {
		<-s.done
	}
}

func (s *Supervisor) wake() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Supervisor) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
			s.redial()
		}
	}
}

// redial loops until a dial succeeds or the supervisor closes.
func (s *Supervisor) redial() {
	for {
		s.mu.Lock()
		if s.state != StateReconnecting {
			s.mu.Unlock()
			return
		}
		s.attempts++
		attempt := s.attempts
		s.mu.Unlock()

		delay := s.policy.Delay(attempt, s.rnd)
		if s.hooks.OnRetry != nil {
			s.hooks.OnRetry(attempt, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.dial(s.ctx, StateReconnecting); err == nil || errors.Is(err, ErrClosed) {
			return
		}
	}
}

// dial runs connect once. On failure the state returns to failed; a loss
// reported during the dial turns a success into StateReconnecting.
func (s *Supervisor) dial(ctx context.Context, failed State) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	from := s.state
	s.state = StateConnecting
	s.dropped = false
	s.mu.Unlock()
	s.changed(from, StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.connect(dialCtx)
	cancel()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	to := StateConnected
	switch {
	case err != nil:
		to = failed
	case s.dropped:
		to = StateReconnecting
		err = errDroppedDuringDial
	default:
		s.attempts = 0
	}
	s.state = to
	s.mu.Unlock()

	s.changed(StateConnecting, to)
	return err
}

func (s *Supervisor) changed(from, to State) {
	if s.hooks.OnStateChange != nil && from != to {
		s.hooks.OnStateChange(from, to)
	}
}
