package transport

import (
	"context"
	"sync"
	"time"
)

// Keep-alive defaults.
const (
	DefaultPingInterval   = 15 * time.Second
	DefaultPongTimeout    = 5 * time.Second
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures ping/pong liveness checks. A ping unanswered
// for PongTimeout is missed; MaxMissedPongs misses in a row mean the
// connection is dead.
type KeepAliveConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the defaults.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay bounds how long a dead peer goes unnoticed. Servers use it
// as their read deadline.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	d := DefaultKeepAliveConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = d.MaxMissedPongs
	}
	return c
}

// KeepAliveStats is a snapshot of a KeepAlive.
type KeepAliveStats struct {
	Sent        uint32
	LastPong    time.Time
	LastLatency time.Duration

	// SmoothedLatency weighs each new sample by 1/8.
	SmoothedLatency time.Duration

	MissedPongs int
	Outstanding int
}

// KeepAlive pings a peer on an interval. Pongs may answer any outstanding
// ping; answering one also settles every older ping.
type KeepAlive struct {
	config KeepAliveConfig
	send   func(seq uint32) error
	onDead func()
	pongs  chan uint32

	mu       sync.Mutex
	onPong   func(seq uint32, latency time.Duration)
	inflight map[uint32]time.Time
	stats    KeepAliveStats
	cancel   context.CancelFunc
}

// NewKeepAlive creates a stopped KeepAlive. send transmits a ping; onDead
// runs once when the peer is declared dead.
func NewKeepAlive(config KeepAliveConfig, send func(seq uint32) error, onDead func()) *KeepAlive {
	return &KeepAlive{
		config:   config.withDefaults(),
		send:     send,
		onDead:   onDead,
		pongs:    make(chan uint32, 8),
		inflight: make(map[uint32]time.Time),
	}
}

// OnPong registers fn for every accepted pong.
func (ka *KeepAlive) OnPong(fn func(seq uint32, latency time.Duration)) {
	ka.mu.Lock()
	ka.onPong = fn
	ka.mu.Unlock()
}

// Start pings immediately and then every PingInterval until ctx ends, Stop
// is called, or the peer is declared dead. Starting twice is a no-op.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	ka.cancel = cancel
	ka.stats.MissedPongs = 0
	clear(ka.inflight)
	go ka.run(ctx)
}

// Stop ends pinging.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	cancel := ka.cancel
	ka.cancel = nil
	ka.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// IsRunning reports whether pings are being sent.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.cancel != nil
}

// PongReceived hands a pong to the ping loop. Pongs arriving faster than
// the loop drains them are dropped.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongs <- seq:
	default:
	}
}

// Stats returns a snapshot.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	s := ka.stats
	s.Outstanding = len(ka.inflight)
	return s
}

func (ka *KeepAlive) run(ctx context.Context) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	ka.ping(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case seq := <-ka.pongs:
			ka.pong(seq, time.Now())
		case now := <-ticker.C:
			if ka.expire(now) {
				ka.dead()
				return
			}
			ka.ping(now)
		}
	}
}

func (ka *KeepAlive) ping(now time.Time) {
	ka.mu.Lock()
	ka.stats.Sent++
	seq := ka.stats.Sent
	ka.inflight[seq] = now
	ka.mu.Unlock()

	// A failed send surfaces as a missed pong.
	_ = ka.send(seq)
}

// expire counts pings older than PongTimeout as missed and reports whether
// the limit was reached.
func (ka *KeepAlive) expire(now time.Time) bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	for seq, sent := range ka.inflight {
		if now.Sub(sent) >= ka.config.PongTimeout {
			delete(ka.inflight, seq)
			ka.stats.MissedPongs++
		}
	}
	return ka.stats.MissedPongs >= ka.config.MaxMissedPongs
}

func (ka *KeepAlive) pong(seq uint32, now time.Time) {
	ka.mu.Lock()
	sent, ok := ka.inflight[seq]
	if !ok {
		ka.mu.Unlock()
		return
	}
	for s := range ka.inflight {
		if s <= seq {
			delete(ka.inflight, s)
		}
	}
	latency := now.Sub(sent)
	ka.stats.LastPong = now
	ka.stats.LastLatency = latency
	if ka.stats.SmoothedLatency == 0 {
		ka.stats.SmoothedLatency = latency
	} else {
		ka.stats.SmoothedLatency += (latency - ka.stats.SmoothedLatency) / 8
	}
	ka.stats.MissedPongs = 0
	fn := ka.onPong
	ka.mu.Unlock()

	if fn != nil {
		fn(seq, latency)
	}
}

func (ka *KeepAlive) dead() {
	ka.mu.Lock()
	cancel := ka.cancel
	ka.cancel = nil
	ka.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if ka.onDead != nil {
		ka.onDead()
	}
}
