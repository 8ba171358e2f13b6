package connection

import (
	"math"
	"time"
)

// Default retry policy.
const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultMultiplier   = 2.0
	DefaultJitter       = 0.25
)

// Policy describes the delay before each redial attempt. Attempt n waits
// Initial * Multiplier^(n-1), capped at Max, plus up to Jitter of that
// delay at random. The zero value uses the defaults.
type Policy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		Initial:    DefaultInitialDelay,
		Max:        DefaultMaxDelay,
		Multiplier: DefaultMultiplier,
		Jitter:     DefaultJitter,
	}
}

// withDefaults fills unset fields. A zero Jitter stays zero only when
// every other field was set explicitly.
func (p Policy) withDefaults() Policy {
	if p == (Policy{}) {
		return DefaultPolicy()
	}
	if p.Initial <= 0 {
		p.Initial = DefaultInitialDelay
	}
	if p.Max <= 0 {
		p.Max = DefaultMaxDelay
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Multiplier <= 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Base returns the delay for attempt (1-based) before jitter.
func (p Policy) Base(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Initial) * math.Pow(p.Multiplier, float64(attempt-1))
	if d >= float64(p.Max) || math.IsInf(d, 1) {
		return p.Max
	}
	return time.Duration(d)
}

// Delay returns the jittered delay for attempt. rnd must return values in
// [0, 1); nil disables jitter.
func (p Policy) Delay(attempt int, rnd func() float64) time.Duration {
	base := p.Base(attempt)
	jitter := p.withDefaults().Jitter
	if rnd == nil || jitter == 0 {
		return base
	}
	return base + time.Duration(float64(base)*jitter*rnd())
}

// Schedule lists the base delays from the first attempt until the cap
// is reached, the cap included once.
func (p Policy) Schedule() []time.Duration {
	p = p.withDefaults()
	var out []time.Duration
	for attempt := 1; ; attempt++ {
		d := p.Base(attempt)
		out = append(out, d)
		if d == p.Max {
			return out
		}
	}
}
