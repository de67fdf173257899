// Package resilience provides the failover primitives that keep an interview
// running when an AI provider degrades.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open).
// [Chain] composes several instances of a provider type behind per-entry
// breakers so a failing primary is bypassed in favour of healthy fallbacks
// without the caller noticing.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker is open and
// its cooldown has not elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerConfig tunes a [Breaker]. Zero fields get defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// Threshold is the consecutive-failure count that trips the breaker.
	// Default: 3.
	Threshold int

	// Cooldown is how long a tripped breaker rejects calls before allowing a
	// probe. Default: 20s.
	Cooldown time.Duration
}

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a consecutive-failure circuit breaker. After Threshold failures
// it rejects calls for Cooldown, then lets a single probe through; a probe
// success closes it, a probe failure re-arms the cooldown.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a breaker from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 20 * time.Second
	}
	return &Breaker{name: cfg.Name, threshold: cfg.Threshold, cooldown: cfg.Cooldown}
}

// Do runs fn unless the breaker rejects the call.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.settle(err)
	return err
}

// admit decides whether a call may proceed, advancing open -> half-open when
// the cooldown has elapsed.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return ErrBreakerOpen
		}
		b.state = stateHalfOpen
		b.probing = true
		slog.Info("breaker half-open, probing", "name", b.name)
		return nil
	case stateHalfOpen:
		if b.probing {
			return ErrBreakerOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// settle records the call outcome.
func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.probing = false
		if err != nil {
			b.state = stateOpen
			b.openedAt = time.Now()
			slog.Warn("breaker re-opened after failed probe", "name", b.name)
		} else {
			b.state = stateClosed
			b.failures = 0
			slog.Info("breaker closed after successful probe", "name", b.name)
		}
		return
	}

	if err == nil {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = stateOpen
		b.openedAt = time.Now()
		slog.Warn("breaker opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && time.Since(b.openedAt) < b.cooldown
}
