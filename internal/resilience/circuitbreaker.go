// Package resilience keeps the scoring service answering when a transcription
// backend misbehaves.
//
// [Breaker] is a three-state circuit breaker. [Failover] orders several
// backends of the same kind behind one breaker each and tries them in turn.
// [Transcriber] applies Failover to [stt.Provider]. Failover only picks which
// backend produces a transcript; it never invents one.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults noted.
type BreakerConfig struct {
	// MaxFailures consecutive failures open the breaker. Default 5.
	MaxFailures int
	// Cooldown is how long an open breaker rejects calls. Default 30s.
	Cooldown time.Duration
	// Probes successful half-open calls close the breaker again. Default 1.
	Probes int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.Probes <= 0 {
		c.Probes = 1
	}
	return c
}

// Breaker is a consecutive-failure circuit breaker. It is safe for concurrent
// use.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inflight int // half-open probes currently running
	probesOK int
}

// NewBreaker returns a closed breaker labelled name in logs.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
}

// Name returns the label given to [NewBreaker].
func (b *Breaker) Name() string { return b.name }

// State reports the current state. An open breaker whose cooldown has passed
// reports [StateHalfOpen] even before the next call moves it there.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Do runs fn when the breaker admits the call and records its outcome.
// Errors for which counts returns false are passed through without touching
// the failure count; a nil counts treats every error as a failure.
func (b *Breaker) Do(fn func() error, counts func(error) bool) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	switch {
	case err == nil:
		b.record(probe, outcomeSuccess)
	case counts == nil || counts(err):
		b.record(probe, outcomeFailure)
	default:
		b.record(probe, outcomeNeutral)
	}
	return err
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeNeutral
)

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.inflight, b.probesOK = 0, 0
		slog.Info("circuit breaker half-open", "name", b.name)
		fallthrough
	case StateHalfOpen:
		if b.inflight >= b.cfg.Probes {
			return false, ErrCircuitOpen
		}
		b.inflight++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(probe bool, o outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.inflight--
		switch o {
		case outcomeFailure:
			b.trip("probe failed")
		case outcomeSuccess:
			b.probesOK++
			if b.probesOK >= b.cfg.Probes {
				b.state = StateClosed
				b.failures = 0
				slog.Info("circuit breaker closed", "name", b.name)
			}
		}
		return
	}

	switch o {
	case outcomeSuccess:
		b.failures = 0
		return
	case outcomeNeutral:
		return
	}
	b.failures++
	if b.state == StateClosed && b.failures >= b.cfg.MaxFailures {
		b.trip("too many consecutive failures")
	}
}

// trip opens the breaker. Caller holds b.mu.
func (b *Breaker) trip(reason string) {
	b.state = StateOpen
	b.openedAt = b.now()
	slog.Warn("circuit breaker opened", "name", b.name, "reason", reason, "failures", b.failures)
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures, b.inflight, b.probesOK = 0, 0, 0
}
