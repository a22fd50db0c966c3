// Package resilience protects lesson turns from flaky provider backends.
//
// A [Breaker] is a three-state circuit breaker (closed, open, half-open)
// that stops hammering a backend after repeated failures. [FallbackGroup]
// composes several providers of the same kind behind per-entry breakers so
// a degraded primary is bypassed in favour of a healthy fallback, and the
// typed wrappers ([LLMFallback], [STTFallback], [TTSFallback]) present the
// group as an ordinary provider to the rest of the server.
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
// the cooldown has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker is open")

// BreakerState is the current operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls with [ErrBreakerOpen] until the cooldown
	// elapses.
	BreakerOpen

	// BreakerHalfOpen lets a small number of probe calls through to decide
	// whether the backend has recovered.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero-value fields fall back to defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output, usually the provider name.
	Name string

	// FailureLimit is how many consecutive failures trip the breaker.
	// Default 5.
	FailureLimit int

	// Cooldown is how long a tripped breaker rejects calls before probing
	// the backend again. Default 30s.
	Cooldown time.Duration

	// ProbeLimit is how many successful half-open probes are required to
	// close the breaker again. Default 3.
	ProbeLimit int

	// Logger receives state transition logs. Nil means [slog.Default].
	Logger *slog.Logger
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	name         string
	failureLimit int
	cooldown     time.Duration
	probeLimit   int
	log          *slog.Logger

	mu        sync.Mutex
	state     BreakerState
	failures  int
	trippedAt time.Time
	probes    int
	probeFail int
}

// NewBreaker creates a closed [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeLimit <= 0 {
		cfg.ProbeLimit = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{
		name:         cfg.Name,
		failureLimit: cfg.FailureLimit,
		cooldown:     cfg.Cooldown,
		probeLimit:   cfg.ProbeLimit,
		log:          cfg.Logger,
	}
}

// State returns the breaker's current state without advancing it.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs fn unless the breaker rejects the call. While open it returns
// [ErrBreakerOpen] without invoking fn; once the cooldown elapses the next
// call transitions to half-open and probes the backend.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.trippedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.probes = 0
		b.probeFail = 0
		b.log.Info("breaker half-open", "name", b.name)

	case BreakerHalfOpen:
		if b.probes >= b.probeLimit {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}

	probing := b.state == BreakerHalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.trippedAt = time.Now()

	if probing {
		// A single failed probe re-opens immediately.
		b.probeFail++
		b.state = BreakerOpen
		b.failures = b.failureLimit
		b.log.Warn("breaker re-opened", "name", b.name)
		return
	}

	b.failures++
	if b.failures >= b.failureLimit {
		b.state = BreakerOpen
		b.log.Warn("breaker opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probes-b.probeFail >= b.probeLimit {
			b.state = BreakerClosed
			b.failures = 0
			b.probes = 0
			b.probeFail = 0
			b.log.Info("breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}
