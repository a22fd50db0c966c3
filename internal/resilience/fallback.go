package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllBackendsFailed is returned when every entry in a [FallbackGroup]
// either failed or had an open breaker.
var ErrAllBackendsFailed = errors.New("resilience: all backends failed")

// GroupConfig configures a [FallbackGroup] and the breaker created for each
// of its entries.
type GroupConfig struct {
	Breaker BreakerConfig

	// Logger receives failover logs. Nil means [slog.Default].
	Logger *slog.Logger
}

// groupEntry pairs one backend with its dedicated breaker.
type groupEntry[T any] struct {
	name    string
	backend T
	breaker *Breaker
}

// FallbackGroup holds an ordered list of interchangeable backends. Calls go
// to the first entry whose breaker admits them; on failure the next entry is
// tried. Safe for concurrent use once assembled, but Add is not safe to call
// concurrently with Try.
type FallbackGroup[T any] struct {
	entries []groupEntry[T]
	cfg     GroupConfig
	log     *slog.Logger
}

// NewFallbackGroup creates a group with primary as its first entry.
func NewFallbackGroup[T any](name string, primary T, cfg GroupConfig) *FallbackGroup[T] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	g := &FallbackGroup[T]{cfg: cfg, log: cfg.Logger}
	g.Add(name, primary)
	return g
}

// Add appends a backend. Entries are tried in the order they were added.
func (g *FallbackGroup[T]) Add(name string, backend T) {
	bc := g.cfg.Breaker
	bc.Name = name
	bc.Logger = g.cfg.Logger
	g.entries = append(g.entries, groupEntry[T]{
		name:    name,
		backend: backend,
		breaker: NewBreaker(bc),
	})
}

// Len returns the number of registered backends.
func (g *FallbackGroup[T]) Len() int { return len(g.entries) }

// Try runs fn against each backend in order until one succeeds. Entries with
// an open breaker are skipped. When every entry fails the last error is
// wrapped in [ErrAllBackendsFailed].
//
// Try is a package-level function because Go methods cannot introduce the
// result type parameter R.
func Try[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range g.entries {
		entry := &g.entries[i]
		var result R
		err := entry.breaker.Do(func() error {
			var callErr error
			result, callErr = fn(entry.backend)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			g.log.Debug("skipping backend, breaker open", "backend", entry.name)
		} else {
			g.log.Warn("backend failed, trying next", "backend", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}
