package resilience

import (
	"errors"
	"testing"
	"time"
)

type namedBackend struct {
	name string
	err  error
}

func testGroup(backends ...namedBackend) *FallbackGroup[*namedBackend] {
	cfg := GroupConfig{
		Breaker: BreakerConfig{FailureLimit: 2, Cooldown: time.Minute},
		Logger:  quietLogger(),
	}
	first := backends[0]
	g := NewFallbackGroup(first.name, &first, cfg)
	for _, b := range backends[1:] {
		g.Add(b.name, &b)
	}
	return g
}

func call(g *FallbackGroup[*namedBackend]) (string, error) {
	return Try(g, func(b *namedBackend) (string, error) {
		return b.name, b.err
	})
}

func TestTry_PrimaryWins(t *testing.T) {
	g := testGroup(
		namedBackend{name: "primary"},
		namedBackend{name: "fallback"},
	)

	got, err := call(g)
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if got != "primary" {
		t.Errorf("served by %q, want primary", got)
	}
}

func TestTry_FailoverToSecondEntry(t *testing.T) {
	g := testGroup(
		namedBackend{name: "primary", err: errBackend},
		namedBackend{name: "fallback"},
	)

	got, err := call(g)
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if got != "fallback" {
		t.Errorf("served by %q, want fallback", got)
	}
}

func TestTry_AllFail(t *testing.T) {
	g := testGroup(
		namedBackend{name: "primary", err: errBackend},
		namedBackend{name: "fallback", err: errBackend},
	)

	_, err := call(g)
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Fatalf("error: got %v, want ErrAllBackendsFailed", err)
	}
}

func TestTry_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := namedBackend{name: "primary", err: errBackend}
	g := testGroup(primary, namedBackend{name: "fallback"})

	// FailureLimit is 2; trip the primary's breaker.
	call(g)
	call(g)

	calls := 0
	got, err := Try(g, func(b *namedBackend) (string, error) {
		calls++
		return b.name, b.err
	})
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if got != "fallback" {
		t.Errorf("served by %q, want fallback", got)
	}
	if calls != 1 {
		t.Errorf("backend calls: got %d, want 1 (primary skipped)", calls)
	}
}

func TestFallbackGroup_Len(t *testing.T) {
	g := testGroup(namedBackend{name: "a"}, namedBackend{name: "b"})
	if g.Len() != 2 {
		t.Errorf("Len: got %d, want 2", g.Len())
	}
}
