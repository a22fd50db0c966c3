// Package recorder schedules the capture window of a lesson turn: a
// per-second countdown while the lesson audio plays, the capture start at
// zero, and a hard deadline that force-stops a capture the learner forgot to
// end. The package only keeps time; actual microphone capture happens in the
// browser, driven by the hook callbacks.
package recorder

import (
	"math"
	"sync"
	"time"
)

// WordsPerMinute is the assumed speaking rate used to size the countdown to
// the spoken length of the lesson sentence.
const WordsPerMinute = 150

// DefaultDeadline is the hard upper bound on a capture. A capture still open
// this long after it started is force-stopped.
const DefaultDeadline = 30 * time.Second

const defaultTickInterval = time.Second

// CountdownSeconds returns the whole seconds to wait before capture starts:
// the estimated playback duration of wordCount words at [WordsPerMinute],
// padded for mid and high levels where sentences carry denser syllables,
// rounded up.
func CountdownSeconds(wordCount, level int) int {
	seconds := float64(wordCount) / WordsPerMinute * 60
	switch {
	case level >= 6:
		seconds += 1.0
	case level == 4 || level == 5:
		seconds += 0.5
	}
	return int(math.Ceil(seconds))
}

// Hooks are the callbacks a [Schedule] drives. Any hook may be nil. Hooks
// are invoked from the schedule's own goroutines; implementations must not
// call back into the schedule synchronously except for Stop and Cancel,
// which are safe.
type Hooks struct {
	// OnTick fires once per second during the countdown with the seconds
	// remaining, starting at the full countdown and ending at 1.
	OnTick func(remaining int)

	// OnCaptureStart fires when the countdown reaches zero.
	OnCaptureStart func()

	// OnCaptureStop fires exactly once per schedule when the capture ends.
	// forced is true when the deadline expired rather than Stop being
	// called.
	OnCaptureStop func(forced bool)
}

// Option configures a [Schedule].
type Option func(*Schedule)

// WithTickInterval overrides the one-second tick, for tests.
func WithTickInterval(d time.Duration) Option {
	return func(s *Schedule) { s.tickInterval = d }
}

// WithDeadline overrides the hard capture deadline.
func WithDeadline(d time.Duration) Option {
	return func(s *Schedule) { s.deadline = d }
}

type scheduleState int

const (
	stateCounting scheduleState = iota
	stateCapturing
	stateStopped
	stateCancelled
)

// Schedule is one countdown-then-capture timing cycle. A schedule runs at
// most one capture and honors at most one stop; Stop and Cancel are
// idempotent and safe for concurrent use.
type Schedule struct {
	tickInterval time.Duration
	deadline     time.Duration
	hooks        Hooks

	mu            sync.Mutex
	state         scheduleState
	cancelCh      chan struct{}
	deadlineTimer *time.Timer
}

// Start begins a schedule with the given countdown. A countdown of zero
// skips the countdown and starts capture immediately.
func Start(countdownSeconds int, hooks Hooks, opts ...Option) *Schedule {
	s := &Schedule{
		tickInterval: defaultTickInterval,
		deadline:     DefaultDeadline,
		hooks:        hooks,
		cancelCh:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.run(countdownSeconds)
	return s
}

func (s *Schedule) run(remaining int) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for remaining > 0 {
		if s.hooks.OnTick != nil {
			s.hooks.OnTick(remaining)
		}
		select {
		case <-ticker.C:
			remaining--
		case <-s.cancelCh:
			return
		}
	}

	s.mu.Lock()
	if s.state != stateCounting {
		s.mu.Unlock()
		return
	}
	s.state = stateCapturing
	s.deadlineTimer = time.AfterFunc(s.deadline, func() { s.stop(true) })
	s.mu.Unlock()

	if s.hooks.OnCaptureStart != nil {
		s.hooks.OnCaptureStart()
	}
}

// Stop ends the capture. It returns true the first time it ends a running
// capture and false otherwise: during the countdown, after a previous stop,
// or after cancellation, Stop does nothing.
func (s *Schedule) Stop() bool {
	return s.stop(false)
}

func (s *Schedule) stop(forced bool) bool {
	s.mu.Lock()
	if s.state != stateCapturing {
		s.mu.Unlock()
		return false
	}
	s.state = stateStopped
	if s.deadlineTimer != nil {
		s.deadlineTimer.Stop()
	}
	s.mu.Unlock()

	if s.hooks.OnCaptureStop != nil {
		s.hooks.OnCaptureStop(forced)
	}
	return true
}

// Cancel abandons the schedule: the countdown stops ticking, no capture
// starts, and a running capture is discarded without OnCaptureStop firing.
// Cancel is idempotent.
func (s *Schedule) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateStopped, stateCancelled:
		return
	}
	if s.state == stateCounting {
		close(s.cancelCh)
	}
	if s.deadlineTimer != nil {
		s.deadlineTimer.Stop()
	}
	s.state = stateCancelled
}
