package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/echolalia-dev/echolalia/internal/config"
	"github.com/echolalia-dev/echolalia/internal/lesson"
	"github.com/echolalia-dev/echolalia/internal/observe"
	"github.com/echolalia-dev/echolalia/internal/server"
)

var _ server.Hub = (*SessionManager)(nil)

// SessionManagerOption configures a [SessionManager].
type SessionManagerOption func(*SessionManager)

// WithNoveltyIndex attaches a sentence novelty index to every session.
func WithNoveltyIndex(idx lesson.NoveltyIndex) SessionManagerOption {
	return func(sm *SessionManager) { sm.novelty = idx }
}

// WithSessionLogger sets the logger handed to each session machine. Defaults
// to slog.Default.
func WithSessionLogger(log *slog.Logger) SessionManagerOption {
	return func(sm *SessionManager) { sm.log = log }
}

// WithSessionMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithSessionMetrics(m *observe.Metrics) SessionManagerOption {
	return func(sm *SessionManager) { sm.metrics = m }
}

// SessionManager creates one lesson machine per websocket connection and
// tracks the live set. All exported methods are safe for concurrent use.
type SessionManager struct {
	exchange lesson.Exchange
	store    lesson.Store
	novelty  lesson.NoveltyIndex
	metrics  *observe.Metrics
	log      *slog.Logger

	mu     sync.Mutex
	cfg    config.LessonConfig
	active map[*lesson.Machine]struct{}
	closed bool
}

// NewSessionManager creates a SessionManager with the given dependencies.
// cfg holds the lesson settings applied to newly opened sessions; swap them
// at runtime with [SessionManager.UpdateLesson].
func NewSessionManager(exchange lesson.Exchange, store lesson.Store, cfg config.LessonConfig, opts ...SessionManagerOption) *SessionManager {
	sm := &SessionManager{
		exchange: exchange,
		store:    store,
		metrics:  observe.DefaultMetrics(),
		log:      slog.Default(),
		cfg:      cfg,
		active:   make(map[*lesson.Machine]struct{}),
	}
	for _, o := range opts {
		o(sm)
	}
	return sm
}

// Open implements [server.Hub]. It creates a fresh lesson machine whose
// events are delivered to sink.
func (sm *SessionManager) Open(sink lesson.EventSink) (*lesson.Machine, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return nil, fmt.Errorf("app: session manager is shut down")
	}

	opts := []lesson.Option{
		lesson.WithLogger(sm.log),
		lesson.WithPersonalization(sm.cfg.Personalization),
	}
	if sm.novelty != nil {
		opts = append(opts, lesson.WithNoveltyIndex(sm.novelty))
	}

	m := lesson.NewMachine(sm.exchange, sm.store, sink, opts...)
	sm.active[m] = struct{}{}
	sm.metrics.ActiveSessions.Add(context.Background(), 1)

	sm.log.Debug("session opened", "active", len(sm.active))
	return m, nil
}

// Release implements [server.Hub]. It stops the session's timers and frees
// its slot. Releasing a machine twice is a no-op.
func (sm *SessionManager) Release(m *lesson.Machine) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.active[m]; !ok {
		return
	}
	delete(sm.active, m)
	m.Close()
	sm.metrics.ActiveSessions.Add(context.Background(), -1)

	sm.log.Debug("session released", "active", len(sm.active))
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.active)
}

// UpdateLesson swaps the lesson settings used for sessions opened from now
// on. Running sessions keep the settings they started with.
func (sm *SessionManager) UpdateLesson(cfg config.LessonConfig) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.cfg = cfg

	sm.log.Info("lesson settings updated",
		"personalization", cfg.Personalization,
		"voice_id", cfg.VoiceID,
	)
}

// CloseAll tears down every live session and refuses new ones. Called during
// application shutdown.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return
	}
	sm.closed = true

	for m := range sm.active {
		delete(sm.active, m)
		m.Close()
		sm.metrics.ActiveSessions.Add(context.Background(), -1)
	}
}
