// Package app wires all Echolalia subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithSentenceIndex). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/echolalia-dev/echolalia/internal/config"
	"github.com/echolalia-dev/echolalia/internal/exchange"
	"github.com/echolalia-dev/echolalia/internal/health"
	"github.com/echolalia-dev/echolalia/internal/lesson"
	"github.com/echolalia-dev/echolalia/internal/novelty"
	"github.com/echolalia-dev/echolalia/internal/observe"
	"github.com/echolalia-dev/echolalia/internal/server"
	"github.com/echolalia-dev/echolalia/pkg/provider/embeddings"
	"github.com/echolalia-dev/echolalia/pkg/provider/llm"
	"github.com/echolalia-dev/echolalia/pkg/provider/stt"
	"github.com/echolalia-dev/echolalia/pkg/provider/tts"
	"github.com/echolalia-dev/echolalia/pkg/records"
	"github.com/echolalia-dev/echolalia/pkg/records/memory"
	"github.com/echolalia-dev/echolalia/pkg/records/postgres"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and serves the Echolalia lesson pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	store     records.Store
	sentences records.SentenceIndex
	exchange  *exchange.Service
	sessions  *SessionManager
	server    *server.Server

	// checkers feed the server's readiness probe.
	checkers []health.Checker

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a records store instead of creating one from config.
func WithStore(s records.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSentenceIndex injects a sentence index instead of creating one from
// config.
func WithSentenceIndex(s records.SentenceIndex) Option {
	return func(a *App) { a.sentences = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	if providers.LLM == nil {
		return nil, fmt.Errorf("app: an LLM provider is required")
	}
	if providers.STT == nil {
		return nil, fmt.Errorf("app: an STT provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Records store ─────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Provider exchange ─────────────────────────────────────────────
	a.initExchange()

	// ── 3. Session manager ───────────────────────────────────────────────
	a.initSessions()

	// ── 4. HTTP server ───────────────────────────────────────────────────
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore sets up the PostgreSQL records store, or an in-memory one when no
// DSN is configured.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil && a.sentences != nil {
		return nil // both injected
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		mem := memory.NewStore()
		if a.store == nil {
			a.store = mem
		}
		if a.sentences == nil {
			a.sentences = mem
		}
		return nil
	}

	dims := a.cfg.Storage.EmbeddingDimensions
	if dims == 0 {
		dims = 1536 // sensible default for OpenAI text-embedding-3-small
	}

	store, err := postgres.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}

	if a.store == nil {
		a.store = store
	}
	if a.sentences == nil {
		a.sentences = store
	}

	a.checkers = append(a.checkers, health.Database(store.Ping))
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initExchange composes the configured providers into the lesson back end.
func (a *App) initExchange() {
	opts := []exchange.Option{
		exchange.WithProviderNames(
			a.cfg.Providers.LLM.Name,
			a.cfg.Providers.STT.Name,
			a.cfg.Providers.TTS.Name,
		),
	}
	if a.providers.TTS != nil && a.cfg.Lesson.VoiceID != "" {
		opts = append(opts, exchange.WithTTS(a.providers.TTS, tts.VoiceProfile{
			ID:       a.cfg.Lesson.VoiceID,
			Provider: a.cfg.Providers.TTS.Name,
		}))
	}
	a.exchange = exchange.New(a.providers.LLM, a.providers.STT, opts...)
}

// initSessions creates the session manager, attaching the sentence novelty
// index when an embeddings provider is configured.
func (a *App) initSessions() {
	var smOpts []SessionManagerOption
	if a.providers.Embeddings != nil {
		var nvOpts []novelty.Option
		if a.cfg.Lesson.RepeatThreshold > 0 {
			nvOpts = append(nvOpts, novelty.WithRepeatThreshold(a.cfg.Lesson.RepeatThreshold))
		}
		smOpts = append(smOpts, WithNoveltyIndex(novelty.New(a.providers.Embeddings, a.sentences, nvOpts...)))
	}

	a.sessions = NewSessionManager(a.exchange, storeAdapter{a.store}, a.cfg.Lesson, smOpts...)
	a.closers = append(a.closers, func() error {
		a.sessions.CloseAll()
		return nil
	})
}

// initServer assembles the HTTP server and its routes.
func (a *App) initServer() {
	srvOpts := []server.Option{
		server.WithHealthCheckers(a.checkers...),
	}
	if a.providers.TTS != nil {
		srvOpts = append(srvOpts, server.WithVoices(a.providers.TTS))
	}
	a.server = server.New(a.cfg.Server, a.sessions, a.store, srvOpts...)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled or the listener fails, then drains
// in-flight requests. A cancellation-triggered stop returns nil.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(a.server.Run)
	g.Go(func() error {
		<-ctx.Done()
		// Shutdown needs a live context to drain in-flight requests.
		if err := a.server.Shutdown(context.WithoutCancel(ctx)); err != nil {
			observe.Logger(ctx).Warn("server shutdown error", "error", err)
		}
		return ctx.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: run: %w", err)
	}
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		log := observe.Logger(ctx)
		log.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				log.Warn("closer error", "index", i, "error", err)
			}
		}

		log.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyLessonConfig swaps the lesson settings used for sessions opened from
// now on. Running sessions keep the settings they started with.
func (a *App) ApplyLessonConfig(cfg config.LessonConfig) {
	a.sessions.UpdateLesson(cfg)
}

// ─── Store adapter ───────────────────────────────────────────────────────────

// storeAdapter exposes a records.Store under the narrower lesson.Store
// interface the machine depends on.
type storeAdapter struct {
	store records.Store
}

var _ lesson.Store = storeAdapter{}

func (s storeAdapter) Learner(ctx context.Context, name string) (*lesson.Learner, error) {
	l, err := s.store.Learner(ctx, name)
	if err != nil || l == nil {
		return nil, err
	}
	return &lesson.Learner{
		Name:         l.Name,
		Level:        l.Level,
		Theme:        l.Theme,
		LevelHistory: l.LevelHistory,
	}, nil
}

func (s storeAdapter) SaveLearner(ctx context.Context, l lesson.Learner) error {
	return s.store.SaveLearner(ctx, records.Learner{
		Name:         l.Name,
		Level:        l.Level,
		Theme:        l.Theme,
		LevelHistory: l.LevelHistory,
	})
}

func (s storeAdapter) SaveAttempt(ctx context.Context, att lesson.Attempt) error {
	return s.store.SaveAttempt(ctx, records.Attempt{
		User:            att.User,
		OriginalText:    att.OriginalText,
		TranscribedText: att.TranscribedText,
		Level:           att.Level,
		Theme:           att.Theme,
		Timestamp:       att.Timestamp,
	})
}
