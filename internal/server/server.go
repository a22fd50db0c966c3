// Package server exposes the HTTP surface of Echolalia: the lesson websocket
// at /ws, the level history REST API, and the operational endpoints
// (/healthz, /readyz, /metrics).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/echolalia-dev/echolalia/internal/config"
	"github.com/echolalia-dev/echolalia/internal/health"
	"github.com/echolalia-dev/echolalia/internal/lesson"
	"github.com/echolalia-dev/echolalia/internal/observe"
	"github.com/echolalia-dev/echolalia/pkg/provider/tts"
)

// shutdownTimeout bounds how long Shutdown waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

// Hub creates and releases lesson sessions for connected learners.
// Implemented by app.SessionManager.
type Hub interface {
	// Open creates a session whose events are delivered to sink.
	Open(sink lesson.EventSink) (*lesson.Machine, error)

	// Release tears the session down and frees its slot.
	Release(m *lesson.Machine)
}

// LevelReader serves the level history endpoint.
type LevelReader interface {
	// LevelHistory returns the recorded level progression for a learner,
	// oldest first. An unknown learner yields an empty slice, not an error.
	LevelHistory(ctx context.Context, user string) ([]int, error)
}

// Option configures a [Server].
type Option func(*Server)

// WithVoices enables the voice listing endpoint backed by the given provider.
func WithVoices(p tts.Provider) Option {
	return func(s *Server) { s.voices = p }
}

// WithHealthCheckers adds readiness checks to /readyz.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, checkers...) }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server is the Echolalia HTTP server. Create it with [New], run it with
// [Run], and stop it with [Shutdown].
type Server struct {
	cfg    config.ServerConfig
	hub    Hub
	levels LevelReader
	voices tts.Provider

	checkers []health.Checker
	metrics  *observe.Metrics
	log      *slog.Logger

	http *http.Server
}

// New assembles the server and its routes. The hub supplies lesson sessions
// for websocket connections; levels backs the REST level history.
func New(cfg config.ServerConfig, hub Hub, levels LevelReader, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		hub:     hub,
		levels:  levels,
		metrics: observe.DefaultMetrics(),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleSocket)
	mux.HandleFunc("GET /api/levels/{user}", s.handleLevels)
	mux.HandleFunc("GET /api/voices", s.handleVoices)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(s.checkers...).Register(mux)

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           observe.Middleware(s.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run starts serving and blocks until the listener fails or [Shutdown] is
// called. A clean shutdown returns nil.
func (s *Server) Run() error {
	s.log.Info("http server listening", "addr", s.cfg.ListenAddr, "tls", s.cfg.TLS != nil)

	var err error
	if s.cfg.TLS != nil {
		err = s.http.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		err = s.http.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("server: listen on %q: %w", s.cfg.ListenAddr, err)
}

// Shutdown stops accepting connections and waits for in-flight requests,
// bounded by [shutdownTimeout] within the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// levelsResponse is the JSON body of the level history endpoint.
type levelsResponse struct {
	User   string `json:"user"`
	Levels []int  `json:"levels"`
}

// handleLevels serves GET /api/levels/{user}: the learner's level progression
// for the dashboard chart.
func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	if user == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}

	levels, err := s.levels.LevelHistory(r.Context(), user)
	if err != nil {
		observe.Logger(r.Context()).Error("level history lookup failed", "user", user, "error", err)
		http.Error(w, "level history unavailable", http.StatusInternalServerError)
		return
	}
	if levels == nil {
		levels = []int{}
	}

	writeJSON(w, http.StatusOK, levelsResponse{User: user, Levels: levels})
}

// handleVoices serves GET /api/voices: the synthesis voices available for
// lesson playback. Returns 404 when no TTS provider is configured.
func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if s.voices == nil {
		http.Error(w, "speech synthesis is not configured", http.StatusNotFound)
		return
	}

	voices, err := s.voices.ListVoices(r.Context())
	if err != nil {
		observe.Logger(r.Context()).Error("voice listing failed", "error", err)
		http.Error(w, "voice listing unavailable", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, voices)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
