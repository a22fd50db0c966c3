// Package exchange composes the pluggable speech and language providers into
// the single back end a lesson session talks to: chat completion for grading
// and sentence generation, batch transcription for recordings, and optional
// speech synthesis of the generated sentence.
//
// The Service records per-stage latency and request metrics and wraps every
// call in a trace span.
package exchange

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/echolalia-dev/echolalia/internal/lesson"
	"github.com/echolalia-dev/echolalia/internal/observe"
	"github.com/echolalia-dev/echolalia/pkg/audio"
	"github.com/echolalia-dev/echolalia/pkg/provider/llm"
	"github.com/echolalia-dev/echolalia/pkg/provider/stt"
	"github.com/echolalia-dev/echolalia/pkg/provider/tts"
)

// Generation parameters for lesson completions. The sentence prompts expect
// short outputs; 100 tokens is plenty for a level-10 sentence.
const (
	completionMaxTokens   = 100
	completionTemperature = 0.7
)

var _ lesson.Exchange = (*Service)(nil)

// Option configures a [Service].
type Option func(*Service)

// WithTTS enables synthesis of generated sentences with the given provider
// and voice.
func WithTTS(p tts.Provider, voice tts.VoiceProfile) Option {
	return func(s *Service) {
		s.tts = p
		s.voice = voice
	}
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithProviderNames sets the provider labels used in metrics attributes.
func WithProviderNames(llmName, sttName, ttsName string) Option {
	return func(s *Service) {
		s.llmName, s.sttName, s.ttsName = llmName, sttName, ttsName
	}
}

// Service implements [lesson.Exchange] on top of the provider interfaces.
// All methods are safe for concurrent use.
type Service struct {
	llm   llm.Provider
	stt   stt.Provider
	tts   tts.Provider
	voice tts.VoiceProfile

	metrics *observe.Metrics
	log     *slog.Logger

	llmName string
	sttName string
	ttsName string
}

// New creates a Service from the required providers. Synthesis stays
// disabled until [WithTTS] is supplied.
func New(llmProvider llm.Provider, sttProvider stt.Provider, opts ...Option) *Service {
	s := &Service{
		llm:     llmProvider,
		stt:     sttProvider,
		metrics: observe.DefaultMetrics(),
		log:     slog.Default(),
		llmName: "llm",
		sttName: "stt",
		ttsName: "tts",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Complete implements [lesson.Exchange]. It runs a chat completion with a
// system prompt and one user message.
func (s *Service) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "exchange.complete")
	defer span.End()

	return s.complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: userContent}},
		Temperature:  completionTemperature,
		MaxTokens:    completionMaxTokens,
	})
}

// Generate implements [lesson.Exchange]. It runs a system-prompt-only
// completion and, when synthesis is enabled, renders the result to audio.
// Synthesis failure is not fatal: the text is still returned with empty
// audio and the client falls back to browser speech synthesis.
func (s *Service) Generate(ctx context.Context, systemPrompt string) (string, string, error) {
	ctx, span := observe.StartSpan(ctx, "exchange.generate")
	defer span.End()

	text, err := s.complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  completionTemperature,
		MaxTokens:    completionMaxTokens,
	})
	if err != nil {
		return "", "", err
	}

	if s.tts == nil {
		return text, "", nil
	}

	start := time.Now()
	clip, err := s.tts.Synthesize(ctx, text, s.voice)
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, s.ttsName, "tts")
		observe.Logger(ctx).Warn("synthesis failed, falling back to client-side speech",
			"provider", s.ttsName, "error", err)
		return text, "", nil
	}
	s.metrics.RecordProviderRequest(ctx, s.ttsName, "tts", "ok")

	return text, base64.StdEncoding.EncodeToString(clip.Audio), nil
}

// Transcribe implements [lesson.Exchange].
func (s *Service) Transcribe(ctx context.Context, recording []byte) (string, error) {
	ctx, span := observe.StartSpan(ctx, "exchange.transcribe")
	defer span.End()

	mime := audio.DetectMIME(recording)
	if mime == "" {
		// MediaRecorder output without a recognisable header; assume the
		// Chromium default.
		mime = "audio/webm"
	}

	start := time.Now()
	text, err := s.stt.Transcribe(ctx, stt.Recording{
		Audio:    recording,
		MIMEType: mime,
		Language: "en",
	})
	s.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, s.sttName, "stt")
		return "", fmt.Errorf("exchange: transcribe: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, s.sttName, "stt", "ok")
	return text, nil
}

// complete runs one LLM completion with metrics around it.
func (s *Service) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	start := time.Now()
	resp, err := s.llm.Complete(ctx, req)
	s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, s.llmName, "llm")
		return "", fmt.Errorf("exchange: completion: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, s.llmName, "llm", "ok")
	return resp.Content, nil
}
