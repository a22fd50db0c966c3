package resilience

import (
	"context"

	"github.com/echolalia-dev/echolalia/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] across an ordered set of backends.
// Synthesis is already best-effort at the exchange layer; the fallback keeps
// spoken lessons available when the primary voice service has an outage.
//
// Voice IDs are provider-specific, so a fallback backend should be
// configured with a voice of its own rather than reusing the primary's ID.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(name string, primary tts.Provider, cfg GroupConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(name, primary, cfg)}
}

// AddFallback registers an additional synthesis backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.Add(name, p)
}

// Synthesize renders text with the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (*tts.Clip, error) {
	return Try(f.group, func(p tts.Provider) (*tts.Clip, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices returns the catalogue of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return Try(f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
