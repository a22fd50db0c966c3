// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs) and
// presents a uniform batch interface: a lesson sentence in, one encoded audio
// clip out. The clip is forwarded to the browser for playback, so providers
// return a complete encoded file rather than streaming PCM.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceProfile identifies a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-assigned voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider names the backend this voice belongs to (e.g., "elevenlabs").
	Provider string

	// Metadata carries provider-specific labels (accent, age, category, ...).
	Metadata map[string]string
}

// Clip is one synthesized audio clip.
type Clip struct {
	// Audio is the complete encoded audio file.
	Audio []byte

	// MIMEType identifies the encoding, e.g. "audio/mpeg".
	MIMEType string
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel (one per active learner).
type Provider interface {
	// Synthesize renders text in the given voice and returns the encoded
	// clip. Returns an error if the request fails or ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (*Clip, error)

	// ListVoices returns all voice profiles available from this provider.
	// The list reflects the provider's current catalogue and may change
	// between calls.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
