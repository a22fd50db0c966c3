// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (e.g., the OpenAI
// Whisper API or a local whisper-server) and exposes a uniform interface: one
// complete recording in, its transcript out. Shadowing recordings are short,
// so batch inference keeps the surface small; there is no streaming session
// to manage.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Recording is one complete learner recording ready for transcription.
type Recording struct {
	// Audio is the encoded audio file as uploaded (not raw PCM).
	Audio []byte

	// MIMEType identifies the container, e.g. "audio/mpeg" or "audio/webm".
	// Empty means the provider may guess from the payload.
	MIMEType string

	// Language is the BCP-47 language tag for recognition (e.g., "en").
	// An empty string lets the provider auto-detect, if supported.
	Language string
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use; recordings from different
// learners may be transcribed simultaneously.
type Provider interface {
	// Transcribe converts one complete recording to text. Returns an error if
	// the request fails or ctx is cancelled before the transcript arrives.
	Transcribe(ctx context.Context, rec Recording) (string, error)
}
