package resilience

import (
	"context"

	"github.com/echolalia-dev/echolalia/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] across an ordered set of backends,
// typically a hosted transcription API backed by a local whisper server.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend.
func NewSTTFallback(name string, primary stt.Provider, cfg GroupConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(name, primary, cfg)}
}

// AddFallback registers an additional transcription backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.Add(name, p)
}

// Transcribe sends the recording to the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, rec stt.Recording) (string, error) {
	return Try(f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, rec)
	})
}
