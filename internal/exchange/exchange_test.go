package exchange

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/echolalia-dev/echolalia/pkg/provider/llm"
	llmmock "github.com/echolalia-dev/echolalia/pkg/provider/llm/mock"
	sttmock "github.com/echolalia-dev/echolalia/pkg/provider/stt/mock"
	"github.com/echolalia-dev/echolalia/pkg/provider/tts"
	ttsmock "github.com/echolalia-dev/echolalia/pkg/provider/tts/mock"
)

func TestComplete_BuildsRequest(t *testing.T) {
	llmP := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "7"},
	}
	s := New(llmP, &sttmock.Provider{})

	got, err := s.Complete(context.Background(), "Grade this profile.", "I study daily.")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "7" {
		t.Errorf("content: got %q, want 7", got)
	}

	if len(llmP.CompleteCalls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(llmP.CompleteCalls))
	}
	req := llmP.CompleteCalls[0].Req
	if req.SystemPrompt != "Grade this profile." {
		t.Errorf("system prompt: got %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "I study daily." {
		t.Errorf("messages: %+v", req.Messages)
	}
	if req.Temperature != completionTemperature || req.MaxTokens != completionMaxTokens {
		t.Errorf("sampling: temp %v tokens %d", req.Temperature, req.MaxTokens)
	}
}

func TestComplete_Error(t *testing.T) {
	llmP := &llmmock.Provider{CompleteErr: errors.New("backend down")}
	s := New(llmP, &sttmock.Provider{})

	if _, err := s.Complete(context.Background(), "prompt", "content"); err == nil {
		t.Fatal("expected error")
	}
}

func TestGenerate_NoTTS(t *testing.T) {
	llmP := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `"The cat sat."`},
	}
	s := New(llmP, &sttmock.Provider{})

	text, audio, err := s.Generate(context.Background(), "Generate a sentence.")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != `"The cat sat."` {
		t.Errorf("text: got %q", text)
	}
	if audio != "" {
		t.Errorf("expected no audio without a TTS provider, got %d bytes", len(audio))
	}

	req := llmP.CompleteCalls[0].Req
	if len(req.Messages) != 0 {
		t.Errorf("generation should be system-prompt-only, got %+v", req.Messages)
	}
}

func TestGenerate_WithTTS(t *testing.T) {
	llmP := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "The cat sat."},
	}
	clip := []byte{0x49, 0x44, 0x33}
	ttsP := &ttsmock.Provider{Clip: &tts.Clip{Audio: clip, MIMEType: "audio/mpeg"}}
	voice := tts.VoiceProfile{ID: "rachel-v1", Provider: "elevenlabs"}
	s := New(llmP, &sttmock.Provider{}, WithTTS(ttsP, voice))

	text, audio, err := s.Generate(context.Background(), "Generate a sentence.")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "The cat sat." {
		t.Errorf("text: got %q", text)
	}
	if audio != base64.StdEncoding.EncodeToString(clip) {
		t.Errorf("audio: got %q", audio)
	}

	if len(ttsP.SynthesizeCalls) != 1 {
		t.Fatalf("expected 1 synthesis call, got %d", len(ttsP.SynthesizeCalls))
	}
	call := ttsP.SynthesizeCalls[0]
	if call.Text != "The cat sat." || call.Voice.ID != "rachel-v1" {
		t.Errorf("synthesis call: %+v", call)
	}
}

func TestGenerate_SynthesisFailureFallsBack(t *testing.T) {
	llmP := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "The cat sat."},
	}
	ttsP := &ttsmock.Provider{SynthesizeErr: errors.New("quota exceeded")}
	s := New(llmP, &sttmock.Provider{}, WithTTS(ttsP, tts.VoiceProfile{ID: "v1"}))

	text, audio, err := s.Generate(context.Background(), "Generate a sentence.")
	if err != nil {
		t.Fatalf("synthesis failure must not fail the turn: %v", err)
	}
	if text != "The cat sat." || audio != "" {
		t.Errorf("got text %q audio %q, want text with empty audio", text, audio)
	}
}

func TestGenerate_CompletionError(t *testing.T) {
	llmP := &llmmock.Provider{CompleteErr: errors.New("backend down")}
	s := New(llmP, &sttmock.Provider{})

	if _, _, err := s.Generate(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error")
	}
}

func TestTranscribe(t *testing.T) {
	sttP := &sttmock.Provider{Text: "the cat sat"}
	s := New(&llmmock.Provider{}, sttP)

	got, err := s.Transcribe(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "the cat sat" {
		t.Errorf("transcription: got %q", got)
	}

	if len(sttP.TranscribeCalls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(sttP.TranscribeCalls))
	}
	// Unrecognised payloads fall back to the MediaRecorder default.
	rec := sttP.TranscribeCalls[0].Rec
	if rec.MIMEType != "audio/webm" || rec.Language != "en" {
		t.Errorf("recording metadata: %+v", rec)
	}
}

func TestTranscribe_SniffsContainer(t *testing.T) {
	sttP := &sttmock.Provider{Text: "hello"}
	s := New(&llmmock.Provider{}, sttP)

	if _, err := s.Transcribe(context.Background(), []byte("ID3\x04tag")); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got := sttP.TranscribeCalls[0].Rec.MIMEType; got != "audio/mpeg" {
		t.Errorf("mime: got %q, want audio/mpeg", got)
	}
}

func TestTranscribe_Error(t *testing.T) {
	sttP := &sttmock.Provider{Err: errors.New("backend down")}
	s := New(&llmmock.Provider{}, sttP)

	if _, err := s.Transcribe(context.Background(), []byte("audio")); err == nil {
		t.Fatal("expected error")
	}
}
