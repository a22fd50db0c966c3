package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"openai", "whisper"},
	"tts":        {"elevenlabs"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	for _, fb := range cfg.Providers.LLM.Fallbacks {
		validateProviderName("llm", fb.Name)
	}
	for _, fb := range cfg.Providers.STT.Fallbacks {
		validateProviderName("stt", fb.Name)
	}
	for _, fb := range cfg.Providers.TTS.Fallbacks {
		validateProviderName("tts", fb.Name)
	}

	// Lessons cannot run without grading and sentence generation.
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required: profile grading and sentence generation run on the LLM"))
	}
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required: recordings cannot be scored without transcription"))
	}

	// Synthesis availability
	if cfg.Lesson.VoiceID != "" && cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("lesson.voice_id is set but providers.tts is not configured"))
	}
	if cfg.Providers.TTS.Name != "" && cfg.Lesson.VoiceID == "" {
		slog.Warn("providers.tts is configured but lesson.voice_id is empty; sentences will not be synthesized")
	}

	if cfg.Lesson.RepeatThreshold < 0 || cfg.Lesson.RepeatThreshold > 1 {
		errs = append(errs, fmt.Errorf("lesson.repeat_threshold %.2f is out of range [0, 1]", cfg.Lesson.RepeatThreshold))
	}

	// Embeddings ↔ storage dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but storage.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("providers.embeddings requires storage.postgres_dsn for the sentence index"))
	}

	// Storage availability
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; attempts and learner levels will not survive restarts")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
