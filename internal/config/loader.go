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
	"s2s":   {"openai-realtime", "gemini-live"},
	"vad":   {"energy"},
	"audio": {"portaudio", "wavfile"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued tunables with their defaults. Provider
// selections are left alone; an unconfigured provider is a validation
// concern, not a defaulting one.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.FrameDurationMs == 0 {
		cfg.Audio.FrameDurationMs = 20
	}
	if cfg.Audio.PlaybackSampleRate == 0 {
		cfg.Audio.PlaybackSampleRate = 24000
	}
	if cfg.Gate.StartFrames == 0 {
		cfg.Gate.StartFrames = 3
	}
	if cfg.Gate.EndFrames == 0 {
		cfg.Gate.EndFrames = 10
	}
	if cfg.Gate.MinSpeechMs == 0 {
		cfg.Gate.MinSpeechMs = 300
	}
	if cfg.Gate.MaxSpeechMs == 0 {
		cfg.Gate.MaxSpeechMs = 30000
	}
	if cfg.Gate.SpeechThreshold == 0 {
		cfg.Gate.SpeechThreshold = 0.02
	}
	if cfg.Uplink.QueueSize == 0 {
		cfg.Uplink.QueueSize = 256
	}
	if cfg.Uplink.MaxLatencyBudgetMs == 0 {
		cfg.Uplink.MaxLatencyBudgetMs = 500
	}
	if cfg.Uplink.RetryBackoffMs == 0 {
		cfg.Uplink.RetryBackoffMs = 50
	}
	if cfg.Session.Language == "" {
		cfg.Session.Language = "de-DE"
	}
	if cfg.Session.DrainTimeoutMs == 0 {
		cfg.Session.DrainTimeoutMs = 3000
	}
	if cfg.Events.Buffer == 0 {
		cfg.Events.Buffer = 64
	}
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
	validateProviderName("s2s", cfg.Providers.S2S.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)

	if cfg.Providers.S2S.Name == "" {
		errs = append(errs, errors.New("providers.s2s.name is required"))
	}
	if cfg.Providers.S2S.APIKey == "" {
		slog.Warn("providers.s2s.api_key is empty; the provider will fall back to its environment variable")
	}
	if cfg.Providers.Audio.Name == "wavfile" {
		if _, ok := cfg.Providers.Audio.Options["input_path"]; !ok {
			errs = append(errs, errors.New("providers.audio.options.input_path is required for the wavfile device"))
		}
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameDurationMs < 10 || cfg.Audio.FrameDurationMs > 60 {
		errs = append(errs, fmt.Errorf("audio.frame_duration_ms %d is out of range [10, 60]", cfg.Audio.FrameDurationMs))
	}

	// Gate
	if cfg.Gate.StartFrames < 1 {
		errs = append(errs, fmt.Errorf("gate.start_frames %d must be at least 1", cfg.Gate.StartFrames))
	}
	if cfg.Gate.EndFrames < 1 {
		errs = append(errs, fmt.Errorf("gate.end_frames %d must be at least 1", cfg.Gate.EndFrames))
	}
	if cfg.Gate.MinSpeechMs > cfg.Gate.MaxSpeechMs {
		errs = append(errs, fmt.Errorf("gate.min_speech_ms %d exceeds gate.max_speech_ms %d", cfg.Gate.MinSpeechMs, cfg.Gate.MaxSpeechMs))
	}
	if cfg.Gate.SpeechThreshold < 0 || cfg.Gate.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("gate.speech_threshold %.3f is out of range [0, 1]", cfg.Gate.SpeechThreshold))
	}

	// Uplink
	if cfg.Uplink.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("uplink.queue_size %d must be at least 1", cfg.Uplink.QueueSize))
	}
	if cfg.Uplink.SendRetries < 0 {
		errs = append(errs, fmt.Errorf("uplink.send_retries %d must not be negative", cfg.Uplink.SendRetries))
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
