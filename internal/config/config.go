// Package config provides the configuration schema, loader, and provider
// registry for the Formvox voice form assistant.
package config

import "log/slog"

// LogLevel controls log verbosity for the Formvox process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the corresponding slog level. Unrecognised values map to
// info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for Formvox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	Gate      GateConfig      `yaml:"gate"`
	Uplink    UplinkConfig    `yaml:"uplink"`
	Session   SessionConfig   `yaml:"session"`
	Events    EventsConfig    `yaml:"events"`
}

// ServerConfig holds network and logging settings for the Formvox process.
type ServerConfig struct {
	// MetricsAddr is the TCP address of the metrics and health endpoint
	// (e.g., ":9090"). Empty disables the HTTP listener.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline concern. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	S2S   ProviderEntry `yaml:"s2s"`
	VAD   ProviderEntry `yaml:"vad"`
	Audio ProviderEntry `yaml:"audio"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "openai-realtime", "energy", "portaudio").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-realtime-preview", "gemini-2.0-flash-live-001").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above (e.g., "input_path" for the wavfile device).
	Options map[string]any `yaml:"options"`
}

// AudioConfig describes the PCM formats of the capture and playback streams.
type AudioConfig struct {
	// SampleRate of the capture stream in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Channels of the capture stream. 1 for mono.
	Channels int `yaml:"channels"`

	// FrameDurationMs is the capture frame length in milliseconds.
	FrameDurationMs int `yaml:"frame_duration_ms"`

	// PlaybackSampleRate of the assistant audio in Hz. Both built-in S2S
	// providers synthesise 24 kHz mono.
	PlaybackSampleRate int `yaml:"playback_sample_rate"`
}

// GateConfig tunes speech segmentation.
type GateConfig struct {
	// StartFrames is the number of consecutive speech frames that open a
	// segment.
	StartFrames int `yaml:"start_frames"`

	// EndFrames is the number of consecutive silence frames that close a
	// segment.
	EndFrames int `yaml:"end_frames"`

	// MinSpeechMs discards segments shorter than this.
	MinSpeechMs int `yaml:"min_speech_ms"`

	// MaxSpeechMs force-commits segments longer than this.
	MaxSpeechMs int `yaml:"max_speech_ms"`

	// SpeechThreshold is the classifier score above which a frame counts as
	// speech.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// AllowBargeIn keeps the microphone open during assistant playback.
	AllowBargeIn bool `yaml:"allow_barge_in"`
}

// UplinkConfig tunes delivery of gated audio to the provider.
type UplinkConfig struct {
	// QueueSize bounds the number of frames buffered between the gate and
	// the provider send loop.
	QueueSize int `yaml:"queue_size"`

	// MaxLatencyBudgetMs drops frames that waited longer than this before
	// being sent. Zero disables staleness drops.
	MaxLatencyBudgetMs int `yaml:"max_latency_budget_ms"`

	// SendRetries is how often a failed provider send is retried.
	SendRetries int `yaml:"send_retries"`

	// RetryBackoffMs is the pause between retries.
	RetryBackoffMs int `yaml:"retry_backoff_ms"`
}

// SessionConfig holds the conversational setup of a session.
type SessionConfig struct {
	// Voice is the provider-specific voice identifier.
	Voice string `yaml:"voice"`

	// Language is a BCP-47 hint for recognition and synthesis.
	Language string `yaml:"language"`

	// Instructions overrides the built-in assistant prompt. Empty keeps the
	// default form-filling prompt.
	Instructions string `yaml:"instructions"`

	// DrainTimeoutMs is how long the session lingers after completion so the
	// closing assistant audio can play out.
	DrainTimeoutMs int `yaml:"drain_timeout_ms"`
}

// EventsConfig tunes the session event feed.
type EventsConfig struct {
	// Buffer is the per-subscriber event buffer size.
	Buffer int `yaml:"buffer"`
}
