package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/formvox/formvox/internal/config"
	"github.com/formvox/formvox/pkg/provider/s2s"
	s2smock "github.com/formvox/formvox/pkg/provider/s2s/mock"
)

const minimalYAML = `
providers:
  s2s:
    name: openai-realtime
    api_key: test-key
`

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 || cfg.Audio.FrameDurationMs != 20 {
		t.Errorf("audio defaults = %+v", cfg.Audio)
	}
	if cfg.Audio.PlaybackSampleRate != 24000 {
		t.Errorf("playback sample rate = %d, want 24000", cfg.Audio.PlaybackSampleRate)
	}
	if cfg.Gate.StartFrames != 3 || cfg.Gate.EndFrames != 10 {
		t.Errorf("gate frame defaults = %+v", cfg.Gate)
	}
	if cfg.Gate.MinSpeechMs != 300 || cfg.Gate.MaxSpeechMs != 30000 {
		t.Errorf("gate duration defaults = %+v", cfg.Gate)
	}
	if cfg.Gate.SpeechThreshold != 0.02 {
		t.Errorf("speech threshold = %v, want 0.02", cfg.Gate.SpeechThreshold)
	}
	if cfg.Uplink.QueueSize != 256 || cfg.Uplink.MaxLatencyBudgetMs != 500 {
		t.Errorf("uplink defaults = %+v", cfg.Uplink)
	}
	if cfg.Session.Language != "de-DE" {
		t.Errorf("language = %q, want de-DE", cfg.Session.Language)
	}
	if cfg.Events.Buffer != 64 {
		t.Errorf("events buffer = %d, want 64", cfg.Events.Buffer)
	}
}

func TestLoadFromReader_OverridesSurvive(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  s2s:
    name: gemini-live
    api_key: k
gate:
  start_frames: 5
  allow_barge_in: true
session:
  voice: Puck
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Gate.StartFrames != 5 || !cfg.Gate.AllowBargeIn {
		t.Errorf("gate = %+v", cfg.Gate)
	}
	if cfg.Gate.EndFrames != 10 {
		t.Errorf("unset end_frames = %d, want default 10", cfg.Gate.EndFrames)
	}
	if cfg.Session.Voice != "Puck" {
		t.Errorf("voice = %q", cfg.Session.Voice)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("bogus_section: 1\n"))
	if err == nil {
		t.Fatal("unknown top-level field accepted")
	}
}

func TestLoadFromReader_JoinsValidationErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: loud
providers:
  s2s:
    name: openai-realtime
audio:
  channels: 3
gate:
  speech_threshold: 2.5
`))
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"server.log_level", "audio.channels", "gate.speech_threshold"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestLoadFromReader_S2SProviderRequired(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("audio:\n  sample_rate: 16000\n"))
	if err == nil || !strings.Contains(err.Error(), "providers.s2s.name is required") {
		t.Errorf("err = %v, want missing s2s provider error", err)
	}
}

func TestLoadFromReader_WavfileNeedsInputPath(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
providers:
  s2s:
    name: openai-realtime
  audio:
    name: wavfile
`))
	if err == nil || !strings.Contains(err.Error(), "input_path") {
		t.Errorf("err = %v, want input_path error", err)
	}
}

func TestValidate_MinSpeechBeyondMax(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Providers.S2S.Name = "openai-realtime"
	cfg.Gate.MinSpeechMs = 5000
	cfg.Gate.MaxSpeechMs = 1000

	if err := config.Validate(cfg); err == nil || !strings.Contains(err.Error(), "min_speech_ms") {
		t.Errorf("err = %v, want min/max error", err)
	}
}

// ─── Registry ──────────────────────────────────────────────────────────────────

func TestRegistry_UnregisteredProvider(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	_, err := reg.CreateS2S(config.ProviderEntry{Name: "no-such-provider"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryReceivesEntry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var got config.ProviderEntry
	reg.RegisterS2S("openai-realtime", func(entry config.ProviderEntry) (s2s.Provider, error) {
		got = entry
		return &s2smock.Provider{}, nil
	})

	entry := config.ProviderEntry{Name: "openai-realtime", APIKey: "k", Model: "gpt-4o-realtime-preview"}
	p, err := reg.CreateS2S(entry)
	if err != nil {
		t.Fatalf("CreateS2S: %v", err)
	}
	if p == nil {
		t.Fatal("CreateS2S returned nil provider")
	}
	if got.APIKey != "k" || got.Model != "gpt-4o-realtime-preview" {
		t.Errorf("factory received %+v", got)
	}
}
