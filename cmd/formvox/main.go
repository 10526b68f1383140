// Command formvox is the main entry point for the Formvox voice form
// assistant. It wires the configured audio, VAD, and speech-to-speech
// providers into a session pipeline and runs it until the form is complete.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/formvox/formvox/internal/catalog"
	"github.com/formvox/formvox/internal/config"
	"github.com/formvox/formvox/internal/events"
	"github.com/formvox/formvox/internal/form"
	"github.com/formvox/formvox/internal/health"
	"github.com/formvox/formvox/internal/observe"
	"github.com/formvox/formvox/internal/pipeline"
	"github.com/formvox/formvox/pkg/audio"
	paudio "github.com/formvox/formvox/pkg/audio/portaudio"
	"github.com/formvox/formvox/pkg/audio/wavfile"
	"github.com/formvox/formvox/pkg/provider/s2s"
	geminilive "github.com/formvox/formvox/pkg/provider/s2s/gemini"
	oais2s "github.com/formvox/formvox/pkg/provider/s2s/openai"
	"github.com/formvox/formvox/pkg/provider/vad"
	"github.com/formvox/formvox/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	answersPath := flag.String("answers", "answers.json", "path the completed form answers are written to; empty disables the file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "formvox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "formvox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("formvox starting",
		"config", *configPath,
		"metrics_addr", cfg.Server.MetricsAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Form state ────────────────────────────────────────────────────────────
	fields := catalog.Fields()
	engine := form.NewEngine(fields)
	feed := events.NewFeed(cfg.Events.Buffer)
	router := form.NewRouter(engine, feed)

	// ── Metrics and health endpoint ───────────────────────────────────────────
	var lastRunErr atomic.Pointer[error]
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		health.New(
			health.FromFunc("providers", func(context.Context) error { return nil }),
			health.FromFunc("session", func(context.Context) error {
				if errp := lastRunErr.Load(); errp != nil {
					return *errp
				}
				return nil
			}),
		).Register(mux)

		srv := &http.Server{
			Addr:    cfg.Server.MetricsAddr,
			Handler: observe.Middleware(metrics)(mux),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("metrics server shutdown error", "err", err)
			}
		}()
		slog.Info("metrics and health endpoint listening", "addr", cfg.Server.MetricsAddr)
	}

	// ── Event log ─────────────────────────────────────────────────────────────
	feedCh, cancelSub := feed.Subscribe()
	defer cancelSub()
	go logEvents(feedCh)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, len(fields))

	// ── Session pipeline ──────────────────────────────────────────────────────
	instructions := cfg.Session.Instructions
	if instructions == "" {
		instructions = form.DefaultInstructions
	}
	frameDuration := time.Duration(cfg.Audio.FrameDurationMs) * time.Millisecond

	orch := pipeline.NewSessionOrchestrator(pipeline.Config{
		Capture: audio.StreamConfig{
			SampleRate:    cfg.Audio.SampleRate,
			Channels:      cfg.Audio.Channels,
			FrameDuration: frameDuration,
		},
		Playback: audio.StreamConfig{
			SampleRate:    cfg.Audio.PlaybackSampleRate,
			Channels:      1,
			FrameDuration: frameDuration,
		},
		Gate: pipeline.GateConfig{
			StartFrames:       cfg.Gate.StartFrames,
			EndFrames:         cfg.Gate.EndFrames,
			MinSpeechDuration: time.Duration(cfg.Gate.MinSpeechMs) * time.Millisecond,
			MaxSpeechDuration: time.Duration(cfg.Gate.MaxSpeechMs) * time.Millisecond,
			AllowBargeIn:      cfg.Gate.AllowBargeIn,
		},
		Uplink: pipeline.UplinkConfig{
			MaxLatencyBudget: time.Duration(cfg.Uplink.MaxLatencyBudgetMs) * time.Millisecond,
			SendRetries:      cfg.Uplink.SendRetries,
			RetryBackoff:     time.Duration(cfg.Uplink.RetryBackoffMs) * time.Millisecond,
		},
		VAD: vad.Config{
			SampleRate:      cfg.Audio.SampleRate,
			FrameSizeMs:     cfg.Audio.FrameDurationMs,
			SpeechThreshold: cfg.Gate.SpeechThreshold,
		},
		Session: s2s.SessionConfig{
			Instructions: instructions,
			Voice:        cfg.Session.Voice,
			Language:     cfg.Session.Language,
		},
		UplinkQueue:  cfg.Uplink.QueueSize,
		DrainTimeout: time.Duration(cfg.Session.DrainTimeoutMs) * time.Millisecond,
	}, pipeline.Deps{
		Device:      providers.Audio,
		VAD:         providers.VAD,
		FallbackVAD: providers.FallbackVAD,
		Provider:    providers.S2S,
		Engine:      engine,
		Router:      router,
		Feed:        feed,
		Metrics:     metrics,
	})

	slog.Info("session starting — press Ctrl+C to stop")

	if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		lastRunErr.Store(&err)
		slog.Error("session error", "err", err)
		return 1
	}

	// ── Completed answers ─────────────────────────────────────────────────────
	if engine.Complete() {
		slog.Info("form complete", "fields", engine.Progress(), "total", len(fields))
		if *answersPath != "" {
			if err := writeAnswers(*answersPath, engine.Answers()); err != nil {
				slog.Error("failed to write answers", "path", *answersPath, "err", err)
				return 1
			}
			slog.Info("answers written", "path", *answersPath)
		}
	} else {
		slog.Info("session ended before completion", "fields", engine.Progress(), "total", len(fields))
	}

	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// Providers holds the instantiated provider implementations the pipeline runs
// against.
type Providers struct {
	S2S         s2s.Provider
	VAD         vad.Classifier
	FallbackVAD vad.Classifier
	Audio       audio.Device
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── S2S ───────────────────────────────────────────────────────────────────

	reg.RegisterS2S("openai-realtime", func(entry config.ProviderEntry) (s2s.Provider, error) {
		var opts []oais2s.Option
		if entry.Model != "" {
			opts = append(opts, oais2s.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oais2s.WithBaseURL(entry.BaseURL))
		}
		return oais2s.New(apiKey(entry, "OPENAI_API_KEY"), opts...), nil
	})

	reg.RegisterS2S("gemini-live", func(entry config.ProviderEntry) (s2s.Provider, error) {
		var opts []geminilive.Option
		if entry.Model != "" {
			opts = append(opts, geminilive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
		}
		return geminilive.New(apiKey(entry, "GEMINI_API_KEY"), opts...), nil
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Classifier, error) {
		return energy.New(), nil
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(config.ProviderEntry) (audio.Device, error) {
		return paudio.New(), nil
	})

	reg.RegisterAudio("wavfile", func(entry config.ProviderEntry) (audio.Device, error) {
		inputPath := optString(entry.Options, "input_path")
		outputPath := optString(entry.Options, "output_path")
		var opts []wavfile.Option
		if pacing, ok := optBool(entry.Options, "realtime_pacing"); ok {
			opts = append(opts, wavfile.WithRealtimePacing(pacing))
		}
		return wavfile.New(inputPath, outputPath, opts...), nil
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg using the registry.
// The VAD and audio providers default to the local implementations when left
// unconfigured; the S2S provider has no local stand-in and is required.
func buildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}

	p, err := reg.CreateS2S(cfg.Providers.S2S)
	if err != nil {
		return nil, fmt.Errorf("create s2s provider %q: %w", cfg.Providers.S2S.Name, err)
	}
	ps.S2S = p
	slog.Info("provider created", "kind", "s2s", "name", cfg.Providers.S2S.Name)

	if name := cfg.Providers.VAD.Name; name != "" {
		c, err := reg.CreateVAD(cfg.Providers.VAD)
		if err != nil {
			return nil, fmt.Errorf("create vad provider %q: %w", name, err)
		}
		ps.VAD = c
		slog.Info("provider created", "kind", "vad", "name", name)
		// The energy classifier never fails at runtime, so it only needs a
		// fallback when some other classifier is primary.
		if name != "energy" {
			ps.FallbackVAD = energy.New()
		}
	} else {
		ps.VAD = energy.New()
		slog.Info("provider defaulted", "kind", "vad", "name", "energy")
	}

	if name := cfg.Providers.Audio.Name; name != "" {
		d, err := reg.CreateAudio(cfg.Providers.Audio)
		if err != nil {
			return nil, fmt.Errorf("create audio provider %q: %w", name, err)
		}
		ps.Audio = d
		slog.Info("provider created", "kind", "audio", "name", name)
	} else {
		ps.Audio = paudio.New()
		slog.Info("provider defaulted", "kind", "audio", "name", "portaudio")
	}

	return ps, nil
}

// ── Event log ─────────────────────────────────────────────────────────────────

// logEvents mirrors the session feed onto the log so a terminal user can
// follow the conversation and the form progress.
func logEvents(ch <-chan events.Event) {
	for evt := range ch {
		switch evt.Kind {
		case events.KindTranscript:
			slog.Info("transcript",
				"role", payloadValue(evt.Payload, "role"),
				"text", payloadValue(evt.Payload, "text"),
			)
		case events.KindFieldSaved:
			slog.Info("field saved", "field_id", payloadValue(evt.Payload, "field_id"))
		case events.KindValidationResult:
			slog.Debug("validation",
				"field_id", payloadValue(evt.Payload, "field_id"),
				"is_valid", payloadValue(evt.Payload, "is_valid"),
			)
		case events.KindSegmentStart, events.KindSegmentEnd, events.KindStatusChanged:
			slog.Debug(string(evt.Kind), "payload", evt.Payload)
		case events.KindFormComplete:
			slog.Info("all form fields saved")
		}
	}
}

// payloadValue looks up key in an event payload, which may be either a
// map[string]any or a map[string]string depending on the publisher.
func payloadValue(payload any, key string) any {
	switch m := payload.(type) {
	case map[string]any:
		return m[key]
	case map[string]string:
		return m[key]
	}
	return nil
}

// ── Completed answers ─────────────────────────────────────────────────────────

// writeAnswers stores the collected answers as JSON keyed by the official PDF
// field names, ready for a form-filling step.
func writeAnswers(path string, answers map[string]string) error {
	data, err := json.MarshalIndent(catalog.ToPDFFormat(answers), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, fieldCount int) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Formvox — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("S2S", cfg.Providers.S2S.Name, cfg.Providers.S2S.Model)
	printProvider("VAD", orDefault(cfg.Providers.VAD.Name, "energy"), "")
	printProvider("Audio", orDefault(cfg.Providers.Audio.Name, "portaudio"), "")
	fmt.Printf("║  Form fields     : %-19d ║\n", fieldCount)
	fmt.Printf("║  Language        : %-19s ║\n", cfg.Session.Language)
	if cfg.Server.MetricsAddr != "" {
		fmt.Printf("║  Metrics addr    : %-19s ║\n", cfg.Server.MetricsAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.Slog()}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// apiKey returns the configured API key, falling back to the named
// environment variable when the config leaves it empty.
func apiKey(entry config.ProviderEntry, envVar string) string {
	if entry.APIKey != "" {
		return entry.APIKey
	}
	return os.Getenv(envVar)
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optBool extracts a bool value from a provider Options map. The second
// return reports whether the key was present with a bool value.
func optBool(opts map[string]any, key string) (bool, bool) {
	if opts == nil {
		return false, false
	}
	v, ok := opts[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
