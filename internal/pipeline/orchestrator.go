package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/formvox/formvox/internal/events"
	"github.com/formvox/formvox/internal/form"
	"github.com/formvox/formvox/internal/observe"
	"github.com/formvox/formvox/pkg/audio"
	"github.com/formvox/formvox/pkg/provider/s2s"
	"github.com/formvox/formvox/pkg/provider/vad"
)

// Config holds the tuning parameters of a voice session.
type Config struct {
	// Capture and Playback describe the device-side audio streams.
	Capture  audio.StreamConfig
	Playback audio.StreamConfig

	// Gate, Uplink, and VAD configure the corresponding pipeline stages.
	Gate   GateConfig
	Uplink UplinkConfig
	VAD    vad.Config

	// Session carries the conversational setup. Tools are filled in by the
	// orchestrator.
	Session s2s.SessionConfig

	// Queue capacities. Zero values get sensible defaults.
	FrameQueue    int
	UplinkQueue   int
	PlaybackQueue int

	// DrainTimeout is how long the session lingers after the form completes
	// or the input is exhausted, so the assistant's final audio can play out.
	DrainTimeout time.Duration
}

// Deps are the collaborators a session runs against.
type Deps struct {
	Device      audio.Device
	VAD         vad.Classifier
	FallbackVAD vad.Classifier
	Provider    s2s.Provider
	Engine      *form.Engine
	Router      *form.Router
	Feed        *events.Feed
	Metrics     *observe.Metrics
}

// SessionOrchestrator runs one voice form-filling session end to end: it
// connects the provider, opens the audio devices, and supervises the capture,
// gate, uplink, downlink, and playback stages as a unit. The first stage
// failure tears down all the others.
type SessionOrchestrator struct {
	cfg  Config
	deps Deps
}

// NewSessionOrchestrator creates an orchestrator for the given configuration
// and collaborators.
func NewSessionOrchestrator(cfg Config, deps Deps) *SessionOrchestrator {
	if cfg.FrameQueue <= 0 {
		cfg.FrameQueue = 64
	}
	if cfg.UplinkQueue <= 0 {
		cfg.UplinkQueue = 256
	}
	if cfg.PlaybackQueue <= 0 {
		cfg.PlaybackQueue = 64
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 3 * time.Second
	}
	return &SessionOrchestrator{cfg: cfg, deps: deps}
}

// Run executes the session until the form completes, the input is exhausted,
// ctx is cancelled, or a stage fails. The terminal session_closed event
// always carries the close cause.
func (o *SessionOrchestrator) Run(ctx context.Context) error {
	sessionID := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "session.run")
	defer span.End()
	log := observe.Logger(ctx).With("component", "orchestrator", "session_id", sessionID)

	o.deps.Metrics.ActiveSessions.Add(ctx, 1)
	defer o.deps.Metrics.ActiveSessions.Add(ctx, -1)

	status := newStatusTracker(o.deps.Feed)
	defer status.set(StatusClosed)

	// Connect the provider before touching audio hardware.
	sessCfg := o.cfg.Session
	sessCfg.Tools = form.ToolDefinitions()
	session, err := o.deps.Provider.Connect(ctx, sessCfg)
	if err != nil {
		return fmt.Errorf("pipeline: connect provider: %w", err)
	}
	defer session.Close()

	input, err := o.deps.Device.OpenInput(ctx, o.cfg.Capture)
	if err != nil {
		return fmt.Errorf("pipeline: open input: %w", err)
	}
	defer input.Close()

	output, err := o.deps.Device.OpenOutput(ctx, o.cfg.Playback)
	if err != nil {
		return fmt.Errorf("pipeline: open output: %w", err)
	}
	defer output.Close()

	vadSession, err := o.deps.VAD.NewSession(o.cfg.VAD)
	if err != nil {
		return fmt.Errorf("pipeline: vad session: %w", err)
	}
	defer vadSession.Close()

	var fallbackSession vad.SessionHandle
	if o.deps.FallbackVAD != nil {
		if fallbackSession, err = o.deps.FallbackVAD.NewSession(o.cfg.VAD); err != nil {
			return fmt.Errorf("pipeline: fallback vad session: %w", err)
		}
		defer fallbackSession.Close()
	}

	// Form completion is observed through the feed, like any other
	// collaborator would.
	feedCh, cancelSub := o.deps.Feed.Subscribe()
	defer cancelSub()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var playbackActive atomic.Bool
	frames := make(chan audio.AudioFrame, o.cfg.FrameQueue)
	uplinkCh := make(chan UplinkItem, o.cfg.UplinkQueue)

	capture := NewCapture(input, frames, o.deps.Metrics)
	gate := NewVoiceActivityGate(o.cfg.Gate, vadSession, fallbackSession, &playbackActive, uplinkCh, o.deps.Feed, status, o.deps.Metrics)
	uplink := NewUplink(o.cfg.Uplink, session, o.deps.Metrics)
	playback := NewPlayback(o.cfg.Playback, output, &playbackActive, status, o.cfg.PlaybackQueue)
	downlink := NewDownlink(session, o.deps.Router, playback, o.deps.Feed, status, o.deps.Metrics)

	grp, gctx := errgroup.WithContext(runCtx)
	grp.Go(func() error { return capture.Run(gctx) })
	grp.Go(func() error { return gate.Run(gctx, frames) })
	grp.Go(func() error {
		// A clean uplink exit means the input is exhausted; let the last
		// response play out, then shut down.
		if err := uplink.Run(gctx, uplinkCh); err != nil {
			return err
		}
		o.drainThenStop(gctx, stop)
		return nil
	})
	grp.Go(func() error { return playback.Run(gctx) })
	grp.Go(func() error {
		if err := downlink.Run(gctx); err != nil {
			return err
		}
		stop()
		return nil
	})
	grp.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case evt, ok := <-feedCh:
				if !ok {
					return nil
				}
				if evt.Kind == events.KindFormComplete {
					log.Info("form complete; draining session")
					o.drainThenStop(gctx, stop)
					return nil
				}
			}
		}
	})

	err = grp.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	cause := o.closeCause(ctx, err)
	status.set(StatusClosed)
	payload := map[string]any{"session_id": sessionID, "cause": cause}
	if err != nil {
		payload["error"] = err.Error()
	}
	o.deps.Feed.Publish(events.Event{Kind: events.KindSessionClosed, Payload: payload})
	log.Info("session closed", "cause", cause, "error", err)
	return err
}

// drainThenStop waits for the drain timeout, then cancels the run context.
func (o *SessionOrchestrator) drainThenStop(ctx context.Context, stop context.CancelFunc) {
	timer := time.NewTimer(o.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	stop()
}

func (o *SessionOrchestrator) closeCause(ctx context.Context, err error) string {
	switch {
	case o.deps.Engine.Complete():
		return "form_complete"
	case err != nil:
		return "error"
	case ctx.Err() != nil:
		return "cancelled"
	default:
		return "input_exhausted"
	}
}
