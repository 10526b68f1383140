package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/formvox/formvox/internal/events"
	"github.com/formvox/formvox/internal/observe"
	"github.com/formvox/formvox/pkg/audio"
	"github.com/formvox/formvox/pkg/provider/vad"
)

// GateConfig holds the segmentation parameters of the voice activity gate.
type GateConfig struct {
	// StartFrames is the number of consecutive speech frames required to open
	// a segment.
	StartFrames int

	// EndFrames is the number of consecutive non-speech frames required to
	// close an open segment.
	EndFrames int

	// MinSpeechDuration is the minimum segment length. Shorter segments are
	// discarded without ever reaching the provider.
	MinSpeechDuration time.Duration

	// MaxSpeechDuration force-closes a segment that exceeds it.
	MaxSpeechDuration time.Duration

	// AllowBargeIn keeps the microphone open while assistant audio is
	// playing. When false, captured frames are dropped during playback.
	AllowBargeIn bool
}

// VoiceActivityGate turns the raw capture stream into speech segments. It
// applies hysteresis on per-frame classifier decisions, enforces minimum and
// maximum segment durations, and mutes the microphone during playback unless
// barge-in is enabled.
//
// Frames of a young segment are buffered until MinSpeechDuration is reached;
// only then does audio start flowing to the uplink. A segment that ends
// before that point produces no uplink traffic and no events.
type VoiceActivityGate struct {
	cfg      GateConfig
	active   vad.SessionHandle
	fallback vad.SessionHandle
	playback *atomic.Bool
	out      chan<- UplinkItem
	feed     *events.Feed
	status   *statusTracker
	metrics  *observe.Metrics

	segmentID int64
}

// NewVoiceActivityGate creates a gate that classifies frames with primary and
// switches permanently to fallback if primary starts failing. fallback may be
// nil, in which case a classifier failure is session-fatal.
func NewVoiceActivityGate(
	cfg GateConfig,
	primary, fallback vad.SessionHandle,
	playback *atomic.Bool,
	out chan<- UplinkItem,
	feed *events.Feed,
	status *statusTracker,
	metrics *observe.Metrics,
) *VoiceActivityGate {
	return &VoiceActivityGate{
		cfg:      cfg,
		active:   primary,
		fallback: fallback,
		playback: playback,
		out:      out,
		feed:     feed,
		status:   status,
		metrics:  metrics,
	}
}

// gateState is the per-segment bookkeeping of the Run loop.
type gateState struct {
	inSegment  bool
	flushed    bool
	speechRun  int
	silenceRun int
	segDur     time.Duration
	pending    []audio.AudioFrame
}

// Run consumes frames until the channel closes or ctx is cancelled. The gate
// owns the downstream channel and closes it on return.
func (g *VoiceActivityGate) Run(ctx context.Context, frames <-chan audio.AudioFrame) error {
	defer close(g.out)
	log := observe.Logger(ctx).With("component", "vad_gate")

	var st gateState
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				// Input ended mid-segment: close the segment cleanly.
				if st.inSegment && st.flushed {
					if err := g.endSegment(ctx, &st); err != nil {
						return err
					}
				}
				return nil
			}
			if err := g.processFrame(ctx, log, &st, frame); err != nil {
				return err
			}
		}
	}
}

func (g *VoiceActivityGate) processFrame(ctx context.Context, log *slog.Logger, st *gateState, frame audio.AudioFrame) error {
	// Playback mute. Muted frames count as silence so an open segment still
	// closes through the normal hysteresis path.
	if !g.cfg.AllowBargeIn && g.playback.Load() {
		g.metrics.RecordFrameDrop(ctx, "playback_active")
		if st.inSegment {
			st.silenceRun++
			st.speechRun = 0
			if st.silenceRun >= g.cfg.EndFrames {
				return g.closeSegment(ctx, st)
			}
		} else {
			st.speechRun = 0
			st.pending = st.pending[:0]
		}
		return nil
	}

	decision, err := g.active.ProcessFrame(frame.Data)
	if err != nil {
		if g.fallback == nil || g.active == g.fallback {
			return fmt.Errorf("pipeline: vad classify: %w", err)
		}
		log.Warn("classifier failed; switching to fallback", "error", err)
		g.active = g.fallback
		if decision, err = g.active.ProcessFrame(frame.Data); err != nil {
			return fmt.Errorf("pipeline: vad fallback classify: %w", err)
		}
	}

	if !st.inSegment {
		return g.awaitSpeech(ctx, st, frame, decision)
	}
	return g.trackSegment(ctx, st, frame, decision)
}

// awaitSpeech accumulates the current speech run and opens a segment once it
// reaches StartFrames. The run's frames are carried into the segment so the
// onset is not lost.
func (g *VoiceActivityGate) awaitSpeech(ctx context.Context, st *gateState, frame audio.AudioFrame, d vad.Decision) error {
	if !d.Speech {
		st.speechRun = 0
		st.pending = st.pending[:0]
		return nil
	}
	st.speechRun++
	st.pending = append(st.pending, frame)
	if st.speechRun < g.cfg.StartFrames {
		return nil
	}

	st.inSegment = true
	st.flushed = false
	st.silenceRun = 0
	st.segDur = 0
	for _, f := range st.pending {
		st.segDur += f.Duration()
	}
	g.segmentID++
	g.status.set(StatusListening)
	g.feed.Publish(events.Event{
		Kind:    events.KindSegmentStart,
		Payload: map[string]any{"segment_id": g.segmentID},
	})
	return g.maybeFlush(ctx, st)
}

// trackSegment handles one frame of an open segment.
func (g *VoiceActivityGate) trackSegment(ctx context.Context, st *gateState, frame audio.AudioFrame, d vad.Decision) error {
	st.segDur += frame.Duration()
	if d.Speech {
		st.speechRun++
		st.silenceRun = 0
	} else {
		st.silenceRun++
		st.speechRun = 0
	}

	if st.flushed {
		if err := g.send(ctx, UplinkItem{Frame: frame, Enqueued: time.Now()}); err != nil {
			return err
		}
	} else {
		st.pending = append(st.pending, frame)
		if err := g.maybeFlush(ctx, st); err != nil {
			return err
		}
	}

	if st.silenceRun >= g.cfg.EndFrames {
		return g.closeSegment(ctx, st)
	}
	if g.cfg.MaxSpeechDuration > 0 && st.segDur >= g.cfg.MaxSpeechDuration {
		// Force the flush so the overlong segment is committed, not lost.
		if !st.flushed {
			if err := g.flush(ctx, st); err != nil {
				return err
			}
		}
		return g.closeSegment(ctx, st)
	}
	return nil
}

// maybeFlush releases the buffered onset downstream once the segment has
// proven long enough.
func (g *VoiceActivityGate) maybeFlush(ctx context.Context, st *gateState) error {
	if st.flushed || st.segDur < g.cfg.MinSpeechDuration {
		return nil
	}
	return g.flush(ctx, st)
}

func (g *VoiceActivityGate) flush(ctx context.Context, st *gateState) error {
	now := time.Now()
	for _, f := range st.pending {
		if err := g.send(ctx, UplinkItem{Frame: f, Enqueued: now}); err != nil {
			return err
		}
	}
	st.pending = st.pending[:0]
	st.flushed = true
	return nil
}

// closeSegment ends the open segment. Segments that never flushed are
// discarded silently; flushed segments get an end-of-segment marker and a
// feed event.
func (g *VoiceActivityGate) closeSegment(ctx context.Context, st *gateState) error {
	if !st.flushed {
		g.metrics.RecordFrameDrop(ctx, "short_segment")
		g.reset(st)
		g.status.set(StatusIdle)
		return nil
	}
	return g.endSegment(ctx, st)
}

func (g *VoiceActivityGate) endSegment(ctx context.Context, st *gateState) error {
	if err := g.send(ctx, UplinkItem{EndOfSegment: true, Enqueued: time.Now()}); err != nil {
		return err
	}
	g.metrics.SegmentsDetected.Add(ctx, 1)
	g.metrics.SegmentDuration.Record(ctx, st.segDur.Seconds())
	g.feed.Publish(events.Event{
		Kind: events.KindSegmentEnd,
		Payload: map[string]any{
			"segment_id":  g.segmentID,
			"duration_ms": st.segDur.Milliseconds(),
		},
	})
	g.status.set(StatusThinking)
	g.reset(st)
	return nil
}

func (g *VoiceActivityGate) reset(st *gateState) {
	*st = gateState{pending: st.pending[:0]}
	g.active.Reset()
}

func (g *VoiceActivityGate) send(ctx context.Context, item UplinkItem) error {
	select {
	case g.out <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
