package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/formvox/formvox/internal/observe"
	"github.com/formvox/formvox/pkg/audio"
)

// Playback drains assistant audio into the output device. It owns the shared
// playback flag the gate consults for microphone muting: the flag is set
// while queued audio is being written and cleared once the queue runs dry.
type Playback struct {
	cfg    audio.StreamConfig
	out    audio.OutputStream
	active *atomic.Bool
	status *statusTracker
	queue  chan []byte
	seq    uint64
}

// NewPlayback creates a Playback writing to out. queueSize bounds the number
// of chunks buffered ahead of the device.
func NewPlayback(cfg audio.StreamConfig, out audio.OutputStream, active *atomic.Bool, status *statusTracker, queueSize int) *Playback {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Playback{
		cfg:    cfg,
		out:    out,
		active: active,
		status: status,
		queue:  make(chan []byte, queueSize),
	}
}

// Enqueue queues one chunk of assistant audio for playback. Blocks while the
// queue is full.
func (p *Playback) Enqueue(ctx context.Context, chunk []byte) error {
	select {
	case p.queue <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear discards all queued audio and lowers the playback flag. Used on
// interruption so a cancelled response stops playing immediately and the
// microphone reopens without waiting for the queue to drain.
func (p *Playback) Clear() {
	for {
		select {
		case <-p.queue:
		default:
			p.active.Store(false)
			return
		}
	}
}

// Run writes queued chunks to the device until ctx is cancelled. The active
// flag is raised before the first write of a burst and lowered when the queue
// empties.
func (p *Playback) Run(ctx context.Context) error {
	log := observe.Logger(ctx).With("component", "playback")

	for {
		select {
		case <-ctx.Done():
			p.active.Store(false)
			return ctx.Err()
		case chunk := <-p.queue:
			if !p.active.Load() {
				p.active.Store(true)
				p.status.set(StatusSpeaking)
				log.Debug("playback started")
			}
			p.seq++
			frame := audio.AudioFrame{
				Data:       chunk,
				SampleRate: p.cfg.SampleRate,
				Channels:   p.cfg.Channels,
				Seq:        p.seq,
			}
			if err := p.out.Write(frame); err != nil {
				p.active.Store(false)
				return fmt.Errorf("pipeline: playback write: %w", err)
			}
			if len(p.queue) == 0 {
				p.active.Store(false)
				p.status.set(StatusIdle)
			}
		}
	}
}
