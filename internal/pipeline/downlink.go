package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/formvox/formvox/internal/events"
	"github.com/formvox/formvox/internal/form"
	"github.com/formvox/formvox/internal/observe"
	"github.com/formvox/formvox/pkg/provider/s2s"
)

// Downlink demultiplexes provider output: assistant audio goes to playback,
// transcripts to the event feed, and tool calls to the form router. Tool
// calls are handled synchronously in arrival order so the form state machine
// never sees reordered operations.
type Downlink struct {
	session  s2s.SessionHandle
	router   *form.Router
	playback *Playback
	feed     *events.Feed
	status   *statusTracker
	metrics  *observe.Metrics
}

// NewDownlink creates a Downlink over the given session.
func NewDownlink(session s2s.SessionHandle, router *form.Router, playback *Playback, feed *events.Feed, status *statusTracker, metrics *observe.Metrics) *Downlink {
	return &Downlink{
		session:  session,
		router:   router,
		playback: playback,
		feed:     feed,
		status:   status,
		metrics:  metrics,
	}
}

// Run pumps provider output until the session's channels close or ctx is
// cancelled. Returns the session's terminal error, if any.
func (d *Downlink) Run(ctx context.Context) error {
	log := observe.Logger(ctx).With("component", "downlink")

	audioCh := d.session.Audio()
	transcriptCh := d.session.Transcripts()
	toolCh := d.session.ToolCalls()
	interruptedCh := d.session.Interrupted()

	for {
		if audioCh == nil && transcriptCh == nil && toolCh == nil {
			if err := d.session.Err(); err != nil {
				d.metrics.RecordProviderError(ctx, "s2s", "receive")
				return fmt.Errorf("pipeline: downlink: %w: %w", ErrSessionFaulted, err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case chunk, ok := <-audioCh:
			if !ok {
				audioCh = nil
				continue
			}
			// Enqueue blocks only while the bounded playback queue is full;
			// the device drains it in real time and an interrupt empties it,
			// so audio backpressure is transient and cannot deadlock the
			// dispatcher.
			if err := d.playback.Enqueue(ctx, chunk); err != nil {
				return err
			}

		case entry, ok := <-transcriptCh:
			if !ok {
				transcriptCh = nil
				continue
			}
			d.feed.Publish(events.Event{
				Kind:    events.KindTranscript,
				Time:    entry.Timestamp,
				Payload: map[string]string{"role": entry.Role, "text": entry.Text},
			})

		case call, ok := <-toolCh:
			if !ok {
				toolCh = nil
				continue
			}
			if err := d.handleToolCall(ctx, call); err != nil {
				return err
			}

		case _, ok := <-interruptedCh:
			if !ok {
				interruptedCh = nil
				continue
			}
			log.Info("assistant interrupted; clearing playback")
			d.playback.Clear()
			d.status.set(StatusIdle)
		}
	}
}

func (d *Downlink) handleToolCall(ctx context.Context, call s2s.ToolCall) error {
	start := time.Now()
	result := d.router.Handle(call)
	d.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())
	d.metrics.RecordToolCall(ctx, call.Name, resultStatus(result))

	if call.Name == form.ToolSaveFormField && resultStatus(result) == "ok" {
		var args struct {
			FieldID string `json:"field_id"`
		}
		if json.Unmarshal([]byte(call.Arguments), &args) == nil {
			d.metrics.RecordFieldSaved(ctx, args.FieldID)
		}
	}

	if err := d.session.SendToolResult(result); err != nil {
		d.metrics.RecordProviderError(ctx, "s2s", "tool_result")
		return fmt.Errorf("pipeline: send tool result: %w: %w", ErrSessionFaulted, err)
	}
	return nil
}

// resultStatus classifies a tool result payload for metrics. Payloads that
// carry error or rejection markers count as errors.
func resultStatus(result s2s.ToolResult) string {
	var payload struct {
		Error   *string `json:"error"`
		OK      *bool   `json:"ok"`
		IsValid *bool   `json:"is_valid"`
	}
	if err := json.Unmarshal([]byte(result.Output), &payload); err != nil {
		return "error"
	}
	switch {
	case payload.Error != nil:
		return "error"
	case payload.OK != nil && !*payload.OK:
		return "error"
	default:
		return "ok"
	}
}
