// Package events provides the ordered event feed that surfaces session
// progress to external collaborators (the browser UI bridge, loggers,
// tests).
//
// The feed is a fan-out broadcaster: every subscriber receives events in
// publish order through its own bounded buffer. A slow subscriber never
// blocks the pipeline — when its buffer is full the oldest buffered event is
// dropped, which is safe because consumers are idempotent with respect to
// state events.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Kind classifies feed events.
type Kind string

const (
	// KindSegmentStart marks the detected beginning of a speech segment.
	KindSegmentStart Kind = "segment_start"

	// KindSegmentEnd marks the detected end of a speech segment.
	KindSegmentEnd Kind = "segment_end"

	// KindTranscript carries recognised or generated text.
	KindTranscript Kind = "transcript"

	// KindFieldChanged signals that the form advanced to a new current field.
	KindFieldChanged Kind = "field_changed"

	// KindValidationResult carries the outcome of a field validation.
	KindValidationResult Kind = "validation_result"

	// KindFieldSaved signals that a validated answer was recorded.
	KindFieldSaved Kind = "field_saved"

	// KindFormComplete signals that every field has been answered.
	KindFormComplete Kind = "form_complete"

	// KindStatusChanged carries a session status transition.
	KindStatusChanged Kind = "status_changed"

	// KindSessionClosed is the terminal event, carrying the close cause.
	KindSessionClosed Kind = "session_closed"
)

// Event is a single feed entry. Payload holds a kind-specific value; it must
// be treated as read-only by subscribers.
type Event struct {
	Kind    Kind
	Time    time.Time
	Payload any
}

// Feed broadcasts events to all current subscribers. It is safe for
// concurrent use by multiple publishers and subscribers.
type Feed struct {
	buffer int

	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewFeed creates a Feed whose subscribers each get a buffer of the given
// size. Sizes below 1 are raised to 1.
func NewFeed(buffer int) *Feed {
	if buffer < 1 {
		buffer = 1
	}
	return &Feed{
		buffer: buffer,
		subs:   make(map[int]chan Event),
	}
}

// Subscribe registers a new subscriber and returns its event channel plus a
// cancel function. Cancelling closes the channel; events published after
// cancellation are not delivered.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	ch := make(chan Event, f.buffer)
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers evt to every subscriber in publish order. When a
// subscriber's buffer is full, its oldest buffered event is discarded to
// make room, so laggards skip history instead of stalling the pipeline.
// A zero Time is stamped with the current time.
func (f *Feed) Publish(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		for {
			select {
			case ch <- evt:
			default:
				// Buffer full: drop the oldest event and retry.
				select {
				case old := <-ch:
					slog.Warn("event feed subscriber lagging; dropping oldest event",
						"dropped_kind", old.Kind, "published_kind", evt.Kind)
				default:
				}
				continue
			}
			break
		}
	}
}
