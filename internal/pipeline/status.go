// Package pipeline wires capture, voice activity gating, model uplink and
// downlink, and playback into one session. The SessionOrchestrator owns all
// task lifetimes; the remaining types are the individual pipeline stages.
package pipeline

import (
	"sync"

	"github.com/formvox/formvox/internal/events"
)

// SessionStatus is the coarse state of a voice session, surfaced to the UI
// collaborator through the event feed.
type SessionStatus int

const (
	// StatusIdle: session is up, waiting for speech.
	StatusIdle SessionStatus = iota

	// StatusListening: a speech segment is in progress.
	StatusListening

	// StatusThinking: the segment was committed, awaiting the model.
	StatusThinking

	// StatusSpeaking: model audio is being played back.
	StatusSpeaking

	// StatusClosed: terminal; the session has shut down.
	StatusClosed
)

// String returns the lowercase name of the status.
func (s SessionStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusListening:
		return "listening"
	case StatusThinking:
		return "thinking"
	case StatusSpeaking:
		return "speaking"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// statusTracker serialises status writes and publishes transitions to the
// feed. The orchestrator owns it; pipeline stages report through it rather
// than writing status themselves. Once Closed, the status never changes
// again.
type statusTracker struct {
	mu   sync.Mutex
	cur  SessionStatus
	feed *events.Feed
}

func newStatusTracker(feed *events.Feed) *statusTracker {
	return &statusTracker{cur: StatusIdle, feed: feed}
}

// set transitions to next, publishing a status_changed event. Transitions
// out of Closed and no-op transitions are ignored.
func (t *statusTracker) set(next SessionStatus) {
	t.mu.Lock()
	if t.cur == StatusClosed || t.cur == next {
		t.mu.Unlock()
		return
	}
	t.cur = next
	t.mu.Unlock()

	t.feed.Publish(events.Event{
		Kind:    events.KindStatusChanged,
		Payload: map[string]string{"status": next.String()},
	})
}

// get returns the current status.
func (t *statusTracker) get() SessionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}
