package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/formvox/formvox/internal/catalog"
	"github.com/formvox/formvox/internal/events"
	"github.com/formvox/formvox/internal/form"
	"github.com/formvox/formvox/internal/observe"
	"github.com/formvox/formvox/pkg/audio"
	audiomock "github.com/formvox/formvox/pkg/audio/mock"
	"github.com/formvox/formvox/pkg/provider/s2s"
	s2smock "github.com/formvox/formvox/pkg/provider/s2s/mock"
)

type downlinkEnv struct {
	session  *s2smock.Session
	downlink *Downlink
	playback *Playback
	engine   *form.Engine
	feed     *events.Feed
	events   <-chan events.Event
}

func newDownlinkEnv(t *testing.T, fieldCount int) *downlinkEnv {
	t.Helper()
	engine := form.NewEngine(catalog.Fields()[:fieldCount])
	feed := events.NewFeed(256)
	evtCh, cancel := feed.Subscribe()
	t.Cleanup(cancel)

	session := s2smock.NewSession()
	status := newStatusTracker(feed)
	var active atomic.Bool
	playback := NewPlayback(
		audio.StreamConfig{SampleRate: 24000, Channels: 1},
		&audiomock.OutputStream{}, &active, status, 64,
	)
	downlink := NewDownlink(session, form.NewRouter(engine, feed), playback, feed, status, observe.DefaultMetrics())
	return &downlinkEnv{
		session:  session,
		downlink: downlink,
		playback: playback,
		engine:   engine,
		feed:     feed,
		events:   evtCh,
	}
}

func TestDownlink_AnswersToolCallsInOrder(t *testing.T) {
	t.Parallel()
	env := newDownlinkEnv(t, 1)

	go func() {
		env.session.EmitToolCall(s2s.ToolCall{CallID: "c1", Name: form.ToolGetNextFormField, Arguments: "{}"})
		env.session.EmitToolCall(s2s.ToolCall{
			CallID: "c2", Name: form.ToolValidateFormField,
			Arguments: `{"field_id":"family_name_p1","value":"Mueller"}`,
		})
		env.session.EmitToolCall(s2s.ToolCall{
			CallID: "c3", Name: form.ToolSaveFormField,
			Arguments: `{"field_id":"family_name_p1","value":"Mueller"}`,
		})
		env.session.Finish(nil)
	}()

	if err := env.downlink.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	results := env.session.Results()
	if len(results) != 3 {
		t.Fatalf("tool results = %d, want 3", len(results))
	}
	for i, want := range []string{"c1", "c2", "c3"} {
		if results[i].CallID != want {
			t.Errorf("result %d CallID = %q, want %q", i, results[i].CallID, want)
		}
	}
	if !env.engine.Complete() {
		t.Error("form not complete after save")
	}
}

func TestDownlink_AudioGoesToPlaybackQueue(t *testing.T) {
	t.Parallel()
	env := newDownlinkEnv(t, 1)

	go func() {
		env.session.EmitAudio([]byte{0x01, 0x02})
		env.session.EmitAudio([]byte{0x03, 0x04})
		env.session.Finish(nil)
	}()

	if err := env.downlink.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := len(env.playback.queue); n != 2 {
		t.Errorf("playback queue = %d chunks, want 2", n)
	}
}

func TestDownlink_TranscriptsReachTheFeed(t *testing.T) {
	t.Parallel()
	env := newDownlinkEnv(t, 1)

	go func() {
		env.session.EmitTranscript(s2s.TranscriptEntry{Role: "user", Text: "Mueller", Timestamp: time.Now()})
		env.session.Finish(nil)
	}()

	if err := env.downlink.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case evt := <-env.events:
		if evt.Kind != events.KindTranscript {
			t.Fatalf("event kind = %q, want transcript", evt.Kind)
		}
		payload := evt.Payload.(map[string]string)
		if payload["role"] != "user" || payload["text"] != "Mueller" {
			t.Errorf("payload = %v", payload)
		}
	default:
		t.Fatal("no transcript event published")
	}
}

func TestDownlink_InterruptionClearsPlayback(t *testing.T) {
	t.Parallel()
	env := newDownlinkEnv(t, 1)

	ctx := context.Background()
	if err := env.playback.Enqueue(ctx, []byte{0x01}); err != nil {
		t.Fatal(err)
	}
	if err := env.playback.Enqueue(ctx, []byte{0x02}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- env.downlink.Run(ctx) }()

	env.session.EmitInterrupted()

	deadline := time.After(2 * time.Second)
	for len(env.playback.queue) != 0 {
		select {
		case <-deadline:
			t.Fatal("playback queue not cleared after interruption")
		case <-time.After(time.Millisecond):
		}
	}

	env.session.Finish(nil)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestDownlink_SessionErrorSurfacesAsFault(t *testing.T) {
	t.Parallel()
	env := newDownlinkEnv(t, 1)

	env.session.Finish(errors.New("websocket closed unexpectedly"))

	err := env.downlink.Run(context.Background())
	if !errors.Is(err, ErrSessionFaulted) {
		t.Fatalf("err = %v, want ErrSessionFaulted", err)
	}
}

func TestDownlink_MalformedToolArgumentsStayInBand(t *testing.T) {
	t.Parallel()
	env := newDownlinkEnv(t, 1)

	go func() {
		env.session.EmitToolCall(s2s.ToolCall{CallID: "c1", Name: form.ToolSaveFormField, Arguments: "{broken"})
		env.session.Finish(nil)
	}()

	if err := env.downlink.Run(context.Background()); err != nil {
		t.Fatalf("malformed arguments must not end the session: %v", err)
	}
	results := env.session.Results()
	if len(results) != 1 {
		t.Fatalf("tool results = %d, want 1", len(results))
	}
	if results[0].CallID != "c1" {
		t.Errorf("result CallID = %q, want c1", results[0].CallID)
	}
}
