package events_test

import (
	"testing"

	"github.com/formvox/formvox/internal/events"
)

func TestPublish_DeliversInOrder(t *testing.T) {
	t.Parallel()
	feed := events.NewFeed(8)
	ch, cancel := feed.Subscribe()
	defer cancel()

	feed.Publish(events.Event{Kind: events.KindSegmentStart})
	feed.Publish(events.Event{Kind: events.KindSegmentEnd})
	feed.Publish(events.Event{Kind: events.KindFieldSaved})

	want := []events.Kind{events.KindSegmentStart, events.KindSegmentEnd, events.KindFieldSaved}
	for i, k := range want {
		evt := <-ch
		if evt.Kind != k {
			t.Errorf("event %d kind = %q, want %q", i, evt.Kind, k)
		}
		if evt.Time.IsZero() {
			t.Errorf("event %d has zero timestamp", i)
		}
	}
}

func TestPublish_FanOutToAllSubscribers(t *testing.T) {
	t.Parallel()
	feed := events.NewFeed(4)
	ch1, cancel1 := feed.Subscribe()
	defer cancel1()
	ch2, cancel2 := feed.Subscribe()
	defer cancel2()

	feed.Publish(events.Event{Kind: events.KindTranscript})

	if evt := <-ch1; evt.Kind != events.KindTranscript {
		t.Errorf("subscriber 1 got %q", evt.Kind)
	}
	if evt := <-ch2; evt.Kind != events.KindTranscript {
		t.Errorf("subscriber 2 got %q", evt.Kind)
	}
}

func TestPublish_LaggingSubscriberDropsOldest(t *testing.T) {
	t.Parallel()
	feed := events.NewFeed(2)
	ch, cancel := feed.Subscribe()
	defer cancel()

	// Three publishes into a buffer of two: the first event must give way.
	feed.Publish(events.Event{Kind: events.KindSegmentStart})
	feed.Publish(events.Event{Kind: events.KindSegmentEnd})
	feed.Publish(events.Event{Kind: events.KindFormComplete})

	first := <-ch
	if first.Kind != events.KindSegmentEnd {
		t.Errorf("oldest surviving event = %q, want %q (segment_start dropped)",
			first.Kind, events.KindSegmentEnd)
	}
	second := <-ch
	if second.Kind != events.KindFormComplete {
		t.Errorf("second surviving event = %q, want %q", second.Kind, events.KindFormComplete)
	}
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	t.Parallel()
	feed := events.NewFeed(4)
	ch, cancel := feed.Subscribe()

	cancel()
	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}

	// Publishing after cancel must not panic.
	feed.Publish(events.Event{Kind: events.KindSessionClosed})
	cancel() // idempotent
}
