package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/formvox/formvox/internal/observe"
	s2smock "github.com/formvox/formvox/pkg/provider/s2s/mock"
)

// runUplink feeds the items through an uplink against the given session.
func runUplink(t *testing.T, cfg UplinkConfig, sess *s2smock.Session, items []UplinkItem) error {
	t.Helper()
	in := make(chan UplinkItem, len(items))
	for _, item := range items {
		in <- item
	}
	close(in)
	return NewUplink(cfg, sess, observe.DefaultMetrics()).Run(context.Background(), in)
}

func uplinkItems(n int) []UplinkItem {
	out := make([]UplinkItem, n)
	for i := range out {
		f := pcmFrame(uint64(i + 1))
		f.Data[0] = byte(i + 1)
		out[i] = UplinkItem{Frame: f, Enqueued: time.Now()}
	}
	return out
}

func TestUplink_SendsFramesThenCommits(t *testing.T) {
	t.Parallel()
	sess := s2smock.NewSession()

	items := append(uplinkItems(3), UplinkItem{EndOfSegment: true, Enqueued: time.Now()})
	if err := runUplink(t, UplinkConfig{}, sess, items); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sess.SendAudioCalls) != 3 {
		t.Fatalf("sent chunks = %d, want 3", len(sess.SendAudioCalls))
	}
	for i, chunk := range sess.SendAudioCalls {
		if !bytes.Equal(chunk, items[i].Frame.Data) {
			t.Errorf("chunk %d does not match its frame", i)
		}
	}
	if sess.CommitAudioCallCount != 1 {
		t.Errorf("commits = %d, want 1", sess.CommitAudioCallCount)
	}
}

func TestUplink_DropsStaleFrames(t *testing.T) {
	t.Parallel()
	sess := s2smock.NewSession()

	stale := UplinkItem{Frame: pcmFrame(1), Enqueued: time.Now().Add(-time.Second)}
	fresh := UplinkItem{Frame: pcmFrame(2), Enqueued: time.Now()}
	cfg := UplinkConfig{MaxLatencyBudget: 100 * time.Millisecond}

	if err := runUplink(t, cfg, sess, []UplinkItem{stale, fresh}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sess.SendAudioCalls) != 1 {
		t.Errorf("sent chunks = %d, want 1 (stale frame dropped)", len(sess.SendAudioCalls))
	}
}

func TestUplink_CommitIsNeverDropped(t *testing.T) {
	t.Parallel()
	sess := s2smock.NewSession()

	old := UplinkItem{EndOfSegment: true, Enqueued: time.Now().Add(-time.Minute)}
	cfg := UplinkConfig{MaxLatencyBudget: time.Millisecond}

	if err := runUplink(t, cfg, sess, []UplinkItem{old}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sess.CommitAudioCallCount != 1 {
		t.Errorf("commits = %d, want 1 even past the latency budget", sess.CommitAudioCallCount)
	}
}

func TestUplink_RetriesThenFaults(t *testing.T) {
	t.Parallel()
	sess := s2smock.NewSession()
	sess.SendAudioErr = errors.New("websocket: broken pipe")

	cfg := UplinkConfig{SendRetries: 2, RetryBackoff: time.Millisecond}
	err := runUplink(t, cfg, sess, uplinkItems(1))
	if !errors.Is(err, ErrSessionFaulted) {
		t.Fatalf("err = %v, want ErrSessionFaulted", err)
	}
	if len(sess.SendAudioCalls) != 3 {
		t.Errorf("attempts = %d, want 3 (1 try + 2 retries)", len(sess.SendAudioCalls))
	}
}

func TestUplink_FaultRecordsProviderError(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	sess := s2smock.NewSession()
	sess.SendAudioErr = errors.New("websocket: broken pipe")

	in := make(chan UplinkItem, 1)
	in <- uplinkItems(1)[0]
	close(in)
	if err := NewUplink(UplinkConfig{}, sess, metrics).Run(context.Background(), in); !errors.Is(err, ErrSessionFaulted) {
		t.Fatalf("Run = %v, want ErrSessionFaulted", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "formvox.provider.errors" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("provider.errors has unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	if total != 1 {
		t.Errorf("provider error count = %d, want 1", total)
	}
}

func TestUplink_CommitFailureFaults(t *testing.T) {
	t.Parallel()
	sess := s2smock.NewSession()
	sess.CommitAudioErr = errors.New("response in progress")

	err := runUplink(t, UplinkConfig{}, sess, []UplinkItem{{EndOfSegment: true, Enqueued: time.Now()}})
	if !errors.Is(err, ErrSessionFaulted) {
		t.Fatalf("err = %v, want ErrSessionFaulted", err)
	}
}
