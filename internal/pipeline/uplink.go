package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/formvox/formvox/internal/observe"
	"github.com/formvox/formvox/pkg/audio"
	"github.com/formvox/formvox/pkg/provider/s2s"
)

// ErrSessionFaulted marks a provider session that stopped accepting traffic.
// The orchestrator treats it as fatal for the whole session.
var ErrSessionFaulted = errors.New("pipeline: provider session faulted")

// UplinkItem is one unit queued between the gate and the provider send loop.
// An item either carries a frame or, when EndOfSegment is set, marks the
// point at which the buffered segment must be committed.
type UplinkItem struct {
	Frame        audio.AudioFrame
	EndOfSegment bool

	// Enqueued is when the gate released the item; the uplink uses it for
	// latency accounting and staleness drops.
	Enqueued time.Time
}

// UplinkConfig holds the delivery parameters of the provider send loop.
type UplinkConfig struct {
	// MaxLatencyBudget drops frames that waited longer than this in the
	// queue. Zero disables staleness drops. Segment commits are never
	// dropped.
	MaxLatencyBudget time.Duration

	// SendRetries is how many times a failed provider send is retried before
	// the session is declared faulted.
	SendRetries int

	// RetryBackoff is the pause between retries.
	RetryBackoff time.Duration
}

// Uplink drains gated audio into the provider session. Frames older than the
// latency budget are dropped rather than delivered late; send failures are
// retried a bounded number of times and then escalate to ErrSessionFaulted.
type Uplink struct {
	cfg     UplinkConfig
	session s2s.SessionHandle
	metrics *observe.Metrics
}

// NewUplink creates an Uplink feeding the given provider session.
func NewUplink(cfg UplinkConfig, session s2s.SessionHandle, metrics *observe.Metrics) *Uplink {
	return &Uplink{cfg: cfg, session: session, metrics: metrics}
}

// Run consumes items until the channel closes or ctx is cancelled.
func (u *Uplink) Run(ctx context.Context, in <-chan UplinkItem) error {
	log := observe.Logger(ctx).With("component", "uplink")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-in:
			if !ok {
				return nil
			}

			if item.EndOfSegment {
				if err := u.withRetries(ctx, "commit", func() error {
					return u.session.CommitAudio()
				}); err != nil {
					return err
				}
				continue
			}

			age := time.Since(item.Enqueued)
			if u.cfg.MaxLatencyBudget > 0 && age > u.cfg.MaxLatencyBudget {
				u.metrics.RecordFrameDrop(ctx, "latency_budget")
				log.Warn("dropping stale frame", "age", age, "seq", item.Frame.Seq)
				continue
			}

			if err := u.withRetries(ctx, "send", func() error {
				return u.session.SendAudio(item.Frame.Data)
			}); err != nil {
				return err
			}
			u.metrics.UplinkLatency.Record(ctx, time.Since(item.Enqueued).Seconds())
		}
	}
}

// withRetries runs op up to 1+SendRetries times, backing off between
// attempts. Exhausted retries wrap ErrSessionFaulted.
func (u *Uplink) withRetries(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= u.cfg.SendRetries; attempt++ {
		if attempt > 0 && u.cfg.RetryBackoff > 0 {
			timer := time.NewTimer(u.cfg.RetryBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	u.metrics.RecordProviderError(ctx, "s2s", op)
	return fmt.Errorf("pipeline: uplink %s: %w: %w", op, ErrSessionFaulted, err)
}
