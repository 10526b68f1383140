package pipeline

import (
	"context"

	"github.com/formvox/formvox/internal/observe"
	"github.com/formvox/formvox/pkg/audio"
)

// Capture forwards frames from the input device to the gate, counting them
// as it goes. It owns the downstream channel and closes it when the device
// stream ends.
type Capture struct {
	in      audio.InputStream
	out     chan<- audio.AudioFrame
	metrics *observe.Metrics
}

// NewCapture creates a Capture between the given input stream and channel.
func NewCapture(in audio.InputStream, out chan<- audio.AudioFrame, metrics *observe.Metrics) *Capture {
	return &Capture{in: in, out: out, metrics: metrics}
}

// Run pumps frames until the input stream ends or ctx is cancelled. Returns
// the stream's terminal error, if any.
func (c *Capture) Run(ctx context.Context) error {
	defer close(c.out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-c.in.Frames():
			if !ok {
				return c.in.Err()
			}
			c.metrics.FramesCaptured.Add(ctx, 1)
			select {
			case c.out <- frame:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
