// Package wavfile implements the audio.Device interface on top of WAV files.
//
// The input side reads a 16-bit PCM WAV recording and delivers it as paced
// frames, so a session can be driven end-to-end without a microphone. The
// output side appends synthesised audio to a WAV file for later inspection.
package wavfile

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/formvox/formvox/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Compile-time assertion that Device satisfies the audio interfaces.
var _ audio.Device = (*Device)(nil)

// Option is a functional option for configuring a Device.
type Option func(*Device)

// WithRealtimePacing controls whether input frames are delivered at their
// natural play rate. Disabled, the whole file is delivered as fast as the
// consumer drains it — useful in tests. Default: enabled.
func WithRealtimePacing(enabled bool) Option {
	return func(d *Device) { d.pace = enabled }
}

// Device reads capture audio from InputPath and writes playback audio to
// OutputPath. Either path may be empty if only one direction is used.
type Device struct {
	inputPath  string
	outputPath string
	pace       bool
}

// New creates a WAV-file-backed Device.
func New(inputPath, outputPath string, opts ...Option) *Device {
	d := &Device{
		inputPath:  inputPath,
		outputPath: outputPath,
		pace:       true,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// OpenInput opens the configured WAV recording and starts delivering frames.
// The file's sample rate must match cfg.SampleRate.
func (d *Device) OpenInput(ctx context.Context, cfg audio.StreamConfig) (audio.InputStream, error) {
	if d.inputPath == "" {
		return nil, fmt.Errorf("wavfile: no input path configured")
	}
	f, err := os.Open(d.inputPath)
	if err != nil {
		return nil, fmt.Errorf("wavfile: open %q: %w", d.inputPath, err)
	}

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wavfile: decode %q: %w", d.inputPath, err)
	}
	f.Close()

	if buf.Format == nil || buf.Format.SampleRate != cfg.SampleRate {
		return nil, fmt.Errorf("wavfile: %q sample rate does not match stream config (want %d)",
			d.inputPath, cfg.SampleRate)
	}
	if buf.Format.NumChannels != cfg.Channels {
		return nil, fmt.Errorf("wavfile: %q channel count does not match stream config (want %d)",
			d.inputPath, cfg.Channels)
	}

	in := &inputStream{
		samples: buf.Data,
		cfg:     cfg,
		pace:    d.pace,
		frames:  make(chan audio.AudioFrame, 8),
		stop:    make(chan struct{}),
	}
	go in.deliverLoop(ctx)
	return in, nil
}

// OpenOutput creates (or truncates) the configured WAV file for recording.
func (d *Device) OpenOutput(ctx context.Context, cfg audio.StreamConfig) (audio.OutputStream, error) {
	if d.outputPath == "" {
		return nil, fmt.Errorf("wavfile: no output path configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("wavfile: open output: %w", err)
	}
	f, err := os.Create(d.outputPath)
	if err != nil {
		return nil, fmt.Errorf("wavfile: create %q: %w", d.outputPath, err)
	}
	enc := wav.NewEncoder(f, cfg.SampleRate, 16, cfg.Channels, 1)
	return &outputStream{f: f, enc: enc, cfg: cfg}, nil
}

// ── Input ──────────────────────────────────────────────────────────────────────

type inputStream struct {
	samples []int
	cfg     audio.StreamConfig
	pace    bool
	frames  chan audio.AudioFrame

	stop      chan struct{}
	closeOnce sync.Once
}

var _ audio.InputStream = (*inputStream)(nil)

// deliverLoop slices the decoded recording into frames and publishes them in
// order. It owns the frames channel and closes it when the recording is
// exhausted.
func (s *inputStream) deliverLoop(ctx context.Context) {
	defer close(s.frames)

	frameSamples := s.cfg.FrameSamples() * s.cfg.Channels
	var ticker *time.Ticker
	if s.pace {
		ticker = time.NewTicker(s.cfg.FrameDuration)
		defer ticker.Stop()
	}

	var seq uint64
	for off := 0; off < len(s.samples); off += frameSamples {
		end := min(off+frameSamples, len(s.samples))

		data := make([]byte, frameSamples*2)
		for i, v := range s.samples[off:end] {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(v)))
		}

		frame := audio.AudioFrame{
			Data:       data,
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
			Seq:        seq,
			Timestamp:  time.Duration(seq) * s.cfg.FrameDuration,
		}
		seq++

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
		select {
		case s.frames <- frame:
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *inputStream) Frames() <-chan audio.AudioFrame { return s.frames }

// Err always returns nil: a recording ends cleanly when exhausted.
func (s *inputStream) Err() error { return nil }

func (s *inputStream) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	return nil
}

// ── Output ─────────────────────────────────────────────────────────────────────

type outputStream struct {
	cfg audio.StreamConfig

	mu     sync.Mutex
	f      *os.File
	enc    *wav.Encoder
	closed bool
}

var _ audio.OutputStream = (*outputStream)(nil)

// Write appends one frame to the recording. Unlike a live device this never
// blocks for the frame's play duration.
func (s *outputStream) Write(frame audio.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("wavfile: output stream closed")
	}

	n := len(frame.Data) / 2
	data := make([]int, n)
	for i := range n {
		data[i] = int(int16(binary.LittleEndian.Uint16(frame.Data[i*2:])))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: s.cfg.Channels, SampleRate: s.cfg.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := s.enc.Write(buf); err != nil {
		return fmt.Errorf("wavfile: write: %w", err)
	}
	return nil
}

func (s *outputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.enc.Close(); err != nil {
		s.f.Close()
		return fmt.Errorf("wavfile: finalize: %w", err)
	}
	return s.f.Close()
}
