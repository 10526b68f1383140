// Package portaudio implements the audio.Device interface on top of the
// system's default capture and playback devices via PortAudio.
//
// Each opened stream owns its own PortAudio stream handle; the library is
// initialised once per Device and terminated when the Device is closed.
package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/formvox/formvox/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

// Compile-time assertion that Device satisfies the audio interfaces.
var _ audio.Device = (*Device)(nil)

// Device opens streams on the system default input and output devices.
type Device struct {
	initOnce sync.Once
	initErr  error
}

// New creates a PortAudio-backed Device. The PortAudio library is initialised
// lazily on the first OpenInput/OpenOutput call.
func New() *Device {
	return &Device{}
}

func (d *Device) init() error {
	d.initOnce.Do(func() {
		d.initErr = portaudio.Initialize()
	})
	if d.initErr != nil {
		return fmt.Errorf("portaudio: initialize: %w", d.initErr)
	}
	return nil
}

// Close terminates the PortAudio library. Streams must be closed first.
func (d *Device) Close() error {
	if d.initErr != nil {
		return nil
	}
	return portaudio.Terminate()
}

// OpenInput starts capturing from the default input device.
func (d *Device) OpenInput(ctx context.Context, cfg audio.StreamConfig) (audio.InputStream, error) {
	if err := d.init(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("portaudio: open input: %w", err)
	}

	samples := cfg.FrameSamples() * cfg.Channels
	buf := make([]int16, samples)
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.FrameSamples(), buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("portaudio: start input stream: %w", err)
	}

	in := &inputStream{
		stream: stream,
		buf:    buf,
		cfg:    cfg,
		frames: make(chan audio.AudioFrame, 8),
		stop:   make(chan struct{}),
	}
	go in.captureLoop()
	return in, nil
}

// OpenOutput starts a playback stream on the default output device.
func (d *Device) OpenOutput(ctx context.Context, cfg audio.StreamConfig) (audio.OutputStream, error) {
	if err := d.init(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("portaudio: open output: %w", err)
	}

	out := &outputStream{cfg: cfg}
	stream, err := portaudio.OpenDefaultStream(0, cfg.Channels, float64(cfg.SampleRate), 0, &out.buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("portaudio: start output stream: %w", err)
	}
	out.stream = stream
	return out, nil
}

// ── Input ──────────────────────────────────────────────────────────────────────

type inputStream struct {
	stream *portaudio.Stream
	buf    []int16
	cfg    audio.StreamConfig
	frames chan audio.AudioFrame

	mu     sync.Mutex
	errVal error
	closed bool

	stop      chan struct{}
	closeOnce sync.Once
}

var _ audio.InputStream = (*inputStream)(nil)

// captureLoop reads fixed-size buffers from the device and publishes them as
// frames. It owns the frames channel and closes it on exit.
func (s *inputStream) captureLoop() {
	defer close(s.frames)

	var seq uint64
	start := time.Now()
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			s.setErr(fmt.Errorf("portaudio: read: %w", err))
			return
		}

		data := make([]byte, len(s.buf)*2)
		for i, v := range s.buf {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
		}

		frame := audio.AudioFrame{
			Data:       data,
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
			Seq:        seq,
			Timestamp:  time.Since(start),
		}
		seq++

		select {
		case s.frames <- frame:
		case <-s.stop:
			return
		}
	}
}

func (s *inputStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil && !s.closed {
		s.errVal = err
	}
}

func (s *inputStream) Frames() <-chan audio.AudioFrame { return s.frames }

func (s *inputStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

func (s *inputStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stop)
		s.stream.Stop()
		s.stream.Close()
	})
	return nil
}

// ── Output ─────────────────────────────────────────────────────────────────────

type outputStream struct {
	stream *portaudio.Stream
	cfg    audio.StreamConfig

	mu     sync.Mutex
	buf    []int16
	closed bool
}

var _ audio.OutputStream = (*outputStream)(nil)

// Write renders one frame. The call blocks until PortAudio has consumed the
// samples, pacing the caller to real time.
func (s *outputStream) Write(frame audio.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("portaudio: output stream closed")
	}

	n := len(frame.Data) / 2
	if cap(s.buf) < n {
		s.buf = make([]int16, n)
	}
	s.buf = s.buf[:n]
	for i := range n {
		s.buf[i] = int16(binary.LittleEndian.Uint16(frame.Data[i*2:]))
	}

	if err := s.stream.Write(); err != nil {
		return fmt.Errorf("portaudio: write: %w", err)
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
	s.stream.Stop()
	return s.stream.Close()
}
