// Package mock provides test doubles for the audio package interfaces.
//
// Use Device to verify that streams are opened with the expected
// StreamConfig. Use InputStream to script captured frames and OutputStream to
// inspect the frames a pipeline rendered.
//
// Example:
//
//	in := mock.NewInputStream()
//	dev := &mock.Device{Input: in}
//	go func() {
//	    in.Emit(audio.AudioFrame{Data: frame})
//	    in.Finish(nil)
//	}()
package mock

import (
	"context"
	"sync"

	"github.com/formvox/formvox/pkg/audio"
)

// OpenCall records a single invocation of Device.OpenInput or Device.OpenOutput.
type OpenCall struct {
	// Cfg is the StreamConfig passed to the open call.
	Cfg audio.StreamConfig
}

// Device is a mock implementation of audio.Device.
type Device struct {
	mu sync.Mutex

	// Input is the InputStream returned by OpenInput. If nil, OpenInput
	// returns a new default InputStream.
	Input audio.InputStream

	// Output is the OutputStream returned by OpenOutput. If nil, OpenOutput
	// returns a new default OutputStream.
	Output audio.OutputStream

	// OpenInputErr, if non-nil, is returned as the error from OpenInput.
	OpenInputErr error

	// OpenOutputErr, if non-nil, is returned as the error from OpenOutput.
	OpenOutputErr error

	// OpenInputCalls records every call to OpenInput in order.
	OpenInputCalls []OpenCall

	// OpenOutputCalls records every call to OpenOutput in order.
	OpenOutputCalls []OpenCall
}

// OpenInput records the call and returns Input, OpenInputErr.
func (d *Device) OpenInput(_ context.Context, cfg audio.StreamConfig) (audio.InputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenInputCalls = append(d.OpenInputCalls, OpenCall{Cfg: cfg})
	if d.OpenInputErr != nil {
		return nil, d.OpenInputErr
	}
	if d.Input != nil {
		return d.Input, nil
	}
	return NewInputStream(), nil
}

// OpenOutput records the call and returns Output, OpenOutputErr.
func (d *Device) OpenOutput(_ context.Context, cfg audio.StreamConfig) (audio.OutputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenOutputCalls = append(d.OpenOutputCalls, OpenCall{Cfg: cfg})
	if d.OpenOutputErr != nil {
		return nil, d.OpenOutputErr
	}
	if d.Output != nil {
		return d.Output, nil
	}
	return &OutputStream{}, nil
}

// Ensure Device implements audio.Device at compile time.
var _ audio.Device = (*Device)(nil)

// InputStream is a mock implementation of audio.InputStream. Frames are
// injected with Emit and the stream is ended with Finish.
type InputStream struct {
	mu sync.Mutex

	frames chan audio.AudioFrame
	errVal error
	done   bool

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewInputStream returns an InputStream ready to have frames emitted.
func NewInputStream() *InputStream {
	return &InputStream{frames: make(chan audio.AudioFrame, 256)}
}

// Emit delivers one scripted frame to the consumer. Panics if called after
// Finish.
func (s *InputStream) Emit(frame audio.AudioFrame) {
	s.frames <- frame
}

// Finish closes the frames channel, optionally recording err as the stream
// failure cause. Safe to call once.
func (s *InputStream) Finish(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.errVal = err
	s.mu.Unlock()
	close(s.frames)
}

// Frames returns the scripted frame channel.
func (s *InputStream) Frames() <-chan audio.AudioFrame { return s.frames }

// Err returns the error recorded by Finish.
func (s *InputStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close records the call.
func (s *InputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}

// Ensure InputStream implements audio.InputStream at compile time.
var _ audio.InputStream = (*InputStream)(nil)

// WriteCall records a single invocation of OutputStream.Write.
type WriteCall struct {
	// Frame is the frame passed to Write.
	Frame audio.AudioFrame
}

// OutputStream is a mock implementation of audio.OutputStream.
type OutputStream struct {
	mu sync.Mutex

	// WriteErr, if non-nil, is returned by every Write call.
	WriteErr error

	// WriteCalls records every call to Write in order.
	WriteCalls []WriteCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Write records the call and returns WriteErr.
func (s *OutputStream) Write(frame audio.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WriteCalls = append(s.WriteCalls, WriteCall{Frame: frame})
	return s.WriteErr
}

// Close records the call.
func (s *OutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}

// Written returns a snapshot of all frames written so far. Thread-safe.
func (s *OutputStream) Written() []audio.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.AudioFrame, len(s.WriteCalls))
	for i, c := range s.WriteCalls {
		out[i] = c.Frame
	}
	return out
}

// Ensure OutputStream implements audio.OutputStream at compile time.
var _ audio.OutputStream = (*OutputStream)(nil)
