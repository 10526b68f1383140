// Package audio defines the interfaces and types for audio device access and
// stream management within Formvox.
//
// The two primary abstractions are:
//
//   - [Device] — opens capture and playback streams on a concrete backend.
//   - [InputStream] / [OutputStream] — an open, unidirectional PCM stream.
//
// Implementations of these interfaces are provided by backend-specific
// adapter packages (e.g., audio/portaudio for live devices, audio/wavfile for
// offline runs). The interfaces are intentionally narrow to keep the session
// pipeline decoupled from device details.
//
// This package lives under pkg/ because external code (alternative device
// adapters) is expected to implement [Device].
package audio

import "context"

// InputStream represents an open capture stream delivering fixed-size PCM
// frames. All channels returned by InputStream methods are closed
// automatically when the stream terminates.
//
// Implementations must be safe for concurrent use.
type InputStream interface {
	// Frames returns a read-only channel that delivers captured [AudioFrame]
	// values in capture order. The channel is closed when the stream ends or
	// when a mid-stream error occurs. After the channel closes, call
	// [InputStream.Err] to check whether the stream ended cleanly.
	Frames() <-chan AudioFrame

	// Err returns the error that caused the Frames channel to close
	// prematurely, or nil if the stream ended cleanly (e.g., end of a
	// recording, or Close was called).
	Err() error

	// Close stops capture and releases device resources. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// OutputStream represents an open playback stream. Frames written to it are
// rendered on the backing device in order.
//
// Implementations must be safe for concurrent use.
type OutputStream interface {
	// Write renders a single frame. It blocks until the device has accepted
	// the frame, which paces the caller to real time on live devices.
	// Returns an error if the stream is closed or the device fails.
	Write(frame AudioFrame) error

	// Close drains pending audio and releases device resources. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Device is the entry point for an audio backend. Implementations wrap a
// concrete audio API (PortAudio, WAV files, …) and expose uniform stream
// abstractions.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// OpenInput starts a capture stream with the given format. The supplied
	// ctx governs the open attempt only; once open, the stream remains alive
	// until [InputStream.Close] is called.
	OpenInput(ctx context.Context, cfg StreamConfig) (InputStream, error)

	// OpenOutput starts a playback stream with the given format. The supplied
	// ctx governs the open attempt only.
	OpenOutput(ctx context.Context, cfg StreamConfig) (OutputStream, error)
}
