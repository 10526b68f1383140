package audio

import "time"

// AudioFrame represents a single frame of PCM audio flowing through the
// pipeline. Frames are the atomic unit of audio transport — captured from an
// input stream, classified by VAD, forwarded to the model, and played through
// an output stream. A frame is immutable once captured; stages must not
// modify Data in place.
type AudioFrame struct {
	// Data is raw little-endian 16-bit PCM.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for model input, 24000 for model output).
	SampleRate int

	// Channels: 1 for mono capture, 2 for stereo playback devices.
	Channels int

	// Seq is the strictly increasing capture sequence number within a session.
	Seq uint64

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time of the frame, derived from its sample count.
// Returns zero when SampleRate or Channels is not set.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// StreamConfig describes the PCM format negotiated when opening an input or
// output stream.
type StreamConfig struct {
	// SampleRate in Hz. Common values: 8000, 16000, 24000, 48000.
	SampleRate int

	// Channels is the interleaved channel count. 1 for mono, 2 for stereo.
	Channels int

	// FrameDuration is the duration of each frame delivered by an input
	// stream. Output streams accept frames of any length.
	FrameDuration time.Duration
}

// FrameSamples returns the per-channel sample count of one frame.
func (c StreamConfig) FrameSamples() int {
	return int(time.Duration(c.SampleRate) * c.FrameDuration / time.Second)
}

// FrameBytes returns the byte size of one interleaved 16-bit PCM frame.
func (c StreamConfig) FrameBytes() int {
	return c.FrameSamples() * c.Channels * 2
}
