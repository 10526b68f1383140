// Package vad defines the Classifier interface for voice activity detection
// backends.
//
// A VAD classifier decides, frame by frame, whether raw PCM audio contains
// speech. It deliberately carries no segmentation logic: hysteresis, minimum
// durations, and segment boundaries are the responsibility of the pipeline
// gate that consumes the decisions. This keeps backends trivially swappable —
// an energy detector, a WebRTC port, or a neural model all present the same
// single-frame contract.
//
// Classification is synchronous by design: ProcessFrame returns immediately
// with a decision, making it suitable for the low-latency capture loop.
//
// Implementations of Classifier must be safe for concurrent use. A single
// SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds.
	// ProcessFrame may return an error if the supplied frame does not match
	// this size.
	FrameSizeMs int

	// SpeechThreshold is the score above which a frame is classified as
	// speech. Range and scale are backend-specific; for the energy backend it
	// is normalised RMS energy in [0, 1]. Typical: 0.02.
	SpeechThreshold float64
}

// Decision is the classification result for a single audio frame.
type Decision struct {
	// Speech reports whether the frame was classified as containing speech.
	Speech bool

	// Score is the backend's raw confidence or energy value. Useful for
	// logging and threshold tuning; the gate only consults Speech.
	Score float64
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations
// without a live backend. Each session maintains its own state; Reset clears
// this state without closing the session.
type SessionHandle interface {
	// ProcessFrame classifies a single audio frame. The frame must be raw
	// little-endian 16-bit PCM at the SampleRate and FrameSizeMs configured
	// when the session was created.
	//
	// This method is called synchronously in the capture loop; it must not
	// block.
	ProcessFrame(frame []byte) (Decision, error)

	// Reset clears accumulated state (noise floor estimates, smoothing
	// history) without closing the session. Use this when the audio stream
	// is interrupted or restarted.
	Reset()

	// Close releases all resources associated with the session. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Classifier is the factory for VAD sessions. It is the top-level interface
// implemented by each backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Classifier interface {
	// NewSession creates a new VAD session with the given configuration. The
	// session is immediately ready to accept audio frames.
	//
	// Returns an error if the configuration is invalid (e.g., unsupported
	// sample rate or threshold out of range).
	NewSession(cfg Config) (SessionHandle, error)
}
