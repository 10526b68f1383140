// Package s2s defines the Provider interface for realtime speech-to-speech
// backends.
//
// An S2S provider wraps a conversational voice model that accepts raw audio
// input and returns synthesised audio output in a single, stateful session —
// the OpenAI Realtime API and Gemini Live are the two built-in backends.
//
// The central abstraction is SessionHandle: a bidirectional, multiplexed
// connection that carries audio, transcripts, and tool calls concurrently.
// Tool calls are channel-based rather than callback-based: the dispatcher
// consumes each call exactly once from ToolCalls and answers it with
// SendToolResult, which keeps answering strictly in issuance order without
// re-entrancy into the provider's receive goroutine.
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"
	"time"
)

// ToolDefinition declares a single function the model may invoke during the
// session.
type ToolDefinition struct {
	// Name is the function name the model uses to invoke the tool.
	Name string

	// Description tells the model when to invoke the tool.
	Description string

	// Parameters is a JSON-schema object describing the arguments.
	Parameters map[string]any
}

// ToolCall is a function invocation requested by the model. Every ToolCall
// must be answered with a ToolResult carrying the same CallID.
type ToolCall struct {
	// CallID is the provider-assigned correlation ID for this invocation.
	CallID string

	// Name is the tool being invoked.
	Name string

	// Arguments is the JSON-encoded argument object. May be malformed; the
	// consumer must treat it as untrusted input.
	Arguments string
}

// ToolResult is the answer to a ToolCall.
type ToolResult struct {
	// CallID must match the CallID of the ToolCall being answered.
	CallID string

	// Name is the tool that was invoked.
	Name string

	// Output is the JSON-encoded result payload.
	Output string
}

// TranscriptEntry is a piece of recognised or generated text surfaced by the
// session.
type TranscriptEntry struct {
	// Role is "user" for recognised input speech and "assistant" for the
	// model's own speech.
	Role string

	// Text is the transcript content.
	Text string

	// Timestamp marks when the entry was received.
	Timestamp time.Time
}

// SessionConfig is the initial configuration for a new S2S session.
type SessionConfig struct {
	// Instructions is the system-level prompt that defines the assistant's
	// task and behavioural constraints.
	Instructions string

	// Voice is the provider-specific voice identifier for synthesised output.
	Voice string

	// Language is a BCP-47 hint for recognition and synthesis (e.g., "de-DE").
	// Providers that cannot honour it ignore it.
	Language string

	// Tools is the set of tool definitions offered to the model for the
	// lifetime of the session.
	Tools []ToolDefinition
}

// Capabilities describes static properties of an S2S provider. The values
// are assumed constant for the lifetime of the Provider instance.
type Capabilities struct {
	// ContextWindow is the maximum token count (or provider-equivalent unit)
	// the model can maintain across the session.
	ContextWindow int

	// MaxSessionDuration is the hard upper bound on session lifetime imposed
	// by the provider. Zero means no documented limit.
	MaxSessionDuration time.Duration

	// Voices lists the voice identifiers available for this provider.
	Voices []string
}

// SessionHandle represents an open S2S session. It is an interface so that
// test code can supply mock implementations without a live connection.
//
// The session is the hot path of the voice pipeline — every method must
// return quickly. Output is channel-based to avoid blocking the caller's
// audio goroutines. All methods must be safe for concurrent use.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers a raw PCM audio chunk to the provider. The chunk
	// must match the audio format negotiated when the session was opened.
	// Returns an error if the session is closed or the provider cannot
	// accept the chunk (e.g., network error).
	SendAudio(chunk []byte) error

	// CommitAudio marks the end of the current input segment and asks the
	// model to respond to it. Providers whose protocol has no explicit
	// commit treat this as a no-op.
	CommitAudio() error

	// Audio returns a read-only channel that emits raw PCM audio byte slices
	// as the model synthesises its spoken response. The channel is closed
	// when the session ends or when a mid-stream error occurs. After the
	// channel closes, call [SessionHandle.Err] to check whether the session
	// ended cleanly. Consumers must drain this channel promptly to prevent
	// backpressure from stalling the provider's receive loop.
	Audio() <-chan []byte

	// Transcripts returns a read-only channel that emits TranscriptEntry
	// values for both recognised user speech and the model's responses. The
	// channel is closed when the session ends.
	Transcripts() <-chan TranscriptEntry

	// ToolCalls returns a read-only channel that emits tool invocations in
	// the order the model issued them. Each call must be consumed exactly
	// once and answered via SendToolResult. The channel is closed when the
	// session ends.
	ToolCalls() <-chan ToolCall

	// SendToolResult delivers the answer to a previously received ToolCall
	// back to the model. Results must be sent in the order the calls were
	// received.
	SendToolResult(result ToolResult) error

	// Interrupted returns a read-only channel that receives a signal each
	// time the provider aborts the in-flight response (e.g., the model was
	// cut off by new speech). Consumers should discard any buffered playback
	// audio on receipt. The channel is closed when the session ends.
	Interrupted() <-chan struct{}

	// Interrupt asks the provider to stop generating the current response
	// and discard any buffered output. Returns an error if the provider does
	// not support interruption.
	Interrupt() error

	// Err returns the error that caused the session channels to close
	// prematurely, or nil if the session ended cleanly. Callers should check
	// Err after the Audio channel is closed.
	Err() error

	// Close terminates the session, releases all resources, and closes the
	// Audio, Transcripts, ToolCalls, and Interrupted channels. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any S2S backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Connect establishes a new S2S session with the given configuration.
	// The returned SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the session cannot be established (authentication
	// failure, invalid voice, or ctx already cancelled). The caller owns the
	// SessionHandle and is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Capabilities returns static metadata about this provider's underlying
	// model. The result is assumed constant for the lifetime of the Provider
	// instance.
	Capabilities() Capabilities
}
