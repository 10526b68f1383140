// Package mock provides test doubles for the s2s package interfaces.
//
// Use Provider to verify that sessions are opened with the expected
// SessionConfig. Use Session to script model output (audio, transcripts,
// tool calls, interruptions) and inspect what the pipeline sent.
//
// Example:
//
//	sess := mock.NewSession()
//	prov := &mock.Provider{Session: sess}
//	go func() {
//	    sess.EmitToolCall(s2s.ToolCall{CallID: "c1", Name: "get_next_form_field"})
//	    sess.EmitAudio([]byte{0x01, 0x02})
//	    sess.Finish(nil)
//	}()
package mock

import (
	"context"
	"sync"

	"github.com/formvox/formvox/pkg/provider/s2s"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Cfg is the SessionConfig passed to Connect.
	Cfg s2s.SessionConfig
}

// Provider is a mock implementation of s2s.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by Connect. If nil, Connect
	// returns a new default Session.
	Session s2s.SessionHandle

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// CapabilitiesResult is returned by Capabilities.
	CapabilitiesResult s2s.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(_ context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// Capabilities returns CapabilitiesResult.
func (p *Provider) Capabilities() s2s.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CapabilitiesResult
}

// Ensure Provider implements s2s.Provider at compile time.
var _ s2s.Provider = (*Provider)(nil)

// ToolResultCall records a single invocation of Session.SendToolResult.
type ToolResultCall struct {
	// Result is the ToolResult passed to SendToolResult.
	Result s2s.ToolResult
}

// Session is a mock implementation of s2s.SessionHandle. Model output is
// scripted through the Emit* methods; the session ends when Finish or Close
// is called.
type Session struct {
	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CommitAudioErr, if non-nil, is returned by every CommitAudio call.
	CommitAudioErr error

	// SendToolResultErr, if non-nil, is returned by every SendToolResult call.
	SendToolResultErr error

	// InterruptErr, if non-nil, is returned by Interrupt.
	InterruptErr error

	// --- Call records ---

	// SendAudioCalls records a copy of every chunk passed to SendAudio.
	SendAudioCalls [][]byte

	// CommitAudioCallCount is the number of times CommitAudio was called.
	CommitAudioCallCount int

	// ToolResultCalls records every call to SendToolResult in order.
	ToolResultCalls []ToolResultCall

	// InterruptCallCount is the number of times Interrupt was called.
	InterruptCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	audioCh     chan []byte
	transcripts chan s2s.TranscriptEntry
	toolCalls   chan s2s.ToolCall
	interrupted chan struct{}
	errVal      error
	done        bool
}

// NewSession returns a Session ready to have output scripted.
func NewSession() *Session {
	return &Session{
		audioCh:     make(chan []byte, 256),
		transcripts: make(chan s2s.TranscriptEntry, 64),
		toolCalls:   make(chan s2s.ToolCall, 64),
		interrupted: make(chan struct{}, 4),
	}
}

// EmitAudio scripts one audio chunk from the model.
func (s *Session) EmitAudio(chunk []byte) { s.audioCh <- chunk }

// EmitTranscript scripts one transcript entry from the model.
func (s *Session) EmitTranscript(entry s2s.TranscriptEntry) { s.transcripts <- entry }

// EmitToolCall scripts one tool invocation from the model.
func (s *Session) EmitToolCall(call s2s.ToolCall) { s.toolCalls <- call }

// EmitInterrupted scripts an interruption signal from the model.
func (s *Session) EmitInterrupted() { s.interrupted <- struct{}{} }

// Finish closes all output channels, optionally recording err as the session
// failure cause. Safe to call once; Close calls it implicitly.
func (s *Session) Finish(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	if err != nil {
		s.errVal = err
	}
	s.mu.Unlock()
	close(s.audioCh)
	close(s.transcripts)
	close(s.toolCalls)
	close(s.interrupted)
}

// SendAudio records a copy of the chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, cp)
	return s.SendAudioErr
}

// CommitAudio records the call and returns CommitAudioErr.
func (s *Session) CommitAudio() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CommitAudioCallCount++
	return s.CommitAudioErr
}

// Audio returns the scripted audio channel.
func (s *Session) Audio() <-chan []byte { return s.audioCh }

// Transcripts returns the scripted transcript channel.
func (s *Session) Transcripts() <-chan s2s.TranscriptEntry { return s.transcripts }

// ToolCalls returns the scripted tool call channel.
func (s *Session) ToolCalls() <-chan s2s.ToolCall { return s.toolCalls }

// SendToolResult records the call and returns SendToolResultErr.
func (s *Session) SendToolResult(result s2s.ToolResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ToolResultCalls = append(s.ToolResultCalls, ToolResultCall{Result: result})
	return s.SendToolResultErr
}

// Interrupted returns the scripted interruption channel.
func (s *Session) Interrupted() <-chan struct{} { return s.interrupted }

// Interrupt records the call and returns InterruptErr.
func (s *Session) Interrupt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InterruptCallCount++
	return s.InterruptErr
}

// Err returns the error recorded by Finish.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close records the call and ends the session cleanly.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	s.mu.Unlock()
	s.Finish(nil)
	return nil
}

// Results returns a snapshot of all tool results sent so far. Thread-safe.
func (s *Session) Results() []s2s.ToolResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]s2s.ToolResult, len(s.ToolResultCalls))
	for i, c := range s.ToolResultCalls {
		out[i] = c.Result
	}
	return out
}

// Ensure Session implements s2s.SessionHandle at compile time.
var _ s2s.SessionHandle = (*Session)(nil)
