// Package mock provides test doubles for the vad package interfaces.
//
// Use Classifier to verify that sessions are created with the expected
// Config. Use Session to script per-frame decisions and inspect the frames
// that were submitted.
//
// Example:
//
//	sess := &mock.Session{
//	    Script: []vad.Decision{{Speech: true, Score: 0.9}},
//	}
//	cls := &mock.Classifier{Session: sess}
//	handle, _ := cls.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/formvox/formvox/pkg/provider/vad"
)

// NewSessionCall records a single invocation of Classifier.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Classifier is a mock implementation of vad.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil,
	// NewSession returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (c *Classifier) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.NewSessionCalls = append(c.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if c.NewSessionErr != nil {
		return nil, c.NewSessionErr
	}
	if c.Session != nil {
		return c.Session, nil
	}
	return &Session{}, nil
}

// Ensure Classifier implements vad.Classifier at compile time.
var _ vad.Classifier = (*Classifier)(nil)

// ProcessFrameCall records a single invocation of Session.ProcessFrame.
type ProcessFrameCall struct {
	// Frame is a copy of the bytes passed to ProcessFrame.
	Frame []byte
}

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Script is consumed one Decision per ProcessFrame call. When the script
	// is exhausted (or empty), Fallback is returned instead.
	Script []vad.Decision

	// Fallback is returned by ProcessFrame once Script is exhausted.
	Fallback vad.Decision

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ProcessFrameCalls records every call to ProcessFrame in order.
	ProcessFrameCalls []ProcessFrameCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// ProcessFrame records the call and returns the next scripted Decision.
func (s *Session) ProcessFrame(frame []byte) (vad.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.ProcessFrameCalls = append(s.ProcessFrameCalls, ProcessFrameCall{Frame: cp})
	if s.ProcessFrameErr != nil {
		return vad.Decision{}, s.ProcessFrameErr
	}
	if s.next < len(s.Script) {
		dec := s.Script[s.next]
		s.next++
		return dec, nil
	}
	return s.Fallback, nil
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// ResetCalls clears all recorded call history and rewinds the script.
// Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProcessFrameCalls = nil
	s.ResetCallCount = 0
	s.CloseCallCount = 0
	s.next = 0
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)
