// Package energy implements the vad.Classifier interface with a normalised
// RMS energy detector.
//
// The detector computes the mean squared amplitude of each 16-bit PCM frame,
// normalises it to [0, 1], and classifies the frame as speech when the value
// exceeds the configured threshold. It has no model dependencies and is the
// default classifier as well as the fallback the pipeline gate degrades to
// when a heavier backend fails.
package energy

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/formvox/formvox/pkg/provider/vad"
)

// Compile-time assertions that the types satisfy the vad interfaces.
var _ vad.Classifier = (*Classifier)(nil)
var _ vad.SessionHandle = (*session)(nil)

// DefaultThreshold is the normalised energy above which a frame counts as
// speech when Config.SpeechThreshold is zero.
const DefaultThreshold = 0.02

// Classifier creates RMS energy detection sessions.
type Classifier struct{}

// New returns an energy-based Classifier.
func New() *Classifier {
	return &Classifier{}
}

// NewSession creates an energy detection session.
func (c *Classifier) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy: speech threshold %.3f out of range [0, 1]", cfg.SpeechThreshold)
	}
	threshold := cfg.SpeechThreshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &session{threshold: threshold}, nil
}

type session struct {
	threshold float64

	mu     sync.Mutex
	closed bool
}

// ProcessFrame computes normalised RMS energy for the frame and compares it
// against the session threshold.
func (s *session) ProcessFrame(frame []byte) (vad.Decision, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return vad.Decision{}, fmt.Errorf("energy: session closed")
	}
	if len(frame) == 0 || len(frame)%2 != 0 {
		return vad.Decision{}, fmt.Errorf("energy: frame length %d is not a whole number of 16-bit samples", len(frame))
	}

	n := len(frame) / 2
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(frame[i*2:])))
		sum += v * v
	}
	// Mean squared amplitude normalised by the int16 full-scale square.
	score := sum / float64(n) / (32768.0 * 32768.0)

	return vad.Decision{Speech: score > s.threshold, Score: score}, nil
}

// Reset is a no-op: the detector keeps no cross-frame state.
func (s *session) Reset() {}

// Close marks the session closed. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
