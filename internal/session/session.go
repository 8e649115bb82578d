// Package session holds the state of one WebRTC listener.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when writing to a session whose peer
// connection has not been set up.
var ErrNotConnected = errors.New("session: not connected")

// Session is one listener receiving the encoded stream over WebRTC.
type Session struct {
	ID      string
	Created time.Time

	logger *zap.Logger

	mu       sync.Mutex
	pc       *webrtc.PeerConnection
	track    *webrtc.TrackLocalStaticSample
	answered bool
	stopped  bool
}

// New creates a session without a peer connection.
func New(id string, logger *zap.Logger) *Session {
	return &Session{
		ID:      id,
		Created: time.Now(),
		logger:  logger.With(zap.String("session", id)),
	}
}

// SetPeerConnection attaches the peer connection and its outbound track.
func (s *Session) SetPeerConnection(pc *webrtc.PeerConnection, track *webrtc.TrackLocalStaticSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pc = pc
	s.track = track
}

// SetRemoteDescription applies the listener's SDP answer.
func (s *Session) SetRemoteDescription(desc webrtc.SessionDescription) error {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return ErrNotConnected
	}
	if err := pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	s.mu.Lock()
	s.answered = true
	s.mu.Unlock()
	return nil
}

// Answered reports whether the listener's answer has been applied.
func (s *Session) Answered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answered
}

// WriteSample sends one encoded unit on the outbound track.
func (s *Session) WriteSample(sample media.Sample) error {
	s.mu.Lock()
	track, stopped := s.track, s.stopped
	s.mu.Unlock()
	if track == nil || stopped {
		return ErrNotConnected
	}
	return track.WriteSample(sample)
}

// Stop closes the peer connection. Idempotent.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	pc := s.pc
	s.mu.Unlock()

	var err error
	if pc != nil {
		err = multierr.Append(err, pc.Close())
	}
	s.logger.Info("session stopped", zap.Duration("age", time.Since(s.Created)))
	return err
}
