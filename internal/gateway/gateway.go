// Package gateway fans the encoded stream out to WebRTC listeners and serves
// the HTTP API they negotiate sessions through.
package gateway

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/ingest"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/metrics"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/session"
)

const defaultGatherTimeout = 10 * time.Second

var (
	ErrSessionNotFound = errors.New("gateway: session not found")
	ErrSessionExists   = errors.New("gateway: session already exists")
	ErrSessionLimit    = errors.New("gateway: max sessions reached")
)

// Config configures the gateway.
type Config struct {
	PayloadType    media.PayloadType
	Channels       int
	SampleRate     int // rate unit durations count in
	STUNServers    []string
	MaxSessions    int
	AllowedOrigins []string
	GatherTimeout  time.Duration
}

// Gateway manages WebRTC listener sessions and writes every encoded unit to
// all of them.
type Gateway struct {
	cfg    Config
	api    *webrtc.API
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*session.Session
	// ids whose negotiation is in progress; they count against MaxSessions
	pending map[string]struct{}
	ingest  StatusReporter
}

// StatusReporter is an ingest source whose state the health endpoint
// reports.
type StatusReporter interface {
	Status() ingest.Status
}

// ReportIngest makes /healthz include the status of src.
func (gw *Gateway) ReportIngest(src StatusReporter) {
	gw.mu.Lock()
	gw.ingest = src
	gw.mu.Unlock()
}

func (gw *Gateway) ingestStatus() (ingest.Status, bool) {
	gw.mu.RLock()
	src := gw.ingest
	gw.mu.RUnlock()
	if src == nil {
		return ingest.Status{}, false
	}
	return src.Status(), true
}

// New creates a Gateway with the Opus codec registered under the stage's
// payload type and NACK responses enabled.
func New(cfg Config, logger *zap.Logger) (*Gateway, error) {
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = defaultGatherTimeout
	}
	if !cfg.PayloadType.Valid() {
		return nil, fmt.Errorf("invalid payload type %d", cfg.PayloadType)
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: opusCapability(cfg.Channels),
		PayloadType:        webrtc.PayloadType(cfg.PayloadType),
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}

	// Interceptor registry for NACK/RTCP
	ir := &interceptor.Registry{}
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	ir.Add(responder)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
	)

	return &Gateway{
		cfg:      cfg,
		api:      api,
		logger:   logger.With(zap.String("component", "gateway")),
		sessions: make(map[string]*session.Session),
		pending:  make(map[string]struct{}),
	}, nil
}

func opusCapability(channels int) webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeOpus,
		ClockRate:   48000,
		Channels:    uint16(channels),
		SDPFmtpLine: "minptime=10;useinbandfec=1",
	}
}

// SessionCount returns the current number of active sessions.
func (gw *Gateway) SessionCount() int {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return len(gw.sessions)
}

// ICEServers returns the configured STUN/TURN servers as WebRTC config objects.
func (gw *Gateway) ICEServers() []webrtc.ICEServer {
	if len(gw.cfg.STUNServers) == 0 {
		return nil
	}
	urls := make([]string, len(gw.cfg.STUNServers))
	copy(urls, gw.cfg.STUNServers)
	return []webrtc.ICEServer{{URLs: urls}}
}

// CreateSession sets up a send-only PeerConnection carrying the encoded
// stream. Returns the SDP offer for the listener to answer.
func (gw *Gateway) CreateSession(id string) (sdp string, err error) {
	if err := gw.reserve(id); err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			gw.unreserve(id)
		}
	}()

	logger := gw.logger.With(zap.String("session", id))
	sess := session.New(id, gw.logger)

	pc, err := gw.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: gw.ICEServers(),
	})
	if err != nil {
		return "", fmt.Errorf("create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(opusCapability(gw.cfg.Channels), "audio", "encoder")
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("create audio track: %w", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("add audio track: %w", err)
	}
	go drainRTCP(sender)

	sess.SetPeerConnection(pc, track)

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logger.Info("ICE state", zap.String("state", state.String()))
		if state == webrtc.ICEConnectionStateFailed ||
			state == webrtc.ICEConnectionStateDisconnected ||
			state == webrtc.ICEConnectionStateClosed {
			gw.DeleteSession(id)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return "", fmt.Errorf("set local description: %w", err)
	}

	// Wait for ICE gathering to complete
	gatherDone := webrtc.GatheringCompletePromise(pc)
	select {
	case <-gatherDone:
	case <-time.After(gw.cfg.GatherTimeout):
		logger.Warn("ICE gathering timed out, proceeding with partial candidates")
	}

	sdp = pc.LocalDescription().SDP

	gw.mu.Lock()
	delete(gw.pending, id)
	gw.sessions[id] = sess
	n := len(gw.sessions)
	gw.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))

	logger.Info("session created", zap.Int("sdpLen", len(sdp)))
	return sdp, nil
}

// reserve claims a session slot for id. Sessions still negotiating hold
// their slot so that concurrent requests cannot exceed MaxSessions.
func (gw *Gateway) reserve(id string) error {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if _, ok := gw.sessions[id]; ok {
		return ErrSessionExists
	}
	if _, ok := gw.pending[id]; ok {
		return ErrSessionExists
	}
	if gw.cfg.MaxSessions > 0 && len(gw.sessions)+len(gw.pending) >= gw.cfg.MaxSessions {
		return ErrSessionLimit
	}
	gw.pending[id] = struct{}{}
	return nil
}

func (gw *Gateway) unreserve(id string) {
	gw.mu.Lock()
	delete(gw.pending, id)
	gw.mu.Unlock()
}

// drainRTCP reads incoming RTCP so the interceptors see NACKs.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// SetAnswer applies the listener's SDP answer to the session's PeerConnection.
func (gw *Gateway) SetAnswer(id, sdpAnswer string) error {
	gw.mu.RLock()
	sess, ok := gw.sessions[id]
	gw.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	return sess.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdpAnswer,
	})
}

// DeleteSession tears down a session and removes it from the registry.
func (gw *Gateway) DeleteSession(id string) bool {
	gw.mu.Lock()
	sess, ok := gw.sessions[id]
	if ok {
		delete(gw.sessions, id)
	}
	n := len(gw.sessions)
	gw.mu.Unlock()

	if !ok {
		return false
	}
	if err := sess.Stop(); err != nil {
		gw.logger.Warn("session close failed", zap.String("session", id), zap.Error(err))
	}
	metrics.ActiveSessions.Set(float64(n))
	gw.logger.Info("session deleted", zap.String("session", id))
	return true
}

// WriteUnit sends one encoded unit to every session that has answered.
// Sessions still negotiating are skipped.
func (gw *Gateway) WriteUnit(u media.Unit) error {
	sample := pionmedia.Sample{
		Data:     u.Data,
		Duration: time.Duration(u.Duration) * time.Second / time.Duration(gw.cfg.SampleRate),
	}

	gw.mu.RLock()
	targets := make([]*session.Session, 0, len(gw.sessions))
	for _, s := range gw.sessions {
		if s.Answered() {
			targets = append(targets, s)
		}
	}
	gw.mu.RUnlock()

	var err error
	for _, s := range targets {
		if werr := s.WriteSample(sample); werr != nil {
			err = multierr.Append(err, fmt.Errorf("session %s: %w", s.ID, werr))
		}
	}
	return err
}

// Shutdown stops all sessions.
func (gw *Gateway) Shutdown() {
	gw.mu.Lock()
	sessions := gw.sessions
	gw.sessions = make(map[string]*session.Session)
	gw.mu.Unlock()

	for _, sess := range sessions {
		sess.Stop()
	}
	metrics.ActiveSessions.Set(0)

	gw.logger.Info("gateway shutdown complete", zap.Int("sessions", len(sessions)))
}
