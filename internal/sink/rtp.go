package sink

import (
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/codec"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/metrics"
)

const (
	// DefaultMTU keeps packets clear of common tunnel overheads.
	DefaultMTU   = 1200
	rtpHeaderLen = 12
)

// PayloaderFor returns the RTP payloader for a bitstream.
func PayloaderFor(id codec.ID) (rtp.Payloader, error) {
	switch id {
	case codec.IDOpus:
		return &codecs.OpusPayloader{}, nil
	case codec.IDPCMS16LE:
		return l16Payloader{}, nil
	default:
		return nil, fmt.Errorf("no RTP payloader for %s", id)
	}
}

// l16Payloader turns little-endian s16 samples into RTP L16, which is
// big-endian, and splits them at the MTU on sample boundaries.
type l16Payloader struct {
	g711 codecs.G711Payloader
}

func (p l16Payloader) Payload(mtu uint16, payload []byte) [][]byte {
	n := len(payload) &^ 1
	swapped := make([]byte, n)
	for i := 0; i < n; i += 2 {
		swapped[i], swapped[i+1] = payload[i+1], payload[i]
	}
	return p.g711.Payload(mtu&^1, swapped)
}

// RTPOptions configures an RTPSink.
type RTPOptions struct {
	SSRC uint32 // 0 picks a random one
	MTU  uint16
	// SampleRate is the rate unit PTS values count in.
	SampleRate int
	// Channels of raw PCM units, used to advance the timestamp across
	// fragments of one unit. 0 means stereo.
	Channels int
}

// RTPSink packetizes units and writes each RTP packet to w.
type RTPSink struct {
	mu        sync.Mutex
	w         io.Writer
	payloader rtp.Payloader
	sequencer rtp.Sequencer
	pt        uint8
	ssrc      uint32
	mtu       uint16
	clockRate uint32
	rate      uint32
	base      uint32
	started   bool
	// bytes per sample frame when units are raw PCM, else 0
	frameBytes int
}

// NewRTP creates a sink for the given bitstream and payload type.
func NewRTP(w io.Writer, id codec.ID, pt media.PayloadType, opts RTPOptions) (*RTPSink, error) {
	if !pt.Valid() {
		return nil, fmt.Errorf("invalid RTP payload type %d", pt)
	}
	payloader, err := PayloaderFor(id)
	if err != nil {
		return nil, err
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("RTP sink needs a sample rate")
	}
	if opts.MTU == 0 {
		opts.MTU = DefaultMTU
	}
	if opts.SSRC == 0 {
		opts.SSRC = rand.Uint32()
	}
	if opts.Channels <= 0 {
		opts.Channels = 2
	}
	frameBytes := 0
	if id == codec.IDPCMS16LE {
		frameBytes = 2 * opts.Channels
	}
	clock := id.ClockRate()
	if clock == 0 {
		clock = uint32(opts.SampleRate)
	}
	return &RTPSink{
		w:         w,
		payloader: payloader,
		sequencer: rtp.NewRandomSequencer(),
		pt:        uint8(pt),
		ssrc:      opts.SSRC,
		mtu:       opts.MTU,
		clockRate: clock,
		rate:      uint32(opts.SampleRate),
		base:      rand.Uint32(),

		frameBytes: frameBytes,
	}, nil
}

// DialRTP opens a connected UDP socket for an RTPSink.
func DialRTP(addr string) (net.Conn, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial rtp %s: %w", addr, err)
	}
	return conn, nil
}

// SSRC returns the stream's synchronization source.
func (s *RTPSink) SSRC() uint32 { return s.ssrc }

// timestamp converts a PTS in samples to the RTP clock.
func (s *RTPSink) timestamp(pts int64) uint32 {
	if s.rate == s.clockRate {
		return s.base + uint32(pts)
	}
	return s.base + uint32(pts*int64(s.clockRate)/int64(s.rate))
}

func (s *RTPSink) WriteUnit(u media.Unit) error {
	if len(u.Data) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	payloads := s.payloader.Payload(s.mtu-rtpHeaderLen, u.Data)
	ts := s.timestamp(u.PTS)
	for _, payload := range payloads {
		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         !s.started,
				PayloadType:    s.pt,
				SequenceNumber: s.sequencer.NextSequenceNumber(),
				Timestamp:      ts,
				SSRC:           s.ssrc,
			},
			Payload: payload,
		}
		s.started = true
		if s.frameBytes > 0 {
			ts += uint32(len(payload) / s.frameBytes)
		}
		buf, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("marshal rtp: %w", err)
		}
		if _, err := s.w.Write(buf); err != nil {
			return fmt.Errorf("write rtp: %w", err)
		}
		metrics.RTPPacketsTotal.Inc()
	}
	return nil
}
