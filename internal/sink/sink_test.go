package sink

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pion/rtp"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/codec"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

// packetWriter records each Write as one datagram.
type packetWriter struct {
	packets []rtp.Packet
}

func (w *packetWriter) Write(b []byte) (int, error) {
	var p rtp.Packet
	if err := p.Unmarshal(b); err != nil {
		return 0, err
	}
	w.packets = append(w.packets, p)
	return len(b), nil
}

func TestRTPSinkOpus(t *testing.T) {
	w := &packetWriter{}
	s, err := NewRTP(w, codec.IDOpus, media.PayloadTypeOpus, RTPOptions{SSRC: 0xdeadbeef, SampleRate: 48000})
	if err != nil {
		t.Fatalf("new rtp sink: %v", err)
	}

	units := []media.Unit{
		{Data: []byte{1, 2, 3}, PTS: 0, Duration: 960},
		{Data: []byte{4, 5}, PTS: 960, Duration: 960},
		{Data: nil, PTS: 1920, Duration: 960},
	}
	for _, u := range units {
		if err := s.WriteUnit(u); err != nil {
			t.Fatalf("write unit: %v", err)
		}
	}

	if len(w.packets) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(w.packets))
	}
	a, b := w.packets[0], w.packets[1]
	if a.PayloadType != uint8(media.PayloadTypeOpus) || a.SSRC != 0xdeadbeef {
		t.Errorf("unexpected header %+v", a.Header)
	}
	if !a.Marker || b.Marker {
		t.Errorf("expected marker on the first packet only, got %v %v", a.Marker, b.Marker)
	}
	if b.SequenceNumber != a.SequenceNumber+1 {
		t.Errorf("expected consecutive sequence numbers, got %d and %d", a.SequenceNumber, b.SequenceNumber)
	}
	if b.Timestamp-a.Timestamp != 960 {
		t.Errorf("expected timestamp step 960, got %d", b.Timestamp-a.Timestamp)
	}
	if diff := cmp.Diff([]byte{4, 5}, b.Payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestRTPSinkScalesToClockRate(t *testing.T) {
	w := &packetWriter{}
	s, err := NewRTP(w, codec.IDOpus, media.PayloadTypeOpus, RTPOptions{SampleRate: 16000})
	if err != nil {
		t.Fatalf("new rtp sink: %v", err)
	}
	s.WriteUnit(media.Unit{Data: []byte{1}, PTS: 0})
	s.WriteUnit(media.Unit{Data: []byte{1}, PTS: 320})
	if got := w.packets[1].Timestamp - w.packets[0].Timestamp; got != 960 {
		t.Errorf("expected 320 samples at 16k to advance 960 ticks, got %d", got)
	}
}

func TestRTPSinkFragmentsPCM(t *testing.T) {
	w := &packetWriter{}
	s, err := NewRTP(w, codec.IDPCMS16LE, media.PayloadTypeL16Stereo, RTPOptions{SampleRate: 48000, MTU: 112})
	if err != nil {
		t.Fatalf("new rtp sink: %v", err)
	}
	if err := s.WriteUnit(media.Unit{Data: make([]byte, 250)}); err != nil {
		t.Fatalf("write unit: %v", err)
	}
	var sizes []int
	var offsets []uint32
	for _, p := range w.packets {
		sizes = append(sizes, len(p.Payload))
		offsets = append(offsets, p.Timestamp-w.packets[0].Timestamp)
	}
	if diff := cmp.Diff([]int{100, 100, 50}, sizes); diff != "" {
		t.Errorf("fragment sizes mismatch (-want +got):\n%s", diff)
	}
	// 100 bytes of stereo s16 is 25 sample frames
	if diff := cmp.Diff([]uint32{0, 25, 50}, offsets); diff != "" {
		t.Errorf("fragment timestamps mismatch (-want +got):\n%s", diff)
	}
}

func TestRTPSinkSendsL16BigEndian(t *testing.T) {
	w := &packetWriter{}
	s, err := NewRTP(w, codec.IDPCMS16LE, media.PayloadTypeL16Mono, RTPOptions{SampleRate: 44100, Channels: 1})
	if err != nil {
		t.Fatalf("new rtp sink: %v", err)
	}
	// samples 0x0201 and 0x0403, plus a stray trailing byte
	if err := s.WriteUnit(media.Unit{Data: []byte{0x01, 0x02, 0x03, 0x04, 0x05}}); err != nil {
		t.Fatalf("write unit: %v", err)
	}
	if len(w.packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(w.packets))
	}
	if diff := cmp.Diff([]byte{0x02, 0x01, 0x04, 0x03}, w.packets[0].Payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRTPRejects(t *testing.T) {
	tests := []struct {
		name string
		id   codec.ID
		pt   media.PayloadType
		rate int
	}{
		{name: "no payloader", id: codec.IDAAC, pt: media.PayloadTypeAAC, rate: 48000},
		{name: "payload type out of range", id: codec.IDOpus, pt: media.PayloadTypeNone, rate: 48000},
		{name: "no sample rate", id: codec.IDOpus, pt: media.PayloadTypeOpus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRTP(io.Discard, tt.id, tt.pt, RTPOptions{SampleRate: tt.rate}); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestFrameFileRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	frames := [][]byte{{1, 2, 3}, {}, bytes.Repeat([]byte{9}, 300)}
	for _, f := range frames {
		if err := w.WriteUnit(media.Unit{Data: f}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	r := NewFrameReader(&buf)
	var got [][]byte
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, f)
	}
	if diff := cmp.Diff(frames, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}

	if err := w.WriteUnit(media.Unit{Data: make([]byte, 1<<16)}); err == nil {
		t.Error("expected oversized unit to be rejected")
	}
}

func TestFrameReaderTruncated(t *testing.T) {
	// header announces 4 bytes, only 2 follow
	r := NewFrameReader(bytes.NewReader([]byte{4, 0, 1, 2}))
	if _, err := r.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

type failing struct{ msg string }

func (f failing) WriteUnit(media.Unit) error { return errors.New(f.msg) }

func TestMultiWritesToAll(t *testing.T) {
	var buf bytes.Buffer
	m := Multi{failing{"first down"}, NewFrameWriter(&buf), failing{"second down"}}

	err := m.WriteUnit(media.Unit{Data: []byte{7}})
	if err == nil {
		t.Fatal("expected combined error")
	}
	for _, msg := range []string{"first down", "second down"} {
		if !strings.Contains(err.Error(), msg) {
			t.Errorf("expected %q in %v", msg, err)
		}
	}
	if diff := cmp.Diff([]byte{1, 0, 7}, buf.Bytes()); diff != "" {
		t.Errorf("frame writer output mismatch (-want +got):\n%s", diff)
	}
}
