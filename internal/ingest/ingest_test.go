package ingest

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

type recorder struct {
	mu   sync.Mutex
	pkts []*media.Packet
}

func (r *recorder) Push(p *media.Packet) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pkts = append(r.pkts, p)
	return true
}

type fakeResolver map[string][]string

func (f fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := f[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	var out []net.IPAddr
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

func TestValidateURL(t *testing.T) {
	r := fakeResolver{
		"media.example.com": {"93.184.216.34"},
		"internal.example":  {"10.1.2.3"},
		"mixed.example":     {"93.184.216.34", "127.0.0.1"},
		"cgnat.example":     {"100.64.1.1"},
	}
	tests := []struct {
		url     string
		wantErr string
	}{
		{url: "https://media.example.com/live.m3u8"},
		{url: "rtmp://media.example.com/app/stream"},
		{url: "srt://media.example.com:9000"},
		{url: "file:///etc/passwd", wantErr: "unsupported scheme"},
		{url: "https://user:pw@media.example.com/a", wantErr: "credentials"},
		{url: "https:///nohost", wantErr: "no hostname"},
		{url: "https://internal.example/a", wantErr: "private"},
		{url: "https://mixed.example/a", wantErr: "private"},
		{url: "https://cgnat.example/a", wantErr: "private"},
		{url: "https://unknown.example/a", wantErr: "DNS resolution failed"},
		{url: "https://media.example.com/" + strings.Repeat("a", maxURLLength), wantErr: "too long"},
	}
	for _, tt := range tests {
		t.Run(tt.url[:min(len(tt.url), 40)], func(t *testing.T) {
			err := validateURL(context.Background(), tt.url, r)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestToneSourceSwitchesFormats(t *testing.T) {
	formats := []media.Format{
		{SampleRate: 48000, Channels: 2, SampleFormat: media.SampleFormatS16},
		{SampleRate: 16000, Channels: 1, SampleFormat: media.SampleFormatS16},
	}
	rec := &recorder{}
	src := NewToneSource(rec, ToneOptions{Formats: formats, SwitchEvery: 2, Packets: 5}, zap.NewNop())

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	type shape struct {
		Format media.Format
		Bytes  int
		TS     int64
	}
	var got []shape
	for _, p := range rec.pkts {
		got = append(got, shape{p.Format, len(p.Data), p.Timestamp})
	}
	want := []shape{
		{formats[0], 3840, 0},
		{formats[0], 3840, 960},
		{formats[1], 640, 0},
		{formats[1], 640, 320},
		{formats[0], 3840, 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("packets mismatch (-want +got):\n%s", diff)
	}
	if st := src.Status(); st.State != StateStopped || st.PacketsPushed != 5 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestToneSourceRejectsFloat(t *testing.T) {
	src := NewToneSource(&recorder{}, ToneOptions{
		Formats: []media.Format{{SampleRate: 48000, Channels: 2, SampleFormat: media.SampleFormatF32}},
	}, zap.NewNop())
	if err := src.Start(context.Background()); err == nil {
		t.Fatal("expected float format to be rejected")
	}
	if st := src.Status(); st.State != StateError {
		t.Errorf("expected error state, got %s", st.State)
	}
}

func TestToneSourceStop(t *testing.T) {
	rec := &recorder{}
	src := NewToneSource(rec, ToneOptions{Realtime: true}, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- src.Start(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	src.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tone source did not stop")
	}
	if n := src.Status().PacketsPushed; n == 0 || n > 10 {
		t.Errorf("expected a paced handful of packets, got %d", n)
	}
}

func TestFFmpegSourceMissingBinary(t *testing.T) {
	src := NewFFmpegURLSource("https://media.example.com/a.mp3", &recorder{}, URLOptions{
		Format: media.Format{SampleRate: 48000, Channels: 2},
		Binary: "ffmpeg-does-not-exist",
	}, zap.NewNop())
	if err := src.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail")
	}
	if st := src.Status(); st.State != StateError || st.LastError == "" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestFFmpegReadLoopSplitsPackets(t *testing.T) {
	rec := &recorder{}
	src := NewFFmpegURLSource("x", rec, URLOptions{
		Format:  media.Format{SampleRate: 8000, Channels: 1},
		FrameMs: 10,
	}, zap.NewNop())

	// 2.5 packets of 80 samples plus a dangling odd byte
	data := make([]byte, 80*2*2+81)
	if err := src.readLoop(context.Background(), strings.NewReader(string(data))); err != nil {
		t.Fatalf("read loop: %v", err)
	}
	var sizes []int
	var stamps []int64
	for _, p := range rec.pkts {
		sizes = append(sizes, len(p.Data))
		stamps = append(stamps, p.Timestamp)
	}
	if diff := cmp.Diff([]int{160, 160, 80}, sizes); diff != "" {
		t.Errorf("sizes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{0, 80, 160}, stamps); diff != "" {
		t.Errorf("timestamps mismatch (-want +got):\n%s", diff)
	}
}
