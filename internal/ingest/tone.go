package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/audio"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

// ToneOptions configures a ToneSource.
type ToneOptions struct {
	Frequency float64
	// Formats are cycled through every SwitchEvery packets. The first one is
	// used when SwitchEvery is 0.
	Formats     []media.Format
	SwitchEvery int
	FrameMs     int
	// Packets stops the source after that many packets; 0 runs until stopped.
	Packets  int
	Realtime bool
}

// ToneSource pushes a sine wave into the queue. It is the stand-in producer
// for running the stage without a live input.
type ToneSource struct {
	q      Pusher
	opts   ToneOptions
	logger *zap.Logger

	mu        sync.Mutex
	state     string
	lastError string
	cancel    context.CancelFunc

	pushed atomic.Int64
	bytes  atomic.Int64
}

// NewToneSource creates a tone generator feeding q.
func NewToneSource(q Pusher, opts ToneOptions, logger *zap.Logger) *ToneSource {
	if len(opts.Formats) == 0 {
		opts.Formats = []media.Format{{SampleRate: 48000, Channels: 2, SampleFormat: media.SampleFormatS16}}
	}
	if opts.FrameMs <= 0 {
		opts.FrameMs = 20
	}
	return &ToneSource{
		q:      q,
		opts:   opts,
		logger: logger.With(zap.String("ingest", "tone")),
		state:  StateStopped,
	}
}

// Start generates packets until ctx ends, Stop is called or the packet limit
// is reached.
func (s *ToneSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return fmt.Errorf("ingest already running")
	}
	for _, f := range s.opts.Formats {
		if !f.Valid() || f.SampleFormat != media.SampleFormatS16 {
			s.state = StateError
			s.lastError = fmt.Sprintf("unsupported tone format %s", f)
			s.mu.Unlock()
			return fmt.Errorf("unsupported tone format %s", f)
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateRunning
	s.lastError = ""
	s.mu.Unlock()
	defer cancel()

	s.logger.Info("ingest started", zap.Int("formats", len(s.opts.Formats)))

	var (
		idx   = 0
		tone  = s.newTone(0)
		ts    int64
		pacer = newPacer(s.opts.Formats[0].SampleRate, s.opts.Realtime)
	)
	for n := 0; s.opts.Packets == 0 || n < s.opts.Packets; n++ {
		if ctx.Err() != nil {
			break
		}
		if s.opts.SwitchEvery > 0 && n > 0 && n%s.opts.SwitchEvery == 0 {
			idx = (idx + 1) % len(s.opts.Formats)
			tone = s.newTone(idx)
			ts = 0
			pacer = newPacer(s.opts.Formats[idx].SampleRate, s.opts.Realtime)
		}
		f := s.opts.Formats[idx]
		samples := f.SampleRate * s.opts.FrameMs / 1000

		pkt := media.AcquirePacket(f, samples*f.FrameBytes(), ts)
		audio.Int16ToBytesInto(tone.Next(samples), pkt.Data)
		ts += int64(samples)
		s.bytes.Add(int64(len(pkt.Data)))
		s.pushed.Add(1)
		s.q.Push(pkt)

		if pacer.wait(ctx, ts) != nil {
			break
		}
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.logger.Info("ingest stopped", zap.Int64("packets", s.pushed.Load()))
	return nil
}

func (s *ToneSource) newTone(idx int) *audio.Tone {
	f := s.opts.Formats[idx]
	return audio.NewTone(s.opts.Frequency, f.SampleRate, f.Channels)
}

// Stop terminates the ingest. Idempotent.
func (s *ToneSource) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Status returns a snapshot of current ingest state.
func (s *ToneSource) Status() Status {
	s.mu.Lock()
	state, lastErr := s.state, s.lastError
	s.mu.Unlock()
	return Status{
		State:         state,
		Source:        "tone",
		Format:        s.opts.Formats[0].String(),
		PacketsPushed: s.pushed.Load(),
		BytesRead:     s.bytes.Load(),
		LastError:     lastErr,
	}
}
