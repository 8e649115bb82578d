// Package encoder implements the audio encoding stage: a worker that takes raw
// packets off an input queue, keeps an engine open for the format they carry
// and forwards the encoded units to a sink.
package encoder

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/codec"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/metrics"
)

// DefaultPollTimeout bounds each wait on the input queue.
const DefaultPollTimeout = 100 * time.Millisecond

// Source is the input queue the stage consumes.
type Source interface {
	HasData() bool
	// WaitForPush blocks until a packet is pushed or the timeout elapses.
	WaitForPush(timeout time.Duration)
	// Next dequeues the oldest packet, or returns nil when empty.
	Next() *media.Packet
}

// Sink receives encoded units in output order.
type Sink interface {
	WriteUnit(u media.Unit) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(u media.Unit) error

func (f SinkFunc) WriteUnit(u media.Unit) error { return f(u) }

// Options configures a Stage.
type Options struct {
	Engine       string            // registry name of the engine
	PayloadType  media.PayloadType // fixed for the stage's lifetime
	Params       Params            // zero value means DefaultParams
	AdaptToInput bool              // configure engines from the packet format
	PollTimeout  time.Duration
	Registry     *codec.Registry // nil means codec.Default
}

// Stats is a snapshot of the stage's counters.
type Stats struct {
	PacketsIn      uint64
	PacketsDropped uint64
	UnitsOut       uint64
	SinkErrors     uint64
	EngineOpens    uint64
	EngineCloses   uint64
}

type counters struct {
	packetsIn      atomic.Uint64
	packetsDropped atomic.Uint64
	unitsOut       atomic.Uint64
	sinkErrors     atomic.Uint64
	opens          atomic.Uint64
	closes         atomic.Uint64
}

type inputKind int

const (
	inputPacket inputKind = iota
	inputFlush
)

// Input is one step of work for the stage: a packet to encode or a request to
// drain and close the engine.
type Input struct {
	kind   inputKind
	packet *media.Packet
}

// Submit wraps a packet.
func Submit(p *media.Packet) Input { return Input{kind: inputPacket, packet: p} }

// Flush requests a drain.
func Flush() Input { return Input{kind: inputFlush} }

// IsFlush reports whether in is a flush request.
func (in Input) IsFlush() bool { return in.kind == inputFlush }

// Stage is the encoding pipeline stage. The CodecContext and FrameBuffer are
// touched only by the worker goroutine; the attached source is guarded by mu.
type Stage struct {
	log         *zap.Logger
	sink        Sink
	payloadType media.PayloadType
	pollTimeout time.Duration

	mu  sync.Mutex
	src Source

	ctx   *CodecContext
	stats counters

	state     atomic.Int32
	wake      chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
	suspended bool
}

// New creates a stage in the Idle state. Nothing is opened until the first
// packet arrives.
func New(sink Sink, logger *zap.Logger, opts Options) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Params == (Params{}) {
		opts.Params = DefaultParams()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.Registry == nil {
		opts.Registry = codec.Default
	}
	log := logger.With(
		zap.String("component", "encoder"),
		zap.String("engine", opts.Engine),
		zap.Stringer("payloadType", opts.PayloadType),
	)

	s := &Stage{
		log:         log,
		sink:        sink,
		payloadType: opts.PayloadType,
		pollTimeout: opts.PollTimeout,
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.ctx = newCodecContext(log, opts.Registry, opts.Engine, opts.Params, opts.AdaptToInput, &s.stats, s.emit)
	return s
}

// Attach sets the input queue. Safe to call while the worker runs.
func (s *Stage) Attach(src Source) {
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
	s.signal()
}

// Detach removes the input queue. The worker flushes and idles until a new
// one is attached.
func (s *Stage) Detach() {
	s.mu.Lock()
	s.src = nil
	s.mu.Unlock()
	s.signal()
}

func (s *Stage) source() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src
}

// next dequeues under the lock so that the emptiness check and the dequeue
// see the same queue.
func (s *Stage) next() *media.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil || !s.src.HasData() {
		return nil
	}
	if l, ok := s.src.(interface{ Len() int }); ok {
		defer func() { metrics.QueueDepth.Set(float64(l.Len())) }()
	}
	return s.src.Next()
}

// PayloadType returns the payload type fixed at construction.
func (s *Stage) PayloadType() media.PayloadType {
	return s.payloadType
}

// Engine returns the registry name of the open engine, or "" when none is.
func (s *Stage) Engine() string {
	if a := s.ctx.active.Load(); a != nil {
		return a.name
	}
	return ""
}

// CodecID returns the bitstream of the open engine, or IDNone.
func (s *Stage) CodecID() codec.ID {
	if a := s.ctx.active.Load(); a != nil {
		return a.id
	}
	return codec.IDNone
}

// Stats returns a snapshot of the stage counters.
func (s *Stage) Stats() Stats {
	return Stats{
		PacketsIn:      s.stats.packetsIn.Load(),
		PacketsDropped: s.stats.packetsDropped.Load(),
		UnitsOut:       s.stats.unitsOut.Load(),
		SinkErrors:     s.stats.sinkErrors.Load(),
		EngineOpens:    s.stats.opens.Load(),
		EngineCloses:   s.stats.closes.Load(),
	}
}

// encode runs one input through the context. A packet is released once it
// has been consumed, whatever the outcome.
func (s *Stage) encode(in Input) {
	if in.IsFlush() {
		s.ctx.close()
		return
	}
	p := in.packet
	if p == nil {
		return
	}
	defer p.Release()

	const api = "encoder.Stage.encode"
	start := time.Now()
	s.stats.packetsIn.Add(1)
	metrics.PacketsTotal.Inc()

	if err := s.ctx.open(p.Format); err != nil {
		s.drop("open")
		return
	}
	c := s.ctx
	if err := c.frame.ensure(c.cfg, c.engine.FrameSize()); err != nil {
		s.drop("buffer")
		return
	}
	if err := c.frame.fill(p, c.cfg.SampleRate); err != nil {
		diag(s.log, zapcore.WarnLevel, MsgUnsupportedFormat, api, zap.Error(err))
		s.drop("format")
		return
	}
	if err := c.engine.SendFrame(c.frame.frame); err != nil {
		diag(s.log, zapcore.WarnLevel, MsgEncodeFailed, api, zap.Error(err))
		s.drop("encode")
		// A rejected frame leaves the engine usable; anything else means
		// the engine is broken and has to be replaced.
		if !errors.Is(err, codec.ErrFrameMismatch) {
			c.discard(err)
		}
		return
	}
	if err := c.receive(false); err != nil {
		diag(s.log, zapcore.WarnLevel, MsgEncodeFailed, api, zap.Error(err))
		c.discard(err)
	}
	metrics.EncodeDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
}

func (s *Stage) drop(reason string) {
	s.stats.packetsDropped.Add(1)
	metrics.PacketsDroppedTotal.WithLabelValues(reason).Inc()
}

// emit forwards one unit. A failing sink costs that unit only.
func (s *Stage) emit(u media.Unit) {
	s.stats.unitsOut.Add(1)
	metrics.UnitsTotal.Inc()
	metrics.UnitBytesTotal.Add(float64(len(u.Data)))
	if err := s.sink.WriteUnit(u); err != nil {
		s.stats.sinkErrors.Add(1)
		metrics.SinkErrorsTotal.Inc()
		diag(s.log, zapcore.WarnLevel, MsgSinkFailed, "encoder.Stage.emit",
			zap.Int64("pts", u.PTS), zap.Error(err))
	}
}
