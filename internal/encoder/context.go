package encoder

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/codec"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/metrics"
)

// ContextState is the lifecycle state of a CodecContext.
type ContextState int

const (
	ContextClosed ContextState = iota
	ContextOpen
)

func (s ContextState) String() string {
	if s == ContextOpen {
		return "open"
	}
	return "closed"
}

// Params are the encoding parameters written into a fresh engine config.
type Params struct {
	SampleFormat  media.SampleFormat
	BitRate       int
	SampleRate    int
	ChannelLayout media.ChannelLayout
	FrameSizeMs   int // 0 keeps the codec's default
}

// DefaultParams returns the parameters the stage opens engines with unless
// told otherwise: s16, 64 kbit/s, 48 kHz, stereo.
func DefaultParams() Params {
	return Params{
		SampleFormat:  media.SampleFormatS16,
		BitRate:       64000,
		SampleRate:    48000,
		ChannelLayout: media.LayoutStereo,
	}
}

// activeEngine describes the open engine for readers outside the worker.
type activeEngine struct {
	name string
	id   codec.ID
}

// CodecContext holds at most one open engine and the frame buffer shaped for
// it. It is owned by the worker goroutine and never locked.
type CodecContext struct {
	log        *zap.Logger
	registry   *codec.Registry
	engineName string
	params     Params
	adapt      bool
	emit       func(media.Unit)
	stats      *counters

	codec  codec.Codec
	cfg    *codec.Config
	engine codec.Engine
	format media.Format
	frame  FrameBuffer

	active atomic.Pointer[activeEngine]
}

func newCodecContext(log *zap.Logger, registry *codec.Registry, engineName string, params Params, adapt bool, stats *counters, emit func(media.Unit)) *CodecContext {
	return &CodecContext{
		log:        log,
		registry:   registry,
		engineName: engineName,
		params:     params,
		adapt:      adapt,
		stats:      stats,
		emit:       emit,
	}
}

// State reports whether an engine is open.
func (c *CodecContext) State() ContextState {
	if c.engine != nil {
		return ContextOpen
	}
	return ContextClosed
}

// Format returns the input format the open engine was configured for.
func (c *CodecContext) Format() media.Format {
	return c.format
}

// open makes sure an engine configured for input format f is active. An
// engine already open for f is kept; one open for another format is drained
// and closed first. On failure the context is left Closed.
func (c *CodecContext) open(f media.Format) error {
	if c.engine != nil && c.format == f {
		return nil
	}
	c.close()

	const api = "encoder.CodecContext.open"
	cd, cfg, err := c.initEncoder(f)
	if err != nil {
		return err
	}
	eng, err := cd.Open(cfg)
	if err != nil {
		diag(c.log, zapcore.WarnLevel, MsgCodecOpenFailed, api,
			zap.String("engine", cd.Name()), zap.Error(err))
		metrics.EngineFailuresTotal.WithLabelValues("open").Inc()
		return fmt.Errorf("%w: %s: %w", ErrOpenFailed, cd.Name(), err)
	}

	c.codec, c.cfg, c.engine, c.format = cd, cfg, eng, f
	c.frame.markReconfigure()
	c.active.Store(&activeEngine{name: cd.Name(), id: cd.ID()})
	c.stats.opens.Add(1)
	metrics.EngineOpensTotal.WithLabelValues(cd.Name()).Inc()
	metrics.EngineOpen.Set(1)
	return nil
}

// initEncoder locates the engine and prepares its config.
func (c *CodecContext) initEncoder(f media.Format) (codec.Codec, *codec.Config, error) {
	const api = "encoder.CodecContext.initEncoder"
	cd, ok := c.registry.Lookup(c.engineName)
	if !ok {
		diag(c.log, zapcore.WarnLevel, MsgEncoderNotFound, api, zap.String("engine", c.engineName))
		metrics.EngineFailuresTotal.WithLabelValues("lookup").Inc()
		return nil, nil, fmt.Errorf("%w: %q", ErrEngineNotFound, c.engineName)
	}
	cfg, err := cd.NewConfig()
	if err != nil || cfg == nil {
		diag(c.log, zapcore.WarnLevel, MsgContextAllocFailed, api,
			zap.String("engine", cd.Name()), zap.Error(err))
		metrics.EngineFailuresTotal.WithLabelValues("config").Inc()
		return nil, nil, fmt.Errorf("%w: %s", ErrContextAllocation, cd.Name())
	}
	c.applyParams(cfg, f)
	diag(c.log, zapcore.InfoLevel, MsgEncoderInitSuccess, api,
		zap.String("engine", cd.LongName()), zap.Stringer("input", f))
	return cd, cfg, nil
}

func (c *CodecContext) applyParams(cfg *codec.Config, f media.Format) {
	p := c.params
	cfg.SampleFormat = p.SampleFormat
	cfg.BitRate = p.BitRate
	cfg.SampleRate = p.SampleRate
	cfg.ChannelLayout = p.ChannelLayout
	cfg.Channels = p.ChannelLayout.Channels()
	if p.FrameSizeMs > 0 {
		cfg.FrameSizeMs = p.FrameSizeMs
	}
	if c.adapt && f.Valid() {
		cfg.SampleFormat = f.SampleFormat
		cfg.SampleRate = f.SampleRate
		cfg.Channels = f.Channels
		cfg.ChannelLayout = media.LayoutForChannels(f.Channels)
	}
}

// close drains the open engine into the sink and releases it together with
// the frame buffer. Closing a Closed context does nothing.
func (c *CodecContext) close() {
	if c.engine == nil {
		return
	}
	start := time.Now()
	c.drain()
	c.release("encoder.CodecContext.close")
	metrics.FlushDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
}

// discard releases an engine that can no longer encode. It is not drained,
// so nothing it still holds reaches the sink. The next packet opens a fresh
// engine.
func (c *CodecContext) discard(cause error) {
	if c.engine == nil {
		return
	}
	const api = "encoder.CodecContext.discard"
	diag(c.log, zapcore.InfoLevel, MsgEngineDiscarded, api,
		zap.String("engine", c.codec.Name()), zap.Error(cause))
	metrics.EngineFailuresTotal.WithLabelValues("encode").Inc()
	c.release(api)
}

// release closes the engine handle and returns the context to Closed.
func (c *CodecContext) release(api string) {
	if err := c.engine.Close(); err != nil {
		diag(c.log, zapcore.WarnLevel, MsgEngineCloseFailed, api,
			zap.String("engine", c.codec.Name()), zap.Error(err))
	}
	c.codec, c.cfg, c.engine = nil, nil, nil
	c.format = media.Format{}
	c.frame.release()
	c.active.Store(nil)
	c.stats.closes.Add(1)
	metrics.EngineClosesTotal.Inc()
	metrics.EngineOpen.Set(0)
}

// drain signals end of stream and forwards everything the engine still holds.
func (c *CodecContext) drain() {
	const api = "encoder.CodecContext.drain"
	if err := c.engine.SendFrame(nil); err != nil && !errors.Is(err, codec.ErrEOF) {
		diag(c.log, zapcore.WarnLevel, MsgDrainFailed, api,
			zap.String("engine", c.codec.Name()), zap.Error(err))
		return
	}
	if err := c.receive(true); err != nil {
		diag(c.log, zapcore.WarnLevel, MsgDrainFailed, api,
			zap.String("engine", c.codec.Name()), zap.Error(err))
	}
}

// receive forwards units until the engine wants more input. End of stream is
// expected only while draining; at any other time the engine has died and
// ErrEngineExhausted is returned.
func (c *CodecContext) receive(draining bool) error {
	for {
		u, err := c.engine.ReceiveUnit()
		switch {
		case err == nil:
			c.emit(u)
		case errors.Is(err, codec.ErrAgain):
			return nil
		case errors.Is(err, codec.ErrEOF):
			if draining {
				return nil
			}
			return ErrEngineExhausted
		default:
			return err
		}
	}
}
