package codec

import (
	"errors"
	"fmt"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

// PCMName is the registry name of the raw s16le engine.
const PCMName = "pcm_s16le"

var errEngineClosed = errors.New("codec: engine closed")

func init() {
	Default.Register(PCM())
}

type pcmCodec struct{}

// PCM returns the raw s16le engine. It cuts the input into FrameSizeMs units
// and emits a short final unit on flush.
func PCM() Codec { return pcmCodec{} }

func (pcmCodec) Name() string     { return PCMName }
func (pcmCodec) LongName() string { return "PCM signed 16-bit little-endian" }
func (pcmCodec) ID() ID           { return IDPCMS16LE }

func (pcmCodec) NewConfig() (*Config, error) {
	return &Config{
		SampleFormat:  media.SampleFormatS16,
		SampleRate:    48000,
		ChannelLayout: media.LayoutStereo,
		Channels:      2,
		FrameSizeMs:   20,
	}, nil
}

func (pcmCodec) Open(cfg *Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SampleFormat != media.SampleFormatS16 {
		return nil, fmt.Errorf("%w: %s needs s16 input, got %s", ErrInvalidConfig, PCMName, cfg.SampleFormat)
	}
	return &pcmEngine{f: newFramer(cfg, cfg.FrameSamples())}, nil
}

type pcmEngine struct {
	f      *framer
	out    unitQueue
	closed bool
}

func (e *pcmEngine) FrameSize() int { return e.f.frameSamples }

func (e *pcmEngine) SendFrame(fr *Frame) error {
	if e.closed {
		return errEngineClosed
	}
	if e.out.eof {
		return ErrEOF
	}
	if fr == nil {
		if data, pts, n := e.f.rest(); n > 0 {
			e.out.push(media.Unit{Data: data, PTS: pts, Duration: n})
		}
		e.out.eof = true
		return nil
	}
	if err := e.f.push(fr); err != nil {
		return err
	}
	for {
		data, pts, n, ok := e.f.next()
		if !ok {
			return nil
		}
		e.out.push(media.Unit{Data: data, PTS: pts, Duration: n})
	}
}

func (e *pcmEngine) ReceiveUnit() (media.Unit, error) {
	if e.closed {
		return media.Unit{}, errEngineClosed
	}
	return e.out.pop()
}

func (e *pcmEngine) Close() error {
	e.closed = true
	e.out = unitQueue{}
	return nil
}
