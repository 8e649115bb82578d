package codec

import (
	"fmt"

	"github.com/hraban/opus"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/audio"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

// OpusName is the registry name of the in-process libopus engine.
const OpusName = "libopus"

// maxOpusPacket is the largest packet libopus produces for one frame.
const maxOpusPacket = 4000

func init() {
	Default.Register(Opus())
}

type opusCodec struct{}

// Opus returns the libopus engine. Input is regrouped into FrameSizeMs frames;
// a partial frame left at flush is padded with silence.
func Opus() Codec { return opusCodec{} }

func (opusCodec) Name() string     { return OpusName }
func (opusCodec) LongName() string { return "libopus Opus" }
func (opusCodec) ID() ID           { return IDOpus }

func (opusCodec) NewConfig() (*Config, error) {
	return &Config{
		SampleFormat:  media.SampleFormatS16,
		BitRate:       64000,
		SampleRate:    48000,
		ChannelLayout: media.LayoutStereo,
		Channels:      2,
		FrameSizeMs:   20,
	}, nil
}

func (opusCodec) Open(cfg *Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("%w: opus does not support %d Hz", ErrInvalidConfig, cfg.SampleRate)
	}
	if cfg.Channels > 2 {
		return nil, fmt.Errorf("%w: opus encodes at most 2 channels, got %d", ErrInvalidConfig, cfg.Channels)
	}
	if cfg.SampleFormat != media.SampleFormatS16 {
		return nil, fmt.Errorf("%w: opus needs s16 input, got %s", ErrInvalidConfig, cfg.SampleFormat)
	}
	switch cfg.FrameSizeMs {
	case 10, 20, 40, 60:
	default:
		return nil, fmt.Errorf("%w: opus frame size %d ms", ErrInvalidConfig, cfg.FrameSizeMs)
	}

	enc, err := opus.NewEncoder(cfg.SampleRate, cfg.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if cfg.BitRate > 0 {
		if err := enc.SetBitrate(cfg.BitRate); err != nil {
			return nil, fmt.Errorf("set opus bitrate: %w", err)
		}
	}
	return &opusEngine{
		enc:     enc,
		f:       newFramer(cfg, cfg.FrameSamples()),
		scratch: make([]byte, maxOpusPacket),
	}, nil
}

type opusEngine struct {
	enc     *opus.Encoder
	f       *framer
	out     unitQueue
	pcm     []int16
	scratch []byte
	closed  bool
}

func (e *opusEngine) FrameSize() int { return e.f.frameSamples }

func (e *opusEngine) SendFrame(fr *Frame) error {
	if e.closed {
		return errEngineClosed
	}
	if e.out.eof {
		return ErrEOF
	}
	if fr == nil {
		defer func() { e.out.eof = true }()
		data, pts, n := e.f.rest()
		if n == 0 {
			return nil
		}
		// pad to a whole frame
		data = append(data, make([]byte, (e.f.frameSamples-n)*e.f.sampleBytes)...)
		return e.encode(data, pts)
	}
	if err := e.f.push(fr); err != nil {
		return err
	}
	for {
		data, pts, _, ok := e.f.next()
		if !ok {
			return nil
		}
		if err := e.encode(data, pts); err != nil {
			return err
		}
	}
}

// encode runs one whole frame through libopus.
func (e *opusEngine) encode(data []byte, pts int64) error {
	e.pcm = audio.AppendInt16(e.pcm[:0], data)
	n, err := e.enc.Encode(e.pcm, e.scratch)
	if err != nil {
		return fmt.Errorf("opus encode: %w", err)
	}
	e.out.push(media.Unit{
		Data:     append([]byte(nil), e.scratch[:n]...),
		PTS:      pts,
		Duration: e.f.frameSamples,
	})
	return nil
}

func (e *opusEngine) ReceiveUnit() (media.Unit, error) {
	if e.closed {
		return media.Unit{}, errEngineClosed
	}
	return e.out.pop()
}

func (e *opusEngine) Close() error {
	e.closed = true
	e.out = unitQueue{}
	e.enc = nil
	return nil
}
