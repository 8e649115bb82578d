// Package codec defines the contract between the encoding stage and the
// external engines that actually produce bitstreams, plus a registry for
// locating engines by name.
//
// Engines follow a send/receive model: raw frames go in through SendFrame,
// encoded units come out of ReceiveUnit. An engine may hold input back, so a
// frame can produce zero, one or several units. Sending a nil frame signals
// end of stream; the engine then hands out whatever it still holds and
// reports ErrEOF.
package codec

import (
	"errors"
	"fmt"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

var (
	// ErrAgain means the engine has no output ready and needs more input.
	ErrAgain = errors.New("codec: output not ready")
	// ErrEOF means the engine was flushed and has no more output.
	ErrEOF = errors.New("codec: end of stream")
	// ErrInvalidConfig means the engine cannot run with the given config.
	ErrInvalidConfig = errors.New("codec: invalid config")
	// ErrFrameMismatch means a frame's shape does not match the engine config.
	ErrFrameMismatch = errors.New("codec: frame does not match config")
)

// ID identifies the bitstream an engine produces.
type ID int

const (
	IDNone ID = iota
	IDOpus
	IDPCMS16LE
	IDAAC
)

func (id ID) String() string {
	switch id {
	case IDOpus:
		return "opus"
	case IDPCMS16LE:
		return "pcm_s16le"
	case IDAAC:
		return "aac"
	default:
		return "none"
	}
}

// ClockRate returns the RTP clock rate of the bitstream, or 0 when it follows
// the sample rate.
func (id ID) ClockRate() uint32 {
	if id == IDOpus {
		return 48000
	}
	return 0
}

// Config is the engine configuration object.
type Config struct {
	SampleFormat  media.SampleFormat
	BitRate       int // bits per second
	SampleRate    int
	ChannelLayout media.ChannelLayout
	Channels      int
	FrameSizeMs   int
}

// Format returns the raw input format the config accepts.
func (c *Config) Format() media.Format {
	return media.Format{
		SampleRate:   c.SampleRate,
		Channels:     c.Channels,
		SampleFormat: c.SampleFormat,
	}
}

// Validate checks the fields every engine relies on.
func (c *Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	case c.Channels <= 0:
		return fmt.Errorf("%w: %d channels", ErrInvalidConfig, c.Channels)
	case c.ChannelLayout != 0 && c.ChannelLayout.Channels() != c.Channels:
		return fmt.Errorf("%w: layout %s does not carry %d channels", ErrInvalidConfig, c.ChannelLayout, c.Channels)
	case c.SampleFormat.BytesPerSample() == 0:
		return fmt.Errorf("%w: sample format %s", ErrInvalidConfig, c.SampleFormat)
	case c.BitRate < 0:
		return fmt.Errorf("%w: bit rate %d", ErrInvalidConfig, c.BitRate)
	}
	return nil
}

// FrameSamples returns the samples per channel of one FrameSizeMs frame.
func (c *Config) FrameSamples() int {
	return c.SampleRate * c.FrameSizeMs / 1000
}

// Frame is one chunk of raw interleaved samples submitted to an engine.
type Frame struct {
	Data      []byte
	NbSamples int // per channel
	Format    media.SampleFormat
	Layout    media.ChannelLayout
	PTS       int64
}

// Engine is an open encoder instance.
type Engine interface {
	// FrameSize returns the samples per channel the engine encodes at a time,
	// or 0 when it accepts any size.
	FrameSize() int
	// SendFrame submits a frame; nil means end of stream.
	SendFrame(f *Frame) error
	// ReceiveUnit returns the next encoded unit, ErrAgain or ErrEOF.
	ReceiveUnit() (media.Unit, error)
	// Close releases the engine. Safe to call more than once.
	Close() error
}

// Codec is a named factory for engines.
type Codec interface {
	Name() string
	LongName() string
	ID() ID
	// NewConfig allocates a configuration object holding the codec's defaults.
	NewConfig() (*Config, error)
	// Open activates an engine with the given configuration.
	Open(cfg *Config) (Engine, error)
}
