package encoder

import (
	"fmt"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/codec"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

// maxFrameBytes bounds the initial allocation of one frame.
const maxFrameBytes = 1 << 20

// FrameShape is the part of a FrameBuffer copied from the codec config.
type FrameShape struct {
	Capacity int // samples per channel, 0 when the engine takes any size
	Format   media.SampleFormat
	Layout   media.ChannelLayout
}

// FrameBuffer is the reusable frame the stage hands to the engine. Its shape
// is only written right after the owning context opens an engine; every
// other call reuses it unchanged.
type FrameBuffer struct {
	shape    FrameShape
	channels int

	needsReconfigure bool
	frame            *codec.Frame
	reconfigured     int
}

// markReconfigure is called once per Open transition.
func (b *FrameBuffer) markReconfigure() {
	b.needsReconfigure = true
}

// ensure allocates the frame on first use after an open and applies the
// shape while the reconfigure flag is set. On failure nothing is changed.
func (b *FrameBuffer) ensure(cfg *codec.Config, frameSize int) error {
	if !b.needsReconfigure {
		if b.frame == nil {
			return fmt.Errorf("%w: no shape applied", ErrBufferAllocation)
		}
		return nil
	}

	size := frameSize * cfg.Channels * cfg.SampleFormat.BytesPerSample()
	if frameSize < 0 || size > maxFrameBytes {
		return fmt.Errorf("%w: %d samples of %d x %s", ErrBufferAllocation, frameSize, cfg.Channels, cfg.SampleFormat)
	}
	if b.frame == nil {
		b.frame = &codec.Frame{}
	}
	if cap(b.frame.Data) < size {
		b.frame.Data = make([]byte, 0, size)
	}

	layout := cfg.ChannelLayout
	if layout == 0 {
		layout = media.LayoutForChannels(cfg.Channels)
	}
	b.shape = FrameShape{Capacity: frameSize, Format: cfg.SampleFormat, Layout: layout}
	b.channels = cfg.Channels
	b.frame.Format = cfg.SampleFormat
	b.frame.Layout = layout
	b.needsReconfigure = false
	b.reconfigured++
	return nil
}

// fill copies the packet's samples into the frame. The packet must match the
// shape and the config's sample rate.
func (b *FrameBuffer) fill(p *media.Packet, sampleRate int) error {
	f := p.Format
	if f.SampleFormat != b.shape.Format || f.Channels != b.channels || f.SampleRate != sampleRate {
		return fmt.Errorf("%w: got %s, engine takes %dHz/%dch/%s",
			ErrUnsupportedFormat, f, sampleRate, b.channels, b.shape.Format)
	}
	n := p.Samples()
	b.frame.Data = append(b.frame.Data[:0], p.Data[:n*f.FrameBytes()]...)
	b.frame.NbSamples = n
	b.frame.PTS = p.Timestamp
	return nil
}

// release drops the frame together with the engine it was shaped for.
func (b *FrameBuffer) release() {
	b.frame = nil
	b.shape = FrameShape{}
	b.channels = 0
	b.needsReconfigure = false
}

// Shape returns the currently applied shape.
func (b *FrameBuffer) Shape() FrameShape {
	return b.shape
}
