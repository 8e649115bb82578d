// Package media holds the passive value types shared by the encoding stage:
// sample formats, channel layouts, raw input packets and encoded output units.
package media

import "fmt"

// SampleFormat is the in-memory representation of one audio sample.
type SampleFormat int

const (
	SampleFormatNone SampleFormat = iota
	SampleFormatU8                // unsigned 8-bit
	SampleFormatS16               // signed 16-bit little endian
	SampleFormatS32               // signed 32-bit little endian
	SampleFormatF32               // 32-bit float
	SampleFormatF64               // 64-bit float
)

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatU8:
		return "u8"
	case SampleFormatS16:
		return "s16"
	case SampleFormatS32:
		return "s32"
	case SampleFormatF32:
		return "f32"
	case SampleFormatF64:
		return "f64"
	default:
		return "none"
	}
}

// BytesPerSample returns the size of a single sample of one channel.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatU8:
		return 1
	case SampleFormatS16:
		return 2
	case SampleFormatS32, SampleFormatF32:
		return 4
	case SampleFormatF64:
		return 8
	default:
		return 0
	}
}

// SampleFormatFromBits maps a bit depth to the sample format producers use
// for it. 32 and 64 bits are floating point.
func SampleFormatFromBits(bits int) SampleFormat {
	switch bits {
	case 8:
		return SampleFormatU8
	case 16:
		return SampleFormatS16
	case 32:
		return SampleFormatF32
	case 64:
		return SampleFormatF64
	default:
		return SampleFormatNone
	}
}

// ChannelLayout is a bitmask of speaker positions.
type ChannelLayout uint64

const (
	ChannelFrontLeft   ChannelLayout = 1 << 0
	ChannelFrontRight  ChannelLayout = 1 << 1
	ChannelFrontCenter ChannelLayout = 1 << 2

	LayoutMono   = ChannelFrontCenter
	LayoutStereo = ChannelFrontLeft | ChannelFrontRight
)

// Channels returns the number of channels in the layout.
func (l ChannelLayout) Channels() int {
	n := 0
	for v := l; v != 0; v &= v - 1 {
		n++
	}
	return n
}

func (l ChannelLayout) String() string {
	switch l {
	case LayoutMono:
		return "mono"
	case LayoutStereo:
		return "stereo"
	case 0:
		return "none"
	default:
		return fmt.Sprintf("%d channels", l.Channels())
	}
}

// LayoutForChannels returns the default layout for a channel count, or 0 when
// there is none.
func LayoutForChannels(n int) ChannelLayout {
	switch n {
	case 1:
		return LayoutMono
	case 2:
		return LayoutStereo
	case 3:
		return LayoutStereo | ChannelFrontCenter
	default:
		return 0
	}
}

// Format describes the sample layout of a packet. Two formats are the same
// exactly when they compare equal.
type Format struct {
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat
}

// Valid reports whether every field is set.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0 && f.SampleFormat.BytesPerSample() > 0
}

// FrameBytes returns the size of one sample across all channels.
func (f Format) FrameBytes() int {
	return f.Channels * f.SampleFormat.BytesPerSample()
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.SampleFormat)
}
