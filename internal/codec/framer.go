package codec

import (
	"fmt"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

// framer regroups submitted frames into fixed-size frames. Leftover samples
// are held until the next submission or until rest is called.
type framer struct {
	frameSamples int // per channel; 0 passes frames through unchanged
	sampleBytes  int // one sample across all channels
	format       media.SampleFormat
	channels     int

	pending []byte
	pts     int64
}

func newFramer(cfg *Config, frameSamples int) *framer {
	return &framer{
		frameSamples: frameSamples,
		sampleBytes:  cfg.Channels * cfg.SampleFormat.BytesPerSample(),
		format:       cfg.SampleFormat,
		channels:     cfg.Channels,
	}
}

// push checks the frame shape and queues its samples.
func (f *framer) push(fr *Frame) error {
	if fr.Format != f.format {
		return fmt.Errorf("%w: sample format %s, want %s", ErrFrameMismatch, fr.Format, f.format)
	}
	if fr.Layout != 0 && fr.Layout.Channels() != f.channels {
		return fmt.Errorf("%w: layout %s, want %d channels", ErrFrameMismatch, fr.Layout, f.channels)
	}
	n := fr.NbSamples * f.sampleBytes
	if n > len(fr.Data) {
		return fmt.Errorf("%w: %d samples need %d bytes, have %d", ErrFrameMismatch, fr.NbSamples, n, len(fr.Data))
	}
	if len(f.pending) == 0 {
		f.pts = fr.PTS
	}
	f.pending = append(f.pending, fr.Data[:n]...)
	return nil
}

// next returns the next complete frame.
func (f *framer) next() (data []byte, pts int64, samples int, ok bool) {
	if len(f.pending) == 0 {
		return nil, 0, 0, false
	}
	size := f.frameSamples * f.sampleBytes
	if size == 0 {
		size = len(f.pending)
	}
	if len(f.pending) < size {
		return nil, 0, 0, false
	}
	data = append([]byte(nil), f.pending[:size]...)
	pts = f.pts
	samples = size / f.sampleBytes
	f.pending = append(f.pending[:0], f.pending[size:]...)
	f.pts += int64(samples)
	return data, pts, samples, true
}

// rest returns whatever is held back and empties the framer.
func (f *framer) rest() (data []byte, pts int64, samples int) {
	data = append([]byte(nil), f.pending...)
	pts = f.pts
	samples = len(data) / f.sampleBytes
	f.pending = f.pending[:0]
	return data, pts, samples
}

// unitQueue is the FIFO of encoded units an engine hands out on receive.
type unitQueue struct {
	units []media.Unit
	eof   bool
}

func (q *unitQueue) push(u media.Unit) {
	q.units = append(q.units, u)
}

func (q *unitQueue) pop() (media.Unit, error) {
	if len(q.units) > 0 {
		u := q.units[0]
		q.units[0] = media.Unit{}
		q.units = q.units[1:]
		return u, nil
	}
	if q.eof {
		return media.Unit{}, ErrEOF
	}
	return media.Unit{}, ErrAgain
}
