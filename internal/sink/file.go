package sink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

// FrameWriter writes each unit as a little-endian uint16 length followed by
// the unit bytes.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter returns a FrameWriter writing to w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

func (f *FrameWriter) WriteUnit(u media.Unit) error {
	if len(u.Data) > math.MaxUint16 {
		return fmt.Errorf("unit of %d bytes does not fit a frame", len(u.Data))
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(u.Data)))
	if _, err := f.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := f.w.Write(u.Data)
	return err
}

// FrameReader reads back a file written by FrameWriter.
type FrameReader struct {
	r      io.Reader
	header [2]byte
}

// NewFrameReader returns a FrameReader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// Next returns the next unit payload. It returns io.EOF at a clean end of
// file and io.ErrUnexpectedEOF when the file stops inside a frame.
func (f *FrameReader) Next() ([]byte, error) {
	if _, err := io.ReadFull(f.r, f.header[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.LittleEndian.Uint16(f.header[:]))
	if _, err := io.ReadFull(f.r, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("frame of %d bytes: %w", len(data), err)
	}
	return data, nil
}
