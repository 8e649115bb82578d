package media

import (
	"sync"
	"sync/atomic"
)

// Packet is one unit of raw interleaved samples handed from a producer to the
// encoding stage. Packets are reference counted: the producer holds the first
// reference, every extra holder calls Retain, and each holder calls Release
// exactly once when done. Consumers must treat Data as read-only.
type Packet struct {
	Data      []byte
	Format    Format
	Timestamp int64 // in samples at Format.SampleRate

	refs   atomic.Int32
	pooled bool
}

// maxPooledBytes keeps oversized packets out of the pool.
const maxPooledBytes = 64 << 10

var packetPool = sync.Pool{
	New: func() interface{} {
		return &Packet{Data: make([]byte, 0, 3840), pooled: true}
	},
}

// AcquirePacket takes a packet with room for size bytes from the pool. The
// caller owns the only reference.
func AcquirePacket(format Format, size int, timestamp int64) *Packet {
	p := packetPool.Get().(*Packet)
	if cap(p.Data) < size {
		p.Data = make([]byte, size)
	}
	p.Data = p.Data[:size]
	p.Format = format
	p.Timestamp = timestamp
	p.refs.Store(1)
	return p
}

// NewPacket wraps data without copying. The packet never returns to the pool.
func NewPacket(data []byte, format Format, timestamp int64) *Packet {
	p := &Packet{Data: data, Format: format, Timestamp: timestamp}
	p.refs.Store(1)
	return p
}

// Samples returns the number of samples per channel in the packet.
func (p *Packet) Samples() int {
	fb := p.Format.FrameBytes()
	if fb == 0 {
		return 0
	}
	return len(p.Data) / fb
}

// Retain adds a reference.
func (p *Packet) Retain() *Packet {
	p.refs.Add(1)
	return p
}

// Release drops a reference. The last release returns pooled packets to the
// pool; the packet must not be used afterwards.
func (p *Packet) Release() {
	n := p.refs.Add(-1)
	if n < 0 {
		panic("media: packet released more times than retained")
	}
	if n > 0 || !p.pooled {
		return
	}
	if cap(p.Data) > maxPooledBytes {
		return
	}
	p.Data = p.Data[:0]
	p.Format = Format{}
	p.Timestamp = 0
	packetPool.Put(p)
}

// Refs returns the current reference count.
func (p *Packet) Refs() int32 {
	return p.refs.Load()
}
