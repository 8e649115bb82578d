// Package queue is the bounded packet queue between an upstream producer and
// the encoding stage.
package queue

import (
	"sync"
	"time"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/metrics"
)

// Queue holds a fixed number of packets in a circular buffer. When full, Push
// overwrites the oldest packet and releases it. It is safe for concurrent use
// by one producer and one consumer.
type Queue struct {
	mu       sync.Mutex
	buf      []*media.Packet
	readPos  int
	size     int
	capacity int
	dropped  uint64
	pushed   chan struct{}
}

// New creates a queue holding up to capacity packets.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		buf:      make([]*media.Packet, capacity),
		capacity: capacity,
		pushed:   make(chan struct{}, 1),
	}
}

// Push appends p, taking over the caller's reference. It reports whether an
// older packet was dropped to make room.
func (q *Queue) Push(p *media.Packet) bool {
	q.mu.Lock()
	var evicted *media.Packet
	if q.size == q.capacity {
		evicted = q.buf[q.readPos]
		q.buf[q.readPos] = nil
		q.readPos = (q.readPos + 1) % q.capacity
		q.size--
		q.dropped++
	}
	q.buf[(q.readPos+q.size)%q.capacity] = p
	q.size++
	q.mu.Unlock()

	if evicted != nil {
		evicted.Release()
		metrics.QueueOverflowTotal.Inc()
	}
	select {
	case q.pushed <- struct{}{}:
	default:
	}
	return evicted != nil
}

// HasData reports whether Next would return a packet.
func (q *Queue) HasData() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size > 0
}

// WaitForPush blocks until a packet is available or timeout elapses. It may
// return early without data; callers re-check HasData.
func (q *Queue) WaitForPush(timeout time.Duration) {
	if q.HasData() {
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.pushed:
	case <-timer.C:
	}
}

// Next removes and returns the oldest packet, handing its reference to the
// caller. It returns nil when the queue is empty.
func (q *Queue) Next() *media.Packet {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return nil
	}
	p := q.buf[q.readPos]
	q.buf[q.readPos] = nil
	q.readPos = (q.readPos + 1) % q.capacity
	q.size--
	return p
}

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Capacity returns the maximum number of queued packets.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Dropped returns how many packets were overwritten before being read.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Reset releases every queued packet.
func (q *Queue) Reset() {
	q.mu.Lock()
	var pending []*media.Packet
	for q.size > 0 {
		pending = append(pending, q.buf[q.readPos])
		q.buf[q.readPos] = nil
		q.readPos = (q.readPos + 1) % q.capacity
		q.size--
	}
	q.mu.Unlock()

	for _, p := range pending {
		p.Release()
	}
}
