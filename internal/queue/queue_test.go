package queue

import (
	"testing"
	"time"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/media"
)

var mono16k = media.Format{SampleRate: 16000, Channels: 1, SampleFormat: media.SampleFormatS16}

func packet(ts int64) *media.Packet {
	return media.NewPacket(make([]byte, 640), mono16k, ts)
}

func TestNewCapacity(t *testing.T) {
	q := New(5)
	if q.Capacity() != 5 {
		t.Errorf("expected capacity 5, got %d", q.Capacity())
	}
	if New(0).Capacity() != 1 {
		t.Error("expected capacity to be clamped to 1")
	}
}

func TestNextEmpty(t *testing.T) {
	q := New(5)
	if q.HasData() {
		t.Error("expected empty queue to have no data")
	}
	if p := q.Next(); p != nil {
		t.Errorf("expected nil from empty queue, got packet at %d", p.Timestamp)
	}
}

func TestFIFOOrder(t *testing.T) {
	q := New(4)
	for i := int64(0); i < 3; i++ {
		q.Push(packet(i))
	}
	for i := int64(0); i < 3; i++ {
		p := q.Next()
		if p == nil {
			t.Fatalf("expected packet %d, got nil", i)
		}
		if p.Timestamp != i {
			t.Errorf("expected timestamp %d, got %d", i, p.Timestamp)
		}
	}
	if q.HasData() {
		t.Error("expected queue to be drained")
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	q := New(2)
	first := packet(0)
	q.Push(first)
	q.Push(packet(1))
	if dropped := q.Push(packet(2)); !dropped {
		t.Error("expected push into a full queue to drop")
	}
	if first.Refs() != 0 {
		t.Errorf("expected evicted packet to be released, refs=%d", first.Refs())
	}
	if q.Dropped() != 1 {
		t.Errorf("expected 1 dropped, got %d", q.Dropped())
	}
	if p := q.Next(); p.Timestamp != 1 {
		t.Errorf("expected oldest surviving packet 1, got %d", p.Timestamp)
	}
	if p := q.Next(); p.Timestamp != 2 {
		t.Errorf("expected packet 2, got %d", p.Timestamp)
	}
}

func TestWaitForPushTimesOut(t *testing.T) {
	q := New(1)
	start := time.Now()
	q.WaitForPush(20 * time.Millisecond)
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected to wait for the timeout, returned after %v", elapsed)
	}
}

func TestWaitForPushWakesOnPush(t *testing.T) {
	q := New(1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(packet(0))
	}()
	start := time.Now()
	q.WaitForPush(5 * time.Second)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("expected push to wake the waiter, waited %v", elapsed)
	}
	if !q.HasData() {
		t.Error("expected data after wake-up")
	}
}

func TestReset(t *testing.T) {
	q := New(3)
	a, b := packet(0), packet(1)
	q.Push(a)
	q.Push(b)
	q.Reset()
	if q.Len() != 0 {
		t.Errorf("expected empty queue after reset, got %d", q.Len())
	}
	if a.Refs() != 0 || b.Refs() != 0 {
		t.Error("expected reset to release queued packets")
	}
}
