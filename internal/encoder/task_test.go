package encoder

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/queue"
	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/testutil"
)

func TestStageLifecycle(t *testing.T) {
	baseline := testutil.GoroutineBaseline()

	fc := &fakeCodec{hold: true}
	s, sink := newTestStage(t, fc, Options{PollTimeout: 10 * time.Millisecond})
	q := queue.New(16)
	s.Attach(q)

	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %s", s.State())
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	for i := 0; i < 3; i++ {
		q.Push(packet(stereo48, 960, int64(i*960)))
	}
	testutil.Eventually(t, 2*time.Second, func() bool { return s.Stats().PacketsIn == 3 }, "packets consumed")

	// pausing drains the held unit and closes the engine
	if !s.RequestPause() {
		t.Fatal("expected pause to take effect")
	}
	testutil.Eventually(t, 2*time.Second, func() bool { return s.Stats().EngineCloses == 1 }, "engine closed on pause")
	if diff := cmp.Diff([]int64{0, 960, 1920}, sink.pts()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	q.Push(packet(stereo48, 960, 2880))
	time.Sleep(30 * time.Millisecond)
	if got := s.Stats().PacketsIn; got != 3 {
		t.Errorf("expected no consumption while paused, got %d packets", got)
	}

	if !s.Resume() {
		t.Fatal("expected resume to take effect")
	}
	testutil.Eventually(t, 2*time.Second, func() bool { return s.Stats().PacketsIn == 4 }, "packet consumed after resume")

	s.RequestStop()
	s.Join()
	if s.State() != StateStopped {
		t.Errorf("expected stopped, got %s", s.State())
	}
	st := s.Stats()
	if st.EngineOpens != 2 || st.EngineCloses != 2 {
		t.Errorf("expected 2 opens and 2 closes, got %+v", st)
	}
	if diff := cmp.Diff([]int64{0, 960, 1920, 2880}, sink.pts()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	testutil.AssertNoGoroutineLeaks(t, baseline, 2)
}

func TestStopBeforeStart(t *testing.T) {
	s, _ := newTestStage(t, &fakeCodec{}, Options{})
	s.RequestStop()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("expected done to close without a worker")
	}
	if s.State() != StateStopped {
		t.Errorf("expected stopped, got %s", s.State())
	}
	if err := s.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected start to fail after stop, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestStopWhilePaused(t *testing.T) {
	s, _ := newTestStage(t, &fakeCodec{}, Options{PollTimeout: 10 * time.Millisecond})
	s.Attach(queue.New(4))
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.RequestPause()
	if !s.Resume() {
		t.Fatal("expected resume from paused")
	}
	s.RequestPause()

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not complete while paused")
	}
	if s.RequestPause() || s.Resume() {
		t.Error("expected pause and resume to be rejected after stop")
	}
}

func TestDetachFlushesEngine(t *testing.T) {
	fc := &fakeCodec{hold: true}
	s, sink := newTestStage(t, fc, Options{PollTimeout: 10 * time.Millisecond})
	q := queue.New(4)
	s.Attach(q)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	q.Push(packet(stereo48, 960, 0))
	testutil.Eventually(t, 2*time.Second, func() bool { return s.Stats().PacketsIn == 1 }, "packet consumed")
	if sink.len() != 0 {
		t.Fatalf("expected the unit to be held, got %d", sink.len())
	}

	s.Detach()
	testutil.Eventually(t, 2*time.Second, func() bool { return sink.len() == 1 }, "held unit drained on detach")

	q2 := queue.New(4)
	q2.Push(packet(stereo48, 960, 960))
	s.Attach(q2)
	testutil.Eventually(t, 2*time.Second, func() bool { return s.Stats().EngineOpens == 2 }, "engine reopened")
}
