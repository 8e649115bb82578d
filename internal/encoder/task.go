package encoder

import "go.uber.org/zap"

// State is the lifecycle state of the stage's worker.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// State returns the worker state.
func (s *Stage) State() State {
	return State(s.state.Load())
}

// Start launches the worker goroutine.
func (s *Stage) Start() error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	s.log.Info("stage started")
	go s.loop()
	return nil
}

// RequestPause asks the worker to flush and stop consuming. It reports
// whether the stage was running.
func (s *Stage) RequestPause() bool {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StatePaused)) {
		return false
	}
	s.signal()
	return true
}

// Resume undoes RequestPause.
func (s *Stage) Resume() bool {
	if !s.state.CompareAndSwap(int32(StatePaused), int32(StateRunning)) {
		return false
	}
	s.signal()
	return true
}

// RequestStop asks the worker to flush, close the engine and exit. It does
// not wait; use Join.
func (s *Stage) RequestStop() {
	s.stopOnce.Do(func() {
		prev := State(s.state.Swap(int32(StateStopping)))
		close(s.stop)
		if prev == StateIdle {
			s.state.Store(int32(StateStopped))
			close(s.done)
		}
	})
}

// Join blocks until the worker has exited.
func (s *Stage) Join() {
	<-s.done
}

// Done is closed once the worker has exited.
func (s *Stage) Done() <-chan struct{} {
	return s.done
}

// Close stops the worker and waits for it.
func (s *Stage) Close() error {
	s.RequestStop()
	s.Join()
	return nil
}

func (s *Stage) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Stage) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Stage) loop() {
	defer func() {
		s.ctx.close()
		s.state.Store(int32(StateStopped))
		s.log.Info("stage stopped", zap.Uint64("packets", s.stats.packetsIn.Load()),
			zap.Uint64("units", s.stats.unitsOut.Load()))
		close(s.done)
	}()

	for !s.stopping() {
		src := s.source()
		if s.State() == StatePaused || src == nil {
			s.suspend()
			select {
			case <-s.wake:
			case <-s.stop:
				return
			}
			continue
		}
		s.suspended = false
		s.consume(src)
	}
}

// suspend flushes once per pause or detach.
func (s *Stage) suspend() {
	if s.suspended {
		return
	}
	s.suspended = true
	s.encode(Flush())
}

// consume waits for input and encodes everything queued while the stage is
// still running.
func (s *Stage) consume(src Source) {
	src.WaitForPush(s.pollTimeout)
	for s.State() == StateRunning && !s.stopping() {
		p := s.next()
		if p == nil {
			return
		}
		s.encode(Submit(p))
	}
}
