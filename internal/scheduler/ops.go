package scheduler

import (
	"github.com/me/uthreads/internal/capsule"
	"github.com/me/uthreads/pkg/model"
)

// Spawn creates a READY thread that will run entry, appended to the back of
// the ready queue. Returning from entry terminates the thread.
func (s *Scheduler) Spawn(entry func()) (model.ThreadID, error) {
	self := s.enter()
	defer s.leave(self)

	if entry == nil {
		return model.NoThread, s.fail(model.NewThreadError("spawn", model.ErrProtocol, model.NoThread,
			"entry function is nil"))
	}
	id, ok := s.ids.Allocate()
	if !ok {
		return model.NoThread, s.fail(model.NewThreadError("spawn", model.ErrCapacity, model.NoThread,
			"live-thread limit %d reached", s.ids.Max()))
	}

	t := &Thread{id: model.ThreadID(id), state: model.ThreadStateReady}
	t.ctx = capsule.Prime(func() { s.run(t, entry) })
	s.threads[t.id] = t
	s.ready = append(s.ready, t)
	s.emit(model.EventSpawn, t.id, self.id, "")
	s.settle()
	return t.id, nil
}

// Terminate ends thread id. Terminating the caller never returns.
// Terminating thread 0 releases every thread and ends the process through
// the exit hook; it never returns either.
func (s *Scheduler) Terminate(id model.ThreadID) error {
	self := s.enter()
	defer s.leave(self)

	t, ok := s.threads[id]
	if !ok {
		return s.fail(model.NewThreadError("terminate", model.ErrIdentity, id,
			"no live thread with id %d", id))
	}
	if id == model.MainThreadID {
		s.shutdown(0)
	}

	if t == self {
		if len(s.ready) == 0 && (s.mu.owner != self.id || s.mu.heir() == nil) {
			return s.fail(model.NewThreadError("terminate", model.ErrDeadlock, id,
				"no other thread can run"))
		}
		s.emit(model.EventTerminate, id, self.id, "")
		s.discard(t)
		s.restartQuantum()
		s.switchAway(discard, model.ReasonTerminate)
	}

	s.emit(model.EventTerminate, id, self.id, "")
	s.discard(t)
	t.ctx.Release()
	s.settle()
	return nil
}

// Block moves thread id out of the ready queue until resumed. Blocking the
// caller switches to the next READY thread. Thread 0 cannot be blocked.
// Blocking an explicitly blocked thread is a no-op.
func (s *Scheduler) Block(id model.ThreadID) error {
	self := s.enter()
	defer s.leave(self)

	t, ok := s.threads[id]
	if !ok {
		return s.fail(model.NewThreadError("block", model.ErrIdentity, id,
			"no live thread with id %d", id))
	}
	if id == model.MainThreadID {
		return s.fail(model.NewThreadError("block", model.ErrProtocol, id,
			"the main thread cannot be blocked"))
	}
	if t.blocked.Has(model.BlockedExplicit) {
		return nil
	}

	if t == self {
		if len(s.ready) == 0 {
			return s.fail(model.NewThreadError("block", model.ErrDeadlock, id,
				"no other thread can run"))
		}
		t.blocked = t.blocked.With(model.BlockedExplicit)
		s.emit(model.EventBlock, id, self.id, "")
		s.restartQuantum()
		s.switchAway(park, model.ReasonBlock)
		return nil
	}

	if t.state == model.ThreadStateReady {
		s.removeReady(t)
		t.setState(model.ThreadStateBlocked)
		s.blocked[id] = t
	}
	t.blocked = t.blocked.With(model.BlockedExplicit)
	s.emit(model.EventBlock, id, self.id, "")
	s.settle()
	return nil
}

// Resume clears the explicit block on thread id. The thread becomes READY
// only if it is not also waiting for the mutex. Resuming a thread that is
// not explicitly blocked is a no-op.
func (s *Scheduler) Resume(id model.ThreadID) error {
	self := s.enter()
	defer s.leave(self)

	t, ok := s.threads[id]
	if !ok {
		return s.fail(model.NewThreadError("resume", model.ErrIdentity, id,
			"no live thread with id %d", id))
	}
	if !t.blocked.Has(model.BlockedExplicit) {
		return nil
	}
	t.blocked = t.blocked.Without(model.BlockedExplicit)
	if t.blocked.Empty() {
		s.makeReady(t)
	}
	s.emit(model.EventResume, id, self.id, "")
	s.settle()
	return nil
}

// Yield gives up the rest of the caller's quantum. With nobody else READY
// the caller keeps running and starts a new quantum.
func (s *Scheduler) Yield() {
	self := s.enter()
	defer s.leave(self)

	s.restartQuantum()
	s.switchAway(requeue, model.ReasonYield)
}

// Checkpoint is a preemption point: a pending tick switches threads here.
// Long-running thread bodies call it in their loops.
func (s *Scheduler) Checkpoint() {
	defer s.leave(s.enter())
}

// shutdown releases every other thread and ends the process. Called with
// the gate disabled; never returns.
func (s *Scheduler) shutdown(code int) {
	self := s.running
	s.emit(model.EventShutdown, self.id, model.NoThread, "")
	s.timer.Stop()
	for _, t := range s.threads {
		if t != self {
			t.ctx.Release()
		}
	}
	s.logger.Debug("shutting down", "caller", self.id, "code", code, "live", len(s.threads))
	s.exit(code)
	self.ctx.Exit()
}
