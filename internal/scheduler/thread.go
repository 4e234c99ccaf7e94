package scheduler

import (
	"github.com/me/uthreads/internal/capsule"
	"github.com/me/uthreads/pkg/model"
)

// Thread is a thread control block. All fields are guarded by the
// preemption gate.
type Thread struct {
	id       model.ThreadID
	state    model.ThreadState
	blocked  model.BlockReason
	quantums int
	ctx      *capsule.Capsule
}

func (t *Thread) info() model.ThreadInfo {
	return model.ThreadInfo{
		ID:        t.id,
		State:     t.state,
		BlockedBy: t.blocked,
		Quantums:  t.quantums,
	}
}

// setState moves t along the thread state machine.
func (t *Thread) setState(to model.ThreadState) {
	if !t.state.CanTransitionTo(to) {
		panic(&model.InvalidTransitionError{TID: t.id, From: t.state, To: to})
	}
	t.state = to
}

// run is the body of a spawned thread's goroutine. The thread starts inside
// the context switch that selected it, so the gate is still disabled.
func (s *Scheduler) run(t *Thread, entry func()) {
	s.gate.Enable()
	entry()
	t.ctx.MarkReturned()

	// Returning from entry terminates the thread.
	if err := s.Terminate(t.id); err != nil {
		s.logger.Error("thread returned with nothing left to run", "tid", t.id, "error", err)
		s.gate.Disable()
		s.shutdown(1)
	}
}

// removeReady deletes t from the ready queue, preserving order.
func (s *Scheduler) removeReady(t *Thread) {
	for i, r := range s.ready {
		if r == t {
			copy(s.ready[i:], s.ready[i+1:])
			s.ready[len(s.ready)-1] = nil
			s.ready = s.ready[:len(s.ready)-1]
			return
		}
	}
}

// makeReady moves a blocked thread whose reasons are all cleared to the back
// of the ready queue.
func (s *Scheduler) makeReady(t *Thread) {
	delete(s.blocked, t.id)
	t.setState(model.ThreadStateReady)
	s.ready = append(s.ready, t)
}

// discard removes t from every structure and recycles its id. If t owns the
// mutex, ownership passes to the next waiter.
func (s *Scheduler) discard(t *Thread) {
	switch t.state {
	case model.ThreadStateReady:
		s.removeReady(t)
	case model.ThreadStateBlocked:
		delete(s.blocked, t.id)
		if t.blocked.Has(model.BlockedMutex) {
			s.mu.dequeue(t)
		}
	}
	if s.mu.locked && s.mu.owner == t.id {
		s.release()
	}
	delete(s.threads, t.id)
	s.ids.Release(int(t.id))
	t.setState(model.ThreadStateTerminated)
}
