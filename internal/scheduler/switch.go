package scheduler

import (
	"github.com/me/uthreads/internal/capsule"
	"github.com/me/uthreads/pkg/model"
)

// disposition is what happens to the outgoing thread on a context switch.
type disposition int

const (
	requeue disposition = iota
	park
	discard
)

// switchAway hands the CPU to the front of the ready queue. It is called
// with the gate disabled; for requeue and park it returns once the caller is
// scheduled again, for discard it never returns.
//
// For park and discard the caller has already checked that the ready queue
// is non-empty and, for discard, removed the outgoing thread from every
// structure.
func (s *Scheduler) switchAway(d disposition, reason model.SwitchReason) {
	prev := s.running

	if d == requeue && len(s.ready) == 0 {
		// Nobody else can run: prev starts a new quantum in place.
		s.total++
		prev.quantums++
		s.emit(model.EventSwitch, prev.id, prev.id, reason)
		s.settle()
		return
	}

	switch d {
	case requeue:
		prev.setState(model.ThreadStateReady)
		s.ready = append(s.ready, prev)
	case park:
		prev.setState(model.ThreadStateBlocked)
		s.blocked[prev.id] = prev
	}

	next := s.ready[0]
	s.ready[0] = nil
	s.ready = s.ready[1:]
	next.setState(model.ThreadStateRunning)
	s.running = next
	s.total++
	next.quantums++
	s.emit(model.EventSwitch, next.id, prev.id, reason)
	s.settle()

	if d == discard {
		next.ctx.Restore()
		prev.ctx.Exit()
	}
	capsule.Switch(prev.ctx, next.ctx)
}

// onTick is the gate handler: the running thread's quantum expired.
func (s *Scheduler) onTick() {
	s.switchAway(requeue, model.ReasonTick)
}

// restartQuantum gives the next thread a full quantum after a voluntary
// switch.
func (s *Scheduler) restartQuantum() {
	s.timer.Reset()
	s.gate.Clear()
}
