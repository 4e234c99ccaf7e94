package scheduler

import (
	"time"

	"github.com/me/uthreads/pkg/model"
)

// Observer receives scheduler events. Observe runs on the running logical
// thread with preemption disabled; it must not call back into the Scheduler
// and should return quickly.
type Observer interface {
	Observe(ev model.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev model.Event)

func (f ObserverFunc) Observe(ev model.Event) { f(ev) }

func (s *Scheduler) emit(kind model.EventKind, tid, peer model.ThreadID, reason model.SwitchReason) {
	s.seq++
	ev := model.Event{
		Seq:    s.seq,
		Kind:   kind,
		TID:    tid,
		Peer:   peer,
		Total:  s.total,
		Reason: reason,
		At:     time.Now().UTC(),
	}
	if t, ok := s.threads[tid]; ok {
		ev.Quantums = t.quantums
	}
	s.logger.Debug("event", "seq", ev.Seq, "kind", kind, "tid", tid, "peer", peer, "total", s.total)
	if s.observer != nil {
		s.observer.Observe(ev)
	}
}
