package scheduler

import "github.com/me/uthreads/pkg/model"

// mutex is the library's single lock. Ownership passes directly to the
// longest waiter on unlock.
type mutex struct {
	locked  bool
	owner   model.ThreadID
	waiters []*Thread
}

func (m *mutex) dequeue(t *Thread) {
	for i, w := range m.waiters {
		if w == t {
			copy(m.waiters[i:], m.waiters[i+1:])
			m.waiters[len(m.waiters)-1] = nil
			m.waiters = m.waiters[:len(m.waiters)-1]
			return
		}
	}
}

// heir returns the waiter that would become READY on release, or nil when
// there is no waiter or it is also explicitly blocked.
func (m *mutex) heir() *Thread {
	if len(m.waiters) == 0 || m.waiters[0].blocked != model.BlockedMutex {
		return nil
	}
	return m.waiters[0]
}

// MutexLock acquires the mutex, waiting behind earlier waiters if another
// thread holds it.
func (s *Scheduler) MutexLock() error {
	self := s.enter()
	defer s.leave(self)

	if !s.mu.locked {
		s.mu.locked = true
		s.mu.owner = self.id
		s.emit(model.EventLock, self.id, model.NoThread, "")
		s.settle()
		return nil
	}
	if s.mu.owner == self.id {
		return s.fail(model.NewThreadError("mutex_lock", model.ErrProtocol, self.id,
			"mutex already held by thread %d", self.id))
	}
	if len(s.ready) == 0 {
		return s.fail(model.NewThreadError("mutex_lock", model.ErrDeadlock, self.id,
			"mutex held by thread %d and no other thread can run", s.mu.owner))
	}

	self.blocked = self.blocked.With(model.BlockedMutex)
	s.mu.waiters = append(s.mu.waiters, self)
	s.emit(model.EventLockWait, self.id, s.mu.owner, "")
	s.restartQuantum()
	s.switchAway(park, model.ReasonMutex)
	// Rescheduled: release handed us ownership.
	return nil
}

// MutexUnlock releases the mutex held by the caller.
func (s *Scheduler) MutexUnlock() error {
	self := s.enter()
	defer s.leave(self)

	if !s.mu.locked {
		return s.fail(model.NewThreadError("mutex_unlock", model.ErrProtocol, self.id,
			"mutex is not locked"))
	}
	if s.mu.owner != self.id {
		return s.fail(model.NewThreadError("mutex_unlock", model.ErrProtocol, self.id,
			"mutex is held by thread %d", s.mu.owner))
	}
	s.release()
	s.settle()
	return nil
}

// release frees the mutex and grants it to the front waiter, if any. The
// new owner becomes READY only when no explicit block is also holding it.
func (s *Scheduler) release() {
	prev := s.mu.owner
	s.mu.locked = false
	s.mu.owner = model.NoThread

	if len(s.mu.waiters) == 0 {
		s.emit(model.EventUnlock, prev, model.NoThread, "")
		return
	}
	w := s.mu.waiters[0]
	s.mu.waiters[0] = nil
	s.mu.waiters = s.mu.waiters[1:]

	w.blocked = w.blocked.Without(model.BlockedMutex)
	s.mu.locked = true
	s.mu.owner = w.id
	if w.blocked.Empty() {
		s.makeReady(w)
	}
	s.emit(model.EventUnlock, prev, w.id, "")
	s.emit(model.EventLock, w.id, prev, "")
}
