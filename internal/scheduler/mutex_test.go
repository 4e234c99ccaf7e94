package scheduler

import (
	"testing"

	"github.com/me/uthreads/pkg/model"
)

func TestMutex_ProtocolErrors(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		wantCode(t, s.MutexUnlock(), model.ErrProtocol)

		if err := s.MutexLock(); err != nil {
			t.Errorf("MutexLock: %v", err)
			return
		}
		wantCode(t, s.MutexLock(), model.ErrProtocol)

		s.Spawn(func() {
			wantCode(t, s.MutexUnlock(), model.ErrProtocol)
		})
		h.tick()

		if err := s.MutexUnlock(); err != nil {
			t.Errorf("MutexUnlock: %v", err)
		}
		if sn := s.Snapshot(); sn.Mutex.Locked || sn.Mutex.Owner != model.NoThread {
			t.Errorf("mutex after unlock = %+v", sn.Mutex)
		}
	})
}

func TestMutex_FIFOHandoff(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		var order []model.ThreadID
		if err := s.MutexLock(); err != nil {
			t.Errorf("MutexLock: %v", err)
			return
		}
		for i := 0; i < 3; i++ {
			s.Spawn(func() {
				if err := s.MutexLock(); err != nil {
					t.Errorf("waiter MutexLock: %v", err)
					return
				}
				order = append(order, s.CurrentID())
				if err := s.MutexUnlock(); err != nil {
					t.Errorf("waiter MutexUnlock: %v", err)
				}
			})
		}

		h.tick()
		sn := s.Snapshot()
		if got := sn.Mutex.Waiters; len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
			t.Errorf("waiters = %v, want [1 2 3]", got)
		}
		for id := model.ThreadID(1); id <= 3; id++ {
			wantState(t, sn, id, model.ThreadStateBlocked, model.BlockedMutex)
		}
		if h.clock.Resets() != 3 {
			t.Errorf("timer resets = %d, want 3", h.clock.Resets())
		}

		if err := s.MutexUnlock(); err != nil {
			t.Errorf("MutexUnlock: %v", err)
			return
		}
		if sn := s.Snapshot(); sn.Mutex.Owner != 1 {
			t.Errorf("owner after unlock = %d, want 1", sn.Mutex.Owner)
		}

		for i := 0; i < 10 && len(order) < 3; i++ {
			h.tick()
		}
		if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
			t.Errorf("acquisition order = %v, want [1 2 3]", order)
		}
		if sn := s.Snapshot(); sn.Mutex.Locked {
			t.Errorf("mutex still locked: %+v", sn.Mutex)
		}
	})
}

func TestMutex_HandoffToExplicitlyBlockedWaiter(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		got := false
		s.MutexLock()
		id, _ := s.Spawn(func() {
			if err := s.MutexLock(); err != nil {
				t.Errorf("MutexLock: %v", err)
				return
			}
			got = true
			s.MutexUnlock()
		})
		h.tick()

		if err := s.Block(id); err != nil {
			t.Errorf("Block(waiter): %v", err)
		}
		wantState(t, s.Snapshot(), id, model.ThreadStateBlocked, model.BlockedExplicit|model.BlockedMutex)

		s.MutexUnlock()
		sn := s.Snapshot()
		if sn.Mutex.Owner != id {
			t.Errorf("owner = %d, want %d", sn.Mutex.Owner, id)
		}
		wantState(t, sn, id, model.ThreadStateBlocked, model.BlockedExplicit)

		// The owner cannot run and nobody else is ready.
		wantCode(t, s.MutexLock(), model.ErrDeadlock)

		h.tick()
		if got {
			t.Error("explicitly blocked owner ran")
		}
		s.Resume(id)
		h.tick()
		if !got {
			t.Error("owner did not run after Resume")
		}
	})
}

func TestMutex_ResumeWaiterKeepsItBlocked(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		s.MutexLock()
		id, _ := s.Spawn(func() {
			s.MutexLock()
			s.MutexUnlock()
		})
		h.tick()

		if err := s.Resume(id); err != nil {
			t.Errorf("Resume(mutex waiter): %v", err)
		}
		wantState(t, s.Snapshot(), id, model.ThreadStateBlocked, model.BlockedMutex)
		s.MutexUnlock()
		h.tick()
	})
}

func TestMutex_TerminateOwnerReleases(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		id, _ := s.Spawn(func() {
			s.MutexLock()
			s.Block(s.CurrentID())
			t.Error("terminated owner resumed")
		})
		h.tick()
		if sn := s.Snapshot(); sn.Mutex.Owner != id {
			t.Errorf("owner = %d, want %d", sn.Mutex.Owner, id)
		}

		wantCode(t, s.MutexLock(), model.ErrDeadlock)

		if err := s.Terminate(id); err != nil {
			t.Errorf("Terminate(owner): %v", err)
			return
		}
		if err := s.MutexLock(); err != nil {
			t.Errorf("MutexLock after owner terminated: %v", err)
		}
		if sn := s.Snapshot(); sn.Mutex.Owner != 0 {
			t.Errorf("owner = %d, want 0", sn.Mutex.Owner)
		}
	})
}

func TestMutex_TerminateOwnerHandsOff(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		s.MutexLock()
		waiter, _ := s.Spawn(func() {
			s.MutexLock()
			for {
				h.tick()
			}
		})
		h.tick()

		// Unlock hands ownership straight to the waiter.
		s.MutexUnlock()
		if sn := s.Snapshot(); sn.Mutex.Owner != waiter {
			t.Errorf("owner = %d, want %d", sn.Mutex.Owner, waiter)
		}
		h.tick()

		second, _ := s.Spawn(func() {
			s.MutexLock()
			for {
				h.tick()
			}
		})
		h.tick() // waiter runs, then second waits for the mutex
		if sn := s.Snapshot(); len(sn.Mutex.Waiters) != 1 || sn.Mutex.Waiters[0] != second {
			t.Errorf("waiters = %v, want [%d]", sn.Mutex.Waiters, second)
		}

		if err := s.Terminate(waiter); err != nil {
			t.Errorf("Terminate(owner): %v", err)
			return
		}
		sn := s.Snapshot()
		if sn.Mutex.Owner != second {
			t.Errorf("owner after terminate = %d, want %d", sn.Mutex.Owner, second)
		}
		wantState(t, sn, second, model.ThreadStateReady, 0)
	})
}

func TestMutex_TerminateWaiterLeavesQueue(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		s.MutexLock()
		id, _ := s.Spawn(func() {
			s.MutexLock()
			t.Error("terminated waiter acquired the mutex")
		})
		h.tick()

		if err := s.Terminate(id); err != nil {
			t.Errorf("Terminate(waiter): %v", err)
			return
		}
		if sn := s.Snapshot(); len(sn.Mutex.Waiters) != 0 {
			t.Errorf("waiters = %v, want none", sn.Mutex.Waiters)
		}
		if err := s.MutexUnlock(); err != nil {
			t.Errorf("MutexUnlock: %v", err)
		}
		if sn := s.Snapshot(); sn.Mutex.Locked {
			t.Error("mutex still locked with no waiters")
		}
	})
}

func TestDeadlockGuards(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		var blockErr error
		s.Spawn(func() {
			s.MutexLock()
			// Let thread 0 queue up for the mutex; after that nobody is ready.
			s.Yield()
			blockErr = s.Block(s.CurrentID())
			s.MutexUnlock()
		})
		h.tick()

		if err := s.MutexLock(); err != nil {
			t.Errorf("MutexLock: %v", err)
			return
		}
		if blockErr == nil || model.CodeOf(blockErr) != model.ErrDeadlock {
			t.Errorf("Block(self) with nothing ready = %v, want DEADLOCK", blockErr)
		}
		if sn := s.Snapshot(); sn.Mutex.Owner != 0 {
			t.Errorf("owner = %d, want 0", sn.Mutex.Owner)
		}
	})
}
