package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/me/uthreads/internal/timer"
	"github.com/me/uthreads/pkg/model"
)

func TestNew_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero quantum", Config{Quantum: 0, MaxThreads: 10}},
		{"negative quantum", Config{Quantum: -time.Second, MaxThreads: 10}},
		{"no threads", Config{Quantum: time.Millisecond, MaxThreads: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, WithTimer(timer.NewManual()))
			wantCode(t, err, model.ErrConfiguration)
		})
	}
}

func TestNew_InitialState(t *testing.T) {
	h := runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		if id := s.CurrentID(); id != model.MainThreadID {
			t.Errorf("CurrentID() = %d, want 0", id)
		}
		if n := s.TotalQuantums(); n != 1 {
			t.Errorf("TotalQuantums() = %d, want 1", n)
		}
		if n, err := s.Quantums(0); err != nil || n != 1 {
			t.Errorf("Quantums(0) = %d, %v; want 1", n, err)
		}
		if h.clock.Interval() != time.Millisecond {
			t.Errorf("timer interval = %s, want 1ms", h.clock.Interval())
		}
		if err := s.Verify(); err != nil {
			t.Errorf("Verify: %v", err)
		}
	})
	if h.code != 0 {
		t.Errorf("exit code = %d, want 0", h.code)
	}
	if !h.clock.Stopped() {
		t.Error("timer not stopped on shutdown")
	}
}

func TestQuantumScenario(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		id, err := s.Spawn(func() {
			if n, _ := s.Quantums(1); n != 1 {
				t.Errorf("Quantums(1) in first quantum = %d, want 1", n)
			}
			if n := s.TotalQuantums(); n != 2 {
				t.Errorf("TotalQuantums() after one switch = %d, want 2", n)
			}
			h.terminateSelf(t)
		})
		if err != nil || id != 1 {
			t.Errorf("Spawn() = %d, %v; want 1", id, err)
			return
		}
		if n := s.TotalQuantums(); n != 1 {
			t.Errorf("TotalQuantums() before switch = %d, want 1", n)
		}
		if n, _ := s.Quantums(0); n != 1 {
			t.Errorf("Quantums(0) before switch = %d, want 1", n)
		}

		h.tick()

		if n := s.TotalQuantums(); n != 3 {
			t.Errorf("TotalQuantums() after return = %d, want 3", n)
		}
		if n, _ := s.Quantums(0); n != 2 {
			t.Errorf("Quantums(0) after return = %d, want 2", n)
		}
	})
}

func TestRoundRobin(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		var order []model.ThreadID
		for i := 0; i < 3; i++ {
			if _, err := s.Spawn(func() {
				for {
					order = append(order, s.CurrentID())
					h.tick()
				}
			}); err != nil {
				t.Errorf("Spawn: %v", err)
				return
			}
		}

		for i := 0; i < 3; i++ {
			order = append(order, s.CurrentID())
			h.tick()
		}

		if len(order) != 12 {
			t.Errorf("order = %v, want 12 entries", order)
			return
		}
		for i, id := range order {
			if want := model.ThreadID(i % 4); id != want {
				t.Errorf("order[%d] = %d, want %d (order %v)", i, id, want, order)
			}
		}
		if n := s.TotalQuantums(); n != 13 {
			t.Errorf("TotalQuantums() = %d, want 13", n)
		}
		if n, _ := s.Quantums(0); n != 4 {
			t.Errorf("Quantums(0) = %d, want 4", n)
		}
		for id := model.ThreadID(1); id <= 3; id++ {
			if n, _ := s.Quantums(id); n != 3 {
				t.Errorf("Quantums(%d) = %d, want 3", id, n)
			}
		}
	})
}

func TestYield_AloneKeepsRunning(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		s.Yield()
		h.tick()
		if id := s.CurrentID(); id != 0 {
			t.Errorf("CurrentID() = %d, want 0", id)
		}
		if n := s.TotalQuantums(); n != 3 {
			t.Errorf("TotalQuantums() = %d, want 3", n)
		}
		if n, _ := s.Quantums(0); n != 3 {
			t.Errorf("Quantums(0) = %d, want 3", n)
		}
		if h.clock.Resets() != 1 {
			t.Errorf("timer resets = %d, want 1", h.clock.Resets())
		}
	})
}

func TestYield_RotatesReadyQueue(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		var ran []model.ThreadID
		for i := 0; i < 2; i++ {
			s.Spawn(func() {
				ran = append(ran, s.CurrentID())
			})
		}
		s.Yield()
		if len(ran) != 2 || ran[0] != 1 || ran[1] != 2 {
			t.Errorf("ran = %v, want [1 2]", ran)
		}
		if sn := s.Snapshot(); len(sn.Threads) != 1 {
			t.Errorf("threads after exit = %+v, want only thread 0", sn.Threads)
		}
	})
}

func TestTickWithoutCheckpointDoesNotSwitch(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		ran := false
		s.Spawn(func() { ran = true })
		h.clock.Fire()
		if ran {
			t.Error("thread ran before a preemption point")
		}
		s.Checkpoint()
		if !ran {
			t.Error("pending tick not delivered at Checkpoint")
		}
	})
}

func TestSpawn_CapacityAndReuse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxThreads = 5
	runScheduler(t, cfg, func(h *harness) {
		s := h.s
		noop := func() {}
		for want := model.ThreadID(1); want <= 4; want++ {
			if id, err := s.Spawn(noop); err != nil || id != want {
				t.Errorf("Spawn() = %d, %v; want %d", id, err, want)
				return
			}
		}
		_, err := s.Spawn(noop)
		wantCode(t, err, model.ErrCapacity)

		if err := s.Terminate(2); err != nil {
			t.Errorf("Terminate(2): %v", err)
			return
		}
		if id, err := s.Spawn(noop); err != nil || id != 2 {
			t.Errorf("Spawn() after Terminate(2) = %d, %v; want 2", id, err)
		}
		_, err = s.Spawn(nil)
		wantCode(t, err, model.ErrProtocol)
	})
}

func TestIdentityErrors(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		wantCode(t, s.Terminate(7), model.ErrIdentity)
		wantCode(t, s.Block(-1), model.ErrIdentity)
		wantCode(t, s.Resume(42), model.ErrIdentity)
		n, err := s.Quantums(5)
		wantCode(t, err, model.ErrIdentity)
		if n != -1 {
			t.Errorf("Quantums(5) = %d, want -1", n)
		}

		id, _ := s.Spawn(func() {})
		if err := s.Terminate(id); err != nil {
			t.Errorf("Terminate(%d): %v", id, err)
			return
		}
		wantCode(t, s.Terminate(id), model.ErrIdentity)
		wantCode(t, s.Resume(id), model.ErrIdentity)
	})
}

func TestBlockMainFails(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		wantCode(t, s.Block(0), model.ErrProtocol)

		s.Spawn(func() {
			wantCode(t, s.Block(0), model.ErrProtocol)
		})
		h.tick()
		wantState(t, s.Snapshot(), 0, model.ThreadStateRunning, 0)
	})
}

func TestBlockAndResumeReadyThread(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		ran := false
		id, _ := s.Spawn(func() { ran = true })

		if err := s.Block(id); err != nil {
			t.Errorf("Block: %v", err)
			return
		}
		if err := s.Block(id); err != nil {
			t.Errorf("second Block should be a no-op, got %v", err)
		}
		wantState(t, s.Snapshot(), id, model.ThreadStateBlocked, model.BlockedExplicit)

		h.tick()
		if ran {
			t.Error("blocked thread ran")
			return
		}

		if err := s.Resume(id); err != nil {
			t.Errorf("Resume: %v", err)
			return
		}
		if err := s.Resume(0); err != nil {
			t.Errorf("Resume of unblocked thread should be a no-op, got %v", err)
		}
		wantState(t, s.Snapshot(), id, model.ThreadStateReady, 0)

		h.tick()
		if !ran {
			t.Error("resumed thread did not run")
		}
		if _, err := s.Quantums(id); err == nil {
			t.Error("thread should be gone after its entry returned")
		}
	})
}

func TestBlockSelf(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		resumed := false
		id, _ := s.Spawn(func() {
			if err := s.Block(s.CurrentID()); err != nil {
				t.Errorf("Block(self): %v", err)
			}
			resumed = true
		})

		h.tick()
		if s.CurrentID() != 0 {
			t.Error("main should run after thread 1 blocks itself")
			return
		}
		wantState(t, s.Snapshot(), id, model.ThreadStateBlocked, model.BlockedExplicit)
		if h.clock.Resets() != 1 {
			t.Errorf("timer resets = %d, want 1", h.clock.Resets())
		}

		h.tick()
		if resumed {
			t.Error("blocked thread resumed without Resume")
			return
		}
		s.Resume(id)
		h.tick()
		if !resumed {
			t.Error("thread did not continue after Resume")
		}
	})
}

func TestTerminateReadyAndBlocked(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		a, _ := s.Spawn(func() { t.Error("terminated thread ran") })
		b, _ := s.Spawn(func() { t.Error("terminated thread ran") })
		s.Block(b)

		if err := s.Terminate(a); err != nil {
			t.Errorf("Terminate(ready): %v", err)
			return
		}
		if err := s.Terminate(b); err != nil {
			t.Errorf("Terminate(blocked): %v", err)
			return
		}
		sn := s.Snapshot()
		if len(sn.Ready) != 0 || len(sn.Blocked) != 0 || len(sn.Threads) != 1 {
			t.Errorf("snapshot after terminations = %s", sn)
		}
		h.tick()
	})
}

func TestTerminateParkedThread(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		steps := 0
		id, _ := s.Spawn(func() {
			for {
				steps++
				h.tick()
			}
		})
		h.tick()
		h.tick()
		if steps != 2 {
			t.Errorf("steps = %d, want 2", steps)
			return
		}
		if err := s.Terminate(id); err != nil {
			t.Errorf("Terminate: %v", err)
			return
		}
		h.tick()
		h.tick()
		if steps != 2 {
			t.Errorf("terminated thread kept running: steps = %d", steps)
		}
	})
}

func TestTerminatedThreadDefersNeverRun(t *testing.T) {
	var deferred atomic.Int32
	looper := func(s *Scheduler) func() {
		return func() {
			defer deferred.Add(1)
			for {
				s.Yield()
			}
		}
	}
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		victim, _ := s.Spawn(looper(s))
		s.Spawn(func() {
			defer deferred.Add(1)
			s.Terminate(s.CurrentID())
			t.Error("Terminate(self) returned")
		})
		s.Spawn(looper(s))

		s.Yield()
		if err := s.Terminate(victim); err != nil {
			t.Errorf("Terminate(%d): %v", victim, err)
			return
		}
		s.Yield()
		s.Yield()
		if id := s.CurrentID(); id != 0 {
			t.Errorf("CurrentID() = %d, want 0", id)
		}
	})

	// The last looper is released by shutdown.
	time.Sleep(20 * time.Millisecond)
	if n := deferred.Load(); n != 0 {
		t.Errorf("deferred calls of terminated threads ran %d time(s)", n)
	}
}

func TestSpawn_PendingTickRunsNewThread(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		ran := false
		gotID, gotQuantums := model.NoThread, -1
		h.clock.Fire()
		id, err := s.Spawn(func() {
			ran = true
			gotID = s.CurrentID()
			gotQuantums, _ = s.Quantums(gotID)
		})
		if err != nil {
			t.Errorf("Spawn: %v", err)
			return
		}
		if !ran {
			t.Error("pending tick did not switch to the new thread before Spawn returned")
			return
		}
		if gotID != id || gotQuantums != 1 {
			t.Errorf("new thread saw id=%d quantums=%d, want %d and 1", gotID, gotQuantums, id)
		}
		// Start, tick switch to 1, thread 1 returning.
		if n := s.TotalQuantums(); n != 3 {
			t.Errorf("TotalQuantums() = %d, want 3", n)
		}
	})
}

func TestEntryReturnTerminates(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		s.Spawn(func() {})
		h.tick()
		if id := s.CurrentID(); id != 0 {
			t.Errorf("CurrentID() = %d, want 0", id)
		}
		if _, err := s.Quantums(1); err == nil {
			t.Error("Quantums(1) should fail after thread 1 returned")
		}
		if id, _ := s.Spawn(func() {}); id != 1 {
			t.Errorf("Spawn() = %d, want recycled id 1", id)
		}
	})
}

func TestTerminateMainFromMain(t *testing.T) {
	var ran sync.Map
	h := runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		for i := 0; i < 3; i++ {
			s.Spawn(func() {
				ran.Store(s.CurrentID(), true)
				for {
					h.tick()
				}
			})
		}
		h.tick()
		s.Terminate(0)
		t.Error("Terminate(0) returned")
	})
	if h.code != 0 {
		t.Errorf("exit code = %d, want 0", h.code)
	}
	n := 0
	ran.Range(func(_, _ any) bool { n++; return true })
	if n != 3 {
		t.Errorf("%d threads ran before shutdown, want 3", n)
	}
}

func TestTerminateMainFromOtherThread(t *testing.T) {
	mainResumed := false
	h := runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		s.Spawn(func() {
			s.Terminate(0)
			t.Error("Terminate(0) returned")
		})
		h.tick()
		mainResumed = true
	})
	if h.code != 0 {
		t.Errorf("exit code = %d, want 0", h.code)
	}
	if mainResumed {
		t.Error("thread 0 ran again after shutdown")
	}
}

func TestObserverEvents(t *testing.T) {
	var kinds []model.EventKind
	obs := ObserverFunc(func(ev model.Event) { kinds = append(kinds, ev.Kind) })

	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		id, _ := s.Spawn(func() {})
		s.Block(id)
		s.Resume(id)
		h.tick()
	}, WithObserver(obs))

	want := []model.EventKind{
		model.EventSpawn, model.EventBlock, model.EventResume,
		model.EventSwitch, model.EventTerminate, model.EventSwitch, model.EventShutdown,
	}
	if len(kinds) != len(want) {
		t.Errorf("events = %v, want %v", kinds, want)
		return
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestPublished(t *testing.T) {
	h := runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		s.Spawn(func() {})
		s.Spawn(func() {})
		sn := s.Published()
		if sn.Running != 0 || len(sn.Ready) != 2 || sn.TotalQuantums != 1 || sn.MaxThreads != 10 {
			t.Errorf("Published() = %s", sn)
		}
	})
	if sn := h.s.Published(); sn == nil || len(sn.Threads) != 3 {
		t.Errorf("Published() after shutdown = %v", sn)
	}
}

func TestVerify_DetectsCorruption(t *testing.T) {
	runScheduler(t, testConfig(), func(h *harness) {
		s := h.s
		s.Spawn(func() {})

		s.ready = append(s.ready, s.running)
		wantCode(t, s.Verify(), model.ErrInternal)
		s.ready = s.ready[:len(s.ready)-1]

		s.mu.owner = 3
		wantCode(t, s.Verify(), model.ErrInternal)
		s.mu.owner = model.NoThread

		if err := s.Verify(); err != nil {
			t.Errorf("Verify after repair: %v", err)
		}
	})
}
