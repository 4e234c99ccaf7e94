package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/me/uthreads/internal/logging"
	"github.com/me/uthreads/internal/timer"
	"github.com/me/uthreads/pkg/model"
)

// harness runs a scheduler whose thread 0 lives on a helper goroutine, so
// that terminating thread 0 unwinds the helper instead of the test.
type harness struct {
	s     *Scheduler
	clock *timer.Manual
	code  int
	done  chan struct{}
}

func testConfig() Config {
	return Config{Quantum: time.Millisecond, MaxThreads: 10, VerifyInvariants: true}
}

// runScheduler runs body as thread 0 and waits for the process to "exit".
// If body returns, thread 0 is terminated.
func runScheduler(t *testing.T, cfg Config, body func(h *harness), opts ...Option) *harness {
	t.Helper()
	h := &harness{clock: timer.NewManual(), code: -1, done: make(chan struct{})}
	var once sync.Once

	go func() {
		opts = append([]Option{
			WithTimer(h.clock),
			WithLogger(logging.Discard()),
			WithExit(func(code int) {
				h.code = code
				once.Do(func() { close(h.done) })
			}),
		}, opts...)
		s, err := New(cfg, opts...)
		if err != nil {
			t.Errorf("New: %v", err)
			once.Do(func() { close(h.done) })
			return
		}
		h.s = s
		body(h)
		s.Terminate(model.MainThreadID)
	}()

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not shut down")
	}
	return h
}

// tick expires the running thread's quantum at a preemption point.
func (h *harness) tick() {
	h.clock.Fire()
	h.s.Checkpoint()
}

// terminateSelf ends the calling thread.
func (h *harness) terminateSelf(t *testing.T) {
	err := h.s.Terminate(h.s.CurrentID())
	t.Errorf("Terminate(self) returned: %v", err)
}

func wantCode(t *testing.T, err error, code model.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Errorf("expected %s error, got nil", code)
		return
	}
	if got := model.CodeOf(err); got != code {
		t.Errorf("error code = %q, want %q (err: %v)", got, code, err)
	}
	if !errors.Is(err, &model.ThreadError{Code: code}) {
		t.Errorf("errors.Is(%v, %s) = false", err, code)
	}
}

func wantState(t *testing.T, sn *Snapshot, id model.ThreadID, state model.ThreadState, by model.BlockReason) {
	t.Helper()
	ti, ok := sn.Thread(id)
	if !ok {
		t.Errorf("thread %d not in snapshot", id)
		return
	}
	if ti.State != state || ti.BlockedBy != by {
		t.Errorf("thread %d = %s/%s, want %s/%s", id, ti.State, ti.BlockedBy, state, by)
	}
}
