// Package uthreads is the package-level thread library API over one
// process-wide scheduler.
//
// The goroutine that calls Init becomes thread 0. Terminating thread 0 shuts
// the library down and, unless WithExit says otherwise, exits the process.
// Every other function reports a protocol error before Init.
package uthreads

import (
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/me/uthreads/internal/scheduler"
	"github.com/me/uthreads/internal/timer"
	"github.com/me/uthreads/pkg/model"
)

// MaxThreadNum is the default live-thread limit, thread 0 included.
const MaxThreadNum = 100

// ThreadID identifies a logical thread.
type ThreadID = model.ThreadID

var std atomic.Pointer[scheduler.Scheduler]

type settings struct {
	cfg   scheduler.Config
	opts  []scheduler.Option
	exit  func(code int)
	timer timer.Timer
}

// Option configures Init.
type Option func(*settings)

// WithMaxThreads sets the live-thread limit.
func WithMaxThreads(n int) Option {
	return func(s *settings) { s.cfg.MaxThreads = n }
}

// WithVerify checks scheduler invariants after every operation.
func WithVerify() Option {
	return func(s *settings) { s.cfg.VerifyInvariants = true }
}

// WithLogger sets the library logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.opts = append(s.opts, scheduler.WithLogger(l)) }
}

// WithObserver receives every scheduling event.
func WithObserver(fn func(model.Event)) Option {
	return func(s *settings) { s.opts = append(s.opts, scheduler.WithObserver(scheduler.ObserverFunc(fn))) }
}

// WithExit replaces os.Exit as the hook run when thread 0 is terminated.
func WithExit(fn func(code int)) Option {
	return func(s *settings) { s.exit = fn }
}

func withTimer(t timer.Timer) Option {
	return func(s *settings) { s.timer = t }
}

// Init starts the library with the given quantum and makes the caller
// thread 0.
func Init(quantum time.Duration, opts ...Option) error {
	st := settings{cfg: scheduler.Config{Quantum: quantum, MaxThreads: MaxThreadNum}}
	for _, opt := range opts {
		opt(&st)
	}
	if std.Load() != nil {
		return model.NewThreadError("init", model.ErrProtocol, model.NoThread, "already initialized")
	}

	exit := st.exit
	schedOpts := append(st.opts, scheduler.WithExit(func(code int) {
		std.Store(nil)
		if exit == nil {
			exit = os.Exit
		}
		exit(code)
	}))
	if st.timer != nil {
		schedOpts = append(schedOpts, scheduler.WithTimer(st.timer))
	}

	s, err := scheduler.New(st.cfg, schedOpts...)
	if err != nil {
		return err
	}
	if !std.CompareAndSwap(nil, s) {
		return model.NewThreadError("init", model.ErrProtocol, model.NoThread, "already initialized")
	}
	return nil
}

func current(op string) (*scheduler.Scheduler, error) {
	if s := std.Load(); s != nil {
		return s, nil
	}
	return nil, model.NewThreadError(op, model.ErrProtocol, model.NoThread, "library not initialized")
}

// Spawn creates a thread running entry and returns its id.
func Spawn(entry func()) (ThreadID, error) {
	s, err := current("spawn")
	if err != nil {
		return model.NoThread, err
	}
	return s.Spawn(entry)
}

// Terminate ends thread id. Terminating the caller does not return on
// success; terminating thread 0 shuts the library down.
func Terminate(id ThreadID) error {
	s, err := current("terminate")
	if err != nil {
		return err
	}
	return s.Terminate(id)
}

// Block suspends thread id until Resume.
func Block(id ThreadID) error {
	s, err := current("block")
	if err != nil {
		return err
	}
	return s.Block(id)
}

// Resume makes a blocked thread ready again.
func Resume(id ThreadID) error {
	s, err := current("resume")
	if err != nil {
		return err
	}
	return s.Resume(id)
}

// MutexLock acquires the library mutex, waiting if another thread holds it.
func MutexLock() error {
	s, err := current("mutex_lock")
	if err != nil {
		return err
	}
	return s.MutexLock()
}

// MutexUnlock releases the library mutex.
func MutexUnlock() error {
	s, err := current("mutex_unlock")
	if err != nil {
		return err
	}
	return s.MutexUnlock()
}

// Yield gives up the rest of the caller's quantum.
func Yield() {
	if s := std.Load(); s != nil {
		s.Yield()
	}
}

// Checkpoint is a preemption point for threads that make no library calls.
func Checkpoint() {
	if s := std.Load(); s != nil {
		s.Checkpoint()
	}
}

// GetTID returns the caller's id, or -1 before Init.
func GetTID() ThreadID {
	if s := std.Load(); s != nil {
		return s.CurrentID()
	}
	return model.NoThread
}

// GetTotalQuantums returns the number of quanta started since Init, or -1
// before Init.
func GetTotalQuantums() int {
	if s := std.Load(); s != nil {
		return s.TotalQuantums()
	}
	return -1
}

// GetQuantums returns how many quanta thread id has started, or -1 and an
// error for an unknown id.
func GetQuantums(id ThreadID) (int, error) {
	s, err := current("get_quantums")
	if err != nil {
		return -1, err
	}
	return s.Quantums(id)
}
