// Package scheduler multiplexes logical threads onto a single running
// goroutine with timer-driven round-robin preemption.
//
// Every exported method enters the preemption gate on entry and leaves it on
// every exit path. Pending ticks are delivered when the gate is left, so
// operation exits and Checkpoint/Yield are the preemption points.
package scheduler

import (
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/me/uthreads/internal/capsule"
	"github.com/me/uthreads/internal/ids"
	"github.com/me/uthreads/internal/preempt"
	"github.com/me/uthreads/internal/timer"
	"github.com/me/uthreads/pkg/model"
)

// Config holds scheduler configuration.
type Config struct {
	Quantum          time.Duration // Length of one quantum; must be positive
	MaxThreads       int           // Live-thread limit, thread 0 included
	VerifyInvariants bool          // Run Verify after every operation and panic on violation
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Quantum:    100 * time.Millisecond,
		MaxThreads: 100,
	}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimer replaces the wall-clock ticker.
func WithTimer(t timer.Timer) Option {
	return func(s *Scheduler) { s.timer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithObserver receives every scheduler event.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithExit replaces os.Exit as the process-termination hook used when
// thread 0 is terminated.
func WithExit(fn func(code int)) Option {
	return func(s *Scheduler) { s.exit = fn }
}

// Scheduler is the thread library. The goroutine that calls New becomes
// thread 0.
type Scheduler struct {
	cfg      Config
	logger   *slog.Logger
	timer    timer.Timer
	gate     *preempt.Gate
	observer Observer
	exit     func(code int)

	ids     *ids.Allocator
	threads map[model.ThreadID]*Thread // live threads
	running *Thread
	ready   []*Thread
	blocked map[model.ThreadID]*Thread
	total   int
	mu      mutex

	seq       int64
	published atomic.Pointer[Snapshot]
}

// New initializes the library and makes the caller thread 0, running its
// first quantum.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	if cfg.Quantum <= 0 {
		return nil, model.NewThreadError("init", model.ErrConfiguration, model.NoThread,
			"quantum must be positive, got %s", cfg.Quantum)
	}
	if cfg.MaxThreads < 1 {
		return nil, model.NewThreadError("init", model.ErrConfiguration, model.NoThread,
			"max threads must be at least 1, got %d", cfg.MaxThreads)
	}

	s := &Scheduler{
		cfg:     cfg,
		logger:  slog.Default(),
		exit:    os.Exit,
		ids:     ids.New(cfg.MaxThreads),
		threads: make(map[model.ThreadID]*Thread),
		blocked: make(map[model.ThreadID]*Thread),
		mu:      mutex{owner: model.NoThread},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timer == nil {
		s.timer = timer.NewTicker()
	}
	s.logger = s.logger.With("component", "scheduler")
	s.gate = preempt.New(s.onTick)

	id, _ := s.ids.Allocate()
	main := &Thread{
		id:       model.ThreadID(id),
		state:    model.ThreadStateRunning,
		quantums: 1,
		ctx:      capsule.Bootstrap(),
	}
	s.threads[main.id] = main
	s.running = main
	s.total = 1
	s.publish()

	if err := s.timer.Start(cfg.Quantum, s.gate.Raise); err != nil {
		return nil, model.NewThreadError("init", model.ErrConfiguration, model.NoThread,
			"start timer: %v", err)
	}
	s.logger.Debug("initialized", "quantum", cfg.Quantum, "max_threads", cfg.MaxThreads)
	return s, nil
}

// enter disables preemption and returns the calling thread. Pair with
// leave via defer s.leave(s.enter()).
func (s *Scheduler) enter() *Thread {
	s.gate.Disable()
	return s.running
}

// leave re-enables preemption for self. It does nothing when self's
// goroutine is unwinding after termination: the gate then belongs to
// another thread.
func (s *Scheduler) leave(self *Thread) {
	if self.ctx.Dead() {
		return
	}
	s.gate.Enable()
}

// fail logs a failed operation and returns err. State is untouched.
func (s *Scheduler) fail(err *model.ThreadError) error {
	s.logger.Error("thread library error", "op", err.Op, "error", err.Message, "code", err.Code)
	return err
}

// settle runs after every mutation: publish a copy of the state for other
// goroutines and, if configured, check invariants.
func (s *Scheduler) settle() {
	s.publish()
	if s.cfg.VerifyInvariants {
		if err := s.verify(); err != nil {
			panic(err)
		}
	}
}
