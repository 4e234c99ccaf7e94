package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/me/uthreads/internal/config"
	"github.com/me/uthreads/internal/logging"
	"github.com/me/uthreads/internal/metrics"
	"github.com/me/uthreads/internal/scheduler"
	"github.com/me/uthreads/internal/store"
	"github.com/me/uthreads/internal/timer"
	"github.com/me/uthreads/internal/trace"
	"github.com/me/uthreads/internal/workload"
	"github.com/me/uthreads/pkg/model"
)

// session runs one scenario with thread 0 on a dedicated goroutine, so that
// terminating thread 0 ends that goroutine instead of the process.
type session struct {
	cfg     config.Config
	logger  *slog.Logger
	store   store.Store        // optional
	metrics *metrics.Collector // optional
	live    *liveScheduler     // optional
	timer   timer.Timer        // nil selects the wall-clock ticker
	out     io.Writer          // script log() output
}

// report is the result of a session.
type report struct {
	Run      *model.Run        `json:"run"`
	Summary  *workload.Summary `json:"summary"`
	Events   int               `json:"events"`
	ExitCode int               `json:"exit_code"`
}

// schedulerConfig applies the scenario's own quantum and thread limit on top
// of the configured ones.
func (s *session) schedulerConfig(sc *workload.Scenario) scheduler.Config {
	c := s.cfg.SchedulerConfig()
	if sc.Quantum > 0 {
		c.Quantum = sc.Quantum
	}
	if sc.MaxThreads > 0 {
		c.MaxThreads = sc.MaxThreads
	}
	return c
}

func (s *session) run(ctx context.Context, sc *workload.Scenario) (*report, error) {
	schedCfg := s.schedulerConfig(sc)
	rec := trace.NewRecorder(s.cfg.TraceLimit)
	observers := trace.Fanout{rec}
	if s.metrics != nil {
		s.metrics.Reset()
		observers = append(observers, s.metrics)
	}

	run := &model.Run{Scenario: sc.Name, Quantum: schedCfg.Quantum, MaxThreads: schedCfg.MaxThreads}
	if s.store != nil {
		if err := s.store.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("create run: %w", err)
		}
	}
	log := logging.ForRun(s.logger, sc.Name, run.ID)

	var (
		sum    *workload.Summary
		runErr error
		code   = -1
		once   sync.Once
	)
	done := make(chan struct{})
	exit := func(c int) {
		code = c
		once.Do(func() { close(done) })
	}

	go func() {
		opts := []scheduler.Option{
			scheduler.WithLogger(log),
			scheduler.WithObserver(observers),
			scheduler.WithExit(exit),
		}
		if s.timer != nil {
			opts = append(opts, scheduler.WithTimer(s.timer))
		}
		sched, err := scheduler.New(schedCfg, opts...)
		if err != nil {
			runErr = err
			exit(1)
			return
		}
		if s.live != nil {
			s.live.attach(sched)
		}
		sum, runErr = workload.NewRunner(sched, log, s.out).Run(ctx, sc)
		sched.Terminate(model.MainThreadID)
	}()
	<-done

	if runErr != nil {
		s.abandon(run, log)
		return nil, runErr
	}

	events := rec.Events()
	run.Threads = sum.Spawned
	run.TotalQuantums = sum.TotalQuantums
	run.Dropped = rec.Dropped()
	if s.store != nil {
		// The scenario context may be cancelled by now; the trace is still saved.
		saveCtx := context.WithoutCancel(ctx)
		if err := s.store.AppendEvents(saveCtx, run.ID, events); err != nil {
			return nil, fmt.Errorf("save events: %w", err)
		}
		if err := s.store.FinishRun(saveCtx, run); err != nil {
			return nil, fmt.Errorf("finish run: %w", err)
		}
	}
	log.Info("run recorded", "events", len(events), "dropped", run.Dropped, "exit_code", code)
	return &report{Run: run, Summary: sum, Events: len(events), ExitCode: code}, nil
}

// abandon removes the stored record of a run that never produced a summary.
func (s *session) abandon(run *model.Run, log *slog.Logger) {
	if s.store == nil || run.ID == "" {
		return
	}
	if err := s.store.DeleteRun(context.Background(), run.ID); err != nil {
		log.Warn("remove failed run", "error", err)
	}
}

// liveScheduler exposes the published state of the most recently started
// scheduler to the inspector.
type liveScheduler struct {
	p atomic.Pointer[scheduler.Scheduler]
}

func (l *liveScheduler) attach(s *scheduler.Scheduler) { l.p.Store(s) }

// Published implements server.LiveSource.
func (l *liveScheduler) Published() *scheduler.Snapshot {
	if s := l.p.Load(); s != nil {
		return s.Published()
	}
	return nil
}
