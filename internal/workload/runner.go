package workload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dop251/goja"

	"github.com/me/uthreads/internal/scheduler"
	"github.com/me/uthreads/pkg/model"
)

// Outcome is how a scripted thread ended.
type Outcome string

const (
	OutcomeRunning    Outcome = "running"
	OutcomeReturned   Outcome = "returned"
	OutcomeError      Outcome = "error"
	OutcomeTerminated Outcome = "terminated"
)

// ThreadResult reports one scripted thread.
type ThreadResult struct {
	ID       model.ThreadID `json:"id"`
	Name     string         `json:"name"`
	Outcome  Outcome        `json:"outcome"`
	Quantums int            `json:"quantums"`
	Error    string         `json:"error,omitempty"`
}

// Summary reports a finished scenario.
type Summary struct {
	Scenario      string          `json:"scenario"`
	Threads       []*ThreadResult `json:"threads"`
	Spawned       int             `json:"spawned"`
	Returned      int             `json:"returned"`
	Failed        int             `json:"failed"`
	Terminated    int             `json:"terminated"`
	Stalled       bool            `json:"stalled"`
	MainError     string          `json:"main_error,omitempty"`
	TotalQuantums int             `json:"total_quantums"`
	Elapsed       time.Duration   `json:"elapsed"`
}

// Runner executes scenarios. Run must be called by thread 0 of s.
type Runner struct {
	s       *scheduler.Scheduler
	logger  *slog.Logger
	out     io.Writer
	bodies  map[string]*goja.Program
	results []*ThreadResult
}

// NewRunner returns a Runner whose scripts write log() lines to out.
func NewRunner(s *scheduler.Scheduler, logger *slog.Logger, out io.Writer) *Runner {
	return &Runner{
		s:      s,
		logger: logger.With("component", "workload"),
		out:    out,
	}
}

// Run spawns the scenario's threads, runs the main script on thread 0, then
// yields until every other thread has ended. If the remaining threads are
// all blocked, or ctx is done, they are terminated and the summary is marked
// stalled.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Summary, error) {
	start := time.Now()
	r.bodies = make(map[string]*goja.Program, len(sc.Threads))
	r.results = nil
	for _, spec := range sc.Threads {
		prog, err := goja.Compile(spec.Name, spec.Script, false)
		if err != nil {
			return nil, fmt.Errorf("compile thread %q: %w", spec.Name, err)
		}
		r.bodies[spec.Name] = prog
	}

	r.logger.Info("scenario starting", "scenario", sc.Name, "threads", sc.InitialThreads())
	for _, spec := range sc.Threads {
		for i := 0; i < spec.Instances(); i++ {
			if _, err := r.spawn(spec.Name); err != nil {
				r.cleanup()
				return nil, fmt.Errorf("spawn %q: %w", spec.Name, err)
			}
		}
	}

	sum := &Summary{Scenario: sc.Name}
	if sc.Main != "" {
		if err := r.runMain(sc.Main); err != nil {
			sum.MainError = err.Error()
			r.logger.Warn("main script failed", "error", err)
		}
	}

	for {
		r.sample()
		sn := r.s.Snapshot()
		if len(sn.Threads) == 1 {
			break
		}
		if len(sn.Ready) == 0 {
			r.logger.Warn("every remaining thread is blocked", "live", len(sn.Threads)-1)
			sum.Stalled = true
			break
		}
		if ctx.Err() != nil {
			r.logger.Warn("scenario cancelled", "error", ctx.Err())
			sum.Stalled = true
			break
		}
		r.s.Yield()
	}
	r.cleanup()

	sum.Threads = r.results
	sum.Spawned = len(r.results)
	for _, res := range r.results {
		switch res.Outcome {
		case OutcomeReturned:
			sum.Returned++
		case OutcomeError:
			sum.Failed++
		case OutcomeTerminated:
			sum.Terminated++
		}
	}
	sum.TotalQuantums = r.s.TotalQuantums()
	sum.Elapsed = time.Since(start)
	r.logger.Info("scenario finished", "scenario", sc.Name, "returned", sum.Returned,
		"failed", sum.Failed, "terminated", sum.Terminated, "stalled", sum.Stalled)
	return sum, nil
}

// spawn starts one instance of the named body.
func (r *Runner) spawn(name string) (model.ThreadID, error) {
	prog, ok := r.bodies[name]
	if !ok {
		return model.NoThread, fmt.Errorf("no thread body named %q", name)
	}
	res := &ThreadResult{Name: name, Outcome: OutcomeRunning}
	// A pending tick can run the new thread before Spawn returns, so the
	// thread records its own id.
	id, err := r.s.Spawn(func() {
		res.ID = r.s.CurrentID()
		r.execute(res, prog)
	})
	if err != nil {
		return model.NoThread, err
	}
	// An earlier thread that held this id was terminated without returning.
	for _, old := range r.results {
		if old.ID == id && old.Outcome == OutcomeRunning {
			old.Outcome = OutcomeTerminated
		}
	}
	res.ID = id
	r.results = append(r.results, res)
	return id, nil
}

// execute is the entry function of a scripted thread.
func (r *Runner) execute(res *ThreadResult, prog *goja.Program) {
	vm, err := r.newVM()
	if err == nil {
		_, err = vm.RunProgram(prog)
	}
	res.Quantums, _ = r.s.Quantums(res.ID)
	if err != nil {
		res.Outcome = OutcomeError
		res.Error = err.Error()
		r.logger.Warn("thread script failed", "tid", res.ID, "name", res.Name, "error", err)
		return
	}
	res.Outcome = OutcomeReturned
}

func (r *Runner) runMain(script string) error {
	vm, err := r.newVM()
	if err != nil {
		return err
	}
	_, err = vm.RunString(script)
	return err
}

// sample copies quantum counts of still-running threads from the scheduler.
func (r *Runner) sample() {
	sn := r.s.Snapshot()
	for _, res := range r.results {
		if res.Outcome != OutcomeRunning {
			continue
		}
		if ti, ok := sn.Thread(res.ID); ok {
			res.Quantums = ti.Quantums
		} else {
			res.Outcome = OutcomeTerminated
		}
	}
}

// cleanup terminates every scripted thread that is still live.
func (r *Runner) cleanup() {
	r.sample()
	for _, res := range r.results {
		if res.Outcome != OutcomeRunning {
			continue
		}
		if err := r.s.Terminate(res.ID); err != nil {
			r.logger.Warn("terminate leftover thread", "tid", res.ID, "error", err)
		}
		res.Outcome = OutcomeTerminated
	}
}
