package workload

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/me/uthreads/internal/logging"
	"github.com/me/uthreads/internal/scheduler"
	"github.com/me/uthreads/internal/timer"
)

// runScenario runs sc on a scheduler whose thread 0 is a helper goroutine
// and returns the summary and everything scripts logged.
func runScenario(t *testing.T, sc *Scenario) (*Summary, string) {
	t.Helper()
	return runScenarioAfter(t, sc, nil)
}

// runScenarioAfter is runScenario with prepare run on thread 0 before the
// scenario starts.
func runScenarioAfter(t *testing.T, sc *Scenario, prepare func(s *scheduler.Scheduler, clock *timer.Manual)) (*Summary, string) {
	t.Helper()
	var (
		out  bytes.Buffer
		sum  *Summary
		rerr error
	)
	done := make(chan struct{})
	go func() {
		clock := timer.NewManual()
		s, err := scheduler.New(
			scheduler.Config{Quantum: time.Millisecond, MaxThreads: 16, VerifyInvariants: true},
			scheduler.WithTimer(clock),
			scheduler.WithLogger(logging.Discard()),
			scheduler.WithExit(func(int) { close(done) }),
		)
		if err != nil {
			rerr = err
			close(done)
			return
		}
		if prepare != nil {
			prepare(s, clock)
		}
		sum, rerr = NewRunner(s, logging.Discard(), &out).Run(context.Background(), sc)
		s.Terminate(0)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scenario did not finish")
	}
	if rerr != nil {
		t.Fatalf("Run: %v", rerr)
	}
	return sum, out.String()
}

func mustParse(t *testing.T, y string) *Scenario {
	t.Helper()
	sc, err := Parse([]byte(y))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return sc
}

func TestRun_PingPong(t *testing.T) {
	sum, out := runScenario(t, mustParse(t, pingpong))

	want := strings.Join([]string{
		"[1] step 0", "[2] step 0",
		"[1] step 1", "[2] step 1",
		"[1] step 2", "[2] step 2",
	}, "\n") + "\n"
	if out != want {
		t.Errorf("output:\n%s\nwant:\n%s", out, want)
	}
	if sum.Spawned != 2 || sum.Returned != 2 || sum.Stalled {
		t.Errorf("summary = %+v", sum)
	}
	for _, res := range sum.Threads {
		if res.Quantums != 4 {
			t.Errorf("thread %d quantums = %d, want 4", res.ID, res.Quantums)
		}
	}
}

func TestRun_ThreadStartedByPendingTick(t *testing.T) {
	sc := mustParse(t, `
name: early
threads:
  - name: one
    script: "1"
`)
	sum, _ := runScenarioAfter(t, sc, func(s *scheduler.Scheduler, clock *timer.Manual) {
		for i := 0; i < 3; i++ {
			s.Yield()
		}
		clock.Fire()
	})

	if len(sum.Threads) != 1 {
		t.Fatalf("threads = %+v", sum.Threads)
	}
	res := sum.Threads[0]
	if res.ID != 1 || res.Outcome != OutcomeReturned || res.Quantums != 1 {
		t.Errorf("result id=%d outcome=%s quantums=%d, want 1/returned/1", res.ID, res.Outcome, res.Quantums)
	}
}

func TestRun_MutexExcludes(t *testing.T) {
	sc := mustParse(t, `
name: mutex
threads:
  - name: worker
    count: 3
    script: |
      for (var i = 0; i < 2; i++) {
        lock();
        log("in");
        yield();
        log("out");
        unlock();
        yield();
      }
`)
	sum, out := runScenario(t, sc)
	if sum.Returned != 3 {
		t.Fatalf("summary = %+v", sum)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 12 {
		t.Fatalf("got %d lines, want 12:\n%s", len(lines), out)
	}
	for i := 0; i < len(lines); i += 2 {
		in, outLine := lines[i], lines[i+1]
		if !strings.HasSuffix(in, " in") || !strings.HasSuffix(outLine, " out") || in[:3] != outLine[:3] {
			t.Errorf("critical section interleaved at line %d: %q, %q", i, in, outLine)
		}
	}
}

func TestRun_OutcomesAndBindings(t *testing.T) {
	sc := mustParse(t, `
name: outcomes
threads:
  - name: quitter
    script: terminate(tid()); log("unreachable");
  - name: thrower
    script: throw new Error("boom");
  - name: parent
    script: |
      var c = spawn("child");
      log("child=" + c + " bad=" + spawn("nope") + " count=" + spawnCount());
      log("q0=" + quantums(0) + " q99=" + quantums(99) + " block0=" + block(0));
  - name: child
    deferred: true
    script: log("child ran as " + tid());
`)
	sum, out := runScenario(t, sc)

	if strings.Contains(out, "unreachable") {
		t.Error("thread continued after terminating itself")
	}
	if !strings.Contains(out, "bad=-1 count=4") {
		t.Errorf("spawn bindings output:\n%s", out)
	}
	if !strings.Contains(out, "q99=-1 block0=-1") {
		t.Errorf("error bindings output:\n%s", out)
	}
	if !strings.Contains(out, "child ran as") {
		t.Errorf("deferred child did not run:\n%s", out)
	}

	byName := map[string]*ThreadResult{}
	for _, res := range sum.Threads {
		byName[res.Name] = res
	}
	if r := byName["quitter"]; r == nil || r.Outcome != OutcomeTerminated {
		t.Errorf("quitter = %+v, want terminated", r)
	}
	if r := byName["thrower"]; r == nil || r.Outcome != OutcomeError || !strings.Contains(r.Error, "boom") {
		t.Errorf("thrower = %+v, want error", r)
	}
	if r := byName["child"]; r == nil || r.Outcome != OutcomeReturned {
		t.Errorf("child = %+v, want returned", r)
	}
	if sum.Spawned != 4 || sum.Failed != 1 || sum.Terminated != 1 || sum.Returned != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRun_StalledThreadsAreTerminated(t *testing.T) {
	sc := mustParse(t, `
name: stall
threads:
  - name: sleeper
    script: block(tid()); log("woke");
`)
	sum, out := runScenario(t, sc)
	if !sum.Stalled || sum.Terminated != 1 {
		t.Errorf("summary = %+v, want stalled with one terminated", sum)
	}
	if strings.Contains(out, "woke") {
		t.Error("blocked thread ran")
	}
}

func TestRun_MainScriptResumes(t *testing.T) {
	sc := mustParse(t, `
name: resume
main: |
  yield();
  resume(1);
threads:
  - name: sleeper
    script: block(tid()); log("woke");
`)
	sum, out := runScenario(t, sc)
	if sum.Stalled || sum.Returned != 1 || sum.MainError != "" {
		t.Errorf("summary = %+v", sum)
	}
	if out != "[1] woke\n" {
		t.Errorf("output = %q", out)
	}
}
