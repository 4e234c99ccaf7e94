package workload

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/me/uthreads/pkg/model"
)

// spinCheckpoint is how many spin iterations run between preemption points.
const spinCheckpoint = 1000

// status maps an operation result to the library's 0 / -1 convention.
func status(err error) int {
	if err != nil {
		return -1
	}
	return 0
}

// newVM returns a JavaScript runtime with the thread library bound as
// global functions.
func (r *Runner) newVM() (*goja.Runtime, error) {
	vm := goja.New()
	s := r.s

	bindings := map[string]any{
		"tid":   func() int { return int(s.CurrentID()) },
		"total": func() int { return s.TotalQuantums() },
		"quantums": func(id int) int {
			n, err := s.Quantums(model.ThreadID(id))
			if err != nil {
				return -1
			}
			return n
		},
		"spawnCount": func() int { return len(r.results) },
		"spawn": func(name string) int {
			id, err := r.spawn(name)
			if err != nil {
				r.logger.Warn("script spawn failed", "name", name, "error", err)
				return -1
			}
			return int(id)
		},
		"block":      func(id int) int { return status(s.Block(model.ThreadID(id))) },
		"resume":     func(id int) int { return status(s.Resume(model.ThreadID(id))) },
		"terminate":  func(id int) int { return status(s.Terminate(model.ThreadID(id))) },
		"lock":       func() int { return status(s.MutexLock()) },
		"unlock":     func() int { return status(s.MutexUnlock()) },
		"yield":      func() { s.Yield() },
		"checkpoint": func() { s.Checkpoint() },
		"log": func(msg string) {
			fmt.Fprintf(r.out, "[%d] %s\n", s.CurrentID(), msg)
		},
		"spin": func(n int) int {
			for i := 0; i < n; i++ {
				if i%spinCheckpoint == 0 {
					s.Checkpoint()
				}
			}
			return n
		},
	}
	for name, fn := range bindings {
		if err := vm.Set(name, fn); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return vm, nil
}
