package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/me/uthreads/pkg/model"
)

// CurrentID returns the id of the calling thread.
func (s *Scheduler) CurrentID() model.ThreadID {
	self := s.enter()
	defer s.leave(self)
	return self.id
}

// TotalQuantums returns the number of quanta started since New, counting the
// current one.
func (s *Scheduler) TotalQuantums() int {
	defer s.leave(s.enter())
	return s.total
}

// Quantums returns how many quanta thread id has started, counting the
// current one if it is running.
func (s *Scheduler) Quantums(id model.ThreadID) (int, error) {
	defer s.leave(s.enter())

	t, ok := s.threads[id]
	if !ok {
		return -1, s.fail(model.NewThreadError("get_quantums", model.ErrIdentity, id,
			"no live thread with id %d", id))
	}
	return t.quantums, nil
}

// MutexInfo describes the mutex in a Snapshot.
type MutexInfo struct {
	Locked  bool             `json:"locked"`
	Owner   model.ThreadID   `json:"owner"`
	Waiters []model.ThreadID `json:"waiters"`
}

// Snapshot is a point-in-time copy of the scheduler state.
type Snapshot struct {
	Running       model.ThreadID     `json:"running"`
	Ready         []model.ThreadID   `json:"ready"`
	Blocked       []model.ThreadID   `json:"blocked"`
	Threads       []model.ThreadInfo `json:"threads"`
	Mutex         MutexInfo          `json:"mutex"`
	TotalQuantums int                `json:"total_quantums"`
	MaxThreads    int                `json:"max_threads"`
	TakenAt       time.Time          `json:"taken_at"`
}

// Thread returns the entry for id.
func (sn *Snapshot) Thread(id model.ThreadID) (model.ThreadInfo, bool) {
	for _, ti := range sn.Threads {
		if ti.ID == id {
			return ti, true
		}
	}
	return model.ThreadInfo{}, false
}

// Snapshot copies the current state. Must be called by a logical thread.
func (s *Scheduler) Snapshot() *Snapshot {
	defer s.leave(s.enter())
	return s.snapshot()
}

// Published returns the state as of the last completed mutation. Safe to
// call from any goroutine.
func (s *Scheduler) Published() *Snapshot {
	return s.published.Load()
}

func (s *Scheduler) publish() {
	s.published.Store(s.snapshot())
}

func (s *Scheduler) snapshot() *Snapshot {
	sn := &Snapshot{
		Running:       s.running.id,
		Ready:         make([]model.ThreadID, 0, len(s.ready)),
		Blocked:       make([]model.ThreadID, 0, len(s.blocked)),
		Threads:       make([]model.ThreadInfo, 0, len(s.threads)),
		TotalQuantums: s.total,
		MaxThreads:    s.ids.Max(),
		TakenAt:       time.Now().UTC(),
		Mutex: MutexInfo{
			Locked:  s.mu.locked,
			Owner:   s.mu.owner,
			Waiters: make([]model.ThreadID, 0, len(s.mu.waiters)),
		},
	}
	for _, t := range s.ready {
		sn.Ready = append(sn.Ready, t.id)
	}
	for id := range s.blocked {
		sn.Blocked = append(sn.Blocked, id)
	}
	sort.Slice(sn.Blocked, func(i, j int) bool { return sn.Blocked[i] < sn.Blocked[j] })
	for _, t := range s.threads {
		sn.Threads = append(sn.Threads, t.info())
	}
	sort.Slice(sn.Threads, func(i, j int) bool { return sn.Threads[i].ID < sn.Threads[j].ID })
	for _, w := range s.mu.waiters {
		sn.Mutex.Waiters = append(sn.Mutex.Waiters, w.id)
	}
	return sn
}

// Verify checks the scheduler's structural invariants.
func (s *Scheduler) Verify() error {
	defer s.leave(s.enter())
	return s.verify()
}

func (s *Scheduler) verify() error {
	bad := func(format string, args ...any) error {
		return model.NewThreadError("verify", model.ErrInternal, model.NoThread, format, args...)
	}

	if s.running == nil || s.running.state != model.ThreadStateRunning {
		return bad("current thread is not RUNNING")
	}
	if s.threads[s.running.id] != s.running {
		return bad("running thread %d is not live", s.running.id)
	}

	seen := map[model.ThreadID]string{s.running.id: "running"}
	for _, t := range s.ready {
		if where, dup := seen[t.id]; dup {
			return bad("thread %d in ready queue is also %s", t.id, where)
		}
		if t.state != model.ThreadStateReady || !t.blocked.Empty() {
			return bad("thread %d in ready queue has state %s blocked by %s", t.id, t.state, t.blocked)
		}
		seen[t.id] = "ready"
	}
	for id, t := range s.blocked {
		if where, dup := seen[id]; dup {
			return bad("thread %d in blocked set is also %s", id, where)
		}
		if t.id != id || t.state != model.ThreadStateBlocked || t.blocked.Empty() {
			return bad("thread %d in blocked set has state %s blocked by %s", id, t.state, t.blocked)
		}
		seen[id] = "blocked"
	}
	if len(seen) != len(s.threads) {
		return bad("%d threads scheduled but %d live", len(seen), len(s.threads))
	}
	for id, t := range s.threads {
		if _, ok := seen[id]; !ok {
			return bad("live thread %d is neither running, ready nor blocked", id)
		}
		if !s.ids.Issued(int(id)) {
			return bad("live thread %d holds an unissued id", id)
		}
		if t.blocked.Has(model.BlockedMutex) && !s.waiting(t) {
			return bad("thread %d is mutex-blocked but not waiting", id)
		}
	}
	if s.ids.Live() != len(s.threads) {
		return bad("allocator has %d live ids, scheduler has %d threads", s.ids.Live(), len(s.threads))
	}

	if s.mu.locked != (s.mu.owner != model.NoThread) {
		return bad("mutex locked=%v with owner %d", s.mu.locked, s.mu.owner)
	}
	if s.mu.locked {
		if _, ok := s.threads[s.mu.owner]; !ok {
			return bad("mutex owner %d is not live", s.mu.owner)
		}
	}
	for _, w := range s.mu.waiters {
		if !w.blocked.Has(model.BlockedMutex) || s.blocked[w.id] != w {
			return bad("mutex waiter %d is not mutex-blocked", w.id)
		}
		if w.id == s.mu.owner {
			return bad("mutex owner %d is also waiting", w.id)
		}
	}
	return nil
}

func (s *Scheduler) waiting(t *Thread) bool {
	for _, w := range s.mu.waiters {
		if w == t {
			return true
		}
	}
	return false
}

// String is for debug logging.
func (sn *Snapshot) String() string {
	return fmt.Sprintf("running=%d ready=%v blocked=%v total=%d", sn.Running, sn.Ready, sn.Blocked, sn.TotalQuantums)
}
