// Package trace records scheduler events.
package trace

import (
	"sync"

	"github.com/me/uthreads/internal/scheduler"
	"github.com/me/uthreads/pkg/model"
)

// Recorder keeps the most recent events in memory, dropping the oldest once
// full. Observe is called by the scheduler; the accessors may be called from
// any goroutine.
type Recorder struct {
	mu      sync.Mutex
	limit   int
	events  []model.Event
	dropped int
}

// NewRecorder returns a Recorder holding at most limit events. A limit of
// zero or less keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Observe(ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && len(r.events) == r.limit {
		copy(r.events, r.events[1:])
		r.events = r.events[:len(r.events)-1]
		r.dropped++
	}
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events, oldest first.
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of events held.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Dropped returns how many events were discarded to stay within the limit.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Count returns the number of held events of the given kind.
func (r *Recorder) Count(kind model.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Fanout delivers each event to every observer in order.
type Fanout []scheduler.Observer

func (f Fanout) Observe(ev model.Event) {
	for _, o := range f {
		if o != nil {
			o.Observe(ev)
		}
	}
}
