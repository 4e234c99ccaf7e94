// Package preempt masks timer preemption around scheduler mutations.
//
// Ticks raised while the gate is disabled stay pending and are delivered
// when the outermost Enable brings the depth back to zero, on whichever
// logical thread is running at that point.
package preempt

import "sync/atomic"

// Gate is the scheduler's critical section. The depth belongs to the running
// logical thread; only Raise may be called from other goroutines.
type Gate struct {
	depth   int
	pending atomic.Bool
	handler func()
}

// New returns an enabled gate that calls handler for each delivered tick.
// The handler runs with the gate disabled.
func New(handler func()) *Gate {
	return &Gate{handler: handler}
}

// Raise marks a tick pending. Ticks coalesce: several raises before the next
// delivery produce one handler call.
func (g *Gate) Raise() {
	g.pending.Store(true)
}

// Disable masks delivery. Calls nest.
func (g *Gate) Disable() {
	g.depth++
}

// Enable undoes one Disable and, at depth zero, delivers pending ticks.
func (g *Gate) Enable() {
	g.depth--
	if g.depth < 0 {
		panic("preempt: Enable without matching Disable")
	}
	for g.depth == 0 && g.pending.Swap(false) {
		g.depth++
		g.handler()
		g.depth--
	}
}

// Clear drops a pending tick. Used when the quantum restarts.
func (g *Gate) Clear() {
	g.pending.Store(false)
}

// Masked reports whether delivery is currently disabled.
func (g *Gate) Masked() bool {
	return g.depth > 0
}

// Pending reports whether a tick is waiting for delivery.
func (g *Gate) Pending() bool {
	return g.pending.Load()
}
