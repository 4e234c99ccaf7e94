// Package capsule holds the resumable execution state of one logical thread.
//
// A logical thread runs on its own goroutine, but at most one of those
// goroutines is ever allowed to run: every other one is parked on its
// capsule's permit channel. Capturing a thread's context is parking it;
// restoring it is granting the permit.
//
// A terminated thread never runs again. Its goroutine is not unwound while
// caller frames are on its stack, because unwinding would run their deferred
// calls alongside the running thread; it stays blocked instead. Only a
// goroutine whose entry function has returned is unwound.
package capsule

import (
	"runtime"
	"sync/atomic"
)

// Capsule is exclusively owned by one thread control block.
type Capsule struct {
	permit   chan struct{}
	kill     chan struct{}
	entry    func()
	started  bool
	dead     atomic.Bool
	returned atomic.Bool
}

// Bootstrap returns the capsule for the calling goroutine, which is already
// running.
func Bootstrap() *Capsule {
	return &Capsule{
		permit:  make(chan struct{}, 1),
		kill:    make(chan struct{}),
		started: true,
	}
}

// Prime returns a capsule whose first Restore starts entry on a fresh
// goroutine.
func Prime(entry func()) *Capsule {
	return &Capsule{
		permit: make(chan struct{}, 1),
		kill:   make(chan struct{}),
		entry:  entry,
	}
}

// Restore transfers control to c. It does not block; the caller is
// expected to Park or Exit right after.
func (c *Capsule) Restore() {
	if !c.started {
		c.started = true
		go c.entry()
		return
	}
	c.permit <- struct{}{}
}

// Park blocks the calling goroutine until c is restored. If c is released
// instead, the goroutine unwinds and Park never returns.
func (c *Capsule) Park() {
	select {
	case <-c.permit:
	case <-c.kill:
		c.vanish()
	}
}

// Exit abandons c from its own goroutine. Never returns.
func (c *Capsule) Exit() {
	c.dead.Store(true)
	c.vanish()
}

// MarkReturned records that the entry function of c's goroutine has
// returned, so ending the goroutine runs no caller's deferred calls.
func (c *Capsule) MarkReturned() {
	c.returned.Store(true)
}

// vanish ends the calling goroutine's part in the program. It unwinds only
// after MarkReturned; otherwise it blocks forever.
func (c *Capsule) vanish() {
	if c.returned.Load() {
		runtime.Goexit()
	}
	select {}
}

// Release frees a parked capsule. Its goroutine, if any, never runs again.
// Safe to call more than once.
func (c *Capsule) Release() {
	if c.dead.CompareAndSwap(false, true) {
		close(c.kill)
	}
}

// Dead reports whether c has been released or exited. Deferred calls on an
// unwinding goroutine use it to skip scheduler bookkeeping.
func (c *Capsule) Dead() bool {
	return c.dead.Load()
}

// Started reports whether c's goroutine exists.
func (c *Capsule) Started() bool {
	return c.started
}

// Switch parks from after restoring to.
func Switch(from, to *Capsule) {
	to.Restore()
	from.Park()
}
