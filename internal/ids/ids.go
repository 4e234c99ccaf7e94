// Package ids issues and recycles thread identities.
//
// Freed ids go into an ascending recycle pool and are reissued smallest
// first before any id past the high-water mark.
package ids

import "container/heap"

// Allocator is not safe for concurrent use; the scheduler calls it with
// preemption disabled.
type Allocator struct {
	max     int
	next    int // high-water mark: the next never-issued id
	live    int
	recycle pool
}

// New returns an allocator permitting at most max live ids.
func New(max int) *Allocator {
	return &Allocator{max: max}
}

// Allocate returns the smallest recycled id, or the next sequential one.
// ok is false when max ids are already live.
func (a *Allocator) Allocate() (id int, ok bool) {
	if a.live >= a.max {
		return 0, false
	}
	if a.recycle.Len() > 0 {
		id = heap.Pop(&a.recycle).(int)
	} else {
		id = a.next
		a.next++
	}
	a.live++
	return id, true
}

// Release returns id to the recycle pool. The id must be live.
func (a *Allocator) Release(id int) {
	heap.Push(&a.recycle, id)
	a.live--
}

// Live returns the number of ids currently issued.
func (a *Allocator) Live() int { return a.live }

// Max returns the live-id limit.
func (a *Allocator) Max() int { return a.max }

// Issued reports whether id is currently live.
func (a *Allocator) Issued(id int) bool {
	if id < 0 || id >= a.next {
		return false
	}
	for _, r := range a.recycle {
		if r == id {
			return false
		}
	}
	return true
}

type pool []int

func (p pool) Len() int           { return len(p) }
func (p pool) Less(i, j int) bool { return p[i] < p[j] }
func (p pool) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p *pool) Push(x any)        { *p = append(*p, x.(int)) }
func (p *pool) Pop() any {
	old := *p
	n := len(old)
	x := old[n-1]
	*p = old[:n-1]
	return x
}
