package model

import (
	"fmt"
	"strconv"
)

// ThreadID identifies a logical thread. 0 is the bootstrap thread.
type ThreadID int

// MainThreadID is the id of the thread that initialized the scheduler.
const MainThreadID ThreadID = 0

// NoThread marks an absent owner or peer.
const NoThread ThreadID = -1

// String returns the decimal form of the id.
func (id ThreadID) String() string {
	return strconv.Itoa(int(id))
}

// Valid reports whether the id could ever have been issued.
func (id ThreadID) Valid() bool {
	return id >= 0
}

// ThreadState represents the scheduling state of a thread.
type ThreadState string

const (
	ThreadStateRunning    ThreadState = "RUNNING"
	ThreadStateReady      ThreadState = "READY"
	ThreadStateBlocked    ThreadState = "BLOCKED"
	ThreadStateTerminated ThreadState = "TERMINATED"
)

// String returns the string representation of the thread state.
func (s ThreadState) String() string {
	return string(s)
}

// IsTerminal returns true once the thread can never run again.
func (s ThreadState) IsTerminal() bool {
	return s == ThreadStateTerminated
}

// ValidThreadTransitions defines the allowed state transitions for threads.
var ValidThreadTransitions = map[ThreadState][]ThreadState{
	ThreadStateRunning: {ThreadStateReady, ThreadStateBlocked, ThreadStateTerminated},
	ThreadStateReady:   {ThreadStateRunning, ThreadStateBlocked, ThreadStateTerminated},
	ThreadStateBlocked: {ThreadStateReady, ThreadStateTerminated},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ThreadState) CanTransitionTo(next ThreadState) bool {
	for _, allowed := range ValidThreadTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BlockReason is the set of reasons keeping a thread out of the ready queue.
// A thread is schedulable only when its set is empty.
type BlockReason uint8

const (
	BlockedExplicit BlockReason = 1 << iota
	BlockedMutex
)

// Has reports whether every reason in r is set.
func (b BlockReason) Has(r BlockReason) bool { return b&r == r }

// With returns the set with r added.
func (b BlockReason) With(r BlockReason) BlockReason { return b | r }

// Without returns the set with r removed.
func (b BlockReason) Without(r BlockReason) BlockReason { return b &^ r }

// Empty reports whether no reason is set.
func (b BlockReason) Empty() bool { return b == 0 }

func (b BlockReason) String() string {
	switch b {
	case 0:
		return "none"
	case BlockedExplicit:
		return "explicit"
	case BlockedMutex:
		return "mutex"
	case BlockedExplicit | BlockedMutex:
		return "explicit+mutex"
	default:
		return "unknown"
	}
}

// MarshalText encodes the set by name, e.g. "explicit+mutex".
func (b BlockReason) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText decodes a name written by MarshalText.
func (b *BlockReason) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "none":
		*b = 0
	case "explicit":
		*b = BlockedExplicit
	case "mutex":
		*b = BlockedMutex
	case "explicit+mutex":
		*b = BlockedExplicit | BlockedMutex
	default:
		return fmt.Errorf("unknown block reason %q", text)
	}
	return nil
}

// ThreadInfo is a read-only view of one thread control block.
type ThreadInfo struct {
	ID        ThreadID    `json:"id"`
	State     ThreadState `json:"state"`
	BlockedBy BlockReason `json:"blocked_by,omitempty"`
	Quantums  int         `json:"quantums"`
}
