package model

import "time"

// EventKind names a scheduler event.
type EventKind string

const (
	EventSpawn     EventKind = "SPAWN"
	EventSwitch    EventKind = "SWITCH"
	EventBlock     EventKind = "BLOCK"
	EventResume    EventKind = "RESUME"
	EventTerminate EventKind = "TERMINATE"
	EventLock      EventKind = "LOCK"
	EventLockWait  EventKind = "LOCK_WAIT"
	EventUnlock    EventKind = "UNLOCK"
	EventShutdown  EventKind = "SHUTDOWN"
)

// SwitchReason explains why a context switch happened.
type SwitchReason string

const (
	ReasonTick      SwitchReason = "tick"
	ReasonYield     SwitchReason = "yield"
	ReasonBlock     SwitchReason = "block"
	ReasonMutex     SwitchReason = "mutex"
	ReasonTerminate SwitchReason = "terminate"
)

// Event is one entry of a scheduler trace.
//
// TID is the subject of the event (the thread switched to, spawned, blocked...).
// Peer is the other party when there is one: the thread switched away from,
// the caller of block/terminate, or the new mutex owner on unlock.
type Event struct {
	Seq      int64        `json:"seq"`
	Kind     EventKind    `json:"kind"`
	TID      ThreadID     `json:"tid"`
	Peer     ThreadID     `json:"peer"`
	Total    int          `json:"total_quantums"`
	Quantums int          `json:"quantums"`
	Reason   SwitchReason `json:"reason,omitempty"`
	At       time.Time    `json:"at"`
}
