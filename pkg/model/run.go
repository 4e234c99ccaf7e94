package model

import "time"

// RunState is the lifecycle of a recorded scheduler run.
type RunState string

const (
	RunStateRunning  RunState = "RUNNING"
	RunStateFinished RunState = "FINISHED"
)

// Run is one recorded execution of a scenario.
type Run struct {
	ID            string        `json:"id"`
	Scenario      string        `json:"scenario"`
	State         RunState      `json:"state"`
	Quantum       time.Duration `json:"quantum"`
	MaxThreads    int           `json:"max_threads"`
	Threads       int           `json:"threads"`
	TotalQuantums int           `json:"total_quantums"`
	Dropped       int           `json:"dropped_events"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
}
