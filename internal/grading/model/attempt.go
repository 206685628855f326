package model

import "time"

// AttemptState is the lifecycle state of one submission within a run.
type AttemptState string

const (
	StatePending   AttemptState = "Pending"
	StateRunning   AttemptState = "Running"
	StateCompleted AttemptState = "Completed"
	StateTimedOut  AttemptState = "TimedOut"
	StateCrashed   AttemptState = "Crashed"
	StateRecorded  AttemptState = "Recorded"
)

var transitions = map[AttemptState][]AttemptState{
	StatePending:   {StateRunning},
	StateRunning:   {StateCompleted, StateTimedOut, StateCrashed},
	StateCompleted: {StateRecorded},
	StateTimedOut:  {StateRecorded},
	StateCrashed:   {StateRecorded},
}

// CanTransition reports whether from -> to is a legal attempt transition.
func CanTransition(from, to AttemptState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends an execution attempt.
func (s AttemptState) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateCrashed
}

// Attempt is the ephemeral execution record of one work item. Never persisted.
type Attempt struct {
	Item       WorkItem
	State      AttemptState
	StartedAt  time.Time
	FinishedAt time.Time
	PID        int
	Outcome    *Outcome
}
