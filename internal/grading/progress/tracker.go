// Package progress tracks per-submission attempt states of a running batch.
package progress

import (
	"sync"
	"time"

	"autograde/internal/grading/model"
	appErr "autograde/pkg/errors"
)

// ItemStatus is a read-only view of one attempt.
type ItemStatus struct {
	Index      int                `json:"index"`
	Student    string             `json:"student"`
	State      model.AttemptState `json:"state"`
	Grade      *float64           `json:"grade,omitempty"`
	Outcome    model.OutcomeKind  `json:"outcome,omitempty"`
	Detail     string             `json:"detail,omitempty"`
	PID        int                `json:"pid,omitempty"`
	StartedAt  int64              `json:"started_at,omitempty"`
	FinishedAt int64              `json:"finished_at,omitempty"`
}

// Snapshot summarises the run at one instant.
type Snapshot struct {
	RunID     string `json:"run_id"`
	Total     int    `json:"total"`
	Pending   int    `json:"pending"`
	Running   int    `json:"running"`
	Recorded  int    `json:"recorded"`
	Completed int    `json:"completed"`
	TimedOut  int    `json:"timed_out"`
	Crashed   int    `json:"crashed"`
	StartedAt int64  `json:"started_at"`
	Done      bool   `json:"done"`
}

// Tracker holds attempts keyed by student. Safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	runID     string
	startedAt time.Time
	done      bool
	order     []string
	attempts  map[string]*model.Attempt
	now       func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{attempts: make(map[string]*model.Attempt), now: time.Now}
}

// Reset starts a new run with every item Pending.
func (t *Tracker) Reset(runID string, items []model.WorkItem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runID = runID
	t.startedAt = t.now()
	t.done = false
	t.order = make([]string, 0, len(items))
	t.attempts = make(map[string]*model.Attempt, len(items))
	for _, item := range items {
		t.order = append(t.order, item.Student)
		t.attempts[item.Student] = &model.Attempt{Item: item, State: model.StatePending}
	}
}

// Start moves an attempt to Running.
func (t *Tracker) Start(student string, pid int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, err := t.transition(student, model.StateRunning)
	if err != nil {
		return err
	}
	a.StartedAt = t.now()
	a.PID = pid
	return nil
}

// SetPID attaches the grader process id to a running attempt.
func (t *Tracker) SetPID(student string, pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.attempts[student]; ok {
		a.PID = pid
	}
}

// Finish moves a running attempt to the terminal state of outcome.
func (t *Tracker) Finish(student string, outcome model.Outcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, err := t.transition(student, outcome.State())
	if err != nil {
		return err
	}
	a.FinishedAt = t.now()
	o := outcome
	a.Outcome = &o
	return nil
}

// Record marks a finished attempt as written to the report.
func (t *Tracker) Record(student string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.transition(student, model.StateRecorded)
	return err
}

// Close marks the run as finished.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
}

// Item returns the status of one student.
func (t *Tracker) Item(student string) (ItemStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.attempts[student]
	if !ok {
		return ItemStatus{}, false
	}
	return statusOf(a), true
}

// Items returns every attempt in enumeration order.
func (t *Tracker) Items() []ItemStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ItemStatus, 0, len(t.order))
	for _, s := range t.order {
		out = append(out, statusOf(t.attempts[s]))
	}
	return out
}

// Snapshot returns aggregate counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := Snapshot{RunID: t.runID, Total: len(t.order), Done: t.done}
	if !t.startedAt.IsZero() {
		snap.StartedAt = t.startedAt.UnixMilli()
	}
	for _, a := range t.attempts {
		switch a.State {
		case model.StatePending:
			snap.Pending++
		case model.StateRunning:
			snap.Running++
		case model.StateRecorded:
			snap.Recorded++
		}
		if a.Outcome == nil {
			continue
		}
		switch a.Outcome.Kind {
		case model.OutcomeCompleted:
			snap.Completed++
		case model.OutcomeTimedOut:
			snap.TimedOut++
		default:
			snap.Crashed++
		}
	}
	return snap
}

func (t *Tracker) transition(student string, to model.AttemptState) (*model.Attempt, error) {
	a, ok := t.attempts[student]
	if !ok {
		return nil, appErr.Newf(appErr.NotFound, "unknown student %s", student)
	}
	if !model.CanTransition(a.State, to) {
		return nil, appErr.Newf(appErr.InvalidValue, "illegal transition %s -> %s for %s", a.State, to, student)
	}
	a.State = to
	return a, nil
}

func statusOf(a *model.Attempt) ItemStatus {
	st := ItemStatus{
		Index:   a.Item.Index,
		Student: a.Item.Student,
		State:   a.State,
		PID:     a.PID,
	}
	if !a.StartedAt.IsZero() {
		st.StartedAt = a.StartedAt.UnixMilli()
	}
	if !a.FinishedAt.IsZero() {
		st.FinishedAt = a.FinishedAt.UnixMilli()
	}
	if a.Outcome != nil {
		st.Outcome = a.Outcome.Kind
		st.Detail = a.Outcome.Detail
		grade := a.Outcome.ReportGrade()
		st.Grade = &grade
	}
	return st
}
