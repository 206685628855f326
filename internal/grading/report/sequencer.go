package report

import (
	"sync"

	appErr "autograde/pkg/errors"
)

// Sequencer accepts rows completed out of order and forwards them to a
// Recorder strictly by index, starting at 0.
type Sequencer struct {
	mu      sync.Mutex
	out     Recorder
	next    int
	pending map[int]Row
}

// NewSequencer wraps out.
func NewSequencer(out Recorder) *Sequencer {
	return &Sequencer{out: out, pending: make(map[int]Row)}
}

// Add buffers the row for index and flushes every row that is now in order.
// It returns the number of rows forwarded.
func (s *Sequencer) Add(index int, row Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < s.next {
		return 0, appErr.Newf(appErr.DuplicateWorkItem, "row %d already recorded", index)
	}
	if _, dup := s.pending[index]; dup {
		return 0, appErr.Newf(appErr.DuplicateWorkItem, "row %d already pending", index)
	}
	s.pending[index] = row
	flushed := 0
	for {
		r, ok := s.pending[s.next]
		if !ok {
			return flushed, nil
		}
		if err := s.out.Record(r.Student, r.Grade); err != nil {
			return flushed, err
		}
		delete(s.pending, s.next)
		s.next++
		flushed++
	}
}

// Pending returns how many rows wait for an earlier index.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
