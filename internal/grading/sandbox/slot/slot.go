// Package slot implements the single-slot result channel between a grader
// process and the supervisor.
package slot

import (
	"sync/atomic"

	"autograde/internal/grading/model"
)

// Entry is the value held by a slot.
type Entry struct {
	// Done is false while the slot still holds the pre-seeded sentinel.
	Done  bool
	Grade float64
}

// Slot starts pre-seeded with the sentinel. It accepts one worker write and
// is read once by the supervisor through Seal.
type Slot struct {
	seed   *Entry
	sealed *Entry
	v      atomic.Pointer[Entry]
}

// New returns a slot already holding the sentinel entry.
func New() *Slot {
	s := &Slot{
		seed:   &Entry{Grade: model.SentinelGrade},
		sealed: &Entry{Grade: model.SentinelGrade},
	}
	s.v.Store(s.seed)
	return s
}

// Store writes the grader's grade. It fails if a grade was already stored or
// the slot has been sealed.
func (s *Slot) Store(grade float64) bool {
	return s.v.CompareAndSwap(s.seed, &Entry{Done: true, Grade: grade})
}

// Load returns the current entry without sealing.
func (s *Slot) Load() Entry {
	return *s.v.Load()
}

// Seal freezes the slot and returns its final entry. A write either lands
// before Seal and is returned, or is rejected afterwards.
func (s *Slot) Seal() Entry {
	if s.v.CompareAndSwap(s.seed, s.sealed) {
		return *s.sealed
	}
	return *s.v.Load()
}

// Sealed reports whether Seal ran before any grade was stored.
func (s *Slot) Sealed() bool {
	return s.v.Load() == s.sealed
}
