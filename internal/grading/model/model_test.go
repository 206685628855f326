package model

import (
	"math"
	"testing"
	"time"
)

func TestReportGradeCollapsesFailures(t *testing.T) {
	tests := []struct {
		name string
		out  Outcome
		want float64
	}{
		{"completed", Completed(10, time.Millisecond), 10},
		{"completed low score", Completed(-0.5, time.Millisecond), -0.5},
		{"timed out", TimedOut(time.Second, time.Second), SentinelGrade},
		{"crashed", Crashed("exit status 1", 0), SentinelGrade},
		{"nan grade", Completed(math.NaN(), 0), SentinelGrade},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.out.ReportGrade(); got != tt.want {
				t.Fatalf("ReportGrade() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOutcomeState(t *testing.T) {
	if Completed(1, 0).State() != StateCompleted {
		t.Fatal("completed outcome should map to Completed")
	}
	if TimedOut(time.Second, 0).State() != StateTimedOut {
		t.Fatal("timed out outcome should map to TimedOut")
	}
	if Crashed("boom", 0).State() != StateCrashed {
		t.Fatal("crashed outcome should map to Crashed")
	}
}

func TestTransitions(t *testing.T) {
	legal := [][2]AttemptState{
		{StatePending, StateRunning},
		{StateRunning, StateCompleted},
		{StateRunning, StateTimedOut},
		{StateRunning, StateCrashed},
		{StateCrashed, StateRecorded},
	}
	for _, tr := range legal {
		if !CanTransition(tr[0], tr[1]) {
			t.Fatalf("expected %s -> %s to be legal", tr[0], tr[1])
		}
	}
	illegal := [][2]AttemptState{
		{StatePending, StateCompleted},
		{StatePending, StateRecorded},
		{StateRecorded, StateRecorded},
		{StateCompleted, StateRunning},
	}
	for _, tr := range illegal {
		if CanTransition(tr[0], tr[1]) {
			t.Fatalf("expected %s -> %s to be illegal", tr[0], tr[1])
		}
	}
}
