package model

import (
	"math"
	"time"
)

// SentinelGrade is written to the report when no valid grade was obtained.
const SentinelGrade = -1.0

// OutcomeKind tags how one grader invocation ended.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "Completed"
	OutcomeTimedOut  OutcomeKind = "TimedOut"
	OutcomeCrashed   OutcomeKind = "Crashed"
)

// Outcome is the result of one grader invocation.
// Grade is meaningful only when Kind is OutcomeCompleted.
type Outcome struct {
	Kind     OutcomeKind
	Grade    float64
	Detail   string
	Duration time.Duration
}

// Completed builds a successful outcome.
func Completed(grade float64, elapsed time.Duration) Outcome {
	return Outcome{Kind: OutcomeCompleted, Grade: grade, Duration: elapsed}
}

// TimedOut builds an outcome for a grader that exceeded its budget.
func TimedOut(budget, elapsed time.Duration) Outcome {
	return Outcome{Kind: OutcomeTimedOut, Detail: "exceeded budget " + budget.String(), Duration: elapsed}
}

// Crashed builds an outcome for a grader that failed before producing a grade.
func Crashed(detail string, elapsed time.Duration) Outcome {
	return Outcome{Kind: OutcomeCrashed, Detail: detail, Duration: elapsed}
}

// OK reports whether the grader produced a grade.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeCompleted
}

// ReportGrade collapses the outcome to the number written to the report.
func (o Outcome) ReportGrade() float64 {
	if !o.OK() || math.IsNaN(o.Grade) || math.IsInf(o.Grade, 0) {
		return SentinelGrade
	}
	return o.Grade
}

// State maps the outcome to the terminal attempt state.
func (o Outcome) State() AttemptState {
	switch o.Kind {
	case OutcomeCompleted:
		return StateCompleted
	case OutcomeTimedOut:
		return StateTimedOut
	default:
		return StateCrashed
	}
}
