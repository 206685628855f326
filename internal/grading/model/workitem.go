// Package model defines the grading data model shared by the batch runner.
package model

// WorkItem is one submission to grade. Student is unique within a run.
type WorkItem struct {
	Index    int
	Student  string
	Location string
}

// GraderRequest is the JSON document a grader process receives on stdin.
type GraderRequest struct {
	Student  string `json:"student"`
	Location string `json:"location"`
}

// GraderResponse is the JSON document a grader process prints as its last stdout line.
type GraderResponse struct {
	Grade *float64 `json:"grade"`
}

// GradeEvent is published once per recorded submission.
type GradeEvent struct {
	RunID      string  `json:"run_id"`
	Index      int     `json:"index"`
	Student    string  `json:"student"`
	Grade      float64 `json:"grade"`
	Outcome    string  `json:"outcome"`
	Detail     string  `json:"detail,omitempty"`
	DurationMs int64   `json:"duration_ms"`
	FinishedAt int64   `json:"finished_at"`
}
