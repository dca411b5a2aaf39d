package models

import "time"

// Outcome is a complete per-student evaluation.
type Outcome struct {
	Grade    float64 `json:"grade"`
	Approved bool    `json:"approved"`
}

// EvaluationDraft accumulates the two evaluation fields independently. A draft
// is pending until both are present.
type EvaluationDraft struct {
	Grade    *float64 `json:"grade,omitempty"`
	Approved *bool    `json:"approved,omitempty"`
}

// Outcome returns the complete evaluation, or false while the draft is pending.
func (d EvaluationDraft) Outcome() (Outcome, bool) {
	if d.Grade == nil || d.Approved == nil {
		return Outcome{}, false
	}
	return Outcome{Grade: *d.Grade, Approved: *d.Approved}, true
}

// StudentOutcome binds a complete evaluation to its student.
type StudentOutcome struct {
	StudentID string
	Outcome
}

// EvaluationRecord is the persisted raw scoring artifact for a student and course.
type EvaluationRecord struct {
	StudentID      string    `db:"student_id" json:"student_id"`
	CourseID       string    `db:"course_id" json:"course_id"`
	ClassID        string    `db:"class_id" json:"class_id"`
	Grade          float64   `db:"grade" json:"grade"`
	Approved       bool      `db:"approved" json:"approved"`
	CompletionDate time.Time `db:"completion_date" json:"completion_date"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
