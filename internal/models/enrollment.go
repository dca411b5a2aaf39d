package models

import "time"

// EnrollmentStatus represents the state of a history record.
type EnrollmentStatus string

// EnrollmentStatusCompleted is the only status written by class conclusion.
const EnrollmentStatusCompleted EnrollmentStatus = "Concluído"

// Enrollment records that a student completed a course. It outlives the class
// that produced it.
type Enrollment struct {
	ID               string           `db:"id" json:"id"`
	CourseID         string           `db:"course_id" json:"course_id"`
	UserID           string           `db:"user_id" json:"user_id"`
	InstructorID     *string          `db:"instructor_id" json:"instructor_id,omitempty"`
	ClassID          *string          `db:"class_id" json:"class_id,omitempty"`
	Status           EnrollmentStatus `db:"status" json:"status"`
	Grade            float64          `db:"grade" json:"grade"`
	Approved         bool             `db:"approved" json:"approved"`
	CompletionDate   time.Time        `db:"completion_date" json:"completion_date"`
	VerificationCode string           `db:"verification_code" json:"verification_code"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentUpdate lists editable history fields; nil means unchanged.
type EnrollmentUpdate struct {
	Grade          *float64
	Approved       *bool
	CompletionDate *time.Time
	InstructorID   *string
}

// Certificate is the public view of an enrollment used for authenticity checks.
type Certificate struct {
	VerificationCode string    `json:"verification_code"`
	StudentName      string    `json:"student_name"`
	CourseName       string    `json:"course_name"`
	WorkloadHours    int       `json:"workload_hours"`
	InstructorName   string    `json:"instructor_name,omitempty"`
	CompletionDate   time.Time `json:"completion_date"`
	Grade            float64   `json:"grade"`
	EnrollmentID     string    `json:"enrollment_id"`
}
