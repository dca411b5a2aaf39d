package models

import "time"

// NotificationStatus is the outcome of one send attempt.
type NotificationStatus string

const (
	NotificationSuccess NotificationStatus = "success"
	NotificationFailure NotificationStatus = "failure"
)

// TemplateCourseResult is the template key used for approval result emails.
const TemplateCourseResult = "course-result"

// NotificationTemplate is a message template addressed by key.
type NotificationTemplate struct {
	Key       string    `db:"key" json:"key"`
	Type      string    `db:"type" json:"type"`
	Subject   string    `db:"subject" json:"subject"`
	Content   string    `db:"content" json:"content"`
	Enabled   bool      `db:"enabled" json:"enabled"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NotificationSettings is the notification configuration captured once per dispatch.
type NotificationSettings struct {
	Enabled   bool                            `json:"enabled"`
	Templates map[string]NotificationTemplate `json:"templates"`
}

// Template returns the template for key, if configured.
func (s NotificationSettings) Template(key string) (NotificationTemplate, bool) {
	tpl, ok := s.Templates[key]
	return tpl, ok
}

// NotificationLogEntry records one delivery attempt.
type NotificationLogEntry struct {
	ID        string             `db:"id" json:"id"`
	Type      string             `db:"type" json:"type"`
	Recipient string             `db:"recipient" json:"recipient"`
	Subject   string             `db:"subject" json:"subject"`
	Status    NotificationStatus `db:"status" json:"status"`
	Message   string             `db:"message" json:"message"`
	StudentID *string            `db:"student_id" json:"student_id,omitempty"`
	ClassID   *string            `db:"class_id" json:"class_id,omitempty"`
	CourseID  *string            `db:"course_id" json:"course_id,omitempty"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
}
