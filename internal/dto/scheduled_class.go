package dto

import (
	"strings"
	"time"

	"github.com/noah-isme/turmas-api/internal/models"
)

// ScheduledClassQuery binds the list filters of the classes endpoint.
type ScheduledClassQuery struct {
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// EvaluationInput is one student's evaluation as typed by the operator.
// Either field may be omitted; the student is then left pending.
type EvaluationInput struct {
	Grade    *float64 `json:"grade"`
	Approved *bool    `json:"approved"`
}

// ConcludeClassRequest is the payload of the conclude endpoint.
type ConcludeClassRequest struct {
	ConfirmedDate string                     `json:"confirmed_date"`
	StartTime     string                     `json:"start_time"`
	EndTime       string                     `json:"end_time"`
	Evaluations   map[string]EvaluationInput `json:"evaluations"`
}

// Window parses the confirmed window. Missing values yield a zero field so
// the conclusion service can reject the request as a whole.
func (r ConcludeClassRequest) Window() (models.ClassWindow, error) {
	window := models.ClassWindow{
		StartTime: strings.TrimSpace(r.StartTime),
		EndTime:   strings.TrimSpace(r.EndTime),
	}
	raw := strings.TrimSpace(r.ConfirmedDate)
	if raw == "" {
		return window, nil
	}
	date, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return window, err
	}
	window.Date = date
	return window, nil
}

// Drafts converts the typed evaluations into drafts keyed by student id.
func (r ConcludeClassRequest) Drafts() map[string]models.EvaluationDraft {
	drafts := make(map[string]models.EvaluationDraft, len(r.Evaluations))
	for id, in := range r.Evaluations {
		drafts[id] = models.EvaluationDraft{Grade: in.Grade, Approved: in.Approved}
	}
	return drafts
}

// NotifyResultsRequest lists the addresses selected for result delivery.
type NotifyResultsRequest struct {
	StudentEmails []string `json:"student_emails" validate:"omitempty,dive,email"`
	CompanyEmails []string `json:"company_emails" validate:"omitempty,dive,email"`
}
