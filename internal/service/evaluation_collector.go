package service

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/noah-isme/turmas-api/internal/models"
	appErrors "github.com/noah-isme/turmas-api/pkg/errors"
)

// EvaluationField names one of the two fields captured per student.
type EvaluationField string

const (
	FieldGrade    EvaluationField = "grade"
	FieldApproved EvaluationField = "approved"
)

const (
	minGrade = 0.0
	maxGrade = 10.0
)

// ErrUnknownStudent is returned when an evaluation targets a student outside the roster.
var ErrUnknownStudent = appErrors.New("UNKNOWN_STUDENT", http.StatusBadRequest, "student is not part of the class roster")

// EvaluationCollector gathers grade and approval per rostered student while a
// class is being concluded. Slots exist only for the roster given at construction.
type EvaluationCollector struct {
	roster []string
	drafts map[string]models.EvaluationDraft
}

// NewEvaluationCollector creates one empty slot per student in roster.
func NewEvaluationCollector(roster []string) *EvaluationCollector {
	c := &EvaluationCollector{
		roster: make([]string, 0, len(roster)),
		drafts: make(map[string]models.EvaluationDraft, len(roster)),
	}
	for _, id := range roster {
		if _, dup := c.drafts[id]; dup {
			continue
		}
		c.roster = append(c.roster, id)
		c.drafts[id] = models.EvaluationDraft{}
	}
	return c
}

// SetField records one field for a student. Grades must be numeric within
// [0,10] and approval must be a boolean.
func (c *EvaluationCollector) SetField(studentID string, field EvaluationField, value interface{}) error {
	switch field {
	case FieldGrade:
		grade, ok := toGrade(value)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grade for %s must be a number", studentID))
		}
		return c.SetGrade(studentID, grade)
	case FieldApproved:
		approved, ok := value.(bool)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("approved for %s must be a boolean", studentID))
		}
		return c.SetApproved(studentID, approved)
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown evaluation field %q", field))
	}
}

// SetGrade records the grade of a student.
func (c *EvaluationCollector) SetGrade(studentID string, grade float64) error {
	draft, ok := c.drafts[studentID]
	if !ok {
		return appErrors.Clone(ErrUnknownStudent, fmt.Sprintf("student %s is not part of the class roster", studentID))
	}
	if math.IsNaN(grade) || math.IsInf(grade, 0) || grade < minGrade || grade > maxGrade {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grade for %s must be between 0 and 10", studentID))
	}
	draft.Grade = &grade
	c.drafts[studentID] = draft
	return nil
}

// SetApproved records the approval decision of a student.
func (c *EvaluationCollector) SetApproved(studentID string, approved bool) error {
	draft, ok := c.drafts[studentID]
	if !ok {
		return appErrors.Clone(ErrUnknownStudent, fmt.Sprintf("student %s is not part of the class roster", studentID))
	}
	draft.Approved = &approved
	c.drafts[studentID] = draft
	return nil
}

// Apply copies the present fields of a draft into the student's slot.
func (c *EvaluationCollector) Apply(studentID string, draft models.EvaluationDraft) error {
	if _, ok := c.drafts[studentID]; !ok {
		return appErrors.Clone(ErrUnknownStudent, fmt.Sprintf("student %s is not part of the class roster", studentID))
	}
	if draft.Grade != nil {
		if err := c.SetGrade(studentID, *draft.Grade); err != nil {
			return err
		}
	}
	if draft.Approved != nil {
		return c.SetApproved(studentID, *draft.Approved)
	}
	return nil
}

// Draft returns the current slot of a student.
func (c *EvaluationCollector) Draft(studentID string) (models.EvaluationDraft, bool) {
	draft, ok := c.drafts[studentID]
	return draft, ok
}

// Completed returns the complete evaluations in roster order.
func (c *EvaluationCollector) Completed() []models.StudentOutcome {
	out := make([]models.StudentOutcome, 0, len(c.roster))
	for _, id := range c.roster {
		if outcome, ok := c.drafts[id].Outcome(); ok {
			out = append(out, models.StudentOutcome{StudentID: id, Outcome: outcome})
		}
	}
	return out
}

// Pending returns the students whose evaluation is still missing a field.
func (c *EvaluationCollector) Pending() []string {
	var pending []string
	for _, id := range c.roster {
		if _, ok := c.drafts[id].Outcome(); !ok {
			pending = append(pending, id)
		}
	}
	return pending
}

// Commit returns the complete evaluations, failing when there are none.
func (c *EvaluationCollector) Commit() ([]models.StudentOutcome, error) {
	completed := c.Completed()
	if len(completed) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one evaluation required")
	}
	return completed, nil
}

func toGrade(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
