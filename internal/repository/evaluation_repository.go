package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/turmas-api/internal/models"
)

// EvaluationRepository persists the per-student, per-course scoring records.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository constructs the repository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Upsert writes the record, replacing any previous evaluation of the student in the course.
func (r *EvaluationRepository) Upsert(ctx context.Context, record *models.EvaluationRecord) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO class_evaluations (student_id, course_id, class_id, grade, approved, completion_date, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (student_id, course_id)
        DO UPDATE SET class_id = EXCLUDED.class_id, grade = EXCLUDED.grade, approved = EXCLUDED.approved,
                      completion_date = EXCLUDED.completion_date, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query,
		record.StudentID, record.CourseID, record.ClassID, record.Grade, record.Approved, record.CompletionDate, record.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert evaluation: %w", err)
	}
	return nil
}

// ListByClass returns the evaluations last written by a class conclusion.
func (r *EvaluationRepository) ListByClass(ctx context.Context, classID string) ([]models.EvaluationRecord, error) {
	const query = `SELECT student_id, course_id, class_id, grade, approved, completion_date, updated_at
        FROM class_evaluations WHERE class_id = $1 ORDER BY student_id ASC`
	var records []models.EvaluationRecord
	if err := r.db.SelectContext(ctx, &records, query, classID); err != nil {
		return nil, fmt.Errorf("list class evaluations: %w", err)
	}
	return records, nil
}
