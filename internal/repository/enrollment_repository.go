package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/turmas-api/internal/models"
)

const (
	enrollmentColumns            = `id, course_id, user_id, instructor_id, class_id, status, grade, approved, completion_date, verification_code, created_at, updated_at`
	verificationCodeUniqueIndex = "uq_enrollments_verification_code"
)

// EnrollmentRepository persists completion history records.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByVerificationCode returns the enrollment printed with the given certificate code.
func (r *EnrollmentRepository) FindByVerificationCode(ctx context.Context, code string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE verification_code = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, code); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByUser returns the completion history of a student, newest first.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 ORDER BY completion_date DESC, created_at DESC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, userID); err != nil {
		return nil, fmt.Errorf("list user enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByStatus returns enrollments in a status, newest first.
func (r *EnrollmentRepository) ListByStatus(ctx context.Context, status models.EnrollmentStatus) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE status = $1 ORDER BY completion_date DESC, created_at DESC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, status); err != nil {
		return nil, fmt.Errorf("list enrollments by status: %w", err)
	}
	return enrollments, nil
}

// ListByClass returns the enrollments a class conclusion produced.
func (r *EnrollmentRepository) ListByClass(ctx context.Context, classID string) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE class_id = $1 ORDER BY created_at ASC`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, classID); err != nil {
		return nil, fmt.Errorf("list class enrollments: %w", err)
	}
	return enrollments, nil
}

// Create persists a new enrollment. A collision on the verification code is
// reported as ErrDuplicateVerificationCode.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusCompleted
	}
	const query = `INSERT INTO enrollments (` + enrollmentColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := r.db.ExecContext(ctx, query,
		enrollment.ID, enrollment.CourseID, enrollment.UserID, enrollment.InstructorID, enrollment.ClassID,
		enrollment.Status, enrollment.Grade, enrollment.Approved, enrollment.CompletionDate,
		enrollment.VerificationCode, enrollment.CreatedAt, enrollment.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err, verificationCodeUniqueIndex) {
			return ErrDuplicateVerificationCode
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Update applies a partial update. It returns sql.ErrNoRows when missing.
func (r *EnrollmentRepository) Update(ctx context.Context, id string, upd models.EnrollmentUpdate) error {
	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Grade != nil {
		add("grade", *upd.Grade)
	}
	if upd.Approved != nil {
		add("approved", *upd.Approved)
	}
	if upd.CompletionDate != nil {
		add("completion_date", *upd.CompletionDate)
	}
	if upd.InstructorID != nil {
		add("instructor_id", *upd.InstructorID)
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE enrollments SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return expectAffected(res)
}

// Delete removes an enrollment.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return expectAffected(res)
}
