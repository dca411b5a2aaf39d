package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/turmas-api/internal/models"
)

const scheduledClassColumns = `id, course_id, instructor_id, student_ids, scheduled_date, start_time, end_time, location_type, location, status, created_at, updated_at`

// ScheduledClassFilter narrows class listings.
type ScheduledClassFilter struct {
	Status   models.ClassStatus
	Page     int
	PageSize int
}

// ScheduledClassRepository persists scheduled classes.
type ScheduledClassRepository struct {
	db *sqlx.DB
}

// NewScheduledClassRepository constructs the repository.
func NewScheduledClassRepository(db *sqlx.DB) *ScheduledClassRepository {
	return &ScheduledClassRepository{db: db}
}

// FindByID returns a class by its ID.
func (r *ScheduledClassRepository) FindByID(ctx context.Context, id string) (*models.ScheduledClass, error) {
	query := `SELECT ` + scheduledClassColumns + ` FROM scheduled_classes WHERE id = $1`
	var class models.ScheduledClass
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListByStatus returns classes in a status, earliest date first. An empty
// status lists every class.
func (r *ScheduledClassRepository) ListByStatus(ctx context.Context, filter ScheduledClassFilter) ([]models.ScheduledClass, int, error) {
	clause := ""
	var args []interface{}
	if filter.Status != "" {
		clause = " WHERE status = $1"
		args = append(args, filter.Status)
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM scheduled_classes%s ORDER BY scheduled_date ASC, start_time ASC LIMIT %d OFFSET %d`, scheduledClassColumns, clause, size, offset)
	var classes []models.ScheduledClass
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list scheduled classes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM scheduled_classes`+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count scheduled classes: %w", err)
	}
	return classes, total, nil
}

// Create persists a new class in the Agendada state.
func (r *ScheduledClassRepository) Create(ctx context.Context, class *models.ScheduledClass) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	if class.Status == "" {
		class.Status = models.ClassStatusScheduled
	}
	const query = `INSERT INTO scheduled_classes (` + scheduledClassColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := r.db.ExecContext(ctx, query,
		class.ID, class.CourseID, class.InstructorID, class.StudentIDs, class.ScheduledDate,
		class.StartTime, class.EndTime, class.LocationType, class.Location, class.Status,
		class.CreatedAt, class.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create scheduled class: %w", err)
	}
	return nil
}

// Update applies a partial update and refreshes updated_at. It returns
// sql.ErrNoRows when the class does not exist.
func (r *ScheduledClassRepository) Update(ctx context.Context, id string, upd models.ScheduledClassUpdate) error {
	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.CourseID != nil {
		add("course_id", *upd.CourseID)
	}
	if upd.InstructorID != nil {
		add("instructor_id", *upd.InstructorID)
	}
	if upd.StudentIDs != nil {
		add("student_ids", pq.StringArray(upd.StudentIDs))
	}
	if upd.ScheduledDate != nil {
		add("scheduled_date", *upd.ScheduledDate)
	}
	if upd.StartTime != nil {
		add("start_time", *upd.StartTime)
	}
	if upd.EndTime != nil {
		add("end_time", *upd.EndTime)
	}
	if upd.LocationType != nil {
		add("location_type", *upd.LocationType)
	}
	if upd.Location != nil {
		add("location", *upd.Location)
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE scheduled_classes SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update scheduled class: %w", err)
	}
	return expectAffected(res)
}

// MarkConcluded moves a class from Agendada to Concluída with the confirmed
// window. It reports false when the class was not in Agendada anymore, which
// is how concurrent conclusions of the same class are serialised.
func (r *ScheduledClassRepository) MarkConcluded(ctx context.Context, id string, window models.ClassWindow) (bool, error) {
	const query = `UPDATE scheduled_classes
        SET status = $2, scheduled_date = $3, start_time = $4, end_time = $5, updated_at = $6
        WHERE id = $1 AND status = $7`
	res, err := r.db.ExecContext(ctx, query,
		id, models.ClassStatusConcluded, window.Date, window.StartTime, window.EndTime, time.Now().UTC(),
		models.ClassStatusScheduled,
	)
	if err != nil {
		return false, fmt.Errorf("conclude scheduled class: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("conclude scheduled class: %w", err)
	}
	return affected == 1, nil
}

// Delete removes a class. Enrollments it produced are left untouched.
func (r *ScheduledClassRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_classes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete scheduled class: %w", err)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
