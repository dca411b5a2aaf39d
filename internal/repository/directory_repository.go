package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/turmas-api/internal/models"
)

// DirectoryRepository reads the people and catalogue tables owned by the
// back office CRUD screens.
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository constructs the repository.
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// StudentsByIDs returns the students found among ids keyed by ID. Unknown ids are absent from the map.
func (r *DirectoryRepository) StudentsByIDs(ctx context.Context, ids []string) (map[string]models.Student, error) {
	result := make(map[string]models.Student, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	const query = `SELECT id, full_name, email, company_id FROM students WHERE id = ANY($1)`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("lookup students: %w", err)
	}
	for _, s := range students {
		result[s.ID] = s
	}
	return result, nil
}

// CompaniesByIDs returns the companies found among ids keyed by ID.
func (r *DirectoryRepository) CompaniesByIDs(ctx context.Context, ids []string) (map[string]models.Company, error) {
	result := make(map[string]models.Company, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	const query = `SELECT id, name, email FROM companies WHERE id = ANY($1)`
	var companies []models.Company
	if err := r.db.SelectContext(ctx, &companies, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("lookup companies: %w", err)
	}
	for _, c := range companies {
		result[c.ID] = c
	}
	return result, nil
}

// CourseByID returns a course. It returns sql.ErrNoRows when missing.
func (r *DirectoryRepository) CourseByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, `SELECT id, name, workload_hours FROM courses WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// InstructorByID returns an instructor. It returns sql.ErrNoRows when missing.
func (r *DirectoryRepository) InstructorByID(ctx context.Context, id string) (*models.Instructor, error) {
	var instructor models.Instructor
	if err := r.db.GetContext(ctx, &instructor, `SELECT id, full_name, email FROM instructors WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &instructor, nil
}
