package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/turmas-api/internal/models"
	"github.com/noah-isme/turmas-api/internal/repository"
	appErrors "github.com/noah-isme/turmas-api/pkg/errors"
)

type scheduledClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.ScheduledClass, error)
	ListByStatus(ctx context.Context, filter repository.ScheduledClassFilter) ([]models.ScheduledClass, int, error)
	Create(ctx context.Context, class *models.ScheduledClass) error
	Update(ctx context.Context, id string, upd models.ScheduledClassUpdate) error
	Delete(ctx context.Context, id string) error
}

type classReferenceReader interface {
	StudentsByIDs(ctx context.Context, ids []string) (map[string]models.Student, error)
	CourseByID(ctx context.Context, id string) (*models.Course, error)
	InstructorByID(ctx context.Context, id string) (*models.Instructor, error)
}

// CreateScheduledClassRequest is the payload for scheduling a class.
type CreateScheduledClassRequest struct {
	CourseID      string              `json:"course_id" validate:"required"`
	InstructorID  string              `json:"instructor_id" validate:"required"`
	StudentIDs    []string            `json:"student_ids" validate:"required,min=1,unique,dive,required"`
	ScheduledDate string              `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	StartTime     string              `json:"start_time" validate:"required"`
	EndTime       string              `json:"end_time" validate:"required"`
	LocationType  models.LocationType `json:"location_type" validate:"required,oneof=Presencial Online"`
	Location      string              `json:"location"`
}

// UpdateScheduledClassRequest is the payload for editing a class. Omitted fields are unchanged.
type UpdateScheduledClassRequest struct {
	CourseID      *string              `json:"course_id" validate:"omitempty,min=1"`
	InstructorID  *string              `json:"instructor_id" validate:"omitempty,min=1"`
	StudentIDs    []string             `json:"student_ids" validate:"omitempty,min=1,unique,dive,required"`
	ScheduledDate *string              `json:"scheduled_date" validate:"omitempty,datetime=2006-01-02"`
	StartTime     *string              `json:"start_time" validate:"omitempty,min=1"`
	EndTime       *string              `json:"end_time" validate:"omitempty,min=1"`
	LocationType  *models.LocationType `json:"location_type" validate:"omitempty,oneof=Presencial Online"`
	Location      *string              `json:"location"`
}

// ScheduledClassService manages scheduled classes before and after conclusion.
type ScheduledClassService struct {
	repo      scheduledClassRepository
	refs      classReferenceReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduledClassService constructs the service.
func NewScheduledClassService(repo scheduledClassRepository, refs classReferenceReader, validate *validator.Validate, logger *zap.Logger) *ScheduledClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduledClassService{repo: repo, refs: refs, validator: validate, logger: logger}
}

// List returns classes filtered by status with pagination metadata.
func (s *ScheduledClassService) List(ctx context.Context, filter repository.ScheduledClassFilter) ([]models.ScheduledClass, *models.Pagination, error) {
	if filter.Status != "" && filter.Status != models.ClassStatusScheduled && filter.Status != models.ClassStatusConcluded {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "status must be Agendada or Concluída")
	}
	classes, total, err := s.repo.ListByStatus(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	if classes == nil {
		classes = []models.ScheduledClass{}
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a class by ID.
func (s *ScheduledClassService) Get(ctx context.Context, id string) (*models.ScheduledClass, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create schedules a new class in the Agendada state.
func (s *ScheduledClassService) Create(ctx context.Context, req CreateScheduledClassRequest) (*models.ScheduledClass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	date, err := time.Parse(models.DateLayout, req.ScheduledDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_date must be YYYY-MM-DD")
	}
	if err := s.checkReferences(ctx, &req.CourseID, &req.InstructorID, req.StudentIDs); err != nil {
		return nil, err
	}

	class := &models.ScheduledClass{
		CourseID:      req.CourseID,
		InstructorID:  req.InstructorID,
		StudentIDs:    req.StudentIDs,
		ScheduledDate: date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		LocationType:  req.LocationType,
		Location:      req.Location,
		Status:        models.ClassStatusScheduled,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	s.logger.Info("class scheduled", zap.String("class_id", class.ID), zap.String("course_id", class.CourseID), zap.Int("students", len(class.StudentIDs)))
	return class, nil
}

// Update edits a class. The roster is frozen once the class is concluded.
func (s *ScheduledClassService) Update(ctx context.Context, id string, req UpdateScheduledClassRequest) (*models.ScheduledClass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if req.StudentIDs != nil && len(req.StudentIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_ids cannot be empty")
	}
	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	upd := models.ScheduledClassUpdate{
		CourseID:     req.CourseID,
		InstructorID: req.InstructorID,
		StudentIDs:   req.StudentIDs,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		LocationType: req.LocationType,
		Location:     req.Location,
	}
	if req.ScheduledDate != nil {
		date, err := time.Parse(models.DateLayout, *req.ScheduledDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_date must be YYYY-MM-DD")
		}
		upd.ScheduledDate = &date
	}
	if upd.Empty() {
		return class, nil
	}
	if class.Concluded() && upd.StudentIDs != nil && !sameRoster(class.StudentIDs, upd.StudentIDs) {
		return nil, appErrors.Clone(appErrors.ErrClassConcluded, "roster cannot change after the class is concluded")
	}
	if err := s.checkReferences(ctx, upd.CourseID, upd.InstructorID, upd.StudentIDs); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, id, upd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return s.Get(ctx, id)
}

// Delete removes a class. Enrollments produced by its conclusion remain.
func (s *ScheduledClassService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	return nil
}

func (s *ScheduledClassService) checkReferences(ctx context.Context, courseID, instructorID *string, studentIDs []string) error {
	if s.refs == nil {
		return nil
	}
	if courseID != nil {
		if _, err := s.refs.CourseByID(ctx, *courseID); err != nil {
			return referenceError(err, "course not found", "failed to load course")
		}
	}
	if instructorID != nil {
		if _, err := s.refs.InstructorByID(ctx, *instructorID); err != nil {
			return referenceError(err, "instructor not found", "failed to load instructor")
		}
	}
	if len(studentIDs) > 0 {
		found, err := s.refs.StudentsByIDs(ctx, studentIDs)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
		}
		var missing []string
		for _, id := range studentIDs {
			if _, ok := found[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown students: %s", strings.Join(missing, ", ")))
		}
	}
	return nil
}

func referenceError(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func sameRoster(current, next []string) bool {
	if len(current) != len(next) {
		return false
	}
	seen := make(map[string]struct{}, len(current))
	for _, id := range current {
		seen[id] = struct{}{}
	}
	for _, id := range next {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}
