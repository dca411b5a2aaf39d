package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/turmas-api/internal/models"
	appErrors "github.com/noah-isme/turmas-api/pkg/errors"
)

type enrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error)
	ListByStatus(ctx context.Context, status models.EnrollmentStatus) ([]models.Enrollment, error)
	Update(ctx context.Context, id string, upd models.EnrollmentUpdate) error
	Delete(ctx context.Context, id string) error
}

// UpdateEnrollmentRequest describes the editable fields of a history record.
type UpdateEnrollmentRequest struct {
	Grade          *float64 `json:"grade" validate:"omitempty,gte=0,lte=10"`
	Approved       *bool    `json:"approved"`
	CompletionDate *string  `json:"completion_date" validate:"omitempty,datetime=2006-01-02"`
	InstructorID   *string  `json:"instructor_id" validate:"omitempty,min=1"`
}

// EnrollmentService manages completion history independently of classes.
type EnrollmentService struct {
	repo      enrollmentRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService. cache may be nil.
func NewEnrollmentService(repo enrollmentRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// ListByUser returns the completion history of a student.
func (s *EnrollmentService) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	enrollments, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if enrollments == nil {
		enrollments = []models.Enrollment{}
	}
	return enrollments, nil
}

// ListByStatus returns history records in a status.
func (s *EnrollmentService) ListByStatus(ctx context.Context, status models.EnrollmentStatus) ([]models.Enrollment, error) {
	if status == "" {
		status = models.EnrollmentStatusCompleted
	}
	enrollments, err := s.repo.ListByStatus(ctx, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if enrollments == nil {
		enrollments = []models.Enrollment{}
	}
	return enrollments, nil
}

// Get returns a single enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// Update edits a history record. The class that produced it is not touched.
func (s *EnrollmentService) Update(ctx context.Context, id string, req UpdateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	upd := models.EnrollmentUpdate{Grade: req.Grade, Approved: req.Approved, InstructorID: req.InstructorID}
	if req.CompletionDate != nil {
		date, err := time.Parse(models.DateLayout, *req.CompletionDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "completion_date must be YYYY-MM-DD")
		}
		upd.CompletionDate = &date
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, id, upd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
	s.cache.Delete(ctx, certificateCacheKey(current.VerificationCode))
	return s.Get(ctx, id)
}

// Delete removes a history record.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	s.cache.Delete(ctx, certificateCacheKey(current.VerificationCode))
	s.logger.Info("enrollment deleted", zap.String("enrollment_id", id), zap.String("user_id", current.UserID))
	return nil
}
