package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/turmas-api/internal/models"
	"github.com/noah-isme/turmas-api/internal/repository"
	appErrors "github.com/noah-isme/turmas-api/pkg/errors"
)

const maxVerificationCodeAttempts = 3

type concludableClassStore interface {
	FindByID(ctx context.Context, id string) (*models.ScheduledClass, error)
	MarkConcluded(ctx context.Context, id string, window models.ClassWindow) (bool, error)
}

type evaluationStore interface {
	Upsert(ctx context.Context, record *models.EvaluationRecord) error
	ListByClass(ctx context.Context, classID string) ([]models.EvaluationRecord, error)
}

type enrollmentCreator interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
}

type studentDirectory interface {
	StudentsByIDs(ctx context.Context, ids []string) (map[string]models.Student, error)
}

type errorReporter interface {
	Capture(err error, tags map[string]string)
}

// ConcludeRequest carries the evaluations typed by the operator and the
// window the class actually happened in.
type ConcludeRequest struct {
	Evaluations     map[string]models.EvaluationDraft
	ConfirmedWindow models.ClassWindow
}

// ConclusionResult summarises what a conclusion wrote.
type ConclusionResult struct {
	ClassID          string                               `json:"class_id"`
	ApprovedStudents []models.Student                     `json:"approved_students"`
	EvaluationWrites BatchResult[models.EvaluationRecord] `json:"evaluation_writes"`
	EnrollmentWrites BatchResult[models.Enrollment]       `json:"enrollment_writes"`
	Unresolved       []string                             `json:"unresolved"`
}

// ConclusionService turns a scheduled class into history: it closes the
// class, stores the evaluations and issues an enrollment per approved student.
type ConclusionService struct {
	classes     concludableClassStore
	evaluations evaluationStore
	enrollments enrollmentCreator
	students    studentDirectory
	events      *LifecycleEvents
	metrics     *MetricsService
	reporter    errorReporter
	logger      *zap.Logger
	now         func() time.Time
}

// NewConclusionService constructs the service. events, metrics and reporter are optional.
func NewConclusionService(classes concludableClassStore, evaluations evaluationStore, enrollments enrollmentCreator, students studentDirectory, events *LifecycleEvents, metrics *MetricsService, reporter errorReporter, logger *zap.Logger) *ConclusionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConclusionService{
		classes:     classes,
		evaluations: evaluations,
		enrollments: enrollments,
		students:    students,
		events:      events,
		metrics:     metrics,
		reporter:    reporter,
		logger:      logger,
		now:         time.Now,
	}
}

// Evaluations returns the evaluation records stored when a class was concluded.
func (s *ConclusionService) Evaluations(ctx context.Context, classID string) ([]models.EvaluationRecord, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	records, err := s.evaluations.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evaluations")
	}
	if records == nil {
		records = []models.EvaluationRecord{}
	}
	return records, nil
}

// Conclude validates the request, commits the class transition and then
// writes evaluation records and enrollments item by item. Nothing is written
// when validation fails; after the class commit individual write failures are
// reported in the result instead of failing the call.
func (s *ConclusionService) Conclude(ctx context.Context, classID string, req ConcludeRequest) (*ConclusionResult, error) {
	window := req.ConfirmedWindow
	if window.Date.IsZero() || strings.TrimSpace(window.StartTime) == "" || strings.TrimSpace(window.EndTime) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "confirmed date, start time and end time are required")
	}

	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.Concluded() {
		return nil, appErrors.ErrClassConcluded
	}

	collector := NewEvaluationCollector(class.StudentIDs)
	ids := make([]string, 0, len(req.Evaluations))
	for id := range req.Evaluations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := collector.Apply(id, req.Evaluations[id]); err != nil {
			return nil, err
		}
	}
	outcomes, err := collector.Commit()
	if err != nil {
		return nil, err
	}

	won, err := s.classes.MarkConcluded(ctx, class.ID, window)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to conclude class")
	}
	if !won {
		s.metrics.RecordConclusion("conflict")
		return nil, appErrors.Clone(appErrors.ErrClassConcluded, "class was concluded by another request")
	}
	s.metrics.RecordConclusion("committed")

	logger := s.logger.With(zap.String("class_id", class.ID), zap.String("course_id", class.CourseID))
	result := &ConclusionResult{ClassID: class.ID, ApprovedStudents: []models.Student{}, Unresolved: []string{}}

	records := make([]models.EvaluationRecord, 0, len(outcomes))
	for _, o := range outcomes {
		records = append(records, models.EvaluationRecord{
			StudentID:      o.StudentID,
			CourseID:       class.CourseID,
			ClassID:        class.ID,
			Grade:          o.Grade,
			Approved:       o.Approved,
			CompletionDate: window.Date,
		})
	}
	result.EvaluationWrites = Fold(records, func(r *models.EvaluationRecord) error {
		return s.evaluations.Upsert(ctx, r)
	})
	for _, f := range result.EvaluationWrites.Failed {
		s.reportPartial(logger, "evaluation", class.ID, f.Item.StudentID, f.Err)
	}
	s.metrics.RecordWrites("evaluation", len(result.EvaluationWrites.Succeeded), len(result.EvaluationWrites.Failed))

	pending := make([]models.Enrollment, 0, len(outcomes))
	approved := approvedIDs(outcomes)
	if len(approved) > 0 {
		students, err := s.students.StudentsByIDs(ctx, approved)
		if err != nil {
			s.reportPartial(logger, "student_lookup", class.ID, "", err)
			students = map[string]models.Student{}
		}
		byID := make(map[string]models.Outcome, len(outcomes))
		for _, o := range outcomes {
			byID[o.StudentID] = o.Outcome
		}
		for _, id := range approved {
			student, ok := students[id]
			if !ok {
				logger.Warn("approved student not found in directory", zap.String("student_id", id))
				result.Unresolved = append(result.Unresolved, id)
				continue
			}
			result.ApprovedStudents = append(result.ApprovedStudents, student)
			pending = append(pending, s.buildEnrollment(class, student.ID, byID[id], window.Date))
		}
	}
	result.EnrollmentWrites = Fold(pending, func(e *models.Enrollment) error {
		return s.createEnrollment(ctx, e)
	})
	for _, f := range result.EnrollmentWrites.Failed {
		s.reportPartial(logger, "enrollment", class.ID, f.Item.UserID, f.Err)
	}
	s.metrics.RecordWrites("enrollment", len(result.EnrollmentWrites.Succeeded), len(result.EnrollmentWrites.Failed))

	logger.Info("class concluded",
		zap.Int("evaluations", len(result.EvaluationWrites.Succeeded)),
		zap.Int("enrollments", len(result.EnrollmentWrites.Succeeded)),
		zap.Int("unresolved", len(result.Unresolved)),
	)
	s.events.ClassConcluded(ctx, s.concludedEvent(class, window, result))
	return result, nil
}

func (s *ConclusionService) buildEnrollment(class *models.ScheduledClass, studentID string, outcome models.Outcome, completion time.Time) models.Enrollment {
	classID := class.ID
	enrollment := models.Enrollment{
		CourseID:       class.CourseID,
		UserID:         studentID,
		ClassID:        &classID,
		Status:         models.EnrollmentStatusCompleted,
		Grade:          outcome.Grade,
		Approved:       outcome.Approved,
		CompletionDate: completion,
	}
	if class.InstructorID != "" {
		instructorID := class.InstructorID
		enrollment.InstructorID = &instructorID
	}
	return enrollment
}

// createEnrollment retries with a fresh verification code when the generated
// one is already taken.
func (s *ConclusionService) createEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	var err error
	for attempt := 1; attempt <= maxVerificationCodeAttempts; attempt++ {
		enrollment.VerificationCode = NewVerificationCode(s.now())
		err = s.enrollments.Create(ctx, enrollment)
		if !errors.Is(err, repository.ErrDuplicateVerificationCode) {
			return err
		}
		s.logger.Warn("verification code collision", zap.String("student_id", enrollment.UserID), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("no unique verification code after %d attempts: %w", maxVerificationCodeAttempts, err)
}

func (s *ConclusionService) reportPartial(logger *zap.Logger, kind, classID, studentID string, err error) {
	logger.Warn("conclusion write failed", zap.String("kind", kind), zap.String("student_id", studentID), zap.Error(err))
	if s.reporter != nil {
		s.reporter.Capture(err, map[string]string{"kind": kind, "class_id": classID, "student_id": studentID})
	}
}

func (s *ConclusionService) concludedEvent(class *models.ScheduledClass, window models.ClassWindow, result *ConclusionResult) ClassConcludedEvent {
	evt := ClassConcludedEvent{
		ClassID:          class.ID,
		CourseID:         class.CourseID,
		InstructorID:     class.InstructorID,
		CompletionDate:   window.Date.Format(models.DateLayout),
		ApprovedStudents: make([]string, 0, len(result.ApprovedStudents)),
		EnrollmentIDs:    make([]string, 0, len(result.EnrollmentWrites.Succeeded)),
		Unresolved:       result.Unresolved,
		ConcludedAt:      s.now().UTC(),
	}
	for _, st := range result.ApprovedStudents {
		evt.ApprovedStudents = append(evt.ApprovedStudents, st.ID)
	}
	for _, e := range result.EnrollmentWrites.Succeeded {
		evt.EnrollmentIDs = append(evt.EnrollmentIDs, e.ID)
	}
	return evt
}

func approvedIDs(outcomes []models.StudentOutcome) []string {
	var ids []string
	for _, o := range outcomes {
		if o.Approved {
			ids = append(ids, o.StudentID)
		}
	}
	return ids
}

// NewVerificationCode builds a certificate code of the form CERT-<unix-millis>-<random>.
func NewVerificationCode(now time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("CERT-%d-%s", now.UnixMilli(), random)
}
