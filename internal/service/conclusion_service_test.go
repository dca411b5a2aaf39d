package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/turmas-api/internal/models"
	"github.com/noah-isme/turmas-api/internal/repository"
	appErrors "github.com/noah-isme/turmas-api/pkg/errors"
	"github.com/noah-isme/turmas-api/pkg/jobs"
)

type fakeClassStore struct {
	mu        sync.Mutex
	classes   map[string]*models.ScheduledClass
	markCalls int
	markErr   error
}

func newFakeClassStore(classes ...models.ScheduledClass) *fakeClassStore {
	store := &fakeClassStore{classes: map[string]*models.ScheduledClass{}}
	for i := range classes {
		c := classes[i]
		store.classes[c.ID] = &c
	}
	return store
}

func (f *fakeClassStore) FindByID(ctx context.Context, id string) (*models.ScheduledClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *c
	return &clone, nil
}

func (f *fakeClassStore) MarkConcluded(ctx context.Context, id string, window models.ClassWindow) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	if f.markErr != nil {
		return false, f.markErr
	}
	c, ok := f.classes[id]
	if !ok || c.Status != models.ClassStatusScheduled {
		return false, nil
	}
	c.Status = models.ClassStatusConcluded
	c.ScheduledDate = window.Date
	c.StartTime = window.StartTime
	c.EndTime = window.EndTime
	c.UpdatedAt = time.Now()
	return true, nil
}

type fakeEvaluationStore struct {
	mu      sync.Mutex
	records []models.EvaluationRecord
	failFor map[string]error
}

func (f *fakeEvaluationStore) Upsert(ctx context.Context, record *models.EvaluationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[record.StudentID]; err != nil {
		return err
	}
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeEvaluationStore) ListByClass(ctx context.Context, classID string) ([]models.EvaluationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EvaluationRecord
	for _, r := range f.records {
		if r.ClassID == classID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeEnrollmentStore struct {
	mu         sync.Mutex
	created    []models.Enrollment
	codes      []string
	failFor    map[string]error
	duplicates int
}

func (f *fakeEnrollmentStore) Create(ctx context.Context, enrollment *models.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, enrollment.VerificationCode)
	if f.duplicates > 0 {
		f.duplicates--
		return repository.ErrDuplicateVerificationCode
	}
	if err := f.failFor[enrollment.UserID]; err != nil {
		return err
	}
	enrollment.ID = fmt.Sprintf("enr-%d", len(f.created)+1)
	f.created = append(f.created, *enrollment)
	return nil
}

type fakeStudentDirectory struct {
	students map[string]models.Student
	err      error
}

func (f *fakeStudentDirectory) StudentsByIDs(ctx context.Context, ids []string) (map[string]models.Student, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]models.Student{}
	for _, id := range ids {
		if s, ok := f.students[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type fakeReporter struct {
	mu       sync.Mutex
	captured []map[string]string
}

func (f *fakeReporter) Capture(err error, tags map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captured = append(f.captured, tags)
}

type conclusionFixture struct {
	classes     *fakeClassStore
	evaluations *fakeEvaluationStore
	enrollments *fakeEnrollmentStore
	directory   *fakeStudentDirectory
	reporter    *fakeReporter
	queue       *fakeQueue
	svc         *ConclusionService
}

func newConclusionFixture() *conclusionFixture {
	companyID := "comp-1"
	f := &conclusionFixture{
		classes: newFakeClassStore(models.ScheduledClass{
			ID:            "class-1",
			CourseID:      "course-1",
			InstructorID:  "inst-1",
			StudentIDs:    pq.StringArray{"A", "B", "C"},
			ScheduledDate: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
			StartTime:     "08:00",
			EndTime:       "12:00",
			LocationType:  models.LocationOnSite,
			Status:        models.ClassStatusScheduled,
		}),
		evaluations: &fakeEvaluationStore{},
		enrollments: &fakeEnrollmentStore{},
		directory: &fakeStudentDirectory{students: map[string]models.Student{
			"A": {ID: "A", FullName: "Ana", Email: "ana@example.com", CompanyID: &companyID},
			"B": {ID: "B", FullName: "Bruno", Email: "bruno@example.com"},
			"C": {ID: "C", FullName: "Carla", Email: "carla@example.com"},
		}},
		reporter: &fakeReporter{},
		queue:    &fakeQueue{},
	}
	f.svc = NewConclusionService(f.classes, f.evaluations, f.enrollments, f.directory,
		NewLifecycleEvents(f.queue, nil), NewMetricsService(), f.reporter, nil)
	return f
}

func confirmedWindow() models.ClassWindow {
	return models.ClassWindow{Date: time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC), StartTime: "09:00", EndTime: "13:00"}
}

func draft(grade *float64, approved *bool) models.EvaluationDraft {
	return models.EvaluationDraft{Grade: grade, Approved: approved}
}

func ptrFloat(v float64) *float64 { return &v }
func ptrBool(v bool) *bool        { return &v }

func exampleRequest() ConcludeRequest {
	return ConcludeRequest{
		Evaluations: map[string]models.EvaluationDraft{
			"A": draft(ptrFloat(8), ptrBool(true)),
			"B": draft(ptrFloat(3), ptrBool(false)),
			"C": draft(ptrFloat(7), nil),
		},
		ConfirmedWindow: confirmedWindow(),
	}
}

func TestConclusionServiceExampleScenario(t *testing.T) {
	f := newConclusionFixture()

	result, err := f.svc.Conclude(context.Background(), "class-1", exampleRequest())
	require.NoError(t, err)

	class := f.classes.classes["class-1"]
	assert.Equal(t, models.ClassStatusConcluded, class.Status)
	assert.Equal(t, confirmedWindow().Date, class.ScheduledDate)
	assert.Equal(t, "09:00", class.StartTime)
	assert.Equal(t, "13:00", class.EndTime)

	require.Len(t, f.evaluations.records, 2)
	assert.Equal(t, "A", f.evaluations.records[0].StudentID)
	assert.Equal(t, "B", f.evaluations.records[1].StudentID)
	assert.Equal(t, "course-1", f.evaluations.records[0].CourseID)

	require.Len(t, f.enrollments.created, 1)
	enrollment := f.enrollments.created[0]
	assert.Equal(t, "A", enrollment.UserID)
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.Equal(t, 8.0, enrollment.Grade)
	assert.Equal(t, confirmedWindow().Date, enrollment.CompletionDate)
	assert.NotEqual(t, "class-1", enrollment.ID)
	require.NotNil(t, enrollment.ClassID)
	assert.Equal(t, "class-1", *enrollment.ClassID)
	require.NotNil(t, enrollment.InstructorID)
	assert.Equal(t, "inst-1", *enrollment.InstructorID)

	require.Len(t, result.ApprovedStudents, 1)
	assert.Equal(t, "Ana", result.ApprovedStudents[0].FullName)
	assert.Len(t, result.EvaluationWrites.Succeeded, 2)
	assert.Len(t, result.EnrollmentWrites.Succeeded, 1)
	assert.Empty(t, result.Unresolved)
	assert.Empty(t, f.reporter.captured)

	require.Len(t, f.queue.jobs, 1)
	evt, ok := f.queue.jobs[0].Payload.(ClassConcludedEvent)
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, evt.ApprovedStudents)
	assert.Equal(t, "2024-05-11", evt.CompletionDate)
}

func TestConclusionServiceValidationWritesNothing(t *testing.T) {
	cases := map[string]struct {
		classID string
		req     func() ConcludeRequest
		target  error
	}{
		"missing date": {"class-1", func() ConcludeRequest {
			r := exampleRequest()
			r.ConfirmedWindow.Date = time.Time{}
			return r
		}, appErrors.ErrValidation},
		"missing end time": {"class-1", func() ConcludeRequest {
			r := exampleRequest()
			r.ConfirmedWindow.EndTime = " "
			return r
		}, appErrors.ErrValidation},
		"no complete evaluation": {"class-1", func() ConcludeRequest {
			return ConcludeRequest{
				Evaluations:     map[string]models.EvaluationDraft{"A": draft(ptrFloat(9), nil), "B": draft(nil, ptrBool(true))},
				ConfirmedWindow: confirmedWindow(),
			}
		}, appErrors.ErrValidation},
		"grade out of range": {"class-1", func() ConcludeRequest {
			r := exampleRequest()
			r.Evaluations["B"] = draft(ptrFloat(11), ptrBool(false))
			return r
		}, appErrors.ErrValidation},
		"student outside roster": {"class-1", func() ConcludeRequest {
			r := exampleRequest()
			r.Evaluations["Z"] = draft(ptrFloat(5), ptrBool(true))
			return r
		}, ErrUnknownStudent},
		"missing class": {"class-404", exampleRequest, appErrors.ErrNotFound},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newConclusionFixture()
			_, err := f.svc.Conclude(context.Background(), tc.classID, tc.req())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.target), "got %v", err)

			assert.Zero(t, f.classes.markCalls)
			assert.Equal(t, models.ClassStatusScheduled, f.classes.classes["class-1"].Status)
			assert.Empty(t, f.evaluations.records)
			assert.Empty(t, f.enrollments.created)
			assert.Empty(t, f.queue.jobs)
		})
	}
}

func TestConclusionServiceRejectsConcludedClass(t *testing.T) {
	f := newConclusionFixture()
	_, err := f.svc.Conclude(context.Background(), "class-1", exampleRequest())
	require.NoError(t, err)

	_, err = f.svc.Conclude(context.Background(), "class-1", exampleRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrClassConcluded))
	assert.Equal(t, 1, f.classes.markCalls)
	assert.Len(t, f.evaluations.records, 2)
	assert.Len(t, f.enrollments.created, 1)
}

func TestConclusionServiceConcurrentConcludeHasOneWinner(t *testing.T) {
	f := newConclusionFixture()

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Conclude(context.Background(), "class-1", exampleRequest())
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.Equal(t, appErrors.ErrConflict.Status, appErrors.FromError(err).Status)
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, f.evaluations.records, 2)
	assert.Len(t, f.enrollments.created, 1)
}

func TestConclusionServiceMarkConcludedFailure(t *testing.T) {
	f := newConclusionFixture()
	f.classes.markErr = errors.New("connection reset")

	_, err := f.svc.Conclude(context.Background(), "class-1", exampleRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, f.evaluations.records)
	assert.Empty(t, f.enrollments.created)
}

func TestConclusionServicePartialFailuresDoNotAbortSiblings(t *testing.T) {
	f := newConclusionFixture()
	f.evaluations.failFor = map[string]error{"A": errors.New("deadlock")}
	f.enrollments.failFor = map[string]error{"A": errors.New("timeout")}

	req := exampleRequest()
	req.Evaluations["C"] = draft(ptrFloat(9.5), ptrBool(true))

	result, err := f.svc.Conclude(context.Background(), "class-1", req)
	require.NoError(t, err)

	require.Len(t, result.EvaluationWrites.Failed, 1)
	assert.Equal(t, "A", result.EvaluationWrites.Failed[0].Item.StudentID)
	assert.Len(t, result.EvaluationWrites.Succeeded, 2)

	require.Len(t, result.EnrollmentWrites.Failed, 1)
	assert.Equal(t, "A", result.EnrollmentWrites.Failed[0].Item.UserID)
	require.Len(t, result.EnrollmentWrites.Succeeded, 1)
	assert.Equal(t, "C", result.EnrollmentWrites.Succeeded[0].UserID)

	assert.Len(t, result.ApprovedStudents, 2)
	assert.Len(t, f.reporter.captured, 2)
	assert.Equal(t, models.ClassStatusConcluded, f.classes.classes["class-1"].Status)
}

func TestConclusionServiceReportsUnresolvedStudents(t *testing.T) {
	f := newConclusionFixture()
	delete(f.directory.students, "A")

	result, err := f.svc.Conclude(context.Background(), "class-1", exampleRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, result.Unresolved)
	assert.Empty(t, result.ApprovedStudents)
	assert.Empty(t, f.enrollments.created)
	assert.Len(t, f.evaluations.records, 2)
}

func TestConclusionServiceDirectoryFailureLeavesStudentsUnresolved(t *testing.T) {
	f := newConclusionFixture()
	f.directory.err = errors.New("directory unavailable")

	result, err := f.svc.Conclude(context.Background(), "class-1", exampleRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, result.Unresolved)
	assert.Empty(t, f.enrollments.created)
	assert.Len(t, f.reporter.captured, 1)
}

func TestConclusionServiceRegeneratesDuplicateCodes(t *testing.T) {
	f := newConclusionFixture()
	f.enrollments.duplicates = 2

	result, err := f.svc.Conclude(context.Background(), "class-1", exampleRequest())
	require.NoError(t, err)
	require.Len(t, result.EnrollmentWrites.Succeeded, 1)
	require.Len(t, f.enrollments.codes, 3)
	assert.NotEqual(t, f.enrollments.codes[0], f.enrollments.codes[1])
	assert.NotEqual(t, f.enrollments.codes[1], f.enrollments.codes[2])
}

func TestConclusionServiceGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newConclusionFixture()
	f.enrollments.duplicates = maxVerificationCodeAttempts

	result, err := f.svc.Conclude(context.Background(), "class-1", exampleRequest())
	require.NoError(t, err)
	require.Len(t, result.EnrollmentWrites.Failed, 1)
	assert.True(t, errors.Is(result.EnrollmentWrites.Failed[0].Err, repository.ErrDuplicateVerificationCode))
	assert.Len(t, f.enrollments.codes, maxVerificationCodeAttempts)
}

func TestConclusionServiceEventQueueFailureDoesNotFail(t *testing.T) {
	f := newConclusionFixture()
	f.queue.err = jobs.ErrNotRunning

	_, err := f.svc.Conclude(context.Background(), "class-1", exampleRequest())
	require.NoError(t, err)
}

func TestNewVerificationCodeFormat(t *testing.T) {
	now := time.UnixMilli(1715400000123)
	code := NewVerificationCode(now)
	assert.Regexp(t, regexp.MustCompile(`^CERT-1715400000123-[0-9A-F]{8}$`), code)
	assert.NotEqual(t, code, NewVerificationCode(now))
}

func TestConclusionServiceEvaluations(t *testing.T) {
	f := newConclusionFixture()

	records, err := f.svc.Evaluations(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)

	_, err = f.svc.Conclude(context.Background(), "class-1", exampleRequest())
	require.NoError(t, err)

	records, err = f.svc.Evaluations(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "course-1", r.CourseID)
	}

	_, err = f.svc.Evaluations(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
