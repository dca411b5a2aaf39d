package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/turmas-api/internal/models"
	appErrors "github.com/noah-isme/turmas-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	listErr     error
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Enrollment
	for _, e := range m.enrollments {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEnrollmentRepo) ListByStatus(ctx context.Context, status models.EnrollmentStatus) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, e := range m.enrollments {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEnrollmentRepo) Update(ctx context.Context, id string, upd models.EnrollmentUpdate) error {
	e, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	if upd.Grade != nil {
		e.Grade = *upd.Grade
	}
	if upd.CompletionDate != nil {
		e.CompletionDate = *upd.CompletionDate
	}
	m.enrollments[id] = e
	return nil
}

func (m *mockEnrollmentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.enrollments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.enrollments, id)
	return nil
}

func newEnrollmentFixture() (*EnrollmentService, *mockEnrollmentRepo, *memoryCache) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", UserID: "A", CourseID: "course-1", Status: models.EnrollmentStatusCompleted, Grade: 8, Approved: true, VerificationCode: "CERT-1"},
	}}
	cache := newMemoryCache()
	svc := NewEnrollmentService(repo, NewCacheService(cache, nil, time.Minute, nil, true), nil, nil)
	return svc, repo, cache
}

func TestEnrollmentServiceListByUser(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()

	list, err := svc.ListByUser(context.Background(), "A")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = svc.ListByUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	repo.listErr = errors.New("db down")
	_, err = svc.ListByUser(context.Background(), "A")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestEnrollmentServiceListByStatusDefaultsToCompleted(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	list, err := svc.ListByStatus(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEnrollmentServiceUpdateInvalidatesCertificateCache(t *testing.T) {
	svc, _, cache := newEnrollmentFixture()
	require.NoError(t, cache.Set(context.Background(), certificateCacheKey("CERT-1"), "stale", time.Minute))

	grade := 9.5
	date := "2024-06-01"
	updated, err := svc.Update(context.Background(), "enr-1", UpdateEnrollmentRequest{Grade: &grade, CompletionDate: &date})
	require.NoError(t, err)
	assert.Equal(t, 9.5, updated.Grade)
	assert.Equal(t, "2024-06-01", updated.CompletionDate.Format(models.DateLayout))
	assert.NotContains(t, cache.values, certificateCacheKey("CERT-1"))
}

func TestEnrollmentServiceUpdateValidation(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()

	grade := 10.5
	_, err := svc.Update(context.Background(), "enr-1", UpdateEnrollmentRequest{Grade: &grade})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, 8.0, repo.enrollments["enr-1"].Grade)

	ok := 5.0
	_, err = svc.Update(context.Background(), "missing", UpdateEnrollmentRequest{Grade: &ok})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestEnrollmentServiceDelete(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()

	require.NoError(t, svc.Delete(context.Background(), "enr-1"))
	assert.Empty(t, repo.enrollments)
	assert.True(t, errors.Is(svc.Delete(context.Background(), "enr-1"), appErrors.ErrNotFound))
}
