//go:build integration

package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/turmas-api/internal/models"
	"github.com/noah-isme/turmas-api/internal/testutil/testdb"
)

var integrationDB *sqlx.DB

func TestMain(m *testing.M) {
	handle, err := testdb.Start(context.Background())
	if err != nil {
		panic(err)
	}
	integrationDB = handle.DB
	code := m.Run()
	handle.Close()
	os.Exit(code)
}

func seedDirectory(t *testing.T, db *sqlx.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO companies (id, name, email) VALUES ('acme', 'ACME', 'rh@acme.com') ON CONFLICT DO NOTHING`,
		`INSERT INTO students (id, full_name, email, company_id) VALUES ('A', 'Ana', 'ana@example.com', 'acme') ON CONFLICT DO NOTHING`,
		`INSERT INTO students (id, full_name, email) VALUES ('B', 'Bruno', 'bruno@example.com') ON CONFLICT DO NOTHING`,
		`INSERT INTO courses (id, name, workload_hours) VALUES ('nr10', 'NR-10', 40) ON CONFLICT DO NOTHING`,
		`INSERT INTO instructors (id, full_name, email) VALUES ('inst-1', 'Carla', 'carla@example.com') ON CONFLICT DO NOTHING`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func TestScheduledClassLifecycleIntegration(t *testing.T) {
	ctx := context.Background()
	repo := NewScheduledClassRepository(integrationDB)

	class := &models.ScheduledClass{
		CourseID:      "nr10",
		InstructorID:  "inst-1",
		StudentIDs:    []string{"A", "B"},
		ScheduledDate: time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC),
		StartTime:     "08:00",
		EndTime:       "17:00",
		LocationType:  models.LocationOnSite,
		Location:      "Sala 1",
	}
	require.NoError(t, repo.Create(ctx, class))

	loaded, err := repo.FindByID(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, []string(loaded.StudentIDs))
	assert.Equal(t, models.ClassStatusScheduled, loaded.Status)

	window := models.ClassWindow{Date: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), StartTime: "09:00", EndTime: "18:00"}
	won, err := repo.MarkConcluded(ctx, class.ID, window)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.MarkConcluded(ctx, class.ID, window)
	require.NoError(t, err)
	assert.False(t, won)

	loaded, err = repo.FindByID(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClassStatusConcluded, loaded.Status)
	assert.Equal(t, "09:00", loaded.StartTime)

	concluded, total, err := repo.ListByStatus(ctx, ScheduledClassFilter{Status: models.ClassStatusConcluded})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)
	assert.NotEmpty(t, concluded)

	require.NoError(t, repo.Delete(ctx, class.ID))
	_, err = repo.FindByID(ctx, class.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestEnrollmentVerificationCodeUniqueIntegration(t *testing.T) {
	ctx := context.Background()
	repo := NewEnrollmentRepository(integrationDB)
	completion := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	first := &models.Enrollment{CourseID: "nr10", UserID: "A", Grade: 8, Approved: true, CompletionDate: completion, VerificationCode: "CERT-1-DUPLICATE"}
	require.NoError(t, repo.Create(ctx, first))

	second := &models.Enrollment{CourseID: "nr10", UserID: "B", Grade: 9, Approved: true, CompletionDate: completion, VerificationCode: "CERT-1-DUPLICATE"}
	assert.ErrorIs(t, repo.Create(ctx, second), ErrDuplicateVerificationCode)

	found, err := repo.FindByVerificationCode(ctx, "CERT-1-DUPLICATE")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, 8.0, found.Grade)

	grade := 9.5
	require.NoError(t, repo.Update(ctx, first.ID, models.EnrollmentUpdate{Grade: &grade}))
	history, err := repo.ListByUser(ctx, "A")
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, 9.5, history[0].Grade)
}

func TestEvaluationUpsertIntegration(t *testing.T) {
	ctx := context.Background()
	repo := NewEvaluationRepository(integrationDB)
	completion := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	record := &models.EvaluationRecord{StudentID: "A", CourseID: "nr10", ClassID: "class-up", Grade: 6, Approved: false, CompletionDate: completion}
	require.NoError(t, repo.Upsert(ctx, record))
	record.Grade = 8
	record.Approved = true
	require.NoError(t, repo.Upsert(ctx, record))

	records, err := repo.ListByClass(ctx, "class-up")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 8.0, records[0].Grade)
	assert.True(t, records[0].Approved)
}

func TestDirectoryAndNotificationIntegration(t *testing.T) {
	ctx := context.Background()
	seedDirectory(t, integrationDB)
	directory := NewDirectoryRepository(integrationDB)

	students, err := directory.StudentsByIDs(ctx, []string{"A", "B", "ghost"})
	require.NoError(t, err)
	assert.Len(t, students, 2)
	require.NotNil(t, students["A"].CompanyID)
	assert.Nil(t, students["B"].CompanyID)

	_, err = directory.CourseByID(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	notifications := NewNotificationRepository(integrationDB)
	settings, err := notifications.LoadSettings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.Enabled)
	tpl, ok := settings.Template(models.TemplateCourseResult)
	require.True(t, ok)
	assert.Contains(t, tpl.Content, "{{verificationCode}}")

	classID := "class-log"
	require.NoError(t, notifications.CreateLog(ctx, &models.NotificationLogEntry{
		Type: tpl.Type, Recipient: "ana@example.com", Status: models.NotificationSuccess, ClassID: &classID,
	}))
	logs, err := notifications.ListLogsByClass(ctx, classID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	audit := NewAuditRepository(integrationDB)
	require.NoError(t, audit.CreateAuditLog(ctx, &models.AuditLog{Action: "CONCLUDE", Resource: "scheduled_class", Details: []byte(`{"status":200}`)}))
}
