package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/turmas-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var scheduledClassRowColumns = []string{"id", "course_id", "instructor_id", "student_ids", "scheduled_date", "start_time", "end_time", "location_type", "location", "status", "created_at", "updated_at"}

func TestScheduledClassRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduledClassRepository(db)

	date := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(scheduledClassRowColumns).
		AddRow("class-1", "course-1", "inst-1", "{stu-a,stu-b}", date, "08:00", "12:00", "Presencial", "Sala 3", "Agendada", date, date)
	mock.ExpectQuery(regexp.QuoteMeta("FROM scheduled_classes WHERE id = $1")).
		WithArgs("class-1").
		WillReturnRows(rows)

	class, err := repo.FindByID(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, pq.StringArray{"stu-a", "stu-b"}, class.StudentIDs)
	assert.Equal(t, models.ClassStatusScheduled, class.Status)
	assert.True(t, class.HasStudent("stu-b"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledClassRepositoryFindByIDMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduledClassRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM scheduled_classes WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(scheduledClassRowColumns))

	_, err := repo.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestScheduledClassRepositoryListByStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduledClassRepository(db)

	date := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(scheduledClassRowColumns).
		AddRow("class-1", "course-1", "inst-1", "{stu-a}", date, "08:00", "12:00", "Online", "", "Agendada", date, date)
	mock.ExpectQuery(regexp.QuoteMeta("FROM scheduled_classes WHERE status = $1 ORDER BY scheduled_date ASC, start_time ASC LIMIT 10 OFFSET 10")).
		WithArgs(models.ClassStatusScheduled).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM scheduled_classes WHERE status = $1")).
		WithArgs(models.ClassStatusScheduled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	classes, total, err := repo.ListByStatus(context.Background(), ScheduledClassFilter{Status: models.ClassStatusScheduled, Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, 11, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledClassRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduledClassRepository(db)

	class := &models.ScheduledClass{
		CourseID:      "course-1",
		InstructorID:  "inst-1",
		StudentIDs:    pq.StringArray{"stu-a"},
		ScheduledDate: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		StartTime:     "08:00",
		EndTime:       "12:00",
		LocationType:  models.LocationOnline,
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scheduled_classes")).
		WithArgs(sqlmock.AnyArg(), "course-1", "inst-1", pq.StringArray{"stu-a"}, class.ScheduledDate, "08:00", "12:00",
			models.LocationOnline, "", models.ClassStatusScheduled, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), class))
	assert.NotEmpty(t, class.ID)
	assert.Equal(t, models.ClassStatusScheduled, class.Status)
	assert.Equal(t, class.CreatedAt, class.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledClassRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduledClassRepository(db)

	location := "Sala 9"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE scheduled_classes SET location = $1, updated_at = $2 WHERE id = $3")).
		WithArgs("Sala 9", sqlmock.AnyArg(), "class-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), "class-1", models.ScheduledClassUpdate{Location: &location}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledClassRepositoryUpdateMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduledClassRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE scheduled_classes SET student_ids = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(pq.StringArray{"stu-a"}, sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), "missing", models.ScheduledClassUpdate{StudentIDs: []string{"stu-a"}})
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestScheduledClassRepositoryMarkConcluded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduledClassRepository(db)

	window := models.ClassWindow{Date: time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC), StartTime: "09:00", EndTime: "13:00"}
	query := regexp.QuoteMeta("UPDATE scheduled_classes") + ".*" + regexp.QuoteMeta("WHERE id = $1 AND status = $7")

	mock.ExpectExec(query).
		WithArgs("class-1", models.ClassStatusConcluded, window.Date, "09:00", "13:00", sqlmock.AnyArg(), models.ClassStatusScheduled).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs("class-1", models.ClassStatusConcluded, window.Date, "09:00", "13:00", sqlmock.AnyArg(), models.ClassStatusScheduled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.MarkConcluded(context.Background(), "class-1", window)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.MarkConcluded(context.Background(), "class-1", window)
	require.NoError(t, err)
	assert.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledClassRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduledClassRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM scheduled_classes WHERE id = $1")).
		WithArgs("class-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "class-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
