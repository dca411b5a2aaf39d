package repository

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/turmas-api/internal/models"
)

func TestAuditRepositoryCreateAuditLog(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	userID, classID := "user-1", "class-1"
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(sqlmock.AnyArg(), "user-1", "CLASS_CONCLUDE", "scheduled_class", "class-1", `{"status":200}`,
			"10.0.0.1", "curl/8", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateAuditLog(context.Background(), &models.AuditLog{
		UserID:     &userID,
		Action:     "CLASS_CONCLUDE",
		Resource:   "scheduled_class",
		ResourceID: &classID,
		Details:    json.RawMessage(`{"status":200}`),
		IPAddress:  "10.0.0.1",
		UserAgent:  "curl/8",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
