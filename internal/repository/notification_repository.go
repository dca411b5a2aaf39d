package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/turmas-api/internal/models"
)

// NotificationRepository stores notification settings, templates and the delivery log.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// LoadSettings reads the global switch and every template in one pass. A
// missing settings row is treated as disabled.
func (r *NotificationRepository) LoadSettings(ctx context.Context) (*models.NotificationSettings, error) {
	var enabled []bool
	if err := r.db.SelectContext(ctx, &enabled, `SELECT enabled FROM notification_settings WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("load notification settings: %w", err)
	}

	var templates []models.NotificationTemplate
	const query = `SELECT key, type, subject, content, enabled, updated_at FROM notification_templates`
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("load notification templates: %w", err)
	}

	settings := &models.NotificationSettings{
		Enabled:   len(enabled) == 1 && enabled[0],
		Templates: make(map[string]models.NotificationTemplate, len(templates)),
	}
	for _, tpl := range templates {
		settings.Templates[tpl.Key] = tpl
	}
	return settings, nil
}

// CreateLog appends a delivery attempt to the log.
func (r *NotificationRepository) CreateLog(ctx context.Context, entry *models.NotificationLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notification_logs (id, type, recipient, subject, status, message, student_id, class_id, course_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Type, entry.Recipient, entry.Subject, entry.Status, entry.Message,
		entry.StudentID, entry.ClassID, entry.CourseID, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("create notification log: %w", err)
	}
	return nil
}

// ListLogsByClass returns the delivery attempts made for a class, newest first.
func (r *NotificationRepository) ListLogsByClass(ctx context.Context, classID string) ([]models.NotificationLogEntry, error) {
	const query = `SELECT id, type, recipient, subject, status, message, student_id, class_id, course_id, created_at
        FROM notification_logs WHERE class_id = $1 ORDER BY created_at DESC`
	var entries []models.NotificationLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID); err != nil {
		return nil, fmt.Errorf("list notification logs: %w", err)
	}
	return entries, nil
}
