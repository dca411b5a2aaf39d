package service

import (
	"context"
	"database/sql"
	"errors"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/turmas-api/internal/models"
	appErrors "github.com/noah-isme/turmas-api/pkg/errors"
	"github.com/noah-isme/turmas-api/pkg/mail"
)

const (
	notificationsDisabledMessage  = "notifications disabled"
	defaultResultNotificationType = "Resultado de Aprovação"
	completionDateDisplayLayout   = "02/01/2006"
)

type settingsLoader interface {
	LoadFresh(ctx context.Context) (models.NotificationSettings, error)
}

type notificationLogStore interface {
	CreateLog(ctx context.Context, entry *models.NotificationLogEntry) error
	ListLogsByClass(ctx context.Context, classID string) ([]models.NotificationLogEntry, error)
}

type classFinder interface {
	FindByID(ctx context.Context, id string) (*models.ScheduledClass, error)
}

type classEnrollmentLister interface {
	ListByClass(ctx context.Context, classID string) ([]models.Enrollment, error)
}

type resultDirectory interface {
	StudentsByIDs(ctx context.Context, ids []string) (map[string]models.Student, error)
	CompaniesByIDs(ctx context.Context, ids []string) (map[string]models.Company, error)
	CourseByID(ctx context.Context, id string) (*models.Course, error)
}

// RecipientSelection lists the addresses the operator ticked for delivery.
type RecipientSelection struct {
	StudentEmails []string `json:"student_emails"`
	CompanyEmails []string `json:"company_emails"`
}

// ResultNotification is one approved student with the data printed in the message.
type ResultNotification struct {
	Student          models.Student
	Company          *models.Company
	VerificationCode string
	CompletionDate   time.Time
}

// SendResultsRequest describes one result dispatch.
type SendResultsRequest struct {
	Class      models.ScheduledClass
	Course     models.Course
	Students   []ResultNotification
	Recipients RecipientSelection
}

// SendAttempt is the outcome of one delivery.
type SendAttempt struct {
	StudentID string                    `json:"student_id"`
	Recipient string                    `json:"recipient"`
	Status    models.NotificationStatus `json:"status"`
	Message   string                    `json:"message"`
}

// SendResultsResult summarises a dispatch. SentCount counts successful sends only.
type SendResultsResult struct {
	SentCount int           `json:"sent_count"`
	Disabled  bool          `json:"disabled"`
	Message   string        `json:"message,omitempty"`
	Attempts  []SendAttempt `json:"attempts"`
}

// NotificationService emails class results and keeps the delivery log.
type NotificationService struct {
	settings    settingsLoader
	logs        notificationLogStore
	classes     classFinder
	enrollments classEnrollmentLister
	directory   resultDirectory
	sender      mail.Sender
	envEnabled  bool
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewNotificationService constructs the dispatcher. envEnabled is the
// deployment-level kill switch and is combined with the stored settings.
func NewNotificationService(settings settingsLoader, logs notificationLogStore, classes classFinder, enrollments classEnrollmentLister, directory resultDirectory, sender mail.Sender, envEnabled bool, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		settings:    settings,
		logs:        logs,
		classes:     classes,
		enrollments: enrollments,
		directory:   directory,
		sender:      sender,
		envEnabled:  envEnabled,
		metrics:     metrics,
		logger:      logger,
	}
}

// NotifyClassResults assembles the approved students of a concluded class
// and sends their result emails to the selected recipients.
func (s *NotificationService) NotifyClassResults(ctx context.Context, classID string, recipients RecipientSelection) (*SendResultsResult, error) {
	if len(recipients.StudentEmails) == 0 && len(recipients.CompanyEmails) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one recipient must be selected")
	}

	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if !class.Concluded() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "class must be concluded before sending results")
	}

	course, err := s.directory.CourseByID(ctx, class.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	enrollments, err := s.enrollments.ListByClass(ctx, class.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class enrollments")
	}
	approved := make([]models.Enrollment, 0, len(enrollments))
	userIDs := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		if e.Approved {
			approved = append(approved, e)
			userIDs = append(userIDs, e.UserID)
		}
	}

	students, err := s.directory.StudentsByIDs(ctx, userIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	var companyIDs []string
	for _, st := range students {
		if st.CompanyID != nil {
			companyIDs = append(companyIDs, *st.CompanyID)
		}
	}
	companies, err := s.directory.CompaniesByIDs(ctx, companyIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load companies")
	}

	req := SendResultsRequest{Class: *class, Course: *course, Recipients: recipients}
	for _, e := range approved {
		student, ok := students[e.UserID]
		if !ok {
			s.logger.Warn("skipping result for unknown student", zap.String("class_id", class.ID), zap.String("student_id", e.UserID))
			continue
		}
		item := ResultNotification{Student: student, VerificationCode: e.VerificationCode, CompletionDate: e.CompletionDate}
		if student.CompanyID != nil {
			if company, ok := companies[*student.CompanyID]; ok {
				item.Company = &company
			}
		}
		req.Students = append(req.Students, item)
	}
	return s.SendResults(ctx, req)
}

// SendResults sends one message per selected recipient and logs every attempt.
// Settings are read once; when notifications are off nothing is sent.
func (s *NotificationService) SendResults(ctx context.Context, req SendResultsRequest) (*SendResultsResult, error) {
	settings, err := s.settings.LoadFresh(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification settings")
	}
	template, ok := settings.Template(models.TemplateCourseResult)
	if !s.envEnabled || !settings.Enabled || !ok || !template.Enabled {
		s.logger.Info("result notifications disabled", zap.String("class_id", req.Class.ID))
		return &SendResultsResult{Disabled: true, Message: notificationsDisabledMessage, Attempts: []SendAttempt{}}, nil
	}

	studentEmails := emailSet(req.Recipients.StudentEmails)
	companyEmails := emailSet(req.Recipients.CompanyEmails)
	notificationType := template.Type
	if notificationType == "" {
		notificationType = defaultResultNotificationType
	}

	result := &SendResultsResult{Attempts: []SendAttempt{}}
	for _, item := range req.Students {
		for _, to := range recipientsFor(item, studentEmails, companyEmails) {
			msg := renderResultMessage(template, req.Course, item, to)
			attempt := s.deliver(ctx, msg, item.Student.ID)
			if attempt.Status == models.NotificationSuccess {
				result.SentCount++
			}
			result.Attempts = append(result.Attempts, attempt)
			s.appendLog(ctx, notificationType, msg.Subject, attempt, req)
		}
	}
	s.logger.Info("result notifications sent",
		zap.String("class_id", req.Class.ID),
		zap.Int("attempts", len(result.Attempts)),
		zap.Int("sent", result.SentCount),
	)
	return result, nil
}

// ListLogs returns the delivery log of a class.
func (s *NotificationService) ListLogs(ctx context.Context, classID string) ([]models.NotificationLogEntry, error) {
	entries, err := s.logs.ListLogsByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notification logs")
	}
	if entries == nil {
		entries = []models.NotificationLogEntry{}
	}
	return entries, nil
}

func (s *NotificationService) deliver(ctx context.Context, msg mail.Message, studentID string) SendAttempt {
	attempt := SendAttempt{StudentID: studentID, Recipient: msg.To, Status: models.NotificationFailure}
	res, err := s.sender.Send(ctx, msg)
	switch {
	case err != nil:
		attempt.Message = err.Error()
	case res == nil:
		attempt.Message = "provider returned no result"
	default:
		attempt.Message = res.Message
		if res.Success {
			attempt.Status = models.NotificationSuccess
		}
	}
	s.metrics.RecordNotification(string(attempt.Status))
	if attempt.Status == models.NotificationFailure {
		s.logger.Warn("result notification failed", zap.String("recipient", msg.To), zap.String("student_id", studentID), zap.String("reason", attempt.Message))
	}
	return attempt
}

func (s *NotificationService) appendLog(ctx context.Context, notificationType, subject string, attempt SendAttempt, req SendResultsRequest) {
	studentID, classID, courseID := attempt.StudentID, req.Class.ID, req.Course.ID
	entry := &models.NotificationLogEntry{
		Type:      notificationType,
		Recipient: attempt.Recipient,
		Subject:   subject,
		Status:    attempt.Status,
		Message:   attempt.Message,
		StudentID: optionalString(studentID),
		ClassID:   optionalString(classID),
		CourseID:  optionalString(courseID),
	}
	if err := s.logs.CreateLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write notification log", zap.String("recipient", attempt.Recipient), zap.Error(err))
	}
}

// recipientsFor lists the selected addresses of one student, each address once.
func recipientsFor(item ResultNotification, studentEmails, companyEmails map[string]struct{}) []string {
	var out []string
	seen := make(map[string]struct{}, 2)
	add := func(email string, selected map[string]struct{}) {
		key := normalizeEmail(email)
		if key == "" {
			return
		}
		if _, ok := selected[key]; !ok {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, email)
	}
	add(item.Student.Email, studentEmails)
	if item.Company != nil {
		add(item.Company.Email, companyEmails)
	}
	return out
}

func renderResultMessage(tpl models.NotificationTemplate, course models.Course, item ResultNotification, to string) mail.Message {
	companyName := ""
	if item.Company != nil {
		companyName = item.Company.Name
	}
	values := map[string]string{
		"studentName":      item.Student.FullName,
		"courseName":       course.Name,
		"companyName":      companyName,
		"completionDate":   item.CompletionDate.Format(completionDateDisplayLayout),
		"verificationCode": item.VerificationCode,
	}
	plain := make([]string, 0, len(values)*2)
	escaped := make([]string, 0, len(values)*2)
	for key, value := range values {
		placeholder := "{{" + key + "}}"
		plain = append(plain, placeholder, value)
		escaped = append(escaped, placeholder, html.EscapeString(value))
	}
	plainReplacer := strings.NewReplacer(plain...)
	htmlReplacer := strings.NewReplacer(escaped...)

	text := plainReplacer.Replace(tpl.Content)
	body := htmlReplacer.Replace(html.EscapeString(tpl.Content))
	body = strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "<br>")

	return mail.Message{
		To:      to,
		Subject: plainReplacer.Replace(tpl.Subject),
		Text:    text,
		HTML:    body,
	}
}

func emailSet(emails []string) map[string]struct{} {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if n := normalizeEmail(e); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
