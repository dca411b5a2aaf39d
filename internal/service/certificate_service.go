package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/turmas-api/internal/models"
	appErrors "github.com/noah-isme/turmas-api/pkg/errors"
	"github.com/noah-isme/turmas-api/pkg/export"
	"github.com/noah-isme/turmas-api/pkg/storage"
)

const certificateCacheKeyPrefix = "certificates:verify:"

func certificateCacheKey(code string) string {
	return certificateCacheKeyPrefix + code
}

type certificateEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByVerificationCode(ctx context.Context, code string) (*models.Enrollment, error)
}

type certificateDirectory interface {
	StudentsByIDs(ctx context.Context, ids []string) (map[string]models.Student, error)
	CourseByID(ctx context.Context, id string) (*models.Course, error)
	InstructorByID(ctx context.Context, id string) (*models.Instructor, error)
}

type certificateRenderer interface {
	Render(data export.CertificateData) ([]byte, error)
}

type certificateStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
}

type downloadSigner interface {
	Generate(resourceID, relPath string) (*storage.SignedToken, error)
	Parse(token string) (*storage.SignedToken, error)
}

// IssuedCertificate points to a rendered certificate through a signed token.
type IssuedCertificate struct {
	EnrollmentID     string    `json:"enrollment_id"`
	VerificationCode string    `json:"verification_code"`
	Token            string    `json:"token"`
	DownloadURL      string    `json:"download_url"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// CertificateServiceConfig carries the presentation settings of certificates.
type CertificateServiceConfig struct {
	IssuerName    string
	PublicBaseURL string
	APIPrefix     string
	CacheTTL      time.Duration
}

// CertificateService verifies, renders and serves completion certificates.
type CertificateService struct {
	enrollments certificateEnrollmentReader
	directory   certificateDirectory
	renderer    certificateRenderer
	files       certificateStorage
	signer      downloadSigner
	cache       *CacheService
	cfg         CertificateServiceConfig
	logger      *zap.Logger
}

// NewCertificateService constructs the service. cache may be nil.
func NewCertificateService(enrollments certificateEnrollmentReader, directory certificateDirectory, renderer certificateRenderer, files certificateStorage, signer downloadSigner, cache *CacheService, cfg CertificateServiceConfig, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{
		enrollments: enrollments,
		directory:   directory,
		renderer:    renderer,
		files:       files,
		signer:      signer,
		cache:       cache,
		cfg:         cfg,
		logger:      logger,
	}
}

// Verify returns the public certificate view for a verification code and
// whether it was served from the cache.
func (s *CertificateService) Verify(ctx context.Context, code string) (*models.Certificate, bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "verification code is required")
	}

	var cached models.Certificate
	if s.cache.Get(ctx, certificateCacheKey(code), &cached) {
		return &cached, true, nil
	}

	enrollment, err := s.enrollments.FindByVerificationCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	if !enrollment.Approved {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
	}
	cert, err := s.describe(ctx, enrollment)
	if err != nil {
		return nil, false, err
	}
	s.cache.Set(ctx, certificateCacheKey(code), cert, s.cfg.CacheTTL)
	return cert, false, nil
}

// Issue renders the certificate of an enrollment, stores it and returns a
// signed download link.
func (s *CertificateService) Issue(ctx context.Context, enrollmentID string) (*IssuedCertificate, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !enrollment.Approved {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only approved enrollments have certificates")
	}
	cert, err := s.describe(ctx, enrollment)
	if err != nil {
		return nil, err
	}

	pdf, err := s.renderer.Render(export.CertificateData{
		IssuerName:       s.cfg.IssuerName,
		StudentName:      cert.StudentName,
		CourseName:       cert.CourseName,
		WorkloadHours:    cert.WorkloadHours,
		InstructorName:   cert.InstructorName,
		CompletionDate:   cert.CompletionDate.Format(completionDateDisplayLayout),
		Grade:            cert.Grade,
		VerificationCode: cert.VerificationCode,
		VerifyURL:        s.verifyURL(cert.VerificationCode),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	path, err := s.files.Save(fmt.Sprintf("%s/%s.pdf", enrollment.UserID, enrollment.ID), pdf)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}
	token, err := s.signer.Generate(enrollment.ID, path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign certificate link")
	}

	s.logger.Info("certificate issued", zap.String("enrollment_id", enrollment.ID), zap.String("verification_code", enrollment.VerificationCode))
	return &IssuedCertificate{
		EnrollmentID:     enrollment.ID,
		VerificationCode: enrollment.VerificationCode,
		Token:            token.Token,
		DownloadURL:      s.cfg.PublicBaseURL + s.cfg.APIPrefix + "/certificates/download/" + token.Token,
		ExpiresAt:        token.ExpiresAt,
	}, nil
}

// Open resolves a signed token to the stored certificate file.
func (s *CertificateService) Open(ctx context.Context, token string) (*os.File, string, error) {
	parsed, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	file, err := s.files.Open(parsed.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "certificate file not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open certificate")
	}
	return file, fmt.Sprintf("certificado-%s.pdf", parsed.ResourceID), nil
}

func (s *CertificateService) describe(ctx context.Context, enrollment *models.Enrollment) (*models.Certificate, error) {
	students, err := s.directory.StudentsByIDs(ctx, []string{enrollment.UserID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	student, ok := students[enrollment.UserID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	course, err := s.directory.CourseByID(ctx, enrollment.CourseID)
	if err != nil {
		return nil, referenceError(err, "course not found", "failed to load course")
	}

	cert := &models.Certificate{
		VerificationCode: enrollment.VerificationCode,
		StudentName:      student.FullName,
		CourseName:       course.Name,
		WorkloadHours:    course.WorkloadHours,
		CompletionDate:   enrollment.CompletionDate,
		Grade:            enrollment.Grade,
		EnrollmentID:     enrollment.ID,
	}
	if enrollment.InstructorID != nil {
		instructor, err := s.directory.InstructorByID(ctx, *enrollment.InstructorID)
		switch {
		case err == nil:
			cert.InstructorName = instructor.FullName
		case errors.Is(err, sql.ErrNoRows):
			s.logger.Warn("certificate instructor missing", zap.String("instructor_id", *enrollment.InstructorID))
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
		}
	}
	return cert, nil
}

func (s *CertificateService) verifyURL(code string) string {
	return s.cfg.PublicBaseURL + s.cfg.APIPrefix + "/certificates/verify/" + code
}
