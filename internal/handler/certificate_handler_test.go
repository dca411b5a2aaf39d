package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/turmas-api/internal/middleware"
	"github.com/noah-isme/turmas-api/internal/models"
	"github.com/noah-isme/turmas-api/internal/service"
	appErrors "github.com/noah-isme/turmas-api/pkg/errors"
)

type certificateServiceMock struct {
	cert   *models.Certificate
	cached bool
	issued *service.IssuedCertificate
	path   string
	err    error
}

func (m *certificateServiceMock) Verify(ctx context.Context, code string) (*models.Certificate, bool, error) {
	return m.cert, m.cached, m.err
}

func (m *certificateServiceMock) Issue(ctx context.Context, enrollmentID string) (*service.IssuedCertificate, error) {
	return m.issued, m.err
}

func (m *certificateServiceMock) Open(ctx context.Context, token string) (*os.File, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	f, err := os.Open(m.path)
	return f, "certificado-enr-1.pdf", err
}

func newCertificateRouter(svc *certificateServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewCertificateHandler(svc)
	r := gin.New()
	r.GET("/certificates/verify/:code", h.Verify)
	r.POST("/enrollments/:id/certificate", h.Issue)
	r.GET("/certificates/download/:token", h.Download)
	return r
}

func TestCertificateHandlerVerify(t *testing.T) {
	svc := &certificateServiceMock{cert: &models.Certificate{VerificationCode: "CERT-1-AAAA", StudentName: "Ana"}}
	w := serve(newCertificateRouter(svc), http.MethodGet, "/certificates/verify/CERT-1-AAAA", "")

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "Ana", data["student_name"])
}

func TestCertificateHandlerVerifyReportsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &certificateServiceMock{cert: &models.Certificate{VerificationCode: "CERT-1-AAAA"}, cached: true}
	h := NewCertificateHandler(svc)
	r := gin.New()
	r.Use(middleware.WithResponseMeta())
	r.GET("/certificates/verify/:code", h.Verify)

	w := serve(r, http.MethodGet, "/certificates/verify/CERT-1-AAAA", "")

	require.Equal(t, http.StatusOK, w.Code)
	meta := decodeEnvelope(t, w)["meta"].(map[string]interface{})
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestCertificateHandlerVerifyNotFound(t *testing.T) {
	svc := &certificateServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "certificate not found")}
	w := serve(newCertificateRouter(svc), http.MethodGet, "/certificates/verify/CERT-404", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCertificateHandlerIssue(t *testing.T) {
	svc := &certificateServiceMock{issued: &service.IssuedCertificate{EnrollmentID: "enr-1", Token: "tok"}}
	w := serve(newCertificateRouter(svc), http.MethodPost, "/enrollments/enr-1/certificate", "")
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCertificateHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cert.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.3 test"), 0o600))
	svc := &certificateServiceMock{path: path}

	w := serve(newCertificateRouter(svc), http.MethodGet, "/certificates/download/tok", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "certificado-enr-1.pdf")
	assert.Equal(t, "%PDF-1.3 test", w.Body.String())
}

func TestCertificateHandlerDownloadForbidden(t *testing.T) {
	svc := &certificateServiceMock{err: appErrors.Clone(appErrors.ErrForbidden, "download link expired")}
	w := serve(newCertificateRouter(svc), http.MethodGet, "/certificates/download/tok", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
