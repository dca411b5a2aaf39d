package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData carries everything printed on a completion certificate.
type CertificateData struct {
	IssuerName       string
	StudentName      string
	CourseName       string
	WorkloadHours    int
	InstructorName   string
	CompletionDate   string
	Grade            float64
	VerificationCode string
	VerifyURL        string
}

// CertificateRenderer renders landscape A4 completion certificates.
type CertificateRenderer struct{}

// NewCertificateRenderer constructs a renderer.
func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{}
}

// Render creates the certificate PDF.
func (r *CertificateRenderer) Render(data CertificateData) ([]byte, error) {
	if data.StudentName == "" || data.CourseName == "" || data.VerificationCode == "" {
		return nil, fmt.Errorf("certificate requires student, course and verification code")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, 277, 190, "D")

	pdf.SetFont("Arial", "B", 28)
	pdf.Ln(15)
	pdf.CellFormat(0, 14, tr("CERTIFICADO DE CONCLUSÃO"), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 14)
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("%s certifica que", data.IssuerName)), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 22)
	pdf.CellFormat(0, 12, tr(strings.ToUpper(data.StudentName)), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 14)
	body := fmt.Sprintf("concluiu com aproveitamento o curso %s", data.CourseName)
	if data.WorkloadHours > 0 {
		body += fmt.Sprintf(", com carga horária de %d horas", data.WorkloadHours)
	}
	body += fmt.Sprintf(", em %s, obtendo nota %.1f.", data.CompletionDate, data.Grade)
	pdf.MultiCell(0, 8, tr(body), "", "C", false)
	pdf.Ln(14)

	if data.InstructorName != "" {
		pdf.SetFont("Arial", "", 12)
		pdf.CellFormat(0, 6, "______________________________", "", 1, "C", false, 0, "")
		pdf.CellFormat(0, 6, tr(data.InstructorName), "", 1, "C", false, 0, "")
		pdf.CellFormat(0, 6, "Instrutor", "", 1, "C", false, 0, "")
	}

	pdf.SetY(-35)
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, tr(fmt.Sprintf("Código de verificação: %s", data.VerificationCode)), "", 1, "C", false, 0, "")
	if data.VerifyURL != "" {
		pdf.CellFormat(0, 5, data.VerifyURL, "", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
