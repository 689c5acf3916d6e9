package pdf

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData carries the fields printed on a credit issuance
// certificate
type CertificateData struct {
	ReportID      string
	ProjectName   string
	CommunityName string
	ActivityType  string
	AreaCovered   float64
	CreditsIssued int
	VerifiedBy    string
	VerifiedAt    time.Time
}

// Generator produces carbon-credit certificates
type Generator interface {
	GenerateCertificate(ctx context.Context, data CertificateData) ([]byte, error)
}

type certificateGenerator struct{}

// NewGenerator creates a certificate generator
func NewGenerator() Generator {
	return &certificateGenerator{}
}

func (g *certificateGenerator) GenerateCertificate(ctx context.Context, data CertificateData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := gofpdf.New("L", "mm", "A4", "")
	doc.SetTitle("Carbon Credit Certificate", false)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 28)
	doc.SetTextColor(13, 71, 161)
	doc.CellFormat(0, 25, "Blue Carbon Credit Certificate", "", 1, "C", false, 0, "")

	doc.SetFont("Helvetica", "", 12)
	doc.SetTextColor(60, 60, 60)
	doc.CellFormat(0, 10, "This certifies that verified restoration work has earned carbon credits.", "", 1, "C", false, 0, "")
	doc.Ln(8)

	doc.SetFont("Helvetica", "B", 16)
	doc.SetTextColor(0, 0, 0)
	doc.CellFormat(0, 12, data.ProjectName, "", 1, "C", false, 0, "")
	doc.SetFont("Helvetica", "", 13)
	doc.CellFormat(0, 9, fmt.Sprintf("Submitted by %s", data.CommunityName), "", 1, "C", false, 0, "")
	doc.Ln(6)

	rows := [][2]string{
		{"Report ID", data.ReportID},
		{"Activity", data.ActivityType},
		{"Area Restored", fmt.Sprintf("%.2f hectares", data.AreaCovered)},
		{"Credits Issued", fmt.Sprintf("%d tonnes CO2", data.CreditsIssued)},
		{"Verified By", data.VerifiedBy},
		{"Verified On", data.VerifiedAt.Format("2 January 2006")},
	}

	doc.SetFont("Helvetica", "", 12)
	pageWidth, _ := doc.GetPageSize()
	left := (pageWidth - 150) / 2
	for _, row := range rows {
		doc.SetX(left)
		doc.SetFont("Helvetica", "B", 12)
		doc.CellFormat(55, 9, row[0], "", 0, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 12)
		doc.CellFormat(95, 9, row[1], "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
