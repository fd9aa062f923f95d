package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
)

const qrImageName = "verify-qr"

// GatePassDocument is the content printed on a gate pass.
type GatePassDocument struct {
	SchoolName        string
	StudentID         string
	StudentName       string
	PassID            string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	PaymentPercentage int
	AuthorizedContact string
	VerifyURL         string
}

// GatePassRenderer renders gate pass documents as single-page PDFs.
type GatePassRenderer struct {
	compress bool
}

// NewGatePassRenderer constructs a renderer producing compressed PDFs.
func NewGatePassRenderer() *GatePassRenderer {
	return &GatePassRenderer{compress: true}
}

// Render lays out the pass details and a QR code pointing at the verification URL.
func (r *GatePassRenderer) Render(doc GatePassDocument) ([]byte, error) {
	if doc.PassID == "" || doc.VerifyURL == "" {
		return nil, fmt.Errorf("pass id and verify url required")
	}
	qrPNG, err := qrcode.Encode(doc.VerifyURL, qrcode.Medium, 512)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetCreationDate(doc.IssuedAt)
	pdf.SetTitle("Gate Pass "+doc.PassID, true)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(0, 0, 139)
	pdf.CellFormat(0, 12, tr(strings.ToUpper(doc.SchoolName)), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, "STUDENT GATE PASS", "", 1, "C", false, 0, "")
	pdf.Ln(10)

	name := strings.TrimSpace(doc.StudentName)
	if name == "" {
		name = "N/A"
	}
	rows := [][2]string{
		{"Student ID:", doc.StudentID},
		{"Name:", name},
		{"Pass ID:", doc.PassID},
		{"Issued:", doc.IssuedAt.Format("2006-01-02")},
		{"Expires:", doc.ExpiresAt.Format("2006-01-02")},
		{"Payment:", fmt.Sprintf("%d%%", doc.PaymentPercentage)},
		{"Valid for:", doc.AuthorizedContact},
	}
	pdf.SetFillColor(250, 250, 210)
	pdf.SetDrawColor(128, 128, 128)
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(50, 10, row[0], "1", 0, "", true, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(100, 10, tr(row[1]), "1", 1, "", true, 0, "")
	}
	pdf.Ln(10)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(qrImageName, opts, bytes.NewReader(qrPNG))
	pageW, _ := pdf.GetPageSize()
	const qrSize = 60.0
	pdf.ImageOptions(qrImageName, (pageW-qrSize)/2, pdf.GetY(), qrSize, qrSize, true, opts, 0, doc.VerifyURL)
	pdf.Ln(8)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, tr(fmt.Sprintf("This pass is valid only for %s. Do not share.", doc.AuthorizedContact)), "", "C", false)
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, "Authorized Signature", "T", 1, "L", false, 0, "")

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("layout pdf: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
