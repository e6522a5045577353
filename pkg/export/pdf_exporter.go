package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PermitSlip is the printable summary handed to a student.
type PermitSlip struct {
	Title       string
	Code        string
	StudentName string
	StudentCode string
	Status      string
	AmountPaid  string
	IssuedAt    string
	ExpiresAt   string
	IssuedBy    string
	QRPNG       []byte
}

// PDFExporter renders datasets and permit slips as PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 10)
	colWidth := 277.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return output(pdf)
}

// RenderSlip renders a one page permit slip with the QR code on the right.
func (e *PDFExporter) RenderSlip(slip PermitSlip) ([]byte, error) {
	if slip.Code == "" {
		return nil, fmt.Errorf("permit slip requires a code")
	}
	title := slip.Title
	if title == "" {
		title = "SRC Permit"
	}

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 15, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Courier", "B", 22)
	pdf.CellFormat(0, 12, slip.Code, "1", 1, "C", false, 0, "")
	pdf.Ln(6)

	if len(slip.QRPNG) > 0 {
		opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
		pdf.RegisterImageOptionsReader("permit-qr", opts, bytes.NewReader(slip.QRPNG))
		pdf.ImageOptions("permit-qr", 94, pdf.GetY(), 40, 40, false, opts, 0, "")
	}

	rows := [][2]string{
		{"Student", slip.StudentName},
		{"Student ID", slip.StudentCode},
		{"Status", slip.Status},
		{"Amount paid", slip.AmountPaid},
		{"Issued", slip.IssuedAt},
		{"Expires", slip.ExpiresAt},
		{"Issued by", slip.IssuedBy},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(28, 7, row[0], "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(50, 7, row[1], "", 1, "", false, 0, "")
	}

	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("build pdf: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
