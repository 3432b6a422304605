package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Receipt holds the printable fields of a single payment.
type Receipt struct {
	SchoolLabel   string
	ReceiptNumber string
	StudentName   string
	StudentID     int64
	FeeType       string
	Term          int
	Year          int
	Method        string
	Currency      string
	AmountDue     string
	AmountPaid    string
	Balance       string
	IssuedAt      time.Time
	Voided        bool
}

// RenderReceipt draws an A5 receipt slip.
func RenderReceipt(r Receipt) ([]byte, error) {
	if r.ReceiptNumber == "" {
		return nil, fmt.Errorf("receipt number required")
	}
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 12, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 9, r.SchoolLabel, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, "OFFICIAL RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	rows := [][2]string{
		{"Receipt No.", r.ReceiptNumber},
		{"Date", r.IssuedAt.Format("02 Jan 2006")},
		{"Student", fmt.Sprintf("%s (#%d)", r.StudentName, r.StudentID)},
		{"Fee", r.FeeType},
		{"Term / Year", fmt.Sprintf("Term %d / %d", r.Term, r.Year)},
		{"Method", r.Method},
		{"Amount due", r.Currency + " " + r.AmountDue},
		{"Amount paid", r.Currency + " " + r.AmountPaid},
		{"Balance", r.Currency + " " + r.Balance},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(40, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 8, row[1], "1", 1, "", false, 0, "")
	}

	if r.Voided {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 18)
		pdf.SetTextColor(200, 0, 0)
		pdf.CellFormat(0, 10, "VOID", "", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}
