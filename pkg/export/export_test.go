package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	data := Dataset{
		Headers: []string{"Student", "Balance"},
		Rows: []map[string]string{
			{"Student": "Amina, K.", "Balance": "300.00"},
			{"Student": "Okello", "Balance": "50.00"},
		},
	}

	out, err := NewCSVExporter().Render(data, "ignored")
	require.NoError(t, err)
	assert.Equal(t, "Student,Balance\n\"Amina, K.\",300.00\nOkello,50.00\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{}, "")
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	data := Dataset{Headers: []string{"A"}, Rows: []map[string]string{{"A": "1"}}}

	out, err := NewPDFExporter().Render(data, "Debtors")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Equal(t, "application/pdf", NewPDFExporter().ContentType())
}

func TestRenderReceipt(t *testing.T) {
	out, err := RenderReceipt(Receipt{
		SchoolLabel:   "School Fees",
		ReceiptNumber: "REC-2025-0001",
		StudentName:   "Amina",
		StudentID:     7,
		FeeType:       "Tuition",
		Term:          1,
		Year:          2025,
		Method:        "Cash",
		Currency:      "UGX",
		AmountDue:     "500.00",
		AmountPaid:    "200.00",
		Balance:       "300.00",
		IssuedAt:      time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Voided:        true,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = RenderReceipt(Receipt{})
	assert.Error(t, err)
}
