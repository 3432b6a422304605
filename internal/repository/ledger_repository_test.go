package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

func TestLedgerRepositoryAppend(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewLedgerRepository(db)
	studentID := int64(7)
	date := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	entry := &models.FinanceTransaction{
		SchoolID: 1, StudentID: &studentID, TransactionType: models.Credit, Category: models.CategoryFeePayment,
		Amount: decimal.NewFromInt(200), Description: "Tuition payment REC-2025-0001", TransactionDate: date, CreatedBy: "user-1",
	}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO finance_transactions")).
		WithArgs(int64(1), int64(7), nil, nil, "credit", "fee_payment", decimal.NewFromInt(200),
			"Tuition payment REC-2025-0001", nil, nil, date, "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	require.NoError(t, repo.Append(context.Background(), entry))
	assert.Equal(t, int64(1), entry.ID)
}

func TestLedgerRepositoryTotals(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewLedgerRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FILTER (WHERE transaction_type = 'debit' AND category = 'payment_reversal'), 0) AS reversals")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"credits", "debits", "expenses", "reversals"}).AddRow("900", "2100", "100", "40"))

	totals, err := repo.Totals(context.Background(), 1, nil, nil)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(900).Equal(totals.Credits))
	assert.True(t, decimal.NewFromInt(100).Equal(totals.Expenses))
	assert.True(t, decimal.NewFromInt(40).Equal(totals.Reversals))
}
