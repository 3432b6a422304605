package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// LedgerRepository appends and reads finance transactions. Rows are never updated or deleted.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append inserts a ledger entry.
func (r *LedgerRepository) Append(ctx context.Context, tx *models.FinanceTransaction) error {
	const query = `
INSERT INTO finance_transactions (school_id, student_id, invoice_id, payment_id, transaction_type, category, amount,
	description, term, year, transaction_date, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id, created_at`

	row := queryer(ctx, r.db).QueryRowxContext(ctx, query,
		tx.SchoolID, tx.StudentID, tx.InvoiceID, tx.PaymentID, tx.TransactionType, tx.Category, tx.Amount,
		tx.Description, tx.Term, tx.Year, tx.TransactionDate, tx.CreatedBy)
	if err := row.Scan(&tx.ID, &tx.CreatedAt); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// ListByStudent returns a student's entries in posting order.
func (r *LedgerRepository) ListByStudent(ctx context.Context, schoolID, studentID int64) ([]models.FinanceTransaction, error) {
	const query = `
SELECT id, school_id, student_id, invoice_id, payment_id, transaction_type, category, amount, description,
	term, year, transaction_date, created_by, created_at
FROM finance_transactions
WHERE school_id = $1 AND student_id = $2
ORDER BY transaction_date, id`

	var rows []models.FinanceTransaction
	if err := sqlx.SelectContext(ctx, queryer(ctx, r.db), &rows, query, schoolID, studentID); err != nil {
		return nil, fmt.Errorf("list student ledger: %w", err)
	}
	return rows, nil
}

// Totals sums credits, debits, expense debits and payment reversals for the school and optional period.
func (r *LedgerRepository) Totals(ctx context.Context, schoolID int64, term, year *int) (models.LedgerTotals, error) {
	query := `
SELECT
	COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'credit'), 0) AS credits,
	COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'debit'), 0) AS debits,
	COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'debit' AND category = 'expense'), 0) AS expenses,
	COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'debit' AND category = 'payment_reversal'), 0) AS reversals
FROM finance_transactions
WHERE school_id = $1`
	args := []interface{}{schoolID}
	query, args = appendPeriod(query, args, "", term, year)

	var totals models.LedgerTotals
	if err := sqlx.GetContext(ctx, queryer(ctx, r.db), &totals, query, args...); err != nil {
		return models.LedgerTotals{}, fmt.Errorf("sum ledger: %w", err)
	}
	return totals, nil
}
