package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// PaymentRepository persists fee payment events.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, school_id, student_id, invoice_id, payment_plan_id, installment_id, kind, fee_type,
	amount_due, amount_paid, balance, status, term, year, payment_method, receipt_number, notes,
	idempotency_key, is_deleted, deleted_at, created_by, created_at`

const insertPayment = `
INSERT INTO fee_payments (school_id, student_id, invoice_id, payment_plan_id, installment_id, kind, fee_type,
	amount_due, amount_paid, balance, status, term, year, payment_method, receipt_number, notes, idempotency_key, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

func paymentArgs(p *models.FeePayment) []interface{} {
	return []interface{}{
		p.SchoolID, p.StudentID, p.InvoiceID, p.PaymentPlanID, p.InstallmentID, p.Kind, p.FeeType,
		p.AmountDue, p.AmountPaid, p.Balance, p.Status, p.Term, p.Year, p.PaymentMethod, p.ReceiptNumber,
		p.Notes, p.IdempotencyKey, p.CreatedBy,
	}
}

// Create inserts a payment. A duplicate receipt or idempotency key surfaces as a unique violation.
func (r *PaymentRepository) Create(ctx context.Context, p *models.FeePayment) error {
	row := queryer(ctx, r.db).QueryRowxContext(ctx, insertPayment+"\nRETURNING id, created_at", paymentArgs(p)...)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		return fmt.Errorf("insert fee payment: %w", err)
	}
	return nil
}

// CreateDownPayment inserts the plan's down payment unless one already exists.
func (r *PaymentRepository) CreateDownPayment(ctx context.Context, p *models.FeePayment) (bool, error) {
	query := insertPayment + `
ON CONFLICT (payment_plan_id) WHERE kind = 'down_payment' DO NOTHING
RETURNING id, created_at`

	err := queryer(ctx, r.db).QueryRowxContext(ctx, query, paymentArgs(p)...).Scan(&p.ID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert down payment: %w", err)
	}
	return true, nil
}

// FindByID fetches a payment.
func (r *PaymentRepository) FindByID(ctx context.Context, id int64) (*models.FeePayment, error) {
	var p models.FeePayment
	if err := sqlx.GetContext(ctx, queryer(ctx, r.db), &p, `SELECT `+paymentColumns+` FROM fee_payments WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("find fee payment %d: %w", id, err)
	}
	return &p, nil
}

// FindByIdempotencyKey returns the payment recorded under the key.
func (r *PaymentRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.FeePayment, error) {
	var p models.FeePayment
	if err := sqlx.GetContext(ctx, queryer(ctx, r.db), &p, `SELECT `+paymentColumns+` FROM fee_payments WHERE idempotency_key = $1`, key); err != nil {
		return nil, fmt.Errorf("find fee payment by idempotency key: %w", err)
	}
	return &p, nil
}

// MarkDeleted soft-deletes a live payment. It reports false when the payment was already voided.
func (r *PaymentRepository) MarkDeleted(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := queryer(ctx, r.db).ExecContext(ctx,
		`UPDATE fee_payments SET is_deleted = TRUE, deleted_at = $2 WHERE id = $1 AND is_deleted = FALSE`, id, at)
	if err != nil {
		return false, fmt.Errorf("void fee payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("void fee payment: %w", err)
	}
	return affected == 1, nil
}

// CollectedTotal sums live payments for the school and optional period.
func (r *PaymentRepository) CollectedTotal(ctx context.Context, schoolID int64, term, year *int) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount_paid), 0) FROM fee_payments WHERE school_id = $1 AND is_deleted = FALSE`
	args := []interface{}{schoolID}
	query, args = appendPeriod(query, args, "", term, year)

	var total decimal.Decimal
	if err := sqlx.GetContext(ctx, queryer(ctx, r.db), &total, query, args...); err != nil {
		return decimal.Zero, fmt.Errorf("sum fee payments: %w", err)
	}
	return total, nil
}
