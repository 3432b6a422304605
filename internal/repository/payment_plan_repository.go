package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// PaymentPlanRepository persists payment plans and their installments.
type PaymentPlanRepository struct {
	db *sqlx.DB
}

// NewPaymentPlanRepository constructs the repository.
func NewPaymentPlanRepository(db *sqlx.DB) *PaymentPlanRepository {
	return &PaymentPlanRepository{db: db}
}

const planColumns = `id, school_id, student_id, invoice_id, term, year, total_amount, down_payment, installment_count,
	frequency, start_date, status, notes, created_by, created_at`

const installmentColumns = `id, plan_id, installment_number, due_date, amount, paid_amount, status`

// Create inserts the plan row.
func (r *PaymentPlanRepository) Create(ctx context.Context, p *models.PaymentPlan) error {
	const query = `
INSERT INTO payment_plans (school_id, student_id, invoice_id, term, year, total_amount, down_payment,
	installment_count, frequency, start_date, status, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id, created_at`

	row := queryer(ctx, r.db).QueryRowxContext(ctx, query,
		p.SchoolID, p.StudentID, p.InvoiceID, p.Term, p.Year, p.TotalAmount, p.DownPayment,
		p.InstallmentCount, p.Frequency, p.StartDate, p.Status, p.Notes, p.CreatedBy)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		return fmt.Errorf("insert payment plan: %w", err)
	}
	return nil
}

// CreateInstallments inserts the schedule rows for a plan.
func (r *PaymentPlanRepository) CreateInstallments(ctx context.Context, planID int64, items []models.PlanInstallment) error {
	const query = `
INSERT INTO plan_installments (plan_id, installment_number, due_date, amount, paid_amount, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

	q := queryer(ctx, r.db)
	for i := range items {
		item := &items[i]
		item.PlanID = planID
		if err := q.QueryRowxContext(ctx, query, planID, item.InstallmentNumber, item.DueDate, item.Amount, item.PaidAmount, item.Status).Scan(&item.ID); err != nil {
			return fmt.Errorf("insert installment %d: %w", item.InstallmentNumber, err)
		}
	}
	return nil
}

// FindByID fetches a plan without installments.
func (r *PaymentPlanRepository) FindByID(ctx context.Context, id int64) (*models.PaymentPlan, error) {
	var p models.PaymentPlan
	if err := sqlx.GetContext(ctx, queryer(ctx, r.db), &p, `SELECT `+planColumns+` FROM payment_plans WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("find payment plan %d: %w", id, err)
	}
	return &p, nil
}

// ListInstallments returns a plan's schedule in order.
func (r *PaymentPlanRepository) ListInstallments(ctx context.Context, planID int64) ([]models.PlanInstallment, error) {
	var items []models.PlanInstallment
	query := `SELECT ` + installmentColumns + ` FROM plan_installments WHERE plan_id = $1 ORDER BY installment_number`
	if err := sqlx.SelectContext(ctx, queryer(ctx, r.db), &items, query, planID); err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	return items, nil
}

// FindInstallmentForUpdate locks one installment of the plan.
func (r *PaymentPlanRepository) FindInstallmentForUpdate(ctx context.Context, planID, installmentID int64) (*models.PlanInstallment, error) {
	var item models.PlanInstallment
	query := `SELECT ` + installmentColumns + ` FROM plan_installments WHERE id = $1 AND plan_id = $2 FOR UPDATE`
	if err := sqlx.GetContext(ctx, queryer(ctx, r.db), &item, query, installmentID, planID); err != nil {
		return nil, fmt.Errorf("find installment %d: %w", installmentID, err)
	}
	return &item, nil
}

// ApplyInstallmentPayment adds amount to the installment unless that would exceed
// its amount. It reports false when the guard rejects the update.
func (r *PaymentPlanRepository) ApplyInstallmentPayment(ctx context.Context, installmentID int64, amount decimal.Decimal) (*models.PlanInstallment, bool, error) {
	query := `
UPDATE plan_installments SET
	paid_amount = paid_amount + $2,
	status = CASE WHEN paid_amount + $2 >= amount THEN 'paid' ELSE 'partial' END
WHERE id = $1 AND paid_amount + $2 <= amount
RETURNING ` + installmentColumns

	var item models.PlanInstallment
	err := sqlx.GetContext(ctx, queryer(ctx, r.db), &item, query, installmentID, amount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("apply installment payment: %w", err)
	}
	return &item, true, nil
}

// CompleteIfSettled marks the plan completed once every installment is paid.
func (r *PaymentPlanRepository) CompleteIfSettled(ctx context.Context, planID int64) (bool, error) {
	const query = `
UPDATE payment_plans SET status = 'completed'
WHERE id = $1 AND status <> 'completed'
	AND NOT EXISTS (SELECT 1 FROM plan_installments WHERE plan_id = $1 AND status <> 'paid')`

	res, err := queryer(ctx, r.db).ExecContext(ctx, query, planID)
	if err != nil {
		return false, fmt.Errorf("complete payment plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete payment plan: %w", err)
	}
	return affected == 1, nil
}

// ListMissingDownPayment returns plans with a down payment but no down-payment record.
// A zero schoolID scans every school.
func (r *PaymentPlanRepository) ListMissingDownPayment(ctx context.Context, schoolID int64) ([]models.PaymentPlan, error) {
	query := `SELECT ` + planColumns + ` FROM payment_plans p
WHERE p.down_payment > 0
	AND NOT EXISTS (
		SELECT 1 FROM fee_payments fp
		WHERE fp.payment_plan_id = p.id AND fp.kind = 'down_payment'
	)`
	args := []interface{}{}
	if schoolID > 0 {
		args = append(args, schoolID)
		query += fmt.Sprintf(" AND p.school_id = $%d", len(args))
	}
	query += " ORDER BY p.id"

	var plans []models.PaymentPlan
	if err := sqlx.SelectContext(ctx, queryer(ctx, r.db), &plans, query, args...); err != nil {
		return nil, fmt.Errorf("list plans missing down payment: %w", err)
	}
	return plans, nil
}
