package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// InvoiceRepository persists invoices and their items.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository constructs the repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `id, school_id, student_id, term, year, invoice_number, total_amount, amount_paid, balance, status,
	due_date, notes, reminder_count, last_reminder_at, created_at, updated_at`

// StudentIDsWithInvoice lists students already invoiced for the period.
func (r *InvoiceRepository) StudentIDsWithInvoice(ctx context.Context, schoolID int64, term, year int) ([]int64, error) {
	const query = `SELECT student_id FROM invoices WHERE school_id = $1 AND term = $2 AND year = $3`
	var ids []int64
	if err := sqlx.SelectContext(ctx, queryer(ctx, r.db), &ids, query, schoolID, term, year); err != nil {
		return nil, fmt.Errorf("list invoiced students: %w", err)
	}
	return ids, nil
}

// Create inserts the invoice and its items. It reports false without writing
// anything when the student already has an invoice for the period.
func (r *InvoiceRepository) Create(ctx context.Context, inv *models.Invoice) (bool, error) {
	const insertInvoice = `
INSERT INTO invoices (school_id, student_id, term, year, invoice_number, total_amount, amount_paid, balance, status, due_date, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (school_id, student_id, term, year) DO NOTHING
RETURNING id, created_at, updated_at`
	const insertItem = `
INSERT INTO invoice_items (invoice_id, fee_type, description, amount)
VALUES ($1, $2, $3, $4)
RETURNING id`

	q := queryer(ctx, r.db)
	err := q.QueryRowxContext(ctx, insertInvoice,
		inv.SchoolID, inv.StudentID, inv.Term, inv.Year, inv.InvoiceNumber,
		inv.TotalAmount, inv.AmountPaid, inv.Balance, inv.Status, inv.DueDate, inv.Notes,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert invoice: %w", err)
	}

	for i := range inv.Items {
		item := &inv.Items[i]
		item.InvoiceID = inv.ID
		if err := q.QueryRowxContext(ctx, insertItem, inv.ID, item.FeeType, item.Description, item.Amount).Scan(&item.ID); err != nil {
			return false, fmt.Errorf("insert invoice item: %w", err)
		}
	}
	return true, nil
}

// FindForTermForUpdate locks and returns the student's invoice for the period.
func (r *InvoiceRepository) FindForTermForUpdate(ctx context.Context, schoolID, studentID int64, term, year int) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
WHERE school_id = $1 AND student_id = $2 AND term = $3 AND year = $4
FOR UPDATE`

	var inv models.Invoice
	if err := sqlx.GetContext(ctx, queryer(ctx, r.db), &inv, query, schoolID, studentID, term, year); err != nil {
		return nil, fmt.Errorf("find invoice for term: %w", err)
	}
	return &inv, nil
}

// FindByID returns the invoice with its items.
func (r *InvoiceRepository) FindByID(ctx context.Context, id int64) (*models.Invoice, error) {
	q := queryer(ctx, r.db)
	var inv models.Invoice
	if err := sqlx.GetContext(ctx, q, &inv, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("find invoice %d: %w", id, err)
	}
	if err := sqlx.SelectContext(ctx, q, &inv.Items,
		`SELECT id, invoice_id, fee_type, description, amount FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, id); err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	return &inv, nil
}

// ListByStudent returns a student's invoices, newest period first.
func (r *InvoiceRepository) ListByStudent(ctx context.Context, schoolID, studentID int64) ([]models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
WHERE school_id = $1 AND student_id = $2
ORDER BY year DESC, term DESC`

	var invoices []models.Invoice
	if err := sqlx.SelectContext(ctx, queryer(ctx, r.db), &invoices, query, schoolID, studentID); err != nil {
		return nil, fmt.Errorf("list student invoices: %w", err)
	}
	return invoices, nil
}

// ApplyPayment adds delta (negative for reversals) to amount_paid in one statement,
// recomputing balance and status from the persisted row.
func (r *InvoiceRepository) ApplyPayment(ctx context.Context, id int64, delta decimal.Decimal) (*models.Invoice, error) {
	const query = `
UPDATE invoices SET
	amount_paid = GREATEST(amount_paid + $2, 0),
	balance = GREATEST(total_amount - GREATEST(amount_paid + $2, 0), 0),
	status = CASE
		WHEN GREATEST(amount_paid + $2, 0) >= total_amount THEN 'paid'
		WHEN GREATEST(amount_paid + $2, 0) > 0 THEN 'partial'
		ELSE 'unpaid'
	END,
	updated_at = NOW()
WHERE id = $1
RETURNING id, total_amount, amount_paid, balance, status`

	var inv models.Invoice
	if err := sqlx.GetContext(ctx, queryer(ctx, r.db), &inv, query, id, delta); err != nil {
		return nil, fmt.Errorf("apply invoice payment: %w", err)
	}
	return &inv, nil
}

// UpdateDetails changes the soft-editable fields; nil leaves a field unchanged.
func (r *InvoiceRepository) UpdateDetails(ctx context.Context, id int64, notes *string, dueDate *time.Time) error {
	const query = `
UPDATE invoices SET notes = COALESCE($2, notes), due_date = COALESCE($3, due_date), updated_at = NOW()
WHERE id = $1`

	res, err := queryer(ctx, r.db).ExecContext(ctx, query, id, notes, dueDate)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecordReminder bumps the reminder counter and stamps the reminder time.
func (r *InvoiceRepository) RecordReminder(ctx context.Context, id int64, at time.Time) error {
	const query = `
UPDATE invoices SET reminder_count = reminder_count + 1, last_reminder_at = $2, updated_at = NOW()
WHERE id = $1`

	res, err := queryer(ctx, r.db).ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("record invoice reminder: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListOutstanding returns every invoice with a positive balance matching the filter.
// Limit and offset are ignored: aging summaries need the full set.
func (r *InvoiceRepository) ListOutstanding(ctx context.Context, schoolID int64, filter models.DebtorFilter) ([]models.OutstandingInvoice, error) {
	var b strings.Builder
	b.WriteString(`
SELECT i.id AS invoice_id, i.invoice_number, i.student_id, s.full_name AS student_name, s.class_level,
	i.term, i.year, i.total_amount, i.amount_paid, i.balance, i.due_date, i.created_at
FROM invoices i
JOIN students s ON s.id = i.student_id
WHERE i.school_id = $1 AND i.balance > 0`)
	args := []interface{}{schoolID}
	if filter.Term != nil {
		args = append(args, *filter.Term)
		fmt.Fprintf(&b, " AND i.term = $%d", len(args))
	}
	if filter.Year != nil {
		args = append(args, *filter.Year)
		fmt.Fprintf(&b, " AND i.year = $%d", len(args))
	}
	if filter.ClassLevel != "" {
		args = append(args, filter.ClassLevel)
		fmt.Fprintf(&b, " AND s.class_level = $%d", len(args))
	}
	b.WriteString("\nORDER BY i.id")

	var rows []models.OutstandingInvoice
	if err := sqlx.SelectContext(ctx, queryer(ctx, r.db), &rows, b.String(), args...); err != nil {
		return nil, fmt.Errorf("list outstanding invoices: %w", err)
	}
	return rows, nil
}

// Totals sums billed and outstanding amounts for the school and optional period.
func (r *InvoiceRepository) Totals(ctx context.Context, schoolID int64, term, year *int) (models.InvoiceTotals, error) {
	query := `SELECT COALESCE(SUM(total_amount), 0) AS billed, COALESCE(SUM(balance), 0) AS outstanding
FROM invoices WHERE school_id = $1`
	args := []interface{}{schoolID}
	query, args = appendPeriod(query, args, "", term, year)

	var totals models.InvoiceTotals
	if err := sqlx.GetContext(ctx, queryer(ctx, r.db), &totals, query, args...); err != nil {
		return models.InvoiceTotals{}, fmt.Errorf("sum invoices: %w", err)
	}
	return totals, nil
}

// appendPeriod adds optional term/year predicates on the given table alias.
func appendPeriod(query string, args []interface{}, alias string, term, year *int) (string, []interface{}) {
	if alias != "" {
		alias += "."
	}
	if term != nil {
		args = append(args, *term)
		query += fmt.Sprintf(" AND %sterm = $%d", alias, len(args))
	}
	if year != nil {
		args = append(args, *year)
		query += fmt.Sprintf(" AND %syear = $%d", alias, len(args))
	}
	return query, args
}
