package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ReceiptRepository hands out per-school, per-year receipt sequence values.
// The counter row stays locked until the surrounding transaction ends.
type ReceiptRepository struct {
	db *sqlx.DB
}

// NewReceiptRepository constructs the repository.
func NewReceiptRepository(db *sqlx.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Next increments and returns the counter for (school, year), starting at 1.
func (r *ReceiptRepository) Next(ctx context.Context, schoolID int64, year int) (int64, error) {
	const query = `
INSERT INTO receipt_counters (school_id, year, last_value)
VALUES ($1, $2, 1)
ON CONFLICT (school_id, year) DO UPDATE SET last_value = receipt_counters.last_value + 1
RETURNING last_value`

	var value int64
	if err := queryer(ctx, r.db).QueryRowxContext(ctx, query, schoolID, year).Scan(&value); err != nil {
		return 0, fmt.Errorf("next receipt number: %w", err)
	}
	return value, nil
}

// EnsureAtLeast moves the counter forward so later allocations skip a manually issued number.
func (r *ReceiptRepository) EnsureAtLeast(ctx context.Context, schoolID int64, year int, value int64) error {
	const query = `
INSERT INTO receipt_counters (school_id, year, last_value)
VALUES ($1, $2, $3)
ON CONFLICT (school_id, year) DO UPDATE SET last_value = GREATEST(receipt_counters.last_value, EXCLUDED.last_value)`

	if _, err := queryer(ctx, r.db).ExecContext(ctx, query, schoolID, year, value); err != nil {
		return fmt.Errorf("advance receipt counter: %w", err)
	}
	return nil
}
