package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// OverrideRepository persists per-student fee overrides.
type OverrideRepository struct {
	db *sqlx.DB
}

// NewOverrideRepository constructs the repository.
func NewOverrideRepository(db *sqlx.DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

// ListActiveForTerm returns the school's active overrides for the term or the whole year.
func (r *OverrideRepository) ListActiveForTerm(ctx context.Context, schoolID int64, term, year int) ([]models.StudentFeeOverride, error) {
	const query = `
SELECT id, school_id, student_id, fee_type, term, year, custom_amount, reason, is_active, created_at, updated_at
FROM student_fee_overrides
WHERE school_id = $1 AND year = $2 AND (term = $3 OR term IS NULL) AND is_active = TRUE
ORDER BY student_id, fee_type, id`

	var rows []models.StudentFeeOverride
	if err := sqlx.SelectContext(ctx, queryer(ctx, r.db), &rows, query, schoolID, year, term); err != nil {
		return nil, fmt.Errorf("list fee overrides: %w", err)
	}
	return rows, nil
}

// Upsert inserts the override or replaces the one with the same student, fee type and period.
func (r *OverrideRepository) Upsert(ctx context.Context, o *models.StudentFeeOverride) error {
	const query = `
INSERT INTO student_fee_overrides (school_id, student_id, fee_type, term, year, custom_amount, reason, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id, fee_type, year, (COALESCE(term, 0)))
DO UPDATE SET custom_amount = EXCLUDED.custom_amount, reason = EXCLUDED.reason, is_active = EXCLUDED.is_active, updated_at = NOW()
RETURNING id, created_at, updated_at`

	row := queryer(ctx, r.db).QueryRowxContext(ctx, query,
		o.SchoolID, o.StudentID, o.FeeType, o.Term, o.Year, o.CustomAmount, o.Reason, o.Active)
	if err := row.Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return fmt.Errorf("upsert fee override: %w", err)
	}
	return nil
}
