package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// FeeStructureRepository persists the fee catalog.
type FeeStructureRepository struct {
	db *sqlx.DB
}

// NewFeeStructureRepository constructs the repository.
func NewFeeStructureRepository(db *sqlx.DB) *FeeStructureRepository {
	return &FeeStructureRepository{db: db}
}

const feeStructureColumns = `id, school_id, class_level, fee_type, term, year, boarding_status, amount, is_active, created_at, updated_at`

// ListActiveForTerm returns active rows priced for the term or for the whole year.
func (r *FeeStructureRepository) ListActiveForTerm(ctx context.Context, schoolID int64, term, year int, classLevel string) ([]models.FeeStructure, error) {
	query := `SELECT ` + feeStructureColumns + ` FROM fee_structures
WHERE school_id = $1 AND year = $2 AND (term = $3 OR term IS NULL) AND is_active = TRUE`
	args := []interface{}{schoolID, year, term}
	if classLevel != "" {
		args = append(args, classLevel)
		query += fmt.Sprintf(" AND class_level = $%d", len(args))
	}
	query += " ORDER BY class_level, fee_type, id"

	var rows []models.FeeStructure
	if err := sqlx.SelectContext(ctx, queryer(ctx, r.db), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list fee structures for term: %w", err)
	}
	return rows, nil
}

// List returns catalog rows for a school matching the filter.
func (r *FeeStructureRepository) List(ctx context.Context, schoolID int64, filter models.FeeStructureFilter) ([]models.FeeStructure, error) {
	query := `SELECT ` + feeStructureColumns + ` FROM fee_structures WHERE school_id = $1`
	args := []interface{}{schoolID}
	if filter.Year > 0 {
		args = append(args, filter.Year)
		query += fmt.Sprintf(" AND year = $%d", len(args))
	}
	if filter.Term != nil {
		args = append(args, *filter.Term)
		query += fmt.Sprintf(" AND term = $%d", len(args))
	}
	if filter.ClassLevel != "" {
		args = append(args, filter.ClassLevel)
		query += fmt.Sprintf(" AND class_level = $%d", len(args))
	}
	query += " ORDER BY year DESC, class_level, fee_type, id"

	var rows []models.FeeStructure
	if err := sqlx.SelectContext(ctx, queryer(ctx, r.db), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list fee structures: %w", err)
	}
	return rows, nil
}

// Upsert inserts the row or reprices the existing one with the same scope.
func (r *FeeStructureRepository) Upsert(ctx context.Context, fs *models.FeeStructure) error {
	const query = `
INSERT INTO fee_structures (school_id, class_level, fee_type, term, year, boarding_status, amount, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (school_id, class_level, fee_type, (COALESCE(term, 0)), year, (COALESCE(boarding_status, 'all')))
DO UPDATE SET amount = EXCLUDED.amount, is_active = EXCLUDED.is_active, updated_at = NOW()
RETURNING id, created_at, updated_at`

	row := queryer(ctx, r.db).QueryRowxContext(ctx, query,
		fs.SchoolID, fs.ClassLevel, fs.FeeType, fs.Term, fs.Year, fs.BoardingStatus, fs.Amount, fs.Active)
	if err := row.Scan(&fs.ID, &fs.CreatedAt, &fs.UpdatedAt); err != nil {
		return fmt.Errorf("upsert fee structure: %w", err)
	}
	return nil
}
