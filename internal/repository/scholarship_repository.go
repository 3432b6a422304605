package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// ScholarshipRepository persists scholarships and their student assignments.
type ScholarshipRepository struct {
	db *sqlx.DB
}

// NewScholarshipRepository constructs the repository.
func NewScholarshipRepository(db *sqlx.DB) *ScholarshipRepository {
	return &ScholarshipRepository{db: db}
}

// Create inserts a scholarship definition.
func (r *ScholarshipRepository) Create(ctx context.Context, s *models.Scholarship) error {
	const query = `
INSERT INTO scholarships (school_id, name, discount_type, discount_value, fee_types, valid_from, valid_until, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at`

	row := queryer(ctx, r.db).QueryRowxContext(ctx, query,
		s.SchoolID, s.Name, s.DiscountType, s.DiscountValue, s.FeeTypes, s.ValidFrom, s.ValidUntil, s.Active)
	if err := row.Scan(&s.ID, &s.CreatedAt); err != nil {
		return fmt.Errorf("create scholarship: %w", err)
	}
	return nil
}

// FindByID fetches a scholarship.
func (r *ScholarshipRepository) FindByID(ctx context.Context, id int64) (*models.Scholarship, error) {
	const query = `
SELECT id, school_id, name, discount_type, discount_value, fee_types, valid_from, valid_until, is_active, created_at
FROM scholarships WHERE id = $1`

	var s models.Scholarship
	if err := sqlx.GetContext(ctx, queryer(ctx, r.db), &s, query, id); err != nil {
		return nil, fmt.Errorf("find scholarship %d: %w", id, err)
	}
	return &s, nil
}

// Assign links a scholarship to a student, updating the status of an existing link.
func (r *ScholarshipRepository) Assign(ctx context.Context, a *models.StudentScholarship) error {
	const query = `
INSERT INTO student_scholarships (school_id, student_id, scholarship_id, term, year, status)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (student_id, scholarship_id, year, (COALESCE(term, 0)))
DO UPDATE SET status = EXCLUDED.status
RETURNING id, created_at`

	row := queryer(ctx, r.db).QueryRowxContext(ctx, query,
		a.SchoolID, a.StudentID, a.ScholarshipID, a.Term, a.Year, a.Status)
	if err := row.Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("assign scholarship: %w", err)
	}
	return nil
}

// ListActiveAssignments returns active assignments for the period whose scholarship
// is active and valid on asOf, in assignment order.
func (r *ScholarshipRepository) ListActiveAssignments(ctx context.Context, schoolID int64, term, year int, asOf time.Time) ([]models.ScholarshipAssignment, error) {
	const query = `
SELECT ss.id AS assignment_id, ss.student_id, ss.term, ss.year,
	s.id AS scholarship_id, s.discount_type, s.discount_value, s.fee_types
FROM student_scholarships ss
JOIN scholarships s ON s.id = ss.scholarship_id
WHERE ss.school_id = $1 AND ss.year = $2 AND (ss.term = $3 OR ss.term IS NULL)
	AND ss.status = 'active' AND s.is_active = TRUE
	AND (s.valid_from IS NULL OR s.valid_from <= $4)
	AND (s.valid_until IS NULL OR s.valid_until >= $4)
ORDER BY ss.id`

	var rows []models.ScholarshipAssignment
	if err := sqlx.SelectContext(ctx, queryer(ctx, r.db), &rows, query, schoolID, year, term, asOf); err != nil {
		return nil, fmt.Errorf("list scholarship assignments: %w", err)
	}
	return rows, nil
}
