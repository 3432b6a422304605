package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// StudentRepository reads the student directory owned by the school service.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, school_id, full_name, class_level, boarding_status, is_active`

// FindByID returns a student regardless of school; callers enforce tenancy.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	var student models.Student
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	if err := sqlx.GetContext(ctx, queryer(ctx, r.db), &student, query, id); err != nil {
		return nil, fmt.Errorf("find student %d: %w", id, err)
	}
	return &student, nil
}

// ListActive returns active students of a school, optionally limited to one class level.
func (r *StudentRepository) ListActive(ctx context.Context, schoolID int64, classLevel string) ([]models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE school_id = $1 AND is_active = TRUE`
	args := []interface{}{schoolID}
	if classLevel != "" {
		args = append(args, classLevel)
		query += fmt.Sprintf(" AND class_level = $%d", len(args))
	}
	query += " ORDER BY id"

	var students []models.Student
	if err := sqlx.SelectContext(ctx, queryer(ctx, r.db), &students, query, args...); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return students, nil
}
