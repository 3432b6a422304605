package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

// txRunner executes fn inside a single database transaction.
type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type studentReader interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
}

type ledgerAppender interface {
	Append(ctx context.Context, tx *models.FinanceTransaction) error
}

type invoicePaymentApplier interface {
	ApplyPayment(ctx context.Context, id int64, delta decimal.Decimal) (*models.Invoice, error)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func requireActor(actor models.Actor) error {
	if actor.UserID == "" || actor.SchoolID <= 0 {
		return appErrors.ErrUnauthorized
	}
	return nil
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// asAppError keeps typed errors and hides everything else behind a storage failure.
func asAppError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Internal(err, message)
}

// loadStudentInSchool resolves a student and enforces tenancy.
func loadStudentInSchool(ctx context.Context, students studentReader, studentID, schoolID int64) (*models.Student, error) {
	student, err := students.FindByID(ctx, studentID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	if student.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to another school")
	}
	return student, nil
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dto.DateLayout, raw, time.UTC)
	if err != nil {
		return nil, validationError(err, fmt.Sprintf("invalid date %q", raw))
	}
	return &t, nil
}

// today truncates to midnight UTC for ledger and due dates.
func today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }
