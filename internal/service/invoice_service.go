package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

type feeStructureSource interface {
	ListActiveForTerm(ctx context.Context, schoolID int64, term, year int, classLevel string) ([]models.FeeStructure, error)
}

type overrideSource interface {
	ListActiveForTerm(ctx context.Context, schoolID int64, term, year int) ([]models.StudentFeeOverride, error)
}

type scholarshipSource interface {
	ListActiveAssignments(ctx context.Context, schoolID int64, term, year int, asOf time.Time) ([]models.ScholarshipAssignment, error)
}

type studentDirectory interface {
	studentReader
	ListActive(ctx context.Context, schoolID int64, classLevel string) ([]models.Student, error)
}

type invoiceStore interface {
	StudentIDsWithInvoice(ctx context.Context, schoolID int64, term, year int) ([]int64, error)
	Create(ctx context.Context, inv *models.Invoice) (bool, error)
	FindByID(ctx context.Context, id int64) (*models.Invoice, error)
	ListByStudent(ctx context.Context, schoolID, studentID int64) ([]models.Invoice, error)
	UpdateDetails(ctx context.Context, id int64, notes *string, dueDate *time.Time) error
	RecordReminder(ctx context.Context, id int64, at time.Time) error
}

// InvoiceStores groups the persistence dependencies of InvoiceService.
type InvoiceStores struct {
	Structures   feeStructureSource
	Overrides    overrideSource
	Scholarships scholarshipSource
	Students     studentDirectory
	Invoices     invoiceStore
	Ledger       ledgerAppender
}

// InvoiceService generates term invoices and serves invoice reads and soft-edits.
type InvoiceService struct {
	tx        txRunner
	stores    InvoiceStores
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	dueDays   int
	now       func() time.Time
}

// NewInvoiceService constructs the service. dueDays sets the default due date offset.
func NewInvoiceService(tx txRunner, stores InvoiceStores, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, dueDays int) *InvoiceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dueDays <= 0 {
		dueDays = 30
	}
	return &InvoiceService{
		tx:        tx,
		stores:    stores,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		dueDays:   dueDays,
		now:       time.Now,
	}
}

// Generate invoices every active student (optionally one class level) for the term.
// Students already invoiced, without applicable fees, or racing a concurrent run are
// counted as skipped. The batch commits or rolls back as a whole.
func (s *InvoiceService) Generate(ctx context.Context, actor models.Actor, req dto.GenerateInvoicesRequest) (*dto.GenerateInvoicesResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid invoice generation payload")
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if dueDate == nil {
		d := today(now).AddDate(0, 0, s.dueDays)
		dueDate = &d
	}

	result := &dto.GenerateInvoicesResult{}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		*result = dto.GenerateInvoicesResult{}

		structures, err := s.stores.Structures.ListActiveForTerm(ctx, actor.SchoolID, req.Term, req.Year, req.ClassLevel)
		if err != nil {
			return appErrors.Internal(err, "failed to load fee structures")
		}
		if len(structures) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "no active fee structures for this term")
		}
		students, err := s.stores.Students.ListActive(ctx, actor.SchoolID, req.ClassLevel)
		if err != nil {
			return appErrors.Internal(err, "failed to load students")
		}
		if len(students) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "no active students to invoice")
		}

		invoicedIDs, err := s.stores.Invoices.StudentIDsWithInvoice(ctx, actor.SchoolID, req.Term, req.Year)
		if err != nil {
			return appErrors.Internal(err, "failed to load existing invoices")
		}
		invoiced := make(map[int64]struct{}, len(invoicedIDs))
		for _, id := range invoicedIDs {
			invoiced[id] = struct{}{}
		}

		overrides, err := s.stores.Overrides.ListActiveForTerm(ctx, actor.SchoolID, req.Term, req.Year)
		if err != nil {
			return appErrors.Internal(err, "failed to load fee overrides")
		}
		assignments, err := s.stores.Scholarships.ListActiveAssignments(ctx, actor.SchoolID, req.Term, req.Year, today(now))
		if err != nil {
			return appErrors.Internal(err, "failed to load scholarships")
		}
		overridesByStudent := make(map[int64][]models.StudentFeeOverride)
		for _, o := range overrides {
			overridesByStudent[o.StudentID] = append(overridesByStudent[o.StudentID], o)
		}
		assignmentsByStudent := make(map[int64][]models.ScholarshipAssignment)
		for _, a := range assignments {
			assignmentsByStudent[a.StudentID] = append(assignmentsByStudent[a.StudentID], a)
		}

		for _, student := range students {
			if _, ok := invoiced[student.ID]; ok {
				result.InvoicesSkipped++
				continue
			}
			items := ResolveStudentFees(student, structures, overridesByStudent[student.ID], assignmentsByStudent[student.ID])
			if len(items) == 0 {
				result.InvoicesSkipped++
				continue
			}

			created, err := s.createInvoice(ctx, actor, req, student, items, dueDate, now)
			if err != nil {
				return err
			}
			if created {
				result.InvoicesCreated++
			} else {
				result.InvoicesSkipped++
			}
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to generate invoices")
	}

	s.metrics.RecordInvoicesGenerated(result.InvoicesCreated, result.InvoicesSkipped)
	if result.InvoicesCreated > 0 {
		s.cache.InvalidateSchool(ctx, actor.SchoolID)
	}
	s.logger.Info("invoices generated",
		zap.Int64("school_id", actor.SchoolID),
		zap.Int("term", req.Term),
		zap.Int("year", req.Year),
		zap.String("class_level", req.ClassLevel),
		zap.Int("created", result.InvoicesCreated),
		zap.Int("skipped", result.InvoicesSkipped),
	)
	return result, nil
}

func (s *InvoiceService) createInvoice(ctx context.Context, actor models.Actor, req dto.GenerateInvoicesRequest, student models.Student, items []models.InvoiceItem, dueDate *time.Time, now time.Time) (bool, error) {
	total := SumItems(items)
	inv := &models.Invoice{
		SchoolID:      actor.SchoolID,
		StudentID:     student.ID,
		Term:          req.Term,
		Year:          req.Year,
		InvoiceNumber: InvoiceNumber(req.Year, req.Term, actor.SchoolID, student.ID),
		TotalAmount:   total,
		AmountPaid:    decimal.Zero,
		Balance:       total,
		Status:        models.InvoiceUnpaid,
		DueDate:       dueDate,
		Items:         items,
	}
	created, err := s.stores.Invoices.Create(ctx, inv)
	if err != nil {
		return false, appErrors.Internal(err, "failed to create invoice")
	}
	if !created || !total.IsPositive() {
		return created, nil
	}

	entry := &models.FinanceTransaction{
		SchoolID:        actor.SchoolID,
		StudentID:       int64Ptr(student.ID),
		InvoiceID:       int64Ptr(inv.ID),
		TransactionType: models.Debit,
		Category:        models.CategoryInvoice,
		Amount:          total,
		Description:     fmt.Sprintf("Invoice %s", inv.InvoiceNumber),
		Term:            intPtr(req.Term),
		Year:            intPtr(req.Year),
		TransactionDate: today(now),
		CreatedBy:       actor.UserID,
	}
	if err := s.stores.Ledger.Append(ctx, entry); err != nil {
		return false, appErrors.Internal(err, "failed to record invoice ledger entry")
	}
	return true, nil
}

// Get returns an invoice with its items.
func (s *InvoiceService) Get(ctx context.Context, actor models.Actor, id int64) (*models.Invoice, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.load(ctx, actor, id)
}

func (s *InvoiceService) load(ctx context.Context, actor models.Actor, id int64) (*models.Invoice, error) {
	inv, err := s.stores.Invoices.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Internal(err, "failed to load invoice")
	}
	if inv.SchoolID != actor.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invoice belongs to another school")
	}
	return inv, nil
}

// ListForStudent returns the student's invoices.
func (s *InvoiceService) ListForStudent(ctx context.Context, actor models.Actor, studentID int64) ([]models.Invoice, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if _, err := loadStudentInSchool(ctx, s.stores.Students, studentID, actor.SchoolID); err != nil {
		return nil, err
	}
	invoices, err := s.stores.Invoices.ListByStudent(ctx, actor.SchoolID, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list invoices")
	}
	return invoices, nil
}

// Update edits notes and due date. Amounts are never editable.
func (s *InvoiceService) Update(ctx context.Context, actor models.Actor, id int64, req dto.UpdateInvoiceRequest) (*models.Invoice, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid invoice update payload")
	}
	if req.Notes == nil && req.DueDate == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}
	var dueDate *time.Time
	if req.DueDate != nil {
		d, err := parseDate(*req.DueDate)
		if err != nil {
			return nil, err
		}
		dueDate = d
	}
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	if err := s.stores.Invoices.UpdateDetails(ctx, id, req.Notes, dueDate); err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Internal(err, "failed to update invoice")
	}
	s.cache.InvalidateSchool(ctx, actor.SchoolID)
	return s.load(ctx, actor, id)
}

// RecordReminder notes that the family was reminded about the invoice.
func (s *InvoiceService) RecordReminder(ctx context.Context, actor models.Actor, id int64) (*models.Invoice, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	if err := s.stores.Invoices.RecordReminder(ctx, id, s.now().UTC()); err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Internal(err, "failed to record reminder")
	}
	s.logger.Info("invoice reminder recorded", zap.Int64("invoice_id", id), zap.String("user_id", actor.UserID))
	return s.load(ctx, actor, id)
}
