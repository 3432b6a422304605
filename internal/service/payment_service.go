package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/internal/repository"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
	"github.com/noah-isme/sma-billing-api/pkg/export"
)

type paymentStore interface {
	Create(ctx context.Context, p *models.FeePayment) error
	FindByID(ctx context.Context, id int64) (*models.FeePayment, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.FeePayment, error)
	MarkDeleted(ctx context.Context, id int64, at time.Time) (bool, error)
}

type termInvoiceLocker interface {
	invoicePaymentApplier
	FindForTermForUpdate(ctx context.Context, schoolID, studentID int64, term, year int) (*models.Invoice, error)
}

// PaymentStores groups the persistence dependencies of PaymentService.
type PaymentStores struct {
	Students studentReader
	Invoices termInvoiceLocker
	Payments paymentStore
	Receipts receiptCounter
	Ledger   ledgerAppender
}

// ReceiptOptions labels rendered receipts.
type ReceiptOptions struct {
	SchoolLabel string
	Currency    string
}

// PaymentService records, voids and prints direct fee payments.
type PaymentService struct {
	tx        txRunner
	stores    PaymentStores
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	receipt   ReceiptOptions
	now       func() time.Time
}

// NewPaymentService constructs the service.
func NewPaymentService(tx txRunner, stores PaymentStores, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, receipt ReceiptOptions) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		tx:        tx,
		stores:    stores,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		receipt:   receipt,
		now:       time.Now,
	}
}

var errPaymentConflict = appErrors.Clone(appErrors.ErrConflict, "receipt number or idempotency key already used")

// RecordPayment records a direct payment against the student's invoice for the period.
// Overpayments and cross-school students are rejected before anything is written.
func (s *PaymentService) RecordPayment(ctx context.Context, actor models.Actor, req dto.RecordPaymentRequest) (*models.FeePayment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid payment payload")
	}
	if !req.AmountPaid.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amountPaid must be greater than zero")
	}

	var idempotencyKey *string
	if req.IdempotencyKey != "" {
		key := strings.ToLower(req.IdempotencyKey)
		idempotencyKey = &key
		if existing, err := s.findByIdempotencyKey(ctx, actor, key); err != nil || existing != nil {
			return existing, err
		}
	}

	var payment *models.FeePayment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.recordDirect(ctx, actor, req, idempotencyKey)
		payment = p
		return err
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrOverpayment) {
			s.metrics.RecordOverpayment(string(models.PaymentDirect))
			s.logger.Warn("overpayment rejected",
				zap.Int64("school_id", actor.SchoolID),
				zap.Int64("student_id", req.StudentID),
				zap.String("amount", req.AmountPaid.String()),
			)
		}
		if idempotencyKey != nil && errors.Is(err, appErrors.ErrConflict) {
			if existing, findErr := s.findByIdempotencyKey(ctx, actor, *idempotencyKey); findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, asAppError(err, "failed to record payment")
	}

	s.metrics.RecordPayment(string(models.PaymentDirect), payment.AmountPaid)
	s.cache.InvalidateSchool(ctx, actor.SchoolID)
	s.logger.Info("payment recorded",
		zap.Int64("payment_id", payment.ID),
		zap.String("receipt_number", payment.ReceiptNumber),
		zap.String("amount", payment.AmountPaid.String()),
		zap.Int64p("invoice_id", payment.InvoiceID),
	)
	return payment, nil
}

func (s *PaymentService) findByIdempotencyKey(ctx context.Context, actor models.Actor, key string) (*models.FeePayment, error) {
	existing, err := s.stores.Payments.FindByIdempotencyKey(ctx, key)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, appErrors.Internal(err, "failed to check idempotency key")
	}
	if existing.SchoolID != actor.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "idempotency key already used")
	}
	return existing, nil
}

func (s *PaymentService) recordDirect(ctx context.Context, actor models.Actor, req dto.RecordPaymentRequest, idempotencyKey *string) (*models.FeePayment, error) {
	if _, err := loadStudentInSchool(ctx, s.stores.Students, req.StudentID, actor.SchoolID); err != nil {
		return nil, err
	}

	inv, err := s.stores.Invoices.FindForTermForUpdate(ctx, actor.SchoolID, req.StudentID, req.Term, req.Year)
	if err != nil && !isNoRows(err) {
		return nil, appErrors.Internal(err, "failed to load invoice")
	}
	if err != nil {
		inv = nil
	}

	amountDue := decimal.Zero
	if inv != nil {
		amountDue = inv.Balance
		if inv.Balance.IsPositive() && req.AmountPaid.GreaterThan(inv.Balance) {
			return nil, appErrors.Clone(appErrors.ErrOverpayment,
				fmt.Sprintf("amount %s exceeds outstanding balance %s", req.AmountPaid, inv.Balance))
		}
	}

	receipt, err := allocateReceipt(ctx, s.stores.Receipts, actor.SchoolID, req.Year, strings.TrimSpace(req.ReceiptNumber))
	if err != nil {
		return nil, err
	}

	balanceAfter := decimal.Max(decimal.Zero, amountDue.Sub(req.AmountPaid))
	status := models.PaymentPartial
	if !balanceAfter.IsPositive() {
		status = models.PaymentPaid
	}

	payment := &models.FeePayment{
		SchoolID:       actor.SchoolID,
		StudentID:      req.StudentID,
		Kind:           models.PaymentDirect,
		FeeType:        strings.TrimSpace(req.FeeType),
		AmountDue:      amountDue,
		AmountPaid:     req.AmountPaid,
		Balance:        balanceAfter,
		Status:         status,
		Term:           req.Term,
		Year:           req.Year,
		PaymentMethod:  models.NormalizePaymentMethod(req.PaymentMethod),
		ReceiptNumber:  receipt,
		Notes:          strings.TrimSpace(req.Notes),
		IdempotencyKey: idempotencyKey,
		CreatedBy:      actor.UserID,
	}
	if inv != nil {
		payment.InvoiceID = int64Ptr(inv.ID)
	}
	if err := s.stores.Payments.Create(ctx, payment); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, errPaymentConflict
		}
		return nil, appErrors.Internal(err, "failed to save payment")
	}

	entry := creditEntry(payment, fmt.Sprintf("Payment %s: %s", payment.ReceiptNumber, payment.FeeType), s.now())
	if err := s.stores.Ledger.Append(ctx, entry); err != nil {
		return nil, appErrors.Internal(err, "failed to record payment ledger entry")
	}

	if inv != nil {
		if _, err := s.stores.Invoices.ApplyPayment(ctx, inv.ID, payment.AmountPaid); err != nil {
			return nil, appErrors.Internal(err, "failed to update invoice balance")
		}
	}
	return payment, nil
}

// creditEntry builds the ledger credit that mirrors a payment.
func creditEntry(p *models.FeePayment, description string, now time.Time) *models.FinanceTransaction {
	return &models.FinanceTransaction{
		SchoolID:        p.SchoolID,
		StudentID:       int64Ptr(p.StudentID),
		InvoiceID:       p.InvoiceID,
		PaymentID:       int64Ptr(p.ID),
		TransactionType: models.Credit,
		Category:        models.CategoryFeePayment,
		Amount:          p.AmountPaid,
		Description:     description,
		Term:            intPtr(p.Term),
		Year:            intPtr(p.Year),
		TransactionDate: today(now),
		CreatedBy:       p.CreatedBy,
	}
}

// VoidPayment soft-deletes a payment, reverses it in the ledger and gives the amount back to the invoice.
func (s *PaymentService) VoidPayment(ctx context.Context, actor models.Actor, id int64, req dto.VoidPaymentRequest) (*models.FeePayment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid void payload")
	}

	var payment *models.FeePayment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.load(ctx, actor, id)
		if err != nil {
			return err
		}
		if p.Kind == models.PaymentInstallment {
			return appErrors.Clone(appErrors.ErrValidation, "installment payments cannot be voided")
		}
		if p.Deleted {
			return appErrors.Clone(appErrors.ErrConflict, "payment already voided")
		}

		at := s.now().UTC()
		voided, err := s.stores.Payments.MarkDeleted(ctx, p.ID, at)
		if err != nil {
			return appErrors.Internal(err, "failed to void payment")
		}
		if !voided {
			return appErrors.Clone(appErrors.ErrConflict, "payment already voided")
		}
		p.Deleted = true
		p.DeletedAt = &at

		description := fmt.Sprintf("Reversal of %s", p.ReceiptNumber)
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			description += ": " + reason
		}
		entry := &models.FinanceTransaction{
			SchoolID:        p.SchoolID,
			StudentID:       int64Ptr(p.StudentID),
			InvoiceID:       p.InvoiceID,
			PaymentID:       int64Ptr(p.ID),
			TransactionType: models.Debit,
			Category:        models.CategoryPaymentReversal,
			Amount:          p.AmountPaid,
			Description:     description,
			Term:            intPtr(p.Term),
			Year:            intPtr(p.Year),
			TransactionDate: today(at),
			CreatedBy:       actor.UserID,
		}
		if err := s.stores.Ledger.Append(ctx, entry); err != nil {
			return appErrors.Internal(err, "failed to record reversal")
		}
		if p.InvoiceID != nil {
			if _, err := s.stores.Invoices.ApplyPayment(ctx, *p.InvoiceID, p.AmountPaid.Neg()); err != nil {
				return appErrors.Internal(err, "failed to restore invoice balance")
			}
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to void payment")
	}

	s.metrics.RecordVoid()
	s.cache.InvalidateSchool(ctx, actor.SchoolID)
	s.logger.Info("payment voided",
		zap.Int64("payment_id", payment.ID),
		zap.String("receipt_number", payment.ReceiptNumber),
		zap.String("user_id", actor.UserID),
	)
	return payment, nil
}

// Get returns one payment of the active school.
func (s *PaymentService) Get(ctx context.Context, actor models.Actor, id int64) (*models.FeePayment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.load(ctx, actor, id)
}

func (s *PaymentService) load(ctx context.Context, actor models.Actor, id int64) (*models.FeePayment, error) {
	p, err := s.stores.Payments.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Internal(err, "failed to load payment")
	}
	if p.SchoolID != actor.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "payment belongs to another school")
	}
	return p, nil
}

// ReceiptPDF renders the receipt slip of a payment and returns it with a download filename.
func (s *PaymentService) ReceiptPDF(ctx context.Context, actor models.Actor, id int64) ([]byte, string, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, "", err
	}
	student, err := loadStudentInSchool(ctx, s.stores.Students, p.StudentID, actor.SchoolID)
	if err != nil {
		return nil, "", err
	}

	body, err := export.RenderReceipt(export.Receipt{
		SchoolLabel:   s.receipt.SchoolLabel,
		ReceiptNumber: p.ReceiptNumber,
		StudentName:   student.FullName,
		StudentID:     student.ID,
		FeeType:       p.FeeType,
		Term:          p.Term,
		Year:          p.Year,
		Method:        p.PaymentMethod,
		Currency:      s.receipt.Currency,
		AmountDue:     p.AmountDue.StringFixed(2),
		AmountPaid:    p.AmountPaid.StringFixed(2),
		Balance:       p.Balance.StringFixed(2),
		IssuedAt:      p.CreatedAt,
		Voided:        p.Deleted,
	})
	if err != nil {
		return nil, "", appErrors.Internal(err, "failed to render receipt")
	}
	return body, p.ReceiptNumber + ".pdf", nil
}
