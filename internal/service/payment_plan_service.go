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
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

type paymentPlanStore interface {
	Create(ctx context.Context, p *models.PaymentPlan) error
	CreateInstallments(ctx context.Context, planID int64, items []models.PlanInstallment) error
	FindByID(ctx context.Context, id int64) (*models.PaymentPlan, error)
	ListInstallments(ctx context.Context, planID int64) ([]models.PlanInstallment, error)
	FindInstallmentForUpdate(ctx context.Context, planID, installmentID int64) (*models.PlanInstallment, error)
	ApplyInstallmentPayment(ctx context.Context, installmentID int64, amount decimal.Decimal) (*models.PlanInstallment, bool, error)
	CompleteIfSettled(ctx context.Context, planID int64) (bool, error)
	ListMissingDownPayment(ctx context.Context, schoolID int64) ([]models.PaymentPlan, error)
}

type planInvoiceStore interface {
	invoicePaymentApplier
	FindByID(ctx context.Context, id int64) (*models.Invoice, error)
}

type planPaymentWriter interface {
	Create(ctx context.Context, p *models.FeePayment) error
	CreateDownPayment(ctx context.Context, p *models.FeePayment) (bool, error)
}

// PaymentPlanStores groups the persistence dependencies of PaymentPlanService.
type PaymentPlanStores struct {
	Students studentReader
	Invoices planInvoiceStore
	Plans    paymentPlanStore
	Payments planPaymentWriter
	Receipts receiptCounter
	Ledger   ledgerAppender
}

// Backfill outcomes reported to metrics.
const (
	BackfillCreated = "created"
	BackfillSkipped = "skipped"
	BackfillFailed  = "failed"
)

const planFeeType = "Payment Plan"

// errDownPaymentRecorded rolls back a backfill that lost the race to an existing down payment.
var errDownPaymentRecorded = errors.New("down payment already recorded")

// PaymentPlanService schedules installments, takes installment payments and backfills down payments.
type PaymentPlanService struct {
	tx        txRunner
	stores    PaymentPlanStores
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentPlanService constructs the service.
func NewPaymentPlanService(tx txRunner, stores PaymentPlanStores, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PaymentPlanService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentPlanService{
		tx:        tx,
		stores:    stores,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// BuildInstallmentSchedule splits total minus down payment into count equal, rounded
// installments. The first installment falls one period after start.
func BuildInstallmentSchedule(total, downPayment decimal.Decimal, count int, frequency models.PlanFrequency, start time.Time) []models.PlanInstallment {
	if count <= 0 {
		return nil
	}
	per := total.Sub(downPayment).Div(decimal.NewFromInt(int64(count))).Round(0)
	items := make([]models.PlanInstallment, 0, count)
	for i := 1; i <= count; i++ {
		due := start.AddDate(0, i, 0)
		if frequency == models.FrequencyWeekly {
			due = start.AddDate(0, 0, 7*i)
		}
		items = append(items, models.PlanInstallment{
			InstallmentNumber: i,
			DueDate:           due,
			Amount:            per,
			PaidAmount:        decimal.Zero,
			Status:            models.InstallmentPending,
		})
	}
	return items
}

// Create stores a plan and its generated installments.
func (s *PaymentPlanService) Create(ctx context.Context, actor models.Actor, req dto.CreatePaymentPlanRequest) (*models.PaymentPlan, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid payment plan payload")
	}
	switch {
	case !req.TotalAmount.IsPositive():
		return nil, appErrors.Clone(appErrors.ErrValidation, "totalAmount must be greater than zero")
	case req.DownPayment.IsNegative():
		return nil, appErrors.Clone(appErrors.ErrValidation, "downPayment must not be negative")
	case req.DownPayment.GreaterThanOrEqual(req.TotalAmount):
		return nil, appErrors.Clone(appErrors.ErrValidation, "downPayment must be less than totalAmount")
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		return nil, err
	}

	var plan *models.PaymentPlan
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := loadStudentInSchool(ctx, s.stores.Students, req.StudentID, actor.SchoolID); err != nil {
			return err
		}
		term, year, err := s.resolvePeriod(ctx, actor, req)
		if err != nil {
			return err
		}

		plan = &models.PaymentPlan{
			SchoolID:         actor.SchoolID,
			StudentID:        req.StudentID,
			InvoiceID:        req.InvoiceID,
			Term:             term,
			Year:             year,
			TotalAmount:      req.TotalAmount,
			DownPayment:      req.DownPayment,
			InstallmentCount: req.InstallmentCount,
			Frequency:        models.PlanFrequency(req.Frequency),
			StartDate:        *start,
			Status:           models.PlanActive,
			Notes:            strings.TrimSpace(req.Notes),
			CreatedBy:        actor.UserID,
		}
		if err := s.stores.Plans.Create(ctx, plan); err != nil {
			return appErrors.Internal(err, "failed to create payment plan")
		}
		items := BuildInstallmentSchedule(plan.TotalAmount, plan.DownPayment, plan.InstallmentCount, plan.Frequency, plan.StartDate)
		if err := s.stores.Plans.CreateInstallments(ctx, plan.ID, items); err != nil {
			return appErrors.Internal(err, "failed to create installments")
		}
		plan.Installments = items
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "failed to create payment plan")
	}

	s.logger.Info("payment plan created",
		zap.Int64("plan_id", plan.ID),
		zap.Int64("student_id", plan.StudentID),
		zap.Int("installments", plan.InstallmentCount),
	)
	return plan, nil
}

// resolvePeriod takes term and year from the linked invoice, or from the request when unlinked.
func (s *PaymentPlanService) resolvePeriod(ctx context.Context, actor models.Actor, req dto.CreatePaymentPlanRequest) (int, int, error) {
	if req.InvoiceID == nil {
		if req.Term == nil || req.Year == nil {
			return 0, 0, appErrors.Clone(appErrors.ErrValidation, "term and year are required when no invoice is linked")
		}
		return *req.Term, *req.Year, nil
	}
	inv, err := s.loadInvoice(ctx, actor, *req.InvoiceID)
	if err != nil {
		return 0, 0, err
	}
	if inv.StudentID != req.StudentID {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "invoice belongs to another student")
	}
	return inv.Term, inv.Year, nil
}

func (s *PaymentPlanService) loadInvoice(ctx context.Context, actor models.Actor, id int64) (*models.Invoice, error) {
	inv, err := s.stores.Invoices.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "linked invoice not found")
		}
		return nil, appErrors.Internal(err, "failed to load invoice")
	}
	if inv.SchoolID != actor.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invoice belongs to another school")
	}
	return inv, nil
}

func (s *PaymentPlanService) loadPlan(ctx context.Context, actor models.Actor, id int64) (*models.PaymentPlan, error) {
	plan, err := s.stores.Plans.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment plan not found")
		}
		return nil, appErrors.Internal(err, "failed to load payment plan")
	}
	if plan.SchoolID != actor.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "payment plan belongs to another school")
	}
	return plan, nil
}

// Get returns a plan with its installments.
func (s *PaymentPlanService) Get(ctx context.Context, actor models.Actor, id int64) (*models.PaymentPlan, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	plan, err := s.loadPlan(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	items, err := s.stores.Plans.ListInstallments(ctx, plan.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load installments")
	}
	plan.Installments = items
	return plan, nil
}

// PayInstallment pays towards one installment, mirroring the payment on the linked invoice.
func (s *PaymentPlanService) PayInstallment(ctx context.Context, actor models.Actor, planID, installmentID int64, req dto.PayInstallmentRequest) (*dto.PayInstallmentResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid installment payment payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}

	result := &dto.PayInstallmentResult{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		plan, err := s.loadPlan(ctx, actor, planID)
		if err != nil {
			return err
		}
		inst, err := s.stores.Plans.FindInstallmentForUpdate(ctx, plan.ID, installmentID)
		if err != nil {
			if isNoRows(err) {
				return appErrors.Clone(appErrors.ErrNotFound, "installment not found")
			}
			return appErrors.Internal(err, "failed to load installment")
		}
		remaining := inst.Remaining()
		if req.Amount.GreaterThan(remaining) {
			return installmentOverpayment(req.Amount, remaining)
		}

		var inv *models.Invoice
		if plan.InvoiceID != nil {
			if inv, err = s.loadInvoice(ctx, actor, *plan.InvoiceID); err != nil {
				return err
			}
		}

		receipt, err := allocateReceipt(ctx, s.stores.Receipts, actor.SchoolID, plan.Year, "")
		if err != nil {
			return err
		}
		updated, ok, err := s.stores.Plans.ApplyInstallmentPayment(ctx, inst.ID, req.Amount)
		if err != nil {
			return appErrors.Internal(err, "failed to update installment")
		}
		if !ok {
			return installmentOverpayment(req.Amount, remaining)
		}

		balance := decimal.Max(decimal.Zero, remaining.Sub(req.Amount))
		status := models.PaymentPartial
		if !balance.IsPositive() {
			status = models.PaymentPaid
		}
		payment := &models.FeePayment{
			SchoolID:      actor.SchoolID,
			StudentID:     plan.StudentID,
			InvoiceID:     plan.InvoiceID,
			PaymentPlanID: int64Ptr(plan.ID),
			InstallmentID: int64Ptr(inst.ID),
			Kind:          models.PaymentInstallment,
			FeeType:       planFeeType,
			AmountDue:     remaining,
			AmountPaid:    req.Amount,
			Balance:       balance,
			Status:        status,
			Term:          plan.Term,
			Year:          plan.Year,
			PaymentMethod: models.NormalizePaymentMethod(req.PaymentMethod),
			ReceiptNumber: receipt,
			Notes:         installmentNotes(plan.ID, inst.InstallmentNumber, req.Notes),
			CreatedBy:     actor.UserID,
		}
		if err := s.stores.Payments.Create(ctx, payment); err != nil {
			return appErrors.Internal(err, "failed to save installment payment")
		}
		entry := creditEntry(payment, fmt.Sprintf("Installment %d of plan %d (%s)", inst.InstallmentNumber, plan.ID, receipt), s.now())
		if err := s.stores.Ledger.Append(ctx, entry); err != nil {
			return appErrors.Internal(err, "failed to record installment ledger entry")
		}
		if inv != nil {
			if _, err := s.stores.Invoices.ApplyPayment(ctx, inv.ID, req.Amount); err != nil {
				return appErrors.Internal(err, "failed to update invoice balance")
			}
		}
		if _, err := s.stores.Plans.CompleteIfSettled(ctx, plan.ID); err != nil {
			return appErrors.Internal(err, "failed to update plan status")
		}

		*result = dto.PayInstallmentResult{
			Success:       true,
			PaymentID:     payment.ID,
			ReceiptNumber: receipt,
			PaidAmount:    updated.PaidAmount,
			Status:        string(updated.Status),
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrOverpayment) {
			s.metrics.RecordOverpayment(string(models.PaymentInstallment))
			s.logger.Warn("installment overpayment rejected",
				zap.Int64("plan_id", planID),
				zap.Int64("installment_id", installmentID),
				zap.String("amount", req.Amount.String()),
			)
		}
		return nil, asAppError(err, "failed to pay installment")
	}

	s.metrics.RecordPayment(string(models.PaymentInstallment), req.Amount)
	s.cache.InvalidateSchool(ctx, actor.SchoolID)
	s.logger.Info("installment paid",
		zap.Int64("plan_id", planID),
		zap.Int64("installment_id", installmentID),
		zap.String("receipt_number", result.ReceiptNumber),
		zap.String("status", result.Status),
	)
	return result, nil
}

func installmentOverpayment(amount, remaining decimal.Decimal) error {
	return appErrors.Clone(appErrors.ErrOverpayment,
		fmt.Sprintf("amount %s exceeds remaining installment balance %s", amount, remaining))
}

func installmentNotes(planID int64, number int, notes string) string {
	base := fmt.Sprintf("Installment %d of plan %d", number, planID)
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		return base + ": " + trimmed
	}
	return base
}

// PendingDownPayments lists plans whose down payment has not been recorded yet.
// A zero schoolID covers every school.
func (s *PaymentPlanService) PendingDownPayments(ctx context.Context, schoolID int64) ([]models.PaymentPlan, error) {
	plans, err := s.stores.Plans.ListMissingDownPayment(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list plans missing a down payment")
	}
	return plans, nil
}

// BackfillPlan records the plan's missing down payment with its ledger credit and invoice
// update. It reports false when the down payment already exists.
func (s *PaymentPlanService) BackfillPlan(ctx context.Context, plan models.PaymentPlan, createdBy string) (bool, error) {
	if !plan.DownPayment.IsPositive() {
		return false, nil
	}

	var payment *models.FeePayment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var inv *models.Invoice
		if plan.InvoiceID != nil {
			found, err := s.stores.Invoices.FindByID(ctx, *plan.InvoiceID)
			if err != nil {
				if isNoRows(err) {
					return appErrors.Clone(appErrors.ErrNotFound, "linked invoice not found")
				}
				return appErrors.Internal(err, "failed to load invoice")
			}
			inv = found
		}

		receipt, err := allocateReceipt(ctx, s.stores.Receipts, plan.SchoolID, plan.Year, "")
		if err != nil {
			return err
		}

		amountDue := plan.TotalAmount
		if inv != nil {
			amountDue = inv.Balance
		}
		balance := decimal.Max(decimal.Zero, amountDue.Sub(plan.DownPayment))
		status := models.PaymentPartial
		if !balance.IsPositive() {
			status = models.PaymentPaid
		}
		p := &models.FeePayment{
			SchoolID:      plan.SchoolID,
			StudentID:     plan.StudentID,
			InvoiceID:     plan.InvoiceID,
			PaymentPlanID: int64Ptr(plan.ID),
			Kind:          models.PaymentDownPayment,
			FeeType:       planFeeType,
			AmountDue:     amountDue,
			AmountPaid:    plan.DownPayment,
			Balance:       balance,
			Status:        status,
			Term:          plan.Term,
			Year:          plan.Year,
			PaymentMethod: models.MethodCash,
			ReceiptNumber: receipt,
			Notes:         fmt.Sprintf("Down payment for plan %d", plan.ID),
			CreatedBy:     createdBy,
		}
		created, err := s.stores.Payments.CreateDownPayment(ctx, p)
		if err != nil {
			return appErrors.Internal(err, "failed to save down payment")
		}
		if !created {
			return errDownPaymentRecorded
		}

		entry := creditEntry(p, fmt.Sprintf("Down payment for plan %d (%s)", plan.ID, receipt), s.now())
		if err := s.stores.Ledger.Append(ctx, entry); err != nil {
			return appErrors.Internal(err, "failed to record down payment ledger entry")
		}
		if inv != nil {
			if _, err := s.stores.Invoices.ApplyPayment(ctx, inv.ID, plan.DownPayment); err != nil {
				return appErrors.Internal(err, "failed to update invoice balance")
			}
		}
		payment = p
		return nil
	})
	switch {
	case errors.Is(err, errDownPaymentRecorded):
		s.metrics.RecordBackfill(BackfillSkipped)
		return false, nil
	case err != nil:
		s.metrics.RecordBackfill(BackfillFailed)
		return false, asAppError(err, "failed to backfill down payment")
	}

	s.metrics.RecordBackfill(BackfillCreated)
	s.metrics.RecordPayment(string(models.PaymentDownPayment), payment.AmountPaid)
	s.logger.Info("down payment backfilled",
		zap.Int64("plan_id", plan.ID),
		zap.Int64("payment_id", payment.ID),
		zap.String("receipt_number", payment.ReceiptNumber),
	)
	return true, nil
}

// ReconcileDownPayments backfills every pending down payment of the active school.
// One failing plan does not stop the others.
func (s *PaymentPlanService) ReconcileDownPayments(ctx context.Context, actor models.Actor) (*dto.ReconcileResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	plans, err := s.PendingDownPayments(ctx, actor.SchoolID)
	if err != nil {
		return nil, err
	}

	result := &dto.ReconcileResult{PlansChecked: len(plans)}
	for _, plan := range plans {
		created, err := s.BackfillPlan(ctx, plan, actor.UserID)
		switch {
		case err != nil:
			result.Failed++
			s.logger.Warn("down payment backfill failed", zap.Int64("plan_id", plan.ID), zap.Error(err))
		case created:
			result.Created++
		default:
			result.Skipped++
		}
	}
	if result.Created > 0 {
		s.cache.InvalidateSchool(ctx, actor.SchoolID)
	}
	return result, nil
}
