package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

type ledgerStore interface {
	ledgerAppender
	ListByStudent(ctx context.Context, schoolID, studentID int64) ([]models.FinanceTransaction, error)
	Totals(ctx context.Context, schoolID int64, term, year *int) (models.LedgerTotals, error)
}

type invoiceTotaler interface {
	Totals(ctx context.Context, schoolID int64, term, year *int) (models.InvoiceTotals, error)
}

type collectionTotaler interface {
	CollectedTotal(ctx context.Context, schoolID int64, term, year *int) (decimal.Decimal, error)
}

// LedgerService serves statements, manual ledger entries and the financial summary.
type LedgerService struct {
	students  studentReader
	ledger    ledgerStore
	invoices  invoiceTotaler
	payments  collectionTotaler
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewLedgerService constructs the service.
func NewLedgerService(students studentReader, ledger ledgerStore, invoices invoiceTotaler, payments collectionTotaler, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *LedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		students:  students,
		ledger:    ledger,
		invoices:  invoices,
		payments:  payments,
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// BuildStatement orders entries as given and carries a running balance: debits add, credits subtract.
func BuildStatement(studentID int64, entries []models.FinanceTransaction) models.Statement {
	st := models.Statement{
		StudentID:    studentID,
		Entries:      make([]models.StatementEntry, 0, len(entries)),
		TotalDebits:  decimal.Zero,
		TotalCredits: decimal.Zero,
		Balance:      decimal.Zero,
	}
	for _, e := range entries {
		if e.TransactionType == models.Debit {
			st.TotalDebits = st.TotalDebits.Add(e.Amount)
			st.Balance = st.Balance.Add(e.Amount)
		} else {
			st.TotalCredits = st.TotalCredits.Add(e.Amount)
			st.Balance = st.Balance.Sub(e.Amount)
		}
		st.Entries = append(st.Entries, models.StatementEntry{FinanceTransaction: e, RunningBalance: st.Balance})
	}
	return st
}

// Statement returns the student's ledger history with running balance.
func (s *LedgerService) Statement(ctx context.Context, actor models.Actor, studentID int64) (*models.Statement, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if _, err := loadStudentInSchool(ctx, s.students, studentID, actor.SchoolID); err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListByStudent(ctx, actor.SchoolID, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load ledger")
	}
	st := BuildStatement(studentID, entries)
	return &st, nil
}

// RecordEntry appends a school-level expense (debit) or income (credit).
func (s *LedgerService) RecordEntry(ctx context.Context, actor models.Actor, req dto.RecordLedgerEntryRequest) (*models.FinanceTransaction, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid ledger entry payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}
	date, err := parseDate(req.TransactionDate)
	if err != nil {
		return nil, err
	}
	if date == nil {
		d := today(s.now())
		date = &d
	}
	year := req.Year
	if year == nil {
		year = intPtr(date.Year())
	}

	side := models.Credit
	if req.Category == models.CategoryExpense {
		side = models.Debit
	}
	entry := &models.FinanceTransaction{
		SchoolID:        actor.SchoolID,
		TransactionType: side,
		Category:        req.Category,
		Amount:          req.Amount,
		Description:     strings.TrimSpace(req.Description),
		Term:            req.Term,
		Year:            year,
		TransactionDate: *date,
		CreatedBy:       actor.UserID,
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		return nil, appErrors.Internal(err, "failed to record ledger entry")
	}
	s.cache.InvalidateSchool(ctx, actor.SchoolID)
	s.logger.Info("ledger entry recorded",
		zap.Int64("transaction_id", entry.ID),
		zap.String("category", entry.Category),
		zap.String("amount", entry.Amount.String()),
	)
	return entry, nil
}

// BuildFinancialSummary derives net income and collection rate from the raw totals.
// Voided payments are netted out of revenue so it agrees with the collected total.
func BuildFinancialSummary(term, year *int, invoices models.InvoiceTotals, collected decimal.Decimal, ledger models.LedgerTotals) models.FinancialSummary {
	revenue := ledger.Credits.Sub(ledger.Reversals)
	summary := models.FinancialSummary{
		Term:           term,
		Year:           year,
		TotalBilled:    invoices.Billed,
		TotalCollected: collected,
		Revenue:        revenue,
		Expenses:       ledger.Expenses,
		NetIncome:      revenue.Sub(ledger.Expenses),
		Outstanding:    invoices.Outstanding,
		CollectionRate: decimal.Zero,
	}
	if invoices.Billed.IsPositive() {
		summary.CollectionRate = collected.Div(invoices.Billed).Mul(hundred).Round(2)
	}
	return summary
}

// FinancialSummary reports billed, collected and outstanding amounts for an optional period.
func (s *LedgerService) FinancialSummary(ctx context.Context, actor models.Actor, term, year *int) (*models.FinancialSummary, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	key := billingCacheKey(actor.SchoolID, "summary", optionalInt(term), optionalInt(year))
	var cached models.FinancialSummary
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	invoiceTotals, err := s.invoices.Totals(ctx, actor.SchoolID, term, year)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sum invoices")
	}
	collected, err := s.payments.CollectedTotal(ctx, actor.SchoolID, term, year)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sum payments")
	}
	ledgerTotals, err := s.ledger.Totals(ctx, actor.SchoolID, term, year)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sum ledger")
	}

	summary := BuildFinancialSummary(term, year, invoiceTotals, collected, ledgerTotals)
	s.cache.Set(ctx, key, summary, 0)
	return &summary, nil
}

func optionalInt(v *int) interface{} {
	if v == nil {
		return "all"
	}
	return *v
}
