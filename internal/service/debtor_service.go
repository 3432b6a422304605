package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
	"github.com/noah-isme/sma-billing-api/pkg/export"
)

type outstandingLister interface {
	ListOutstanding(ctx context.Context, schoolID int64, filter models.DebtorFilter) ([]models.OutstandingInvoice, error)
}

// DebtorExporter renders a tabular dataset.
type DebtorExporter interface {
	Render(data export.Dataset, title string) ([]byte, error)
	ContentType() string
}

// Export formats.
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

// DebtorService produces the debtor aging report.
type DebtorService struct {
	invoices     outstandingLister
	cache        *CacheService
	exporters    map[string]DebtorExporter
	logger       *zap.Logger
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

// NewDebtorService constructs the service.
func NewDebtorService(invoices outstandingLister, cache *CacheService, logger *zap.Logger, defaultLimit, maxLimit int) *DebtorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLimit <= 0 {
		maxLimit = 200
	}
	if defaultLimit <= 0 || defaultLimit > maxLimit {
		defaultLimit = min(50, maxLimit)
	}
	return &DebtorService{
		invoices: invoices,
		cache:    cache,
		exporters: map[string]DebtorExporter{
			FormatCSV: export.NewCSVExporter(),
			FormatPDF: export.NewPDFExporter(),
		},
		logger:       logger,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		now:          time.Now,
	}
}

// AgingCategory buckets whole days overdue.
func AgingCategory(days int) string {
	switch {
	case days <= 0:
		return models.AgingCurrent
	case days <= 30:
		return models.Aging1To30
	case days <= 60:
		return models.Aging31To60
	case days <= 90:
		return models.Aging61To90
	default:
		return models.AgingOver90
	}
}

// DaysOverdue counts whole days since the due date, or since creation when no due date is set.
func DaysOverdue(inv models.OutstandingInvoice, now time.Time) int {
	effective := inv.CreatedAt
	if inv.DueDate != nil {
		effective = *inv.DueDate
	}
	days := math.Floor(now.Sub(effective).Hours() / 24)
	if days < 0 {
		return 0
	}
	return int(days)
}

// BuildDebtorReport classifies every row, aggregates the summary over all of them and only
// then slices out the requested page.
func BuildDebtorReport(rows []models.OutstandingInvoice, now time.Time, limit, offset int) models.DebtorReport {
	summary := models.DebtorSummary{
		TotalOutstanding: decimal.Zero,
		Current:          decimal.Zero,
		Days1To30:        decimal.Zero,
		Days31To60:       decimal.Zero,
		Days61To90:       decimal.Zero,
		Over90Days:       decimal.Zero,
	}
	debtors := make([]models.Debtor, 0, len(rows))
	students := make(map[int64]struct{}, len(rows))
	for _, row := range rows {
		days := DaysOverdue(row, now)
		category := AgingCategory(days)
		debtors = append(debtors, models.Debtor{
			InvoiceID:     row.InvoiceID,
			InvoiceNumber: row.InvoiceNumber,
			StudentID:     row.StudentID,
			StudentName:   row.StudentName,
			ClassLevel:    row.ClassLevel,
			Term:          row.Term,
			Year:          row.Year,
			TotalAmount:   row.TotalAmount,
			AmountPaid:    row.AmountPaid,
			Balance:       row.Balance,
			DaysOverdue:   days,
			AgingCategory: category,
		})
		students[row.StudentID] = struct{}{}

		summary.TotalOutstanding = summary.TotalOutstanding.Add(row.Balance)
		switch category {
		case models.AgingCurrent:
			summary.Current = summary.Current.Add(row.Balance)
		case models.Aging1To30:
			summary.Days1To30 = summary.Days1To30.Add(row.Balance)
		case models.Aging31To60:
			summary.Days31To60 = summary.Days31To60.Add(row.Balance)
		case models.Aging61To90:
			summary.Days61To90 = summary.Days61To90.Add(row.Balance)
		default:
			summary.Over90Days = summary.Over90Days.Add(row.Balance)
		}
	}
	summary.TotalDebtors = len(students)

	start := min(max(offset, 0), len(debtors))
	end := min(start+limit, len(debtors))
	return models.DebtorReport{
		Debtors: debtors[start:end],
		Summary: summary,
		Total:   len(debtors),
		Limit:   limit,
		Offset:  offset,
	}
}

// NormalizeFilter applies the default page size and caps the limit.
func (s *DebtorService) NormalizeFilter(filter models.DebtorFilter) models.DebtorFilter {
	if filter.Limit <= 0 {
		filter.Limit = s.defaultLimit
	}
	if filter.Limit > s.maxLimit {
		filter.Limit = s.maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.ClassLevel = strings.TrimSpace(filter.ClassLevel)
	return filter
}

// Report returns one page of debtors with the summary of the whole filtered set.
func (s *DebtorService) Report(ctx context.Context, actor models.Actor, filter models.DebtorFilter) (*models.DebtorReport, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	filter = s.NormalizeFilter(filter)
	now := s.now()
	// Aging is relative to the report day, so a cached page never outlives it.
	key := billingCacheKey(actor.SchoolID, "debtors", now.UTC().Format("20060102"),
		optionalInt(filter.Term), optionalInt(filter.Year), filter.ClassLevel, filter.Limit, filter.Offset)

	var cached models.DebtorReport
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	rows, err := s.invoices.ListOutstanding(ctx, actor.SchoolID, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load outstanding invoices")
	}
	report := BuildDebtorReport(rows, now, filter.Limit, filter.Offset)
	s.cache.Set(ctx, key, report, 0)
	return &report, nil
}

// Export renders every debtor matching the filter, unpaginated, as CSV or PDF.
// It returns the body, its content type and a download filename.
func (s *DebtorService) Export(ctx context.Context, actor models.Actor, filter models.DebtorFilter, format string) ([]byte, string, string, error) {
	if err := requireActor(actor); err != nil {
		return nil, "", "", err
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatCSV
	}
	exporter, ok := s.exporters[format]
	if !ok {
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	filter.ClassLevel = strings.TrimSpace(filter.ClassLevel)
	rows, err := s.invoices.ListOutstanding(ctx, actor.SchoolID, filter)
	if err != nil {
		return nil, "", "", appErrors.Internal(err, "failed to load outstanding invoices")
	}
	now := s.now()
	report := BuildDebtorReport(rows, now, len(rows), 0)

	body, err := exporter.Render(debtorDataset(report), "Debtor Aging Report")
	if err != nil {
		return nil, "", "", appErrors.Internal(err, "failed to render debtor export")
	}
	filename := fmt.Sprintf("debtors-%s.%s", now.UTC().Format("20060102"), format)
	s.logger.Info("debtor report exported",
		zap.Int64("school_id", actor.SchoolID),
		zap.String("format", format),
		zap.Int("rows", report.Total),
	)
	return body, exporter.ContentType(), filename, nil
}

func debtorDataset(report models.DebtorReport) export.Dataset {
	headers := []string{"Invoice", "Student", "Class", "Term", "Year", "Total", "Paid", "Balance", "Days Overdue", "Aging"}
	rows := make([]map[string]string, 0, len(report.Debtors))
	for _, d := range report.Debtors {
		rows = append(rows, map[string]string{
			"Invoice":      d.InvoiceNumber,
			"Student":      d.StudentName,
			"Class":        d.ClassLevel,
			"Term":         fmt.Sprint(d.Term),
			"Year":         fmt.Sprint(d.Year),
			"Total":        d.TotalAmount.StringFixed(2),
			"Paid":         d.AmountPaid.StringFixed(2),
			"Balance":      d.Balance.StringFixed(2),
			"Days Overdue": fmt.Sprint(d.DaysOverdue),
			"Aging":        d.AgingCategory,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
