// Package app wires repositories and services for the binaries.
package app

import (
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/repository"
	"github.com/noah-isme/sma-billing-api/internal/service"
	"github.com/noah-isme/sma-billing-api/pkg/config"
)

// Container holds the wired billing services.
type Container struct {
	Metrics  *service.MetricsService
	Cache    *service.CacheService
	Invoices *service.InvoiceService
	Payments *service.PaymentService
	Plans    *service.PaymentPlanService
	Catalog  *service.FeeCatalogService
	Ledger   *service.LedgerService
	Debtors  *service.DebtorService
}

// NewContainer builds every service over postgres. rdb may be nil, which disables caching.
func NewContainer(cfg *config.Config, db *sqlx.DB, rdb *redis.Client, logger *zap.Logger) *Container {
	validate := validator.New()
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if rdb != nil {
		cacheRepo = repository.NewCacheRepository(rdb)
	}
	cache := service.NewCacheService(cacheRepo, metrics, cfg.Billing.CacheTTL, logger, cfg.Billing.CacheEnabled)

	tx := repository.NewTransactor(db)
	students := repository.NewStudentRepository(db)
	structures := repository.NewFeeStructureRepository(db)
	overrides := repository.NewOverrideRepository(db)
	scholarships := repository.NewScholarshipRepository(db)
	invoices := repository.NewInvoiceRepository(db)
	payments := repository.NewPaymentRepository(db)
	plans := repository.NewPaymentPlanRepository(db)
	receipts := repository.NewReceiptRepository(db)
	ledger := repository.NewLedgerRepository(db)

	return &Container{
		Metrics: metrics,
		Cache:   cache,
		Invoices: service.NewInvoiceService(tx, service.InvoiceStores{
			Structures:   structures,
			Overrides:    overrides,
			Scholarships: scholarships,
			Students:     students,
			Invoices:     invoices,
			Ledger:       ledger,
		}, cache, metrics, validate, logger, cfg.Billing.InvoiceDueDays),
		Payments: service.NewPaymentService(tx, service.PaymentStores{
			Students: students,
			Invoices: invoices,
			Payments: payments,
			Receipts: receipts,
			Ledger:   ledger,
		}, cache, metrics, validate, logger, service.ReceiptOptions{
			SchoolLabel: cfg.Billing.SchoolLabel,
			Currency:    cfg.Billing.Currency,
		}),
		Plans: service.NewPaymentPlanService(tx, service.PaymentPlanStores{
			Students: students,
			Invoices: invoices,
			Plans:    plans,
			Payments: payments,
			Receipts: receipts,
			Ledger:   ledger,
		}, cache, metrics, validate, logger),
		Catalog: service.NewFeeCatalogService(structures, overrides, scholarships, students, validate, logger),
		Ledger:  service.NewLedgerService(students, ledger, invoices, payments, cache, validate, logger),
		Debtors: service.NewDebtorService(invoices, cache, logger, cfg.Billing.DefaultPageLimit, cfg.Billing.DebtorsMaxLimit),
	}
}
