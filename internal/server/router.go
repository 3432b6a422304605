package server

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/handler"
	"github.com/noah-isme/sma-billing-api/internal/middleware"
	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/internal/service"
	"github.com/noah-isme/sma-billing-api/pkg/config"
	"github.com/noah-isme/sma-billing-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-billing-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-billing-api/pkg/middleware/requestid"
)

// Handlers groups the HTTP handlers mounted by the router.
type Handlers struct {
	Invoices *handler.InvoiceHandler
	Payments *handler.PaymentHandler
	Plans    *handler.PaymentPlanHandler
	Catalog  *handler.FeeCatalogHandler
	Debtors  *handler.DebtorHandler
	Finance  *handler.FinanceHandler
	Ops      *handler.MetricsHandler
}

// Deps carries the cross-cutting pieces the router wires into middleware.
type Deps struct {
	Config   *config.Config
	Logger   *zap.Logger
	Verifier middleware.TokenValidator
	Metrics  *service.MetricsService
}

// NewRouter builds the gin engine with every billing route registered.
func NewRouter(deps Deps, h Handlers) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", h.Ops.Health)
	r.GET("/ready", h.Ops.Ready)
	r.GET("/metrics", h.Ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(deps.Verifier))

	read := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleBursar)
	write := middleware.RequireRoles(models.RoleAdmin, models.RoleBursar)

	fees := api.Group("/fees")
	fees.POST("/invoices/generate", write, h.Invoices.Generate)
	fees.GET("/invoices/:id", read, h.Invoices.Get)
	fees.PATCH("/invoices/:id", write, h.Invoices.Update)
	fees.POST("/invoices/:id/reminders", write, h.Invoices.Remind)
	fees.GET("/students/:studentId/invoices", read, h.Invoices.ListForStudent)

	fees.POST("/payments", write, h.Payments.Record)
	fees.DELETE("/payments/:id", write, h.Payments.Void)
	fees.GET("/payments/:id/receipt", read, h.Payments.Receipt)

	fees.POST("/payment-plans", write, h.Plans.Create)
	fees.POST("/payment-plans/reconcile", write, h.Plans.Reconcile)
	fees.GET("/payment-plans/:planId", read, h.Plans.Get)
	fees.POST("/payment-plans/:planId/installments/:installmentId/pay", write, h.Plans.PayInstallment)

	fees.GET("/debtors", read, h.Debtors.Report)
	fees.GET("/debtors/export", read, h.Debtors.Export)

	fees.GET("/structures", read, h.Catalog.ListStructures)
	fees.PUT("/structures", write, h.Catalog.UpsertStructure)
	fees.PUT("/overrides", write, h.Catalog.UpsertOverride)
	fees.POST("/scholarships", write, h.Catalog.CreateScholarship)
	fees.POST("/scholarships/:id/assignments", write, h.Catalog.AssignScholarship)

	finance := api.Group("/finance")
	finance.GET("/summary", read, h.Finance.Summary)
	finance.GET("/students/:studentId/statement", read, h.Finance.Statement)
	finance.POST("/transactions", write, h.Finance.RecordTransaction)

	return r
}
