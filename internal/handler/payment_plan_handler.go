package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/pkg/response"
)

type paymentPlanService interface {
	Create(ctx context.Context, actor models.Actor, req dto.CreatePaymentPlanRequest) (*models.PaymentPlan, error)
	Get(ctx context.Context, actor models.Actor, id int64) (*models.PaymentPlan, error)
	PayInstallment(ctx context.Context, actor models.Actor, planID, installmentID int64, req dto.PayInstallmentRequest) (*dto.PayInstallmentResult, error)
	ReconcileDownPayments(ctx context.Context, actor models.Actor) (*dto.ReconcileResult, error)
}

// PaymentPlanHandler exposes installment plan endpoints.
type PaymentPlanHandler struct {
	plans paymentPlanService
}

// NewPaymentPlanHandler constructs the handler.
func NewPaymentPlanHandler(plans paymentPlanService) *PaymentPlanHandler {
	return &PaymentPlanHandler{plans: plans}
}

// Create godoc
// @Summary Create a payment plan
// @Tags PaymentPlans
// @Accept json
// @Produce json
// @Param payload body dto.CreatePaymentPlanRequest true "Plan"
// @Success 201 {object} response.Envelope
// @Router /fees/payment-plans [post]
func (h *PaymentPlanHandler) Create(c *gin.Context) {
	var req dto.CreatePaymentPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "payment plan"))
		return
	}
	plan, err := h.plans.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, plan)
}

// Get godoc
// @Summary Get a payment plan with its installments
// @Tags PaymentPlans
// @Produce json
// @Param planId path int true "Plan ID"
// @Success 200 {object} response.Envelope
// @Router /fees/payment-plans/{planId} [get]
func (h *PaymentPlanHandler) Get(c *gin.Context) {
	id, err := idParam(c, "planId")
	if err != nil {
		response.Error(c, err)
		return
	}
	plan, err := h.plans.Get(c.Request.Context(), actorFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// PayInstallment godoc
// @Summary Pay towards an installment
// @Tags PaymentPlans
// @Accept json
// @Produce json
// @Param planId path int true "Plan ID"
// @Param installmentId path int true "Installment ID"
// @Param payload body dto.PayInstallmentRequest true "Payment"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /fees/payment-plans/{planId}/installments/{installmentId}/pay [post]
func (h *PaymentPlanHandler) PayInstallment(c *gin.Context) {
	planID, err := idParam(c, "planId")
	if err != nil {
		response.Error(c, err)
		return
	}
	installmentID, err := idParam(c, "installmentId")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.PayInstallmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "installment payment"))
		return
	}
	result, err := h.plans.PayInstallment(c.Request.Context(), actorFromContext(c), planID, installmentID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reconcile godoc
// @Summary Backfill missing down payments
// @Tags PaymentPlans
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /fees/payment-plans/reconcile [post]
func (h *PaymentPlanHandler) Reconcile(c *gin.Context) {
	result, err := h.plans.ReconcileDownPayments(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
