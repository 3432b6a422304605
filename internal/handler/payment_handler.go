package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/pkg/response"
)

// IdempotencyHeader carries the client key for safe payment retries.
const IdempotencyHeader = "Idempotency-Key"

type paymentService interface {
	RecordPayment(ctx context.Context, actor models.Actor, req dto.RecordPaymentRequest) (*models.FeePayment, error)
	VoidPayment(ctx context.Context, actor models.Actor, id int64, req dto.VoidPaymentRequest) (*models.FeePayment, error)
	ReceiptPDF(ctx context.Context, actor models.Actor, id int64) ([]byte, string, error)
}

// PaymentHandler exposes direct payment endpoints.
type PaymentHandler struct {
	payments paymentService
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Record godoc
// @Summary Record a fee payment
// @Description Applies the payment to the student's term invoice. Amounts above the outstanding balance are rejected.
// @Tags Payments
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Client retry key"
// @Param payload body dto.RecordPaymentRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fees/payments [post]
func (h *PaymentHandler) Record(c *gin.Context) {
	var req dto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "payment"))
		return
	}
	if key := c.GetHeader(IdempotencyHeader); key != "" && req.IdempotencyKey == "" {
		req.IdempotencyKey = key
	}
	payment, err := h.payments.RecordPayment(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// Void godoc
// @Summary Void a payment
// @Description Soft-deletes the payment and posts a reversing ledger entry.
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path int true "Payment ID"
// @Param payload body dto.VoidPaymentRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /fees/payments/{id} [delete]
func (h *PaymentHandler) Void(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.VoidPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, invalidPayload(err, "void"))
			return
		}
	}
	payment, err := h.payments.VoidPayment(c.Request.Context(), actorFromContext(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Receipt godoc
// @Summary Download a payment receipt
// @Tags Payments
// @Produce application/pdf
// @Param id path int true "Payment ID"
// @Success 200 {file} file
// @Router /fees/payments/{id}/receipt [get]
func (h *PaymentHandler) Receipt(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	body, filename, err := h.payments.ReceiptPDF(c.Request.Context(), actorFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, "application/pdf", filename, body)
}
