package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/pkg/response"
)

type invoiceService interface {
	Generate(ctx context.Context, actor models.Actor, req dto.GenerateInvoicesRequest) (*dto.GenerateInvoicesResult, error)
	Get(ctx context.Context, actor models.Actor, id int64) (*models.Invoice, error)
	ListForStudent(ctx context.Context, actor models.Actor, studentID int64) ([]models.Invoice, error)
	Update(ctx context.Context, actor models.Actor, id int64, req dto.UpdateInvoiceRequest) (*models.Invoice, error)
	RecordReminder(ctx context.Context, actor models.Actor, id int64) (*models.Invoice, error)
}

// InvoiceHandler exposes invoice endpoints.
type InvoiceHandler struct {
	invoices invoiceService
}

// NewInvoiceHandler constructs the handler.
func NewInvoiceHandler(invoices invoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// Generate godoc
// @Summary Generate term invoices
// @Description Creates one invoice per active student that has none for the term. Re-running is safe.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param payload body dto.GenerateInvoicesRequest true "Generation parameters"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /fees/invoices/generate [post]
func (h *InvoiceHandler) Generate(c *gin.Context) {
	var req dto.GenerateInvoicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invoice generation"))
		return
	}
	result, err := h.invoices.Generate(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Get godoc
// @Summary Get invoice
// @Tags Invoices
// @Produce json
// @Param id path int true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /fees/invoices/{id} [get]
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	inv, err := h.invoices.Get(c.Request.Context(), actorFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, inv, nil)
}

// ListForStudent godoc
// @Summary List a student's invoices
// @Tags Invoices
// @Produce json
// @Param studentId path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /fees/students/{studentId}/invoices [get]
func (h *InvoiceHandler) ListForStudent(c *gin.Context) {
	studentID, err := idParam(c, "studentId")
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.invoices.ListForStudent(c.Request.Context(), actorFromContext(c), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Update godoc
// @Summary Edit invoice notes or due date
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path int true "Invoice ID"
// @Param payload body dto.UpdateInvoiceRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /fees/invoices/{id} [patch]
func (h *InvoiceHandler) Update(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invoice"))
		return
	}
	inv, err := h.invoices.Update(c.Request.Context(), actorFromContext(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, inv, nil)
}

// Remind godoc
// @Summary Record that a payment reminder was sent
// @Tags Invoices
// @Produce json
// @Param id path int true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Router /fees/invoices/{id}/reminders [post]
func (h *InvoiceHandler) Remind(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	inv, err := h.invoices.RecordReminder(c.Request.Context(), actorFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, inv, nil)
}
