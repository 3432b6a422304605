package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/pkg/response"
)

type ledgerService interface {
	Statement(ctx context.Context, actor models.Actor, studentID int64) (*models.Statement, error)
	RecordEntry(ctx context.Context, actor models.Actor, req dto.RecordLedgerEntryRequest) (*models.FinanceTransaction, error)
	FinancialSummary(ctx context.Context, actor models.Actor, term, year *int) (*models.FinancialSummary, error)
}

// FinanceHandler exposes ledger reads and manual entries.
type FinanceHandler struct {
	ledger ledgerService
}

// NewFinanceHandler constructs the handler.
func NewFinanceHandler(ledger ledgerService) *FinanceHandler {
	return &FinanceHandler{ledger: ledger}
}

// Summary godoc
// @Summary Financial summary
// @Tags Finance
// @Produce json
// @Param term query int false "Term"
// @Param year query int false "Year"
// @Success 200 {object} response.Envelope
// @Router /finance/summary [get]
func (h *FinanceHandler) Summary(c *gin.Context) {
	term, err := optionalIntQuery(c, "term")
	if err != nil {
		response.Error(c, err)
		return
	}
	year, err := optionalIntQuery(c, "year")
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.ledger.FinancialSummary(c.Request.Context(), actorFromContext(c), term, year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Statement godoc
// @Summary Student statement with running balance
// @Tags Finance
// @Produce json
// @Param studentId path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /finance/students/{studentId}/statement [get]
func (h *FinanceHandler) Statement(c *gin.Context) {
	studentID, err := idParam(c, "studentId")
	if err != nil {
		response.Error(c, err)
		return
	}
	statement, err := h.ledger.Statement(c.Request.Context(), actorFromContext(c), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, statement, nil)
}

// RecordTransaction godoc
// @Summary Record a school expense or income
// @Tags Finance
// @Accept json
// @Produce json
// @Param payload body dto.RecordLedgerEntryRequest true "Ledger entry"
// @Success 201 {object} response.Envelope
// @Router /finance/transactions [post]
func (h *FinanceHandler) RecordTransaction(c *gin.Context) {
	var req dto.RecordLedgerEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "ledger entry"))
		return
	}
	entry, err := h.ledger.RecordEntry(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}
