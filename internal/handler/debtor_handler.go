package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/pkg/response"
)

type debtorService interface {
	Report(ctx context.Context, actor models.Actor, filter models.DebtorFilter) (*models.DebtorReport, error)
	Export(ctx context.Context, actor models.Actor, filter models.DebtorFilter, format string) ([]byte, string, string, error)
}

// DebtorHandler serves the aging report.
type DebtorHandler struct {
	debtors debtorService
}

// NewDebtorHandler constructs the handler.
func NewDebtorHandler(debtors debtorService) *DebtorHandler {
	return &DebtorHandler{debtors: debtors}
}

func debtorFilterFromQuery(c *gin.Context) (models.DebtorFilter, error) {
	var filter models.DebtorFilter
	var err error
	if filter.Term, err = optionalIntQuery(c, "term"); err != nil {
		return filter, err
	}
	if filter.Year, err = optionalIntQuery(c, "year"); err != nil {
		return filter, err
	}
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		return filter, err
	}
	filter.ClassLevel = c.Query("classLevel")
	return filter, nil
}

// Report godoc
// @Summary Debtor aging report
// @Description Outstanding invoices grouped into aging buckets. The summary covers the whole filtered set.
// @Tags Debtors
// @Produce json
// @Param term query int false "Term"
// @Param year query int false "Year"
// @Param classLevel query string false "Class level"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /fees/debtors [get]
func (h *DebtorHandler) Report(c *gin.Context) {
	filter, err := debtorFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.debtors.Report(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &response.Pagination{Limit: report.Limit, Offset: report.Offset, Total: report.Total}
	response.JSON(c, http.StatusOK, report, pagination)
}

// Export godoc
// @Summary Export debtors
// @Tags Debtors
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /fees/debtors/export [get]
func (h *DebtorHandler) Export(c *gin.Context) {
	filter, err := debtorFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	body, contentType, filename, err := h.debtors.Export(c.Request.Context(), actorFromContext(c), filter, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, contentType, filename, body)
}
