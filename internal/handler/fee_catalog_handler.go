package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/pkg/response"
)

type feeCatalogService interface {
	UpsertStructure(ctx context.Context, actor models.Actor, req dto.UpsertFeeStructureRequest) (*models.FeeStructure, error)
	ListStructures(ctx context.Context, actor models.Actor, filter models.FeeStructureFilter) ([]models.FeeStructure, error)
	UpsertOverride(ctx context.Context, actor models.Actor, req dto.UpsertOverrideRequest) (*models.StudentFeeOverride, error)
	CreateScholarship(ctx context.Context, actor models.Actor, req dto.CreateScholarshipRequest) (*models.Scholarship, error)
	AssignScholarship(ctx context.Context, actor models.Actor, scholarshipID int64, req dto.AssignScholarshipRequest) (*models.StudentScholarship, error)
}

// FeeCatalogHandler manages fee structures, overrides and scholarships.
type FeeCatalogHandler struct {
	catalog feeCatalogService
}

// NewFeeCatalogHandler constructs the handler.
func NewFeeCatalogHandler(catalog feeCatalogService) *FeeCatalogHandler {
	return &FeeCatalogHandler{catalog: catalog}
}

// UpsertStructure godoc
// @Summary Create or reprice a fee structure
// @Tags FeeCatalog
// @Accept json
// @Produce json
// @Param payload body dto.UpsertFeeStructureRequest true "Fee structure"
// @Success 200 {object} response.Envelope
// @Router /fees/structures [put]
func (h *FeeCatalogHandler) UpsertStructure(c *gin.Context) {
	var req dto.UpsertFeeStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "fee structure"))
		return
	}
	item, err := h.catalog.UpsertStructure(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// ListStructures godoc
// @Summary List fee structures
// @Tags FeeCatalog
// @Produce json
// @Param classLevel query string false "Class level"
// @Param term query int false "Term"
// @Param year query int false "Year"
// @Success 200 {object} response.Envelope
// @Router /fees/structures [get]
func (h *FeeCatalogHandler) ListStructures(c *gin.Context) {
	term, err := optionalIntQuery(c, "term")
	if err != nil {
		response.Error(c, err)
		return
	}
	year, err := intQuery(c, "year")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.FeeStructureFilter{ClassLevel: c.Query("classLevel"), Term: term, Year: year}
	items, err := h.catalog.ListStructures(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// UpsertOverride godoc
// @Summary Set a student's custom fee amount
// @Tags FeeCatalog
// @Accept json
// @Produce json
// @Param payload body dto.UpsertOverrideRequest true "Override"
// @Success 200 {object} response.Envelope
// @Router /fees/overrides [put]
func (h *FeeCatalogHandler) UpsertOverride(c *gin.Context) {
	var req dto.UpsertOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "override"))
		return
	}
	item, err := h.catalog.UpsertOverride(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// CreateScholarship godoc
// @Summary Create a scholarship
// @Tags FeeCatalog
// @Accept json
// @Produce json
// @Param payload body dto.CreateScholarshipRequest true "Scholarship"
// @Success 201 {object} response.Envelope
// @Router /fees/scholarships [post]
func (h *FeeCatalogHandler) CreateScholarship(c *gin.Context) {
	var req dto.CreateScholarshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "scholarship"))
		return
	}
	item, err := h.catalog.CreateScholarship(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// AssignScholarship godoc
// @Summary Assign a scholarship to a student
// @Tags FeeCatalog
// @Accept json
// @Produce json
// @Param id path int true "Scholarship ID"
// @Param payload body dto.AssignScholarshipRequest true "Assignment"
// @Success 201 {object} response.Envelope
// @Router /fees/scholarships/{id}/assignments [post]
func (h *FeeCatalogHandler) AssignScholarship(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.AssignScholarshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "scholarship assignment"))
		return
	}
	item, err := h.catalog.AssignScholarship(c.Request.Context(), actorFromContext(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}
