package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

type feeStructureCatalog interface {
	List(ctx context.Context, schoolID int64, filter models.FeeStructureFilter) ([]models.FeeStructure, error)
	Upsert(ctx context.Context, fs *models.FeeStructure) error
}

type overrideWriter interface {
	Upsert(ctx context.Context, o *models.StudentFeeOverride) error
}

type scholarshipStore interface {
	Create(ctx context.Context, s *models.Scholarship) error
	FindByID(ctx context.Context, id int64) (*models.Scholarship, error)
	Assign(ctx context.Context, a *models.StudentScholarship) error
}

// FeeCatalogService maintains fee structures, overrides and scholarships.
type FeeCatalogService struct {
	structures   feeStructureCatalog
	overrides    overrideWriter
	scholarships scholarshipStore
	students     studentReader
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewFeeCatalogService constructs the service.
func NewFeeCatalogService(structures feeStructureCatalog, overrides overrideWriter, scholarships scholarshipStore, students studentReader, validate *validator.Validate, logger *zap.Logger) *FeeCatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeCatalogService{
		structures:   structures,
		overrides:    overrides,
		scholarships: scholarships,
		students:     students,
		validator:    validate,
		logger:       logger,
	}
}

// UpsertStructure creates or reprices the catalog row for its natural key.
func (s *FeeCatalogService) UpsertStructure(ctx context.Context, actor models.Actor, req dto.UpsertFeeStructureRequest) (*models.FeeStructure, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid fee structure payload")
	}
	if req.Amount.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must not be negative")
	}

	fs := &models.FeeStructure{
		SchoolID:       actor.SchoolID,
		ClassLevel:     strings.TrimSpace(req.ClassLevel),
		FeeType:        strings.TrimSpace(req.FeeType),
		Term:           req.Term,
		Year:           req.Year,
		BoardingStatus: normalizeBoarding(req.BoardingStatus),
		Amount:         req.Amount,
		Active:         req.IsActive == nil || *req.IsActive,
	}
	if err := s.structures.Upsert(ctx, fs); err != nil {
		return nil, appErrors.Internal(err, "failed to save fee structure")
	}
	return fs, nil
}

func normalizeBoarding(status *string) *string {
	if status == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*status)
	if trimmed == "" || strings.EqualFold(trimmed, models.BoardingAll) {
		return nil
	}
	return &trimmed
}

// ListStructures returns the school's catalog.
func (s *FeeCatalogService) ListStructures(ctx context.Context, actor models.Actor, filter models.FeeStructureFilter) ([]models.FeeStructure, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	items, err := s.structures.List(ctx, actor.SchoolID, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list fee structures")
	}
	return items, nil
}

// UpsertOverride sets a student's custom amount for one fee type.
func (s *FeeCatalogService) UpsertOverride(ctx context.Context, actor models.Actor, req dto.UpsertOverrideRequest) (*models.StudentFeeOverride, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid override payload")
	}
	if req.CustomAmount.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "customAmount must not be negative")
	}
	if _, err := loadStudentInSchool(ctx, s.students, req.StudentID, actor.SchoolID); err != nil {
		return nil, err
	}

	o := &models.StudentFeeOverride{
		SchoolID:     actor.SchoolID,
		StudentID:    req.StudentID,
		FeeType:      strings.TrimSpace(req.FeeType),
		Term:         req.Term,
		Year:         req.Year,
		CustomAmount: req.CustomAmount,
		Reason:       strings.TrimSpace(req.Reason),
		Active:       req.IsActive == nil || *req.IsActive,
	}
	if err := s.overrides.Upsert(ctx, o); err != nil {
		return nil, appErrors.Internal(err, "failed to save override")
	}
	return o, nil
}

// CreateScholarship defines a discount rule for the school.
func (s *FeeCatalogService) CreateScholarship(ctx context.Context, actor models.Actor, req dto.CreateScholarshipRequest) (*models.Scholarship, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid scholarship payload")
	}

	discountType := models.DiscountType(req.DiscountType)
	switch {
	case !req.DiscountValue.IsPositive():
		return nil, appErrors.Clone(appErrors.ErrValidation, "discountValue must be greater than zero")
	case discountType == models.DiscountPercentage && req.DiscountValue.GreaterThan(hundred):
		return nil, appErrors.Clone(appErrors.ErrValidation, "percentage discount cannot exceed 100")
	}

	validFrom, err := parseDate(req.ValidFrom)
	if err != nil {
		return nil, err
	}
	validUntil, err := parseDate(req.ValidUntil)
	if err != nil {
		return nil, err
	}
	if validFrom != nil && validUntil != nil && validUntil.Before(*validFrom) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "validUntil must not precede validFrom")
	}

	feeTypes := make([]string, 0, len(req.FeeTypes))
	for _, ft := range req.FeeTypes {
		feeTypes = append(feeTypes, strings.TrimSpace(ft))
	}

	sch := &models.Scholarship{
		SchoolID:      actor.SchoolID,
		Name:          strings.TrimSpace(req.Name),
		DiscountType:  discountType,
		DiscountValue: req.DiscountValue,
		FeeTypes:      feeTypes,
		ValidFrom:     validFrom,
		ValidUntil:    validUntil,
		Active:        true,
	}
	if err := s.scholarships.Create(ctx, sch); err != nil {
		return nil, appErrors.Internal(err, "failed to create scholarship")
	}
	s.logger.Info("scholarship created", zap.Int64("scholarship_id", sch.ID), zap.Int64("school_id", actor.SchoolID))
	return sch, nil
}

// AssignScholarship links a scholarship to a student, replacing the status of an existing link.
func (s *FeeCatalogService) AssignScholarship(ctx context.Context, actor models.Actor, scholarshipID int64, req dto.AssignScholarshipRequest) (*models.StudentScholarship, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid scholarship assignment payload")
	}

	sch, err := s.scholarships.FindByID(ctx, scholarshipID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scholarship not found")
		}
		return nil, appErrors.Internal(err, "failed to load scholarship")
	}
	if sch.SchoolID != actor.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "scholarship belongs to another school")
	}
	if _, err := loadStudentInSchool(ctx, s.students, req.StudentID, actor.SchoolID); err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = models.ScholarshipAssignmentActive
	}
	assignment := &models.StudentScholarship{
		SchoolID:      actor.SchoolID,
		StudentID:     req.StudentID,
		ScholarshipID: scholarshipID,
		Term:          req.Term,
		Year:          req.Year,
		Status:        status,
	}
	if err := s.scholarships.Assign(ctx, assignment); err != nil {
		return nil, appErrors.Internal(err, "failed to assign scholarship")
	}
	return assignment, nil
}
