package fees

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// CatalogService manages the fee structure catalog
type CatalogService struct {
	deps
	refs       fees.ReferenceRepository
	structures fees.FeeStructureRepository
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(refs fees.ReferenceRepository, structures fees.FeeStructureRepository, opts ...Option) *CatalogService {
	return &CatalogService{
		deps:       newDeps(opts),
		refs:       refs,
		structures: structures,
	}
}

// Lookup returns the priced lines for a grade and academic year. No pricing
// is an empty list, not an error.
func (s *CatalogService) Lookup(ctx context.Context, gradeID, academicYearID uuid.UUID) ([]FeeStructureLineResponse, error) {
	verr := &fees.ValidationError{}
	if gradeID == uuid.Nil {
		verr.Add("grade_id", "is required")
	}
	if academicYearID == uuid.Nil {
		verr.Add("academic_year_id", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	lines, err := s.structures.FindLinesByScope(ctx, gradeID, academicYearID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up fee structures: %w", err)
	}
	return ToFeeStructureLineResponses(lines), nil
}

// CreateFeeStructure prices a fee category for a grade and academic year
func (s *CatalogService) CreateFeeStructure(ctx context.Context, in CreateFeeStructureInput) (*FeeStructureResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "catalog", "create_fee_structure")
	defer span.End()

	if in.Actor == uuid.Nil {
		err := fees.NewValidationError("created_by", "acting user is required")
		telemetry.RecordError(span, err)
		return nil, err
	}

	fs, err := fees.NewFeeStructure(in.FeeCategoryID, in.GradeID, in.AcademicYearID, in.Amount, in.DueDate)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if _, err := s.refs.FindFeeCategory(ctx, in.FeeCategoryID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if _, err := s.refs.FindGrade(ctx, in.GradeID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if _, err := s.refs.FindAcademicYear(ctx, in.AcademicYearID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.structures.Create(ctx, fs, fees.NewFeeStructureCreatedEvent(fs, in.Actor)); err != nil {
		if errors.Is(err, fees.ErrFeeStructureExists) {
			err = fees.NewValidationError("fee_category_id",
				"a fee structure already exists for this category, grade and academic year")
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Fee structure created",
		zap.String("fee_structure_id", fs.ID.String()),
		zap.String("fee_category_id", fs.FeeCategoryID.String()),
		zap.String("grade_id", fs.GradeID.String()),
		zap.String("academic_year_id", fs.AcademicYearID.String()),
		zap.String("amount", money(fs.Amount)),
	)

	resp := ToFeeStructureResponse(fs)
	return &resp, nil
}

// GetFeeStructure returns a fee structure by ID
func (s *CatalogService) GetFeeStructure(ctx context.Context, id uuid.UUID) (*FeeStructureResponse, error) {
	fs, err := s.structures.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToFeeStructureResponse(fs)
	return &resp, nil
}
