package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormReferenceRepository reads school reference data
type GormReferenceRepository struct {
	db *gorm.DB
}

// NewGormReferenceRepository creates a new GormReferenceRepository
func NewGormReferenceRepository(db *gorm.DB) *GormReferenceRepository {
	return &GormReferenceRepository{db: db}
}

// FindStudent finds a student by ID
func (r *GormReferenceRepository) FindStudent(ctx context.Context, id uuid.UUID) (*fees.Student, error) {
	var model models.StudentModel
	if err := r.first(ctx, &model, id, "student"); err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAcademicYear finds an academic year by ID
func (r *GormReferenceRepository) FindAcademicYear(ctx context.Context, id uuid.UUID) (*fees.AcademicYear, error) {
	var model models.AcademicYearModel
	if err := r.first(ctx, &model, id, "academic_year"); err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindGrade finds a grade by ID
func (r *GormReferenceRepository) FindGrade(ctx context.Context, id uuid.UUID) (*fees.Grade, error) {
	var model models.GradeModel
	if err := r.first(ctx, &model, id, "grade"); err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindFeeCategory finds a fee category by ID
func (r *GormReferenceRepository) FindFeeCategory(ctx context.Context, id uuid.UUID) (*fees.FeeCategory, error) {
	var model models.FeeCategoryModel
	if err := r.first(ctx, &model, id, "fee_category"); err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormReferenceRepository) first(ctx context.Context, dest any, id uuid.UUID, resource string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fees.NewNotFoundError(resource, id)
		}
		return fmt.Errorf("failed to find %s: %w", resource, err)
	}
	return nil
}

// Ensure GormReferenceRepository implements ReferenceRepository
var _ fees.ReferenceRepository = (*GormReferenceRepository)(nil)
