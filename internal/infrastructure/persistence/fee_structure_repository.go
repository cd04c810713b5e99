package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/school/feeledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// feeStructureLineColumns selects a catalog line plus its category name
const feeStructureLineColumns = "fee_structures.*, fee_categories.name AS category_name"

// GormFeeStructureRepository implements FeeStructureRepository using GORM
type GormFeeStructureRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver
}

// NewGormFeeStructureRepository creates a new GormFeeStructureRepository.
// outboxSaver may be nil, in which case events are dropped.
func NewGormFeeStructureRepository(db *gorm.DB, outboxSaver shared.OutboxEventSaver) *GormFeeStructureRepository {
	return &GormFeeStructureRepository{db: db, outboxSaver: outboxSaver}
}

// FindByID finds a fee structure by ID
func (r *GormFeeStructureRepository) FindByID(ctx context.Context, id uuid.UUID) (*fees.FeeStructure, error) {
	var model models.FeeStructureModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fees.NewNotFoundError("fee_structure", id)
		}
		return nil, fmt.Errorf("failed to find fee structure: %w", err)
	}
	return model.ToDomain(), nil
}

// FindLinesByScope returns the catalog lines priced for a grade and year
func (r *GormFeeStructureRepository) FindLinesByScope(ctx context.Context, gradeID, academicYearID uuid.UUID) ([]fees.FeeStructureLine, error) {
	return r.findLines(r.db.WithContext(ctx).
		Where("fee_structures.grade_id = ? AND fee_structures.academic_year_id = ?", gradeID, academicYearID))
}

// FindLinesByIDs returns the catalog lines with the given IDs
func (r *GormFeeStructureRepository) FindLinesByIDs(ctx context.Context, ids []uuid.UUID) ([]fees.FeeStructureLine, error) {
	if len(ids) == 0 {
		return []fees.FeeStructureLine{}, nil
	}
	return r.findLines(r.db.WithContext(ctx).Where("fee_structures.id IN ?", ids))
}

func (r *GormFeeStructureRepository) findLines(query *gorm.DB) ([]fees.FeeStructureLine, error) {
	var rows []models.FeeStructureLineRow
	err := query.
		Model(&models.FeeStructureModel{}).
		Select(feeStructureLineColumns).
		Joins("JOIN fee_categories ON fee_categories.id = fee_structures.fee_category_id").
		Order("fee_categories.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find fee structure lines: %w", err)
	}

	lines := make([]fees.FeeStructureLine, len(rows))
	for i := range rows {
		lines[i] = rows[i].ToDomain()
	}
	return lines, nil
}

// Create persists a new fee structure and its events in one transaction
func (r *GormFeeStructureRepository) Create(ctx context.Context, fs *fees.FeeStructure, events ...shared.DomainEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.FeeStructureModelFromDomain(fs)).Error; err != nil {
			if IsUniqueViolation(err) {
				return fees.ErrFeeStructureExists
			}
			return fmt.Errorf("failed to create fee structure: %w", err)
		}
		return saveEvents(ctx, tx, r.outboxSaver, events)
	})
}

// saveEvents writes events to the outbox within tx
func saveEvents(ctx context.Context, tx *gorm.DB, saver shared.OutboxEventSaver, events []shared.DomainEvent) error {
	if saver == nil || len(events) == 0 {
		return nil
	}
	if err := saver.SaveEvents(ctx, tx, events...); err != nil {
		return fmt.Errorf("failed to save events to outbox: %w", err)
	}
	return nil
}

// Ensure GormFeeStructureRepository implements FeeStructureRepository
var _ fees.FeeStructureRepository = (*GormFeeStructureRepository)(nil)
