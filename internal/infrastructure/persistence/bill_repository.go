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

// GormBillRepository implements BillRepository using GORM
type GormBillRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver
}

// NewGormBillRepository creates a new GormBillRepository
func NewGormBillRepository(db *gorm.DB, outboxSaver shared.OutboxEventSaver) *GormBillRepository {
	return &GormBillRepository{db: db, outboxSaver: outboxSaver}
}

// FindByID finds a bill with its items
func (r *GormBillRepository) FindByID(ctx context.Context, id uuid.UUID) (*fees.Bill, error) {
	var model models.BillModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fees.NewNotFoundError("bill", id)
		}
		return nil, fmt.Errorf("failed to find bill: %w", err)
	}
	return model.ToDomain(), nil
}

// FindAll returns a page of bills matching filter and the total count
func (r *GormBillRepository) FindAll(ctx context.Context, filter fees.BillFilter) ([]fees.Bill, int64, error) {
	filter.Normalize()

	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bills: %w", err)
	}

	var billModels []models.BillModel
	err := applyOrder(r.filtered(ctx, filter), filter.OrderBy, filter.OrderDir, BillSortFields, "bills.created_at", "bills.id").
		Preload("Items").
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&billModels).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bills: %w", err)
	}

	bills := make([]fees.Bill, len(billModels))
	for i := range billModels {
		bills[i] = *billModels[i].ToDomain()
	}
	return bills, total, nil
}

// filtered builds the bill query for filter, without paging
func (r *GormBillRepository) filtered(ctx context.Context, filter fees.BillFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.BillModel{})
	if filter.StudentID != nil {
		query = query.Where("bills.student_id = ?", *filter.StudentID)
	}
	if filter.AcademicYearID != nil {
		query = query.Where("bills.academic_year_id = ?", *filter.AcademicYearID)
	}
	if filter.Status != nil {
		query = query.Where("bills.status = ?", string(*filter.Status))
	}
	if filter.Search != "" {
		query = query.Where(containsLike("bills.bill_number"), likePattern(filter.Search))
	}
	return query
}

// Create persists the bill, its items and its pending events in one transaction
func (r *GormBillRepository) Create(ctx context.Context, bill *fees.Bill) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.BillModelFromDomain(bill)).Error; err != nil {
			if violatesConstraint(err, "bill_number") {
				return fees.ErrBillNumberTaken
			}
			return fmt.Errorf("failed to create bill: %w", err)
		}
		if err := saveEvents(ctx, tx, r.outboxSaver, bill.GetDomainEvents()); err != nil {
			return err
		}
		bill.ClearDomainEvents()
		return nil
	})
}

// Ensure GormBillRepository implements BillRepository
var _ fees.BillRepository = (*GormBillRepository)(nil)
