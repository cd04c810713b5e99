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

// ReceiptSequenceName is the Postgres sequence receipt numbers are drawn from
const ReceiptSequenceName = "receipt_number_seq"

// GormReceiptRepository implements ReceiptRepository using GORM
type GormReceiptRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver
}

// NewGormReceiptRepository creates a new GormReceiptRepository
func NewGormReceiptRepository(db *gorm.DB, outboxSaver shared.OutboxEventSaver) *GormReceiptRepository {
	return &GormReceiptRepository{db: db, outboxSaver: outboxSaver}
}

// FindByID finds a receipt by ID
func (r *GormReceiptRepository) FindByID(ctx context.Context, id uuid.UUID) (*fees.Receipt, error) {
	return r.findOne(ctx, "id = ?", id, "receipt")
}

// FindByPaymentID finds the receipt issued for a payment
func (r *GormReceiptRepository) FindByPaymentID(ctx context.Context, paymentID uuid.UUID) (*fees.Receipt, error) {
	return r.findOne(ctx, "payment_id = ?", paymentID, "receipt")
}

func (r *GormReceiptRepository) findOne(ctx context.Context, cond string, id uuid.UUID, resource string) (*fees.Receipt, error) {
	var model models.ReceiptModel
	if err := r.db.WithContext(ctx).Where(cond, id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fees.NewNotFoundError(resource, id)
		}
		return nil, fmt.Errorf("failed to find receipt: %w", err)
	}
	return model.ToDomain(), nil
}

// NextReceiptSequence allocates the next receipt sequence value. On Postgres
// this is nextval, which never blocks and never hands out a value twice.
// Other dialects (sqlite in tests) use a single-row counter table of the same name.
func (r *GormReceiptRepository) NextReceiptSequence(ctx context.Context) (int64, error) {
	db := r.db.WithContext(ctx)

	var seq int64
	var err error
	if db.Dialector.Name() == "postgres" {
		err = db.Raw("SELECT nextval('" + ReceiptSequenceName + "')").Row().Scan(&seq)
	} else {
		err = db.Raw("UPDATE " + ReceiptSequenceName + " SET value = value + 1 RETURNING value").Row().Scan(&seq)
	}
	if err != nil {
		return 0, classifyLedgerError("allocate receipt number", fmt.Errorf("failed to allocate receipt number: %w", err))
	}
	return seq, nil
}

// Create persists the receipt and its events in one transaction
func (r *GormReceiptRepository) Create(ctx context.Context, receipt *fees.Receipt, events ...shared.DomainEvent) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.ReceiptModelFromDomain(receipt)).Error; err != nil {
			switch {
			case violatesConstraint(err, "payment_id"):
				return fees.ErrPaymentAlreadyReceipted
			case violatesConstraint(err, "receipt_number"):
				return fees.ErrReceiptNumberTaken
			}
			return fmt.Errorf("failed to create receipt: %w", err)
		}
		return saveEvents(ctx, tx, r.outboxSaver, events)
	})
	return classifyLedgerError("issue receipt", err)
}

// Ensure GormReceiptRepository implements ReceiptRepository
var _ fees.ReceiptRepository = (*GormReceiptRepository)(nil)
