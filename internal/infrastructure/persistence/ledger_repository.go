package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/school/feeledger/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedgerRepository runs payment postings under an exclusive bill row lock
type GormLedgerRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver
	lockTimeout time.Duration
}

// NewGormLedgerRepository creates a new GormLedgerRepository.
// lockTimeout bounds the wait for the bill row lock; zero waits indefinitely
// (or until the context expires).
func NewGormLedgerRepository(db *gorm.DB, outboxSaver shared.OutboxEventSaver, lockTimeout time.Duration) *GormLedgerRepository {
	return &GormLedgerRepository{db: db, outboxSaver: outboxSaver, lockTimeout: lockTimeout}
}

// WithLockedBill locks the bill row with SELECT ... FOR UPDATE and runs fn in
// the same transaction
func (r *GormLedgerRepository) WithLockedBill(ctx context.Context, billID uuid.UUID, fn func(tx fees.LedgerTx, bill *fees.Bill) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.setLockTimeout(tx); err != nil {
			return err
		}

		var model models.BillModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", billID).
			First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fees.NewNotFoundError("bill", billID)
			}
			return fmt.Errorf("failed to lock bill: %w", err)
		}

		return fn(&gormLedgerTx{tx: tx, outboxSaver: r.outboxSaver}, model.ToDomain())
	})
	return classifyLedgerError("lock bill", err)
}

// setLockTimeout scopes lock_timeout to the current transaction (Postgres only)
func (r *GormLedgerRepository) setLockTimeout(tx *gorm.DB) error {
	if r.lockTimeout <= 0 || tx.Dialector.Name() != "postgres" {
		return nil
	}
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
	if err := tx.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}
	return nil
}

// gormLedgerTx implements fees.LedgerTx on an open transaction
type gormLedgerTx struct {
	tx          *gorm.DB
	outboxSaver shared.OutboxEventSaver
}

// ReferenceExists reports whether any payment already carries ref
func (t *gormLedgerTx) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	var count int64
	if err := t.tx.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("transaction_reference = ?", ref).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check transaction reference: %w", err)
	}
	return count > 0, nil
}

// InsertPayment inserts the payment row
func (t *gormLedgerTx) InsertPayment(ctx context.Context, p *fees.Payment) error {
	// A failed statement aborts a Postgres transaction, so the insert runs in
	// a savepoint the caller can recover from on a reference collision.
	err := t.tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		return sp.Create(models.PaymentModelFromDomain(p)).Error
	})
	if err != nil {
		if violatesConstraint(err, "transaction_reference") {
			return fees.ErrReferenceTaken
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// SumPayments returns the sum of the bill's payment amounts
func (t *gormLedgerTx) SumPayments(ctx context.Context, billID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := t.tx.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Select("COALESCE(SUM(amount_paid), 0)").
		Where("bill_id = ?", billID).
		Row().Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payments: %w", err)
	}
	return sum, nil
}

// UpdateBill persists the bill's money fields and writes its pending events
func (t *gormLedgerTx) UpdateBill(ctx context.Context, bill *fees.Bill) error {
	result := t.tx.WithContext(ctx).
		Model(&models.BillModel{}).
		Where("id = ?", bill.ID).
		Updates(map[string]any{
			"paid_amount": bill.PaidAmount,
			"balance":     bill.Balance,
			"status":      string(bill.Status),
			"version":     bill.Version,
			"updated_at":  bill.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update bill: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fees.NewNotFoundError("bill", bill.ID)
	}

	if err := saveEvents(ctx, t.tx, t.outboxSaver, bill.GetDomainEvents()); err != nil {
		return err
	}
	bill.ClearDomainEvents()
	return nil
}

// Ensure GormLedgerRepository implements LedgerRepository
var _ fees.LedgerRepository = (*GormLedgerRepository)(nil)
