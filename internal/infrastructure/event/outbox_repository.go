package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/school/feeledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOutboxRepository stores outbox entries in the outbox_events table
type GormOutboxRepository struct {
	db *gorm.DB
}

func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormOutboxRepository) WithTx(tx *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: tx}
}

func (r *GormOutboxRepository) table(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.OutboxEntryModel{})
}

// Save inserts entries in one statement
func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.OutboxEntryModel, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.OutboxEntryModelFromDomain(e))
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

// FindPending returns up to limit never-attempted entries, oldest first
func (r *GormOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	return r.list(r.table(ctx).
		Where("status = ?", shared.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit))
}

// FindRetryable returns failed entries whose next_retry_at is not after before
func (r *GormOutboxRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	return r.list(r.table(ctx).
		Where("status = ?", shared.OutboxStatusFailed).
		Where("next_retry_at <= ?", before).
		Order("next_retry_at ASC").
		Limit(limit))
}

// MarkProcessing claims the given entries for delivery and returns the ones
// it won. Rows already claimed or locked by another processor are skipped.
func (r *GormOutboxRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var won []models.OutboxEntryModel
	claimable := []shared.OutboxStatus{shared.OutboxStatusPending, shared.OutboxStatusFailed}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("id IN ?", ids).
			Where("status IN ?", claimable).
			Find(&won).Error
		if err != nil || len(won) == 0 {
			return err
		}

		now := time.Now().UTC()
		wonIDs := make([]uuid.UUID, 0, len(won))
		for i := range won {
			wonIDs = append(wonIDs, won[i].ID)
			won[i].Status = shared.OutboxStatusProcessing
			won[i].UpdatedAt = now
		}
		return tx.Model(&models.OutboxEntryModel{}).
			Where("id IN ?", wonIDs).
			Updates(map[string]any{"status": shared.OutboxStatusProcessing, "updated_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return toDomainEntries(won), nil
}

// Update writes back the delivery bookkeeping of entry
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	return r.table(ctx).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"status":        entry.Status,
			"retry_count":   entry.RetryCount,
			"last_error":    entry.LastError,
			"next_retry_at": entry.NextRetryAt,
			"processed_at":  entry.ProcessedAt,
			"updated_at":    entry.UpdatedAt,
		}).Error
}

// ReleaseStaleProcessing puts PROCESSING entries whose claim is older than
// before back in the pending queue
func (r *GormOutboxRepository) ReleaseStaleProcessing(ctx context.Context, before time.Time) (int64, error) {
	res := r.table(ctx).
		Where("status = ?", shared.OutboxStatusProcessing).
		Where("updated_at < ?", before.UTC()).
		Updates(map[string]any{"status": shared.OutboxStatusPending, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// DeleteSentBefore purges delivered entries processed before the cutoff and
// reports how many went
func (r *GormOutboxRepository) DeleteSentBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ?", shared.OutboxStatusSent).
		Where("processed_at < ?", before).
		Delete(&models.OutboxEntryModel{})
	return res.RowsAffected, res.Error
}

// FindDead pages through dead-lettered entries, most recently failed first
func (r *GormOutboxRepository) FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	var total int64
	if err := r.table(ctx).Where("status = ?", shared.OutboxStatusDead).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	entries, err := r.list(r.table(ctx).
		Where("status = ?", shared.OutboxStatusDead).
		Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize))
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *GormOutboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByEventID looks up the entry carrying the given domain event
func (r *GormOutboxRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*shared.OutboxEntry, error) {
	return r.first(ctx, "event_id = ?", eventID)
}

// CountByStatus tallies entries per status; absent statuses are omitted
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	var tally []struct {
		Status shared.OutboxStatus
		Count  int64
	}
	err := r.table(ctx).
		Select("status, count(*) as count").
		Group("status").
		Scan(&tally).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[shared.OutboxStatus]int64, len(tally))
	for _, row := range tally {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *GormOutboxRepository) list(q *gorm.DB) ([]*shared.OutboxEntry, error) {
	var rows []models.OutboxEntryModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainEntries(rows), nil
}

func (r *GormOutboxRepository) first(ctx context.Context, cond string, arg uuid.UUID) (*shared.OutboxEntry, error) {
	var row models.OutboxEntryModel
	err := r.db.WithContext(ctx).Where(cond, arg).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, shared.ErrNotFound
	case err != nil:
		return nil, err
	}
	return row.ToDomain(), nil
}

func toDomainEntries(rows []models.OutboxEntryModel) []*shared.OutboxEntry {
	entries := make([]*shared.OutboxEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
