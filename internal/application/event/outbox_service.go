// Package event holds the operator side of ledger event delivery.
package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/shared"
	"go.uber.org/zap"
)

var (
	ErrEntryNotFound = shared.NewDomainError("NOT_FOUND", "Outbox entry not found")
	ErrEntryNotDead  = shared.NewDomainError("CONFLICT", "Only dead entries can be retried")
)

// OutboxAdminRepository reads and repairs outbox rows
type OutboxAdminRepository interface {
	FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error)
	Update(ctx context.Context, entry *shared.OutboxEntry) error
	CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error)
}

// OutboxService backs the /system/outbox endpoints. A payment whose
// PaymentRecorded event went dead is still on the ledger; only its audit
// delivery is missing, and Retry puts it back in the queue.
type OutboxService struct {
	repo   OutboxAdminRepository
	logger *zap.Logger
}

func NewOutboxService(repo OutboxAdminRepository, logger *zap.Logger) *OutboxService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxService{repo: repo, logger: logger}
}

// OutboxEntryView is an outbox row without its payload
type OutboxEntryView struct {
	ID            uuid.UUID  `json:"id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func newOutboxEntryView(e *shared.OutboxEntry) OutboxEntryView {
	return OutboxEntryView{
		ID:            e.ID,
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Status:        string(e.Status),
		RetryCount:    e.RetryCount,
		MaxRetries:    e.MaxRetries,
		LastError:     e.LastError,
		NextRetryAt:   e.NextRetryAt,
		ProcessedAt:   e.ProcessedAt,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// OutboxStats counts rows per status. Undelivered is pending, processing
// and failed together.
type OutboxStats struct {
	Pending     int64 `json:"pending"`
	Processing  int64 `json:"processing"`
	Sent        int64 `json:"sent"`
	Failed      int64 `json:"failed"`
	Dead        int64 `json:"dead"`
	Undelivered int64 `json:"undelivered"`
	Total       int64 `json:"total"`
}

// ListDead pages through entries that used up their retries
func (s *OutboxService) ListDead(ctx context.Context, filter shared.Filter) (shared.Paginated[OutboxEntryView], error) {
	filter.Normalize()

	entries, total, err := s.repo.FindDead(ctx, filter.Page, filter.PageSize)
	if err != nil {
		return shared.Paginated[OutboxEntryView]{}, err
	}
	views := make([]OutboxEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newOutboxEntryView(e))
	}
	return shared.NewPaginated(views, total, filter.Page, filter.PageSize), nil
}

func (s *OutboxService) Get(ctx context.Context, id uuid.UUID) (OutboxEntryView, error) {
	entry, err := s.load(ctx, id)
	if err != nil {
		return OutboxEntryView{}, err
	}
	return newOutboxEntryView(entry), nil
}

// Retry requeues a dead entry. Subscribers de-duplicate by event id.
func (s *OutboxService) Retry(ctx context.Context, id uuid.UUID) (OutboxEntryView, error) {
	entry, err := s.load(ctx, id)
	if err != nil {
		return OutboxEntryView{}, err
	}
	lastError := entry.LastError
	if entry.ResetForRetry() != nil {
		return OutboxEntryView{}, ErrEntryNotDead
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		return OutboxEntryView{}, err
	}

	s.logger.Info("Dead outbox entry requeued",
		zap.String("id", id.String()),
		zap.String("event_type", entry.EventType),
		zap.String("aggregate_id", entry.AggregateID.String()),
		zap.String("last_error", lastError),
	)
	return newOutboxEntryView(entry), nil
}

func (s *OutboxService) Stats(ctx context.Context) (OutboxStats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return OutboxStats{}, err
	}
	st := OutboxStats{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
	}
	st.Undelivered = st.Pending + st.Processing + st.Failed
	for _, n := range counts {
		st.Total += n
	}
	return st, nil
}

func (s *OutboxService) load(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return nil, ErrEntryNotFound
	case err != nil:
		return nil, err
	case entry == nil:
		return nil, ErrEntryNotFound
	}
	return entry, nil
}
