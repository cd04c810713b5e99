package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is where an outbox entry is in delivery
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

// DefaultMaxRetries is the delivery budget of a new entry
const DefaultMaxRetries = 5

// Retry delays double from outboxBaseBackoff up to outboxMaxBackoff
const (
	outboxBaseBackoff = time.Second
	outboxMaxBackoff  = 5 * time.Minute
)

// OutboxEntry is a ledger event stored in the transaction that recorded the
// bill, payment or receipt, and delivered to subscribers after commit
type OutboxEntry struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry wraps a serialized event as a pending entry
func NewOutboxEntry(event DomainEvent, payload []byte) *OutboxEntry {
	now := time.Now().UTC()
	return &OutboxEntry{
		ID:            uuid.New(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CanRetry reports whether a failed entry still has attempts left
func (e *OutboxEntry) CanRetry() bool {
	return e.Status == OutboxStatusFailed && e.RetryCount < e.MaxRetries
}

// IsDead reports whether the entry exhausted its retries
func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// MarkProcessing claims a pending or failed entry for delivery
func (e *OutboxEntry) MarkProcessing() error {
	switch e.Status {
	case OutboxStatusPending, OutboxStatusFailed:
	default:
		return e.transitionError(OutboxStatusProcessing)
	}
	e.setStatus(OutboxStatusProcessing)
	return nil
}

// MarkSent records delivery
func (e *OutboxEntry) MarkSent() {
	e.setStatus(OutboxStatusSent)
	processed := e.UpdatedAt
	e.ProcessedAt = &processed
}

// MarkFailed records a failed attempt. The entry is retried after
// RetryBackoff(RetryCount) or goes dead once MaxRetries attempts failed.
func (e *OutboxEntry) MarkFailed(reason string) {
	e.RetryCount++
	e.LastError = reason

	if e.RetryCount >= e.MaxRetries {
		e.setStatus(OutboxStatusDead)
		e.NextRetryAt = nil
		return
	}
	e.setStatus(OutboxStatusFailed)
	next := e.UpdatedAt.Add(RetryBackoff(e.RetryCount))
	e.NextRetryAt = &next
}

// ReleaseClaim hands a processing entry back to the pending queue when its
// processor went away before recording the outcome
func (e *OutboxEntry) ReleaseClaim() error {
	if e.Status != OutboxStatusProcessing {
		return e.transitionError(OutboxStatusPending)
	}
	e.setStatus(OutboxStatusPending)
	return nil
}

// ResetForRetry requeues a dead entry with a fresh budget
func (e *OutboxEntry) ResetForRetry() error {
	if e.Status != OutboxStatusDead {
		return e.transitionError(OutboxStatusPending)
	}
	e.setStatus(OutboxStatusPending)
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	return nil
}

func (e *OutboxEntry) setStatus(s OutboxStatus) {
	e.Status = s
	e.UpdatedAt = time.Now().UTC()
}

func (e *OutboxEntry) transitionError(to OutboxStatus) error {
	return fmt.Errorf("outbox entry %s: cannot move from %s to %s", e.ID, e.Status, to)
}

// RetryBackoff is the delay before attempt n+1 after n failures:
// 1s, 2s, 4s ... capped at five minutes
func RetryBackoff(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	if failures > 16 {
		return outboxMaxBackoff
	}
	return min(outboxBaseBackoff<<(failures-1), outboxMaxBackoff)
}

// OutboxRepository stores outbox entries and hands them to the processor
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	// FindPending returns up to limit pending entries, oldest first
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	// FindRetryable returns failed entries due before the given time
	FindRetryable(ctx context.Context, before time.Time, limit int) ([]*OutboxEntry, error)
	// MarkProcessing claims the ids with FOR UPDATE SKIP LOCKED and returns
	// the entries this caller won
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	// ReleaseStaleProcessing returns PROCESSING entries last touched before
	// the cutoff to PENDING and reports how many were released
	ReleaseStaleProcessing(ctx context.Context, before time.Time) (int64, error)
	DeleteSentBefore(ctx context.Context, before time.Time) (int64, error)
}

// OutboxEventSaver writes events to the outbox inside the caller's
// transaction; tx is the infrastructure transaction handle
type OutboxEventSaver interface {
	SaveEvents(ctx context.Context, tx any, events ...DomainEvent) error
}
