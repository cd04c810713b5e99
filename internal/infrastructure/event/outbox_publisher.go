package event

import (
	"context"
	"fmt"

	"github.com/school/feeledger/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxPublisher stages ledger events as outbox rows. Nothing reaches the
// bus here; the OutboxProcessor delivers the rows once the transaction that
// wrote them has committed.
type OutboxPublisher struct {
	serializer *EventSerializer
}

func NewOutboxPublisher(serializer *EventSerializer) *OutboxPublisher {
	return &OutboxPublisher{serializer: serializer}
}

// PublishWithTx inserts one outbox row per event using tx
func (p *OutboxPublisher) PublishWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	entries, err := p.entries(events)
	if err != nil {
		return err
	}
	return NewGormOutboxRepository(tx).Save(ctx, entries...)
}

func (p *OutboxPublisher) entries(events []shared.DomainEvent) ([]*shared.OutboxEntry, error) {
	out := make([]*shared.OutboxEntry, len(events))
	for i, event := range events {
		payload, err := p.serializer.Serialize(event)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize %s %s: %w", event.EventType(), event.EventID(), err)
		}
		out[i] = shared.NewOutboxEntry(event, payload)
	}
	return out, nil
}

// SaveEvents implements shared.OutboxEventSaver for the gorm transaction
// handed out by the unit of work
func (p *OutboxPublisher) SaveEvents(ctx context.Context, tx any, events ...shared.DomainEvent) error {
	db, ok := tx.(*gorm.DB)
	if !ok {
		return fmt.Errorf("outbox: expected *gorm.DB transaction, got %T", tx)
	}
	return p.PublishWithTx(ctx, db, events...)
}

var _ shared.OutboxEventSaver = (*OutboxPublisher)(nil)
