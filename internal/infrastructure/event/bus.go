package event

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/school/feeledger/internal/domain/shared"
	"go.uber.org/zap"
)

// InMemoryEventBus fans ledger events out to in-process subscribers. It is
// fed by the OutboxProcessor, never directly by the services.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	running  atomic.Bool
}

func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger.Named("eventbus"),
	}
}

// Publish hands each event to every subscriber of its type, in order, on the
// caller's goroutine. A failing or panicking subscriber does not stop the
// others; all failures come back joined so the outbox entry is retried.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var errs []error
	for _, event := range events {
		handlers := b.registry.GetHandlers(event.EventType())
		if len(handlers) == 0 {
			b.logger.Debug("no subscribers", zap.String("event_type", event.EventType()))
			continue
		}
		for _, h := range handlers {
			if err := safeHandle(ctx, h, event); err != nil {
				b.logger.Error("subscriber failed",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.String("subscriber", fmt.Sprintf("%T", h)),
					zap.Error(err),
				)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers handler for eventTypes, or for handler.EventTypes()
// when none are given
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("subscribed", zap.String("subscriber", fmt.Sprintf("%T", handler)), zap.Strings("event_types", eventTypes))
}

func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

func (b *InMemoryEventBus) Start(context.Context) error {
	b.running.Store(true)
	b.logger.Info("event bus started")
	return nil
}

// Stop only flips the running flag; Publish holds no background work
func (b *InMemoryEventBus) Stop(context.Context) error {
	b.running.Store(false)
	b.logger.Info("event bus stopped")
	return nil
}

func (b *InMemoryEventBus) IsRunning() bool {
	return b.running.Load()
}

func safeHandle(ctx context.Context, h shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber %T panicked on %s: %v", h, event.EventType(), r)
		}
	}()
	return h.Handle(ctx, event)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
