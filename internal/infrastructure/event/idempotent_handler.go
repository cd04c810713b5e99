package event

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/school/feeledger/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotencyConfig controls de-duplication of redelivered ledger events
type IdempotencyConfig struct {
	Disabled bool
	// TTL is how long a handled event id is remembered. It must outlive the
	// outbox retry window.
	TTL time.Duration
	// KeyPrefix keeps event ids apart from Idempotency-Key request keys in
	// the shared store
	KeyPrefix string
}

func (c IdempotencyConfig) withDefaults() IdempotencyConfig {
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "event:"
	}
	return c
}

// IdempotencyStats counts what an IdempotentHandler did with deliveries
type IdempotencyStats struct {
	Processed  int64 `json:"processed"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// IdempotentHandler lets the audit subscriber see each event once even when
// the outbox delivers it again after a crash between publish and MarkSent
type IdempotentHandler struct {
	inner  shared.EventHandler
	store  shared.IdempotencyStore
	cfg    IdempotencyConfig
	logger *zap.Logger

	processed, duplicates, failed atomic.Int64
}

// NewIdempotentHandler wraps inner with event id de-duplication
func NewIdempotentHandler(inner shared.EventHandler, store shared.IdempotencyStore, cfg IdempotencyConfig, logger *zap.Logger) *IdempotentHandler {
	return &IdempotentHandler{inner: inner, store: store, cfg: cfg.withDefaults(), logger: logger}
}

// EventTypes returns the wrapped handler's event types
func (h *IdempotentHandler) EventTypes() []string {
	return h.inner.EventTypes()
}

// Handle claims the event id, then delegates. When the delegate fails the
// claim is released so the outbox retry is not taken for a duplicate. A store
// error delivers the event unclaimed: a repeated audit line beats a lost one.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if h.cfg.Disabled {
		return h.deliver(ctx, event, "")
	}

	key := h.cfg.KeyPrefix + event.EventID().String()
	fresh, err := h.store.MarkProcessed(ctx, key, h.cfg.TTL)
	if err != nil {
		h.logger.Warn("idempotency store unavailable, delivering unclaimed",
			zap.String("event_id", event.EventID().String()),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		return h.deliver(ctx, event, "")
	}
	if !fresh {
		h.duplicates.Add(1)
		h.logger.Debug("duplicate event skipped",
			zap.String("event_id", event.EventID().String()),
			zap.String("event_type", event.EventType()),
		)
		return nil
	}
	return h.deliver(ctx, event, key)
}

func (h *IdempotentHandler) deliver(ctx context.Context, event shared.DomainEvent, claim string) error {
	err := h.inner.Handle(ctx, event)
	if err == nil {
		h.processed.Add(1)
		return nil
	}
	h.failed.Add(1)
	if claim != "" {
		if relErr := h.store.Release(ctx, claim); relErr != nil {
			h.logger.Warn("failed to release event claim",
				zap.String("event_id", event.EventID().String()),
				zap.Error(relErr),
			)
		}
	}
	return err
}

// Stats returns a snapshot of the counters
func (h *IdempotentHandler) Stats() IdempotencyStats {
	return IdempotencyStats{
		Processed:  h.processed.Load(),
		Duplicates: h.duplicates.Load(),
		Failed:     h.failed.Load(),
	}
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
