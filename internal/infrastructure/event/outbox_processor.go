package event

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/shared"
	"go.uber.org/zap"
)

// OutboxProcessorConfig tunes delivery of committed ledger events
type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// MaxRetries overrides the budget stored on each entry when positive
	MaxRetries int
	// ProcessingTimeout releases entries claimed longer ago than this back
	// to PENDING; zero never releases
	ProcessingTimeout time.Duration

	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxProcessorConfig polls every 5s and keeps sent entries a week
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:         100,
		PollInterval:      5 * time.Second,
		MaxRetries:        shared.DefaultMaxRetries,
		ProcessingTimeout: 5 * time.Minute,
		CleanupEnabled:    true,
		CleanupRetention:  7 * 24 * time.Hour,
		CleanupInterval:   time.Hour,
	}
}

// OutboxProcessor moves committed outbox entries onto the event bus.
// Claims use SKIP LOCKED, so several server instances may run one each.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	bus        shared.EventPublisher
	serializer *EventSerializer
	cfg        OutboxProcessorConfig
	logger     *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewOutboxProcessor(
	repo shared.OutboxRepository,
	bus shared.EventPublisher,
	serializer *EventSerializer,
	cfg OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	return &OutboxProcessor{
		repo:       repo,
		bus:        bus,
		serializer: serializer,
		cfg:        cfg,
		logger:     logger.Named("outbox"),
	}
}

// Start runs the poll and cleanup timers in one background goroutine
func (p *OutboxProcessor) Start(ctx context.Context) error {
	if p.done != nil {
		return fmt.Errorf("outbox processor already started")
	}
	if p.cfg.PollInterval <= 0 {
		return fmt.Errorf("outbox poll interval must be positive, got %s", p.cfg.PollInterval)
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx)

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Duration("poll_interval", p.cfg.PollInterval),
		zap.Bool("cleanup", p.cleanupOn()),
	)
	return nil
}

// Stop cancels the loop and waits for the batch in progress, or for ctx
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.done == nil {
		return nil
	}
	p.cancel()
	select {
	case <-p.done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) cleanupOn() bool {
	return p.cfg.CleanupEnabled && p.cfg.CleanupInterval > 0
}

func (p *OutboxProcessor) run(ctx context.Context) {
	defer close(p.done)

	poll := time.NewTicker(p.cfg.PollInterval)
	defer poll.Stop()

	// a nil channel never fires
	var cleanup <-chan time.Time
	if p.cleanupOn() {
		t := time.NewTicker(p.cfg.CleanupInterval)
		defer t.Stop()
		cleanup = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			p.ProcessBatch(ctx)
		case <-cleanup:
			p.Cleanup(ctx)
		}
	}
}

// ProcessBatch releases stale claims, then claims and delivers up to
// BatchSize pending entries and up to BatchSize failed entries whose retry
// is due. It returns how many were delivered.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) int {
	p.releaseStale(ctx)

	pending, err := p.repo.FindPending(ctx, p.cfg.BatchSize)
	if err != nil {
		p.logger.Error("failed to load pending entries", zap.Error(err))
		return 0
	}
	delivered := p.claimAndDeliver(ctx, pending)

	due, err := p.repo.FindRetryable(ctx, time.Now(), p.cfg.BatchSize)
	if err != nil {
		p.logger.Error("failed to load retryable entries", zap.Error(err))
		return delivered
	}
	return delivered + p.claimAndDeliver(ctx, due)
}

// releaseStale requeues entries whose processor crashed or lost the database
// between claiming and recording the outcome
func (p *OutboxProcessor) releaseStale(ctx context.Context) {
	if p.cfg.ProcessingTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-p.cfg.ProcessingTimeout)
	released, err := p.repo.ReleaseStaleProcessing(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to release stale claims", zap.Error(err))
		return
	}
	if released > 0 {
		p.logger.Warn("released stale claims", zap.Int64("entries", released), zap.Time("claimed_before", cutoff))
	}
}

func (p *OutboxProcessor) claimAndDeliver(ctx context.Context, candidates []*shared.OutboxEntry) int {
	if len(candidates) == 0 {
		return 0
	}
	ids := make([]uuid.UUID, 0, len(candidates))
	for _, e := range candidates {
		ids = append(ids, e.ID)
	}

	// another instance may have won some of them
	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("failed to claim entries", zap.Int("candidates", len(ids)), zap.Error(err))
		return 0
	}

	delivered := 0
	for _, entry := range claimed {
		if p.cfg.MaxRetries > 0 {
			entry.MaxRetries = p.cfg.MaxRetries
		}
		if err := p.deliver(ctx, entry); err != nil {
			p.recordFailure(ctx, entry, err)
			continue
		}
		entry.MarkSent()
		if err := p.repo.Update(ctx, entry); err != nil {
			// delivered but still PROCESSING: releaseStale requeues it after
			// ProcessingTimeout and subscribers de-duplicate by event id
			p.logger.Error("failed to mark entry sent", entryFields(entry, zap.Error(err))...)
			continue
		}
		delivered++
	}
	return delivered
}

func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry) error {
	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := p.bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	p.logger.Debug("event delivered", entryFields(entry)...)
	return nil
}

func (p *OutboxProcessor) recordFailure(ctx context.Context, entry *shared.OutboxEntry, cause error) {
	entry.MarkFailed(cause.Error())

	if entry.IsDead() {
		p.logger.Warn("event dead-lettered", entryFields(entry,
			zap.String("aggregate_type", entry.AggregateType),
			zap.String("aggregate_id", entry.AggregateID.String()),
			zap.Int("attempts", entry.RetryCount),
			zap.String("last_error", entry.LastError),
		)...)
	} else {
		p.logger.Error("event delivery failed", entryFields(entry,
			zap.Int("attempts", entry.RetryCount),
			zap.Timep("next_retry_at", entry.NextRetryAt),
			zap.Error(cause),
		)...)
	}

	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("failed to record delivery failure", entryFields(entry, zap.Error(err))...)
	}
}

// Cleanup deletes sent entries older than CleanupRetention
func (p *OutboxProcessor) Cleanup(ctx context.Context) int64 {
	cutoff := time.Now().Add(-p.cfg.CleanupRetention)
	deleted, err := p.repo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("outbox cleanup failed", zap.Error(err))
		return 0
	}
	if deleted > 0 {
		p.logger.Info("outbox cleaned", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
	return deleted
}

func entryFields(entry *shared.OutboxEntry, extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
	}, extra...)
}
