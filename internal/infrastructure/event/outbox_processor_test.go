package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockOutboxRepository is an in-memory OutboxRepository for processor tests
type mockOutboxRepository struct {
	mu               sync.Mutex
	entries          map[uuid.UUID]*shared.OutboxEntry
	findPendingFn    func(ctx context.Context, limit int) ([]*shared.OutboxEntry, error)
	markProcessingFn func(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error)
	deleteFn         func(ctx context.Context, before time.Time) (int64, error)
}

func newMockOutboxRepository() *mockOutboxRepository {
	return &mockOutboxRepository{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
}

func (r *mockOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *mockOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	if r.findPendingFn != nil {
		return r.findPendingFn(ctx, limit)
	}
	return r.find(func(e *shared.OutboxEntry) bool { return e.Status == shared.OutboxStatusPending }, limit), nil
}

func (r *mockOutboxRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	return r.find(func(e *shared.OutboxEntry) bool {
		return e.Status == shared.OutboxStatusFailed && e.NextRetryAt != nil && !e.NextRetryAt.After(before)
	}, limit), nil
}

func (r *mockOutboxRepository) find(match func(*shared.OutboxEntry) bool, limit int) []*shared.OutboxEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		if match(e) {
			result = append(result, e)
			if len(result) >= limit {
				break
			}
		}
	}
	return result
}

func (r *mockOutboxRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	if r.markProcessingFn != nil {
		return r.markProcessingFn(ctx, ids)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*shared.OutboxEntry
	for _, id := range ids {
		if e, ok := r.entries[id]; ok && e.MarkProcessing() == nil {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *mockOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID] = entry
	return nil
}

func (r *mockOutboxRepository) ReleaseStaleProcessing(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var released int64
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusProcessing && e.UpdatedAt.Before(before) && e.ReleaseClaim() == nil {
			released++
		}
	}
	return released, nil
}

func (r *mockOutboxRepository) DeleteSentBefore(ctx context.Context, before time.Time) (int64, error) {
	if r.deleteFn != nil {
		return r.deleteFn(ctx, before)
	}
	return 0, nil
}

func (r *mockOutboxRepository) status(id uuid.UUID) shared.OutboxEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.entries[id]
}

func newProcessorFixture(t *testing.T) (*mockOutboxRepository, *InMemoryEventBus, *EventSerializer) {
	t.Helper()
	serializer := NewEventSerializer()
	serializer.Register("TestEvent", &testEvent{})
	return newMockOutboxRepository(), NewInMemoryEventBus(zap.NewNop()), serializer
}

func saveTestEntry(t *testing.T, repo *mockOutboxRepository, serializer *EventSerializer) *shared.OutboxEntry {
	t.Helper()
	event := newTestEvent("TestEvent", uuid.New())
	payload, err := serializer.Serialize(event)
	require.NoError(t, err)
	entry := shared.NewOutboxEntry(event, payload)
	require.NoError(t, repo.Save(context.Background(), entry))
	return entry
}

func TestOutboxProcessor_ProcessBatch_DeliversPending(t *testing.T) {
	repo, bus, serializer := newProcessorFixture(t)
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler)

	entry := saveTestEntry(t, repo, serializer)

	processor := NewOutboxProcessor(repo, bus, serializer, DefaultOutboxProcessorConfig(), zap.NewNop())
	delivered := processor.ProcessBatch(context.Background())

	assert.Equal(t, 1, delivered)
	require.Len(t, handler.getHandled(), 1)
	assert.Equal(t, entry.EventID, handler.getHandled()[0].EventID())
	assert.Equal(t, shared.OutboxStatusSent, repo.status(entry.ID).Status)
}

func TestOutboxProcessor_HandlerErrorSchedulesRetry(t *testing.T) {
	repo, bus, serializer := newProcessorFixture(t)
	handler := newTestHandler("TestEvent")
	handler.setError(errors.New("audit sink unavailable"))
	bus.Subscribe(handler)

	entry := saveTestEntry(t, repo, serializer)

	processor := NewOutboxProcessor(repo, bus, serializer, DefaultOutboxProcessorConfig(), zap.NewNop())
	assert.Equal(t, 0, processor.ProcessBatch(context.Background()))

	got := repo.status(entry.ID)
	assert.Equal(t, shared.OutboxStatusFailed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.LastError, "audit sink unavailable")
	require.NotNil(t, got.NextRetryAt)
}

func TestOutboxProcessor_ExhaustedRetriesGoDead(t *testing.T) {
	repo, bus, serializer := newProcessorFixture(t)
	handler := newTestHandler("TestEvent")
	handler.setError(errors.New("still failing"))
	bus.Subscribe(handler)

	entry := saveTestEntry(t, repo, serializer)

	cfg := DefaultOutboxProcessorConfig()
	cfg.MaxRetries = 1
	processor := NewOutboxProcessor(repo, bus, serializer, cfg, zap.NewNop())
	processor.ProcessBatch(context.Background())

	assert.Equal(t, shared.OutboxStatusDead, repo.status(entry.ID).Status)
}

func TestOutboxProcessor_DeserializationError(t *testing.T) {
	repo, bus, _ := newProcessorFixture(t)
	serializer := NewEventSerializer()

	event := newTestEvent("UnregisteredEvent", uuid.New())
	entry := shared.NewOutboxEntry(event, []byte(`{"type":"UnregisteredEvent"}`))
	require.NoError(t, repo.Save(context.Background(), entry))

	processor := NewOutboxProcessor(repo, bus, serializer, DefaultOutboxProcessorConfig(), zap.NewNop())
	processor.ProcessBatch(context.Background())

	got := repo.status(entry.ID)
	assert.Equal(t, shared.OutboxStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "unknown event type")
}

func TestOutboxProcessor_FindPendingErrorStopsBatch(t *testing.T) {
	repo, bus, serializer := newProcessorFixture(t)
	repo.findPendingFn = func(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
		return nil, errors.New("connection reset")
	}
	called := false
	repo.markProcessingFn = func(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
		called = true
		return nil, nil
	}

	processor := NewOutboxProcessor(repo, bus, serializer, DefaultOutboxProcessorConfig(), zap.NewNop())

	assert.Equal(t, 0, processor.ProcessBatch(context.Background()))
	assert.False(t, called)
}

func TestOutboxProcessor_StartStop(t *testing.T) {
	repo, bus, serializer := newProcessorFixture(t)
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler)
	entry := saveTestEntry(t, repo, serializer)

	cfg := DefaultOutboxProcessorConfig()
	cfg.PollInterval = 20 * time.Millisecond
	processor := NewOutboxProcessor(repo, bus, serializer, cfg, zap.NewNop())

	require.NoError(t, processor.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return repo.status(entry.ID).Status == shared.OutboxStatusSent
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, processor.Stop(stopCtx))
	assert.Len(t, handler.getHandled(), 1)
}

func TestOutboxProcessor_Cleanup(t *testing.T) {
	repo, bus, serializer := newProcessorFixture(t)
	var cutoff time.Time
	repo.deleteFn = func(ctx context.Context, before time.Time) (int64, error) {
		cutoff = before
		return 3, nil
	}

	cfg := DefaultOutboxProcessorConfig()
	cfg.CleanupRetention = 48 * time.Hour
	processor := NewOutboxProcessor(repo, bus, serializer, cfg, zap.NewNop())

	assert.Equal(t, int64(3), processor.Cleanup(context.Background()))
	assert.WithinDuration(t, time.Now().Add(-48*time.Hour), cutoff, time.Minute)
}

func TestDefaultOutboxProcessorConfig(t *testing.T) {
	cfg := DefaultOutboxProcessorConfig()

	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, shared.DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.ProcessingTimeout)
	assert.True(t, cfg.CleanupEnabled)
	assert.Equal(t, 7*24*time.Hour, cfg.CleanupRetention)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
}

func TestOutboxProcessor_StartRejectsMisuse(t *testing.T) {
	repo, bus, serializer := newProcessorFixture(t)

	cfg := DefaultOutboxProcessorConfig()
	cfg.PollInterval = 0
	assert.Error(t, NewOutboxProcessor(repo, bus, serializer, cfg, zap.NewNop()).Start(context.Background()))

	cfg.PollInterval = time.Hour
	cfg.CleanupEnabled = false
	processor := NewOutboxProcessor(repo, bus, serializer, cfg, zap.NewNop())
	require.NoError(t, processor.Start(context.Background()))
	assert.Error(t, processor.Start(context.Background()), "second start")
	require.NoError(t, processor.Stop(context.Background()))
	require.NoError(t, processor.Stop(context.Background()), "stop is repeatable")
}

func TestOutboxProcessor_StopBeforeStart(t *testing.T) {
	repo, bus, serializer := newProcessorFixture(t)
	processor := NewOutboxProcessor(repo, bus, serializer, DefaultOutboxProcessorConfig(), zap.NewNop())
	assert.NoError(t, processor.Stop(context.Background()))
}

func TestOutboxProcessor_RedeliversAbandonedClaim(t *testing.T) {
	repo, bus, serializer := newProcessorFixture(t)
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler)
	entry := saveTestEntry(t, repo, serializer)

	// a processor claimed the entry a day ago and never came back
	require.NoError(t, entry.MarkProcessing())
	entry.UpdatedAt = time.Now().Add(-24 * time.Hour)

	processor := NewOutboxProcessor(repo, bus, serializer, DefaultOutboxProcessorConfig(), zap.NewNop())

	assert.Equal(t, 1, processor.ProcessBatch(context.Background()))
	assert.Equal(t, shared.OutboxStatusSent, repo.status(entry.ID).Status)
	require.Len(t, handler.getHandled(), 1)
	assert.Equal(t, entry.EventID, handler.getHandled()[0].EventID())
}

func TestOutboxProcessor_LeavesFreshClaimAlone(t *testing.T) {
	repo, bus, serializer := newProcessorFixture(t)
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler)
	entry := saveTestEntry(t, repo, serializer)
	require.NoError(t, entry.MarkProcessing())

	processor := NewOutboxProcessor(repo, bus, serializer, DefaultOutboxProcessorConfig(), zap.NewNop())

	assert.Equal(t, 0, processor.ProcessBatch(context.Background()))
	assert.Equal(t, shared.OutboxStatusProcessing, repo.status(entry.ID).Status)
	assert.Empty(t, handler.getHandled())
}
