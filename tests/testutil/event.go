// Package testutil holds helpers shared by the ledger's integration tests.
package testutil

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/stretchr/testify/require"
)

// EventRecorder is an event handler that keeps every delivered event
type EventRecorder struct {
	mu     sync.Mutex
	types  []string
	events []shared.DomainEvent
	err    error
}

// NewEventRecorder subscribes to eventTypes, or to everything when empty
func NewEventRecorder(eventTypes ...string) *EventRecorder {
	return &EventRecorder{types: eventTypes}
}

func (r *EventRecorder) EventTypes() []string { return r.types }

// Handle stores event, then fails with the error set by FailWith if any
func (r *EventRecorder) Handle(_ context.Context, event shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

// FailWith makes later deliveries return err. Nil restores success.
func (r *EventRecorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Events returns a snapshot of the delivered events in order
func (r *EventRecorder) Events() []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Count returns how many events were delivered
func (r *EventRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Last returns the most recent event of eventType, or nil
func (r *EventRecorder) Last(eventType string) shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].EventType() == eventType {
			return r.events[i]
		}
	}
	return nil
}

// RequireEvents blocks until at least n events arrived, failing the test
// after timeout
func RequireEvents(t *testing.T, r *EventRecorder, n int, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool { return r.Count() >= n }, timeout, 10*time.Millisecond,
		"expected %d events", n)
}

// BillEvent is a minimal event raised on a bill
type BillEvent struct {
	shared.BaseDomainEvent
	Note string `json:"note"`
}

// NewBillEvent creates an event of eventType on billID
func NewBillEvent(eventType string, billID uuid.UUID) *BillEvent {
	return &BillEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Bill", billID, uuid.New()),
		Note:            eventType,
	}
}

var _ shared.EventHandler = (*EventRecorder)(nil)
