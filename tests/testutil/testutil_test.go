package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRecorder(t *testing.T) {
	r := NewEventRecorder("PaymentRecorded", "ReceiptIssued")
	assert.Equal(t, []string{"PaymentRecorded", "ReceiptIssued"}, r.EventTypes())
	assert.Nil(t, r.Last("PaymentRecorded"))

	first, second := uuid.New(), uuid.New()
	require.NoError(t, r.Handle(context.Background(), NewBillEvent("PaymentRecorded", first)))
	require.NoError(t, r.Handle(context.Background(), NewBillEvent("ReceiptIssued", first)))
	require.NoError(t, r.Handle(context.Background(), NewBillEvent("PaymentRecorded", second)))

	assert.Equal(t, 3, r.Count())
	assert.Equal(t, second, r.Last("PaymentRecorded").AggregateID())
	assert.Equal(t, "ReceiptIssued", r.Events()[1].EventType())

	unavailable := errors.New("audit sink unavailable")
	r.FailWith(unavailable)
	assert.ErrorIs(t, r.Handle(context.Background(), NewBillEvent("PaymentRecorded", first)), unavailable)
	assert.Equal(t, 4, r.Count())

	r.FailWith(nil)
	assert.NoError(t, r.Handle(context.Background(), NewBillEvent("PaymentRecorded", first)))
}

func TestEventRecorder_EventsIsSnapshot(t *testing.T) {
	r := NewEventRecorder()
	require.NoError(t, r.Handle(context.Background(), NewBillEvent("BillGenerated", uuid.New())))

	events := r.Events()
	events[0] = nil
	assert.NotNil(t, r.Events()[0])
}

func TestRequireEvents(t *testing.T) {
	r := NewEventRecorder("BillGenerated")
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = r.Handle(context.Background(), NewBillEvent("BillGenerated", uuid.New()))
	}()
	RequireEvents(t, r, 1, time.Second)
}
