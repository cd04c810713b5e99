package event

import (
	"github.com/school/feeledger/internal/domain/fees"
)

// RegisterFeeEvents registers all ledger event types with the serializer so
// outbox payloads can be rebuilt into typed events.
func RegisterFeeEvents(s *EventSerializer) {
	s.Register(fees.EventTypeBillGenerated, &fees.BillGeneratedEvent{})
	s.Register(fees.EventTypePaymentRecorded, &fees.PaymentRecordedEvent{})
	s.Register(fees.EventTypeReceiptIssued, &fees.ReceiptIssuedEvent{})
	s.Register(fees.EventTypeFeeStructureCreated, &fees.FeeStructureCreatedEvent{})
}
