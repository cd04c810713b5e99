package event

import (
	"context"

	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/school/feeledger/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// AuditHandler writes one structured audit line per ledger event
type AuditHandler struct {
	logger *zap.Logger
}

// NewAuditHandler creates an AuditHandler logging under the audit logger name
func NewAuditHandler(base *zap.Logger) *AuditHandler {
	return &AuditHandler{logger: logger.Audit(base)}
}

// EventTypes returns the ledger event types
func (h *AuditHandler) EventTypes() []string {
	return []string{
		fees.EventTypeBillGenerated,
		fees.EventTypePaymentRecorded,
		fees.EventTypeReceiptIssued,
		fees.EventTypeFeeStructureCreated,
	}
}

// Handle logs the event with its before/after state where it has one
func (h *AuditHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.String("actor_id", event.ActorID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	}

	switch e := event.(type) {
	case *fees.BillGeneratedEvent:
		fields = append(fields,
			zap.String("bill_number", e.BillNumber),
			zap.String("student_id", e.StudentID.String()),
			zap.String("total_amount", e.TotalAmount.String()),
			zap.Int("items", len(e.FeeStructureIDs)),
			zap.Any("after", e.After),
		)
	case *fees.PaymentRecordedEvent:
		fields = append(fields,
			zap.String("payment_id", e.PaymentID.String()),
			zap.String("amount", e.Amount.String()),
			zap.String("method", string(e.Method)),
			zap.String("transaction_reference", e.TransactionReference),
			zap.Any("before", e.Before),
			zap.Any("after", e.After),
		)
	case *fees.ReceiptIssuedEvent:
		fields = append(fields,
			zap.String("receipt_number", e.ReceiptNumber),
			zap.String("payment_id", e.PaymentID.String()),
			zap.String("amount", e.Amount.String()),
		)
	case *fees.FeeStructureCreatedEvent:
		fields = append(fields,
			zap.String("fee_category_id", e.FeeCategoryID.String()),
			zap.String("grade_id", e.GradeID.String()),
			zap.String("academic_year_id", e.AcademicYearID.String()),
			zap.String("amount", e.Amount.String()),
		)
	}

	h.logger.Info("ledger event", fields...)
	return nil
}

var _ shared.EventHandler = (*AuditHandler)(nil)
