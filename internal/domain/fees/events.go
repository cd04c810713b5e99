package fees

import (
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type names
const (
	EventTypeBillGenerated       = "BillGenerated"
	EventTypePaymentRecorded     = "PaymentRecorded"
	EventTypeReceiptIssued       = "ReceiptIssued"
	EventTypeFeeStructureCreated = "FeeStructureCreated"
)

// Aggregate type names
const (
	AggregateTypeBill         = "Bill"
	AggregateTypePayment      = "Payment"
	AggregateTypeFeeStructure = "FeeStructure"
)

// BillGeneratedEvent is raised when a bill is created from catalog lines
type BillGeneratedEvent struct {
	shared.BaseDomainEvent
	BillID          uuid.UUID       `json:"bill_id"`
	BillNumber      string          `json:"bill_number"`
	StudentID       uuid.UUID       `json:"student_id"`
	AcademicYearID  uuid.UUID       `json:"academic_year_id"`
	FeeStructureIDs []uuid.UUID     `json:"fee_structure_ids"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	IssuedDate      time.Time       `json:"issued_date"`
	After           BillSnapshot    `json:"after"`
}

// EventType returns the event type name
func (e *BillGeneratedEvent) EventType() string {
	return EventTypeBillGenerated
}

// NewBillGeneratedEvent creates a BillGeneratedEvent
func NewBillGeneratedEvent(b *Bill) *BillGeneratedEvent {
	ids := make([]uuid.UUID, 0, len(b.Items))
	for _, it := range b.Items {
		ids = append(ids, it.FeeStructureID)
	}
	return &BillGeneratedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBillGenerated, AggregateTypeBill, b.ID, b.CreatedBy),
		BillID:          b.ID,
		BillNumber:      b.BillNumber,
		StudentID:       b.StudentID,
		AcademicYearID:  b.AcademicYearID,
		FeeStructureIDs: ids,
		TotalAmount:     b.TotalAmount,
		IssuedDate:      b.IssuedDate,
		After: BillSnapshot{
			BillID:      b.ID,
			TotalAmount: b.TotalAmount,
			PaidAmount:  decimal.Zero,
			Balance:     b.TotalAmount,
			Status:      BillStatusUnpaid,
			Version:     b.Version,
		},
	}
}

// PaymentRecordedEvent carries the bill state before and after a payment
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	PaymentID            uuid.UUID       `json:"payment_id"`
	BillID               uuid.UUID       `json:"bill_id"`
	StudentID            uuid.UUID       `json:"student_id"`
	Amount               decimal.Decimal `json:"amount"`
	Method               PaymentMethod   `json:"method"`
	TransactionReference string          `json:"transaction_reference"`
	PaymentDate          time.Time       `json:"payment_date"`
	ReceivedBy           uuid.UUID       `json:"received_by"`
	Before               BillSnapshot    `json:"before"`
	After                BillSnapshot    `json:"after"`
}

// EventType returns the event type name
func (e *PaymentRecordedEvent) EventType() string {
	return EventTypePaymentRecorded
}

// NewPaymentRecordedEvent creates a PaymentRecordedEvent. b must already
// reflect the payment.
func NewPaymentRecordedEvent(b *Bill, p *Payment, before BillSnapshot) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent:      shared.NewBaseDomainEvent(EventTypePaymentRecorded, AggregateTypeBill, b.ID, p.CreatedBy),
		PaymentID:            p.ID,
		BillID:               b.ID,
		StudentID:            b.StudentID,
		Amount:               p.AmountPaid,
		Method:               p.Method,
		TransactionReference: p.TransactionReference,
		PaymentDate:          p.PaymentDate,
		ReceivedBy:           p.ReceivedBy,
		Before:               before,
		After:                b.Snapshot(),
	}
}

// ReceiptIssuedEvent is raised when a receipt is issued for a payment
type ReceiptIssuedEvent struct {
	shared.BaseDomainEvent
	ReceiptID     uuid.UUID       `json:"receipt_id"`
	ReceiptNumber string          `json:"receipt_number"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	BillID        uuid.UUID       `json:"bill_id"`
	Amount        decimal.Decimal `json:"amount"`
	IssuedAt      time.Time       `json:"issued_at"`
}

// EventType returns the event type name
func (e *ReceiptIssuedEvent) EventType() string {
	return EventTypeReceiptIssued
}

// NewReceiptIssuedEvent creates a ReceiptIssuedEvent
func NewReceiptIssuedEvent(r *Receipt, p *Payment) *ReceiptIssuedEvent {
	return &ReceiptIssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReceiptIssued, AggregateTypePayment, p.ID, r.GeneratedBy),
		ReceiptID:       r.ID,
		ReceiptNumber:   r.ReceiptNumber,
		PaymentID:       p.ID,
		BillID:          p.BillID,
		Amount:          p.AmountPaid,
		IssuedAt:        r.IssuedAt,
	}
}

// FeeStructureCreatedEvent is raised when a catalog line is added
type FeeStructureCreatedEvent struct {
	shared.BaseDomainEvent
	FeeStructureID uuid.UUID       `json:"fee_structure_id"`
	FeeCategoryID  uuid.UUID       `json:"fee_category_id"`
	GradeID        uuid.UUID       `json:"grade_id"`
	AcademicYearID uuid.UUID       `json:"academic_year_id"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
}

// EventType returns the event type name
func (e *FeeStructureCreatedEvent) EventType() string {
	return EventTypeFeeStructureCreated
}

// NewFeeStructureCreatedEvent creates a FeeStructureCreatedEvent
func NewFeeStructureCreatedEvent(fs *FeeStructure, actor uuid.UUID) *FeeStructureCreatedEvent {
	return &FeeStructureCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeFeeStructureCreated, AggregateTypeFeeStructure, fs.ID, actor),
		FeeStructureID:  fs.ID,
		FeeCategoryID:   fs.FeeCategoryID,
		GradeID:         fs.GradeID,
		AcademicYearID:  fs.AcademicYearID,
		Amount:          fs.Amount,
		DueDate:         fs.DueDate,
	}
}
