package fees

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// BillItem is a snapshot of one selected catalog line at generation time
type BillItem struct {
	ID             uuid.UUID
	BillID         uuid.UUID
	FeeStructureID uuid.UUID
	FeeCategoryID  uuid.UUID
	Description    string
	Amount         decimal.Decimal
}

// Bill is a student's aggregated charge for a set of fee structure lines in
// one academic year. After generation only the payment ledger mutates it.
type Bill struct {
	shared.BaseAggregateRoot
	BillNumber     string
	StudentID      uuid.UUID
	AcademicYearID uuid.UUID
	Items          []BillItem
	TotalAmount    decimal.Decimal
	PaidAmount     decimal.Decimal
	Balance        decimal.Decimal
	Status         BillStatus
	IssuedDate     time.Time
	CreatedBy      uuid.UUID
}

// BillSnapshot is the audit view of a bill's money fields
type BillSnapshot struct {
	BillID      uuid.UUID       `json:"bill_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Balance     decimal.Decimal `json:"balance"`
	Status      BillStatus      `json:"status"`
	Version     int             `json:"version"`
}

// NewBill builds an unpaid bill from catalog lines already validated against
// the student's grade and the academic year.
func NewBill(student *Student, year *AcademicYear, lines []FeeStructureLine, issuedDate time.Time, createdBy uuid.UUID) (*Bill, error) {
	if student == nil || year == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "student and academic year are required")
	}
	if len(lines) == 0 {
		return nil, NewValidationError("fee_structure_ids", "at least one fee structure must be selected")
	}
	if createdBy == uuid.Nil {
		return nil, NewValidationError("created_by", "acting user is required")
	}

	verr := &ValidationError{}
	for _, l := range lines {
		if !l.AppliesTo(student.GradeID, year.ID) {
			verr.Add("fee_structure_ids", fmt.Sprintf("fee structure %s does not apply to the student's grade and academic year", l.ID))
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if issuedDate.IsZero() {
		issuedDate = time.Now()
	}

	bill := &Bill{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		BillNumber:        NewBillNumber(issuedDate),
		StudentID:         student.ID,
		AcademicYearID:    year.ID,
		IssuedDate:        issuedDate,
		CreatedBy:         createdBy,
		PaidAmount:        decimal.Zero,
	}

	total := decimal.Zero
	bill.Items = make([]BillItem, 0, len(lines))
	for _, l := range lines {
		total = total.Add(l.Amount)
		bill.Items = append(bill.Items, BillItem{
			ID:             uuid.New(),
			BillID:         bill.ID,
			FeeStructureID: l.ID,
			FeeCategoryID:  l.FeeCategoryID,
			Description:    l.CategoryName,
			Amount:         l.Amount,
		})
	}
	if !total.IsPositive() {
		return nil, NewValidationError("fee_structure_ids", "selected fee structures total zero")
	}

	bill.TotalAmount = total
	bill.Balance = total
	bill.Status = BillStatusUnpaid

	bill.AddDomainEvent(NewBillGeneratedEvent(bill))
	return bill, nil
}

// Snapshot captures the money fields for audit
func (b *Bill) Snapshot() BillSnapshot {
	return BillSnapshot{
		BillID:      b.ID,
		TotalAmount: b.TotalAmount,
		PaidAmount:  b.PaidAmount,
		Balance:     b.Balance,
		Status:      b.Status,
		Version:     b.Version,
	}
}

// ApplyPayment posts a payment to the bill. The caller must hold the bill's
// row lock so Balance is the committed value. An amount equal to the balance
// settles the bill; anything above it is an OverpaymentError and leaves the
// bill untouched.
func (b *Bill) ApplyPayment(p *Payment) error {
	if p == nil {
		return shared.NewDomainError("INVALID_INPUT", "payment is required")
	}
	if p.BillID != b.ID {
		return NewValidationError("bill_id", "payment does not belong to this bill")
	}
	if !p.AmountPaid.IsPositive() {
		return NewValidationError("amount", "must be greater than zero")
	}
	if p.AmountPaid.GreaterThan(b.Balance) {
		return &OverpaymentError{BillID: b.ID, Amount: p.AmountPaid, Balance: b.Balance}
	}

	before := b.Snapshot()

	paid := b.PaidAmount.Add(p.AmountPaid)
	balance := b.TotalAmount.Sub(paid)
	next := DeriveStatus(paid, balance)
	if !b.CanTransitionTo(next) {
		return &ConsistencyError{BillID: b.ID, Detail: fmt.Sprintf("status would move back from %s to %s", b.Status, next)}
	}

	b.PaidAmount = paid
	b.Balance = balance
	b.Status = next
	b.Touch()
	b.IncrementVersion()

	b.AddDomainEvent(NewPaymentRecordedEvent(b, p, before))
	return nil
}

// CheckInvariants verifies the bill against the sum of its stored payments.
// It detects violations and reports them; it never repairs the bill.
func (b *Bill) CheckInvariants(sumOfPayments decimal.Decimal) error {
	switch {
	case !b.Balance.Equal(b.TotalAmount.Sub(b.PaidAmount)):
		return &ConsistencyError{BillID: b.ID, Detail: fmt.Sprintf("balance %s != total %s - paid %s",
			b.Balance, b.TotalAmount, b.PaidAmount)}
	case !b.PaidAmount.Equal(sumOfPayments):
		return &ConsistencyError{BillID: b.ID, Detail: fmt.Sprintf("paid %s != sum of payments %s",
			b.PaidAmount, sumOfPayments)}
	case b.Balance.IsNegative():
		return &ConsistencyError{BillID: b.ID, Detail: "negative balance " + b.Balance.String()}
	case b.Status != DeriveStatus(b.PaidAmount, b.Balance):
		return &ConsistencyError{BillID: b.ID, Detail: fmt.Sprintf("status %s does not match paid %s / balance %s",
			b.Status, b.PaidAmount, b.Balance)}
	}
	return nil
}

// CanTransitionTo reports whether moving from the bill's current status to
// next keeps the unpaid → partial → paid order.
func (b *Bill) CanTransitionTo(next BillStatus) bool {
	return next.IsValid() && next.rank() >= b.Status.rank()
}
