package fees

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ReferenceRepository reads the school reference data billing depends on.
// Each finder returns a *NotFoundError when the row does not exist.
type ReferenceRepository interface {
	FindStudent(ctx context.Context, id uuid.UUID) (*Student, error)
	FindAcademicYear(ctx context.Context, id uuid.UUID) (*AcademicYear, error)
	FindGrade(ctx context.Context, id uuid.UUID) (*Grade, error)
	FindFeeCategory(ctx context.Context, id uuid.UUID) (*FeeCategory, error)
}

// FeeStructureRepository defines the interface for the fee structure catalog
type FeeStructureRepository interface {
	// FindByID finds a fee structure by ID
	FindByID(ctx context.Context, id uuid.UUID) (*FeeStructure, error)

	// FindLinesByScope returns every line priced for the grade and year,
	// ordered by category name. Returns an empty slice when none exist.
	FindLinesByScope(ctx context.Context, gradeID, academicYearID uuid.UUID) ([]FeeStructureLine, error)

	// FindLinesByIDs returns the lines with the given IDs. Missing IDs are
	// simply absent from the result.
	FindLinesByIDs(ctx context.Context, ids []uuid.UUID) ([]FeeStructureLine, error)

	// Create persists a new fee structure together with its events.
	// Returns ErrFeeStructureExists when the (category, grade, year) scope is taken.
	Create(ctx context.Context, fs *FeeStructure, events ...shared.DomainEvent) error
}

// BillFilter defines filtering options for bill queries
type BillFilter struct {
	shared.Filter
	StudentID      *uuid.UUID
	AcademicYearID *uuid.UUID
	Status         *BillStatus
}

// BillRepository defines the interface for bill persistence outside the
// payment path. Payment-time mutation goes through LedgerRepository.
type BillRepository interface {
	// FindByID finds a bill with its items
	FindByID(ctx context.Context, id uuid.UUID) (*Bill, error)

	// FindAll returns a page of bills and the total count
	FindAll(ctx context.Context, filter BillFilter) ([]Bill, int64, error)

	// Create persists the bill, its items and its pending domain events in
	// one transaction. Returns ErrBillNumberTaken on a bill number collision.
	Create(ctx context.Context, bill *Bill) error
}

// PaymentFilter defines filtering options for payment listings and exports
type PaymentFilter struct {
	shared.Filter
	DateFrom       *time.Time
	DateTo         *time.Time
	AcademicYearID *uuid.UUID
	GradeID        *uuid.UUID
	BillID         *uuid.UUID
	Method         *PaymentMethod
	MinAmount      *decimal.Decimal
	MaxAmount      *decimal.Decimal
	ReceiptNumber  string
	Reference      string
}

// PaymentRepository defines read access to recorded payments
type PaymentRepository interface {
	// FindByID finds a payment by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindViewByID finds a payment with its student, bill and receipt columns
	FindViewByID(ctx context.Context, id uuid.UUID) (*PaymentView, error)

	// FindByBill returns a bill's payments in payment order
	FindByBill(ctx context.Context, billID uuid.UUID) ([]Payment, error)

	// FindAll returns a page of payment views and the total count
	FindAll(ctx context.Context, filter PaymentFilter) ([]PaymentView, int64, error)

	// Each streams every payment view matching filter, ignoring paging,
	// in payment date order. Iteration stops at the first error fn returns.
	Each(ctx context.Context, filter PaymentFilter, fn func(PaymentView) error) error
}

// LedgerTx is the set of writes available while a bill row is locked
type LedgerTx interface {
	// ReferenceExists reports whether any payment already uses ref
	ReferenceExists(ctx context.Context, ref string) (bool, error)

	// InsertPayment inserts the payment row.
	// Returns ErrReferenceTaken when the transaction reference is already used.
	InsertPayment(ctx context.Context, p *Payment) error

	// SumPayments returns the sum of amount_paid for the bill, including
	// rows inserted in this transaction
	SumPayments(ctx context.Context, billID uuid.UUID) (decimal.Decimal, error)

	// UpdateBill persists paid, balance, status and version, and writes
	// the bill's pending domain events to the outbox
	UpdateBill(ctx context.Context, bill *Bill) error
}

// LedgerRepository provides the exclusive bill lock the payment ledger runs under
type LedgerRepository interface {
	// WithLockedBill opens a transaction, locks the bill row exclusively
	// (SELECT ... FOR UPDATE), loads it and calls fn. The transaction commits
	// if fn returns nil and rolls back otherwise. Lock wait timeouts and
	// transient failures surface as *RetryableError; a missing bill as
	// *NotFoundError.
	WithLockedBill(ctx context.Context, billID uuid.UUID, fn func(tx LedgerTx, bill *Bill) error) error
}

// ReceiptRepository defines the interface for receipt persistence
type ReceiptRepository interface {
	// FindByID finds a receipt by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Receipt, error)

	// FindByPaymentID finds the receipt of a payment
	FindByPaymentID(ctx context.Context, paymentID uuid.UUID) (*Receipt, error)

	// NextReceiptSequence atomically allocates the next receipt sequence value
	NextReceiptSequence(ctx context.Context) (int64, error)

	// Create persists the receipt and its events in one transaction.
	// Returns ErrPaymentAlreadyReceipted or ErrReceiptNumberTaken when the
	// matching unique constraint rejects the row.
	Create(ctx context.Context, r *Receipt, events ...shared.DomainEvent) error
}
