package fees

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Error codes carried by the ledger error taxonomy
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeOverpayment      = "OVERPAYMENT"
	CodeDuplicateReceipt = "DUPLICATE_RECEIPT"
	CodeRetryable        = "RETRYABLE"
	CodeConsistency      = "CONSISTENCY_ERROR"
)

// CodedError is implemented by every error in the ledger taxonomy.
// Retryable tells the caller whether repeating the whole operation is safe.
type CodedError interface {
	error
	Code() string
	Retryable() bool
}

// FieldError describes one invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed or out-of-scope input, field by field
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError creates a ValidationError with a single field error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Add appends a field error
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any field error was collected
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

// OrNil returns the error when it holds field errors, nil otherwise
func (e *ValidationError) OrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Code() string    { return CodeValidation }
func (e *ValidationError) Retryable() bool { return false }

// NotFoundError reports a missing bill, payment, student, year or fee structure
type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

// NewNotFoundError creates a NotFoundError
func NewNotFoundError(resource string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is lets errors.Is(err, shared.ErrNotFound) match
func (e *NotFoundError) Is(target error) bool {
	return target == shared.ErrNotFound
}

func (e *NotFoundError) Code() string    { return CodeNotFound }
func (e *NotFoundError) Retryable() bool { return false }

// OverpaymentError is returned when a payment exceeds the bill's balance.
// It is never auto-corrected.
type OverpaymentError struct {
	BillID  uuid.UUID
	Amount  decimal.Decimal
	Balance decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %s exceeds outstanding balance %s on bill %s",
		e.Amount.StringFixed(2), e.Balance.StringFixed(2), e.BillID)
}

func (e *OverpaymentError) Code() string    { return CodeOverpayment }
func (e *OverpaymentError) Retryable() bool { return false }

// DuplicateReceiptError is returned when a payment already has a receipt,
// or when receipt number allocation kept colliding until attempts ran out.
type DuplicateReceiptError struct {
	PaymentID     uuid.UUID
	ReceiptNumber string
	Exhausted     bool
	Attempts      int
}

func (e *DuplicateReceiptError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("could not allocate a unique receipt number for payment %s after %d attempts",
			e.PaymentID, e.Attempts)
	}
	if e.ReceiptNumber != "" {
		return fmt.Sprintf("payment %s already has receipt %s", e.PaymentID, e.ReceiptNumber)
	}
	return fmt.Sprintf("payment %s already has a receipt", e.PaymentID)
}

func (e *DuplicateReceiptError) Code() string { return CodeDuplicateReceipt }

// Retryable is true only for number exhaustion. A receipt that already exists stays.
func (e *DuplicateReceiptError) Retryable() bool { return e.Exhausted }

// RetryableError wraps lock-wait timeouts and transient transaction failures.
// Nothing was persisted, so the caller may repeat the whole operation.
type RetryableError struct {
	Op    string
	Cause error
}

// NewRetryableError wraps cause for op
func NewRetryableError(op string, cause error) *RetryableError {
	return &RetryableError{Op: op, Cause: cause}
}

func (e *RetryableError) Error() string {
	if e.Cause == nil {
		return e.Op + ": temporarily unavailable, retry"
	}
	return e.Op + ": temporarily unavailable, retry: " + e.Cause.Error()
}

func (e *RetryableError) Unwrap() error   { return e.Cause }
func (e *RetryableError) Code() string    { return CodeRetryable }
func (e *RetryableError) Retryable() bool { return true }

// ConsistencyError reports a detected invariant violation. It aborts the
// transaction and is logged; the stored state is never silently repaired.
type ConsistencyError struct {
	BillID uuid.UUID
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("ledger consistency violation on bill %s: %s", e.BillID, e.Detail)
}

func (e *ConsistencyError) Code() string    { return CodeConsistency }
func (e *ConsistencyError) Retryable() bool { return false }

// Signals returned by repositories when a unique constraint rejects a write.
// Services translate them into the taxonomy above.
var (
	ErrReceiptNumberTaken      = errors.New("receipt number already used")
	ErrPaymentAlreadyReceipted = errors.New("payment already has a receipt")
	ErrReferenceTaken          = errors.New("transaction reference already used")
	ErrBillNumberTaken         = errors.New("bill number already used")
	ErrFeeStructureExists      = errors.New("fee structure already exists for category, grade and year")
)

var (
	_ CodedError = (*ValidationError)(nil)
	_ CodedError = (*NotFoundError)(nil)
	_ CodedError = (*OverpaymentError)(nil)
	_ CodedError = (*DuplicateReceiptError)(nil)
	_ CodedError = (*RetryableError)(nil)
	_ CodedError = (*ConsistencyError)(nil)
)
