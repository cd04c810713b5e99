package fees

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/school/feeledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PaymentMethod is the closed set of accepted payment channels
type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "Cash"
	PaymentMethodBank        PaymentMethod = "Bank"
	PaymentMethodMobileMoney PaymentMethod = "Mobile Money"
)

// AllPaymentMethods lists the accepted methods in display order
var AllPaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodBank,
	PaymentMethodMobileMoney,
}

// MaxReferenceLength bounds transaction references
const MaxReferenceLength = 100

// IsValid checks if the method is one of the accepted methods
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBank, PaymentMethodMobileMoney:
		return true
	}
	return false
}

// RequiresReference is true for every method except cash
func (m PaymentMethod) RequiresReference() bool {
	return m != PaymentMethodCash
}

func (m PaymentMethod) String() string {
	return string(m)
}

// ParsePaymentMethod accepts the canonical names case-insensitively,
// plus the snake_case spelling "mobile_money".
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", " ")
	for _, m := range AllPaymentMethods {
		if strings.ToLower(string(m)) == norm {
			return m, true
		}
	}
	return "", false
}

// Payment is an immutable record of money received against a bill
type Payment struct {
	shared.BaseEntity
	BillID               uuid.UUID
	StudentID            uuid.UUID
	PaymentDate          time.Time
	AmountPaid           decimal.Decimal
	Method               PaymentMethod
	TransactionReference string
	ReceivedBy           uuid.UUID
	CreatedBy            uuid.UUID
}

// PaymentParams are the caller-supplied attributes of a payment
type PaymentParams struct {
	BillID      uuid.UUID
	StudentID   uuid.UUID
	PaymentDate time.Time
	Amount      decimal.Decimal
	Method      PaymentMethod
	Reference   string
	ReceivedBy  uuid.UUID
	CreatedBy   uuid.UUID
}

// NewPayment validates params and builds a payment.
// Cash payments leave TransactionReference empty; the ledger assigns one
// after checking it against existing references.
func NewPayment(p PaymentParams) (*Payment, error) {
	verr := &ValidationError{}
	if p.BillID == uuid.Nil {
		verr.Add("bill_id", "is required")
	}
	if p.CreatedBy == uuid.Nil {
		verr.Add("created_by", "acting user is required")
	}
	if !p.Amount.IsPositive() {
		verr.Add("amount", "must be greater than zero")
	} else if !valueobject.HasValidScale(p.Amount) {
		verr.Add("amount", "must have at most 2 decimal places")
	}
	if p.PaymentDate.IsZero() {
		verr.Add("date", "is required")
	}

	ref := strings.TrimSpace(p.Reference)
	switch {
	case !p.Method.IsValid():
		verr.Add("method", "must be one of Cash, Bank, Mobile Money")
	case p.Method.RequiresReference() && ref == "":
		verr.Add("reference", "is required for "+p.Method.String()+" payments")
	case len(ref) > MaxReferenceLength:
		verr.Add("reference", "is too long")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if p.Method == PaymentMethodCash {
		ref = ""
	}
	receivedBy := p.ReceivedBy
	if receivedBy == uuid.Nil {
		receivedBy = p.CreatedBy
	}

	return &Payment{
		BaseEntity:           shared.NewBaseEntity(),
		BillID:               p.BillID,
		StudentID:            p.StudentID,
		PaymentDate:          truncateToDay(p.PaymentDate),
		AmountPaid:           p.Amount,
		Method:               p.Method,
		TransactionReference: ref,
		ReceivedBy:           receivedBy,
		CreatedBy:            p.CreatedBy,
	}, nil
}

// AssignReference sets the generated cash reference. A previously generated
// reference is replaced; it is a no-op for non-cash payments.
func (p *Payment) AssignReference(ref string) {
	if p.Method != PaymentMethodCash {
		return
	}
	if p.TransactionReference != "" && !IsCashReference(p.TransactionReference) {
		return
	}
	p.TransactionReference = ref
}

// PaymentView is a payment joined with the columns listings and exports show
type PaymentView struct {
	Payment
	BillNumber       string
	StudentName      string
	AdmissionNumber  string
	GradeName        string
	AcademicYearName string
	ReceiptNumber    string
}
