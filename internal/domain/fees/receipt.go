package fees

import (
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/shared"
)

// Receipt is the immutable, uniquely numbered proof of a single payment
type Receipt struct {
	shared.BaseEntity
	PaymentID     uuid.UUID
	ReceiptNumber string
	IssuedAt      time.Time
	GeneratedBy   uuid.UUID
}

// NewReceipt creates a receipt for payment with an allocated number
func NewReceipt(payment *Payment, number string, generatedBy uuid.UUID) (*Receipt, error) {
	verr := &ValidationError{}
	if payment == nil || payment.ID == uuid.Nil {
		verr.Add("payment_id", "is required")
	}
	if number == "" {
		verr.Add("receipt_number", "is required")
	}
	if generatedBy == uuid.Nil {
		verr.Add("generated_by", "acting user is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	base := shared.NewBaseEntity()
	return &Receipt{
		BaseEntity:    base,
		PaymentID:     payment.ID,
		ReceiptNumber: number,
		IssuedAt:      base.CreatedAt,
		GeneratedBy:   generatedBy,
	}, nil
}
