package fees

import "github.com/shopspring/decimal"

// BillStatus is derived from paid and balance, never set directly
type BillStatus string

const (
	BillStatusUnpaid  BillStatus = "unpaid"
	BillStatusPartial BillStatus = "partial"
	BillStatusPaid    BillStatus = "paid"
)

// IsValid checks if the status is a known BillStatus
func (s BillStatus) IsValid() bool {
	switch s {
	case BillStatusUnpaid, BillStatusPartial, BillStatusPaid:
		return true
	}
	return false
}

// IsTerminal returns true once a bill is settled
func (s BillStatus) IsTerminal() bool {
	return s == BillStatusPaid
}

func (s BillStatus) String() string {
	return string(s)
}

// rank orders statuses along unpaid → partial → paid
func (s BillStatus) rank() int {
	switch s {
	case BillStatusUnpaid:
		return 0
	case BillStatusPartial:
		return 1
	case BillStatusPaid:
		return 2
	}
	return -1
}

// DeriveStatus computes status from the paid amount and balance:
// unpaid iff paid is zero, paid iff balance is zero, partial otherwise.
// Bills with a zero total are rejected at generation, so the two cases never overlap.
func DeriveStatus(paid, balance decimal.Decimal) BillStatus {
	switch {
	case balance.IsZero():
		return BillStatusPaid
	case paid.IsZero():
		return BillStatusUnpaid
	default:
		return BillStatusPartial
	}
}
