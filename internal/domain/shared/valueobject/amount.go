package valueobject

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitScale is the number of fractional digits a monetary amount may carry
const MinorUnitScale int32 = 2

var (
	ErrInvalidAmount   = errors.New("amount is not a valid decimal number")
	ErrAmountPrecision = fmt.Errorf("amount has more than %d decimal places", MinorUnitScale)
	ErrInvalidCurrency = errors.New("currency must be a 3-letter ISO 4217 code")
)

// Currency is an ISO 4217 currency code. The ledger runs in a single currency.
type Currency string

// DefaultCurrency is used when configuration does not name one
const DefaultCurrency Currency = "UGX"

// ParseCurrency validates and upper-cases a currency code
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return Currency(code), nil
}

// ParseAmount parses a decimal string amount and enforces minor unit precision.
// Amounts never pass through float64.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !HasValidScale(d) {
		return decimal.Zero, ErrAmountPrecision
	}
	return d, nil
}

// HasValidScale reports whether d fits in MinorUnitScale fractional digits
func HasValidScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MinorUnitScale))
}

// FormatAmount renders an amount with exactly MinorUnitScale fractional digits
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(MinorUnitScale)
}
