package fees

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPaymentParams() PaymentParams {
	return PaymentParams{
		BillID:      uuid.New(),
		StudentID:   uuid.New(),
		PaymentDate: time.Date(2025, 1, 15, 13, 45, 0, 0, time.UTC),
		Amount:      decimal.NewFromInt(200),
		Method:      PaymentMethodBank,
		Reference:   " BNK-001 ",
		CreatedBy:   uuid.New(),
	}
}

func TestNewPayment(t *testing.T) {
	t.Run("valid bank payment", func(t *testing.T) {
		params := validPaymentParams()

		p, err := NewPayment(params)
		require.NoError(t, err)

		assert.Equal(t, "BNK-001", p.TransactionReference)
		assert.Equal(t, params.CreatedBy, p.ReceivedBy, "received_by defaults to the acting user")
		assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), p.PaymentDate)
		assert.NotEqual(t, uuid.Nil, p.ID)
	})

	t.Run("explicit receiver is kept", func(t *testing.T) {
		params := validPaymentParams()
		params.ReceivedBy = uuid.New()

		p, err := NewPayment(params)
		require.NoError(t, err)
		assert.Equal(t, params.ReceivedBy, p.ReceivedBy)
	})

	t.Run("cash ignores supplied reference", func(t *testing.T) {
		params := validPaymentParams()
		params.Method = PaymentMethodCash
		params.Reference = "HANDWRITTEN"

		p, err := NewPayment(params)
		require.NoError(t, err)
		assert.Empty(t, p.TransactionReference)

		p.AssignReference("TXN-20250115-ABCDEFGHIJ")
		assert.Equal(t, "TXN-20250115-ABCDEFGHIJ", p.TransactionReference)

		p.AssignReference("TXN-20250115-KLMNOPQRST")
		assert.Equal(t, "TXN-20250115-KLMNOPQRST", p.TransactionReference)
	})

	t.Run("assign reference does not touch non-cash", func(t *testing.T) {
		p, err := NewPayment(validPaymentParams())
		require.NoError(t, err)

		p.AssignReference("TXN-OTHER")
		assert.Equal(t, "BNK-001", p.TransactionReference)
	})

	tests := []struct {
		name  string
		mut   func(*PaymentParams)
		field string
	}{
		{"zero amount", func(p *PaymentParams) { p.Amount = decimal.Zero }, "amount"},
		{"negative amount", func(p *PaymentParams) { p.Amount = decimal.NewFromInt(-5) }, "amount"},
		{"sub-cent amount", func(p *PaymentParams) { p.Amount = decimal.RequireFromString("1.005") }, "amount"},
		{"unknown method", func(p *PaymentParams) { p.Method = "Cheque" }, "method"},
		{"bank without reference", func(p *PaymentParams) { p.Reference = "  " }, "reference"},
		{"mobile money without reference", func(p *PaymentParams) {
			p.Method = PaymentMethodMobileMoney
			p.Reference = ""
		}, "reference"},
		{"missing bill", func(p *PaymentParams) { p.BillID = uuid.Nil }, "bill_id"},
		{"missing actor", func(p *PaymentParams) { p.CreatedBy = uuid.Nil }, "created_by"},
		{"missing date", func(p *PaymentParams) { p.PaymentDate = time.Time{} }, "date"},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			params := validPaymentParams()
			tt.mut(&params)

			_, err := NewPayment(params)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			fields := make([]string, 0, len(verr.Fields))
			for _, f := range verr.Fields {
				fields = append(fields, f.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestParsePaymentMethod(t *testing.T) {
	tests := []struct {
		in   string
		want PaymentMethod
		ok   bool
	}{
		{"Cash", PaymentMethodCash, true},
		{"bank", PaymentMethodBank, true},
		{"Mobile Money", PaymentMethodMobileMoney, true},
		{"mobile_money", PaymentMethodMobileMoney, true},
		{"cheque", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParsePaymentMethod(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPaymentMethod_RequiresReference(t *testing.T) {
	assert.False(t, PaymentMethodCash.RequiresReference())
	assert.True(t, PaymentMethodBank.RequiresReference())
	assert.True(t, PaymentMethodMobileMoney.RequiresReference())
}
