package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"integer", "500", "500", nil},
		{"two places", "150.25", "150.25", nil},
		{"padded", "  42.10 ", "42.1", nil},
		{"negative parses", "-1", "-1", nil},
		{"too precise", "0.001", "", ErrAmountPrecision},
		{"garbage", "ten", "", ErrInvalidAmount},
		{"empty", "", "", ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" ugx ")
	require.NoError(t, err)
	assert.Equal(t, Currency("UGX"), c)

	_, err = ParseCurrency("US")
	assert.ErrorIs(t, err, ErrInvalidCurrency)

	_, err = ParseCurrency("U$D")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "650.00", FormatAmount(decimal.NewFromInt(650)))
	assert.Equal(t, "0.01", FormatAmount(decimal.RequireFromString("0.01")))
}
