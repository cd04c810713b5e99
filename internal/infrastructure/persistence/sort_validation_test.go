package persistence

import (
	"testing"

	"github.com/school/feeledger/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "DESC"},
		{"ASC", "ASC"},
		{"asc", "ASC"},
		{"  asc  ", "ASC"},
		{"desc", "DESC"},
		{"INVALID", "DESC"},
		{"ASC; DROP TABLE bills;--", "DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input))
		})
	}
}

func TestValidateSortField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty returns default", "", "payments.payment_date"},
		{"api key maps to column", "amount", "payments.amount_paid"},
		{"joined column", "receipt_number", "payment_receipts.receipt_number"},
		{"trimmed", "  student_name  ", "students.name"},
		{"unknown returns default", "amount_paid", "payments.payment_date"},
		{"injection returns default", "amount; DROP TABLE payments;--", "payments.payment_date"},
		{"case sensitive", "AMOUNT", "payments.payment_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortField(tt.input, PaymentSortFields, "payments.payment_date"))
		})
	}
}

func TestApplyOrder(t *testing.T) {
	db, _, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	stmt := applyOrder(db.DB.Session(&gorm.Session{DryRun: true}).Model(&models.BillModel{}),
		"balance", "asc", BillSortFields, "bills.created_at", "bills.id").
		Find(&[]models.BillModel{}).Statement

	assert.Contains(t, stmt.SQL.String(), "ORDER BY bills.balance ASC,bills.id ASC")
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%nakato%", likePattern("  Nakato "))
	assert.Equal(t, `%100\%%`, likePattern("100%"))
	assert.Equal(t, `%adm\_01%`, likePattern("ADM_01"))
	assert.Equal(t, `%a\\b%`, likePattern(`a\b`))
	assert.Equal(t, `LOWER(bills.bill_number) LIKE ? ESCAPE '\'`, containsLike("bills.bill_number"))
}
