package persistence

import (
	"strings"

	"gorm.io/gorm"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]string, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if column, ok := allowedFields[trimmed]; ok {
		return column
	}
	return defaultField
}

// BillSortFields maps API sort keys to bill columns
var BillSortFields = map[string]string{
	"created_at":   "bills.created_at",
	"issued_date":  "bills.issued_date",
	"bill_number":  "bills.bill_number",
	"total_amount": "bills.total_amount",
	"balance":      "bills.balance",
	"status":       "bills.status",
}

// PaymentSortFields maps API sort keys to payment listing columns
var PaymentSortFields = map[string]string{
	"created_at":     "payments.created_at",
	"payment_date":   "payments.payment_date",
	"amount":         "payments.amount_paid",
	"method":         "payments.payment_method",
	"student_name":   "students.name",
	"bill_number":    "bills.bill_number",
	"receipt_number": "payment_receipts.receipt_number",
}

// applyOrder adds a whitelisted ORDER BY plus a stable id tiebreaker
func applyOrder(query *gorm.DB, orderBy, orderDir string, allowed map[string]string, defaultColumn, idColumn string) *gorm.DB {
	column := ValidateSortField(orderBy, allowed, defaultColumn)
	return query.Order(column + " " + ValidateSortOrder(orderDir)).Order(idColumn + " ASC")
}

// containsLike is a case-insensitive LIKE on column; pair it with likePattern
func containsLike(column string) string {
	return "LOWER(" + column + `) LIKE ? ESCAPE '\'`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a contains pattern in which the input's own % and _
// match literally
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}
