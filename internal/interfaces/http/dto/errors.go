package dto

import (
	"net/http"

	"github.com/school/feeledger/internal/domain/fees"
)

// Ledger error codes, shared with the domain taxonomy
const (
	ErrCodeValidation       = fees.CodeValidation
	ErrCodeNotFound         = fees.CodeNotFound
	ErrCodeOverpayment      = fees.CodeOverpayment
	ErrCodeDuplicateReceipt = fees.CodeDuplicateReceipt
	ErrCodeRetryable        = fees.CodeRetryable
	ErrCodeConsistency      = fees.CodeConsistency
)

// Transport error codes
const (
	// ErrCodeBadRequest is used for malformed request bodies and parameters
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeUnauthorized is used when the caller identity is missing or invalid
	ErrCodeUnauthorized = "UNAUTHORIZED"
	// ErrCodeForbidden is used when the caller lacks permission
	ErrCodeForbidden = "FORBIDDEN"
	// ErrCodeConflict is used for uniqueness conflicts outside the receipt path
	ErrCodeConflict = "CONFLICT"
	// ErrCodeDuplicateRequest is used when an Idempotency-Key is already claimed
	ErrCodeDuplicateRequest = "DUPLICATE_REQUEST"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	// ErrCodeServiceUnavailable is used when an optional backend is not configured
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	// ErrCodeTimeout is used when a request exceeds its deadline
	ErrCodeTimeout = "TIMEOUT"
	// ErrCodeInternal is used for unexpected failures
	ErrCodeInternal = "INTERNAL_ERROR"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeOverpayment:        http.StatusUnprocessableEntity,
	ErrCodeDuplicateReceipt:   http.StatusConflict,
	ErrCodeRetryable:          http.StatusServiceUnavailable,
	ErrCodeConsistency:        http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeDuplicateRequest:   http.StatusConflict,
	ErrCodeRequestTooLarge:    http.StatusRequestEntityTooLarge,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeInternal:           http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// StatusFor returns the HTTP status for a ledger error. A DuplicateReceiptError
// that ran out of receipt numbers is transient and maps to 503.
func StatusFor(err fees.CodedError) int {
	if err.Code() == ErrCodeDuplicateReceipt && err.Retryable() {
		return http.StatusServiceUnavailable
	}
	return GetHTTPStatus(err.Code())
}
