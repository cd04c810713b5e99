package handler

import "github.com/school/feeledger/internal/interfaces/http/dto"

// APIResponse is the success envelope with a typed data field, for the
// OpenAPI document
// @Description Standard response envelope
type APIResponse[T any] struct {
	Success bool           `json:"success" example:"true"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// ErrorResponse is the failure envelope. Error.Retryable is true for lock
// contention, receipt number exhaustion and timeouts.
// @Description Error response
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}
