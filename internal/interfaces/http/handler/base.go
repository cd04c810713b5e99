package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	feesapp "github.com/school/feeledger/internal/application/fees"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/school/feeledger/internal/domain/shared/valueobject"
	"github.com/school/feeledger/internal/infrastructure/logger"
	"github.com/school/feeledger/internal/interfaces/http/dto"
	"github.com/school/feeledger/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// DateLayout is the wire format of calendar dates in requests
const DateLayout = "2006-01-02"

var errMissingUser = errors.New("user ID not found in context")

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	return middleware.GetRequestID(c)
}

// getUserID returns the authenticated caller set by the auth middleware
func getUserID(c *gin.Context) (uuid.UUID, error) {
	userIDStr := middleware.GetUserID(c)
	if userIDStr == "" {
		return uuid.Nil, errMissingUser
	}
	return uuid.Parse(userIDStr)
}

// parseUUIDParam parses a path parameter, answering 400 when malformed
func (h *BaseHandler) parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.FieldError(c, name, "Invalid UUID format")
		return uuid.Nil, false
	}
	return id, true
}

// requireUser resolves the caller, answering 401 when absent
func (h *BaseHandler) requireUser(c *gin.Context) (uuid.UUID, bool) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return uuid.Nil, false
	}
	return userID, true
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// ServiceUnavailable sends a 503 response
func (h *BaseHandler) ServiceUnavailable(c *gin.Context, message string) {
	h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable, message)
}

// FieldError sends a 400 validation response for a single field
func (h *BaseHandler) FieldError(c *gin.Context, field, message string) {
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		getRequestID(c),
		[]dto.ValidationDetail{{Field: field, Message: message}},
	))
}

// BindError answers a failed ShouldBind call. Validator failures carry
// field details; anything else is a malformed body or query.
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		middleware.HandleValidationError(c, verrs)
		return
	}
	h.BadRequest(c, "Malformed request: "+err.Error())
}

// HandleError maps service errors onto the response envelope
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	requestID := getRequestID(c)

	var verr *fees.ValidationError
	if errors.As(err, &verr) {
		details := make([]dto.ValidationDetail, len(verr.Fields))
		for i, f := range verr.Fields {
			details[i] = dto.ValidationDetail{Field: f.Field, Message: f.Message}
		}
		c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(verr.Error(), requestID, details))
		return
	}

	var coded fees.CodedError
	if errors.As(err, &coded) {
		var cerr *fees.ConsistencyError
		if errors.As(err, &cerr) {
			logger.FromContext(c.Request.Context()).Error("ledger consistency violation",
				zap.String("bill_id", cerr.BillID.String()),
				zap.String("detail", cerr.Detail),
				zap.Error(err),
			)
		}
		resp := dto.NewErrorResponseWithRequestID(coded.Code(), coded.Error(), requestID)
		resp.Error.Retryable = coded.Retryable()
		c.JSON(dto.StatusFor(coded), resp)
		return
	}

	switch {
	case errors.Is(err, feesapp.ErrArchiveUnavailable), errors.Is(err, feesapp.ErrRenderingUnavailable):
		h.ServiceUnavailable(c, err.Error())
		return
	case errors.Is(err, context.DeadlineExceeded):
		resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeTimeout, "Request timed out", requestID)
		resp.Error.Retryable = true
		c.JSON(http.StatusGatewayTimeout, resp)
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		c.JSON(dto.GetHTTPStatus(domainErr.Code), dto.NewErrorResponseWithRequestID(domainErr.Code, domainErr.Message, requestID))
		return
	}

	logger.FromContext(c.Request.Context()).Error("unhandled request error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID,
	))
}

// parseDate parses an optional YYYY-MM-DD value
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// amountMessage turns an amount parse failure into a field message
func amountMessage(err error) string {
	if errors.Is(err, valueobject.ErrAmountPrecision) {
		return "Must have at most two decimal places"
	}
	return "Must be a decimal amount greater than zero"
}
