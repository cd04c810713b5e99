package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	feesapp "github.com/school/feeledger/internal/application/fees"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/school/feeledger/internal/domain/shared/valueobject"
	"github.com/school/feeledger/internal/interfaces/http/dto"
	"github.com/school/feeledger/internal/interfaces/http/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestGetUserID(t *testing.T) {
	c, _ := newTestContext(t)
	_, err := getUserID(c)
	assert.ErrorIs(t, err, errMissingUser)

	id := uuid.New()
	c.Set(middleware.UserIDKey, id.String())
	got, err := getUserID(c)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestBaseHandler_HandleError(t *testing.T) {
	billID := uuid.New()

	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{
			name:   "validation",
			err:    fees.NewValidationError("amount", "must be greater than zero"),
			status: http.StatusBadRequest,
			code:   dto.ErrCodeValidation,
		},
		{
			name:   "wrapped not found",
			err:    fmt.Errorf("lookup: %w", fees.NewNotFoundError("bill", billID)),
			status: http.StatusNotFound,
			code:   dto.ErrCodeNotFound,
		},
		{
			name:   "overpayment",
			err:    &fees.OverpaymentError{BillID: billID, Amount: decimal.NewFromInt(10), Balance: decimal.NewFromInt(5)},
			status: http.StatusUnprocessableEntity,
			code:   dto.ErrCodeOverpayment,
		},
		{
			name:   "receipt already issued",
			err:    &fees.DuplicateReceiptError{PaymentID: uuid.New(), ReceiptNumber: "RCP-2026-00000001"},
			status: http.StatusConflict,
			code:   dto.ErrCodeDuplicateReceipt,
		},
		{
			name:      "receipt numbers exhausted",
			err:       &fees.DuplicateReceiptError{PaymentID: uuid.New(), Exhausted: true, Attempts: 5},
			status:    http.StatusServiceUnavailable,
			code:      dto.ErrCodeDuplicateReceipt,
			retryable: true,
		},
		{
			name:      "lock timeout",
			err:       fees.NewRetryableError("lock bill", errors.New("canceling statement due to lock timeout")),
			status:    http.StatusServiceUnavailable,
			code:      dto.ErrCodeRetryable,
			retryable: true,
		},
		{
			name:   "consistency",
			err:    &fees.ConsistencyError{BillID: billID, Detail: "paid 10.00 != sum 5.00"},
			status: http.StatusInternalServerError,
			code:   dto.ErrCodeConsistency,
		},
		{
			name:   "archive not configured",
			err:    feesapp.ErrArchiveUnavailable,
			status: http.StatusServiceUnavailable,
			code:   dto.ErrCodeServiceUnavailable,
		},
		{
			name:   "renderer not configured",
			err:    feesapp.ErrRenderingUnavailable,
			status: http.StatusServiceUnavailable,
			code:   dto.ErrCodeServiceUnavailable,
		},
		{
			name:      "deadline",
			err:       fmt.Errorf("query: %w", context.DeadlineExceeded),
			status:    http.StatusGatewayTimeout,
			code:      dto.ErrCodeTimeout,
			retryable: true,
		},
		{
			name:   "shared domain error",
			err:    shared.NewDomainError("CONFLICT", "Only dead entries can be retried"),
			status: http.StatusConflict,
			code:   dto.ErrCodeConflict,
		},
		{
			name:   "unknown",
			err:    errors.New("driver: bad connection"),
			status: http.StatusInternalServerError,
			code:   dto.ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext(t)
			c.Set(middleware.RequestIDKey, "req-42")

			(&BaseHandler{}).HandleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			info := decodeError(t, w)
			assert.Equal(t, tt.code, info.Code)
			assert.Equal(t, tt.retryable, info.Retryable)
			assert.Equal(t, "req-42", info.RequestID)
		})
	}
}

func TestBaseHandler_HandleError_ValidationDetails(t *testing.T) {
	c, w := newTestContext(t)

	verr := &fees.ValidationError{}
	verr.Add("reference", "is required for Bank payments")
	verr.Add("amount", "must be greater than zero")
	(&BaseHandler{}).HandleError(c, verr)

	info := decodeError(t, w)
	require.Len(t, info.Details, 2)
	assert.Equal(t, "reference", info.Details[0].Field)
	assert.Equal(t, "is required for Bank payments", info.Details[0].Message)
	assert.Equal(t, "amount", info.Details[1].Field)
}

func TestBaseHandler_HandleError_Nil(t *testing.T) {
	c, w := newTestContext(t)
	(&BaseHandler{}).HandleError(c, nil)
	assert.False(t, c.Writer.Written())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBaseHandler_ParseUUIDParam(t *testing.T) {
	c, w := newTestContext(t)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

	_, ok := (&BaseHandler{}).parseUUIDParam(c, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	info := decodeError(t, w)
	assert.Equal(t, dto.ErrCodeValidation, info.Code)
	require.Len(t, info.Details, 1)
	assert.Equal(t, "id", info.Details[0].Field)
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = parseDate("2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, 10, d.Day())

	_, err = parseDate("10/03/2026")
	assert.Error(t, err)
}

func TestAmountMessage(t *testing.T) {
	_, err := valueobject.ParseAmount("10.005")
	assert.Equal(t, "Must have at most two decimal places", amountMessage(err))

	_, err = valueobject.ParseAmount("ten")
	assert.Equal(t, "Must be a decimal amount greater than zero", amountMessage(err))
}
