package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	feesapp "github.com/school/feeledger/internal/application/fees"
	"github.com/school/feeledger/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillHandler_Generate(t *testing.T) {
	env := newAPIEnv(t)

	bill := env.createBill(t)

	assert.Equal(t, "1750.50", bill.TotalAmount)
	assert.Equal(t, "0.00", bill.PaidAmount)
	assert.Equal(t, "1750.50", bill.Balance)
	assert.Equal(t, "unpaid", bill.Status)
	assert.Len(t, bill.Items, 2)
	assert.Equal(t, env.actor, bill.CreatedBy)
	assert.Equal(t, "2026-03-10", bill.IssuedDate.Format(DateLayout))
	assert.NotEmpty(t, bill.BillNumber)
}

func TestBillHandler_Generate_Validation(t *testing.T) {
	env := newAPIEnv(t)

	t.Run("binding errors carry field details", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/bills", gin.H{
			"student_id":        "nope",
			"academic_year_id":  env.yearID,
			"fee_structure_ids": []string{},
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		info := decodeError(t, w)
		assert.Equal(t, dto.ErrCodeValidation, info.Code)

		fields := map[string]string{}
		for _, d := range info.Details {
			fields[d.Field] = d.Tag
		}
		assert.Equal(t, "uuid", fields["student_id"])
		assert.Equal(t, "min", fields["fee_structure_ids"])
	})

	t.Run("malformed body", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/bills", `{"student_id":`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeBadRequest, decodeError(t, w).Code)
	})

	t.Run("fee structure from another scope", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/bills", gin.H{
			"student_id":        env.studentID,
			"academic_year_id":  env.yearID,
			"fee_structure_ids": []uuid.UUID{uuid.New()},
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		info := decodeError(t, w)
		require.Len(t, info.Details, 1)
		assert.Equal(t, "fee_structure_ids", info.Details[0].Field)
	})

	t.Run("unknown student", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/bills", gin.H{
			"student_id":        uuid.New(),
			"academic_year_id":  env.yearID,
			"fee_structure_ids": env.lineIDs,
		})
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decodeError(t, w).Code)
	})
}

func TestBillHandler_Generate_RequiresIdentity(t *testing.T) {
	env := newAPIEnv(t)

	w := env.doAs("", http.MethodPost, "/api/v1/bills", gin.H{
		"student_id":        env.studentID,
		"academic_year_id":  env.yearID,
		"fee_structure_ids": env.lineIDs,
	})

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeUnauthorized, decodeError(t, w).Code)
}

func TestBillHandler_GetByID(t *testing.T) {
	env := newAPIEnv(t)
	created := env.createBill(t)

	w := env.do(http.MethodGet, "/api/v1/bills/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bill feesapp.BillResponse
	decodeData(t, w, &bill)
	assert.Equal(t, created.BillNumber, bill.BillNumber)
	assert.Len(t, bill.Items, 2)

	w = env.do(http.MethodGet, "/api/v1/bills/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/v1/bills/42", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBillHandler_List(t *testing.T) {
	env := newAPIEnv(t)
	paid := env.createBill(t)
	env.createBill(t)
	require.Equal(t, http.StatusCreated, env.pay(paid.ID, "1750.50", "Cash", "").Code)

	var resp struct {
		Success bool                   `json:"success"`
		Data    []feesapp.BillResponse `json:"data"`
		Meta    *dto.Meta              `json:"meta"`
	}

	w := env.do(http.MethodGet, "/api/v1/bills?status=paid&student_id="+env.studentID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, paid.ID, resp.Data[0].ID)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.Total)

	w = env.do(http.MethodGet, "/api/v1/bills?page_size=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, int64(2), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.TotalPages)

	w = env.do(http.MethodGet, "/api/v1/bills?status=overdue", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBillHandler_ListPayments(t *testing.T) {
	env := newAPIEnv(t)
	bill := env.createBill(t)
	require.Equal(t, http.StatusCreated, env.pay(bill.ID, "500.00", "Cash", "").Code)
	require.Equal(t, http.StatusCreated, env.pay(bill.ID, "250.50", "Bank", "BNK-778812").Code)

	w := env.do(http.MethodGet, "/api/v1/bills/"+bill.ID.String()+"/payments", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var payments []feesapp.PaymentResponse
	decodeData(t, w, &payments)
	require.Len(t, payments, 2)
	for _, p := range payments {
		assert.Equal(t, bill.ID, p.BillID)
	}
}
