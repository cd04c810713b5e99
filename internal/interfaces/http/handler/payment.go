package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	feesapp "github.com/school/feeledger/internal/application/fees"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/domain/shared/valueobject"
	"github.com/school/feeledger/internal/infrastructure/logger"
	"github.com/school/feeledger/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentHandler handles payment recording, listing and export endpoints
type PaymentHandler struct {
	BaseHandler
	ledger   *feesapp.LedgerService
	payments *feesapp.PaymentService
	receipts *feesapp.ReceiptService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(
	ledger *feesapp.LedgerService,
	payments *feesapp.PaymentService,
	receipts *feesapp.ReceiptService,
) *PaymentHandler {
	return &PaymentHandler{
		ledger:   ledger,
		payments: payments,
		receipts: receipts,
	}
}

// RecordPaymentRequest is the body of POST /payments. Amount is a decimal
// string so no precision is lost on the way in.
type RecordPaymentRequest struct {
	BillID      string `json:"bill_id" binding:"required,uuid" format:"uuid"`
	StudentID   string `json:"student_id" binding:"required,uuid" format:"uuid"`
	PaymentDate string `json:"payment_date" binding:"required,datetime=2006-01-02" example:"2026-02-05"`
	Amount      string `json:"amount" binding:"required,decimal_gt0" example:"250000.00"`
	Method      string `json:"method" binding:"required,payment_method" enums:"Cash,Bank,Mobile Money" example:"Mobile Money"`
	Reference   string `json:"reference" binding:"max=100" example:"MTN-99812"`
	ReceivedBy  string `json:"received_by" binding:"omitempty,uuid" format:"uuid"`
}

// IssueReceiptRequest is the optional body of POST /payments/:id/receipt
type IssueReceiptRequest struct {
	GeneratedBy string `json:"generated_by" binding:"omitempty,uuid"`
}

// ListPaymentsRequest holds the filters shared by listing and export
type ListPaymentsRequest struct {
	dto.ListRequest
	DateFrom       string `form:"date_from" binding:"omitempty,datetime=2006-01-02"`
	DateTo         string `form:"date_to" binding:"omitempty,datetime=2006-01-02"`
	AcademicYearID string `form:"academic_year_id" binding:"omitempty,uuid"`
	GradeID        string `form:"grade_id" binding:"omitempty,uuid"`
	BillID         string `form:"bill_id" binding:"omitempty,uuid"`
	Method         string `form:"method" binding:"omitempty,payment_method"`
	MinAmount      string `form:"min_amount" binding:"omitempty,numeric"`
	MaxAmount      string `form:"max_amount" binding:"omitempty,numeric"`
	ReceiptNumber  string `form:"receipt_number" binding:"max=50"`
	Reference      string `form:"reference" binding:"max=100"`
}

// Filter converts the query into a repository filter. Formats were checked
// by binding, so parse failures here only leave a filter unset.
func (r ListPaymentsRequest) Filter() fees.PaymentFilter {
	filter := fees.PaymentFilter{
		Filter:        r.ListRequest.Filter(),
		ReceiptNumber: strings.TrimSpace(r.ReceiptNumber),
		Reference:     strings.TrimSpace(r.Reference),
	}
	filter.DateFrom, _ = parseDate(r.DateFrom)
	filter.DateTo, _ = parseDate(r.DateTo)
	filter.AcademicYearID = optionalUUID(r.AcademicYearID)
	filter.GradeID = optionalUUID(r.GradeID)
	filter.BillID = optionalUUID(r.BillID)
	if m, ok := fees.ParsePaymentMethod(r.Method); ok {
		filter.Method = &m
	}
	filter.MinAmount = optionalDecimal(r.MinAmount)
	filter.MaxAmount = optionalDecimal(r.MaxAmount)
	return filter
}

func optionalUUID(s string) *uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

func optionalDecimal(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// Record godoc
// @ID           recordPayment
// @Summary      Record a payment
// @Description  Applies a payment to a bill while holding the bill's row lock. The amount may not exceed the
// @Description  outstanding balance. Lock contention answers 503 with retryable set.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Client key; a repeat replays the first response"
// @Param        request body RecordPaymentRequest true "Payment"
// @Success      201 {object} APIResponse[feesapp.PaymentResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse "Overpayment"
// @Failure      503 {object} ErrorResponse
// @Failure      504 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /payments [post]
func (h *PaymentHandler) Record(c *gin.Context) {
	actor, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	amount, err := valueobject.ParseAmount(req.Amount)
	if err != nil {
		h.FieldError(c, "amount", amountMessage(err))
		return
	}
	method, _ := fees.ParsePaymentMethod(req.Method)
	paymentDate, err := time.Parse(DateLayout, req.PaymentDate)
	if err != nil {
		h.FieldError(c, "payment_date", "Must be a date in YYYY-MM-DD format")
		return
	}

	in := feesapp.RecordPaymentInput{
		BillID:      uuid.MustParse(req.BillID),
		StudentID:   uuid.MustParse(req.StudentID),
		PaymentDate: paymentDate,
		Amount:      amount,
		Method:      method,
		Reference:   req.Reference,
		ReceivedBy:  actor,
		CreatedBy:   actor,
	}
	if req.ReceivedBy != "" {
		in.ReceivedBy = uuid.MustParse(req.ReceivedBy)
	}

	payment, err := h.ledger.RecordPayment(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, payment)
}

// GetByID godoc
// @ID           getPayment
// @Summary      Get a payment
// @Tags         payments
// @Produce      json
// @Param        id path string true "Payment ID" format(uuid)
// @Success      200 {object} APIResponse[feesapp.PaymentResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /payments/{id} [get]
func (h *PaymentHandler) GetByID(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, payment)
}

// IssueReceipt godoc
// @ID           issuePaymentReceipt
// @Summary      Issue the receipt of a payment
// @Description  Assigns the next receipt number. A payment has at most one receipt; asking again answers 409.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        id path string true "Payment ID" format(uuid)
// @Param        request body IssueReceiptRequest false "Who generated the receipt; the caller when omitted"
// @Success      201 {object} APIResponse[feesapp.ReceiptResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /payments/{id}/receipt [post]
func (h *PaymentHandler) IssueReceipt(c *gin.Context) {
	actor, ok := h.requireUser(c)
	if !ok {
		return
	}
	paymentID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req IssueReceiptRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}
	generatedBy := actor
	if req.GeneratedBy != "" {
		generatedBy = uuid.MustParse(req.GeneratedBy)
	}

	receipt, err := h.receipts.IssueReceipt(c.Request.Context(), paymentID, generatedBy)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, receipt)
}

// List godoc
// @ID           listPayments
// @Summary      List payments
// @Description  Filtered page of payments joined with student, grade, year, bill and receipt
// @Tags         payments
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(200)
// @Param        order_by query string false "Sort key" Enums(created_at, payment_date, amount, method, student_name, bill_number, receipt_number)
// @Param        order_dir query string false "Sort direction" Enums(asc, desc)
// @Param        date_from query string false "Earliest payment date (YYYY-MM-DD)"
// @Param        date_to query string false "Latest payment date (YYYY-MM-DD)"
// @Param        academic_year_id query string false "Academic year ID" format(uuid)
// @Param        grade_id query string false "Grade ID" format(uuid)
// @Param        bill_id query string false "Bill ID" format(uuid)
// @Param        method query string false "Payment method" Enums(Cash, Bank, Mobile Money)
// @Param        min_amount query string false "Minimum amount"
// @Param        max_amount query string false "Maximum amount"
// @Param        receipt_number query string false "Receipt number contains"
// @Param        reference query string false "Transaction reference contains"
// @Param        search query string false "Student name, admission number, bill number or reference contains"
// @Success      200 {object} APIResponse[[]feesapp.PaymentListItem]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	var req ListPaymentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}

	page, err := h.payments.ListPayments(c.Request.Context(), req.Filter())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaginatedResponse(page))
}

// Export godoc
// @ID           exportPayments
// @Summary      Export payments as CSV
// @Description  Streams every payment matching the filters, ignoring paging
// @Tags         payments
// @Produce      text/csv
// @Param        date_from query string false "Earliest payment date (YYYY-MM-DD)"
// @Param        date_to query string false "Latest payment date (YYYY-MM-DD)"
// @Param        academic_year_id query string false "Academic year ID" format(uuid)
// @Param        grade_id query string false "Grade ID" format(uuid)
// @Param        bill_id query string false "Bill ID" format(uuid)
// @Param        method query string false "Payment method" Enums(Cash, Bank, Mobile Money)
// @Param        min_amount query string false "Minimum amount"
// @Param        max_amount query string false "Maximum amount"
// @Param        receipt_number query string false "Receipt number contains"
// @Param        reference query string false "Transaction reference contains"
// @Param        search query string false "Student name, admission number, bill number or reference contains"
// @Success      200 {file} file "CSV export"
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /payments/export [get]
func (h *PaymentHandler) Export(c *gin.Context) {
	var req ListPaymentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}

	filename := fmt.Sprintf("payments-%s.csv", time.Now().UTC().Format("20060102-150405"))
	header := c.Writer.Header()
	header.Set("Content-Type", "text/csv; charset=utf-8")
	header.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)

	rows, err := h.payments.ExportPayments(c.Request.Context(), req.Filter(), c.Writer)
	if err != nil {
		if !c.Writer.Written() {
			header.Del("Content-Type")
			header.Del("Content-Disposition")
			h.HandleError(c, err)
			return
		}
		// headers are gone; the client sees a truncated file
		logger.FromContext(c.Request.Context()).Error("payment export aborted",
			zap.Int("rows", rows),
			zap.Error(err),
		)
		_ = c.Error(err)
		c.Abort()
		return
	}

	logger.FromContext(c.Request.Context()).Debug("payment export streamed", zap.Int("rows", rows))
}

// Archive godoc
// @ID           archivePaymentExport
// @Summary      Archive a payment export
// @Description  Uploads the CSV export to object storage and returns a presigned download link.
// @Description  Answers 503 when no bucket is configured.
// @Tags         payments
// @Produce      json
// @Param        date_from query string false "Earliest payment date (YYYY-MM-DD)"
// @Param        date_to query string false "Latest payment date (YYYY-MM-DD)"
// @Param        academic_year_id query string false "Academic year ID" format(uuid)
// @Param        grade_id query string false "Grade ID" format(uuid)
// @Param        bill_id query string false "Bill ID" format(uuid)
// @Param        method query string false "Payment method" Enums(Cash, Bank, Mobile Money)
// @Param        min_amount query string false "Minimum amount"
// @Param        max_amount query string false "Maximum amount"
// @Param        receipt_number query string false "Receipt number contains"
// @Param        reference query string false "Transaction reference contains"
// @Param        search query string false "Student name, admission number, bill number or reference contains"
// @Success      201 {object} APIResponse[feesapp.ExportArchiveResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /payments/export/archive [post]
func (h *PaymentHandler) Archive(c *gin.Context) {
	actor, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req ListPaymentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}

	archive, err := h.payments.ArchiveExport(c.Request.Context(), req.Filter(), actor)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, archive)
}
