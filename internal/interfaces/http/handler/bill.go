package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	feesapp "github.com/school/feeledger/internal/application/fees"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/interfaces/http/dto"
)

// BillHandler handles bill-related API endpoints
type BillHandler struct {
	BaseHandler
	bills    *feesapp.BillService
	payments *feesapp.PaymentService
}

// NewBillHandler creates a new BillHandler
func NewBillHandler(bills *feesapp.BillService, payments *feesapp.PaymentService) *BillHandler {
	return &BillHandler{
		bills:    bills,
		payments: payments,
	}
}

// GenerateBillRequest is the body of POST /bills
type GenerateBillRequest struct {
	StudentID       string   `json:"student_id" binding:"required,uuid"`
	AcademicYearID  string   `json:"academic_year_id" binding:"required,uuid"`
	FeeStructureIDs []string `json:"fee_structure_ids" binding:"required,min=1,dive,uuid"`
	// IssuedDate is YYYY-MM-DD; today when omitted
	IssuedDate string `json:"issued_date" binding:"omitempty,datetime=2006-01-02"`
}

// ListBillsRequest holds the query of GET /bills
type ListBillsRequest struct {
	dto.ListRequest
	StudentID      string `form:"student_id" binding:"omitempty,uuid"`
	AcademicYearID string `form:"academic_year_id" binding:"omitempty,uuid"`
	Status         string `form:"status" binding:"omitempty,oneof=unpaid partial paid"`
}

// Filter converts the query into a repository filter
func (r ListBillsRequest) Filter() fees.BillFilter {
	filter := fees.BillFilter{Filter: r.ListRequest.Filter()}
	if id, err := uuid.Parse(r.StudentID); err == nil {
		filter.StudentID = &id
	}
	if id, err := uuid.Parse(r.AcademicYearID); err == nil {
		filter.AcademicYearID = &id
	}
	if r.Status != "" {
		status := fees.BillStatus(r.Status)
		filter.Status = &status
	}
	return filter
}

// Generate godoc
// @ID           generateBill
// @Summary      Generate a bill
// @Description  Creates a bill for a student from the selected fee structures of one academic year.
// @Description  Send an Idempotency-Key header to make retries safe.
// @Tags         bills
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Client key; a repeat replays the first response"
// @Param        request body GenerateBillRequest true "Bill generation request"
// @Success      201 {object} APIResponse[feesapp.BillResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /bills [post]
func (h *BillHandler) Generate(c *gin.Context) {
	actor, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req GenerateBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	// binding already checked the formats
	in := feesapp.GenerateBillInput{
		StudentID:       uuid.MustParse(req.StudentID),
		AcademicYearID:  uuid.MustParse(req.AcademicYearID),
		FeeStructureIDs: make([]uuid.UUID, len(req.FeeStructureIDs)),
		Actor:           actor,
	}
	for i, id := range req.FeeStructureIDs {
		in.FeeStructureIDs[i] = uuid.MustParse(id)
	}
	issued, err := parseDate(req.IssuedDate)
	if err != nil {
		h.FieldError(c, "issued_date", "Must be a date in YYYY-MM-DD format")
		return
	}
	in.IssuedDate = issued

	bill, err := h.bills.GenerateBill(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, bill)
}

// GetByID godoc
// @ID           getBill
// @Summary      Get a bill
// @Description  Returns a bill with its line items and current balance
// @Tags         bills
// @Produce      json
// @Param        id path string true "Bill ID" format(uuid)
// @Success      200 {object} APIResponse[feesapp.BillResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /bills/{id} [get]
func (h *BillHandler) GetByID(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	bill, err := h.bills.GetBill(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, bill)
}

// List godoc
// @ID           listBills
// @Summary      List bills
// @Tags         bills
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(200)
// @Param        order_by query string false "Sort key" Enums(created_at, issued_date, bill_number, total_amount, balance, status)
// @Param        order_dir query string false "Sort direction" Enums(asc, desc)
// @Param        search query string false "Bill number contains"
// @Param        student_id query string false "Student ID" format(uuid)
// @Param        academic_year_id query string false "Academic year ID" format(uuid)
// @Param        status query string false "Payment status" Enums(unpaid, partial, paid)
// @Success      200 {object} APIResponse[[]feesapp.BillResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /bills [get]
func (h *BillHandler) List(c *gin.Context) {
	var req ListBillsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}

	page, err := h.bills.ListBills(c.Request.Context(), req.Filter())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaginatedResponse(page))
}

// ListPayments godoc
// @ID           listBillPayments
// @Summary      List the payments of a bill
// @Description  Every payment recorded against the bill, oldest first
// @Tags         bills
// @Produce      json
// @Param        id path string true "Bill ID" format(uuid)
// @Success      200 {object} APIResponse[[]feesapp.PaymentResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /bills/{id}/payments [get]
func (h *BillHandler) ListPayments(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	payments, err := h.payments.ListBillPayments(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, payments)
}
