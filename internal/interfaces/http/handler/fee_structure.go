package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	feesapp "github.com/school/feeledger/internal/application/fees"
	"github.com/school/feeledger/internal/domain/shared/valueobject"
)

// FeeStructureHandler handles the fee structure catalog endpoints
type FeeStructureHandler struct {
	BaseHandler
	catalog *feesapp.CatalogService
}

// NewFeeStructureHandler creates a new FeeStructureHandler
func NewFeeStructureHandler(catalog *feesapp.CatalogService) *FeeStructureHandler {
	return &FeeStructureHandler{catalog: catalog}
}

// LookupFeeStructuresRequest is the query of GET /fee-structures
type LookupFeeStructuresRequest struct {
	GradeID        string `form:"grade_id" binding:"required,uuid"`
	AcademicYearID string `form:"academic_year_id" binding:"required,uuid"`
}

// CreateFeeStructureRequest is the body of POST /fee-structures
type CreateFeeStructureRequest struct {
	FeeCategoryID  string `json:"fee_category_id" binding:"required,uuid"`
	GradeID        string `json:"grade_id" binding:"required,uuid"`
	AcademicYearID string `json:"academic_year_id" binding:"required,uuid"`
	Amount         string `json:"amount" binding:"required,decimal_gt0" example:"450000.00"`
	DueDate        string `json:"due_date" binding:"omitempty,datetime=2006-01-02" example:"2026-03-31"`
}

// Lookup godoc
// @ID           lookupFeeStructures
// @Summary      Look up the fee catalog
// @Description  Lists the fee lines priced for a grade in an academic year, with category names
// @Tags         fee-structures
// @Produce      json
// @Param        grade_id query string true "Grade ID" format(uuid)
// @Param        academic_year_id query string true "Academic year ID" format(uuid)
// @Success      200 {object} APIResponse[[]feesapp.FeeStructureLineResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /fee-structures [get]
func (h *FeeStructureHandler) Lookup(c *gin.Context) {
	var req LookupFeeStructuresRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}

	lines, err := h.catalog.Lookup(c.Request.Context(), uuid.MustParse(req.GradeID), uuid.MustParse(req.AcademicYearID))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, lines)
}

// GetByID godoc
// @ID           getFeeStructure
// @Summary      Get a fee structure
// @Tags         fee-structures
// @Produce      json
// @Param        id path string true "Fee structure ID" format(uuid)
// @Success      200 {object} APIResponse[feesapp.FeeStructureResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /fee-structures/{id} [get]
func (h *FeeStructureHandler) GetByID(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	fs, err := h.catalog.GetFeeStructure(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, fs)
}

// Create godoc
// @ID           createFeeStructure
// @Summary      Create a fee structure
// @Description  Prices a fee category for a grade and academic year. One price per combination.
// @Tags         fee-structures
// @Accept       json
// @Produce      json
// @Param        request body CreateFeeStructureRequest true "Fee structure"
// @Success      201 {object} APIResponse[feesapp.FeeStructureResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /fee-structures [post]
func (h *FeeStructureHandler) Create(c *gin.Context) {
	actor, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req CreateFeeStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	amount, err := valueobject.ParseAmount(req.Amount)
	if err != nil {
		h.FieldError(c, "amount", amountMessage(err))
		return
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		h.FieldError(c, "due_date", "Must be a date in YYYY-MM-DD format")
		return
	}

	fs, err := h.catalog.CreateFeeStructure(c.Request.Context(), feesapp.CreateFeeStructureInput{
		FeeCategoryID:  uuid.MustParse(req.FeeCategoryID),
		GradeID:        uuid.MustParse(req.GradeID),
		AcademicYearID: uuid.MustParse(req.AcademicYearID),
		Amount:         amount,
		DueDate:        dueDate,
		Actor:          actor,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, fs)
}
