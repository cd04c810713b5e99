package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	feesapp "github.com/school/feeledger/internal/application/fees"
)

// ReceiptHandler handles receipt read endpoints
type ReceiptHandler struct {
	BaseHandler
	receipts *feesapp.ReceiptService
}

// NewReceiptHandler creates a new ReceiptHandler
func NewReceiptHandler(receipts *feesapp.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts}
}

// GetByID godoc
// @ID           getReceipt
// @Summary      Get a receipt
// @Tags         receipts
// @Produce      json
// @Param        id path string true "Receipt ID" format(uuid)
// @Success      200 {object} APIResponse[feesapp.ReceiptResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /receipts/{id} [get]
func (h *ReceiptHandler) GetByID(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	receipt, err := h.receipts.GetReceipt(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, receipt)
}

// PDF godoc
// @ID           getReceiptPDF
// @Summary      Render a receipt as PDF
// @Description  Answers 503 when no renderer is configured
// @Tags         receipts
// @Produce      application/pdf
// @Param        id path string true "Receipt ID" format(uuid)
// @Success      200 {file} file "Printable receipt"
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Failure      504 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /receipts/{id}/pdf [get]
func (h *ReceiptHandler) PDF(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	pdf, filename, err := h.receipts.RenderReceiptPDF(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="`+filename+`"`)
	c.Header("Content-Length", strconv.Itoa(len(pdf)))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
