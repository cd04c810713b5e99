package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/school/feeledger/internal/interfaces/http/dto"
)

// Version is stamped at build time with -ldflags "-X ...handler.Version=..."
var Version = "dev"

// SystemInfo is what the deployment reports about itself
type SystemInfo struct {
	Name        string `json:"name"`
	Environment string `json:"environment"`
	School      string `json:"school,omitempty"`
	Currency    string `json:"currency"`
	// PDFReceipts and ExportArchive are false when the renderer or the
	// bucket is not configured; their endpoints then answer 503
	PDFReceipts   bool `json:"pdf_receipts"`
	ExportArchive bool `json:"export_archive"`
}

type SystemHandler struct {
	BaseHandler
	info    SystemInfo
	started time.Time
}

func NewSystemHandler(info SystemInfo) *SystemHandler {
	return &SystemHandler{info: info, started: time.Now()}
}

// SystemInfoResponse adds build and runtime details to SystemInfo
type SystemInfoResponse struct {
	SystemInfo
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// GetSystemInfo godoc
// @ID           getSystemInfo
// @Summary      Get system information
// @Description  Build, uptime and which optional ledger features (PDF receipts, export archive) are available
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[SystemInfoResponse]
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(SystemInfoResponse{
		SystemInfo: h.info,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Uptime:     time.Since(h.started).Round(time.Second).String(),
	}))
}

type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Ping godoc
// @ID           pingSystem
// @Summary      Ping
// @Description  Answers without touching any dependency
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[PingResponse]
// @Router       /system/ping [get]
func (h *SystemHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(PingResponse{
		Message:   "pong",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}))
}
