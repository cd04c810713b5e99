package printing

import (
	"context"
	"time"
)

// PaperSize is a page size in millimeters. Continuous sizes have no fixed
// height and print as one tall page.
type PaperSize struct {
	Name       string
	WidthMM    float64
	HeightMM   float64
	Continuous bool
}

// Supported paper sizes
var (
	PaperA4        = PaperSize{Name: "A4", WidthMM: 210, HeightMM: 297}
	PaperA5        = PaperSize{Name: "A5", WidthMM: 148, HeightMM: 210}
	PaperReceipt80 = PaperSize{Name: "RECEIPT_80MM", WidthMM: 80, Continuous: true}
)

// PaperSizeByName returns the paper size with the given name
func PaperSizeByName(name string) (PaperSize, bool) {
	for _, p := range []PaperSize{PaperA4, PaperA5, PaperReceipt80} {
		if p.Name == name {
			return p, true
		}
	}
	return PaperSize{}, false
}

// IsValid reports whether the size can be printed
func (p PaperSize) IsValid() bool {
	return p.WidthMM > 0 && (p.Continuous || p.HeightMM > 0)
}

// Margins in millimeters
type Margins struct {
	Top    float64
	Right  float64
	Bottom float64
	Left   float64
}

// DefaultMargins returns 10mm on every side
func DefaultMargins() Margins {
	return Margins{Top: 10, Right: 10, Bottom: 10, Left: 10}
}

// RenderRequest contains the parameters for rendering HTML to PDF
type RenderRequest struct {
	HTML      string
	Title     string
	Paper     PaperSize
	Landscape bool
	Margins   Margins
	// FooterHTML is printed on every page when set
	FooterHTML string
	// Timeout overrides the renderer default
	Timeout time.Duration
}

// RenderResult contains the output from PDF rendering
type RenderResult struct {
	PDFData        []byte
	PageCount      int
	RenderDuration time.Duration
}

// PDFRenderer renders HTML to PDF
type PDFRenderer interface {
	Render(ctx context.Context, req *RenderRequest) (*RenderResult, error)
	Close() error
}

// RenderError represents an error during PDF rendering
type RenderError struct {
	Code    string
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// Error codes for rendering failures
const (
	ErrCodeRenderTimeout    = "RENDER_TIMEOUT"
	ErrCodeRenderFailed     = "RENDER_FAILED"
	ErrCodeInvalidHTML      = "INVALID_HTML"
	ErrCodeInvalidPaperSize = "INVALID_PAPER_SIZE"
	ErrCodeTemplateFailed   = "TEMPLATE_FAILED"
)

// NewRenderError creates a new RenderError
func NewRenderError(code, message string, cause error) *RenderError {
	return &RenderError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
