package printing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaperSize(t *testing.T) {
	assert.True(t, PaperA4.IsValid())
	assert.True(t, PaperReceipt80.IsValid())
	assert.False(t, PaperSize{}.IsValid())
	assert.False(t, PaperSize{WidthMM: 100}.IsValid())

	p, ok := PaperSizeByName("A5")
	assert.True(t, ok)
	assert.Equal(t, PaperA5, p)

	_, ok = PaperSizeByName("LETTER")
	assert.False(t, ok)
}

func TestRenderError(t *testing.T) {
	cause := errors.New("chrome exited")
	err := NewRenderError(ErrCodeRenderFailed, "chromedp execution failed", cause)

	assert.Equal(t, "chromedp execution failed: chrome exited", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "HTML content is empty", NewRenderError(ErrCodeInvalidHTML, "HTML content is empty", nil).Error())
}
