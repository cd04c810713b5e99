package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	payment := `{"bill_id":"b-1","amount":"250.50","method":"Cash"}`

	tests := []struct {
		name          string
		limit         int64
		body          string
		contentLength int64
		status        int
	}{
		{name: "payment within limit", limit: 1024, body: payment, contentLength: int64(len(payment)), status: http.StatusOK},
		{name: "declared length over limit", limit: 16, body: payment, contentLength: int64(len(payment)), status: http.StatusRequestEntityTooLarge},
		{name: "chunked body over limit", limit: 16, body: payment, contentLength: -1, status: http.StatusBadRequest},
		{name: "zero limit disables the check", limit: 0, body: strings.Repeat("x", 4096), contentLength: 4096, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(BodyLimit(tt.limit))
			router.POST("/payments", func(c *gin.Context) {
				if _, err := io.ReadAll(c.Request.Body); err != nil {
					var tooLarge *http.MaxBytesError
					assert.True(t, errors.As(err, &tooLarge))
					c.Status(http.StatusBadRequest)
					return
				}
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(tt.body))
			req.ContentLength = tt.contentLength
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusRequestEntityTooLarge {
				assert.Contains(t, w.Body.String(), `"code":"REQUEST_TOO_LARGE"`)
				assert.Contains(t, w.Body.String(), `"success":false`)
			}
		})
	}

	t.Run("bodiless receipt lookup passes", func(t *testing.T) {
		router := gin.New()
		router.Use(BodyLimit(10))
		router.GET("/receipts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/receipts/r-1", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
