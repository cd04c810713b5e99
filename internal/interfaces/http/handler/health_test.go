package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/school/feeledger/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(t *testing.T, checks map[string]Pinger) (*httptest.ResponseRecorder, dto.HealthResponse) {
	t.Helper()
	r := gin.New()
	r.GET("/health", NewHealthHandler(checks).Check)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestHealthHandler_Check(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("all healthy", func(t *testing.T) {
		w, resp := serveHealth(t, map[string]Pinger{"database": ok, "redis": ok})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "healthy", resp.Checks["redis"])
		assert.False(t, resp.Timestamp.IsZero())
	})

	t.Run("cache down is reported only", func(t *testing.T) {
		w, resp := serveHealth(t, map[string]Pinger{"database": ok, "redis": down})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "unhealthy: connection refused", resp.Checks["redis"])
	})

	t.Run("database down", func(t *testing.T) {
		w, resp := serveHealth(t, map[string]Pinger{"database": down})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "unhealthy", resp.Status)
	})

	t.Run("checks share the request deadline", func(t *testing.T) {
		var hasDeadline bool
		check := PingFunc(func(ctx context.Context) error {
			_, hasDeadline = ctx.Deadline()
			return nil
		})
		serveHealth(t, map[string]Pinger{"database": check})
		assert.True(t, hasDeadline)
	})
}
