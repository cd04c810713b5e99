package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/school/feeledger/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader names the client supplied request key
	IdempotencyKeyHeader = "Idempotency-Key"
	// MaxIdempotencyKeyLength bounds the header value
	MaxIdempotencyKeyLength = 255

	defaultIdempotencyTTL = 24 * time.Hour
	idempotencyKeyPrefix  = "http:"
)

// IdempotencyConfig holds configuration for the Idempotency-Key middleware
type IdempotencyConfig struct {
	Store  shared.IdempotencyStore
	TTL    time.Duration
	Logger *zap.Logger
}

// Idempotency guards mutating routes against replays. The first request with
// a given key claims it for TTL; a repeat while the claim is held gets 409
// DUPLICATE_REQUEST. A request that does not succeed releases its claim so
// the client can retry with the same key. Requests without the header pass
// through untouched.
func Idempotency(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultIdempotencyTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" || cfg.Store == nil {
			c.Next()
			return
		}
		if len(key) > MaxIdempotencyKeyLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeBadRequest, "Idempotency-Key is too long", GetRequestID(c),
			))
			return
		}

		storeKey := idempotencyStoreKey(c, key)
		claimed, err := cfg.Store.MarkProcessed(c.Request.Context(), storeKey, cfg.TTL)
		if err != nil {
			// Unique constraints still stop double writes; fail open
			cfg.Logger.Warn("Idempotency store unavailable",
				zap.String("request_id", GetRequestID(c)),
				zap.Error(err),
			)
			c.Next()
			return
		}
		if !claimed {
			c.AbortWithStatusJSON(http.StatusConflict, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeDuplicateRequest,
				"A request with this Idempotency-Key was already accepted",
				GetRequestID(c),
			))
			return
		}

		c.Next()

		if status := c.Writer.Status(); status < 200 || status >= 300 {
			// The request context may already be cancelled
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Second)
			defer cancel()
			if err := cfg.Store.Release(ctx, storeKey); err != nil {
				cfg.Logger.Warn("Failed to release idempotency key",
					zap.String("request_id", GetRequestID(c)),
					zap.Error(err),
				)
			}
		}
	}
}

// idempotencyStoreKey scopes the client key to the caller and the route
func idempotencyStoreKey(c *gin.Context, key string) string {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	return idempotencyKeyPrefix + GetUserID(c) + ":" + c.Request.Method + ":" + route + ":" + key
}
