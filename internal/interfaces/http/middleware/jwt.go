package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/school/feeledger/internal/infrastructure/auth"
	"github.com/school/feeledger/internal/infrastructure/logger"
	"github.com/school/feeledger/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Identity context keys and headers
const (
	JWTClaimsKey  = "jwt_claims"
	UserIDKey     = "user_id"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	// UserIDHeader carries the caller in development when no token is sent
	UserIDHeader = "X-User-ID"
)

// AuthConfig holds configuration for the identity middleware
type AuthConfig struct {
	// JWTService validates bearer tokens. When nil only header identity works.
	JWTService *auth.JWTService
	// AllowHeaderIdentity accepts X-User-ID when no bearer token is present
	AllowHeaderIdentity bool
	// SkipPaths are served without an identity
	SkipPaths []string
	Logger    *zap.Logger
}

// DefaultAuthConfig returns the identity middleware defaults
func DefaultAuthConfig(jwtService *auth.JWTService) AuthConfig {
	return AuthConfig{
		JWTService: jwtService,
		SkipPaths:  []string{"/health", "/api/v1/health"},
		Logger:     zap.NewNop(),
	}
}

// Auth resolves the acting user for every request. The bearer token's
// user_id claim wins; X-User-ID is only consulted when no token is sent and
// AllowHeaderIdentity is set.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		if slices.Contains(cfg.SkipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		header := c.GetHeader(AuthHeaderKey)
		if header != "" {
			if cfg.JWTService == nil {
				rejectIdentity(c, cfg, auth.ErrInvalidToken, "Bearer tokens are not accepted")
				return
			}
			token, ok := strings.CutPrefix(header, BearerPrefix)
			if !ok || strings.TrimSpace(token) == "" {
				rejectIdentity(c, cfg, auth.ErrInvalidToken, "Invalid authorization header format")
				return
			}
			claims, err := cfg.JWTService.ValidateAccessToken(strings.TrimSpace(token))
			if err != nil {
				rejectIdentity(c, cfg, err, "Token validation failed")
				return
			}
			c.Set(JWTClaimsKey, claims)
			setUser(c, claims.UserID)
			c.Next()
			return
		}

		if cfg.AllowHeaderIdentity {
			if raw := c.GetHeader(UserIDHeader); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					rejectIdentity(c, cfg, auth.ErrInvalidClaims, "X-User-ID must be a UUID")
					return
				}
				setUser(c, id.String())
				c.Next()
				return
			}
		}

		rejectIdentity(c, cfg, auth.ErrInvalidToken, "Missing authorization header")
	}
}

func setUser(c *gin.Context, userID string) {
	c.Set(UserIDKey, userID)
	ctx, _ := logger.WithUserID(c.Request.Context(), logger.FromContext(c.Request.Context()), userID)
	c.Request = c.Request.WithContext(ctx)
}

func rejectIdentity(c *gin.Context, cfg AuthConfig, err error, reason string) {
	cfg.Logger.Warn("Request identity rejected",
		zap.Error(err),
		zap.String("reason", reason),
		zap.String("path", c.Request.URL.Path),
	)

	message := "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		message = "Token has expired"
	case errors.Is(err, auth.ErrInvalidTokenType):
		message = "Invalid token type"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		message = "Token is not yet valid"
	case errors.Is(err, auth.ErrInvalidClaims), errors.Is(err, auth.ErrMissingUserID):
		message = "Token does not identify a user"
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeUnauthorized, message, GetRequestID(c),
	))
}

// GetUserID returns the acting user's ID, or "" when none was resolved
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}
