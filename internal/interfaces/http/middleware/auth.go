package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/farmpay/backend/internal/infrastructure/auth"
	"github.com/farmpay/backend/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Auth context keys and headers
const (
	UserIDKey     = "auth_user_id"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// AuthConfig holds configuration for the auth middleware
type AuthConfig struct {
	Validator TokenValidator
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
	Logger    *zap.Logger
}

// Auth authenticates the acting user from a bearer token. The user id is
// stored on the gin context and in the request context for logging.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			authFailed(c, log, auth.ErrInvalidToken, "Missing authorization header")
			return
		}
		token, found := strings.CutPrefix(header, BearerPrefix)
		if !found || token == "" {
			authFailed(c, log, auth.ErrInvalidToken, "Invalid authorization header format")
			return
		}

		claims, err := cfg.Validator.ValidateAccessToken(token)
		if err != nil {
			authFailed(c, log, err, "Token validation failed")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

func authFailed(c *gin.Context, log *zap.Logger, err error, reason string) {
	log.Warn("Authentication failed",
		zap.Error(err),
		zap.String("reason", reason),
		zap.String("path", c.Request.URL.Path),
	)

	code, message := "UNAUTHORIZED", "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, message = "TOKEN_EXPIRED", "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		code, message = "TOKEN_NOT_VALID", "Token is not yet valid"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidClaims), errors.Is(err, auth.ErrMissingUserID):
		code, message = "INVALID_TOKEN", "Invalid token"
	}
	abort(c, http.StatusUnauthorized, code, message)
}

// GetUserID returns the authenticated user id, or "" when the request is anonymous
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
