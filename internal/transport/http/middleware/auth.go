package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"brokle/internal/config"
)

// AuthMiddleware validates the bearer JWT on the grading trigger surface.
// Reused pattern from the teacher's JWT auth service: HS256 over a shared
// secret, MapClaims, issuer check. There is no session/blacklist/RBAC
// layer here — the grading trigger surface has one caller identity, not a
// multi-tenant permission model.
type AuthMiddleware struct {
	secret []byte
	issuer string
	logger *slog.Logger
}

// NewAuthMiddleware builds the middleware from the auth section of config.
func NewAuthMiddleware(cfg config.AuthConfig, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(cfg.JWTSecret), issuer: cfg.JWTIssuer, logger: logger}
}

const authContextKey = "auth_claims"

// RequireAuth validates the Authorization: Bearer <token> header and aborts
// with 401 on anything invalid. When no secret is configured (local/dev),
// it is a no-op so the trigger surface stays usable without standing up a
// token issuer.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(m.secret) == 0 {
			c.Next()
			return
		}

		token, err := m.extractToken(c)
		if err != nil {
			m.logger.Warn("failed to extract bearer token", "error", err)
			c.JSON(401, gin.H{"error": "authentication token required"})
			c.Abort()
			return
		}

		claims := jwt.MapClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return m.secret, nil
		}, jwt.WithIssuer(m.issuer))
		if err != nil || !parsed.Valid {
			m.logger.Warn("invalid bearer token", "error", err)
			c.JSON(401, gin.H{"error": "invalid authentication token"})
			c.Abort()
			return
		}

		c.Set(authContextKey, claims)
		c.Next()
	}
}

func (m *AuthMiddleware) extractToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("missing bearer authorization header")
	}
	token := strings.TrimPrefix(header, prefix)
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}

// Claims retrieves the validated claims set by RequireAuth, if any.
func Claims(c *gin.Context) (jwt.MapClaims, bool) {
	v, ok := c.Get(authContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(jwt.MapClaims)
	return claims, ok
}
