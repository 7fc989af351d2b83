package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokle/internal/config"
)

func newTestRouter(mw *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", mw.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func signToken(t *testing.T, secret, issuer string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"iss": issuer, "exp": expiresAt.Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestRequireAuth_NoSecretConfiguredIsNoOp(t *testing.T) {
	mw := NewAuthMiddleware(config.AuthConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	router := newTestRouter(mw)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_RejectsMissingToken(t *testing.T) {
	mw := NewAuthMiddleware(config.AuthConfig{JWTSecret: "s3cret", JWTIssuer: "grading-orchestrator"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	router := newTestRouter(mw)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_AcceptsValidToken(t *testing.T) {
	mw := NewAuthMiddleware(config.AuthConfig{JWTSecret: "s3cret", JWTIssuer: "grading-orchestrator"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	router := newTestRouter(mw)

	token := signToken(t, "s3cret", "grading-orchestrator", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_RejectsWrongIssuer(t *testing.T) {
	mw := NewAuthMiddleware(config.AuthConfig{JWTSecret: "s3cret", JWTIssuer: "grading-orchestrator"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	router := newTestRouter(mw)

	token := signToken(t, "s3cret", "someone-else", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
