package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staffToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func runAdminJWT(secret, authHeader string) (*httptest.ResponseRecorder, bool) {
	called := false
	handler := AdminJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, called
}

func TestAdminJWTRejectsWithoutSecret(t *testing.T) {
	rec, called := runAdminJWT("", "Bearer anything")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestAdminJWTRejectsMissingHeader(t *testing.T) {
	rec, called := runAdminJWT("secret", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestAdminJWTRejectsWrongSecret(t *testing.T) {
	token := staffToken(t, "other-secret", jwt.RegisteredClaims{
		Subject:   "recepcion",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})

	rec, called := runAdminJWT("secret", "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestAdminJWTRequiresExpiry(t *testing.T) {
	token := staffToken(t, "secret", jwt.RegisteredClaims{Subject: "recepcion"})

	rec, called := runAdminJWT("secret", "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestAdminJWTRejectsExpiredToken(t *testing.T) {
	token := staffToken(t, "secret", jwt.RegisteredClaims{
		Subject:   "recepcion",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})

	rec, called := runAdminJWT("secret", "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestAdminJWTAcceptsValidTokenAndExposesClaims(t *testing.T) {
	token := staffToken(t, "secret", jwt.RegisteredClaims{
		Subject:   "recepcion",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})

	var subject string
	handler := AdminJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := AdminClaimsFromContext(r.Context())
		require.True(t, ok)
		subject = claims.Subject
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "recepcion", subject)
}
