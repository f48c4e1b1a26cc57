package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/markdave123-py/Docketgraph/internal/api/middlewares"
)

func sign(t *testing.T, secret, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func serveWith(secret, bearer string) (*httptest.ResponseRecorder, string) {
	var seen string
	h := middleware.JWTMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = middleware.UserIDFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestJWTMiddlewareAcceptsSignedToken(t *testing.T) {
	rec, user := serveWith("s3cret", sign(t, "s3cret", "u1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", user)
}

func TestJWTMiddlewareRejectsWrongKey(t *testing.T) {
	rec, user := serveWith("s3cret", sign(t, "other", "u1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, user)
}

func TestJWTMiddlewareEmptySecretRefusesEverything(t *testing.T) {
	// A token signed with the empty key must not pass when no secret is set.
	rec, user := serveWith("", sign(t, "", "attacker"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, user)

	rec, _ = serveWith("", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
