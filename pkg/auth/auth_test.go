package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func TestJWTAuthenticator_ValidToken(t *testing.T) {
	a := NewJWTAuthenticator(testSecret)
	token := signToken(t, jwt.MapClaims{"sub": "u1", "name": "Alice"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	uc, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "u1", uc.UserID)
	assert.Equal(t, "Alice", uc.Name)
	assert.Equal(t, "jwt", uc.AuthType)
}

func TestJWTAuthenticator_RejectsBadSignature(t *testing.T) {
	a := NewJWTAuthenticator("other-secret")
	token := signToken(t, jwt.MapClaims{"sub": "u1"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	_, err := a.Authenticate(r)
	assert.Error(t, err)
}

func TestJWTAuthenticator_RejectsExpiredToken(t *testing.T) {
	a := NewJWTAuthenticator(testSecret)
	token := signToken(t, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	_, err := a.Authenticate(r)
	assert.Error(t, err)
}

func TestJWTAuthenticator_RejectsMissingSubject(t *testing.T) {
	a := NewJWTAuthenticator(testSecret)
	token := signToken(t, jwt.MapClaims{"name": "Alice"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	_, err := a.Authenticate(r)
	assert.Error(t, err)
}

func TestJWTAuthenticator_NoHeader(t *testing.T) {
	a := NewJWTAuthenticator(testSecret)

	_, err := a.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Error(t, err)
}

func TestAPIKeyAuthenticator(t *testing.T) {
	hash, err := HashKey("sk-valid")
	require.NoError(t, err)
	a := NewAPIKeyAuthenticator([]APIKey{{Name: "ci", Hash: hash}})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(APIKeyHeader, "sk-valid")

	uc, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "apikey:ci", uc.UserID)
	assert.Equal(t, "apikey", uc.AuthType)
}

func TestAPIKeyAuthenticator_RejectsWrongKey(t *testing.T) {
	hash, err := HashKey("sk-valid")
	require.NoError(t, err)
	a := NewAPIKeyAuthenticator([]APIKey{{Name: "ci", Hash: hash}})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(APIKeyHeader, "sk-wrong")

	_, err = a.Authenticate(r)
	assert.Error(t, err)
}

func TestChainedAuthenticator_FirstSuccessWins(t *testing.T) {
	hash, err := HashKey("sk-valid")
	require.NoError(t, err)
	chain := NewChainedAuthenticator(false,
		NewJWTAuthenticator(testSecret),
		NewAPIKeyAuthenticator([]APIKey{{Name: "ci", Hash: hash}}),
	)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(APIKeyHeader, "sk-valid")

	uc, err := chain.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "apikey:ci", uc.UserID)
}

func TestChainedAuthenticator_AnonymousFallback(t *testing.T) {
	chain := NewChainedAuthenticator(true, NewJWTAuthenticator(testSecret))

	uc, err := chain.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "anonymous", uc.UserID)
	assert.Equal(t, "anonymous", uc.AuthType)
}

func TestChainedAuthenticator_NoFallback(t *testing.T) {
	chain := NewChainedAuthenticator(false, NewJWTAuthenticator(testSecret))

	_, err := chain.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Error(t, err)
}

func TestMiddleware_InjectsUser(t *testing.T) {
	chain := NewChainedAuthenticator(true)

	var seen string
	handler := Middleware(chain)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", seen)
}

func TestMiddleware_RejectsUnauthenticated(t *testing.T) {
	chain := NewChainedAuthenticator(false, NewJWTAuthenticator(testSecret))

	handler := Middleware(chain)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestGetUserContext_Absent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, GetUserContext(r.Context()))
	assert.Empty(t, UserID(r.Context()))
}
