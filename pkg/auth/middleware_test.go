package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key")

func signToken(t *testing.T, subject string, scopes []string, expiresIn time.Duration) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Scope: scopes,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func TestValidateRoundTrip(t *testing.T) {
	v := NewJWTValidator(testSecret)
	tokenStr := signToken(t, "user-1", []string{ScopeEventLogger}, time.Hour)

	claims, err := v.Validate(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, []string{ScopeEventLogger}, claims.Scope)
}

func TestValidateRejectsExpired(t *testing.T) {
	v := NewJWTValidator(testSecret)
	tokenStr := signToken(t, "user-1", nil, -time.Hour)

	_, err := v.Validate(tokenStr)
	require.Error(t, err)
}

func TestValidateRejectsWrongKey(t *testing.T) {
	v := NewJWTValidator([]byte("a-different-secret"))
	tokenStr := signToken(t, "user-1", nil, time.Hour)

	_, err := v.Validate(tokenStr)
	require.Error(t, err)
}

func TestValidateRejectsWrongAlgorithm(t *testing.T) {
	v := NewJWTValidator(testSecret)

	// alg=none token
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Validate(signed)
	require.Error(t, err)
}

func TestNewJWTValidatorEmptySecret(t *testing.T) {
	v := NewJWTValidator(nil)
	require.Nil(t, v)

	// A nil validator still fails closed instead of panicking.
	_, err := v.Validate("anything")
	require.Error(t, err)
}

func echoPrincipal(t *testing.T) (http.Handler, *Principal) {
	t.Helper()
	var captured Principal
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := GetPrincipal(r.Context())
		require.NoError(t, err)
		captured = p
		w.WriteHeader(http.StatusOK)
	})
	return h, &captured
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	inner, captured := echoPrincipal(t)
	h := NewMiddleware(NewJWTValidator(testSecret))(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1", []string{ScopeEventLogger}, time.Hour))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", (*captured).GetID())
	assert.True(t, (*captured).HasScope(ScopeEventLogger))
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	h := NewMiddleware(NewJWTValidator(testSecret))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestMiddlewareRejectsMalformedHeader(t *testing.T) {
	h := NewMiddleware(NewJWTValidator(testSecret))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.Header.Set("Authorization", "Token abc123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareFailsClosedWithoutValidator(t *testing.T) {
	h := NewMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1", nil, time.Hour))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareSkipsPublicPaths(t *testing.T) {
	h := NewMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRequiresSubject(t *testing.T) {
	h := NewMiddleware(NewJWTValidator(testSecret))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "", nil, time.Hour))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireScopes(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RequireScopes(ScopeEventManager, ScopeEventLogger)(inner)

	serveAs := func(p Principal) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
		if p != nil {
			req = req.WithContext(WithPrincipal(req.Context(), p))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serveAs(&BasePrincipal{ID: "u", Scopes: []string{ScopeEventLogger}}))
	assert.Equal(t, http.StatusOK, serveAs(&BasePrincipal{ID: "u", Scopes: []string{ScopeAdmin}}))
	assert.Equal(t, http.StatusForbidden, serveAs(&BasePrincipal{ID: "u", Scopes: []string{ScopeEventWatcher}}))
	assert.Equal(t, http.StatusUnauthorized, serveAs(nil))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	// Client-supplied IDs are reused.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-id-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "client-id-1", seen)
}

func TestGetPrincipalMissing(t *testing.T) {
	_, err := GetPrincipal(context.Background())
	require.Error(t, err)
}
