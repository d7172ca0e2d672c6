package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-for-unit-tests-only")

var ana = Identity{ID: "auth-1", Email: "Ana@Clinic.test", Name: "Ana"}

func createTestToken(t *testing.T, id Identity, issuedAt time.Time) string {
	t.Helper()
	tok, err := IssueToken(testSecret, "", id, time.Hour, issuedAt)
	require.NoError(t, err)
	return tok
}

// runSession passes req through SessionMiddleware and returns the identity the
// handler saw.
func runSession(t *testing.T, cfg SessionConfig, req *http.Request) *Identity {
	t.Helper()
	if cfg.Secret == nil {
		cfg.Secret = testSecret
	}
	cfg.Logger = zerolog.Nop()

	e := echo.New()
	c := e.NewContext(req, httptest.NewRecorder())

	var got *Identity
	h := SessionMiddleware(cfg)(func(c echo.Context) error {
		got = IdentityFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return got
}

func TestSession_Bearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, ana, time.Now()))

	got := runSession(t, SessionConfig{}, req)
	require.NotNil(t, got)
	assert.Equal(t, "auth-1", got.ID)
	assert.Equal(t, "Ana@Clinic.test", got.Email)
	assert.Equal(t, "Ana", got.Name)
}

func TestSession_Cookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "authjs.session-token", Value: createTestToken(t, ana, time.Now())})

	got := runSession(t, SessionConfig{}, req)
	require.NotNil(t, got)
	assert.Equal(t, "auth-1", got.ID)
}

func TestSession_NoIdentityWhenInvalid(t *testing.T) {
	expired, err := IssueToken(testSecret, "", ana, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	wrongKey, err := IssueToken([]byte("another-secret"), "", ana, time.Hour, time.Now())
	require.NoError(t, err)
	noEmail := createTestToken(t, Identity{ID: "x"}, time.Now())
	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Email: "a@b.c"})
	noneStr, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage", "Bearer not-a-jwt"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + wrongKey},
		{"no email", "Bearer " + noEmail},
		{"alg none", "Bearer " + noneStr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Nil(t, runSession(t, SessionConfig{}, req))
		})
	}
}

func TestSession_Issuer(t *testing.T) {
	tok, err := IssueToken(testSecret, "https://other.example", ana, time.Hour, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	assert.Nil(t, runSession(t, SessionConfig{Issuer: "https://clinic.example"}, req))
}

func TestSession_Revoked(t *testing.T) {
	store := NewMemoryRevocationStore()
	issued := time.Now().Add(-10 * time.Minute)
	old := createTestToken(t, ana, issued)

	require.NoError(t, store.RevokeBefore(context.Background(), ana.ID, time.Now().Add(-time.Minute)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+old)
	assert.Nil(t, runSession(t, SessionConfig{Revocations: store}, req))

	fresh := createTestToken(t, ana, time.Now())
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+fresh)
	assert.NotNil(t, runSession(t, SessionConfig{Revocations: store}, req))
}

func TestSession_SetsTenantClaim(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "auth-1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:    "ana@clinic.test",
		TenantID: "norte",
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	c := e.NewContext(req, httptest.NewRecorder())

	h := SessionMiddleware(SessionConfig{Secret: testSecret, Logger: zerolog.Nop()})(func(c echo.Context) error {
		return nil
	})
	require.NoError(t, h(c))
	assert.Equal(t, "norte", c.Get("jwt_tenant_id"))
}

func TestDevSessionMiddleware(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-User", "dev@clinic.test")
	c := e.NewContext(req, httptest.NewRecorder())

	var got *Identity
	h := DevSessionMiddleware()(func(c echo.Context) error {
		got = IdentityFromContext(c.Request().Context())
		return nil
	})
	require.NoError(t, h(c))
	require.NotNil(t, got)
	assert.Equal(t, "dev@clinic.test", got.Email)
}
