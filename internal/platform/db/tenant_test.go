package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTenantContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestExtractTenantID_ClientOverrideAllowed(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		jwt    string
		want   string
	}{
		{name: "default", target: "/", want: "default"},
		{name: "query", target: "/?tenant_id=norte", want: "norte"},
		{name: "header", target: "/", header: "centro", want: "centro"},
		{name: "header over query", target: "/?tenant_id=norte", header: "centro", want: "centro"},
		{name: "jwt over all", target: "/?tenant_id=norte", header: "centro", jwt: "sur", want: "sur"},
		{name: "empty jwt ignored", target: "/", header: "centro", jwt: "", want: "centro"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTenantContext(tt.target)
			if tt.header != "" {
				c.Request().Header.Set("X-Tenant-ID", tt.header)
			}
			c.Set("jwt_tenant_id", tt.jwt)
			assert.Equal(t, tt.want, extractTenantID(c, "default", true))
		})
	}
}

func TestExtractTenantID_IgnoresClientByDefault(t *testing.T) {
	c := newTenantContext("/?tenant_id=norte")
	c.Request().Header.Set("X-Tenant-ID", "centro")
	assert.Equal(t, "default", extractTenantID(c, "default", false))

	c.Set("jwt_tenant_id", "sur")
	assert.Equal(t, "sur", extractTenantID(c, "default", false))
}

func TestTenantMiddleware_RejectsInvalidClaim(t *testing.T) {
	c := newTenantContext("/")
	c.Set("jwt_tenant_id", "bad-id")
	called := false
	err := TenantMiddleware(nil, "default", false)(func(echo.Context) error {
		called = true
		return nil
	})(c)

	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.False(t, called)
}

func TestTenantIDPattern(t *testing.T) {
	for _, v := range []string{"abc", "clinic_1", "sede_norte_2", "A1B2"} {
		assert.True(t, tenantIDPattern.MatchString(v), v)
	}
	for _, v := range []string{"a-b", "a.b", "a b", "'; DROP TABLE", "a/b", ""} {
		assert.False(t, tenantIDPattern.MatchString(v), v)
	}
}

func TestSchemaName(t *testing.T) {
	assert.Equal(t, "clinic_default", SchemaName("default"))
}

func TestTenantFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), TenantIDKey, "norte")
	assert.Equal(t, "norte", TenantFromContext(ctx))
	assert.Empty(t, TenantFromContext(context.Background()))

	wrong := context.WithValue(context.Background(), TenantIDKey, 42)
	assert.Empty(t, TenantFromContext(wrong))
}

func TestConnFromContext(t *testing.T) {
	assert.Nil(t, ConnFromContext(context.Background()))

	wrong := context.WithValue(context.Background(), DBConnKey, "not a conn")
	assert.Nil(t, ConnFromContext(wrong))
}

func TestCreateTenantSchema_InvalidID(t *testing.T) {
	for _, id := range []string{"invalid-id!", "", "a;b", "../x"} {
		err := CreateTenantSchema(context.Background(), nil, id, nil)
		require.Error(t, err, id)
	}
}

func TestAcquireTenant_InvalidID(t *testing.T) {
	ctx, release, err := AcquireTenant(context.Background(), nil, "bad id")
	require.Error(t, err)
	assert.Nil(t, release)
	assert.Nil(t, ConnFromContext(ctx))
}
