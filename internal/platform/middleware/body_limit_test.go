package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLimit(t *testing.T) {
	tests := map[string]int64{
		"":      1 << 20,
		"100":   100,
		"512K":  512 << 10,
		"512KB": 512 << 10,
		"1M":    1 << 20,
		"20mb":  20 << 20,
		"2G":    2 << 30,
		"abc":   1 << 20,
		"-5":    1 << 20,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLimit(in), in)
	}
}

func readAll(c echo.Context) error {
	if _, err := io.ReadAll(c.Request().Body); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func serveWithLimit(t *testing.T, method, path, body string) int {
	t.Helper()
	e := echo.New()
	e.Use(BodyLimit("10", "100", Route{Method: http.MethodPost, Path: "/api/superuser/backup"}))
	e.POST("/api/superuser/backup", readAll)
	e.POST("/api/patients", readAll)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec.Code
}

func TestBodyLimit_Default(t *testing.T) {
	assert.Equal(t, http.StatusOK, serveWithLimit(t, http.MethodPost, "/api/patients", "0123456789"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, serveWithLimit(t, http.MethodPost, "/api/patients", "0123456789X"))
}

func TestBodyLimit_LargeRoute(t *testing.T) {
	assert.Equal(t, http.StatusOK, serveWithLimit(t, http.MethodPost, "/api/superuser/backup", strings.Repeat("x", 100)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, serveWithLimit(t, http.MethodPost, "/api/superuser/backup", strings.Repeat("x", 101)))
}

func TestBodyLimit_UnknownLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader(strings.Repeat("x", 50))))
	req.ContentLength = -1
	c := e.NewContext(req, httptest.NewRecorder())

	err := BodyLimit("10", "10")(readAll)(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusRequestEntityTooLarge, he.Code)
}
