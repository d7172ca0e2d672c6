package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hit(t *testing.T, mw echo.MiddlewareFunc, ip string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	req.Header.Set("X-Real-IP", ip)
	rec := httptest.NewRecorder()
	return rec, mw(okHandler)(e.NewContext(req, rec))
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3})

	for i := 0; i < 3; i++ {
		_, err := hit(t, mw, "10.0.0.1")
		require.NoError(t, err, "request %d", i+1)
	}

	rec, err := hit(t, mw, "10.0.0.1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTooManyRequests, apperr.CodeOf(err))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_PerClient(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	_, err := hit(t, mw, "10.0.0.1")
	require.NoError(t, err)
	_, err = hit(t, mw, "10.0.0.2")
	require.NoError(t, err)
	_, err = hit(t, mw, "10.0.0.1")
	require.Error(t, err)
}

func TestLimiterStore_EvictsIdle(t *testing.T) {
	s := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	start := time.Now()
	s.get("a", start)
	s.get("b", start)

	s.get("b", start.Add(2*time.Minute))
	assert.Len(t, s.entries, 1)
	assert.Contains(t, s.entries, "b")
}

func TestMemoryWindow(t *testing.T) {
	w := NewMemoryWindow()
	now := time.Unix(1000, 0)
	w.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := w.FixedWindowAllow(ctx, "pw:1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, retry, err := w.FixedWindowAllow(ctx, "pw:1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)

	now = now.Add(time.Minute)
	ok, _, err = w.FixedWindowAllow(ctx, "pw:1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryWindow_SweepsExpired(t *testing.T) {
	w := NewMemoryWindow()
	now := time.Unix(1000, 0)
	w.now = func() time.Time { return now }
	ctx := context.Background()

	for _, scope := range []string{"pw:1", "pw:2", "pw:3"} {
		_, _, err := w.FixedWindowAllow(ctx, scope, 5, time.Minute)
		require.NoError(t, err)
	}
	assert.Len(t, w.windows, 3)

	now = now.Add(2 * time.Minute)
	_, _, err := w.FixedWindowAllow(ctx, "pw:4", 5, time.Minute)
	require.NoError(t, err)
	assert.Len(t, w.windows, 1)
	assert.Contains(t, w.windows, "pw:4")
}

type failingWindow struct{}

func (failingWindow) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func TestWindowLimit(t *testing.T) {
	key := func(c echo.Context) string { return c.Request().Header.Get("X-Real-IP") }
	mw := WindowLimit(NewMemoryWindow(), "pw", 1, time.Minute, key, zerolog.Nop())

	_, err := hit(t, mw, "10.0.0.9")
	require.NoError(t, err)
	rec, err := hit(t, mw, "10.0.0.9")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTooManyRequests, apperr.CodeOf(err))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestWindowLimit_FailsOpen(t *testing.T) {
	key := func(c echo.Context) string { return "k" }
	mw := WindowLimit(failingWindow{}, "pw", 1, time.Minute, key, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := hit(t, mw, "10.0.0.9")
		require.NoError(t, err)
	}
}
