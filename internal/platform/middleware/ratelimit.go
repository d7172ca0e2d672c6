package middleware

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const rateLimitMessage = "Demasiadas solicitudes. Intente más tarde."

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL evicts limiters for keys not seen for this long.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 20, BurstSize: 40, IdleTTL: 10 * time.Minute}
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type limiterStore struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	cfg       RateLimitConfig
	lastSweep time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &limiterStore{entries: make(map[string]*limiterEntry), cfg: cfg, lastSweep: time.Now()}
}

func (s *limiterStore) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > s.cfg.IdleTTL {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) > s.cfg.IdleTTL {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}

	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)}
		s.entries[key] = e
	}
	e.lastSeen = now
	return e.lim
}

// RateLimit applies a per client IP token bucket.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
				key = tid + ":" + key
			}

			now := time.Now()
			lim := store.get(key, now)
			c.Response().Header().Set("X-RateLimit-Limit", limitHeader)

			r := lim.ReserveN(now, 1)
			if !r.OK() {
				return tooMany(c, time.Second)
			}
			if delay := r.DelayFrom(now); delay > 0 {
				r.CancelAt(now)
				return tooMany(c, delay)
			}
			return next(c)
		}
	}
}

func tooMany(c echo.Context, retry time.Duration) error {
	secs := int(math.Ceil(retry.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	c.Response().Header().Set("X-RateLimit-Remaining", "0")
	return apperr.TooManyRequests(rateLimitMessage)
}

// WindowLimiter counts hits in fixed windows. The Redis client implements it
// for limits shared across instances.
type WindowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, time.Duration, error)
}

// WindowLimit caps hits per key within window. keyFn returns "" to skip the
// check. Limiter errors let the request through and are logged.
func WindowLimit(l WindowLimiter, name string, limit int64, window time.Duration, keyFn func(echo.Context) string, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := keyFn(c)
			if key == "" {
				return next(c)
			}
			ok, retry, err := l.FixedWindowAllow(c.Request().Context(), name+":"+key, limit, window)
			if err != nil {
				logger.Warn().Err(err).Str("limit", name).Msg("window limiter unavailable")
				return next(c)
			}
			if !ok {
				return tooMany(c, retry)
			}
			return next(c)
		}
	}
}

// MemoryWindow is the in-process WindowLimiter. Expired windows are swept
// at most once per window length.
type MemoryWindow struct {
	mu        sync.Mutex
	windows   map[string]*window
	now       func() time.Time
	lastSweep time.Time
}

type window struct {
	count int64
	reset time.Time
}

func NewMemoryWindow() *MemoryWindow {
	return &MemoryWindow{windows: make(map[string]*window), now: time.Now}
}

func (m *MemoryWindow) FixedWindowAllow(_ context.Context, scope string, limit int64, d time.Duration) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) > d {
		for k, w := range m.windows {
			if !now.Before(w.reset) {
				delete(m.windows, k)
			}
		}
		m.lastSweep = now
	}

	w, ok := m.windows[scope]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(d)}
		m.windows[scope] = w
	}
	w.count++
	if w.count <= limit {
		return true, 0, nil
	}
	return false, w.reset.Sub(now), nil
}
