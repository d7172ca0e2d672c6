package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/backup"
	"github.com/clinic/clinic/internal/domain/credentials"
	"github.com/clinic/clinic/internal/domain/dashboard"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/settings"
	"github.com/clinic/clinic/internal/domain/specialty"
	"github.com/clinic/clinic/internal/domain/users"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/audit"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/redis"
	"github.com/clinic/clinic/internal/platform/validate"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 10 * time.Second
	revocationTTL   = 30 * 24 * time.Hour
	restorePath     = "/api/superuser/backup"
)

// deps are the process-wide resources the router is built from.
type deps struct {
	cfg         *config.Config
	logger      zerolog.Logger
	pool        *pgxpool.Pool
	registry    *prometheus.Registry
	revocations auth.RevocationStore
	windows     middleware.WindowLimiter
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	d := deps{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		registry:    prometheus.NewRegistry(),
		revocations: auth.NewMemoryRevocationStore(),
		windows:     middleware.NewMemoryWindow(),
	}
	d.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.RedisURL != "" {
		rc, err := redis.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to redis")
			return err
		}
		defer rc.Close()
		d.revocations = redis.NewRevocationStore(rc, revocationTTL)
		d.windows = rc
		logger.Info().Msg("connected to redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set; session revocations and password limits are per process")
	}

	e := newServer(d)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newServer(d deps) *echo.Echo {
	cfg, logger, pool := d.cfg, d.logger, d.pool

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	metrics := middleware.NewMetrics(d.registry)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.RestoreBodyLimit,
		middleware.Route{Method: http.MethodPost, Path: restorePath}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
		AllowCredentials: true,
	}))

	// Session resolution
	if cfg.AuthSecret != "" {
		e.Use(auth.SessionMiddleware(auth.SessionConfig{
			Secret:      []byte(cfg.AuthSecret),
			Issuer:      cfg.AuthIssuer,
			Revocations: d.revocations,
			Skipper:     auth.AuthSkipper,
			Logger:      logger,
		}))
	}
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: X-Dev-User header accepted as identity")
		e.Use(auth.DevSessionMiddleware())
	}
	e.Use(audit.ClientIP())

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, logger))
	e.GET("/metrics", middleware.MetricsHandler(d.registry))

	// API groups
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api := e.Group("/api", middleware.RateLimit(rateLimitCfg), db.TenantMiddleware(pool, cfg.DefaultTenant, cfg.IsDev()))

	tx := db.NewTxRunner(pool)
	auditLogger := audit.NewLogger(audit.NewPGStore(pool), logger, d.registry)

	usersSvc := users.NewService(users.NewRepo(pool), tx, auditLogger, logger)
	su := api.Group("/superuser", auth.RequireRole(usersSvc, auth.RoleSuperuser))

	// Users, profile and bootstrap
	users.NewHandler(usersSvc).RegisterRoutes(api, su)

	// Patients
	patientSvc := patient.NewService(patient.NewRepo(pool), usersSvc, tx, auditLogger)
	patient.NewHandler(patientSvc).RegisterRoutes(api)

	// Specialties
	specialty.NewHandler(specialty.NewRepo(pool)).RegisterRoutes(api)

	// Superuser console
	audit.NewHandler(auditLogger).RegisterRoutes(su)
	settings.NewHandler(settings.NewService(settings.NewRepo(pool), tx, auditLogger)).RegisterRoutes(su)
	backup.NewHandler(backup.NewService(backup.NewRepo(pool), tx, auditLogger, logger)).RegisterRoutes(su)
	dashboard.NewHandler(dashboard.NewService(usersSvc, patientSvc, auditLogger)).RegisterRoutes(su)

	credSvc := credentials.NewService(credentials.NewRepo(pool), tx, auditLogger, d.revocations, logger)
	passwordLimit := middleware.WindowLimit(d.windows, "change-password", int64(cfg.PasswordAttempts),
		time.Minute, credentials.LimitKey, logger)
	credentials.NewHandler(credSvc).RegisterRoutes(su, passwordLimit)

	return e
}
