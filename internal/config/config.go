package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	DBConnectTimeout time.Duration `mapstructure:"DB_CONNECT_TIMEOUT"`
	DBIdleTimeout    time.Duration `mapstructure:"DB_IDLE_TIMEOUT"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	AuthSecret       string        `mapstructure:"AUTH_SECRET"`
	AuthURL          string        `mapstructure:"AUTH_URL"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	DefaultTenant    string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	PasswordAttempts int           `mapstructure:"PASSWORD_ATTEMPTS_PER_MINUTE"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`
	RestoreBodyLimit string        `mapstructure:"RESTORE_BODY_LIMIT"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DB_CONNECT_TIMEOUT", "DB_IDLE_TIMEOUT", "REDIS_URL", "AUTH_SECRET", "AUTH_URL",
	"AUTH_ISSUER", "DEFAULT_TENANT", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"PASSWORD_ATTEMPTS_PER_MINUTE", "BODY_LIMIT", "RESTORE_BODY_LIMIT", "REQUEST_TIMEOUT",
	"MIGRATIONS_DIR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_CONNECT_TIMEOUT", "10s")
	v.SetDefault("DB_IDLE_TIMEOUT", "20s")
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("PASSWORD_ATTEMPTS_PER_MINUTE", 5)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("RESTORE_BODY_LIMIT", "20M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsDev reports an explicit ENV=development. Development mode trusts the
// X-Dev-User header and client-chosen clinics, so it is never the default.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate reports every configuration problem at once. Outside development
// AUTH_SECRET must be long enough to sign sessions safely.
func (c *Config) Validate() error {
	var err error
	if c.DatabaseURL == "" {
		err = multierr.Append(err, fmt.Errorf("DATABASE_URL is required"))
	}
	if !c.IsDev() && len(c.AuthSecret) < 32 {
		err = multierr.Append(err, fmt.Errorf("AUTH_SECRET must be at least 32 characters when ENV=%q", c.Env))
	}
	if c.DBMinConns > c.DBMaxConns {
		err = multierr.Append(err, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		err = multierr.Append(err, fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.PasswordAttempts <= 0 {
		err = multierr.Append(err, fmt.Errorf("PASSWORD_ATTEMPTS_PER_MINUTE must be positive"))
	}
	if c.RequestTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("REQUEST_TIMEOUT must be positive"))
	}
	return err
}
