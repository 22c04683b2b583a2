package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	defaultJWTSecret       = "change-me-jwt-secret"
	defaultJWTTTL          = "24h"
	defaultHTTPPort        = "8080"
	defaultShutdownTimeout = "10s"
	defaultDatabaseURL     = "servicecenter.db"
	defaultConnMaxLifetime = "30m"
	defaultLockTimeout     = "5s"
	defaultMaxChainDepth   = 64
	defaultFullRefundAt    = "24h"
	defaultPartialRefundAt = "2h"
	defaultPartialRefund   = 50
	defaultMetricsPath     = "/metrics"
)

type Config struct {
	AppEnv        string
	SnowflakeNode int64
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Booking       BookingConfig
	Quota         QuotaConfig
	Logs          LogsConfig
	Metrics       MetricsConfig
}

type ServerConfig struct {
	Port            string
	CORSOrigins     string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogQueries      bool
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// BookingConfig holds appointment lifecycle policy.
type BookingConfig struct {
	MaxChainDepth int
	// Notice thresholds for refund tiers, measured from cancellation to the
	// scheduled start.
	FullRefundNotice     time.Duration
	PartialRefundNotice  time.Duration
	PartialRefundPercent int
}

type QuotaConfig struct {
	LockTimeout time.Duration
}

type LogsConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// fileConfig mirrors the optional TOML file. Durations are kept as strings
// and parsed together with the environment overrides.
type fileConfig struct {
	AppEnv        string `toml:"app_env"`
	SnowflakeNode int64  `toml:"snowflake_node"`
	Server        struct {
		Port            string `toml:"port"`
		CORSOrigins     string `toml:"cors_origins"`
		ShutdownTimeout string `toml:"shutdown_timeout"`
	} `toml:"server"`
	Database struct {
		URL             string `toml:"url"`
		MaxOpenConns    int    `toml:"max_open_conns"`
		MaxIdleConns    int    `toml:"max_idle_conns"`
		ConnMaxLifetime string `toml:"conn_max_lifetime"`
		LogQueries      bool   `toml:"log_queries"`
	} `toml:"database"`
	Auth struct {
		JWTSecret string `toml:"jwt_secret"`
		TokenTTL  string `toml:"token_ttl"`
	} `toml:"auth"`
	Booking struct {
		MaxChainDepth        int    `toml:"max_chain_depth"`
		FullRefundNotice     string `toml:"full_refund_notice"`
		PartialRefundNotice  string `toml:"partial_refund_notice"`
		PartialRefundPercent int    `toml:"partial_refund_percent"`
	} `toml:"booking"`
	Quota struct {
		LockTimeout string `toml:"lock_timeout"`
	} `toml:"quota"`
	Logs struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logs"`
	Metrics struct {
		Enabled *bool  `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"metrics"`
}

// Load reads .env (if present), then the optional TOML file at path, then
// environment variables. Later sources win.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var fc fileConfig
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &fc); err != nil {
				return nil, fmt.Errorf("decode config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	var err error

	cfg.AppEnv = strings.ToLower(strings.TrimSpace(getEnv("APP_ENV", orDefault(fc.AppEnv, "dev"))))
	cfg.SnowflakeNode, err = parseIntEnv("SNOWFLAKE_NODE", orDefaultInt64(fc.SnowflakeNode, 1))
	if err != nil {
		return nil, err
	}

	cfg.Server.Port = strings.TrimSpace(getEnv("HTTP_PORT", orDefault(fc.Server.Port, defaultHTTPPort)))
	cfg.Server.CORSOrigins = getEnv("CORS_ORIGINS", fc.Server.CORSOrigins)
	if cfg.Server.ShutdownTimeout, err = parseDurationEnv("SHUTDOWN_TIMEOUT", orDefault(fc.Server.ShutdownTimeout, defaultShutdownTimeout)); err != nil {
		return nil, err
	}

	cfg.Database.URL = strings.TrimSpace(getEnv("DATABASE_URL", orDefault(fc.Database.URL, defaultDatabaseURL)))
	maxOpen, err := parseIntEnv("DB_MAX_OPEN_CONNS", int64(orDefaultInt(fc.Database.MaxOpenConns, 25)))
	if err != nil {
		return nil, err
	}
	maxIdle, err := parseIntEnv("DB_MAX_IDLE_CONNS", int64(orDefaultInt(fc.Database.MaxIdleConns, 5)))
	if err != nil {
		return nil, err
	}
	cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns = int(maxOpen), int(maxIdle)
	if cfg.Database.ConnMaxLifetime, err = parseDurationEnv("DB_CONN_MAX_LIFETIME", orDefault(fc.Database.ConnMaxLifetime, defaultConnMaxLifetime)); err != nil {
		return nil, err
	}
	cfg.Database.LogQueries = parseBoolEnv("DB_LOG_QUERIES", strconv.FormatBool(fc.Database.LogQueries))

	cfg.Auth.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", orDefault(fc.Auth.JWTSecret, defaultJWTSecret)))
	if cfg.Auth.TokenTTL, err = parseDurationEnv("JWT_TTL", orDefault(fc.Auth.TokenTTL, defaultJWTTTL)); err != nil {
		return nil, err
	}

	depth, err := parseIntEnv("MAX_CHAIN_DEPTH", int64(orDefaultInt(fc.Booking.MaxChainDepth, defaultMaxChainDepth)))
	if err != nil {
		return nil, err
	}
	cfg.Booking.MaxChainDepth = int(depth)
	if cfg.Booking.FullRefundNotice, err = parseDurationEnv("FULL_REFUND_NOTICE", orDefault(fc.Booking.FullRefundNotice, defaultFullRefundAt)); err != nil {
		return nil, err
	}
	if cfg.Booking.PartialRefundNotice, err = parseDurationEnv("PARTIAL_REFUND_NOTICE", orDefault(fc.Booking.PartialRefundNotice, defaultPartialRefundAt)); err != nil {
		return nil, err
	}
	pct, err := parseIntEnv("PARTIAL_REFUND_PERCENT", int64(orDefaultInt(fc.Booking.PartialRefundPercent, defaultPartialRefund)))
	if err != nil {
		return nil, err
	}
	cfg.Booking.PartialRefundPercent = int(pct)

	if cfg.Quota.LockTimeout, err = parseDurationEnv("QUOTA_LOCK_TIMEOUT", orDefault(fc.Quota.LockTimeout, defaultLockTimeout)); err != nil {
		return nil, err
	}

	cfg.Logs.Level = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", orDefault(fc.Logs.Level, "info"))))
	cfg.Logs.Format = strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", orDefault(fc.Logs.Format, "json"))))

	metricsEnabled := "true"
	if fc.Metrics.Enabled != nil {
		metricsEnabled = strconv.FormatBool(*fc.Metrics.Enabled)
	}
	cfg.Metrics.Enabled = parseBoolEnv("METRICS_ENABLED", metricsEnabled)
	cfg.Metrics.Path = strings.TrimSpace(getEnv("METRICS_PATH", orDefault(fc.Metrics.Path, defaultMetricsPath)))

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port == "" {
		return fmt.Errorf("HTTP_PORT must not be empty")
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be > 0")
	}
	if cfg.Quota.LockTimeout <= 0 {
		return fmt.Errorf("QUOTA_LOCK_TIMEOUT must be > 0")
	}
	if cfg.Booking.MaxChainDepth <= 0 {
		return fmt.Errorf("MAX_CHAIN_DEPTH must be > 0")
	}
	if cfg.Booking.PartialRefundNotice <= 0 || cfg.Booking.FullRefundNotice <= cfg.Booking.PartialRefundNotice {
		return fmt.Errorf("refund notice thresholds must satisfy 0 < PARTIAL_REFUND_NOTICE < FULL_REFUND_NOTICE")
	}
	if cfg.Booking.PartialRefundPercent < 0 || cfg.Booking.PartialRefundPercent > 100 {
		return fmt.Errorf("PARTIAL_REFUND_PERCENT must be within 0..100")
	}
	if cfg.SnowflakeNode < 0 || cfg.SnowflakeNode > 1023 {
		return fmt.Errorf("SNOWFLAKE_NODE must be within 0..1023")
	}
	switch cfg.Logs.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}

	if IsProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.Auth.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
	}
	return nil
}

func IsProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name string, fallback int64) (int64, error) {
	value := strings.TrimSpace(getEnv(name, strconv.FormatInt(fallback, 10)))
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultInt64(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}
