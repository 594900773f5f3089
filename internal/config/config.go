// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3010"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// AutoMigrate runs pending schema migrations on server start.
	AutoMigrate bool `env:"AUTO_MIGRATE" envDefault:"true"`

	// Database settings
	Database DatabaseConfig

	// Admin auth settings
	Auth AuthConfig

	// Dedup review queue settings
	Dedup DedupConfig

	// OpenTelemetry tracing
	Otel OtelConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"trapper"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"trapper"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// AuthConfig holds admin authentication settings.
//
// The cockpit trusts an upstream SSO proxy for interactive sessions; this
// service only needs to verify that the caller carries the admin capability.
// Two mechanisms are supported: a static API key (ops scripts, smoke tests)
// and an HS256 JWT minted by the session provider with actor email and roles.
type AuthConfig struct {
	// APIKey is the static admin key accepted via X-API-Key or Bearer.
	APIKey string `env:"ADMIN_API_KEY" envDefault:""`

	// JWTSecret verifies HS256 session tokens. Empty disables JWT auth.
	JWTSecret string `env:"AUTH_JWT_SECRET" envDefault:""`

	// APIKeyActor is the actor recorded in the audit ledger for API key calls.
	APIKeyActor string `env:"ADMIN_API_KEY_ACTOR" envDefault:"ops@localhost"`
}

// IsConfigured returns true when at least one auth mechanism is available.
func (a *AuthConfig) IsConfigured() bool {
	return a.APIKey != "" || a.JWTSecret != ""
}

// DedupConfig holds tunables for the dedup review queue.
type DedupConfig struct {
	// DefaultPageSize is the page size when the caller omits limit.
	DefaultPageSize int `env:"DEDUP_DEFAULT_PAGE_SIZE" envDefault:"30"`

	// MaxPageSize caps the caller-supplied limit.
	MaxPageSize int `env:"DEDUP_MAX_PAGE_SIZE" envDefault:"200"`

	// MaxBatchSize caps the number of pairs in one resolve call.
	MaxBatchSize int `env:"DEDUP_MAX_BATCH_SIZE" envDefault:"100"`

	// ResolveRatePerMinute limits resolve calls per actor.
	ResolveRatePerMinute int `env:"DEDUP_RESOLVE_RATE_PER_MINUTE" envDefault:"120"`

	// ResolveBurst is the rate limiter burst size.
	ResolveBurst int `env:"DEDUP_RESOLVE_BURST" envDefault:"20"`

	// StatsInterval is how often the scheduler refreshes queue-depth metrics.
	StatsInterval time.Duration `env:"DEDUP_STATS_INTERVAL" envDefault:"5m"`
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.Bool("auth_configured", cfg.Auth.IsConfigured()),
	)

	return cfg, nil
}
