// Package config provides centralized configuration management for the lead
// import service. Settings come from environment variables with defaults and
// are validated on startup so misconfiguration fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"2m"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds every request except the commit call, which uses
	// Import.CommitTimeout.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// StoreConfig selects and tunes the lead store behind the commit gateway.
type StoreConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// URL is a PostgreSQL connection string or a SQLite file path.
	// DATABASE_URL and DB_URL are both accepted.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds lead import pipeline settings.
type ImportConfig struct {
	// MaxFileSize is the largest accepted upload in bytes (default: 20MB).
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	// MaxRows is the largest number of data rows accepted in one file.
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"50000"`

	// MaxSessions caps the number of open import sessions held in memory.
	MaxSessions int `env:"IMPORT_MAX_SESSIONS" default:"500"`

	// SessionTTL is how long an idle session is kept before the sweeper drops it.
	SessionTTL    time.Duration `env:"IMPORT_SESSION_TTL" default:"1h"`
	SweepInterval time.Duration `env:"IMPORT_SWEEP_INTERVAL" default:"5m"`

	// PreviewRowLimit caps rows rendered in the preview (display only).
	PreviewRowLimit int `env:"IMPORT_PREVIEW_ROW_LIMIT" default:"100"`

	// DefaultStatus and SourceTag are stamped on every committed lead.
	DefaultStatus string `env:"IMPORT_DEFAULT_STATUS" default:"new"`
	SourceTag     string `env:"IMPORT_SOURCE_TAG" default:"csv_import"`

	MaxConcurrentCommits int           `env:"IMPORT_MAX_CONCURRENT_COMMITS" default:"4"`
	CommitWaitTime       time.Duration `env:"IMPORT_COMMIT_WAIT_TIME" default:"15s"`
	CommitTimeout        time.Duration `env:"IMPORT_COMMIT_TIMEOUT" default:"2m"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`
}

// SecurityConfig holds settings for the trusted upstream that authenticates users.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are honoured.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// TenantHeader carries the authenticated tenant id set by the upstream.
	TenantHeader string `env:"SECURITY_TENANT_HEADER" default:"X-Tenant-ID"`

	// RequireTenant rejects API requests without a tenant header.
	RequireTenant bool `env:"SECURITY_REQUIRE_TENANT" default:"true"`

	// DefaultTenant is used when the header is absent and RequireTenant
	// is false.
	DefaultTenant string `env:"SECURITY_DEFAULT_TENANT" default:"default"`

	// RequireAPIKey enables X-API-Key validation on /api routes.
	RequireAPIKey bool `env:"SECURITY_REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys.
	APIKeys []string `env:"SECURITY_API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is text or json.
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
