package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads configuration from environment variables, applies defaults for
// unset values and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := os.Getenv(envName)
		if alt := field.Tag.Get("envAlt"); value == "" && alt != "" {
			value = os.Getenv(alt)
		}

		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField assigns a string value to a field according to its kind.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		var items []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		field.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is usable and reports every
// failure at once.
func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.Store.Driver) {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER (%q) must be one of: postgres, sqlite", c.Store.Driver))
	}
	if c.Store.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Store.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Store.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Store.MaxConns < c.Store.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Store.MaxConns, c.Store.MinConns))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Import.MaxFileSize <= 0 {
		errs = append(errs, "IMPORT_MAX_FILE_SIZE must be positive")
	}
	if c.Import.MaxRows <= 0 {
		errs = append(errs, "IMPORT_MAX_ROWS must be positive")
	}
	if c.Import.MaxSessions <= 0 {
		errs = append(errs, "IMPORT_MAX_SESSIONS must be positive")
	}
	if c.Import.SessionTTL <= 0 {
		errs = append(errs, "IMPORT_SESSION_TTL must be positive")
	}
	if c.Import.SweepInterval <= 0 {
		errs = append(errs, "IMPORT_SWEEP_INTERVAL must be positive")
	}
	if c.Import.PreviewRowLimit <= 0 {
		errs = append(errs, "IMPORT_PREVIEW_ROW_LIMIT must be positive")
	}
	if strings.TrimSpace(c.Import.DefaultStatus) == "" {
		errs = append(errs, "IMPORT_DEFAULT_STATUS must not be empty")
	}
	if strings.TrimSpace(c.Import.SourceTag) == "" {
		errs = append(errs, "IMPORT_SOURCE_TAG must not be empty")
	}
	if c.Import.MaxConcurrentCommits <= 0 {
		errs = append(errs, "IMPORT_MAX_CONCURRENT_COMMITS must be positive")
	}
	if c.Import.CommitWaitTime <= 0 {
		errs = append(errs, "IMPORT_COMMIT_WAIT_TIME must be positive")
	}
	if c.Import.CommitTimeout <= 0 {
		errs = append(errs, "IMPORT_COMMIT_TIMEOUT must be positive")
	}

	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	if c.Security.RequireTenant && strings.TrimSpace(c.Security.TenantHeader) == "" {
		errs = append(errs, "SECURITY_TENANT_HEADER must be set when SECURITY_REQUIRE_TENANT is true")
	}
	if !c.Security.RequireTenant && strings.TrimSpace(c.Security.DefaultTenant) == "" {
		errs = append(errs, "SECURITY_DEFAULT_TENANT must be set when SECURITY_REQUIRE_TENANT is false")
	}
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "SECURITY_API_KEYS must be set when SECURITY_REQUIRE_API_KEY is true")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a log-safe representation with the store URL masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Store: {Driver: %q, URL: [MASKED], MaxConns: %d}, ", c.Store.Driver, c.Store.MaxConns)
	fmt.Fprintf(&b, "Import: {MaxFileSize: %d, MaxRows: %d, MaxSessions: %d, SessionTTL: %s}, ",
		c.Import.MaxFileSize, c.Import.MaxRows, c.Import.MaxSessions, c.Import.SessionTTL)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ", c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
