// Package config builds the runtime configuration from defaults, an optional
// YAML file, environment variables, and CLI flags, in that precedence order.
package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Config is the resolved runtime configuration.
type Config struct {
	// Database selects the SQL flavor (sqlite, pgsql, mysql, mariadb, mssql).
	Database string `koanf:"database"`
	// ConnectionStr is the backend connection string. Empty selects the
	// backend's default.
	ConnectionStr string `koanf:"connection_str"`
	// Port is the HTTP listen port.
	Port int `koanf:"port"`
	// APIBase is the path prefix the API is mounted under.
	APIBase string `koanf:"api_base"`
	// EnableRBAC toggles the authorization gate.
	EnableRBAC bool `koanf:"enable_rbac"`
	// PurviewName, when set, selects an external catalog backend instead
	// of the SQL registry.
	PurviewName string `koanf:"purview_name"`
	// DefaultAdmin is seeded as the first global admin when RBAC is on.
	DefaultAdmin string `koanf:"default_admin"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
}

// CatalogBackend names the registry implementation the configuration selects.
func (c *Config) CatalogBackend() string {
	if c.PurviewName != "" {
		return "purview"
	}
	return "sql"
}

// ListenAddr renders the bind address.
func (c *Config) ListenAddr() string { return fmt.Sprintf(":%d", c.Port) }

// SlogLevel converts the configured level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid listen port %d", c.Port)
	}
	if !strings.HasPrefix(c.APIBase, "/") {
		return fmt.Errorf("api base %q must start with /", c.APIBase)
	}
	return nil
}
