package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// defaults is the base layer every other source overrides.
var defaults = map[string]any{
	"database":       "sqlite",
	"connection_str": "",
	"port":           8000,
	"api_base":       "/api/v1",
	"enable_rbac":    false,
	"purview_name":   "",
	"default_admin":  "",
	"log_level":      "info",
}

// envKeys maps the recognized environment variables onto config keys.
// Anything else in the environment is ignored.
var envKeys = map[string]string{
	"FEATHR_REGISTRY_DATABASE":       "database",
	"FEATHR_REGISTRY_CONNECTION_STR": "connection_str",
	"FEATHR_REGISTRY_LISTENING_PORT": "port",
	"FEATHR_API_BASE":                "api_base",
	"REACT_APP_ENABLE_RBAC":          "enable_rbac",
	"PURVIEW_NAME":                   "purview_name",
	"RBAC_DEFAULT_ADMIN":             "default_admin",
	"FEATHR_REGISTRY_LOG_LEVEL":      "log_level",
}

// Load resolves the configuration. Precedence, lowest to highest: built-in
// defaults, the YAML file at path (skipped when empty or absent), recognized
// environment variables, CLI flags that were explicitly set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		// Flag names use dashes, config keys use underscores.
		if err := k.Load(posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			return strings.ReplaceAll(key, "-", "_"), value
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
