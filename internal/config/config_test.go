package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Database != "sqlite" {
		t.Errorf("expected default database sqlite, got %q", cfg.Database)
	}
	if cfg.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Port)
	}
	if cfg.APIBase != "/api/v1" {
		t.Errorf("expected default api base /api/v1, got %q", cfg.APIBase)
	}
	if cfg.EnableRBAC {
		t.Error("expected RBAC to default off")
	}
	if cfg.CatalogBackend() != "sql" {
		t.Errorf("expected sql backend, got %q", cfg.CatalogBackend())
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("FEATHR_REGISTRY_DATABASE", "pgsql")
	t.Setenv("FEATHR_REGISTRY_CONNECTION_STR", "postgres://reg:secret@db/registry")
	t.Setenv("FEATHR_REGISTRY_LISTENING_PORT", "8080")
	t.Setenv("REACT_APP_ENABLE_RBAC", "true")
	t.Setenv("RBAC_DEFAULT_ADMIN", "root@example.com")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Database != "pgsql" {
		t.Errorf("expected database pgsql, got %q", cfg.Database)
	}
	if cfg.ConnectionStr != "postgres://reg:secret@db/registry" {
		t.Errorf("unexpected connection string %q", cfg.ConnectionStr)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if !cfg.EnableRBAC {
		t.Error("expected RBAC enabled")
	}
	if cfg.DefaultAdmin != "root@example.com" {
		t.Errorf("unexpected default admin %q", cfg.DefaultAdmin)
	}
}

func TestLoad_FileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "featgraph.yaml")
	if err := os.WriteFile(path, []byte("port: 9000\ndatabase: mysql\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8000, "")
	if err := flags.Parse([]string{"--port=9100"}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	// Flags beat the file, the file beats defaults.
	if cfg.Port != 9100 {
		t.Errorf("expected flag port 9100, got %d", cfg.Port)
	}
	if cfg.Database != "mysql" {
		t.Errorf("expected file database mysql, got %q", cfg.Database)
	}
}

func TestLoad_PurviewSelectsCatalogBackend(t *testing.T) {
	t.Setenv("PURVIEW_NAME", "corp-catalog")
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.CatalogBackend() != "purview" {
		t.Errorf("expected purview backend, got %q", cfg.CatalogBackend())
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("FEATHR_REGISTRY_LISTENING_PORT", "-1")
	if _, err := Load("", nil); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestGenerateWebConfig(t *testing.T) {
	tests := []struct {
		name    string
		defined map[string]string
		want    []string
		absent  []string
	}{
		{
			name: "subset of defined variables",
			defined: map[string]string{
				"FEATHR_REGISTRY_DATABASE": "sqlite",
				"FEATHR_API_BASE":          "/api/v1",
			},
			want:   []string{"FEATHR_REGISTRY_DATABASE", "FEATHR_API_BASE"},
			absent: []string{"PURVIEW_NAME", "REACT_APP_ENABLE_RBAC"},
		},
		{
			name:    "nothing defined",
			defined: map[string]string{},
		},
		{
			name: "unrecognized variables are ignored",
			defined: map[string]string{
				"FEATHR_REGISTRY_DATABASE": "mysql",
				"HOME":                     "/root",
			},
			want:   []string{"FEATHR_REGISTRY_DATABASE"},
			absent: []string{"HOME"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := func(key string) (string, bool) {
				v, ok := tt.defined[key]
				return v, ok
			}
			doc, err := GenerateWebConfig(lookup)
			if err != nil {
				t.Fatalf("failed to generate web config: %v", err)
			}
			var decoded map[string]string
			if err := json.Unmarshal(doc, &decoded); err != nil {
				t.Fatalf("generated document is not valid JSON: %v", err)
			}
			if len(decoded) != len(tt.want) {
				t.Errorf("expected %d keys, got %d: %s", len(tt.want), len(decoded), doc)
			}
			for _, key := range tt.want {
				if decoded[key] != tt.defined[key] {
					t.Errorf("expected %s=%q in document", key, tt.defined[key])
				}
			}
			for _, key := range tt.absent {
				if _, ok := decoded[key]; ok {
					t.Errorf("expected %s to be absent", key)
				}
			}
		})
	}
}

func TestGenerateWebConfig_StableOrder(t *testing.T) {
	lookup := func(key string) (string, bool) { return "x", true }
	doc, err := GenerateWebConfig(lookup)
	if err != nil {
		t.Fatalf("failed to generate web config: %v", err)
	}
	s := string(doc)
	last := -1
	for _, key := range webSettings {
		i := strings.Index(s, key)
		if i < 0 {
			t.Fatalf("expected %s in document", key)
		}
		if i < last {
			t.Errorf("expected %s to appear after previous key", key)
		}
		last = i
	}

	again, err := GenerateWebConfig(lookup)
	if err != nil {
		t.Fatalf("failed to regenerate: %v", err)
	}
	if string(again) != s {
		t.Error("expected generation to be deterministic")
	}
}
