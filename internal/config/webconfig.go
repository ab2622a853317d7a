package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// webSettings enumerates the environment variables surfaced to the web UI,
// in the order they appear in the generated document.
var webSettings = []string{
	"FEATHR_REGISTRY_DATABASE",
	"FEATHR_REGISTRY_CONNECTION_STR",
	"FEATHR_REGISTRY_LISTENING_PORT",
	"FEATHR_API_BASE",
	"REACT_APP_ENABLE_RBAC",
	"PURVIEW_NAME",
}

// Lookup reports an environment variable's value and whether it is defined.
// os.LookupEnv satisfies it.
type Lookup func(key string) (string, bool)

// GenerateWebConfig renders the runtime settings document served to the web
// UI: a JSON object holding exactly the defined variables, keyed by variable
// name, in stable order. Undefined variables are skipped, not errors.
func GenerateWebConfig(lookup Lookup) ([]byte, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, key := range webSettings {
		value, ok := lookup(key)
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("failed to render web config: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// WriteWebConfig writes the settings document to a web-servable path.
func WriteWebConfig(path string, lookup Lookup) error {
	doc, err := GenerateWebConfig(lookup)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return fmt.Errorf("failed to write web config: %w", err)
	}
	return nil
}
