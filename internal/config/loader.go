package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads and parses a ProxyConfig from path, applying spec-mandated
// defaults for any knob the document omits, then validates every backend
// spec, failing the whole load if any one backend is malformed (spec §3:
// "unknown kind is rejected at load").
func Load(path string) (*ProxyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw JSON bytes into a validated ProxyConfig, starting
// from Defaults() so an absent knob keeps its spec default rather than
// zeroing out.
func Parse(data []byte) (*ProxyConfig, error) {
	cfg := Defaults()

	// Decode onto a struct whose bool/int fields default to Go zero
	// values if present in JSON but we want spec defaults preserved when
	// the key is entirely absent; encoding/json only overwrites fields
	// present in the document, so decoding directly onto cfg achieves
	// that without extra bookkeeping.
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for name, spec := range cfg.McpServers {
		spec.Name = name
		if err := spec.Validate(name); err != nil {
			return nil, err
		}
		cfg.McpServers[name] = spec
	}

	return &cfg, nil
}

// Save serializes cfg as indented JSON to path.
func Save(path string, cfg *ProxyConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}
