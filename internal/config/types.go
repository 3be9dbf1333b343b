// Package config holds the backend definitions and runtime knobs that
// drive the proxy, and the passive store that tracks their dirty state.
package config

import (
	"encoding/json"
	"fmt"
)

// TransportKind is the BackendSpec transport discriminator.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportHTTP  TransportKind = "http"
)

// BackendSpec is the immutable description of one upstream backend.
// stdio requires Command; http requires URL. Unknown Type values are
// rejected by Validate, which Parse runs on every backend after decoding.
type BackendSpec struct {
	Name    string            `json:"-"`
	Type    TransportKind     `json:"type"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Enabled *bool             `json:"enabled,omitempty"`
	// PoolSize overrides the connection pool capacity for this backend
	// (spec §9 Open Question, resolved in favor of configurability).
	PoolSize int `json:"pool_size,omitempty"`
}

// IsEnabled defaults to true when the field is absent, per spec §6.
func (b BackendSpec) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// backendSpecRaw mirrors BackendSpec for JSON decoding without invoking
// UnmarshalJSON recursively.
type backendSpecRaw struct {
	Type     TransportKind     `json:"type"`
	Command  string            `json:"command,omitempty"`
	Args     []string          `json:"args,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	URL      string            `json:"url,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Enabled  *bool             `json:"enabled,omitempty"`
	PoolSize int               `json:"pool_size,omitempty"`
}

// UnmarshalJSON decodes the wire fields; type-specific required-field
// validation happens afterward via Validate, once the loader has
// assigned the backend's name from its containing map key (so error
// messages name the offending backend, mirroring
// McpServerConfig.model_post_init in the original implementation).
func (b *BackendSpec) UnmarshalJSON(data []byte) error {
	var raw backendSpecRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type == "" {
		raw.Type = TransportStdio
	}
	*b = BackendSpec{
		Type:     raw.Type,
		Command:  raw.Command,
		Args:     raw.Args,
		Env:      raw.Env,
		URL:      raw.URL,
		Headers:  raw.Headers,
		Enabled:  raw.Enabled,
		PoolSize: raw.PoolSize,
	}
	return nil
}

// Validate enforces the BackendSpec invariant from spec §3. name, when
// non-empty, is used only to produce a more useful error message; the
// name itself is assigned by the caller (the containing map key) since
// BackendSpec carries no name field on the wire.
func (b BackendSpec) Validate(name string) error {
	label := name
	if label == "" {
		label = "<unnamed>"
	}
	switch b.Type {
	case TransportStdio:
		if b.Command == "" {
			return fmt.Errorf("server '%s': stdio type requires 'command' field", label)
		}
	case TransportHTTP:
		if b.URL == "" {
			return fmt.Errorf("server '%s': http type requires 'url' field", label)
		}
	default:
		return fmt.Errorf("server '%s': unknown type '%s', must be 'stdio' or 'http'", label, b.Type)
	}
	return nil
}

// ProxyConfig is the top-level JSON configuration document (spec §6).
// Unknown top-level keys are ignored by encoding/json's default decode
// behavior, satisfying the "unknown top-level keys do not fail load"
// boundary behavior without any extra code.
type ProxyConfig struct {
	McpServers    map[string]BackendSpec `json:"mcpServers"`
	DisabledTools []string               `json:"disabled_tools"`

	HealthCheckEnabled          bool `json:"health_check_enabled"`
	HealthCheckIntervalSeconds  int  `json:"health_check_interval"`
	HealthCheckTimeoutSeconds   int  `json:"health_check_timeout"`
	HealthCheckFailureThreshold int  `json:"health_check_failure_threshold"`

	ToonCompressionEnabled bool `json:"toon_compression_enabled"`
	// ToonCompressionMinSize is the default call-path threshold (spec §9:
	// call path defaults to 3). DescribeCompressionMinSize covers the
	// describe path, defaulting to 1; the two are never silently unified.
	ToonCompressionMinSize     int `json:"toon_compression_min_size"`
	DescribeCompressionMinSize int `json:"describe_compression_min_size"`

	SchemaCompressionEnabled bool `json:"schema_compression_enabled"`
	IncludeStructuredContent bool `json:"include_structured_content"`
}

// Defaults returns a ProxyConfig with every knob at its spec-mandated
// default, applied before a loaded document is merged over it.
func Defaults() ProxyConfig {
	return ProxyConfig{
		McpServers:                  map[string]BackendSpec{},
		DisabledTools:               []string{},
		HealthCheckEnabled:          true,
		HealthCheckIntervalSeconds:  30,
		HealthCheckTimeoutSeconds:   5,
		HealthCheckFailureThreshold: 2,
		ToonCompressionEnabled:      true,
		ToonCompressionMinSize:      3,
		DescribeCompressionMinSize:  1,
		SchemaCompressionEnabled:    true,
		IncludeStructuredContent:    false,
	}
}
