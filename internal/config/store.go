package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/giantswarm/mcpmux/internal/logging"
)

// Store is the passive Config & State Store from spec §4.7: it holds
// the configuration tree and a dirty flag, and exposes mutation APIs.
// It never itself connects or disconnects a backend — that is the
// Server Manager's responsibility in response to these mutations.
type Store struct {
	mu    sync.RWMutex
	path  string
	cfg   ProxyConfig
	dirty bool
}

// NewStore wraps an already-loaded ProxyConfig with path as its save
// target.
func NewStore(path string, cfg *ProxyConfig) *Store {
	return &Store{path: path, cfg: *cfg}
}

// LoadStore loads path and wraps it in a Store.
func LoadStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewStore(path, cfg), nil
}

// Snapshot returns a deep-enough copy of the current configuration for
// callers that need a consistent read without holding the store's lock.
func (s *Store) Snapshot() ProxyConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.cfg
	out.McpServers = make(map[string]BackendSpec, len(s.cfg.McpServers))
	for k, v := range s.cfg.McpServers {
		out.McpServers[k] = v
	}
	out.DisabledTools = append([]string(nil), s.cfg.DisabledTools...)
	return out
}

// Dirty reports whether the store has unsaved mutations.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Save persists the current configuration and clears the dirty flag.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := Save(s.path, &s.cfg); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// GetBackend returns the named backend spec.
func (s *Store) GetBackend(name string) (BackendSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.cfg.McpServers[name]
	return spec, ok
}

// ListBackends returns all backend names in sorted order.
func (s *Store) ListBackends() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.cfg.McpServers))
	for name := range s.cfg.McpServers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddBackend inserts a new backend spec, rejecting a duplicate name.
func (s *Store) AddBackend(name string, spec BackendSpec) error {
	if err := spec.Validate(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cfg.McpServers[name]; exists {
		return fmt.Errorf("backend '%s' already exists", name)
	}
	spec.Name = name
	s.cfg.McpServers[name] = spec
	s.dirty = true
	logging.Info("ConfigStore", "Added backend '%s'", name)
	return nil
}

// RemoveBackend deletes a backend spec.
func (s *Store) RemoveBackend(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cfg.McpServers[name]; !exists {
		return fmt.Errorf("backend '%s' not found", name)
	}
	delete(s.cfg.McpServers, name)
	s.dirty = true
	logging.Info("ConfigStore", "Removed backend '%s'", name)
	return nil
}

// SetBackendEnabled flips the enabled flag for a backend without
// touching any other field.
func (s *Store) SetBackendEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, exists := s.cfg.McpServers[name]
	if !exists {
		return fmt.Errorf("backend '%s' not found", name)
	}
	spec.Enabled = &enabled
	s.cfg.McpServers[name] = spec
	s.dirty = true
	return nil
}

func disabledKey(backend, tool string) string {
	return backend + "." + tool
}

// IsToolDisabled checks the disabled-tools set. Per spec §5, reads of
// this set may be unsynchronized / eventually consistent with writers;
// a read lock is still taken here since Go offers no cheaper safe
// alternative for a plain slice.
func (s *Store) IsToolDisabled(backend, tool string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := disabledKey(backend, tool)
	for _, d := range s.cfg.DisabledTools {
		if d == key {
			return true
		}
	}
	return false
}

// DisableTool adds "{backend}.{tool}" to the disabled set if absent.
func (s *Store) DisableTool(backend, tool string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := disabledKey(backend, tool)
	for _, d := range s.cfg.DisabledTools {
		if d == key {
			return
		}
	}
	s.cfg.DisabledTools = append(s.cfg.DisabledTools, key)
	s.dirty = true
}

// EnableTool removes "{backend}.{tool}" from the disabled set.
// disable_tool(k); enable_tool(k) leaves the set equal to the original
// (spec §8 round-trip property).
func (s *Store) EnableTool(backend, tool string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := disabledKey(backend, tool)
	out := s.cfg.DisabledTools[:0]
	for _, d := range s.cfg.DisabledTools {
		if d != key {
			out = append(out, d)
		}
	}
	s.cfg.DisabledTools = out
	s.dirty = true
}

// BulkApplyResult reports what a bulk update changed, for the caller to
// react to (e.g. the Server Manager connecting newly-added backends).
type BulkApplyResult struct {
	Added   []string
	Removed []string
	Changed []string
}

// BulkApply diffs next against the current configuration and applies
// it: backends present only in next are added, backends present only in
// the current set are removed, and backends present in both have their
// fields replaced while preserving the current enabled flag (spec
// §4.7's "bulk update" operation).
func (s *Store) BulkApply(next ProxyConfig) BulkApplyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result BulkApplyResult
	merged := make(map[string]BackendSpec, len(next.McpServers))

	for name, newSpec := range next.McpServers {
		newSpec.Name = name
		if existing, ok := s.cfg.McpServers[name]; ok {
			newSpec.Enabled = existing.Enabled
			result.Changed = append(result.Changed, name)
		} else {
			result.Added = append(result.Added, name)
		}
		merged[name] = newSpec
	}
	for name := range s.cfg.McpServers {
		if _, ok := next.McpServers[name]; !ok {
			result.Removed = append(result.Removed, name)
		}
	}

	s.cfg.McpServers = merged
	s.dirty = true
	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Changed)
	logging.Info("ConfigStore", "Bulk apply: %d added, %d removed, %d changed", len(result.Added), len(result.Removed), len(result.Changed))
	return result
}

// RuntimeKnobs returns the configuration, for reading its runtime knobs
// (health check, compression, structured content), as the same value
// copy Snapshot returns; the copy also includes the backends.
func (s *Store) RuntimeKnobs() ProxyConfig {
	return s.Snapshot()
}
