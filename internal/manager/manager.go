// Package manager owns the per-backend handle map — connection pools,
// catalog population, and health tracking — and the connect/disconnect/
// reload lifecycle described by spec §3's Ownership notes and grounded
// on original_source/src/mcpx/server.py's ServerManager (which merges
// its Registry and Executor into one type backed by connection pools).
package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcpmux/internal/catalog"
	"github.com/giantswarm/mcpmux/internal/client"
	"github.com/giantswarm/mcpmux/internal/config"
	"github.com/giantswarm/mcpmux/internal/health"
	"github.com/giantswarm/mcpmux/internal/logging"
	"github.com/giantswarm/mcpmux/internal/pool"
)

// descriptionBackfillLen is the number of characters read from a
// textual resource to backfill a missing description (spec §3).
const descriptionBackfillLen = 100

// Manager is the core: the single type that wires the Config Store,
// Client Factory, Connection Pool, Catalog Cache, and Health Monitor
// together.
type Manager struct {
	store   *config.Store
	catalog *catalog.Cache

	mu    sync.RWMutex
	pools map[string]*pool.Pool

	health *health.Monitor
}

// New constructs a Manager. The health monitor's prober resolves a pool
// by name at call time, so backends connected after Start are probed
// automatically once Track'd.
func New(store *config.Store, cache *catalog.Cache) *Manager {
	m := &Manager{
		store:   store,
		catalog: cache,
		pools:   make(map[string]*pool.Pool),
	}
	cfg := store.Snapshot()
	m.health = health.New(
		time.Duration(cfg.HealthCheckIntervalSeconds)*time.Second,
		time.Duration(cfg.HealthCheckTimeoutSeconds)*time.Second,
		cfg.HealthCheckFailureThreshold,
		m.probe,
	)
	return m
}

// probe pings a backend, falling back to a tool listing when the
// upstream doesn't support ping (spec §4.2).
func (m *Manager) probe(ctx context.Context, backend string) error {
	p, ok := m.Pool(backend)
	if !ok {
		return fmt.Errorf("backend %q not connected", backend)
	}
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()

	if err := h.Client.Ping(ctx); err == nil {
		return nil
	}
	_, err = h.Client.ListTools(ctx)
	return err
}

// Initialize connects every enabled backend in the store and, if health
// checking is enabled, starts the monitor.
func (m *Manager) Initialize(ctx context.Context) error {
	cfg := m.store.Snapshot()
	for name, spec := range cfg.McpServers {
		if !spec.IsEnabled() {
			logging.Info("Manager", "backend %q is disabled, skipping", name)
			continue
		}
		if err := m.ConnectBackend(ctx, name); err != nil {
			logging.Error("Manager", err, "failed to connect backend %q", name)
		}
	}
	if cfg.HealthCheckEnabled {
		m.health.Start(ctx)
	}
	return nil
}

// ConnectBackend incrementally connects and warms one backend: builds
// its client factory, creates its pool, acquires once to fetch identity
// plus tool/resource listings, installs the catalog entry, and tracks
// it for health checks.
func (m *Manager) ConnectBackend(ctx context.Context, name string) error {
	m.mu.Lock()
	if _, exists := m.pools[name]; exists {
		m.mu.Unlock()
		logging.Warn("Manager", "backend %q already connected", name)
		return nil
	}
	m.mu.Unlock()

	spec, ok := m.store.GetBackend(name)
	if !ok {
		return fmt.Errorf("backend %q not found in config", name)
	}
	if !spec.IsEnabled() {
		logging.Info("Manager", "backend %q is disabled, skipping connect", name)
		return nil
	}
	if err := spec.Validate(name); err != nil {
		return err
	}

	factory, err := client.NewFactory(spec)
	if err != nil {
		return err
	}

	p := pool.New(name, factory, spec.PoolSize)

	handle, err := p.Acquire(ctx)
	if err != nil {
		p.Close()
		return fmt.Errorf("warm connection for %q: %w", name, err)
	}
	entry, err := m.buildCatalogEntry(ctx, name, handle.Client)
	handle.Release()
	if err != nil {
		p.Close()
		return fmt.Errorf("populate catalog for %q: %w", name, err)
	}

	m.mu.Lock()
	m.pools[name] = p
	m.mu.Unlock()

	m.catalog.Install(name, entry)
	m.health.Track(name)

	logging.Info("Manager", "connected backend %q (%d tools, %d resources)", name, len(entry.Tools), len(entry.Resources))
	return nil
}

func (m *Manager) buildCatalogEntry(ctx context.Context, name string, c client.UpstreamClient) (catalog.Entry, error) {
	identity := catalog.ServerIdentity{Name: name, Version: "unknown"}
	if res := c.InitializeResult(); res != nil {
		if res.ServerInfo.Name != "" {
			identity.Name = res.ServerInfo.Name
		}
		if res.ServerInfo.Version != "" {
			identity.Version = res.ServerInfo.Version
		}
		identity.Instructions = res.Instructions
	}

	tools, err := c.ListTools(ctx)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("list tools: %w", err)
	}
	descriptors := make([]catalog.ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		schema := toolInputSchemaToMap(t)
		descriptors = append(descriptors, catalog.ToolDescriptor{
			Backend:     name,
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}

	var resourceDescriptors []catalog.ResourceDescriptor
	resources, err := c.ListResources(ctx)
	if err != nil {
		logging.Warn("Manager", "failed to list resources from %q: %v", name, err)
	} else {
		resourceDescriptors = make([]catalog.ResourceDescriptor, 0, len(resources))
		for _, r := range resources {
			desc := r.Description
			if desc == "" && isTextualMIME(r.MIMEType) {
				desc = m.backfillDescription(ctx, c, r.URI)
			}
			resourceDescriptors = append(resourceDescriptors, catalog.ResourceDescriptor{
				Backend:     name,
				URI:         r.URI,
				Name:        r.Name,
				Description: desc,
				MIMEType:    r.MIMEType,
			})
		}
	}

	return catalog.Entry{Identity: identity, Tools: descriptors, Resources: resourceDescriptors}, nil
}

// backfillDescription reads a resource's first descriptionBackfillLen
// characters to use as its description when the upstream left it blank.
// Best effort: any failure is swallowed and yields an empty string
// (spec §3 invariant).
func (m *Manager) backfillDescription(ctx context.Context, c client.UpstreamClient, uri string) string {
	result, err := c.ReadResource(ctx, uri)
	if err != nil || result == nil || len(result.Contents) == 0 {
		return ""
	}
	text, ok := mcp.AsTextResourceContents(result.Contents[0])
	if !ok {
		return ""
	}
	runes := []rune(text.Text)
	if len(runes) <= descriptionBackfillLen {
		return text.Text
	}
	return string(runes[:descriptionBackfillLen])
}

func isTextualMIME(mime string) bool {
	if mime == "" {
		// Absent MIME type is treated as textual-candidate; backfill still
		// only happens when a read actually yields text content.
		return true
	}
	return len(mime) >= 5 && mime[:5] == "text/" || mime == "application/json"
}

func toolInputSchemaToMap(t mcp.Tool) map[string]any {
	out := map[string]any{"type": "object"}
	if len(t.InputSchema.Properties) > 0 {
		out["properties"] = t.InputSchema.Properties
	} else {
		out["properties"] = map[string]any{}
	}
	if len(t.InputSchema.Required) > 0 {
		out["required"] = t.InputSchema.Required
	}
	return out
}

// DisconnectBackend incrementally disconnects one backend: stops health
// tracking, closes its pool, and wipes its catalog entry.
func (m *Manager) DisconnectBackend(name string) error {
	m.mu.Lock()
	p, ok := m.pools[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("backend %q not connected", name)
	}
	delete(m.pools, name)
	m.mu.Unlock()

	m.health.Untrack(name)
	p.Close()
	m.catalog.Remove(name)

	logging.Info("Manager", "disconnected backend %q", name)
	return nil
}

// Reload performs a full reload: close every backend, then reinitialize
// from the current store state (original_source's reload: close then
// initialize).
func (m *Manager) Reload(ctx context.Context) error {
	m.Close()
	return m.Initialize(ctx)
}

// Close stops health checking and closes every pool, best-effort.
func (m *Manager) Close() {
	m.health.Stop()

	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*pool.Pool)
	m.mu.Unlock()

	for name, p := range pools {
		p.Close()
		m.catalog.Remove(name)
		m.health.Untrack(name)
	}
}

// Pool returns the connection pool for a connected backend.
func (m *Manager) Pool(name string) (*pool.Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[name]
	return p, ok
}

// ConnectedBackends returns the sorted list of currently connected
// backend names.
func (m *Manager) ConnectedBackends() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasBackend reports whether name is currently connected.
func (m *Manager) HasBackend(name string) bool {
	_, ok := m.Pool(name)
	return ok
}

// Catalog exposes the manager's catalog cache for read-only lookups by
// the Router and Outer Tool Adapters.
func (m *Manager) Catalog() *catalog.Cache { return m.catalog }

// Store exposes the manager's config store.
func (m *Manager) Store() *config.Store { return m.store }

// IsBackendHealthy reports the last known health status for name.
func (m *Manager) IsBackendHealthy(name string) bool {
	return m.health.IsHealthy(name)
}

// HealthRecord returns the health record for name, if tracked.
func (m *Manager) HealthRecord(name string) (health.Record, bool) {
	return m.health.Record(name)
}
