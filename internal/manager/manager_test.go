package manager

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcpmux/internal/catalog"
	"github.com/giantswarm/mcpmux/internal/config"
)

func newTestManager(t *testing.T) (*Manager, *config.Store) {
	t.Helper()
	cfg := config.Defaults()
	cfg.HealthCheckEnabled = false
	store := config.NewStore(filepath.Join(t.TempDir(), "mcpmux.json"), &cfg)
	return New(store, catalog.NewCache()), store
}

func TestNew_BuildsHealthMonitorFromStoreSnapshot(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.NotNil(t, mgr)
	assert.Empty(t, mgr.ConnectedBackends())
}

func TestInitialize_NoBackendsIsNoop(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.Initialize(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mgr.ConnectedBackends())
}

func TestConnectBackend_UnknownNameErrors(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.ConnectBackend(context.Background(), "ghost")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestConnectBackend_DisabledBackendSkipped(t *testing.T) {
	mgr, store := newTestManager(t)
	disabled := false
	require.NoError(t, store.AddBackend("github", config.BackendSpec{
		Type: config.TransportStdio, Command: "gh-mcp", Enabled: &disabled,
	}))

	err := mgr.ConnectBackend(context.Background(), "github")
	require.NoError(t, err)
	assert.False(t, mgr.HasBackend("github"))
}

func TestConnectBackend_InvalidSpecErrors(t *testing.T) {
	mgr, store := newTestManager(t)
	// BulkApply performs no per-spec validation (it trusts AddBackend/Parse
	// to have already done so), so it's the one store mutation path that
	// can smuggle an invalid spec in; ConnectBackend's own Validate call
	// must still catch it before a factory is built.
	store.BulkApply(config.ProxyConfig{
		McpServers: map[string]config.BackendSpec{
			"bad": {Type: config.TransportStdio},
		},
	})

	err := mgr.ConnectBackend(context.Background(), "bad")
	assert.Error(t, err)
}

func TestConnectBackend_AlreadyConnectedIsNoop(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.mu.Lock()
	mgr.pools["github"] = nil
	mgr.mu.Unlock()

	err := mgr.ConnectBackend(context.Background(), "github")
	assert.NoError(t, err)
}

func TestDisconnectBackend_NotConnectedErrors(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.DisconnectBackend("ghost")
	assert.Error(t, err)
}

func TestClose_IsSafeWithNoBackends(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.NotPanics(t, func() { mgr.Close() })
}

func TestIsTextualMIME(t *testing.T) {
	assert.True(t, isTextualMIME(""))
	assert.True(t, isTextualMIME("text/plain"))
	assert.True(t, isTextualMIME("application/json"))
	assert.False(t, isTextualMIME("image/png"))
	assert.False(t, isTextualMIME("application/octet-stream"))
}

func TestToolInputSchemaToMap(t *testing.T) {
	tool := mcp.Tool{
		Name: "create_issue",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"title": map[string]any{"type": "string"},
			},
			Required: []string{"title"},
		},
	}
	out := toolInputSchemaToMap(tool)
	assert.Equal(t, "object", out["type"])
	assert.Equal(t, []string{"title"}, out["required"])
	props, ok := out["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "title")
}

func TestToolInputSchemaToMap_NoPropertiesYieldsEmptyMap(t *testing.T) {
	tool := mcp.Tool{Name: "ping"}
	out := toolInputSchemaToMap(tool)
	props, ok := out["properties"].(map[string]any)
	require.True(t, ok)
	assert.Empty(t, props)
	assert.NotContains(t, out, "required")
}
