package proxyserver

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcpmux/internal/catalog"
	"github.com/giantswarm/mcpmux/internal/config"
	mcperrors "github.com/giantswarm/mcpmux/internal/errors"
	"github.com/giantswarm/mcpmux/internal/manager"
	"github.com/giantswarm/mcpmux/internal/router"
)

func newTestServer(t *testing.T, includeStructured bool) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.HealthCheckEnabled = false
	cfg.IncludeStructuredContent = includeStructured
	store := config.NewStore(filepath.Join(t.TempDir(), "mcpmux.json"), &cfg)
	mgr := manager.New(store, catalog.NewCache())
	r := router.New(mgr)
	return New(mgr, r)
}

func TestJsonOrString_PassesThroughPlainString(t *testing.T) {
	s, err := jsonOrString("already a string")
	require.NoError(t, err)
	assert.Equal(t, "already a string", s)
}

func TestJsonOrString_MarshalsOtherValues(t *testing.T) {
	s, err := jsonOrString(map[string]any{"a": 1})
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &decoded))
	assert.Equal(t, float64(1), decoded["a"])
}

func TestToolErrorResult_StructuredError(t *testing.T) {
	err := mcperrors.NewToolNotFound("github", "bogus", []string{"create_issue"})
	result := toolErrorResult(err)
	assert.True(t, result.IsError)
	assert.Len(t, result.Content, 1)
}

func TestToolErrorResult_GenericError(t *testing.T) {
	result := toolErrorResult(assertErr{"plain failure"})
	assert.True(t, result.IsError)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestInvokeDescription_EmptyCatalog(t *testing.T) {
	s := newTestServer(t, false)
	desc := s.invokeDescription()
	assert.Contains(t, desc, "No backends are currently connected")
}

func TestReadDescription_EmptyCatalog(t *testing.T) {
	s := newTestServer(t, false)
	desc := s.readDescription()
	assert.Contains(t, desc, "No backends are currently connected")
}

func TestBuildTools_RegistersInvokeAndRead(t *testing.T) {
	s := newTestServer(t, false)
	tools := s.buildTools()
	require.Len(t, tools, 2)
	assert.Equal(t, "invoke", tools[0].Tool.Name)
	assert.Equal(t, []string{"method"}, tools[0].Tool.InputSchema.Required)
	assert.Equal(t, "read", tools[1].Tool.Name)
	assert.ElementsMatch(t, []string{"server_name", "uri"}, tools[1].Tool.InputSchema.Required)
}

func TestEnvelopeResult_StructuredContentOnlyWhenEnabledAndCompressed(t *testing.T) {
	s := newTestServer(t, true)
	result := s.envelopeResult(router.Result{Value: "encoded-toon", RawValue: map[string]any{"a": 1}, Compressed: true})
	assert.NotNil(t, result.StructuredContent)

	uncompressed := s.envelopeResult(router.Result{Value: "plain", RawValue: "plain", Compressed: false})
	assert.Nil(t, uncompressed.StructuredContent)
}

func TestEnvelopeResult_StructuredContentOmittedWhenDisabled(t *testing.T) {
	s := newTestServer(t, false)
	result := s.envelopeResult(router.Result{Value: "encoded-toon", RawValue: map[string]any{"a": 1}, Compressed: true})
	assert.Nil(t, result.StructuredContent)
}

func TestMCPServer_ReturnsUnderlyingServer(t *testing.T) {
	s := newTestServer(t, false)
	assert.NotNil(t, s.MCPServer())
}
