// Package client builds and wraps upstream MCP client transports. It
// is the Upstream Client Factory from spec §4 and the "single
// build_client function per variant" design note in spec §9: stdio and
// http are modeled as tagged variants, each producing a uniform
// UpstreamClient abstraction.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcpmux/internal/config"
)

// protocolVersion and implementation identity sent during the MCP
// handshake. Not the teacher's identity string: this proxy is its own
// MCP client towards every backend.
const (
	protocolVersion = "2024-11-05"
	clientName      = "mcpmux"
	clientVersion   = "1.0.0"
)

// UpstreamClient is the uniform abstraction spec §9 calls for: scoped
// open/close plus the five upstream operations the MCP framing layer
// provides (list_tools, list_resources, read_resource, call_tool, ping).
type UpstreamClient interface {
	Initialize(ctx context.Context) error
	Close() error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Ping(ctx context.Context) error
	InitializeResult() *mcp.InitializeResult
}

// Factory constructs a fresh UpstreamClient for one backend. Each call
// returns a brand-new, not-yet-initialized client instance — the
// Connection Pool is the thing that decides how many of these exist
// concurrently.
type Factory func() UpstreamClient

// NewFactory returns the Factory appropriate for spec's BackendSpec: a
// tagged sum over transport kind, validated at config load time, so by
// the time a Factory is built the spec is known-well-formed.
func NewFactory(spec config.BackendSpec) (Factory, error) {
	switch spec.Type {
	case config.TransportStdio:
		return func() UpstreamClient {
			return newStdioClient(spec.Command, spec.Args, spec.Env)
		}, nil
	case config.TransportHTTP:
		return func() UpstreamClient {
			return newHTTPClient(spec.URL, spec.Headers)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported backend transport %q", spec.Type)
	}
}

// baseClient holds the shared MCP-go wrapper state and implementations,
// identical across transports, grounded on the teacher's baseMCPClient.
type baseClient struct {
	mu         sync.RWMutex
	underlying client.MCPClient
	connected  bool
	initResult *mcp.InitializeResult
}

func (b *baseClient) checkConnected() error {
	if !b.connected || b.underlying == nil {
		return fmt.Errorf("client not connected")
	}
	return nil
}

func (b *baseClient) handshake(ctx context.Context, mcpClient client.MCPClient) (*mcp.InitializeResult, error) {
	return mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			ClientInfo:      mcp.Implementation{Name: clientName, Version: clientVersion},
			Capabilities:    mcp.ClientCapabilities{},
		},
	})
}

func (b *baseClient) closeClient() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected || b.underlying == nil {
		return nil
	}
	err := b.underlying.Close()
	b.connected = false
	b.underlying = nil
	return err
}

func (b *baseClient) listTools(ctx context.Context) ([]mcp.Tool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.underlying.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return result.Tools, nil
}

func (b *baseClient) listResources(ctx context.Context) ([]mcp.Resource, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.underlying.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return result.Resources, nil
}

func (b *baseClient) readResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.underlying.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: struct {
			URI       string         `json:"uri"`
			Arguments map[string]any `json:"arguments,omitempty"`
		}{URI: uri},
	})
	if err != nil {
		return nil, fmt.Errorf("read resource: %w", err)
	}
	return result, nil
}

func (b *baseClient) callTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.underlying.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		return nil, fmt.Errorf("call tool: %w", err)
	}
	return result, nil
}

func (b *baseClient) ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return err
	}
	return b.underlying.Ping(ctx)
}

func (b *baseClient) initializeResult() *mcp.InitializeResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initResult
}
