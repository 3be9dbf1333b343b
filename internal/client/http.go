package client

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcpmux/internal/logging"
)

// httpClient is the HTTP streaming transport variant. Spec §6 describes
// a single "http" backend type (url + optional headers); the framing
// layer's distinction between SSE and streamable-HTTP is an
// out-of-scope detail of the MCP client library (spec §1), so this
// variant always builds a streamable-HTTP client.
type httpClient struct {
	baseClient
	url     string
	headers map[string]string
}

func newHTTPClient(url string, headers map[string]string) *httpClient {
	return &httpClient{url: url, headers: headers}
}

func (c *httpClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var opts []transport.StreamableHTTPCOption
	if len(c.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(c.headers))
	}

	mcpClient, err := client.NewStreamableHttpClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("create http client for %s: %w", c.url, err)
	}

	initResult, err := c.handshake(ctx, mcpClient)
	if err != nil {
		logging.Error("HTTPClient", err, "handshake failed for %s", c.url)
		if closeErr := mcpClient.Close(); closeErr != nil {
			logging.Debug("HTTPClient", "error closing failed client for %s: %v", c.url, closeErr)
		}
		return fmt.Errorf("initialize http backend %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.underlying = mcpClient
	c.connected = true
	c.initResult = initResult
	c.mu.Unlock()

	return nil
}

func (c *httpClient) Close() error { return c.closeClient() }

func (c *httpClient) ListTools(ctx context.Context) ([]mcp.Tool, error) { return c.listTools(ctx) }

func (c *httpClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return c.listResources(ctx)
}

func (c *httpClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return c.readResource(ctx, uri)
}

func (c *httpClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

func (c *httpClient) Ping(ctx context.Context) error { return c.ping(ctx) }

func (c *httpClient) InitializeResult() *mcp.InitializeResult { return c.initializeResult() }
