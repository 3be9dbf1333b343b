package client

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcpmux/internal/logging"
)

// DefaultStdioInitTimeout bounds the subprocess spawn plus MCP handshake
// when the caller's context carries no deadline of its own.
const DefaultStdioInitTimeout = 10 * time.Second

// stdioClient is the stdio-subprocess transport variant.
type stdioClient struct {
	baseClient
	command string
	args    []string
	env     map[string]string
}

func newStdioClient(command string, args []string, env map[string]string) *stdioClient {
	return &stdioClient{command: command, args: args, env: env}
}

func (c *stdioClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	var envStrings []string
	for k, v := range c.env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	logging.Debug("StdioClient", "spawning backend command %s %v", c.command, c.args)

	mcpClient, err := client.NewStdioMCPClient(c.command, envStrings, c.args...)
	if err != nil {
		return fmt.Errorf("create stdio client for %s: %w", c.command, err)
	}

	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, DefaultStdioInitTimeout)
		defer cancel()
	}

	initResult, err := c.handshake(initCtx, mcpClient)
	if err != nil {
		logging.Error("StdioClient", err, "handshake failed for %s", c.command)
		if closeErr := mcpClient.Close(); closeErr != nil {
			logging.Debug("StdioClient", "error closing failed client for %s: %v", c.command, closeErr)
		}
		return fmt.Errorf("initialize stdio backend %s: %w", c.command, err)
	}

	c.mu.Lock()
	c.underlying = mcpClient
	c.connected = true
	c.initResult = initResult
	c.mu.Unlock()

	return nil
}

func (c *stdioClient) Close() error { return c.closeClient() }

func (c *stdioClient) ListTools(ctx context.Context) ([]mcp.Tool, error) { return c.listTools(ctx) }

func (c *stdioClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return c.listResources(ctx)
}

func (c *stdioClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return c.readResource(ctx, uri)
}

func (c *stdioClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return c.callTool(ctx, name, args)
}

func (c *stdioClient) Ping(ctx context.Context) error { return c.ping(ctx) }

func (c *stdioClient) InitializeResult() *mcp.InitializeResult { return c.initializeResult() }
