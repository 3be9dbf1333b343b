// Package proxyserver implements the Outer Tool Adapters (spec §4.6):
// two MCP-facing operations, invoke and read, registered on the outward
// MCP surface via mark3labs/mcp-go/server. They perform no logic beyond
// delegating to the Router and shaping the final envelope.
package proxyserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	mcperrors "github.com/giantswarm/mcpmux/internal/errors"
	"github.com/giantswarm/mcpmux/internal/logging"
	"github.com/giantswarm/mcpmux/internal/manager"
	"github.com/giantswarm/mcpmux/internal/router"
)

const (
	serverName    = "mcpmux"
	serverVersion = "1.0.0"
)

// Server wraps the outward mark3labs/mcp-go MCP server with the two
// generic invoke/read tools bound to a Router.
type Server struct {
	mgr    *manager.Manager
	router *router.Router
	mcp    *mcpserver.MCPServer
}

// New builds the outward MCP server and registers invoke/read with
// descriptions pre-rendered from the manager's current catalog state
// (spec §4.6).
func New(mgr *manager.Manager, r *router.Router) *Server {
	s := &Server{mgr: mgr, router: r}
	s.mcp = mcpserver.NewMCPServer(
		serverName,
		serverVersion,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(true, false),
	)
	s.mcp.AddTools(s.buildTools()...)
	return s
}

// MCPServer exposes the underlying mcp-go server for transport bring-up
// (stdio, SSE, or streamable-HTTP), which is the CLI's concern, not
// this package's.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcp }

// Refresh re-renders the invoke/read tool descriptions from the current
// catalog state, called after a connect-backend/disconnect-backend/
// reload changes what's available.
func (s *Server) Refresh() {
	s.mcp.AddTools(s.buildTools()...)
}

func (s *Server) buildTools() []mcpserver.ServerTool {
	return []mcpserver.ServerTool{
		{
			Tool: mcp.Tool{
				Name:        "invoke",
				Description: s.invokeDescription(),
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]any{
						"method": map[string]any{
							"type":        "string",
							"description": "Dot-separated \"backend.tool\" identifier",
						},
						"arguments": map[string]any{
							"type":        "object",
							"description": "Arguments forwarded to the upstream tool",
						},
					},
					Required: []string{"method"},
				},
			},
			Handler: s.handleInvoke,
		},
		{
			Tool: mcp.Tool{
				Name:        "read",
				Description: s.readDescription(),
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]any{
						"server_name": map[string]any{
							"type":        "string",
							"description": "Connected backend name",
						},
						"uri": map[string]any{
							"type":        "string",
							"description": "Resource URI on that backend",
						},
					},
					Required: []string{"server_name", "uri"},
				},
			},
			Handler: s.handleRead,
		},
	}
}

// invokeDescription renders a signature line per backend.tool, grounded
// on original_source/src/mcpx/server.py's get_tool_list_text.
func (s *Server) invokeDescription() string {
	var b strings.Builder
	b.WriteString("Invoke a tool on a connected backend: invoke(\"backend.tool\", arguments).\n")
	backends := s.mgr.Catalog().Backends()
	if len(backends) == 0 {
		b.WriteString("No backends are currently connected.")
		return b.String()
	}
	b.WriteString("Available tools:\n")
	for _, backend := range backends {
		entry, ok := s.mgr.Catalog().Entry(backend)
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s:\n", backend))
		for _, tool := range entry.Tools {
			desc := tool.Description
			if len(desc) > 60 {
				desc = desc[:60] + "..."
			}
			b.WriteString(fmt.Sprintf("    - %s.%s: %s\n", backend, tool.Name, desc))
		}
	}
	return b.String()
}

func (s *Server) readDescription() string {
	var b strings.Builder
	b.WriteString("Read a resource from a connected backend: read(server_name, uri).\n")
	backends := s.mgr.Catalog().Backends()
	if len(backends) == 0 {
		b.WriteString("No backends are currently connected.")
		return b.String()
	}
	b.WriteString("Available resources:\n")
	for _, backend := range backends {
		entry, ok := s.mgr.Catalog().Entry(backend)
		if !ok || len(entry.Resources) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s:\n", backend))
		names := make([]string, 0, len(entry.Resources))
		for _, res := range entry.Resources {
			names = append(names, res.URI)
		}
		sort.Strings(names)
		for _, uri := range names {
			b.WriteString(fmt.Sprintf("    - %s\n", uri))
		}
	}
	return b.String()
}

func (s *Server) handleInvoke(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestID := logging.RequestID()

	args := req.GetArguments()
	method, _ := args["method"].(string)
	var arguments map[string]any
	if raw, ok := args["arguments"]; ok {
		arguments, _ = raw.(map[string]any)
	}

	result, err := s.router.Invoke(ctx, method, arguments)
	if err != nil {
		logging.Debug("ProxyServer", "[%s] invoke(%s) failed: %v", requestID, method, err)
		return toolErrorResult(err), nil
	}

	return s.envelopeResult(result), nil
}

func (s *Server) handleRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestID := logging.RequestID()

	args := req.GetArguments()
	backend, _ := args["server_name"].(string)
	uri, _ := args["uri"].(string)

	value, err := s.router.Read(ctx, backend, uri)
	if err != nil {
		logging.Debug("ProxyServer", "[%s] read(%s,%s) failed: %v", requestID, backend, uri, err)
		return toolErrorResult(err), nil
	}

	text, marshalErr := jsonOrString(value)
	if marshalErr != nil {
		return mcp.NewToolResultError(marshalErr.Error()), nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(text)}}, nil
}

// envelopeResult shapes invoke's successful result per spec §4.6:
// compressed text as primary content, plus the raw value as
// structured_content when the store enables it.
func (s *Server) envelopeResult(result router.Result) *mcp.CallToolResult {
	text, err := jsonOrString(result.Value)
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	callResult := &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(text)}}
	if s.router.IncludeStructuredContent() && result.Compressed {
		callResult.StructuredContent = result.RawValue
	}
	return callResult
}

// toolErrorResult renders a structured *errors.Error (or any other
// failure) as the in-band JSON error envelope described by spec §7 —
// nothing crosses the MCP boundary as a Go exception.
func toolErrorResult(err error) *mcp.CallToolResult {
	var payload any = map[string]any{"error": err.Error(), "code": "UNEXPECTED_ERROR"}
	if structured, ok := err.(*mcperrors.Error); ok {
		payload = structured
	}
	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(body))},
		IsError: true,
	}
}

func jsonOrString(value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	body, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(body), nil
}
