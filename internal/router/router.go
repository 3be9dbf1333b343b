// Package router implements the Router/Dispatcher from spec §4.5: method
// parsing, shallow argument validation, call/read orchestration against
// the Manager, and mapping every recognized failure onto the structured
// error taxonomy, grounded on
// original_source/src/mcpx/server.py's ServerManager.call/.read and
// executor.py's reconnect-on-transient-error handling.
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	mcperrors "github.com/giantswarm/mcpmux/internal/errors"
	"github.com/giantswarm/mcpmux/internal/logging"
	"github.com/giantswarm/mcpmux/internal/manager"
	"github.com/giantswarm/mcpmux/internal/payload"
	"github.com/giantswarm/mcpmux/internal/pool"
	"github.com/giantswarm/mcpmux/internal/schemats"
)

// connectionErrorIndicators mirrors executor.py's _is_connection_error
// substring set: these phrases identify a transient transport failure
// worth one reconnect-and-retry.
var connectionErrorIndicators = []string{
	"Client is not connected",
	"nesting counter",
	"Connection closed",
	"Connection reset",
	"Connection refused",
	"Broken pipe",
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	for _, indicator := range connectionErrorIndicators {
		if strings.Contains(s, indicator) {
			return true
		}
	}
	return false
}

// Result is the outcome of a successful invoke: the extracted (and
// possibly compressed) value plus whether compression took effect, so
// the Outer Tool Adapters can decide on structured-content dual-encoding.
type Result struct {
	Value      any
	RawValue   any
	Compressed bool
}

// Router dispatches invoke/read calls against a Manager.
type Router struct {
	mgr *manager.Manager

	callCompressor    payload.Compressor
	describeComp      payload.Compressor
	schemaOpts        schemats.Options
	includeStructured bool
	schemaCompression bool
}

// New constructs a Router bound to mgr, reading its compression and
// schema-rendering knobs from the manager's config store snapshot.
func New(mgr *manager.Manager) *Router {
	cfg := mgr.Store().Snapshot()
	return &Router{
		mgr: mgr,
		callCompressor: payload.Compressor{
			Enabled: cfg.ToonCompressionEnabled,
			MinSize: cfg.ToonCompressionMinSize,
		},
		describeComp: payload.Compressor{
			Enabled: cfg.ToonCompressionEnabled,
			MinSize: cfg.DescribeCompressionMinSize,
		},
		schemaOpts:        schemats.DefaultOptions(),
		includeStructured: cfg.IncludeStructuredContent,
		schemaCompression: cfg.SchemaCompressionEnabled,
	}
}

// IncludeStructuredContent reports whether the Outer Tool Adapters
// should attach the raw (pre-compression) value as structured_content.
func (r *Router) IncludeStructuredContent() bool { return r.includeStructured }

// DescribeCompressor exposes the describe-path compressor (distinct
// min-size knob, spec §9) for use by the catalog-listing surfaces.
func (r *Router) DescribeCompressor() payload.Compressor { return r.describeComp }

// ParseMethod splits "{backend}.{tool}" on the first dot only (spec
// §4.5 tie-break: "a.b.c" -> ("a", "b.c"); a trailing dot yields an
// empty tool name with no special-casing).
func ParseMethod(method string) (backend, tool string, err error) {
	idx := strings.Index(method, ".")
	if idx < 0 {
		return "", "", mcperrors.NewInvalidMethod(method)
	}
	return method[:idx], method[idx+1:], nil
}

// Invoke implements the invoke(method, arguments) contract (spec §4.5
// steps 1-7).
func (r *Router) Invoke(ctx context.Context, method string, arguments map[string]any) (Result, error) {
	backend, tool, err := ParseMethod(method)
	if err != nil {
		return Result{}, err
	}

	p, ok := r.mgr.Pool(backend)
	if !ok {
		return Result{}, mcperrors.NewServerNotFound(backend, r.mgr.ConnectedBackends())
	}

	toolDesc, ok := r.mgr.Catalog().Tool(backend, tool)
	if !ok {
		return Result{}, mcperrors.NewToolNotFound(backend, tool, r.mgr.Catalog().ToolNames(backend))
	}

	if r.mgr.Store().IsToolDisabled(backend, tool) {
		return Result{}, mcperrors.NewToolDisabled(backend, tool)
	}

	if arguments == nil {
		arguments = map[string]any{}
	}
	if err := validateArguments(arguments, toolDesc.InputSchema); err != nil {
		return Result{}, r.wrapValidationFailure(err, toolDesc.InputSchema)
	}

	callResult, err := r.callWithReconnect(ctx, backend, tool, arguments, p)
	if err != nil {
		logging.Error("Router", err, "error executing '%s.%s'", backend, tool)
		return Result{}, mcperrors.NewExecutionError(backend, tool, err)
	}

	raw := payload.Extract(callResult.Content)
	compressed, wasCompressed := r.callCompressor.Compress(raw, 0)
	return Result{Value: compressed, RawValue: raw, Compressed: wasCompressed}, nil
}

// callWithReconnect performs one call_tool; on a transient connection
// error it disconnects and reconnects the backend once, then retries
// the call exactly once against the freshly connected pool (grounded on
// executor.py's _is_connection_error / reconnect_server flow).
func (r *Router) callWithReconnect(ctx context.Context, backend, tool string, arguments map[string]any, p *pool.Pool) (*mcp.CallToolResult, error) {
	result, err := callOnce(ctx, p, tool, arguments)
	if err == nil || !isConnectionError(err) {
		return result, err
	}

	logging.Info("Router", "connection error for '%s', attempting reconnect: %v", backend, err)
	if discErr := r.mgr.DisconnectBackend(backend); discErr != nil {
		logging.Debug("Router", "disconnect during reconnect of '%s': %v", backend, discErr)
	}
	if connErr := r.mgr.ConnectBackend(ctx, backend); connErr != nil {
		return nil, fmt.Errorf("failed to reconnect to '%s': %w", backend, err)
	}

	newPool, ok := r.mgr.Pool(backend)
	if !ok {
		return nil, fmt.Errorf("reconnected but no pool for '%s'", backend)
	}
	return callOnce(ctx, newPool, tool, arguments)
}

func callOnce(ctx context.Context, p *pool.Pool, tool string, arguments map[string]any) (*mcp.CallToolResult, error) {
	handle, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer handle.Release()
	return handle.Client.CallTool(ctx, tool, arguments)
}

// validationError is a small internal sentinel carrying the shallow
// validation failure's exact message text (spec §8 scenarios 3/4).
type validationError struct {
	msg string
}

func (v *validationError) Error() string { return v.msg }

// validateArguments implements the shallow policy from spec §4.5 step
// 5: every required field present, every supplied key known, no deeper
// checking. input_schema's "required"/"properties" fields are stored as
// decoded JSON (either []string/[]any and map[string]any), so both
// shapes are accepted.
func validateArguments(arguments map[string]any, schema map[string]any) error {
	for _, field := range requiredFields(schema) {
		if _, present := arguments[field]; !present {
			return &validationError{msg: fmt.Sprintf("Missing required argument: '%s'", field)}
		}
	}
	properties, _ := schema["properties"].(map[string]any)
	for key := range arguments {
		if properties != nil {
			if _, known := properties[key]; known {
				continue
			}
		}
		available := make([]string, 0, len(properties))
		for name := range properties {
			available = append(available, "'"+name+"'")
		}
		sort.Strings(available)
		return &validationError{msg: fmt.Sprintf("Unknown argument: '%s'. Available: [%s]", key, strings.Join(available, ", "))}
	}
	return nil
}

func requiredFields(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (r *Router) wrapValidationFailure(cause error, schema map[string]any) *mcperrors.Error {
	var schemaCtx any = schema
	if r.schemaCompression {
		schemaCtx = schemats.Render(schema, r.schemaOpts)
	}
	return mcperrors.NewValidationFailed(cause.Error(), schemaCtx)
}

// ResourceItem is one normalized entry of a read() result (spec §4.5
// step 4): textual items carry Text, binary items carry Blob. Only one
// of the two is ever populated, so empty/irrelevant fields are omitted
// on the wire to match the {uri, text} / {uri, mime_type, blob} shapes
// the original implementation emits.
type ResourceItem struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
	IsBinary bool   `json:"-"`
}

// Read implements the read(backend, uri) contract (spec §4.5).
func (r *Router) Read(ctx context.Context, backend, uri string) (any, error) {
	p, ok := r.mgr.Pool(backend)
	if !ok {
		return nil, mcperrors.NewServerNotFound(backend, r.mgr.ConnectedBackends())
	}

	handle, err := p.Acquire(ctx)
	if err != nil {
		return nil, mcperrors.NewResourceNotFound(backend, uri)
	}
	result, err := handle.Client.ReadResource(ctx, uri)
	handle.Release()
	if err != nil {
		logging.Error("Router", err, "error reading resource '%s' from '%s'", uri, backend)
		return nil, mcperrors.NewResourceNotFound(backend, uri)
	}
	if result == nil || len(result.Contents) == 0 {
		return nil, mcperrors.NewResourceNotFound(backend, uri)
	}

	// Single-content shortcut (spec §4.5 step 4 / original's read()):
	// a lone text item returns its bare text, a lone binary item returns
	// one record. Only the multi-content case wraps every item.
	if len(result.Contents) == 1 {
		c := result.Contents[0]
		if text, ok := mcp.AsTextResourceContents(c); ok {
			return text.Text, nil
		}
		if blob, ok := mcp.AsBlobResourceContents(c); ok {
			return ResourceItem{URI: blob.URI, MIMEType: blob.MIMEType, Blob: blob.Blob, IsBinary: true}, nil
		}
		return nil, mcperrors.NewResourceNotFound(backend, uri)
	}

	items := make([]ResourceItem, 0, len(result.Contents))
	for _, c := range result.Contents {
		if text, ok := mcp.AsTextResourceContents(c); ok {
			items = append(items, ResourceItem{URI: text.URI, Text: text.Text})
			continue
		}
		if blob, ok := mcp.AsBlobResourceContents(c); ok {
			items = append(items, ResourceItem{URI: blob.URI, MIMEType: blob.MIMEType, Blob: blob.Blob, IsBinary: true})
			continue
		}
	}
	return items, nil
}
