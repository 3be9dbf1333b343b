// Package errors defines the structured error taxonomy surfaced to callers
// of the outward invoke/read operations. Every recognized failure is mapped
// to one of a fixed set of codes carrying JSON-serializable context; nothing
// crosses the MCP boundary as a bare Go error.
package errors

import (
	"encoding/json"
	"fmt"
)

// Code identifies one member of the error taxonomy.
type Code string

const (
	CodeServerNotFound   Code = "SERVER_NOT_FOUND"
	CodeToolNotFound     Code = "TOOL_NOT_FOUND"
	CodeToolDisabled     Code = "TOOL_DISABLED"
	CodeValidationFailed Code = "VALIDATION_ERROR"
	CodeResourceNotFound Code = "RESOURCE_NOT_FOUND"
	CodeExecutionError   Code = "EXECUTION_ERROR"
	CodeUnexpectedError  Code = "UNEXPECTED_ERROR"
)

// Error is the taxonomy's concrete type. Context carries whatever
// diagnostic fields the scenario calls for (available_servers,
// available_tools, tool_schema, hint, ...).
type Error struct {
	Code    Code
	Message string
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// MarshalJSON renders the error envelope described by spec §6:
// {"error": ..., "code": ..., ...context}.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"error": e.Message,
		"code":  string(e.Code),
	}
	for k, v := range e.Context {
		out[k] = v
	}
	return json.Marshal(out)
}

func newError(code Code, message string, context map[string]any, cause error) *Error {
	return &Error{Code: code, Message: message, Context: context, Cause: cause}
}

// NewServerNotFound mirrors errors.py's ServerNotFoundError: when no
// backends are connected at all the envelope carries a hint instead of
// an (empty) available_servers list.
func NewServerNotFound(serverName string, availableServers []string) *Error {
	ctx := map[string]any{}
	var msg string
	if len(availableServers) > 0 {
		msg = fmt.Sprintf("Server '%s' not found. Available: %v", serverName, availableServers)
		ctx["available_servers"] = availableServers
	} else {
		msg = fmt.Sprintf("Server '%s' not found", serverName)
		ctx["hint"] = "No MCP servers are currently connected"
	}
	return newError(CodeServerNotFound, msg, ctx, nil)
}

// NewToolNotFound mirrors ToolNotFoundError.
func NewToolNotFound(serverName, toolName string, availableTools []string) *Error {
	ctx := map[string]any{}
	var msg string
	if len(availableTools) > 0 {
		msg = fmt.Sprintf("Tool '%s' not found on server '%s'. Available: %v", toolName, serverName, availableTools)
		ctx["available_tools"] = availableTools
	} else {
		msg = fmt.Sprintf("Tool '%s' not found on server '%s'", toolName, serverName)
	}
	return newError(CodeToolNotFound, msg, ctx, nil)
}

// NewToolDisabled carries no extra context per spec §7.
func NewToolDisabled(serverName, toolName string) *Error {
	msg := fmt.Sprintf("Tool '%s.%s' is disabled", serverName, toolName)
	return newError(CodeToolDisabled, msg, nil, nil)
}

// NewValidationFailed mirrors ValidationError; toolSchema, when non-nil,
// is attached verbatim or rendered as compact TypeScript by the caller
// before this constructor runs.
func NewValidationFailed(reason string, toolSchema any) *Error {
	msg := fmt.Sprintf("Argument validation failed: %s", reason)
	var ctx map[string]any
	if toolSchema != nil {
		ctx = map[string]any{"tool_schema": toolSchema}
	}
	return newError(CodeValidationFailed, msg, ctx, nil)
}

// NewResourceNotFound mirrors ResourceNotFoundError.
func NewResourceNotFound(serverName, uri string) *Error {
	msg := fmt.Sprintf("Resource '%s' not found on server '%s'", uri, serverName)
	return newError(CodeResourceNotFound, msg, nil, nil)
}

// NewExecutionError mirrors ExecutionError.
func NewExecutionError(serverName, toolName string, cause error) *Error {
	msg := fmt.Sprintf("Error executing '%s.%s': %v", serverName, toolName, cause)
	return newError(CodeExecutionError, msg, nil, cause)
}

// NewUnexpectedError is the safety net so nothing crosses the boundary
// unstructured.
func NewUnexpectedError(cause error) *Error {
	return newError(CodeUnexpectedError, cause.Error(), nil, cause)
}

// NewInvalidMethod covers the router's method-parsing failure (spec §8
// scenario 2: "Invalid method format"). It is surfaced under the
// validation-failed code since it is a caller-supplied format error, not
// an upstream execution failure.
func NewInvalidMethod(method string) *Error {
	msg := fmt.Sprintf("Invalid method format: '%s' (expected \"backend.tool\")", method)
	return newError(CodeValidationFailed, msg, nil, nil)
}

func is(err error, code Code) bool {
	e, ok := err.(*Error)
	if !ok || e == nil {
		return false
	}
	return e.Code == code
}

func IsServerNotFound(err error) bool   { return is(err, CodeServerNotFound) }
func IsToolNotFound(err error) bool     { return is(err, CodeToolNotFound) }
func IsToolDisabled(err error) bool     { return is(err, CodeToolDisabled) }
func IsValidationFailed(err error) bool { return is(err, CodeValidationFailed) }
func IsResourceNotFound(err error) bool { return is(err, CodeResourceNotFound) }
func IsExecutionError(err error) bool   { return is(err, CodeExecutionError) }
func IsUnexpectedError(err error) bool  { return is(err, CodeUnexpectedError) }
