// Package schemats renders a JSON Schema (as produced by upstream tool
// descriptors) into a compact TypeScript type literal, used to attach a
// token-efficient tool_schema hint to validation-failed errors (spec
// §4.4 / §7), grounded on
// original_source/src/mcpx/schema_ts.py's SchemaConverter.
package schemats

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/giantswarm/mcpmux/internal/logging"
)

// Options mirrors SchemaConverter's constructor knobs.
type Options struct {
	IncludeDescriptions bool
	MaxDescriptionLen   int
}

// DefaultOptions matches json_schema_to_typescript's defaults.
func DefaultOptions() Options {
	return Options{IncludeDescriptions: true, MaxDescriptionLen: 50}
}

// Render converts schema to a TypeScript type literal. An empty schema,
// or any panic during conversion, yields "unknown", matching the
// original's catch-all exception handler around convert(). Parts of a
// schema with unexpected shapes are skipped rather than rejected (for
// example, a non-map "properties" renders as "{}").
func Render(schema map[string]any, opts Options) (out string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn("SchemaTS", "schema conversion panicked: %v", r)
			out = "unknown"
		}
	}()
	if len(schema) == 0 {
		return "unknown"
	}
	c := &converter{opts: opts, defs: map[string]any{}}
	if d, ok := schema["$defs"].(map[string]any); ok {
		c.defs = d
	} else if d, ok := schema["definitions"].(map[string]any); ok {
		c.defs = d
	}
	return c.convertType(schema)
}

type converter struct {
	opts Options
	defs map[string]any
}

func (c *converter) convertType(schema map[string]any) string {
	if schema == nil {
		return "unknown"
	}
	if ref, ok := schema["$ref"].(string); ok {
		return c.resolveRef(ref)
	}
	if enum, ok := schema["enum"].([]any); ok {
		return c.convertEnum(enum)
	}
	if cst, ok := schema["const"]; ok {
		return formatLiteral(cst)
	}
	if anyOf, ok := schema["anyOf"].([]any); ok {
		return c.convertUnion(anyOf)
	}
	if oneOf, ok := schema["oneOf"].([]any); ok {
		return c.convertUnion(oneOf)
	}
	if allOf, ok := schema["allOf"].([]any); ok {
		if len(allOf) > 0 {
			if m, ok := allOf[0].(map[string]any); ok {
				return c.convertType(m)
			}
		}
		return "unknown"
	}

	switch t := schema["type"].(type) {
	case []any:
		types := make([]string, 0, len(t))
		for _, tv := range t {
			if s, ok := tv.(string); ok {
				types = append(types, c.convertSimpleType(s, schema))
			}
		}
		return strings.Join(types, " | ")
	case string:
		switch t {
		case "string":
			return "string"
		case "number", "integer":
			return "number"
		case "boolean":
			return "boolean"
		case "null":
			return "null"
		case "array":
			return c.convertArray(schema)
		case "object":
			return c.convertObject(schema)
		}
	}

	if _, ok := schema["properties"]; ok {
		return c.convertObject(schema)
	}
	if _, ok := schema["items"]; ok {
		return c.convertArray(schema)
	}
	return "unknown"
}

func (c *converter) convertSimpleType(name string, schema map[string]any) string {
	switch name {
	case "string":
		return "string"
	case "number", "integer":
		return "number"
	case "boolean":
		return "boolean"
	case "null":
		return "null"
	case "array":
		return c.convertArray(schema)
	case "object":
		return c.convertObject(schema)
	default:
		return "unknown"
	}
}

func (c *converter) convertArray(schema map[string]any) string {
	items, ok := schema["items"].(map[string]any)
	if !ok || len(items) == 0 {
		return "unknown[]"
	}
	itemType := c.convertType(items)
	if strings.Contains(itemType, " | ") {
		return "(" + itemType + ")[]"
	}
	return itemType + "[]"
}

func (c *converter) convertObject(schema map[string]any) string {
	properties, _ := schema["properties"].(map[string]any)
	required := map[string]bool{}
	switch req := schema["required"].(type) {
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	case []string:
		for _, s := range req {
			required[s] = true
		}
	}

	if len(properties) == 0 {
		switch additional := schema["additionalProperties"].(type) {
		case bool:
			if additional {
				return "Record<string, unknown>"
			}
		case map[string]any:
			return "Record<string, " + c.convertType(additional) + ">"
		}
		return "{}"
	}

	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]string, 0, len(names))
	for _, name := range names {
		propSchema, _ := properties[name].(map[string]any)
		fieldType := c.convertType(propSchema)
		marker := "?"
		if required[name] {
			marker = ""
		}
		field := fmt.Sprintf("%s%s: %s", name, marker, fieldType)

		if c.opts.IncludeDescriptions && propSchema != nil {
			if desc, ok := propSchema["description"].(string); ok && desc != "" {
				if len(desc) > c.opts.MaxDescriptionLen {
					desc = desc[:c.opts.MaxDescriptionLen-3] + "..."
				}
				field += fmt.Sprintf(" /* %s */", desc)
			}
		}
		fields = append(fields, field)
	}
	return "{" + strings.Join(fields, "; ") + "}"
}

func (c *converter) convertUnion(schemas []any) string {
	var types []string
	seen := map[string]bool{}
	for _, s := range schemas {
		m, ok := s.(map[string]any)
		if !ok {
			continue
		}
		t := c.convertType(m)
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	return strings.Join(types, " | ")
}

func (c *converter) convertEnum(values []any) string {
	literals := make([]string, 0, len(values))
	for _, v := range values {
		literals = append(literals, formatLiteral(v))
	}
	return strings.Join(literals, " | ")
}

func formatLiteral(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case string:
		escaped := strings.ReplaceAll(v, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		return `"` + escaped + `"`
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return "unknown"
	}
}

func (c *converter) resolveRef(ref string) string {
	if strings.HasPrefix(ref, "#/") {
		parts := strings.Split(ref[2:], "/")
		if len(parts) >= 2 && (parts[0] == "$defs" || parts[0] == "definitions") {
			if def, ok := c.defs[parts[1]].(map[string]any); ok {
				return c.convertType(def)
			}
		}
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
