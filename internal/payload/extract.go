// Package payload implements the Payload Pipeline from spec §4.4:
// normalizing upstream call_tool/read_resource responses to a
// serializable value while preserving multimodal content, and
// optionally compressing the result via TOON.
package payload

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// Multimodal wraps an image or embedded-resource content item that must
// be passed through verbatim, never compressed.
type Multimodal struct {
	Kind string // "image" or "resource"
	Item mcp.Content
}

// Extract normalizes a CallToolResult's content list per spec §4.4's
// extraction rules, grounded on original_source/src/mcpx/server.py's
// _extract_result_data / _unwrap_json_string.
func Extract(content []mcp.Content) any {
	switch len(content) {
	case 0:
		return nil
	case 1:
		return extractOne(content[0])
	default:
		return extractMany(content)
	}
}

func isMultimodal(item mcp.Content) (Multimodal, bool) {
	if img, ok := mcp.AsImageContent(item); ok {
		return Multimodal{Kind: "image", Item: img}, true
	}
	if res, ok := mcp.AsEmbeddedResource(item); ok {
		return Multimodal{Kind: "resource", Item: res}, true
	}
	return Multimodal{}, false
}

func extractOne(item mcp.Content) any {
	if text, ok := mcp.AsTextContent(item); ok {
		return unwrapJSONString(text.Text)
	}
	if mm, ok := isMultimodal(item); ok {
		return mm
	}
	return ensureSerializable(item)
}

func extractMany(content []mcp.Content) any {
	for _, item := range content {
		if _, ok := isMultimodal(item); ok {
			// Any multimodal presence makes the whole value pass through
			// verbatim (sticky multimodal exclusion, spec §4.4).
			out := make([]any, len(content))
			for i, c := range content {
				if mm, ok := isMultimodal(c); ok {
					out[i] = mm
				} else if text, ok := mcp.AsTextContent(c); ok {
					out[i] = text.Text
				} else {
					out[i] = ensureSerializable(c)
				}
			}
			return out
		}
	}

	texts := make([]any, 0, len(content))
	for _, item := range content {
		if text, ok := mcp.AsTextContent(item); ok {
			texts = append(texts, text.Text)
		} else {
			texts = append(texts, ensureSerializable(item))
		}
	}
	if len(texts) == 1 {
		return texts[0]
	}
	return texts
}

// unwrapJSONString attempts to JSON-decode text; if the decoded value is
// itself a string, one more decode is attempted to handle
// double-encoded payloads (spec §8 round-trip property). On any decode
// failure along the way, the raw text (or the once-decoded string) is
// returned.
func unwrapJSONString(text string) any {
	if text == "" {
		return text
	}
	var once any
	if err := json.Unmarshal([]byte(text), &once); err != nil {
		return text
	}
	if s, ok := once.(string); ok {
		var twice any
		if err := json.Unmarshal([]byte(s), &twice); err == nil {
			return twice
		}
		return s
	}
	return once
}

// ensureSerializable coerces a value into something encoding/json can
// marshal, falling back to a string representation, grounded on
// original_source's _ensure_serializable.
func ensureSerializable(data any) any {
	switch v := data.(type) {
	case nil, string, bool, int, int64, float64:
		return v
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = ensureSerializable(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = ensureSerializable(item)
		}
		return out
	default:
		if b, err := json.Marshal(v); err == nil {
			var decoded any
			if err := json.Unmarshal(b, &decoded); err == nil {
				return decoded
			}
		}
		return v
	}
}
