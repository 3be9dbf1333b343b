package payload

import (
	"sort"

	"github.com/alpkeskin/gotoon"

	"github.com/giantswarm/mcpmux/internal/logging"
)

// dataShape mirrors original_source/src/mcpx/compression.py's
// detect_data_type classification.
type dataShape string

const (
	shapePrimitive dataShape = "primitive"
	shapeArray     dataShape = "array" // homogeneous array of records, or empty
	shapeObject    dataShape = "object"
	shapeMixed     dataShape = "mixed"
	shapeOther     dataShape = "other"
)

func detectShape(data any) dataShape {
	switch v := data.(type) {
	case nil, string, bool, int, int64, float64:
		return shapePrimitive
	case []any:
		if len(v) == 0 {
			return shapeArray
		}
		var keySets []string
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return shapeMixed
			}
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			keySets = append(keySets, keyFingerprint(keys))
		}
		if allEqual(keySets) {
			return shapeArray
		}
		return shapeMixed
	case map[string]any:
		return shapeObject
	default:
		return shapeOther
	}
}

func keyFingerprint(sortedKeys []string) string {
	out := ""
	for _, k := range sortedKeys {
		out += k + "\x00"
	}
	return out
}

func allEqual(ss []string) bool {
	for i := 1; i < len(ss); i++ {
		if ss[i] != ss[0] {
			return false
		}
	}
	return true
}

func isMultimodalValue(data any) bool {
	switch v := data.(type) {
	case Multimodal:
		return true
	case []any:
		for _, item := range v {
			if _, ok := item.(Multimodal); ok {
				return true
			}
		}
	}
	return false
}

// isCompressible mirrors is_compressible: multimodal is sticky-excluded,
// primitives never compress, arrays/objects need minSize items/keys,
// mixed arrays need minSize*2 items, and values of any other shape never
// compress.
func isCompressible(data any, minSize int) bool {
	if isMultimodalValue(data) {
		return false
	}
	switch detectShape(data) {
	case shapePrimitive:
		return false
	case shapeArray:
		arr, ok := data.([]any)
		return ok && len(arr) >= minSize
	case shapeObject:
		obj, ok := data.(map[string]any)
		return ok && len(obj) >= minSize
	case shapeMixed:
		arr, ok := data.([]any)
		return ok && len(arr) >= minSize*2
	default:
		return false
	}
}

// Compressor applies TOON compression according to the rules in spec
// §4.4, delegating the actual encoding to gotoon and falling back to the
// original value on any encode failure or when compression is disabled.
type Compressor struct {
	Enabled bool
	MinSize int
}

// Compress returns (value, wasCompressed). minSizeOverride, when
// non-zero, replaces c.MinSize for this call only — used to apply the
// describe-path vs call-path thresholds spec §9 keeps distinct.
func (c Compressor) Compress(data any, minSizeOverride int) (any, bool) {
	if !c.Enabled {
		return data, false
	}
	minSize := c.MinSize
	if minSizeOverride > 0 {
		minSize = minSizeOverride
	}
	if !isCompressible(data, minSize) {
		return data, false
	}
	encoded, err := gotoon.Encode(data)
	if err != nil {
		logging.Debug("Compressor", "TOON compression failed, falling back to JSON: %v", err)
		return data, false
	}
	return encoded, true
}
