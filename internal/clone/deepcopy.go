// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package clone deep-copies loosely typed document trees.
package clone

import "encoding/json"

// DeepCopy returns a copy of v that shares no mutable state with it.
//
// Documents are trees of map[string]any, []any and scalars. Typed string
// collections produced by Go callers are normalized to their []any /
// map[string]any form so the copy can be edited by the patch engine.
// Scalars are immutable and returned as-is; unknown types (pointers,
// structs) are returned unchanged and remain shared.
func DeepCopy(v any) any {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			return map[string]any{}
		}
		return deepCopyMap(val)

	case []any:
		if len(val) == 0 {
			return []any{}
		}
		return deepCopySlice(val)

	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out

	case map[string]string:
		out := make(map[string]any, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out

	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(val, &decoded); err != nil {
			return string(val)
		}
		return decoded

	case string, int, int64, int32, int16, int8,
		uint, uint64, uint32, uint16, uint8,
		float64, float32, bool, json.Number:
		return val

	default:
		return val
	}
}

func deepCopyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = DeepCopy(v)
	}
	return dst
}

func deepCopySlice(src []any) []any {
	dst := make([]any, len(src))
	for i, v := range src {
		dst[i] = DeepCopy(v)
	}
	return dst
}
