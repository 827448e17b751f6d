// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/openchoreo/statepatch/internal/coerce"
)

// Equal reports whether a and b are the same document value. Mapping key
// order does not matter, sequence order does, and numbers compare by value
// whatever their Go type.
func Equal(a, b any) bool {
	return cmp.Equal(normalize(a), normalize(b))
}

// normalize maps a value onto the types produced by decoding JSON so that
// values built in Go compare equal to values decoded from the wire.
func normalize(v any) any {
	switch val := v.(type) {
	case nil, string, bool:
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	}
	if n, ok := coerce.ParseNumber(v); ok {
		return n
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return string(data)
	}
	return normalize(decoded)
}
