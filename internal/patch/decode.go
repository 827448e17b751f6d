// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

// DecodeOperations converts loosely typed command records into Operations.
//
// Records that are not mappings, or that lack a non-empty string op or path,
// are dropped and counted in skipped. A from that is not a string is ignored.
func DecodeOperations(raw []any) (ops []Operation, skipped int) {
	ops = make([]Operation, 0, len(raw))
	for _, item := range raw {
		op, ok := decodeOperation(item)
		if !ok {
			skipped++
			continue
		}
		ops = append(ops, op)
	}
	return ops, skipped
}

func decodeOperation(item any) (Operation, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return Operation{}, false
	}
	name, _ := m["op"].(string)
	path, _ := m["path"].(string)
	if name == "" || path == "" {
		return Operation{}, false
	}
	from, _ := m["from"].(string)
	return Operation{Op: name, Path: path, From: from, Value: m["value"]}, true
}

// ParseOperations decodes a JSON or YAML list of command records.
// A single record that is not wrapped in a list is accepted too.
func ParseOperations(data []byte) ([]Operation, int, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("failed to parse operations: %w", err)
	}
	switch v := raw.(type) {
	case nil:
		return []Operation{}, 0, nil
	case []any:
		ops, skipped := DecodeOperations(v)
		return ops, skipped, nil
	case map[string]any:
		ops, skipped := DecodeOperations([]any{v})
		return ops, skipped, nil
	default:
		return nil, 0, fmt.Errorf("operations must be a list of objects, got %s", kindOf(raw))
	}
}
