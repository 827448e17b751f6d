// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"fmt"

	"github.com/openchoreo/statepatch/internal/coerce"
)

// addLeaf places value at key. It is the placement rule shared by add, move
// and copy.
//
// On a sequence the append marker appends, an index inserts and shifts later
// elements right, and an index past the end appends. A key that is not an
// index cannot address a sequence.
func addLeaf(op Operation, value any) leafFunc {
	return func(parent any, key string) (any, error) {
		switch p := parent.(type) {
		case []any:
			if key == appendMarker {
				return append(p, value), nil
			}
			index, ok := parseIndex(key)
			if !ok {
				return p, newError(CodeTypeMismatch, op, "%q is not a sequence index", key)
			}
			if index >= len(p) {
				return append(p, value), nil
			}
			arr := make([]any, len(p)+1)
			copy(arr[:index], p[:index])
			arr[index] = value
			copy(arr[index+1:], p[index:])
			return arr, nil
		case map[string]any:
			p[key] = value
			return p, nil
		default:
			return parent, notAContainer(op, parent)
		}
	}
}

// replaceLeaf overwrites the value at key. It never shifts sequence
// elements; the slot right after the last element may be filled.
func replaceLeaf(op Operation, value any) leafFunc {
	return func(parent any, key string) (any, error) {
		switch p := parent.(type) {
		case []any:
			index, ok := parseIndex(key)
			switch {
			case !ok:
				return p, newError(CodeTypeMismatch, op, "%q is not a sequence index", key)
			case index < len(p):
				p[index] = value
				return p, nil
			case index == len(p):
				return append(p, value), nil
			default:
				return p, newError(CodeMissingTarget, op, "index %d out of bounds (length %d)", index, len(p))
			}
		case map[string]any:
			p[key] = value
			return p, nil
		default:
			return parent, notAContainer(op, parent)
		}
	}
}

func removeLeaf(op Operation) leafFunc {
	return func(parent any, key string) (any, error) {
		switch p := parent.(type) {
		case []any:
			index, ok := parseIndex(key)
			if !ok {
				return p, newError(CodeTypeMismatch, op, "%q is not a sequence index", key)
			}
			if index >= len(p) {
				return p, newError(CodeMissingTarget, op, "index %d out of bounds (length %d)", index, len(p))
			}
			arr := make([]any, len(p)-1)
			copy(arr[:index], p[:index])
			copy(arr[index:], p[index+1:])
			return arr, nil
		case map[string]any:
			if _, exists := p[key]; !exists {
				return p, newError(CodeMissingTarget, op, "key %q does not exist", key)
			}
			delete(p, key)
			return p, nil
		default:
			return parent, notAContainer(op, parent)
		}
	}
}

// deltaLeaf adds the numeric reading of the operation value to an existing
// slot. It never creates a field.
func deltaLeaf(op Operation) leafFunc {
	return func(parent any, key string) (any, error) {
		current, ok := child(parent, key)
		if !ok {
			switch parent.(type) {
			case map[string]any, []any:
				return parent, newError(CodeMissingTarget, op, "nothing at %q to add to", key)
			default:
				return parent, notAContainer(op, parent)
			}
		}
		sum := coerce.Number(current) + coerce.Number(op.Value)
		return setChild(parent, key, sum), nil
	}
}

func notAContainer(op Operation, parent any) *Error {
	if parent == nil {
		return newError(CodeMissingParent, op, "parent does not exist")
	}
	return newError(CodeMissingParent, op, "parent is a %s, not a container", kindOf(parent))
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "mapping"
	case []any:
		return "sequence"
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	if _, ok := coerce.ParseNumber(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
