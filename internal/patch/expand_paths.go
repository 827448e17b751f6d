// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// filterExpr recognizes the `[?(@.field=='value')]` selectors used in array filter expressions.
// The pattern captures the field path (group 1) and the expected value (group 2).
var filterExpr = regexp.MustCompile(`^@\.([A-Za-z0-9_.-]+)\s*==\s*['"](.*)['"]$`)

// pathState represents a single location within the document tree during path expansion.
type pathState struct {
	pointer []string // unescaped segments
	value   any      // the value at this location, nil when it does not exist yet
}

// expandPaths converts a path expression into one or more JSON Pointers.
//
// Path expressions extend JSON Pointer with array filters and bracketed
// indexes:
//
//	/creator/sandboxes[?(@.sandbox_id=='s1')]/era_heroes/-
//	/creator/sandboxes/[?(@.sandbox_name=='Terra')]/population
//
// A filter fans out to every matching element, so one expression can expand
// to several pointers. The last segment is kept as written unless it holds a
// filter itself, which lets the expanded pointers address slots that do not
// exist yet.
func expandPaths(root any, rawPath string) ([]string, error) {
	segments := ParsePointer(rawPath)
	if len(segments) == 0 {
		return nil, nil
	}

	states := []pathState{{pointer: []string{}, value: root}}
	for i, segment := range segments {
		last := i == len(segments)-1
		if last && !containsFilter(segment) && !strings.Contains(segment, "[") {
			for j := range states {
				states[j].pointer = appendPointer(states[j].pointer, segment)
			}
			break
		}
		if segment == appendMarker {
			states = applyDash(states)
			continue
		}

		nextStates := make([]pathState, 0, len(states))
		for _, st := range states {
			expanded, err := applySegment(st, segment)
			if err != nil {
				return nil, err
			}
			nextStates = append(nextStates, expanded...)
		}
		states = nextStates
		if len(states) == 0 {
			break
		}
	}

	pointers := make([]string, 0, len(states))
	for _, st := range states {
		pointers = append(pointers, FormatPointer(st.pointer))
	}
	return pointers, nil
}

// applySegment processes a single path segment, which may contain multiple sub-parts:
//   - "sandboxes" (simple key)
//   - "0" or "[0]" (index)
//   - "[?(@.name=='app')]" (filter)
//   - "sandboxes[0]" or "sandboxes[?(@.id=='a')]" (key followed by a selector)
func applySegment(state pathState, segment string) ([]pathState, error) {
	current := []pathState{state}
	remaining := segment

	for len(remaining) > 0 {
		if strings.HasPrefix(remaining, "[") {
			closeIdx := strings.Index(remaining, ")]")
			if strings.HasPrefix(remaining, "[?(") && closeIdx != -1 {
				closeIdx++
			} else {
				closeIdx = strings.Index(remaining, "]")
			}
			if closeIdx == -1 {
				return nil, fmt.Errorf("unclosed bracket segment in %q", segment)
			}
			content := remaining[1:closeIdx]
			remaining = remaining[closeIdx+1:]

			var err error
			switch {
			case strings.HasPrefix(content, "?(") && strings.HasSuffix(content, ")"):
				current, err = applyFilter(current, content[2:len(content)-1])
			case content == appendMarker:
				current = applyDash(current)
			default:
				index, ok := parseIndex(content)
				if !ok {
					return nil, fmt.Errorf("unsupported array index %q", content)
				}
				current, err = applyIndex(current, index)
			}
			if err != nil {
				return nil, err
			}
			continue
		}

		nextBracket := strings.Index(remaining, "[")
		var token string
		if nextBracket == -1 {
			token = remaining
			remaining = ""
		} else {
			token = remaining[:nextBracket]
			remaining = remaining[nextBracket:]
		}
		if token == "" {
			continue
		}

		var err error
		if index, ok := parseIndex(token); ok && isSequenceStates(current) {
			current, err = applyIndex(current, index)
		} else {
			current, err = applyKey(current, token)
		}
		if err != nil {
			return nil, err
		}
	}

	return current, nil
}

func isSequenceStates(states []pathState) bool {
	for _, st := range states {
		if _, ok := st.value.([]any); !ok {
			return false
		}
	}
	return len(states) > 0
}

// applyKey traverses an object key for all current states. Traversing
// through a missing value is allowed; the child is missing too.
func applyKey(states []pathState, key string) ([]pathState, error) {
	next := make([]pathState, 0, len(states))
	for _, st := range states {
		var child any
		switch current := st.value.(type) {
		case map[string]any:
			child = current[key]
		case nil:
			child = nil
		default:
			return nil, fmt.Errorf("path segment %q expects an object, got %s", key, kindOf(st.value))
		}
		next = append(next, pathState{
			pointer: appendPointer(st.pointer, key),
			value:   child,
		})
	}
	return next, nil
}

// applyIndex traverses an array index for all current states.
func applyIndex(states []pathState, index int) ([]pathState, error) {
	next := make([]pathState, 0, len(states))
	for _, st := range states {
		arr, ok := st.value.([]any)
		if !ok {
			return nil, fmt.Errorf("path segment expects an array, got %s", kindOf(st.value))
		}
		if index >= len(arr) {
			return nil, fmt.Errorf("array index %d out of bounds", index)
		}
		next = append(next, pathState{
			pointer: appendPointer(st.pointer, strconv.Itoa(index)),
			value:   arr[index],
		})
	}
	return next, nil
}

// applyDash adds the append marker to all current states.
func applyDash(states []pathState) []pathState {
	next := make([]pathState, len(states))
	for i, st := range states {
		next[i] = pathState{
			pointer: appendPointer(st.pointer, appendMarker),
			value:   nil,
		}
	}
	return next
}

// applyFilter keeps the elements of each array state that match expr.
func applyFilter(states []pathState, expr string) ([]pathState, error) {
	next := []pathState{}
	for _, st := range states {
		arr, ok := st.value.([]any)
		if !ok {
			continue
		}
		for idx, item := range arr {
			match, err := matchesFilter(item, expr)
			if err != nil {
				return nil, err
			}
			if match {
				next = append(next, pathState{
					pointer: appendPointer(st.pointer, strconv.Itoa(idx)),
					value:   item,
				})
			}
		}
	}
	return next, nil
}

// matchesFilter tests an item against an equality filter of the form
// @.field.path=='value'. Missing fields never match.
func matchesFilter(item any, expr string) (bool, error) {
	matches := filterExpr.FindStringSubmatch(strings.TrimSpace(expr))
	if len(matches) != 3 {
		return false, fmt.Errorf("unsupported filter expression: %s", expr)
	}

	fieldPath := strings.Split(matches[1], ".")
	expected := matches[2]

	current := item
	for _, segment := range fieldPath {
		m, ok := current.(map[string]any)
		if !ok {
			return false, nil
		}
		current, ok = m[segment]
		if !ok {
			return false, nil
		}
	}

	if current == nil {
		return expected == "", nil
	}
	if n, ok := current.(float64); ok {
		return strconv.FormatFloat(n, 'f', -1, 64) == expected, nil
	}
	return fmt.Sprintf("%v", current) == expected, nil
}

func appendPointer(base []string, segment string) []string {
	next := make([]string, len(base)+1)
	copy(next, base)
	next[len(base)] = segment
	return next
}
