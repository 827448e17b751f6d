// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package patch

// maxPadding bounds how many nulls vivification may append to reach an index.
const maxPadding = 1024

// leafFunc applies an operation at key inside parent. It returns the parent,
// which is a new slice header when a sequence grew or shrank.
type leafFunc func(parent any, key string) (any, error)

// walk descends segments from node and calls leaf on the container holding
// the last segment. Containers returned from deeper levels are stored back
// into their parents on the way up, so a reallocated slice is never lost.
//
// With vivify set, a missing or null intermediate slot is filled with an
// empty container chosen by the segment that follows it. A key in a mapping,
// any index of a sequence or the append marker can be vivified; an index past
// the end pads the sequence with up to maxPadding nulls. The new container is
// attached only after the rest of the walk succeeds, so a failed write leaves
// the document as it was.
func walk(op Operation, node any, segments []string, vivify bool, leaf leafFunc) (any, error) {
	if len(segments) == 1 {
		return leaf(node, segments[0])
	}
	seg, rest := segments[0], segments[1:]

	next, ok := child(node, seg)
	if ok && next != nil {
		updated, err := walk(op, next, rest, vivify, leaf)
		return setChild(node, seg, updated), err
	}
	if !vivify {
		return node, newError(CodeMissingParent, op, "no container at %q", seg)
	}
	if !addressable(node, seg) {
		return node, newError(CodeMissingParent, op, "cannot create a container at %q", seg)
	}
	built, err := walk(op, containerFor(rest[0]), rest, vivify, leaf)
	if err != nil {
		return node, err
	}
	return vivifySlot(node, seg, built), nil
}

// containerFor picks the container an intermediate slot needs so that the
// following segment can address into it.
func containerFor(next string) any {
	if next == appendMarker {
		return []any{}
	}
	if _, ok := parseIndex(next); ok {
		return []any{}
	}
	return map[string]any{}
}

// addressable reports whether vivifySlot can store a container under seg.
func addressable(node any, seg string) bool {
	switch n := node.(type) {
	case map[string]any:
		return true
	case []any:
		if seg == appendMarker {
			return true
		}
		index, ok := parseIndex(seg)
		return ok && index-len(n) <= maxPadding
	default:
		return false
	}
}

// vivifySlot stores container under seg in node, which must be addressable.
func vivifySlot(node any, seg string, container any) any {
	switch n := node.(type) {
	case map[string]any:
		n[seg] = container
		return n
	case []any:
		if seg == appendMarker {
			return append(n, container)
		}
		index, _ := parseIndex(seg)
		if index < len(n) {
			n[index] = container
			return n
		}
		for len(n) < index {
			n = append(n, nil)
		}
		return append(n, container)
	default:
		return node
	}
}

// setChild stores v under seg, which must already address an existing slot.
func setChild(node any, seg string, v any) any {
	switch n := node.(type) {
	case map[string]any:
		n[seg] = v
	case []any:
		if index, ok := parseIndex(seg); ok && index < len(n) {
			n[index] = v
		}
	}
	return node
}

// vivifyRoot gives an empty document a mapping root so additive operations
// have somewhere to write.
func vivifyRoot(doc any) any {
	if doc == nil {
		return map[string]any{}
	}
	return doc
}
