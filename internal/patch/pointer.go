// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"strconv"
	"strings"
)

// appendMarker addresses the position after the last element of a sequence.
const appendMarker = "-"

// ParsePointer splits a JSON Pointer into unescaped segments.
//
// A pointer that is empty or does not start with "/" has no segments and
// addresses nothing; operations on it are no-ops. "/" alone addresses the
// empty key of the root mapping.
func ParsePointer(pointer string) []string {
	if !strings.HasPrefix(pointer, "/") {
		return nil
	}
	segments := strings.Split(pointer[1:], "/")
	for i, seg := range segments {
		segments[i] = unescapePointerSegment(seg)
	}
	return segments
}

// FormatPointer is the inverse of ParsePointer.
func FormatPointer(segments []string) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteByte('/')
		if seg == appendMarker {
			b.WriteString(seg)
		} else {
			b.WriteString(escapePointerSegment(seg))
		}
	}
	return b.String()
}

// escapePointerSegment encodes a segment according to RFC 6901.
// "~" must be escaped before "/" so the "~" of "~1" is not escaped again.
func escapePointerSegment(seg string) string {
	seg = strings.ReplaceAll(seg, "~", "~0")
	seg = strings.ReplaceAll(seg, "/", "~1")
	return seg
}

// unescapePointerSegment decodes a segment according to RFC 6901, in the
// reverse order of escapePointerSegment.
func unescapePointerSegment(seg string) string {
	seg = strings.ReplaceAll(seg, "~1", "/")
	seg = strings.ReplaceAll(seg, "~0", "~")
	return seg
}

// parseIndex reads a non-negative decimal sequence index. Signs, spaces and
// the append marker are not indexes.
func parseIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	for i := 0; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return 0, false
		}
	}
	index, err := strconv.Atoi(seg)
	if err != nil {
		return 0, false
	}
	return index, true
}

// Resolve walks segments from doc and returns the value found there.
// The boolean is false when any step is missing; a present null is found.
func Resolve(doc any, segments []string) (any, bool) {
	current := doc
	for _, seg := range segments {
		next, ok := child(current, seg)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Get parses pointer and resolves it against doc.
func Get(doc any, pointer string) (any, bool) {
	segments := ParsePointer(pointer)
	if len(segments) == 0 {
		return nil, false
	}
	return Resolve(doc, segments)
}

// child returns the value stored under seg in node. The append marker
// never resolves.
func child(node any, seg string) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[seg]
		return v, ok
	case []any:
		index, ok := parseIndex(seg)
		if !ok || index >= len(n) {
			return nil, false
		}
		return n[index], true
	default:
		return nil, false
	}
}
