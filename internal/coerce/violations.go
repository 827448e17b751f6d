// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package coerce

import (
	"fmt"
	"strconv"
	"strings"
)

// Path locates a value inside a document for violation reporting.
// It renders as a JSON Pointer so a violation can be fed back as a patch path.
type Path struct {
	segments []string
}

// Root is the path of the document itself.
func Root() *Path {
	return &Path{}
}

// Child returns a new path with the field name appended.
func (p *Path) Child(name string) *Path {
	newSegments := make([]string, len(p.segments)+1)
	copy(newSegments, p.segments)
	newSegments[len(p.segments)] = name
	return &Path{segments: newSegments}
}

// Index returns a new path with a sequence index appended.
func (p *Path) Index(i int) *Path {
	return p.Child(strconv.Itoa(i))
}

// String returns the JSON Pointer form of the path, "" for the root.
func (p *Path) String() string {
	if len(p.segments) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range p.segments {
		b.WriteByte('/')
		b.WriteString(strings.ReplaceAll(strings.ReplaceAll(s, "~", "~0"), "/", "~1"))
	}
	return b.String()
}

// Violation is a value that could not be brought into its declared shape.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (v *Violation) Error() string {
	path := v.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s: %s", path, v.Message)
}

// Violations collects every violation found in one coercion pass.
type Violations []*Violation

// Error implements the error interface, formatting all violations.
func (vs Violations) Error() string {
	var b strings.Builder
	for i, v := range vs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(v.Error())
	}
	return b.String()
}

// OrNil returns nil if there are no violations, otherwise returns vs.
func (vs Violations) OrNil() error {
	if len(vs) == 0 {
		return nil
	}
	return vs
}

func violation(path *Path, format string, args ...any) *Violation {
	return &Violation{Path: path.String(), Message: fmt.Sprintf(format, args...)}
}
