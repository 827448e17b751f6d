// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package coerce brings loosely typed documents into a declared shape.
//
// Coercion is lenient by construction: numeric strings become numbers,
// missing fields take their defaults, a scalar where a list is expected is
// wrapped, and JSON text where a container is expected is decoded. Values that
// still do not fit are kept as they are and reported as Violations.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/openchoreo/statepatch/internal/clone"
)

// Options configures a Coercer.
type Options struct {
	// LenientLists treats every list as open, so elements are never coerced.
	LenientLists bool
}

// Coercer applies a Shape to documents. It is safe for concurrent use.
type Coercer struct {
	shape *Shape
	opts  Options
}

// New returns a Coercer for shape.
func New(shape *Shape, opts Options) *Coercer {
	return &Coercer{shape: shape, opts: opts}
}

// Shape returns the shape the coercer applies.
func (c *Coercer) Shape() *Shape {
	return c.shape
}

// Coerce returns a copy of doc brought into the coercer's shape.
//
// doc itself is never modified. The returned error is nil or Violations;
// the returned document is usable either way. Coerce is idempotent:
// coercing its own output yields an equal document.
func (c *Coercer) Coerce(doc any) (any, error) {
	run := &pass{opts: c.opts}
	out, _ := run.value(c.shape, doc, true, Root())
	return out, run.violations.OrNil()
}

// Coerce applies shape to doc with default options.
func Coerce(doc any, shape *Shape) (any, error) {
	return New(shape, Options{}).Coerce(doc)
}

type pass struct {
	opts       Options
	violations Violations
}

func (p *pass) report(path *Path, format string, args ...any) {
	p.violations = append(p.violations, violation(path, format, args...))
}

// value coerces v against s. present is false when the field is absent from
// its parent. The second result is false when nothing should be written.
func (p *pass) value(s *Shape, v any, present bool, path *Path) (any, bool) {
	if s == nil {
		return clone.DeepCopy(v), present
	}
	if v == nil {
		if s.Kind == KindAny {
			return nil, present
		}
		if !present && s.Required && !s.HasDefault {
			p.report(path, "is required")
			return nil, false
		}
		zero, ok := s.zero()
		if !ok {
			return nil, present
		}
		v = zero
	}

	switch s.Kind {
	case KindNumber, KindInteger, KindPercent:
		return p.number(s, v, path), true
	case KindString:
		out := String(v)
		p.checkEnum(s, out, path)
		return out, true
	case KindBoolean:
		b, ok := Bool(v)
		if !ok {
			p.report(path, "expected boolean, got %s", describeValue(v))
			return clone.DeepCopy(v), true
		}
		return b, true
	case KindObject:
		return p.object(s, v, path), true
	case KindMap:
		return p.record(s, v, path), true
	case KindList:
		return p.list(s, v, path), true
	case KindUnion:
		return p.union(s, v, path), true
	default:
		return clone.DeepCopy(v), true
	}
}

func (p *pass) number(s *Shape, v any, path *Path) float64 {
	n := Number(v)
	switch s.Kind {
	case KindInteger:
		n = math.Trunc(n)
	case KindPercent:
		n = Clamp(n, 0, 100)
	}
	if s.Clamp {
		if s.Minimum != nil {
			n = math.Max(n, *s.Minimum)
		}
		if s.Maximum != nil {
			n = math.Min(n, *s.Maximum)
		}
	} else {
		if s.Minimum != nil && n < *s.Minimum {
			p.report(path, "must be >= %s", FormatNumber(*s.Minimum))
		}
		if s.Maximum != nil && n > *s.Maximum {
			p.report(path, "must be <= %s", FormatNumber(*s.Maximum))
		}
	}
	p.checkEnum(s, n, path)
	return n
}

func (p *pass) checkEnum(s *Shape, v any, path *Path) {
	if len(s.Enum) == 0 {
		return
	}
	for _, allowed := range s.Enum {
		if String(allowed) == String(v) {
			return
		}
	}
	parts := make([]string, len(s.Enum))
	for i, allowed := range s.Enum {
		parts[i] = String(allowed)
	}
	p.report(path, "must be one of: %s", strings.Join(parts, ", "))
}

func (p *pass) object(s *Shape, v any, path *Path) any {
	m, ok := asMap(v)
	if !ok {
		p.report(path, "expected %s, got %s", s.describe(), describeValue(v))
		return clone.DeepCopy(v)
	}

	out := make(map[string]any, len(m)+len(s.Fields))
	for k, val := range m {
		if _, declared := s.Fields[k]; !declared {
			out[k] = clone.DeepCopy(val)
		}
	}
	for _, name := range sortedKeys(s.Fields) {
		val, present := m[name]
		coerced, set := p.value(s.Fields[name], val, present, path.Child(name))
		if set {
			out[name] = coerced
		}
	}
	return out
}

func (p *pass) record(s *Shape, v any, path *Path) any {
	m, ok := asMap(v)
	if !ok {
		p.report(path, "expected map, got %s", describeValue(v))
		return clone.DeepCopy(v)
	}
	out := make(map[string]any, len(m))
	for _, k := range sortedKeys(m) {
		coerced, set := p.value(s.Items, m[k], true, path.Child(k))
		if set {
			out[k] = coerced
		}
	}
	return out
}

func (p *pass) list(s *Shape, v any, path *Path) any {
	items := asList(v)
	if s.MinItems != nil && len(items) < *s.MinItems {
		p.report(path, "must have at least %d items", *s.MinItems)
	}
	if s.MaxItems != nil && len(items) > *s.MaxItems {
		p.report(path, "must have at most %d items", *s.MaxItems)
	}

	out := make([]any, len(items))
	if s.Policy == Open || p.opts.LenientLists || s.Items == nil {
		for i, item := range items {
			out[i] = clone.DeepCopy(item)
		}
		return out
	}
	for i, item := range items {
		out[i], _ = p.value(s.Items, item, true, path.Index(i))
	}
	return out
}

// union picks the first variant whose kind already matches v, then the
// first variant that accepts v without violations. If none does, v is
// kept and reported.
func (p *pass) union(s *Shape, v any, path *Path) any {
	for _, variant := range s.Variants {
		if !matchesNatively(variant, v) {
			continue
		}
		if out, ok := p.try(variant, v, path); ok {
			return out
		}
	}
	for _, variant := range s.Variants {
		if out, ok := p.try(variant, v, path); ok {
			return out
		}
	}

	names := make([]string, len(s.Variants))
	for i, variant := range s.Variants {
		names[i] = variant.describe()
	}
	p.report(path, "does not match any of: %s", strings.Join(names, ", "))
	return clone.DeepCopy(v)
}

func (p *pass) try(s *Shape, v any, path *Path) (any, bool) {
	sub := &pass{opts: p.opts}
	out, _ := sub.value(s, v, true, path)
	return out, len(sub.violations) == 0
}

func matchesNatively(s *Shape, v any) bool {
	switch s.Kind {
	case KindAny:
		return true
	case KindNumber, KindInteger, KindPercent:
		_, isString := v.(string)
		_, isBool := v.(bool)
		if isString || isBool {
			return false
		}
		_, ok := ParseNumber(v)
		return ok
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindObject, KindMap:
		_, ok := v.(map[string]any)
		return ok
	case KindList:
		_, ok := v.([]any)
		return ok
	case KindUnion:
		for _, variant := range s.Variants {
			if matchesNatively(variant, v) {
				return true
			}
		}
	}
	return false
}

// asMap accepts a mapping or JSON text encoding one.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		return clone.DeepCopy(m).(map[string]any), true
	case string:
		var decoded map[string]any
		trimmed := strings.TrimSpace(m)
		if !strings.HasPrefix(trimmed, "{") {
			return nil, false
		}
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return nil, false
		}
		return decoded, true
	}
	return nil, false
}

// asList accepts a sequence, JSON text encoding one, or wraps anything else
// as a single element.
func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		return clone.DeepCopy(l).([]any)
	case string:
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "[") {
			var decoded []any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return decoded
			}
		}
	}
	return []any{v}
}

func describeValue(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "list"
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	if _, ok := ParseNumber(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
