// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package coerce

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"sigs.k8s.io/yaml"
)

// Definition is the on-disk form of a document shape.
//
// Fields use the shorthand syntax "type | constraint=value | ...":
//   - Primitive types: "number", "integer", "percent", "string", "boolean", "any"
//   - Open objects: "object" (any keys, none declared)
//   - Lists: "[]Gene", "array<string>", "[]any" (an open list)
//   - Maps: "map<number>", "map[string]Hero"
//   - Unions: "union<string,HarvestItem>"
//   - Named types: "Hero" (declared under types)
//
// Nested YAML mappings declare inline objects.
type Definition struct {
	Types map[string]any `json:"types,omitempty"`
	Root  any            `json:"root"`
}

// LoadDefinition reads and compiles a shape definition file.
func LoadDefinition(path string) (*Shape, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shape file %s: %w", path, err)
	}
	shape, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("shape file %s: %w", path, err)
	}
	return shape, nil
}

// ParseDefinition compiles a YAML or JSON shape definition.
func ParseDefinition(data []byte) (*Shape, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse shape definition: %w", err)
	}
	if def.Root == nil {
		return nil, fmt.Errorf("shape definition has no root")
	}
	return Compile(def.Root, def.Types)
}

// Compile converts a root field declaration into a Shape, resolving named
// types from types.
func Compile(root any, types map[string]any) (*Shape, error) {
	c := &converter{
		types:     types,
		typeCache: map[string]*Shape{},
		typeStack: map[string]bool{},
	}
	return c.buildFieldShape(root)
}

type converter struct {
	types     map[string]any
	typeCache map[string]*Shape
	typeStack map[string]bool
}

func (c *converter) buildFieldShape(raw any) (*Shape, error) {
	switch typed := raw.(type) {
	case string:
		return c.shapeFromString(typed)
	case map[string]any:
		return c.buildObjectShape(typed)
	default:
		return nil, fmt.Errorf("unsupported field definition of type %T", raw)
	}
}

func (c *converter) buildObjectShape(fields map[string]any) (*Shape, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]*Shape, len(fields))
	for _, name := range keys {
		shape, err := c.buildFieldShape(fields[name])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = shape
	}
	return Object(out), nil
}

func (c *converter) shapeFromString(expr string) (*Shape, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty shape expression")
	}

	typeExpr := expr
	constraintExpr := ""
	if idx := strings.Index(expr, "|"); idx != -1 {
		typeExpr = strings.TrimSpace(expr[:idx])
		constraintExpr = strings.TrimSpace(expr[idx+1:])
	}

	shape, err := c.shapeFromType(typeExpr)
	if err != nil {
		return nil, err
	}
	if constraintExpr == "" {
		return shape, nil
	}

	shape = copyShape(shape)
	if err := applyConstraints(shape, constraintExpr); err != nil {
		return nil, err
	}
	return shape, nil
}

func (c *converter) shapeFromType(typeExpr string) (*Shape, error) {
	switch {
	case typeExpr == string(KindAny):
		return Scalar(KindAny), nil
	case typeExpr == string(KindNumber), typeExpr == string(KindInteger),
		typeExpr == string(KindString), typeExpr == string(KindBoolean):
		return Scalar(Kind(typeExpr)), nil
	case typeExpr == string(KindPercent):
		lo, hi := 0.0, 100.0
		return Scalar(KindPercent).WithRange(&lo, &hi, true), nil
	case typeExpr == string(KindObject):
		return Object(nil), nil
	case strings.HasPrefix(typeExpr, "[]"):
		return c.listShapeFromType(strings.TrimSpace(typeExpr[2:]))
	case strings.HasPrefix(typeExpr, "array<") && strings.HasSuffix(typeExpr, ">"):
		return c.listShapeFromType(strings.TrimSpace(typeExpr[len("array<") : len(typeExpr)-1]))
	case strings.HasPrefix(typeExpr, "map<") && strings.HasSuffix(typeExpr, ">"):
		return c.mapShapeFromType(strings.TrimSpace(typeExpr[len("map<") : len(typeExpr)-1]))
	case strings.HasPrefix(typeExpr, "map["):
		closing := strings.Index(typeExpr, "]")
		if closing == -1 {
			return nil, fmt.Errorf("invalid map type expression %q", typeExpr)
		}
		keyTypeExpr := strings.TrimSpace(typeExpr[len("map["):closing])
		if keyTypeExpr != string(KindString) {
			return nil, fmt.Errorf("map key type must be 'string', got %q in %q", keyTypeExpr, typeExpr)
		}
		return c.mapShapeFromType(strings.TrimSpace(typeExpr[closing+1:]))
	case strings.HasPrefix(typeExpr, "union<") && strings.HasSuffix(typeExpr, ">"):
		return c.unionShapeFromType(typeExpr[len("union<") : len(typeExpr)-1])
	default:
		return c.shapeFromNamedType(typeExpr)
	}
}

func (c *converter) listShapeFromType(itemTypeExpr string) (*Shape, error) {
	if itemTypeExpr == string(KindAny) {
		return OpenList(), nil
	}
	items, err := c.shapeFromType(itemTypeExpr)
	if err != nil {
		return nil, err
	}
	return List(items), nil
}

func (c *converter) mapShapeFromType(valueTypeExpr string) (*Shape, error) {
	values, err := c.shapeFromType(valueTypeExpr)
	if err != nil {
		return nil, err
	}
	return &Shape{Kind: KindMap, Items: values}, nil
}

func (c *converter) unionShapeFromType(inner string) (*Shape, error) {
	parts := splitTopLevel(inner)
	if len(parts) < 2 {
		return nil, fmt.Errorf("union needs at least two variants, got %q", inner)
	}
	variants := make([]*Shape, 0, len(parts))
	for _, part := range parts {
		variant, err := c.shapeFromType(part)
		if err != nil {
			return nil, err
		}
		variants = append(variants, variant)
	}
	return &Shape{Kind: KindUnion, Variants: variants}, nil
}

// shapeFromNamedType resolves a declared type, rejecting cycles and caching results.
func (c *converter) shapeFromNamedType(typeName string) (*Shape, error) {
	if cached, ok := c.typeCache[typeName]; ok {
		return cached, nil
	}
	if c.typeStack[typeName] {
		return nil, fmt.Errorf("detected cyclic type reference involving %q", typeName)
	}

	raw, ok := c.types[typeName]
	if !ok {
		return nil, fmt.Errorf("unknown type %q", typeName)
	}

	c.typeStack[typeName] = true
	defer delete(c.typeStack, typeName)

	built, err := c.buildFieldShape(raw)
	if err != nil {
		return nil, fmt.Errorf("type %q: %w", typeName, err)
	}
	built = copyShape(built)
	built.Name = typeName

	c.typeCache[typeName] = built
	return built, nil
}

func applyConstraints(shape *Shape, constraintExpr string) error {
	handlers := map[string]func(string) error{
		"required": func(value string) error {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid required value %q: %w", value, err)
			}
			shape.Required = b
			return nil
		},
		"default": func(value string) error {
			parsed, err := parseValueForKind(value, shape.Kind)
			if err != nil {
				return fmt.Errorf("invalid default %q: %w", value, err)
			}
			shape.WithDefault(parsed)
			return nil
		},
		"enum": func(value string) error {
			values := splitAndTrim(value, ",")
			shape.Enum = make([]any, 0, len(values))
			for _, v := range values {
				parsed, err := parseValueForKind(v, shape.Kind)
				if err != nil {
					return fmt.Errorf("invalid enum value %q: %w", v, err)
				}
				shape.Enum = append(shape.Enum, parsed)
			}
			return nil
		},
		"minimum": func(value string) error {
			num, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("invalid minimum %q: %w", value, err)
			}
			shape.Minimum = &num
			return nil
		},
		"maximum": func(value string) error {
			num, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("invalid maximum %q: %w", value, err)
			}
			shape.Maximum = &num
			return nil
		},
		"clamp": func(value string) error {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid clamp value %q: %w", value, err)
			}
			shape.Clamp = b
			return nil
		},
		"minItems": func(value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid minItems %q: %w", value, err)
			}
			shape.MinItems = &n
			return nil
		},
		"maxItems": func(value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid maxItems %q: %w", value, err)
			}
			shape.MaxItems = &n
			return nil
		},
		"open": func(value string) error {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid open value %q: %w", value, err)
			}
			if b {
				shape.Policy = Open
			} else {
				shape.Policy = Closed
			}
			return nil
		},
	}

	for _, token := range tokenizeConstraints(constraintExpr) {
		if !strings.Contains(token, "=") {
			continue
		}
		parts := strings.SplitN(token, "=", 2)
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		handler, ok := handlers[key]
		if !ok {
			// description and other documentation markers
			continue
		}
		if err := handler(value); err != nil {
			return err
		}
	}
	return nil
}

// parseValueForKind converts a raw constraint token into a value of the given kind.
func parseValueForKind(value string, kind Kind) (any, error) {
	switch kind {
	case KindString:
		return unquoteIfNeeded(value), nil
	case KindNumber, KindInteger, KindPercent:
		if value == "" {
			return nil, fmt.Errorf("empty number value")
		}
		return strconv.ParseFloat(value, 64)
	case KindBoolean:
		return strconv.ParseBool(value)
	case KindList, KindObject, KindMap:
		if strings.TrimSpace(value) == "" {
			if kind == KindList {
				return []any{}, nil
			}
			return map[string]any{}, nil
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			return nil, err
		}
		return parsed, nil
	default:
		return parseArbitraryValue(value), nil
	}
}

// parseArbitraryValue best-effort converts a token into JSON, bool, number, or leaves it as a string.
func parseArbitraryValue(value string) any {
	value = strings.TrimSpace(value)
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err == nil {
		return parsed
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return unquoteIfNeeded(value)
}

// tokenizeConstraints splits a constraint expression on whitespace that is
// outside quotes and brackets, so "description='Sức khỏe tổng' default=100"
// yields two tokens.
func tokenizeConstraints(expr string) []string {
	var tokens []string
	var current strings.Builder

	inQuotes := false
	var quoteChar rune
	escaped := false
	bracketDepth := 0

	for _, r := range expr {
		switch {
		case inQuotes:
			current.WriteRune(r)
			if escaped {
				escaped = false
				continue
			}
			if r == '\\' {
				escaped = true
				continue
			}
			if r == quoteChar {
				inQuotes = false
			}
		case r == '"' || r == '\'':
			inQuotes = true
			quoteChar = r
			current.WriteRune(r)
		case r == '{' || r == '[':
			bracketDepth++
			current.WriteRune(r)
		case r == '}' || r == ']':
			if bracketDepth > 0 {
				bracketDepth--
			}
			current.WriteRune(r)
		case unicode.IsSpace(r) && bracketDepth == 0:
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// splitTopLevel splits a comma separated type list, ignoring commas nested in <>.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(s[start:]); tail != "" {
		parts = append(parts, tail)
	}
	return parts
}

func splitAndTrim(value, sep string) []string {
	raw := strings.Split(value, sep)
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func unquoteIfNeeded(value string) string {
	if len(value) >= 2 {
		if value[0] == '"' && value[len(value)-1] == '"' {
			if parsed, err := strconv.Unquote(value); err == nil {
				return parsed
			}
		} else if value[0] == '\'' && value[len(value)-1] == '\'' {
			inner := value[1 : len(value)-1]
			return strings.ReplaceAll(inner, "''", "'")
		}
	}
	return value
}
