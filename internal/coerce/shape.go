// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package coerce

import "github.com/openchoreo/statepatch/internal/clone"

// Kind is the declared type of a shape.
type Kind string

const (
	KindAny     Kind = "any"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindPercent Kind = "percent"
	KindString  Kind = "string"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindMap     Kind = "map"
	KindList    Kind = "list"
	KindUnion   Kind = "union"
)

// ListPolicy controls whether list elements are coerced or kept as-is.
type ListPolicy int

const (
	// Closed lists coerce every element to the item shape.
	Closed ListPolicy = iota
	// Open lists accept elements of any kind unchanged.
	Open
)

// Shape declares the expected form of one value in a document.
//
// Objects are always open: keys without a declared field are carried
// through untouched.
type Shape struct {
	Kind Kind
	// Name is set for shapes declared as named types.
	Name string

	Default    any
	HasDefault bool
	Required   bool

	Minimum *float64
	Maximum *float64
	// Clamp limits numbers to [Minimum, Maximum] instead of reporting them.
	Clamp bool

	MinItems *int
	MaxItems *int

	Enum []any

	// Fields are the declared keys of an object.
	Fields map[string]*Shape
	// Items is the element shape of a list or the value shape of a map.
	Items  *Shape
	Policy ListPolicy

	// Variants are the alternatives of a union, in declaration order.
	Variants []*Shape
}

// Object returns an object shape with the given fields.
func Object(fields map[string]*Shape) *Shape {
	return &Shape{Kind: KindObject, Fields: fields}
}

// List returns a closed list of items.
func List(items *Shape) *Shape {
	return &Shape{Kind: KindList, Items: items}
}

// OpenList returns a list that accepts any elements.
func OpenList() *Shape {
	return &Shape{Kind: KindList, Items: &Shape{Kind: KindAny}, Policy: Open}
}

// Scalar returns a shape of the given primitive kind.
func Scalar(kind Kind) *Shape {
	return &Shape{Kind: kind}
}

// WithDefault sets the value used when the field is absent or null.
func (s *Shape) WithDefault(v any) *Shape {
	s.Default = v
	s.HasDefault = true
	return s
}

// WithRange sets the numeric bounds of the shape.
func (s *Shape) WithRange(lo, hi *float64, clamp bool) *Shape {
	s.Minimum = lo
	s.Maximum = hi
	s.Clamp = clamp
	return s
}

// zero returns the value an absent field of this shape takes.
func (s *Shape) zero() (any, bool) {
	if s.HasDefault {
		return clone.DeepCopy(s.Default), true
	}
	switch s.Kind {
	case KindNumber, KindInteger, KindPercent:
		return float64(0), true
	case KindString:
		return "", true
	case KindBoolean:
		return false, true
	case KindObject, KindMap:
		return map[string]any{}, true
	case KindList:
		return []any{}, true
	case KindUnion:
		if len(s.Variants) > 0 {
			return s.Variants[0].zero()
		}
	}
	return nil, false
}

// copyShape returns a shallow copy of s so constraints can be layered on a
// cached named type without touching the cache.
func copyShape(s *Shape) *Shape {
	out := *s
	return &out
}

func (s *Shape) describe() string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.Kind)
}
