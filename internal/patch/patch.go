// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package patch applies path-addressed edit operations to loosely typed
// documents.
//
// A document is a tree of map[string]any, []any and scalars. Operations
// follow JSON Patch with three deliberate departures for machine-generated
// edit streams: missing intermediate containers are created for add and
// replace, operations against missing structure are no-ops rather than
// errors, and the delta operation adds numbers in place.
//
// Sequences carry no fields, so a non-index key on a sequence is a type
// mismatch, ignored unless strict, rather than a property of the array.
package patch

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/openchoreo/statepatch/internal/clone"
)

// filterPattern matches array filter expressions like [?(@.name=='app')]
var filterPattern = regexp.MustCompile(`\[\?\(.*?\)\]`)

// Options configures an Engine.
type Options struct {
	// Strict reports missing parents, missing targets and type mismatches
	// instead of treating them as no-ops.
	Strict bool
	// Filters enables [?(@.field=='value')] selectors in paths. A single
	// operation then applies to every matching element.
	Filters bool
}

// Engine applies operations to documents. It holds no document state and is
// safe for concurrent use on distinct documents.
type Engine struct {
	opts Options
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Options returns the options the engine was created with.
func (e *Engine) Options() Options {
	return e.opts
}

// Apply applies op to doc and returns the updated document.
//
// doc is modified in place. The returned document must be used in place of
// doc: it differs when doc is a sequence whose length changed or when doc was
// nil and an additive operation created a root mapping.
//
// Written values are deep copies of op.Value, so the caller keeps ownership
// of the operation. Operations against missing structure return a nil error
// unless the engine is strict; failed tests and unresolved move or copy
// sources are always reported.
func (e *Engine) Apply(doc any, op Operation) (any, error) {
	op.Op = strings.ToLower(strings.TrimSpace(op.Op))
	if e.opts.Filters && (containsFilter(op.Path) || containsFilter(op.From)) {
		return e.applyExpanded(doc, op)
	}
	out, err := e.apply(doc, op)
	return out, e.settle(err)
}

// ApplyAll applies ops in order and stops at the first reported error.
func (e *Engine) ApplyAll(doc any, ops []Operation) (any, error) {
	for i, op := range ops {
		var err error
		doc, err = e.Apply(doc, op)
		if err != nil {
			return doc, fmt.Errorf("operation #%d failed: %w", i, err)
		}
	}
	return doc, nil
}

// Apply applies op to doc with a lenient engine.
func Apply(doc any, op Operation) (any, error) {
	return NewEngine(Options{}).Apply(doc, op)
}

func (e *Engine) settle(err error) error {
	var pe *Error
	if errors.As(err, &pe) && pe.Code.silent(e.opts.Strict) {
		return nil
	}
	return err
}

func (e *Engine) apply(doc any, op Operation) (any, error) {
	segments := ParsePointer(op.Path)
	if len(segments) == 0 {
		return doc, newError(CodeMalformedPath, op, "pointer %q has no segments", op.Path)
	}

	switch op.Op {
	case OpAdd:
		return walk(op, vivifyRoot(doc), segments, true, addLeaf(op, clone.DeepCopy(op.Value)))
	case OpReplace:
		return walk(op, vivifyRoot(doc), segments, true, replaceLeaf(op, clone.DeepCopy(op.Value)))
	case OpRemove:
		return walk(op, doc, segments, false, removeLeaf(op))
	case OpDelta:
		return walk(op, doc, segments, false, deltaLeaf(op))
	case OpMove:
		return e.move(doc, op, segments)
	case OpCopy:
		return e.copy(doc, op, segments)
	case OpTest:
		return e.test(doc, op, segments)
	default:
		return doc, newError(CodeUnsupportedOperation, op, "unsupported operation %q (supported: %s)", op.Op, strings.Join(Kinds, ", "))
	}
}

// move detaches the value at from and places it at path. The detached value
// is no longer part of the document, so it is placed without copying.
func (e *Engine) move(doc any, op Operation, segments []string) (any, error) {
	from, value, err := resolveSource(doc, op)
	if err != nil {
		return doc, err
	}
	doc, err = walk(op, doc, from, false, removeLeaf(op))
	if err != nil {
		return doc, err
	}
	placed, err := walk(op, vivifyRoot(doc), segments, true, addLeaf(op, value))
	if err != nil {
		// Put the value back where it was detached.
		restored, _ := walk(op, doc, from, false, addLeaf(op, value))
		return restored, err
	}
	return placed, nil
}

func (e *Engine) copy(doc any, op Operation, segments []string) (any, error) {
	_, value, err := resolveSource(doc, op)
	if err != nil {
		return doc, err
	}
	return walk(op, vivifyRoot(doc), segments, true, addLeaf(op, clone.DeepCopy(value)))
}

func resolveSource(doc any, op Operation) ([]string, any, error) {
	from := ParsePointer(op.From)
	if len(from) == 0 {
		return nil, nil, newError(CodeMissingSource, op, "from pointer %q has no segments", op.From)
	}
	value, ok := Resolve(doc, from)
	if !ok {
		return nil, nil, newError(CodeMissingSource, op, "nothing at %s", op.From)
	}
	return from, value, nil
}

// test never modifies doc. A missing target is a failure, not a no-op.
func (e *Engine) test(doc any, op Operation, segments []string) (any, error) {
	actual, ok := Resolve(doc, segments)
	if !ok {
		return doc, &Error{Code: CodeTestFailed, Op: op.Op, Path: op.Path, Expected: op.Value, ActualAbsent: true}
	}
	if !Equal(actual, op.Value) {
		return doc, &Error{Code: CodeTestFailed, Op: op.Op, Path: op.Path, Expected: op.Value, Actual: actual}
	}
	return doc, nil
}

// applyExpanded resolves filter selectors into concrete pointers and applies
// op at each of them.
func (e *Engine) applyExpanded(doc any, op Operation) (any, error) {
	if containsFilter(op.From) {
		froms, err := expandPaths(doc, op.From)
		if err != nil {
			return doc, newError(CodeMissingSource, op, "%v", err)
		}
		if len(froms) != 1 {
			return doc, newError(CodeMissingSource, op, "from %q matched %d elements, want exactly one", op.From, len(froms))
		}
		op.From = froms[0]
	}
	if !containsFilter(op.Path) {
		out, err := e.apply(doc, op)
		return out, e.settle(err)
	}

	pointers, err := expandPaths(doc, op.Path)
	if err != nil {
		return doc, newError(CodeNoMatch, op, "%v", err)
	}
	if len(pointers) == 0 {
		return doc, newError(CodeNoMatch, op, "path %q contains a filter but matched 0 elements", op.Path)
	}
	// Removing an element shifts the indexes after it.
	if op.Op == OpRemove || op.Op == OpMove {
		slices.Reverse(pointers)
	}

	for _, pointer := range pointers {
		target := op
		target.Path = pointer
		var err error
		doc, err = e.apply(doc, target)
		if err = e.settle(err); err != nil {
			return doc, err
		}
	}
	return doc, nil
}

// containsFilter checks if a path contains a JSONPath filter expression.
func containsFilter(path string) bool {
	return filterPattern.MatchString(path)
}
