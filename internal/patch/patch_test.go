// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"sigs.k8s.io/yaml"
)

func TestApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		opts       Options
		initial    string
		operations []Operation
		want       string
		wantCode   Code
	}{
		{
			name:       "append to nested sequence",
			initial:    `{a: {b: [1, 2, 3]}}`,
			operations: []Operation{{Op: "add", Path: "/a/b/-", Value: 4}},
			want:       `{a: {b: [1, 2, 3, 4]}}`,
		},
		{
			name:       "delta with numeric string",
			initial:    `{x: 5}`,
			operations: []Operation{{Op: "delta", Path: "/x", Value: "3"}},
			want:       `{x: 8}`,
		},
		{
			name:       "add vivifies mapping then sequence",
			initial:    `{}`,
			operations: []Operation{{Op: "add", Path: "/a/b/0", Value: "hi"}},
			want:       `{a: {b: [hi]}}`,
		},
		{
			name:    "test then remove",
			initial: `{list: [1, 2]}`,
			operations: []Operation{
				{Op: "test", Path: "/list/0", Value: 1},
				{Op: "remove", Path: "/list/0"},
			},
			want: `{list: [2]}`,
		},
		{
			name:       "add inserts and shifts",
			initial:    `{l: [1, 3]}`,
			operations: []Operation{{Op: "add", Path: "/l/1", Value: 2}},
			want:       `{l: [1, 2, 3]}`,
		},
		{
			name:       "add past the end appends",
			initial:    `{l: [1]}`,
			operations: []Operation{{Op: "add", Path: "/l/5", Value: 2}},
			want:       `{l: [1, 2]}`,
		},
		{
			name:       "add with a field key on a sequence is ignored",
			initial:    `{l: [1]}`,
			operations: []Operation{{Op: "add", Path: "/l/foo", Value: 2}},
			want:       `{l: [1]}`,
		},
		{
			name:       "add overwrites a field",
			initial:    `{creator: {host_health: weak}}`,
			operations: []Operation{{Op: "add", Path: "/creator/host_health", Value: "strong"}},
			want:       `{creator: {host_health: strong}}`,
		},
		{
			name:       "add through the append marker vivifies an element",
			initial:    `{}`,
			operations: []Operation{{Op: "add", Path: "/heroes/-/name", Value: "Lin"}},
			want:       `{heroes: [{name: Lin}]}`,
		},
		{
			name:       "add into a null slot vivifies it",
			initial:    `{world: null}`,
			operations: []Operation{{Op: "add", Path: "/world/day", Value: 1}},
			want:       `{world: {day: 1}}`,
		},
		{
			name:       "add null value",
			initial:    `{}`,
			operations: []Operation{{Op: "add", Path: "/a", Value: nil}},
			want:       `{a: null}`,
		},
		{
			name:       "add pads a sequence to vivify past its end",
			initial:    `{l: []}`,
			operations: []Operation{{Op: "add", Path: "/l/3/name", Value: "x"}},
			want:       `{l: [null, null, null, {name: x}]}`,
		},
		{
			name:       "add vivifies nested levels past the end of a new sequence",
			initial:    `{}`,
			operations: []Operation{{Op: "add", Path: "/a/b/5/c", Value: 1}},
			want:       `{a: {b: [null, null, null, null, null, {c: 1}]}}`,
		},
		{
			name:       "add does not pad beyond the limit",
			opts:       Options{Strict: true},
			initial:    `{l: []}`,
			operations: []Operation{{Op: "add", Path: "/l/100000/name", Value: "x"}},
			want:       `{l: []}`,
			wantCode:   CodeMissingParent,
		},
		{
			name:       "failed write leaves no vivified containers behind",
			initial:    `{}`,
			operations: []Operation{{Op: "replace", Path: "/n/l/3", Value: 1}},
			want:       `{}`,
		},
		{
			name:       "strict failed write leaves no vivified containers behind",
			opts:       Options{Strict: true},
			initial:    `{a: 1}`,
			operations: []Operation{{Op: "replace", Path: "/n/0/l/2", Value: 1}},
			want:       `{a: 1}`,
			wantCode:   CodeMissingTarget,
		},
		{
			name:       "add below a scalar is ignored",
			initial:    `{a: text}`,
			operations: []Operation{{Op: "add", Path: "/a/b", Value: 1}},
			want:       `{a: text}`,
		},
		{
			name:       "escaped segments",
			initial:    `{}`,
			operations: []Operation{{Op: "add", Path: "/a~1b/c~0d", Value: 1}},
			want:       `{"a/b": {"c~d": 1}}`,
		},
		{
			name:       "op names are case insensitive",
			initial:    `{}`,
			operations: []Operation{{Op: " ADD ", Path: "/a", Value: 1}},
			want:       `{a: 1}`,
		},
		{
			name:       "remove missing key is ignored",
			initial:    `{a: 1}`,
			operations: []Operation{{Op: "remove", Path: "/b"}},
			want:       `{a: 1}`,
		},
		{
			name:       "remove under missing parent is ignored",
			initial:    `{a: 1}`,
			operations: []Operation{{Op: "remove", Path: "/x/y/z"}},
			want:       `{a: 1}`,
		},
		{
			name:       "remove out of range is ignored",
			initial:    `{l: [1]}`,
			operations: []Operation{{Op: "remove", Path: "/l/4"}},
			want:       `{l: [1]}`,
		},
		{
			name:       "remove a field",
			initial:    `{a: 1, b: 2}`,
			operations: []Operation{{Op: "remove", Path: "/b"}},
			want:       `{a: 1}`,
		},
		{
			name:       "replace vivifies",
			initial:    `{}`,
			operations: []Operation{{Op: "replace", Path: "/a/b", Value: "x"}},
			want:       `{a: {b: x}}`,
		},
		{
			name:       "replace sequence element",
			initial:    `{l: [1, 2]}`,
			operations: []Operation{{Op: "replace", Path: "/l/1", Value: 9}},
			want:       `{l: [1, 9]}`,
		},
		{
			name:       "replace never targets the append marker",
			initial:    `{l: [1]}`,
			operations: []Operation{{Op: "replace", Path: "/l/-", Value: 2}},
			want:       `{l: [1]}`,
		},
		{
			name:       "delta on missing field is ignored",
			initial:    `{x: 1}`,
			operations: []Operation{{Op: "delta", Path: "/y", Value: 3}},
			want:       `{x: 1}`,
		},
		{
			name:       "delta treats non-numeric current value as zero",
			initial:    `{x: abc}`,
			operations: []Operation{{Op: "delta", Path: "/x", Value: 2}},
			want:       `{x: 2}`,
		},
		{
			name:       "delta treats null as zero",
			initial:    `{x: null}`,
			operations: []Operation{{Op: "delta", Path: "/x", Value: "2.5"}},
			want:       `{x: 2.5}`,
		},
		{
			name:       "delta on sequence element",
			initial:    `{l: [1, 2]}`,
			operations: []Operation{{Op: "delta", Path: "/l/1", Value: -10}},
			want:       `{l: [1, -8]}`,
		},
		{
			name:       "move between mappings",
			initial:    `{a: {x: 1}, b: {}}`,
			operations: []Operation{{Op: "move", From: "/a/x", Path: "/b/y"}},
			want:       `{a: {}, b: {y: 1}}`,
		},
		{
			name:       "move out of a sequence into a vivified path",
			initial:    `{a: [1, 2]}`,
			operations: []Operation{{Op: "move", From: "/a/0", Path: "/c/d"}},
			want:       `{a: [2], c: {d: 1}}`,
		},
		{
			name:       "move into a padded sequence",
			initial:    `{a: {b: 1}}`,
			operations: []Operation{{Op: "move", From: "/a/b", Path: "/x/1/y"}},
			want:       `{a: {}, x: [null, {y: 1}]}`,
		},
		{
			name:       "move keeps its source when the destination cannot be built",
			initial:    `{a: {b: 1}, s: text}`,
			operations: []Operation{{Op: "move", From: "/a/b", Path: "/s/x"}},
			want:       `{a: {b: 1}, s: text}`,
		},
		{
			name:       "strict move restores a sequence element in place",
			opts:       Options{Strict: true},
			initial:    `{a: [1, 2, 3], s: text}`,
			operations: []Operation{{Op: "move", From: "/a/1", Path: "/s/x"}},
			want:       `{a: [1, 2, 3], s: text}`,
			wantCode:   CodeMissingParent,
		},
		{
			name:       "move a null value",
			initial:    `{a: null}`,
			operations: []Operation{{Op: "move", From: "/a", Path: "/b"}},
			want:       `{b: null}`,
		},
		{
			name:       "move with missing source is reported",
			initial:    `{a: 1}`,
			operations: []Operation{{Op: "move", From: "/nope", Path: "/b"}},
			want:       `{a: 1}`,
			wantCode:   CodeMissingSource,
		},
		{
			name:       "move without from is reported",
			initial:    `{a: 1}`,
			operations: []Operation{{Op: "move", Path: "/b"}},
			want:       `{a: 1}`,
			wantCode:   CodeMissingSource,
		},
		{
			name:       "copy a subtree",
			initial:    `{a: {n: [1]}}`,
			operations: []Operation{{Op: "copy", From: "/a", Path: "/b"}},
			want:       `{a: {n: [1]}, b: {n: [1]}}`,
		},
		{
			name:       "copy into a sequence position",
			initial:    `{a: x, l: [1, 2]}`,
			operations: []Operation{{Op: "copy", From: "/a", Path: "/l/0"}},
			want:       `{a: x, l: [x, 1, 2]}`,
		},
		{
			name:       "copy with missing source is reported",
			initial:    `{}`,
			operations: []Operation{{Op: "copy", From: "/a", Path: "/b"}},
			want:       `{}`,
			wantCode:   CodeMissingSource,
		},
		{
			name:       "test mismatch is reported",
			initial:    `{a: 1}`,
			operations: []Operation{{Op: "test", Path: "/a", Value: 2}},
			want:       `{a: 1}`,
			wantCode:   CodeTestFailed,
		},
		{
			name:       "test on missing path is reported",
			initial:    `{a: 1}`,
			operations: []Operation{{Op: "test", Path: "/b/c", Value: 1}},
			want:       `{a: 1}`,
			wantCode:   CodeTestFailed,
		},
		{
			name:    "test ignores key order and number types",
			initial: `{a: {x: 1, y: [1, 2]}}`,
			operations: []Operation{{Op: "test", Path: "/a", Value: map[string]any{
				"y": []any{1, int64(2)},
				"x": 1.0,
			}}},
			want: `{a: {x: 1, y: [1, 2]}}`,
		},
		{
			name:       "test is order sensitive for sequences",
			initial:    `{l: [1, 2]}`,
			operations: []Operation{{Op: "test", Path: "/l", Value: []any{2, 1}}},
			want:       `{l: [1, 2]}`,
			wantCode:   CodeTestFailed,
		},
		{
			name:       "unknown op is ignored",
			initial:    `{a: 1}`,
			operations: []Operation{{Op: "merge", Path: "/a", Value: 2}},
			want:       `{a: 1}`,
		},
		{
			name:    "pointers without a leading slash are ignored",
			initial: `{a: 1}`,
			operations: []Operation{
				{Op: "add", Path: "", Value: 2},
				{Op: "replace", Path: "a", Value: 2},
			},
			want: `{a: 1}`,
		},
		{
			name:       "root sequence",
			initial:    `[1, 2]`,
			operations: []Operation{{Op: "add", Path: "/-", Value: 3}, {Op: "remove", Path: "/0"}},
			want:       `[2, 3]`,
		},
		{
			name:       "strict reports missing target",
			opts:       Options{Strict: true},
			initial:    `{a: 1}`,
			operations: []Operation{{Op: "remove", Path: "/b"}},
			want:       `{a: 1}`,
			wantCode:   CodeMissingTarget,
		},
		{
			name:       "strict reports missing parent",
			opts:       Options{Strict: true},
			initial:    `{a: 1}`,
			operations: []Operation{{Op: "delta", Path: "/x/y", Value: 1}},
			want:       `{a: 1}`,
			wantCode:   CodeMissingParent,
		},
		{
			name:       "strict reports type mismatch",
			opts:       Options{Strict: true},
			initial:    `{l: [1]}`,
			operations: []Operation{{Op: "add", Path: "/l/foo", Value: 2}},
			want:       `{l: [1]}`,
			wantCode:   CodeTypeMismatch,
		},
		{
			name:       "strict still ignores unknown ops",
			opts:       Options{Strict: true},
			initial:    `{a: 1}`,
			operations: []Operation{{Op: "merge", Path: "/a"}},
			want:       `{a: 1}`,
		},
		{
			name:    "filter appends to the matching element",
			opts:    Options{Filters: true},
			initial: `{creator: {sandboxes: [{sandbox_id: s1, era_heroes: []}, {sandbox_id: s2}]}}`,
			operations: []Operation{{
				Op:    "add",
				Path:  "/creator/sandboxes/[?(@.sandbox_id=='s2')]/era_heroes/-",
				Value: map[string]any{"hero_name": "A"},
			}},
			want: `{creator: {sandboxes: [{sandbox_id: s1, era_heroes: []}, {sandbox_id: s2, era_heroes: [{hero_name: A}]}]}}`,
		},
		{
			name:       "filter removes every match",
			opts:       Options{Filters: true},
			initial:    `{items: [{kind: x}, {kind: y}, {kind: x}]}`,
			operations: []Operation{{Op: "remove", Path: "/items/[?(@.kind=='x')]"}},
			want:       `{items: [{kind: y}]}`,
		},
		{
			name:       "filter with a numeric field",
			opts:       Options{Filters: true},
			initial:    `{items: [{id: 1, n: 0}, {id: 2, n: 0}]}`,
			operations: []Operation{{Op: "delta", Path: "/items[?(@.id=='2')]/n", Value: 5}},
			want:       `{items: [{id: 1, n: 0}, {id: 2, n: 5}]}`,
		},
		{
			name:       "filter without a match is reported",
			opts:       Options{Filters: true},
			initial:    `{items: [{kind: y}]}`,
			operations: []Operation{{Op: "replace", Path: "/items/[?(@.kind=='x')]/kind", Value: "z"}},
			want:       `{items: [{kind: y}]}`,
			wantCode:   CodeNoMatch,
		},
		{
			name:       "filter syntax is literal when filters are off",
			initial:    `{items: []}`,
			operations: []Operation{{Op: "add", Path: "/items[?(@.kind=='x')]", Value: 1}},
			want:       `{items: [], "items[?(@.kind=='x')]": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var doc any
			if err := yaml.Unmarshal([]byte(tt.initial), &doc); err != nil {
				t.Fatalf("failed to unmarshal initial YAML: %v", err)
			}

			got, err := NewEngine(tt.opts).ApplyAll(doc, tt.operations)

			if tt.wantCode != 0 {
				if code := CodeOf(err); code != tt.wantCode {
					t.Fatalf("ApplyAll() error = %v (code %v), want code %v", err, code, tt.wantCode)
				}
			} else if err != nil {
				t.Fatalf("ApplyAll() error = %v", err)
			}

			var want any
			if err := yaml.Unmarshal([]byte(tt.want), &want); err != nil {
				t.Fatalf("failed to unmarshal expected YAML: %v", err)
			}
			if diff := cmpDiff(want, got); diff != "" {
				t.Fatalf("document mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTestFailureCarriesValues(t *testing.T) {
	t.Parallel()

	doc := map[string]any{"a": map[string]any{"b": "old"}}
	_, err := Apply(doc, Operation{Op: "test", Path: "/a/b", Value: "new"})

	var pe *Error
	if !IsTestFailure(err) || !asError(err, &pe) {
		t.Fatalf("Apply() error = %v, want a test failure", err)
	}
	if pe.Path != "/a/b" || pe.Expected != "new" || pe.Actual != "old" || pe.ActualAbsent {
		t.Errorf("Error = %+v, want path /a/b expected new actual old", pe)
	}
	if got, want := err.Error(), `test failed at /a/b: expected "new", actual "old"`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	_, err = Apply(doc, Operation{Op: "test", Path: "/a/c", Value: 1})
	if !asError(err, &pe) || !pe.ActualAbsent {
		t.Fatalf("Apply() error = %v, want an absent actual", err)
	}
	if got, want := err.Error(), `test failed at /a/c: expected 1, actual <absent>`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestApplyCopiesWrittenValues(t *testing.T) {
	t.Parallel()

	value := map[string]any{"tags": []any{"a"}}
	doc, err := Apply(map[string]any{}, Operation{Op: "add", Path: "/x", Value: value})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	value["tags"] = append(value["tags"].([]any), "b")
	value["extra"] = true

	want := map[string]any{"x": map[string]any{"tags": []any{"a"}}}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("document changed with the operation value (-want +got):\n%s", diff)
	}
}

func TestApplyNilDocument(t *testing.T) {
	t.Parallel()

	doc, err := Apply(nil, Operation{Op: "add", Path: "/a", Value: 1})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if diff := cmp.Diff(map[string]any{"a": 1}, doc); diff != "" {
		t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
	}

	doc, err = Apply(nil, Operation{Op: "remove", Path: "/a"})
	if err != nil || doc != nil {
		t.Errorf("Apply(remove) = (%v, %v), want (nil, nil)", doc, err)
	}
}

func asError(err error, target **Error) bool {
	pe, ok := err.(*Error)
	if ok {
		*target = pe
	}
	return ok
}

func cmpDiff(expected, actual any) string {
	wantJSON, _ := json.Marshal(expected)
	gotJSON, _ := json.Marshal(actual)

	var wantNorm, gotNorm any
	_ = json.Unmarshal(wantJSON, &wantNorm)
	_ = json.Unmarshal(gotJSON, &gotNorm)

	return cmp.Diff(wantNorm, gotNorm)
}
