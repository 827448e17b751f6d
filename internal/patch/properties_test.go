// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"sigs.k8s.io/yaml"

	"github.com/openchoreo/statepatch/internal/clone"
)

var propertyDocs = []string{
	`{}`,
	`{a: 1}`,
	`{a: {b: [1, 2, 3]}, s: text, n: null}`,
	`{creator: {host_energy: "12", sandboxes: [{sandbox_id: s1, era_heroes: [{hero_name: A}]}]}}`,
	`{list: [[1, 2], {k: v}, null]}`,
}

var propertyPaths = []string{
	"/a", "/a/b", "/a/b/0", "/a/b/-", "/a/b/9", "/a/b/x",
	"/s", "/s/x", "/n", "/n/x", "/list/1/k", "/list/-", "/list/2/deep",
	"/creator/host_energy", "/creator/sandboxes/0/era_heroes/-/hero_name",
	"/missing/deep/0", "/", "/~1odd",
}

func loadDoc(t *testing.T, src string) any {
	t.Helper()
	var doc any
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("failed to unmarshal %s: %v", src, err)
	}
	return doc
}

func TestLenientOperationsNeverFail(t *testing.T) {
	t.Parallel()

	engine := NewEngine(Options{})
	for _, src := range propertyDocs {
		for _, path := range propertyPaths {
			for _, name := range []string{OpAdd, OpRemove, OpReplace, OpDelta} {
				doc := loadDoc(t, src)
				op := Operation{Op: name, Path: path, Value: map[string]any{"v": 1}}
				if _, err := engine.Apply(doc, op); err != nil {
					t.Errorf("%s on %s: Apply(%s %s) error = %v", name, src, name, path, err)
				}
			}
		}
	}
}

func TestAddThenRemoveRestores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		doc  string
		path string
	}{
		{doc: `{a: 1}`, path: "/b"},
		{doc: `{a: {b: [1, 2]}}`, path: "/a/c"},
		{doc: `{a: {b: [1, 2]}}`, path: "/a/b/1"},
		{doc: `{a: {b: [1, 2]}}`, path: "/a/b/0"},
		{doc: `[1, 2]`, path: "/1"},
	}

	for _, tt := range tests {
		original := loadDoc(t, tt.doc)
		doc := clone.DeepCopy(original)

		doc, err := Apply(doc, Operation{Op: OpAdd, Path: tt.path, Value: "fresh"})
		if err != nil {
			t.Fatalf("add %s: %v", tt.path, err)
		}
		doc, err = Apply(doc, Operation{Op: OpRemove, Path: tt.path})
		if err != nil {
			t.Fatalf("remove %s: %v", tt.path, err)
		}
		if diff := cmp.Diff(original, doc); diff != "" {
			t.Errorf("add then remove %s on %s changed the document (-want +got):\n%s", tt.path, tt.doc, diff)
		}
	}
}

func TestCopyIsolation(t *testing.T) {
	t.Parallel()

	doc := loadDoc(t, `{src: {tags: [a], meta: {n: 1}}}`)
	doc, err := Apply(doc, Operation{Op: OpCopy, From: "/src", Path: "/dst"})
	if err != nil {
		t.Fatalf("copy: %v", err)
	}

	ops := []Operation{
		{Op: OpAdd, Path: "/src/tags/-", Value: "b"},
		{Op: OpReplace, Path: "/dst/meta/n", Value: 2},
		{Op: OpRemove, Path: "/src/meta"},
	}
	doc, err = NewEngine(Options{}).ApplyAll(doc, ops)
	if err != nil {
		t.Fatalf("mutations: %v", err)
	}

	want := loadDoc(t, `{src: {tags: [a, b]}, dst: {tags: [a], meta: {n: 2}}}`)
	if diff := cmpDiff(want, doc); diff != "" {
		t.Errorf("copy shared state (-want +got):\n%s", diff)
	}
}

func TestMoveMatchesCopyThenRemove(t *testing.T) {
	t.Parallel()

	tests := []struct {
		doc, from, path string
	}{
		{doc: `{a: {x: 1}, b: {}}`, from: "/a/x", path: "/b/y"},
		{doc: `{a: [1, 2, 3], b: []}`, from: "/a/1", path: "/b/-"},
		{doc: `{a: [1, 2, 3]}`, from: "/a/0", path: "/c/d/0"},
		{doc: `{hero: {name: A}, sandboxes: [{heroes: []}]}`, from: "/hero", path: "/sandboxes/0/heroes/0"},
	}

	for _, tt := range tests {
		moved, err := Apply(loadDoc(t, tt.doc), Operation{Op: OpMove, From: tt.from, Path: tt.path})
		if err != nil {
			t.Fatalf("move %s -> %s: %v", tt.from, tt.path, err)
		}
		copied, err := NewEngine(Options{}).ApplyAll(loadDoc(t, tt.doc), []Operation{
			{Op: OpCopy, From: tt.from, Path: tt.path},
			{Op: OpRemove, Path: tt.from},
		})
		if err != nil {
			t.Fatalf("copy+remove %s -> %s: %v", tt.from, tt.path, err)
		}
		if diff := cmp.Diff(copied, moved); diff != "" {
			t.Errorf("move %s -> %s differs from copy+remove (-copy +move):\n%s", tt.from, tt.path, diff)
		}
	}
}

func TestDeltaComposes(t *testing.T) {
	t.Parallel()

	for _, start := range []any{5, "5", 2.5, nil, "abc"} {
		split, err := NewEngine(Options{}).ApplyAll(map[string]any{"x": start}, []Operation{
			{Op: OpDelta, Path: "/x", Value: 3},
			{Op: OpDelta, Path: "/x", Value: "-1"},
		})
		if err != nil {
			t.Fatal(err)
		}
		single, err := Apply(map[string]any{"x": start}, Operation{Op: OpDelta, Path: "/x", Value: 2})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(single, split); diff != "" {
			t.Errorf("delta from %v does not compose (-single +split):\n%s", start, diff)
		}
	}
}

func TestTestNeverMutates(t *testing.T) {
	t.Parallel()

	for _, src := range propertyDocs {
		for _, path := range propertyPaths {
			original := loadDoc(t, src)
			doc := clone.DeepCopy(original)
			current, found := Get(doc, path)

			if found {
				got, err := Apply(doc, Operation{Op: OpTest, Path: path, Value: clone.DeepCopy(current)})
				if err != nil {
					t.Errorf("test %s on %s with the current value failed: %v", path, src, err)
				}
				if diff := cmp.Diff(original, got); diff != "" {
					t.Errorf("passing test %s mutated %s:\n%s", path, src, diff)
				}
			}

			got, err := Apply(doc, Operation{Op: OpTest, Path: path, Value: fmt.Sprintf("not-%v", current)})
			if !IsTestFailure(err) {
				t.Errorf("test %s on %s with a different value: error = %v, want a test failure", path, src, err)
			}
			if diff := cmp.Diff(original, got); diff != "" {
				t.Errorf("failing test %s mutated %s:\n%s", path, src, diff)
			}
		}
	}
}

func TestStrictFailuresNeverMutate(t *testing.T) {
	t.Parallel()

	engine := NewEngine(Options{Strict: true})
	for _, src := range propertyDocs {
		for _, path := range propertyPaths {
			ops := []Operation{
				{Op: OpAdd, Path: path, Value: 1},
				{Op: OpReplace, Path: path, Value: 1},
				{Op: OpRemove, Path: path},
				{Op: OpDelta, Path: path, Value: 1},
				{Op: OpMove, From: "/a", Path: path},
			}
			for _, op := range ops {
				original := loadDoc(t, src)
				got, err := engine.Apply(clone.DeepCopy(original), op)
				if err == nil {
					continue
				}
				if diff := cmp.Diff(original, got); diff != "" {
					t.Errorf("failed %s %s on %s mutated the document (%v):\n%s", op.Op, path, src, err, diff)
				}
			}
		}
	}
}
