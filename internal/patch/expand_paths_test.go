// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"fmt"
	"testing"

	"sigs.k8s.io/yaml"
)

func TestExpandPaths(t *testing.T) {
	t.Parallel()

	baseRoot := `
creator:
  sandboxes:
    - sandbox_id: s1
      sandbox_name: Terra
      era_heroes:
        - hero_name: A
          stats: {tier: gold}
        - hero_name: B
          stats: {tier: iron}
    - sandbox_id: s2
      sandbox_name: Aqua
      era_heroes: []
    - sandbox_id: s3
      sandbox_name: Terra
`

	tests := []struct {
		name    string
		root    string
		path    string
		want    []string
		wantErr bool
	}{
		{
			name: "plain pointer",
			root: baseRoot,
			path: "/creator/sandboxes/0/sandbox_name",
			want: []string{"/creator/sandboxes/0/sandbox_name"},
		},
		{
			name: "append marker",
			root: baseRoot,
			path: "/creator/sandboxes/-",
			want: []string{"/creator/sandboxes/-"},
		},
		{
			name: "filter single match",
			root: baseRoot,
			path: "/creator/sandboxes/[?(@.sandbox_id=='s2')]/era_heroes/-",
			want: []string{"/creator/sandboxes/1/era_heroes/-"},
		},
		{
			name: "filter fans out",
			root: baseRoot,
			path: "/creator/sandboxes/[?(@.sandbox_name=='Terra')]/population",
			want: []string{
				"/creator/sandboxes/0/population",
				"/creator/sandboxes/2/population",
			},
		},
		{
			name: "filter attached to key",
			root: baseRoot,
			path: "/creator/sandboxes[?(@.sandbox_id=='s1')]/era_heroes[1]/hero_name",
			want: []string{"/creator/sandboxes/0/era_heroes/1/hero_name"},
		},
		{
			name: "nested field filter",
			root: baseRoot,
			path: "/creator/sandboxes/0/era_heroes/[?(@.stats.tier=='iron')]",
			want: []string{"/creator/sandboxes/0/era_heroes/1"},
		},
		{
			name: "chained filters",
			root: baseRoot,
			path: "/creator/sandboxes/[?(@.sandbox_name=='Terra')]/era_heroes/[?(@.hero_name=='A')]/level",
			want: []string{"/creator/sandboxes/0/era_heroes/0/level"},
		},
		{
			name: "filter without match",
			root: baseRoot,
			path: "/creator/sandboxes/[?(@.sandbox_id=='nope')]/x",
			want: []string{},
		},
		{
			name: "missing key before filter",
			root: baseRoot,
			path: "/creator/missing/[?(@.a=='b')]",
			want: []string{},
		},
		{
			name:    "unsupported filter",
			root:    baseRoot,
			path:    "/creator/sandboxes/[?(@.population>3)]",
			wantErr: true,
		},
		{
			name:    "index out of bounds",
			root:    baseRoot,
			path:    "/creator/sandboxes[9]/x",
			wantErr: true,
		},
		{
			name:    "key on a scalar",
			root:    baseRoot,
			path:    "/creator/sandboxes/0/sandbox_id/x[?(@.a=='b')]",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var root any
			if err := yaml.Unmarshal([]byte(tt.root), &root); err != nil {
				t.Fatalf("failed to unmarshal root YAML: %v", err)
			}

			got, err := expandPaths(root, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandPaths error = %v", err)
			}

			if diff := cmpDiffStrings(tt.want, got); diff != "" {
				t.Fatalf("expandPaths mismatch:\n%s", diff)
			}
		})
	}
}

func cmpDiffStrings(want, got []string) string {
	if len(want) != len(got) {
		return fmt.Sprintf("length mismatch: want %d, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if want[i] != got[i] {
			return fmt.Sprintf("index %d: want %q, got %q", i, want[i], got[i])
		}
	}
	return ""
}
