// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package patch

// Operation is a single edit command against a document.
type Operation struct {
	Op    string `json:"op" yaml:"op"`
	Path  string `json:"path" yaml:"path"`
	From  string `json:"from,omitempty" yaml:"from,omitempty"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
}

const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpReplace = "replace"
	OpDelta   = "delta"
	OpMove    = "move"
	OpCopy    = "copy"
	OpTest    = "test"
)

// Kinds lists the operations the engine understands.
var Kinds = []string{OpAdd, OpRemove, OpReplace, OpDelta, OpMove, OpCopy, OpTest}
