// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package batch applies ordered lists of edit commands to a document as a unit.
package batch

import (
	"fmt"
	"log/slog"

	"github.com/openchoreo/statepatch/internal/clone"
	"github.com/openchoreo/statepatch/internal/logging"
	"github.com/openchoreo/statepatch/internal/patch"
)

// codePanic marks a failure raised by a panic while applying a command.
const codePanic = "Panic"

// Failure records one command that did not take effect.
type Failure struct {
	Index  int    `json:"index"`
	Op     string `json:"op"`
	Path   string `json:"path"`
	From   string `json:"from,omitempty"`
	Reason string `json:"reason"`
	Code   string `json:"code,omitempty"`
}

// Result is the outcome of one batch.
type Result struct {
	// Document is the patched copy. It is nil unless Committed.
	Document any `json:"document,omitempty"`
	// Applied counts commands that completed, including silent no-ops.
	Applied int `json:"applied"`
	// Failed counts commands that reported an error.
	Failed int `json:"failed"`
	// Skipped counts records dropped before dispatch for lacking an op or path.
	Skipped  int       `json:"skipped"`
	Failures []Failure `json:"failures,omitempty"`
	// Committed is true when at least one command succeeded; only then should
	// Document replace the caller's state.
	Committed bool `json:"committed"`
}

// Applier applies a single operation. *patch.Engine implements it.
type Applier interface {
	Apply(doc any, op patch.Operation) (any, error)
}

// Runner applies batches with one engine. It is safe for concurrent use
// when the engine is; each run works on its own copy of the document.
type Runner struct {
	engine Applier
	logger *slog.Logger
}

// NewRunner creates a Runner. A nil logger discards log output.
func NewRunner(engine Applier, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{engine: engine, logger: logger}
}

// Run applies ops in order to a deep copy of doc. doc itself is never
// modified. A failing command is recorded and the batch continues with the
// next one; nothing already applied is rolled back.
func (r *Runner) Run(doc any, ops []patch.Operation) *Result {
	working := clone.DeepCopy(doc)
	result := &Result{}

	for i, op := range ops {
		out, err := r.applyOne(working, op)
		working = out
		if err != nil {
			failure := newFailure(i, op, err)
			result.Failures = append(result.Failures, failure)
			result.Failed++
			r.logger.Debug("Command failed",
				"index", i,
				"op", op.Op,
				"path", op.Path,
				"reason", failure.Reason,
			)
			continue
		}
		result.Applied++
	}

	if result.Applied > 0 {
		result.Committed = true
		result.Document = working
	}
	return result
}

// RunRaw decodes untrusted command records and runs the valid ones. Records
// without an op or path are counted in Skipped and never reach the engine.
func (r *Runner) RunRaw(doc any, raw []any) *Result {
	ops, skipped := patch.DecodeOperations(raw)
	result := r.Run(doc, ops)
	result.Skipped = skipped
	return result
}

func (r *Runner) applyOne(doc any, op patch.Operation) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = doc
			err = fmt.Errorf("panic while applying %s %s: %v", op.Op, op.Path, rec)
		}
	}()
	return r.engine.Apply(doc, op)
}

func newFailure(index int, op patch.Operation, err error) Failure {
	code := codePanic
	if c := patch.CodeOf(err); c != 0 {
		code = c.String()
	}
	return Failure{
		Index:  index,
		Op:     op.Op,
		Path:   op.Path,
		From:   op.From,
		Reason: err.Error(),
		Code:   code,
	}
}
