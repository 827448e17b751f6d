// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package host connects the patch engine to the outside world: it owns the
// committed document, receives batches from sources and publishes outcomes
// to sinks.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openchoreo/statepatch/internal/batch"
	"github.com/openchoreo/statepatch/internal/coerce"
)

// Batch is one delivery of commands.
type Batch struct {
	ID string `json:"id,omitempty"`
	// Document, when set, is edited instead of the committed state. The
	// result still becomes the committed state.
	Document any `json:"document,omitempty"`
	// Commands are raw command records. Records without an op or path are
	// skipped.
	Commands []any `json:"commands"`
}

// Outcome is what the host reports for a processed batch.
type Outcome struct {
	BatchID string `json:"batchId"`
	batch.Result
	// Violations are the coercion findings for the committed document.
	Violations coerce.Violations `json:"violations,omitempty"`
	// Diff is the RFC 7386 merge patch from the previous committed state to
	// the new one. It is empty when nothing was committed.
	Diff       json.RawMessage `json:"diff,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Duration   time.Duration   `json:"duration"`
}

// Dispatcher accepts batches for processing. *Service implements it.
type Dispatcher interface {
	Submit(ctx context.Context, b Batch) (*Outcome, error)
}

// BatchSource delivers batches to a dispatcher until its input ends or ctx
// is canceled.
type BatchSource interface {
	Run(ctx context.Context, d Dispatcher) error
}

// ResultSink consumes outcomes. Publish is called serially in batch order.
type ResultSink interface {
	Publish(ctx context.Context, o *Outcome) error
}

// DecodeBatch parses a batch message. A bare JSON array is taken as the
// command list of a batch without its own document.
func DecodeBatch(data []byte) (Batch, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrInvalidBatch, err)
	}

	switch v := raw.(type) {
	case []any:
		return Batch{Commands: v}, nil
	case map[string]any:
		var b Batch
		if id, ok := v["id"].(string); ok {
			b.ID = id
		}
		b.Document = v["document"]
		commands, ok := v["commands"].([]any)
		if !ok && v["commands"] != nil {
			return Batch{}, fmt.Errorf("%w: commands must be a list", ErrInvalidBatch)
		}
		b.Commands = commands
		return b, nil
	default:
		return Batch{}, fmt.Errorf("%w: expected an object or a list, got %T", ErrInvalidBatch, raw)
	}
}
