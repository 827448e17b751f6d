// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"

	"github.com/openchoreo/statepatch/internal/host"
)

// Sink stores every outcome: failures always, a snapshot when the batch
// committed.
type Sink struct {
	store *Store
}

// NewSink creates a Sink writing to s.
func NewSink(s *Store) *Sink {
	return &Sink{store: s}
}

func (k *Sink) Publish(ctx context.Context, o *host.Outcome) error {
	failures := make([]FailureRecord, 0, len(o.Failures))
	for _, f := range o.Failures {
		failures = append(failures, FailureRecord{
			BatchID: o.BatchID,
			Index:   f.Index,
			Op:      f.Op,
			Path:    f.Path,
			From:    f.From,
			Code:    f.Code,
			Reason:  f.Reason,
		})
	}

	var snapshot *Snapshot
	if o.Committed {
		snapshot = &Snapshot{
			BatchID:    o.BatchID,
			Diff:       string(o.Diff),
			Applied:    o.Applied,
			Failed:     o.Failed,
			Violations: len(o.Violations),
		}
	}
	return k.store.Record(ctx, snapshot, o.Document, failures)
}
