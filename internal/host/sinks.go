// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// LogSink reports each outcome through the logger: a summary per batch and
// one warning per failed command.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "log-sink")}
}

func (s *LogSink) Publish(ctx context.Context, o *Outcome) error {
	level := slog.LevelInfo
	if o.Failed > 0 || len(o.Violations) > 0 {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "Batch processed",
		"batch", o.BatchID,
		"applied", o.Applied,
		"failed", o.Failed,
		"skipped", o.Skipped,
		"committed", o.Committed,
		"violations", len(o.Violations),
		"duration", o.Duration,
	)
	for _, f := range o.Failures {
		s.logger.Warn("Command failed",
			"batch", o.BatchID,
			"index", f.Index,
			"op", f.Op,
			"path", f.Path,
			"reason", f.Reason,
		)
	}
	for _, v := range o.Violations {
		s.logger.Warn("Shape violation", "batch", o.BatchID, "path", v.Path, "reason", v.Message)
	}
	return nil
}

// WriterSink writes every outcome as one JSON line.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterSink creates a WriterSink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

func (s *WriterSink) Publish(_ context.Context, o *Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(o); err != nil {
		return fmt.Errorf("failed to write outcome %s: %w", o.BatchID, err)
	}
	return nil
}
