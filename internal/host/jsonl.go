// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/openchoreo/statepatch/internal/logging"
)

// maxLineSize bounds a single batch line.
const maxLineSize = 16 << 20

// JSONLSource reads one batch per line. Blank lines are ignored and lines
// that do not decode are logged and skipped.
type JSONLSource struct {
	r      io.Reader
	logger *slog.Logger
}

// NewJSONLSource creates a JSONLSource reading from r.
func NewJSONLSource(r io.Reader, logger *slog.Logger) *JSONLSource {
	if logger == nil {
		logger = logging.Discard()
	}
	return &JSONLSource{r: r, logger: logger.With("component", "jsonl-source")}
}

// Run submits every line to d until the reader is exhausted or ctx is done.
// Sink failures reported by d are logged and do not stop the stream.
func (s *JSONLSource) Run(ctx context.Context, d Dispatcher) error {
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		b, err := DecodeBatch(data)
		if err != nil {
			s.logger.Warn("Skipping undecodable batch", "line", line, "error", err)
			continue
		}
		if _, err := d.Submit(ctx, b); err != nil {
			if !errors.Is(err, ErrSinkFailed) {
				return fmt.Errorf("batch on line %d: %w", line, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read batches: %w", err)
	}
	return nil
}
