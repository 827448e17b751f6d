// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"

	"github.com/openchoreo/statepatch/internal/batch"
	"github.com/openchoreo/statepatch/internal/clone"
	"github.com/openchoreo/statepatch/internal/coerce"
	"github.com/openchoreo/statepatch/internal/logging"
	"github.com/openchoreo/statepatch/internal/patch"
)

// ServiceConfig holds the collaborators of a Service.
type ServiceConfig struct {
	Runner *batch.Runner
	// Coercer is applied to every committed document. Optional.
	Coercer *coerce.Coercer
	// Initial is the starting committed document.
	Initial any
	Sinks   []ResultSink
	Logger  *slog.Logger
}

// Service owns the committed document and processes batches one at a time.
type Service struct {
	runner  *batch.Runner
	coercer *coerce.Coercer
	sinks   []ResultSink
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	state any
}

// NewService creates a Service. The initial document is coerced when a
// coercer is configured; violations are logged and do not prevent startup.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	runner := cfg.Runner
	if runner == nil {
		runner = batch.NewRunner(patch.NewEngine(patch.Options{}), logger)
	}
	s := &Service{
		runner:  runner,
		coercer: cfg.Coercer,
		sinks:   cfg.Sinks,
		logger:  logger.With("component", "host"),
		now:     time.Now,
	}

	initial := clone.DeepCopy(cfg.Initial)
	if initial == nil {
		initial = map[string]any{}
	}
	state, violations := s.coerce(initial)
	if len(violations) > 0 {
		s.logger.Warn("Initial document does not match the shape", "violations", len(violations))
	}
	s.state = state
	return s
}

// Submit applies b and publishes the outcome to every sink.
//
// Batches are processed serially. A batch that commits nothing leaves the
// committed state untouched. Sink failures are logged and returned joined
// with ErrSinkFailed; the outcome is valid either way.
func (s *Service) Submit(ctx context.Context, b Batch) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	received := s.now()
	base := s.state
	if b.Document != nil {
		base = b.Document
	}

	outcome := &Outcome{BatchID: b.ID, ReceivedAt: received}
	outcome.Result = *s.runner.RunRaw(base, b.Commands)

	if outcome.Committed {
		doc, violations := s.coerce(outcome.Document)
		outcome.Document = doc
		outcome.Violations = violations
		outcome.Diff = s.diff(s.state, doc)
		s.state = doc
	}
	outcome.Duration = s.now().Sub(received)

	return outcome, s.publish(ctx, outcome)
}

// State returns a copy of the committed document.
func (s *Service) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone.DeepCopy(s.state)
}

// Shape returns the registered shape, or nil when documents are not coerced.
func (s *Service) Shape() *coerce.Shape {
	if s.coercer == nil {
		return nil
	}
	return s.coercer.Shape()
}

func (s *Service) coerce(doc any) (any, coerce.Violations) {
	if s.coercer == nil {
		return doc, nil
	}
	out, err := s.coercer.Coerce(doc)
	var violations coerce.Violations
	if errors.As(err, &violations) {
		return out, violations
	}
	return out, nil
}

// diff returns the merge patch turning prev into next.
func (s *Service) diff(prev, next any) json.RawMessage {
	original, err := json.Marshal(prev)
	if err != nil {
		s.logger.Warn("Failed to encode previous state", "error", err)
		return nil
	}
	modified, err := json.Marshal(next)
	if err != nil {
		s.logger.Warn("Failed to encode committed state", "error", err)
		return nil
	}
	mergePatch, err := jsonpatch.CreateMergePatch(original, modified)
	if err != nil {
		s.logger.Debug("Merge patch unavailable", "error", err)
		return nil
	}
	return mergePatch
}

func (s *Service) publish(ctx context.Context, o *Outcome) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, o); err != nil {
			s.logger.Warn("Result sink failed", "batch", o.BatchID, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSinkFailed, errors.Join(errs...))
}
