// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/openchoreo/statepatch/internal/batch"
	"github.com/openchoreo/statepatch/internal/coerce"
	"github.com/openchoreo/statepatch/internal/patch"
)

// recordingSink keeps every outcome it receives.
type recordingSink struct {
	mu       sync.Mutex
	outcomes []*Outcome
	err      error
}

func (r *recordingSink) Publish(_ context.Context, o *Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return r.err
}

func (r *recordingSink) received() []*Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Outcome(nil), r.outcomes...)
}

func commands(raw string) []any {
	var out []any
	Expect(json.Unmarshal([]byte(raw), &out)).To(Succeed())
	return out
}

var _ = Describe("Service", func() {
	var (
		ctx  context.Context
		sink *recordingSink
		svc  *Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		sink = &recordingSink{}
		svc = NewService(ServiceConfig{
			Initial: map[string]any{"creator": map[string]any{"host_energy": 5.0}},
			Sinks:   []ResultSink{sink},
		})
	})

	Context("when a batch succeeds", func() {
		It("commits the edited document", func() {
			outcome, err := svc.Submit(ctx, Batch{Commands: commands(`[
				{"op":"delta","path":"/creator/host_energy","value":"3"},
				{"op":"add","path":"/world/tech_tree/-","value":"fire"}
			]`)})
			Expect(err).NotTo(HaveOccurred())

			Expect(outcome.Committed).To(BeTrue())
			Expect(outcome.Applied).To(Equal(2))
			Expect(outcome.BatchID).NotTo(BeEmpty())
			Expect(svc.State()).To(Equal(map[string]any{
				"creator": map[string]any{"host_energy": 8.0},
				"world":   map[string]any{"tech_tree": []any{"fire"}},
			}))
		})

		It("reports the change as a merge patch", func() {
			outcome, err := svc.Submit(ctx, Batch{Commands: commands(`[
				{"op":"replace","path":"/creator/host_energy","value":1},
				{"op":"add","path":"/creator/title","value":"sage"}
			]`)})
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Diff).To(MatchJSON(`{"creator":{"host_energy":1,"title":"sage"}}`))
		})

		It("publishes the outcome to every sink", func() {
			_, err := svc.Submit(ctx, Batch{ID: "b-1", Commands: commands(`[{"op":"add","path":"/a","value":1}]`)})
			Expect(err).NotTo(HaveOccurred())

			received := sink.received()
			Expect(received).To(HaveLen(1))
			Expect(received[0].BatchID).To(Equal("b-1"))
		})
	})

	Context("when nothing in a batch succeeds", func() {
		It("keeps the committed state", func() {
			outcome, err := svc.Submit(ctx, Batch{Commands: commands(`[
				{"op":"test","path":"/creator/host_energy","value":99},
				{"op":"move","from":"/nowhere","path":"/x"}
			]`)})
			Expect(err).NotTo(HaveOccurred())

			Expect(outcome.Committed).To(BeFalse())
			Expect(outcome.Failed).To(Equal(2))
			Expect(outcome.Diff).To(BeEmpty())
			Expect(svc.State()).To(Equal(map[string]any{"creator": map[string]any{"host_energy": 5.0}}))
		})
	})

	Context("when the batch carries its own document", func() {
		It("edits that document and commits the result", func() {
			outcome, err := svc.Submit(ctx, Batch{
				Document: map[string]any{"list": []any{1.0, 2.0}},
				Commands: commands(`[{"op":"test","path":"/list/0","value":1},{"op":"remove","path":"/list/0"}]`),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Committed).To(BeTrue())
			Expect(svc.State()).To(Equal(map[string]any{"list": []any{2.0}}))
		})
	})

	Context("with a registered shape", func() {
		BeforeEach(func() {
			shape, err := coerce.ParseDefinition([]byte(`
root:
  creator:
    host_energy: "number | default=0 | maximum=10"
    host_health: "string | default='ok'"
  tags: "[]string"
`))
			Expect(err).NotTo(HaveOccurred())
			svc = NewService(ServiceConfig{
				Runner:  batch.NewRunner(patch.NewEngine(patch.Options{}), nil),
				Coercer: coerce.New(shape, coerce.Options{}),
				Initial: map[string]any{},
				Sinks:   []ResultSink{sink},
			})
		})

		It("fills defaults in the initial document", func() {
			Expect(svc.State()).To(Equal(map[string]any{
				"creator": map[string]any{"host_energy": 0.0, "host_health": "ok"},
				"tags":    []any{},
			}))
		})

		It("coerces committed documents and surfaces violations", func() {
			outcome, err := svc.Submit(ctx, Batch{Commands: commands(`[
				{"op":"replace","path":"/creator/host_energy","value":"12"},
				{"op":"add","path":"/tags/-","value":7}
			]`)})
			Expect(err).NotTo(HaveOccurred())

			Expect(outcome.Violations).To(HaveLen(1))
			Expect(outcome.Violations[0].Path).To(Equal("/creator/host_energy"))
			Expect(svc.State()).To(Equal(map[string]any{
				"creator": map[string]any{"host_energy": 12.0, "host_health": "ok"},
				"tags":    []any{"7"},
			}))
		})

		It("exposes the shape", func() {
			Expect(svc.Shape()).NotTo(BeNil())
			Expect(svc.Shape().Fields).To(HaveKey("creator"))
		})
	})

	Context("when a sink fails", func() {
		It("still commits and returns the outcome", func() {
			sink.err = errors.New("disk full")
			outcome, err := svc.Submit(ctx, Batch{Commands: commands(`[{"op":"add","path":"/a","value":1}]`)})

			Expect(err).To(MatchError(ErrSinkFailed))
			Expect(outcome).NotTo(BeNil())
			Expect(outcome.Committed).To(BeTrue())
			Expect(svc.State()).To(HaveKey("a"))
		})
	})

	Context("when the context is canceled", func() {
		It("rejects the batch", func() {
			canceled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := svc.Submit(canceled, Batch{Commands: commands(`[{"op":"add","path":"/a","value":1}]`)})
			Expect(err).To(MatchError(context.Canceled))
			Expect(sink.received()).To(BeEmpty())
		})
	})

	It("serializes concurrent batches", func() {
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := svc.Submit(ctx, Batch{Commands: commands(`[{"op":"delta","path":"/creator/host_energy","value":1}]`)})
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		Expect(svc.State()).To(Equal(map[string]any{"creator": map[string]any{"host_energy": 25.0}}))
		Expect(sink.received()).To(HaveLen(20))
	})

	It("returns copies of the committed state", func() {
		state := svc.State().(map[string]any)
		state["creator"].(map[string]any)["host_energy"] = 100.0
		Expect(svc.State()).To(Equal(map[string]any{"creator": map[string]any{"host_energy": 5.0}}))
	})
})

var _ = Describe("DecodeBatch", func() {
	It("accepts a bare command list", func() {
		b, err := DecodeBatch([]byte(`[{"op":"add","path":"/a","value":1}]`))
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Commands).To(HaveLen(1))
		Expect(b.Document).To(BeNil())
	})

	It("accepts a batch object", func() {
		b, err := DecodeBatch([]byte(`{"id":"x","document":{"a":1},"commands":[]}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(b.ID).To(Equal("x"))
		Expect(b.Document).To(Equal(map[string]any{"a": 1.0}))
		Expect(b.Commands).To(BeEmpty())
	})

	DescribeTable("rejects malformed messages",
		func(raw string) {
			_, err := DecodeBatch([]byte(raw))
			Expect(err).To(MatchError(ErrInvalidBatch))
		},
		Entry("invalid json", `{`),
		Entry("scalar", `42`),
		Entry("commands not a list", `{"commands":{"op":"add"}}`),
	)
})
