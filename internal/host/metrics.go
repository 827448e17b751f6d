// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsSink records outcomes as Prometheus metrics.
type MetricsSink struct {
	batches    *prometheus.CounterVec
	commands   *prometheus.CounterVec
	failures   *prometheus.CounterVec
	violations prometheus.Counter
	duration   prometheus.Histogram
}

// NewMetricsSink registers the batch metrics with reg.
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	factory := promauto.With(reg)
	return &MetricsSink{
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statepatch",
			Name:      "batches_total",
			Help:      "Batches processed, by whether they committed a new document",
		}, []string{"committed"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statepatch",
			Name:      "commands_total",
			Help:      "Commands seen, by result (applied, failed, skipped)",
		}, []string{"result"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statepatch",
			Name:      "command_failures_total",
			Help:      "Failed commands by error code",
		}, []string{"code"}),
		violations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "statepatch",
			Name:      "coercion_violations_total",
			Help:      "Shape violations found in committed documents",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "statepatch",
			Name:      "batch_duration_seconds",
			Help:      "Time to apply, coerce and diff a batch",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (m *MetricsSink) Publish(_ context.Context, o *Outcome) error {
	m.batches.WithLabelValues(strconv.FormatBool(o.Committed)).Inc()
	m.commands.WithLabelValues("applied").Add(float64(o.Applied))
	m.commands.WithLabelValues("failed").Add(float64(o.Failed))
	m.commands.WithLabelValues("skipped").Add(float64(o.Skipped))
	for _, f := range o.Failures {
		m.failures.WithLabelValues(f.Code).Inc()
	}
	m.violations.Add(float64(len(o.Violations)))
	m.duration.Observe(o.Duration.Seconds())
	return nil
}
