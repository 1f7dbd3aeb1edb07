// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package metrics collects per-stage durations and item outcomes of a run
// and exports them in the Prometheus text format, for node_exporter's
// textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/facebookincubator/chipsauto/pkg/stage"
)

const namespace = "chipsauto"

// Item results.
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
)

// Metrics holds the collectors of one run. Nothing is registered globally.
type Metrics struct {
	registry     *prometheus.Registry
	stageSeconds *prometheus.GaugeVec
	items        *prometheus.CounterVec
	launched     prometheus.Gauge
}

// New returns an empty Metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each stage of the last run.",
		}, []string{"stage"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_items_total",
			Help:      "Items processed by each stage, by result.",
		}, []string{"stage", "result"}),
		launched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_launched",
			Help:      "1 if the last run reached the launched state.",
		}),
	}
	m.registry.MustRegister(m.stageSeconds, m.items, m.launched)
	return m
}

// Registry returns the registry the collectors are registered to.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStage records the duration of a stage.
func (m *Metrics) ObserveStage(name string, d time.Duration) {
	m.stageSeconds.WithLabelValues(name).Set(d.Seconds())
}

// ObserveReport counts the outcomes of a report.
func (m *Metrics) ObserveReport(r *stage.Report) {
	if r == nil {
		return
	}
	failed := len(r.Failed())
	m.items.WithLabelValues(r.Stage, ResultSucceeded).Add(float64(len(r.Outcomes) - failed))
	m.items.WithLabelValues(r.Stage, ResultFailed).Add(float64(failed))
}

// SetLaunched flags whether the run was launched.
func (m *Metrics) SetLaunched(launched bool) {
	if launched {
		m.launched.Set(1)
	} else {
		m.launched.Set(0)
	}
}

// WriteFile writes every metric to path, atomically.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
