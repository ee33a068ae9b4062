// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// =============================================================================
// Prometheus Metrics for Benchmark Trends
// =============================================================================

const namespace = "benchtrend"

// directions lists every trend direction so the direction gauge can be
// reset to a one-hot encoding.
var directions = []string{"degrading", "improving", "stable", "unknown"}

// Recorder records domain metrics. It satisfies the Metrics interfaces of
// the store, comparison and analysis packages.
//
// Thread Safety: Safe for concurrent use. A nil *Recorder records nothing.
type Recorder struct {
	runsStored     *prometheus.CounterVec
	mirrorFailures *prometheus.CounterVec
	regressions    *prometheus.CounterVec
	changeRatio    *prometheus.GaugeVec
	direction      *prometheus.GaugeVec
}

// NewRecorder registers the benchtrend metrics with reg.
//
// Inputs:
//
//	reg - Registerer to use. Nil uses prometheus.DefaultRegisterer.
//
// Outputs:
//
//	*Recorder - The recorder.
//
// Registering twice on the same registerer panics, as with promauto.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		// runsStored counts runs persisted. Labels: backend (file, badger)
		runsStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_stored_total",
			Help:      "Total benchmark runs stored",
		}, []string{"backend"}),

		// mirrorFailures counts failed mirror writes. Labels: target (influx)
		mirrorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_failures_total",
			Help:      "Total failed writes to a run mirror",
		}, []string{"target"}),

		// regressions counts rule violations. Labels: severity
		regressions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regressions_total",
			Help:      "Total regressions detected by severity",
		}, []string{"severity"}),

		// changeRatio is the latest classified change ratio. Labels: benchmark, metric
		changeRatio: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trend_change_ratio",
			Help:      "Relative change of the recent window against the older window",
		}, []string{"benchmark", "metric"}),

		// direction is 1 for the current direction of a benchmark, 0 otherwise.
		direction: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trend_direction",
			Help:      "Current trend direction of a benchmark (one-hot)",
		}, []string{"benchmark", "direction"}),
	}
}

// RunStored implements store.Metrics.
func (r *Recorder) RunStored(backend string) {
	if r == nil {
		return
	}
	r.runsStored.WithLabelValues(backend).Inc()
}

// MirrorFailed implements store.Metrics.
func (r *Recorder) MirrorFailed(target string) {
	if r == nil {
		return
	}
	r.mirrorFailures.WithLabelValues(target).Inc()
}

// RegressionObserved implements comparison.Metrics.
func (r *Recorder) RegressionObserved(severity string) {
	if r == nil {
		return
	}
	r.regressions.WithLabelValues(severity).Inc()
}

// TrendObserved implements analysis.Metrics.
func (r *Recorder) TrendObserved(benchmark, metric, direction string, changeRatio float64) {
	if r == nil {
		return
	}
	r.changeRatio.WithLabelValues(benchmark, metric).Set(changeRatio)
	for _, d := range directions {
		v := 0.0
		if d == direction {
			v = 1
		}
		r.direction.WithLabelValues(benchmark, d).Set(v)
	}
}

// Push sends everything gathered by g to a Prometheus Pushgateway,
// replacing the metrics previously pushed for job.
//
// Inputs:
//
//	ctx - Context for the HTTP request.
//	url - Pushgateway base URL.
//	job - Job label for the pushed group.
//	g - Source of metric families, usually the registry given to NewRecorder.
//
// Outputs:
//
//	error - Non-nil if the gateway rejected or could not be reached.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if url == "" {
		return fmt.Errorf("push: pushgateway url is required")
	}
	if job == "" {
		job = namespace
	}
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("push to %s: %w", url, err)
	}
	return nil
}
