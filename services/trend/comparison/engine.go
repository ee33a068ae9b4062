// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package comparison compares a current set of benchmark results against a
// baseline set, applying regression rules per benchmark.
package comparison

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/benchtrend/services/trend/regression"
	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
)

// Metrics receives one call per violation found. A nil Metrics records nothing.
type Metrics interface {
	RegressionObserved(severity string)
}

// Analysis is the comparison of one current benchmark.
type Analysis struct {
	// Name is the benchmark name.
	Name string `json:"name"`

	// BaselineStats is nil when the benchmark is new.
	BaselineStats snapshot.Stats `json:"baseline_stats"`

	// CurrentStats is the current measurement.
	CurrentStats snapshot.Stats `json:"current_stats"`

	// Regressions holds the rules that fired. Never nil.
	Regressions []regression.Violation `json:"regressions"`
}

// IsNew reports whether the benchmark had no baseline.
func (a *Analysis) IsNew() bool {
	return a.BaselineStats == nil
}

// NamedViolation is a violation annotated with its benchmark.
type NamedViolation struct {
	Name string `json:"name"`
	regression.Violation
}

// Result is the outcome of a comparison.
type Result struct {
	// Analyses holds one entry per current benchmark, sorted by name.
	Analyses []Analysis `json:"per_benchmark_analysis"`

	// Regressions flattens every violation, sorted by name then rule order.
	Regressions []NamedViolation `json:"all_regressions"`
}

// Violations returns the flattened violations without names.
func (r *Result) Violations() []regression.Violation {
	out := make([]regression.Violation, 0, len(r.Regressions))
	for _, nv := range r.Regressions {
		out = append(out, nv.Violation)
	}
	return out
}

// Highest returns the highest severity found, or SeverityUnset.
func (r *Result) Highest() regression.Severity {
	return regression.Highest(r.Violations())
}

// Analysis returns the analysis for name.
func (r *Result) Analysis(name string) (*Analysis, bool) {
	for i := range r.Analyses {
		if r.Analyses[i].Name == name {
			return &r.Analyses[i], true
		}
	}
	return nil, false
}

// -----------------------------------------------------------------------------
// Engine
// -----------------------------------------------------------------------------

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine applies a fixed rule set to baseline/current pairs.
//
// Thread Safety: Safe for concurrent use. Immutable after construction.
type Engine struct {
	rules   []regression.Rule
	logger  *slog.Logger
	metrics Metrics
}

// NewEngine creates an engine for rules. The rules slice is copied.
func NewEngine(rules []regression.Rule, opts ...Option) *Engine {
	e := &Engine{
		rules:  append([]regression.Rule(nil), rules...),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns a copy of the engine's rules.
func (e *Engine) Rules() []regression.Rule {
	return append([]regression.Rule(nil), e.rules...)
}

// Compare evaluates every current benchmark against the baseline.
//
// Description:
//
//	The baseline is indexed by name; on duplicate names the last entry
//	wins. A current benchmark with no baseline entry is recorded with nil
//	baseline stats and no regressions. Output order depends only on the
//	input, so reports built from it are reproducible.
//
// Inputs:
//   - ctx: Context for tracing.
//   - baseline: Baseline benchmarks. May be empty.
//   - current: Current benchmarks.
//
// Outputs:
//   - *Result: Never nil. Slices are never nil.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) Compare(ctx context.Context, baseline, current []snapshot.Benchmark) *Result {
	_, span := otel.Tracer("comparison").Start(ctx, "comparison.Engine.Compare",
		trace.WithAttributes(
			attribute.Int("baseline", len(baseline)),
			attribute.Int("current", len(current)),
			attribute.Int("rules", len(e.rules)),
		),
	)
	defer span.End()

	index := make(map[string]snapshot.Stats, len(baseline))
	for _, b := range baseline {
		index[b.Name] = b.Stats
	}

	sorted := append([]snapshot.Benchmark(nil), current...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	result := &Result{
		Analyses:    make([]Analysis, 0, len(sorted)),
		Regressions: make([]NamedViolation, 0),
	}

	newCount := 0
	for _, cur := range sorted {
		analysis := Analysis{
			Name:         cur.Name,
			CurrentStats: cur.Stats,
			Regressions:  make([]regression.Violation, 0),
		}

		base, ok := index[cur.Name]
		if !ok {
			newCount++
			result.Analyses = append(result.Analyses, analysis)
			continue
		}
		if base == nil {
			base = snapshot.Stats{}
		}

		analysis.BaselineStats = base
		analysis.Regressions = regression.Evaluate(base, cur.Stats, e.rules)
		for _, v := range analysis.Regressions {
			result.Regressions = append(result.Regressions, NamedViolation{Name: cur.Name, Violation: v})
			if e.metrics != nil {
				e.metrics.RegressionObserved(v.Severity.String())
			}
		}
		result.Analyses = append(result.Analyses, analysis)
	}

	span.SetAttributes(
		attribute.Int("regressions", len(result.Regressions)),
		attribute.Int("new_benchmarks", newCount),
	)
	e.logger.Debug("comparison completed",
		slog.Int("benchmarks", len(result.Analyses)),
		slog.Int("new_benchmarks", newCount),
		slog.Int("regressions", len(result.Regressions)),
	)
	return result
}
