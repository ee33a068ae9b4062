// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
	"github.com/AleutianAI/benchtrend/services/trend/store"
)

// ErrUnsupportedMetric indicates a metric outside mean/min/max/stddev.
var ErrUnsupportedMetric = errors.New("unsupported trend metric")

const (
	// DefaultMetric is analyzed when Options.Metric is empty.
	DefaultMetric = snapshot.MetricMean

	// DefaultHistoryLimit bounds history when Options.HistoryLimit is 0.
	DefaultHistoryLimit = 50

	// discoveryRuns is how many recent runs contribute benchmark names
	// when none are given.
	discoveryRuns = 5
)

// Metrics receives one call per analyzed benchmark. A nil Metrics records nothing.
type Metrics interface {
	TrendObserved(benchmark, metric, direction string, changeRatio float64)
}

// Options selects what AnalyzeTrends covers.
type Options struct {
	// Names restricts the analysis. Empty means every benchmark in the
	// most recent runs.
	Names []string

	// Metric is the stats key to classify. Default: mean.
	Metric string

	// HistoryLimit caps the runs read per benchmark. Default: 50.
	// A negative value means unlimited.
	HistoryLimit int
}

// Metadata describes an analysis run.
type Metadata struct {
	Metric            string `json:"metric"`
	HistoryLimit      int    `json:"history_limit"`
	AnalysisTimestamp string `json:"analysis_timestamp"`
}

// Report is the result of AnalyzeTrends.
type Report struct {
	Metadata Metadata         `json:"metadata"`
	Trends   map[string]Trend `json:"trends"`

	// Series holds the history each trend was computed from, for charts.
	Series map[string][]store.Point `json:"-"`
}

// Summary counts trends by outcome.
type Summary struct {
	Total        int `json:"total"`
	Degrading    int `json:"degrading"`
	Improving    int `json:"improving"`
	Stable       int `json:"stable"`
	Insufficient int `json:"insufficient_data"`
}

// Summary counts the report's trends.
func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.Trends)}
	for _, t := range r.Trends {
		switch {
		case t.Insufficient():
			s.Insufficient++
		case t.Direction == DirectionDegrading:
			s.Degrading++
		case t.Direction == DirectionImproving:
			s.Improving++
		case t.Direction == DirectionStable:
			s.Stable++
		}
	}
	return s
}

// Names returns the analyzed benchmark names, sorted.
func (r *Report) Names() []string {
	names := make([]string, 0, len(r.Trends))
	for name := range r.Trends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NamedTrend pairs a benchmark name with its trend.
type NamedTrend struct {
	Name string
	Trend
}

// Degrading returns degrading trends, worst change first, then by name.
func (r *Report) Degrading() []NamedTrend {
	out := make([]NamedTrend, 0)
	for _, name := range r.Names() {
		if t := r.Trends[name]; t.Direction == DirectionDegrading {
			out = append(out, NamedTrend{Name: name, Trend: t})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangeRatio > out[j].ChangeRatio })
	return out
}

// -----------------------------------------------------------------------------
// Analyzer
// -----------------------------------------------------------------------------

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// WithClock overrides the analysis timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// Analyzer classifies every benchmark in a store.
//
// Thread Safety: Safe for concurrent use if the store is.
type Analyzer struct {
	store   store.Store
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
}

// NewAnalyzer creates an analyzer over s.
func NewAnalyzer(s store.Store, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:  s,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnalyzeTrends classifies each requested benchmark.
//
// Description:
//
//	When o.Names is empty, names are the union of benchmark names in the
//	five most recent runs. Each benchmark's history is read with the
//	history limit and classified on o.Metric.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - o: Names, metric, and history limit.
//
// Outputs:
//   - *Report: Trends keyed by benchmark name. Never nil on success.
//   - error: ErrUnsupportedMetric, or a store failure.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) AnalyzeTrends(ctx context.Context, o Options) (*Report, error) {
	metric := strings.TrimSpace(o.Metric)
	if metric == "" {
		metric = DefaultMetric
	}
	if !snapshot.IsTrendMetric(metric) {
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnsupportedMetric, metric,
			strings.Join(snapshot.TrendMetrics, ", "))
	}
	limit := o.HistoryLimit
	if limit == 0 {
		limit = DefaultHistoryLimit
	}

	ctx, span := otel.Tracer("analysis").Start(ctx, "analysis.Analyzer.AnalyzeTrends",
		trace.WithAttributes(
			attribute.String("metric", metric),
			attribute.Int("history_limit", limit),
		),
	)
	defer span.End()

	names, err := a.resolveNames(ctx, o.Names)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report := &Report{
		Metadata: Metadata{
			Metric:            metric,
			HistoryLimit:      limit,
			AnalysisTimestamp: snapshot.FormatTimestamp(a.now()),
		},
		Trends: make(map[string]Trend, len(names)),
		Series: make(map[string][]store.Point, len(names)),
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		points, err := a.store.HistoryFor(ctx, name, limit)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("reading history for %s: %w", name, err)
		}

		t := Classify(points, metric)
		report.Trends[name] = t
		report.Series[name] = points

		if a.metrics != nil && !t.Insufficient() {
			a.metrics.TrendObserved(name, metric, string(t.Direction), t.ChangeRatio)
		}
	}

	summary := report.Summary()
	span.SetAttributes(
		attribute.Int("benchmarks", summary.Total),
		attribute.Int("degrading", summary.Degrading),
	)
	a.logger.Info("trend analysis completed",
		slog.String("metric", metric),
		slog.Int("benchmarks", summary.Total),
		slog.Int("degrading", summary.Degrading),
		slog.Int("improving", summary.Improving),
		slog.Int("stable", summary.Stable),
		slog.Int("insufficient", summary.Insufficient),
	)
	return report, nil
}

// resolveNames returns requested names deduplicated, or discovers them.
func (a *Analyzer) resolveNames(ctx context.Context, requested []string) ([]string, error) {
	seen := make(map[string]struct{})
	names := make([]string, 0, len(requested))
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	for _, name := range requested {
		add(name)
	}
	if len(names) > 0 {
		return names, nil
	}

	runs, err := a.store.History(ctx, discoveryRuns)
	if err != nil {
		return nil, fmt.Errorf("discovering benchmark names: %w", err)
	}
	for i := range runs {
		for _, name := range runs[i].Names() {
			add(name)
		}
	}
	sort.Strings(names)
	return names, nil
}
