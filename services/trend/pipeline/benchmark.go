// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/AleutianAI/benchtrend/services/trend/comparison"
	"github.com/AleutianAI/benchtrend/services/trend/regression"
	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
	"github.com/AleutianAI/benchtrend/services/trend/store"
)

// -----------------------------------------------------------------------------
// FileExtractor
// -----------------------------------------------------------------------------

// ErrNoBenchmarks indicates a current snapshot that decodes but holds no
// named benchmarks.
var ErrNoBenchmarks = errors.New("current snapshot has no benchmarks")

// FileExtractor reads baseline and current snapshots from disk.
//
// A missing or malformed baseline is an empty baseline, so every current
// benchmark is new. The current snapshot must exist unless AllowMissing,
// and must decode with at least one named benchmark.
type FileExtractor struct {
	// Strict validates the current snapshot against the schema.
	Strict bool

	// AllowMissing treats a missing current snapshot as empty.
	AllowMissing bool
}

// Extract implements Extractor.
func (f FileExtractor) Extract(ctx context.Context, in Input) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ex, err := f.current(in.CurrentPath)
	if err != nil {
		return nil, err
	}
	ex.Baseline = snapshot.LoadBenchmarks(in.BaselinePath)
	return ex, nil
}

func (f FileExtractor) current(path string) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && f.AllowMissing {
			return &Extraction{Current: []snapshot.Benchmark{}}, nil
		}
		return nil, fmt.Errorf("reading current snapshot: %w", err)
	}
	doc, err := snapshot.DecodeDocument(data, f.Strict)
	if err != nil {
		return nil, fmt.Errorf("current snapshot %s: %w", path, err)
	}

	ex := &Extraction{Current: make([]snapshot.Benchmark, 0, len(doc.Benchmarks))}
	for _, b := range doc.Benchmarks {
		if b.Name != "" {
			ex.Current = append(ex.Current, b)
		}
	}
	if len(ex.Current) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoBenchmarks)
	}
	if doc.Timestamp != "" {
		ts, err := snapshot.ParseTimestamp(doc.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("current snapshot %s: %w", path, err)
		}
		ex.CurrentTimestamp = &ts
	}
	return ex, nil
}

// -----------------------------------------------------------------------------
// ComparisonAnalyzer
// -----------------------------------------------------------------------------

// ComparisonAnalyzer runs the comparison engine.
type ComparisonAnalyzer struct {
	Engine *comparison.Engine
}

// Analyze implements Analyzer.
func (a ComparisonAnalyzer) Analyze(ctx context.Context, ex *Extraction) (*comparison.Result, error) {
	if a.Engine == nil {
		return nil, fmt.Errorf("no comparison engine configured")
	}
	return a.Engine.Compare(ctx, ex.Baseline, ex.Current), nil
}

// -----------------------------------------------------------------------------
// RegressionSuggester
// -----------------------------------------------------------------------------

// RegressionSuggester emits one suggestion per regression, most severe
// first. Ties keep comparison order.
type RegressionSuggester struct{}

// Suggest implements Suggester.
func (RegressionSuggester) Suggest(_ context.Context, result *comparison.Result) ([]Suggestion, error) {
	out := make([]Suggestion, 0, len(result.Regressions))
	for _, r := range result.Regressions {
		out = append(out, Suggestion{
			Benchmark: r.Name,
			Violation: r.Violation,
			Message:   suggestionMessage(r),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Violation.Severity.Effective() > out[j].Violation.Severity.Effective()
	})
	return out, nil
}

func suggestionMessage(r comparison.NamedViolation) string {
	change := fmt.Sprintf("%+.6f", r.Change)
	if r.ThresholdType.Effective() == regression.ThresholdPercentage {
		change = fmt.Sprintf("%+.2f%%", r.Change*100)
	}
	return fmt.Sprintf("%s: %s rose from %.6f to %.6f (%s, limit %s); investigate changes since the baseline",
		r.Name, r.Metric, r.BaselineValue, r.CurrentValue, change,
		regression.FormatThreshold(r.ThresholdType, r.Threshold))
}

// -----------------------------------------------------------------------------
// GateApplier
// -----------------------------------------------------------------------------

// GateApplier checks suggestions against the severity gate and, when
// Store is set, records the current run at the snapshot's own timestamp
// (now when the snapshot has none).
type GateApplier struct {
	Gate *regression.Gate

	// Store records the current benchmarks. Nil skips storing.
	Store store.Store

	Logger *slog.Logger
}

// Apply implements Applier. The run is stored whether or not the gate
// passes, so failing runs still appear in trends.
func (g GateApplier) Apply(ctx context.Context, ex *Extraction, suggestions []Suggestion) (*Outcome, error) {
	gate := g.Gate
	if gate == nil {
		gate = regression.NewGate()
	}

	violations := make([]regression.Violation, 0, len(suggestions))
	for _, s := range suggestions {
		violations = append(violations, s.Violation)
	}
	outcome := &Outcome{Decision: gate.Check(ctx, violations)}

	if g.Store != nil && len(ex.Current) > 0 {
		run, err := g.Store.Store(ctx, ex.Current, ex.CurrentTimestamp)
		if err != nil {
			return outcome, fmt.Errorf("storing current run: %w", err)
		}
		outcome.StoredRun = run
		if g.Logger != nil {
			g.Logger.Info("stored current run", slog.String("run_id", run.ID))
		}
	}
	return outcome, nil
}
