// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs a benchmark check as four stages: extract the
// baseline and current snapshots, analyze them, turn regressions into
// suggestions, and apply the outcome (gate, optional store).
//
// Each stage is an interface so a CI job can swap one out, for example to
// extract from an artifact store instead of local files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/benchtrend/services/trend/comparison"
	"github.com/AleutianAI/benchtrend/services/trend/regression"
	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
)

// Stage errors. Each failure is wrapped in the sentinel of its stage.
var (
	ErrExtraction  = errors.New("pipeline: extraction failed")
	ErrAnalysis    = errors.New("pipeline: analysis failed")
	ErrSuggestion  = errors.New("pipeline: suggestion failed")
	ErrApplication = errors.New("pipeline: application failed")
)

// -----------------------------------------------------------------------------
// Stage data
// -----------------------------------------------------------------------------

// Input names the snapshots to compare.
type Input struct {
	BaselinePath string
	CurrentPath  string
}

// Extraction is the parsed input.
type Extraction struct {
	Baseline []snapshot.Benchmark
	Current  []snapshot.Benchmark

	// CurrentTimestamp is the current snapshot's own timestamp, nil when
	// the document has none.
	CurrentTimestamp *time.Time
}

// Suggestion is one actionable finding.
type Suggestion struct {
	Benchmark string               `json:"benchmark"`
	Violation regression.Violation `json:"violation"`
	Message   string               `json:"message"`
}

// Outcome is what the applier did.
type Outcome struct {
	Decision  *regression.Decision `json:"decision"`
	StoredRun *snapshot.Run        `json:"-"`
}

// Result collects every stage's output.
type Result struct {
	Extraction  *Extraction
	Comparison  *comparison.Result
	Suggestions []Suggestion
	Outcome     *Outcome
	Duration    time.Duration
}

// -----------------------------------------------------------------------------
// Stage interfaces
// -----------------------------------------------------------------------------

// Extractor parses the input snapshots.
type Extractor interface {
	Extract(ctx context.Context, in Input) (*Extraction, error)
}

// Analyzer compares the extracted snapshots.
type Analyzer interface {
	Analyze(ctx context.Context, ex *Extraction) (*comparison.Result, error)
}

// Suggester turns a comparison into suggestions.
type Suggester interface {
	Suggest(ctx context.Context, result *comparison.Result) ([]Suggestion, error)
}

// Applier acts on the suggestions.
type Applier interface {
	Apply(ctx context.Context, ex *Extraction, suggestions []Suggestion) (*Outcome, error)
}

// -----------------------------------------------------------------------------
// Executor
// -----------------------------------------------------------------------------

// Executor runs extract, analyze, suggest and apply in order.
//
// Thread Safety: Safe for concurrent use if its stages are.
type Executor struct {
	Extractor Extractor
	Analyzer  Analyzer
	Suggester Suggester

	// Applier is optional. Nil skips the apply stage.
	Applier Applier

	Logger *slog.Logger
}

// Execute runs the pipeline.
//
// Description:
//
//	Stops at the first failing stage and returns the partial result along
//	with the stage error. A failed gate is not an error here; inspect
//	Result.Outcome.Decision.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - in: Snapshot locations.
//
// Outputs:
//   - *Result: Never nil.
//   - error: Wrapped in ErrExtraction, ErrAnalysis, ErrSuggestion or
//     ErrApplication.
func (e *Executor) Execute(ctx context.Context, in Input) (*Result, error) {
	ctx, span := otel.Tracer("pipeline").Start(ctx, "pipeline.Executor.Execute")
	defer span.End()

	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	res := &Result{}
	fail := func(stage error, err error) (*Result, error) {
		res.Duration = time.Since(start)
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("%w: %w", stage, err)
	}

	ex, err := e.Extractor.Extract(ctx, in)
	if err != nil {
		return fail(ErrExtraction, err)
	}
	res.Extraction = ex

	cmp, err := e.Analyzer.Analyze(ctx, ex)
	if err != nil {
		return fail(ErrAnalysis, err)
	}
	res.Comparison = cmp

	suggestions, err := e.Suggester.Suggest(ctx, cmp)
	if err != nil {
		return fail(ErrSuggestion, err)
	}
	res.Suggestions = suggestions

	if e.Applier != nil {
		outcome, err := e.Applier.Apply(ctx, ex, suggestions)
		if err != nil {
			return fail(ErrApplication, err)
		}
		res.Outcome = outcome
	}

	res.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("benchmarks", len(ex.Current)),
		attribute.Int("suggestions", len(suggestions)),
	)
	logger.Debug("pipeline completed",
		slog.Int("benchmarks", len(ex.Current)),
		slog.Int("suggestions", len(suggestions)),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}
