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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/benchtrend/services/trend/comparison"
	"github.com/AleutianAI/benchtrend/services/trend/regression"
	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
	"github.com/AleutianAI/benchtrend/services/trend/store"
)

const baselineJSON = `{
  "timestamp": "2024-01-01T00:00:00",
  "benchmarks": [
    {"name": "test_sort", "stats": {"mean": 1.0, "stddev": 0.1}},
    {"name": "test_parse", "stats": {"mean": 2.0, "stddev": 0.2}}
  ]
}`

const currentJSON = `{
  "timestamp": "2024-01-02T00:00:00",
  "benchmarks": [
    {"name": "test_sort", "stats": {"mean": 1.2, "stddev": 0.1}},
    {"name": "test_parse", "stats": {"mean": 2.0, "stddev": 0.3}},
    {"name": "test_new", "stats": {"mean": 0.5}}
  ]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newExecutor(gate *regression.Gate, st store.Store) *Executor {
	return &Executor{
		Extractor: FileExtractor{},
		Analyzer:  ComparisonAnalyzer{Engine: comparison.NewEngine(regression.DefaultRules())},
		Suggester: RegressionSuggester{},
		Applier:   GateApplier{Gate: gate, Store: st},
	}
}

// TestExecute_FailsGateOnError verifies a mean regression fails the default gate.
func TestExecute_FailsGateOnError(t *testing.T) {
	dir := t.TempDir()
	in := Input{
		BaselinePath: writeFile(t, dir, "baseline.json", baselineJSON),
		CurrentPath:  writeFile(t, dir, "current.json", currentJSON),
	}

	res, err := newExecutor(regression.NewGate(), nil).Execute(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, res.Extraction.Current, 3)
	require.Len(t, res.Comparison.Analyses, 3)
	require.Len(t, res.Suggestions, 2)

	assert.Equal(t, "test_sort", res.Suggestions[0].Benchmark)
	assert.Equal(t, regression.SeverityError, res.Suggestions[0].Violation.Severity)
	assert.Contains(t, res.Suggestions[0].Message, "+20.00%")
	assert.Contains(t, res.Suggestions[0].Message, "limit 10.00%")
	assert.Equal(t, "test_parse", res.Suggestions[1].Benchmark)
	assert.Equal(t, regression.SeverityWarning, res.Suggestions[1].Violation.Severity)

	require.NotNil(t, res.Outcome)
	assert.False(t, res.Outcome.Decision.Pass)
	assert.ErrorIs(t, res.Outcome.Decision.Err(), regression.ErrGateFailed)
	assert.Nil(t, res.Outcome.StoredRun)
}

// TestExecute_PassesHigherGate verifies a critical gate lets error regressions through.
func TestExecute_PassesHigherGate(t *testing.T) {
	dir := t.TempDir()
	in := Input{
		BaselinePath: writeFile(t, dir, "baseline.json", baselineJSON),
		CurrentPath:  writeFile(t, dir, "current.json", currentJSON),
	}

	gate := regression.NewGate(regression.WithFailOn(regression.SeverityCritical))
	res, err := newExecutor(gate, nil).Execute(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Outcome.Decision.Pass)
	assert.Equal(t, 2, res.Outcome.Decision.Total)
}

// TestExecute_MissingBaseline verifies every benchmark is new without a baseline.
func TestExecute_MissingBaseline(t *testing.T) {
	dir := t.TempDir()
	in := Input{
		BaselinePath: filepath.Join(dir, "absent.json"),
		CurrentPath:  writeFile(t, dir, "current.json", currentJSON),
	}

	res, err := newExecutor(regression.NewGate(), nil).Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, res.Extraction.Baseline)
	assert.Empty(t, res.Suggestions)
	for _, a := range res.Comparison.Analyses {
		assert.Nil(t, a.BaselineStats, a.Name)
	}
	assert.True(t, res.Outcome.Decision.Pass)
}

// TestExecute_StoresCurrentRun verifies the applier records the current run.
func TestExecute_StoresCurrentRun(t *testing.T) {
	dir := t.TempDir()
	in := Input{
		BaselinePath: writeFile(t, dir, "baseline.json", baselineJSON),
		CurrentPath:  writeFile(t, dir, "current.json", currentJSON),
	}
	st := store.NewFileStore(filepath.Join(dir, "data"))

	res, err := newExecutor(regression.NewGate(), st).Execute(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, res.Outcome.StoredRun)
	assert.False(t, res.Outcome.Decision.Pass)

	runs, err := st.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Len(t, runs[0].Benchmarks, 3)

	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NotNil(t, res.Extraction.CurrentTimestamp)
	assert.True(t, want.Equal(*res.Extraction.CurrentTimestamp))
	assert.True(t, want.Equal(runs[0].Timestamp), "stored at %s", runs[0].Timestamp)
	assert.True(t, want.Equal(res.Outcome.StoredRun.Timestamp))
}

// TestExecute_MissingCurrent verifies extraction fails without a current snapshot.
func TestExecute_MissingCurrent(t *testing.T) {
	dir := t.TempDir()
	in := Input{CurrentPath: filepath.Join(dir, "absent.json")}

	res, err := newExecutor(regression.NewGate(), nil).Execute(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtraction)
	require.NotNil(t, res)
	assert.Nil(t, res.Extraction)

	ex, err := FileExtractor{AllowMissing: true}.Extract(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, ex.Current)
}

// TestFileExtractor_Strict verifies schema validation of the current snapshot.
func TestFileExtractor_Strict(t *testing.T) {
	dir := t.TempDir()
	in := Input{CurrentPath: writeFile(t, dir, "current.json", `{"benchmarks": "oops"}`)}

	_, err := FileExtractor{Strict: true}.Extract(context.Background(), in)
	assert.ErrorIs(t, err, snapshot.ErrSchema)

	_, err = FileExtractor{}.Extract(context.Background(), in)
	assert.Error(t, err)
}

// TestFileExtractor_UnusableCurrent verifies a current snapshot that exists
// but cannot be compared is an error in both modes.
func TestFileExtractor_UnusableCurrent(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{name: "truncated", content: `{"benchmarks": [ {"name": "test_sort", "stats": {"mean": 9.9}}, TRUNCATED`},
		{name: "empty file", content: "  \n", want: snapshot.ErrEmptyDocument},
		{name: "no benchmarks", content: `{"timestamp": "2024-01-02T00:00:00", "benchmarks": []}`, want: ErrNoBenchmarks},
		{name: "unnamed benchmarks", content: `{"benchmarks": [{"stats": {"mean": 1}}]}`, want: ErrNoBenchmarks},
		{name: "bad timestamp", content: `{"timestamp": "yesterday", "benchmarks": [{"name": "a", "stats": {"mean": 1}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Input{CurrentPath: writeFile(t, dir, "current.json", tt.content)}
			for _, strict := range []bool{false, true} {
				ex, err := FileExtractor{Strict: strict}.Extract(context.Background(), in)
				require.Error(t, err, "strict=%v", strict)
				assert.Nil(t, ex)
				if tt.want != nil && !strict {
					assert.ErrorIs(t, err, tt.want)
				}
			}
		})
	}
}

// TestExecute_CorruptCurrentFailsExtraction verifies a corrupt current
// snapshot never reaches the gate.
func TestExecute_CorruptCurrentFailsExtraction(t *testing.T) {
	dir := t.TempDir()
	in := Input{
		BaselinePath: writeFile(t, dir, "baseline.json", baselineJSON),
		CurrentPath:  writeFile(t, dir, "current.json", `{"benchmarks": [ {"name": "test_sort"`),
	}

	res, err := newExecutor(regression.NewGate(), nil).Execute(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtraction)
	assert.Nil(t, res.Outcome)
}

type failingSuggester struct{}

func (failingSuggester) Suggest(context.Context, *comparison.Result) ([]Suggestion, error) {
	return nil, errors.New("boom")
}

// TestExecute_StageError verifies stage errors carry their stage sentinel.
func TestExecute_StageError(t *testing.T) {
	dir := t.TempDir()
	in := Input{
		BaselinePath: writeFile(t, dir, "baseline.json", baselineJSON),
		CurrentPath:  writeFile(t, dir, "current.json", currentJSON),
	}

	e := newExecutor(regression.NewGate(), nil)
	e.Suggester = failingSuggester{}
	res, err := e.Execute(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSuggestion)
	assert.Contains(t, err.Error(), "boom")
	assert.NotNil(t, res.Comparison)
	assert.Nil(t, res.Outcome)

	e = newExecutor(regression.NewGate(), nil)
	e.Analyzer = ComparisonAnalyzer{}
	_, err = e.Execute(context.Background(), in)
	assert.ErrorIs(t, err, ErrAnalysis)
}

// TestExecute_NoApplier verifies the apply stage is optional.
func TestExecute_NoApplier(t *testing.T) {
	dir := t.TempDir()
	in := Input{
		BaselinePath: writeFile(t, dir, "baseline.json", baselineJSON),
		CurrentPath:  writeFile(t, dir, "current.json", currentJSON),
	}

	e := newExecutor(nil, nil)
	e.Applier = nil
	res, err := e.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, res.Suggestions, 2)
	assert.Nil(t, res.Outcome)
}
