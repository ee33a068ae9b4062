// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package regression

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
)

// -----------------------------------------------------------------------------
// Evaluate Tests
// -----------------------------------------------------------------------------

// TestEvaluate_ZeroAbsoluteThresholdTolerance verifies increases within the
// float tolerance of a zero absolute threshold count as equal.
func TestEvaluate_ZeroAbsoluteThresholdTolerance(t *testing.T) {
	rules := []Rule{{Metric: "mean", ThresholdType: ThresholdAbsolute, Threshold: 0, Severity: SeverityError}}

	assert.Empty(t, Evaluate(snapshot.Stats{"mean": 1.0}, snapshot.Stats{"mean": 1.0 + 1e-10}, rules))

	got := Evaluate(snapshot.Stats{"mean": 1.0}, snapshot.Stats{"mean": 1.0 + 1e-6}, rules)
	require.Len(t, got, 1)
	assert.InDelta(t, 1e-6, got[0].Change, 1e-12)
}

// TestEvaluate_PercentageRegression verifies a 20% mean increase against a 10% rule.
func TestEvaluate_PercentageRegression(t *testing.T) {
	rules := []Rule{{Metric: "mean", ThresholdType: ThresholdPercentage, Threshold: 0.1, Severity: SeverityError}}

	got := Evaluate(snapshot.Stats{"mean": 1.0}, snapshot.Stats{"mean": 1.2}, rules)

	require.Len(t, got, 1)
	v := got[0]
	assert.Equal(t, "mean", v.Metric)
	assert.Equal(t, ThresholdPercentage, v.ThresholdType)
	assert.Equal(t, 1.0, v.BaselineValue)
	assert.Equal(t, 1.2, v.CurrentValue)
	assert.InDelta(t, 0.2, v.Change, 1e-12)
	assert.Equal(t, SeverityError, v.Severity)
}

// TestEvaluate_ThresholdBoundary verifies a change equal to the threshold is not flagged.
func TestEvaluate_ThresholdBoundary(t *testing.T) {
	rules := []Rule{{Metric: "mean", Threshold: 0.1}}

	assert.Empty(t, Evaluate(snapshot.Stats{"mean": 1.0}, snapshot.Stats{"mean": 1.1}, rules))

	got := Evaluate(snapshot.Stats{"mean": 1.0}, snapshot.Stats{"mean": 1.1001}, rules)
	require.Len(t, got, 1)
	assert.Equal(t, SeverityWarning, got[0].Severity, "unset severity defaults to warning")
	assert.Equal(t, ThresholdPercentage, got[0].ThresholdType, "unset type defaults to percentage")
}

// TestEvaluate_Skips verifies the cases that never produce a violation.
func TestEvaluate_Skips(t *testing.T) {
	pct := []Rule{{Metric: "mean", ThresholdType: ThresholdPercentage, Threshold: 0.1}}

	tests := []struct {
		name     string
		baseline snapshot.Stats
		current  snapshot.Stats
		rules    []Rule
	}{
		{"improvement", snapshot.Stats{"mean": 1.0}, snapshot.Stats{"mean": 0.5}, pct},
		{"unchanged", snapshot.Stats{"mean": 1.0}, snapshot.Stats{"mean": 1.0}, pct},
		{"baseline missing metric", snapshot.Stats{"min": 1.0}, snapshot.Stats{"mean": 5.0}, pct},
		{"current missing metric", snapshot.Stats{"mean": 1.0}, snapshot.Stats{"min": 5.0}, pct},
		{"nil stats", nil, nil, pct},
		{"zero baseline percentage", snapshot.Stats{"mean": 0}, snapshot.Stats{"mean": 5.0}, pct},
		{"no rules", snapshot.Stats{"mean": 1.0}, snapshot.Stats{"mean": 5.0}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.baseline, tt.current, tt.rules)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

// TestEvaluate_AbsoluteAndAlias verifies absolute rules and the "std" alias.
func TestEvaluate_AbsoluteAndAlias(t *testing.T) {
	rules := []Rule{
		{Metric: "std", ThresholdType: ThresholdAbsolute, Threshold: 0.05, Severity: SeverityCritical},
		{Metric: "mean", ThresholdType: ThresholdAbsolute, Threshold: 0.5},
	}
	baseline := snapshot.Stats{"mean": 0, "stddev": 0.10}
	current := snapshot.Stats{"mean": 0.2, "stddev": 0.20}

	got := Evaluate(baseline, current, rules)

	require.Len(t, got, 1)
	assert.Equal(t, "stddev", got[0].Metric)
	assert.InDelta(t, 0.10, got[0].Change, 1e-12)
	assert.Equal(t, SeverityCritical, got[0].Severity)
}

// TestEvaluate_RuleOrder verifies violations follow rule order.
func TestEvaluate_RuleOrder(t *testing.T) {
	rules := []Rule{
		{Metric: "max", Threshold: 0.1, Severity: SeverityInfo},
		{Metric: "mean", Threshold: 0.1, Severity: SeverityCritical},
	}
	got := Evaluate(snapshot.Stats{"mean": 1, "max": 1}, snapshot.Stats{"mean": 2, "max": 2}, rules)

	require.Len(t, got, 2)
	assert.Equal(t, "max", got[0].Metric)
	assert.Equal(t, "mean", got[1].Metric)
	assert.Equal(t, SeverityCritical, Highest(got))
}

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

// TestSeverity_Order verifies the total order and gate comparisons.
func TestSeverity_Order(t *testing.T) {
	assert.True(t, SeverityInfo < SeverityWarning)
	assert.True(t, SeverityWarning < SeverityError)
	assert.True(t, SeverityError < SeverityCritical)

	assert.True(t, SeverityCritical.AtLeast(SeverityError))
	assert.False(t, SeverityWarning.AtLeast(SeverityError))
	assert.True(t, SeverityUnset.AtLeast(SeverityWarning))
}

// TestParseSeverity verifies case-insensitive parsing and rejection of unknown names.
func TestParseSeverity(t *testing.T) {
	s, err := ParseSeverity("CRITICAL")
	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, s)

	_, err = ParseSeverity("fatal")
	assert.True(t, errors.Is(err, ErrInvalidRule))
}

// TestViolation_JSON verifies enum fields serialize as names.
func TestViolation_JSON(t *testing.T) {
	v := Violation{Metric: "mean", ThresholdType: ThresholdAbsolute, Threshold: 0.05, Severity: SeverityError}
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"threshold_type":"absolute"`)
	assert.Contains(t, string(data), `"severity":"error"`)
}

// -----------------------------------------------------------------------------
// Rules Tests
// -----------------------------------------------------------------------------

// TestParseRules verifies the accepted document shapes.
func TestParseRules(t *testing.T) {
	t.Run("json list", func(t *testing.T) {
		rules, err := ParseRules([]byte(`[{"metric":"mean","threshold_type":"absolute","threshold":0.05,"severity":"critical"}]`), "json")
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, ThresholdAbsolute, rules[0].ThresholdType)
		assert.Equal(t, SeverityCritical, rules[0].Severity)
	})

	t.Run("json object without severity", func(t *testing.T) {
		rules, err := ParseRules([]byte(`{"rules":[{"metric":"std","threshold":0.2}]}`), "")
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, SeverityUnset, rules[0].Severity)
		assert.Equal(t, SeverityWarning, rules[0].Severity.Effective())
	})

	t.Run("yaml object", func(t *testing.T) {
		doc := "rules:\n  - metric: mean\n    threshold_type: percentage\n    threshold: 0.1\n    severity: error\n"
		rules, err := ParseRules([]byte(doc), "yaml")
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, "mean", rules[0].Metric)
		assert.Equal(t, SeverityError, rules[0].Severity)
	})

	t.Run("yaml list", func(t *testing.T) {
		rules, err := ParseRules([]byte("- metric: max\n  threshold: 1\n"), ".yml")
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, 1.0, rules[0].Threshold)
	})

	t.Run("unknown severity", func(t *testing.T) {
		_, err := ParseRules([]byte(`[{"metric":"mean","threshold":0.1,"severity":"fatal"}]`), "json")
		assert.True(t, errors.Is(err, ErrInvalidRule))
	})

	t.Run("missing metric", func(t *testing.T) {
		_, err := ParseRules([]byte(`[{"threshold":0.1}]`), "json")
		assert.True(t, errors.Is(err, ErrInvalidRule))
	})

	t.Run("negative threshold", func(t *testing.T) {
		_, err := ParseRules([]byte(`[{"metric":"mean","threshold":-1}]`), "json")
		assert.True(t, errors.Is(err, ErrInvalidRule))
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := ParseRules([]byte(`metric = "mean"`), "toml")
		assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	})
}

// TestLoadRules verifies extension-based format selection.
func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- metric: mean\n  threshold: 0.1\n"), 0644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

// TestLegacyRule verifies the deprecated threshold maps to a mean error rule.
func TestLegacyRule(t *testing.T) {
	r := LegacyRule(0.15)
	assert.Equal(t, "mean", r.Metric)
	assert.Equal(t, ThresholdPercentage, r.ThresholdType)
	assert.Equal(t, SeverityError, r.Severity)
	assert.Equal(t, "mean > 15.00% (percentage, error)", r.String())
}

// -----------------------------------------------------------------------------
// Gate Tests
// -----------------------------------------------------------------------------

// TestGate_Check verifies pass/fail around the configured severity.
func TestGate_Check(t *testing.T) {
	violations := []Violation{
		{Metric: "mean", Severity: SeverityWarning},
		{Metric: "stddev", Severity: SeverityError},
	}

	t.Run("default gate fails on error", func(t *testing.T) {
		d := NewGate().Check(context.Background(), violations)
		assert.False(t, d.Pass)
		assert.Equal(t, 1, d.Blocking)
		assert.Equal(t, SeverityError, d.Highest)
		assert.True(t, errors.Is(d.Err(), ErrGateFailed))
	})

	t.Run("critical gate passes", func(t *testing.T) {
		d := NewGate(WithFailOn(SeverityCritical)).Check(context.Background(), violations)
		assert.True(t, d.Pass)
		assert.NoError(t, d.Err())
		assert.Equal(t, map[string]int{"warning": 1, "error": 1}, d.BySeverity)
	})

	t.Run("no violations", func(t *testing.T) {
		d := NewGate(WithFailOn(SeverityInfo)).Check(context.Background(), nil)
		assert.True(t, d.Pass)
		assert.Equal(t, SeverityUnset, d.Highest)
	})
}
