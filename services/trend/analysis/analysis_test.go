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
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
	"github.com/AleutianAI/benchtrend/services/trend/store"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// history builds points from most-recent-first means.
func history(means ...float64) []store.Point {
	points := make([]store.Point, 0, len(means))
	for i, m := range means {
		points = append(points, store.Point{
			Timestamp: base.Add(-time.Duration(i) * time.Hour),
			Stats:     snapshot.Stats{"mean": m},
		})
	}
	return points
}

// -----------------------------------------------------------------------------
// Classify
// -----------------------------------------------------------------------------

// TestClassify_InsufficientData verifies 0 and 1 points regardless of values.
func TestClassify_InsufficientData(t *testing.T) {
	for _, pts := range [][]store.Point{nil, history(5.0)} {
		got := Classify(pts, "mean")
		assert.Equal(t, StatusInsufficientData, got.Status)
		assert.Equal(t, DirectionUnknown, got.Direction)
		assert.Equal(t, 0.0, got.Confidence)
		assert.Equal(t, len(pts), got.DataPoints)
		assert.Nil(t, got.Latest)
	}
}

// TestClassify_DropsMissingMetric verifies points without the metric do not count.
func TestClassify_DropsMissingMetric(t *testing.T) {
	pts := history(1.0, 1.0)
	pts[1].Stats = snapshot.Stats{"min": 1.0}

	got := Classify(pts, "mean")
	assert.True(t, got.Insufficient())
	assert.Equal(t, 1, got.DataPoints)
}

// TestClassify_Stable verifies a slowly drifting but flat history.
func TestClassify_Stable(t *testing.T) {
	got := Classify(history(0.100, 0.1005, 0.101, 0.1015, 0.102), "mean")

	assert.Equal(t, StatusAnalyzed, got.Status)
	assert.Equal(t, DirectionStable, got.Direction)
	assert.Equal(t, 5, got.DataPoints)
	assert.Greater(t, got.Confidence, 0.0)
	assert.LessOrEqual(t, got.Confidence, 1.0)
	require.NotNil(t, got.Latest)
	assert.Equal(t, 0.100, *got.Latest)
	assert.Equal(t, 0.102, *got.Oldest)
}

// TestClassify_Degrading verifies a history getting slower over time.
func TestClassify_Degrading(t *testing.T) {
	got := Classify(history(0.16, 0.13, 0.13, 0.10, 0.10), "mean")

	assert.Equal(t, DirectionDegrading, got.Direction)
	assert.Greater(t, got.ChangeRatio, 0.0)
	assert.InDelta(t, 0.14, got.RecentAverage, 1e-12)
	assert.InDelta(t, 0.10, got.BaselineAverage, 1e-12)
	assert.Equal(t, 1.0, got.Confidence, "40% change saturates confidence")
}

// TestClassify_Improving verifies a history getting faster over time.
func TestClassify_Improving(t *testing.T) {
	got := Classify(history(0.90, 1.0, 1.0, 1.0, 1.0, 1.0), "mean")

	assert.Equal(t, DirectionImproving, got.Direction)
	assert.InDelta(t, -0.1/3, got.ChangeRatio, 1e-9)
	assert.Less(t, got.Confidence, 1.0)
}

// TestClassify_ShortHistories verifies the midpoint fallback for two and three points.
func TestClassify_ShortHistories(t *testing.T) {
	t.Run("two points", func(t *testing.T) {
		got := Classify(history(2.0, 1.0), "mean")
		assert.Equal(t, 2.0, got.RecentAverage)
		assert.Equal(t, 1.0, got.BaselineAverage)
		assert.Equal(t, DirectionDegrading, got.Direction)
	})

	t.Run("three points", func(t *testing.T) {
		got := Classify(history(1.0, 2.0, 4.0), "mean")
		assert.Equal(t, 1.0, got.RecentAverage)
		assert.Equal(t, 3.0, got.BaselineAverage)
		assert.Equal(t, DirectionImproving, got.Direction)
	})

	t.Run("four points use disjoint windows", func(t *testing.T) {
		got := Classify(history(1.0, 1.0, 1.0, 2.0), "mean")
		assert.Equal(t, 1.0, got.RecentAverage)
		assert.Equal(t, 2.0, got.BaselineAverage)
	})
}

// TestTrend_JSONKeepsZeroAverages verifies analyzed trends always carry both averages.
func TestTrend_JSONKeepsZeroAverages(t *testing.T) {
	got := Classify(history(0, 0, 0, 0), "mean")
	require.False(t, got.Insufficient())

	data, err := json.Marshal(got)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 0.0, decoded["recent_average"])
	assert.Equal(t, 0.0, decoded["baseline_average"])
}

// TestClassify_ZeroBaseline verifies a non-positive older average yields no change.
func TestClassify_ZeroBaseline(t *testing.T) {
	got := Classify(history(5.0, 0, 0, 0, 0, 0), "mean")
	assert.Equal(t, 0.0, got.ChangeRatio)
	assert.Equal(t, DirectionStable, got.Direction)
	assert.Equal(t, 1.0, got.Confidence)
}

// -----------------------------------------------------------------------------
// Analyzer
// -----------------------------------------------------------------------------

type trendCounter struct {
	calls map[string]string
}

func (c *trendCounter) TrendObserved(benchmark, _ string, direction string, _ float64) {
	c.calls[benchmark] = direction
}

func seededStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	s := store.NewFileStore(t.TempDir())

	means := []float64{0.10, 0.10, 0.13, 0.13, 0.16} // oldest first
	for i, m := range means {
		ts := base.Add(time.Duration(i) * time.Hour)
		_, err := s.Store(ctx, []snapshot.Benchmark{
			{Name: "test_slow", Stats: snapshot.Stats{"mean": m}},
			{Name: "test_flat", Stats: snapshot.Stats{"mean": 1.0}},
		}, &ts)
		require.NoError(t, err)
	}
	ts := base.Add(10 * time.Hour)
	_, err := s.Store(ctx, []snapshot.Benchmark{{Name: "test_new", Stats: snapshot.Stats{"mean": 1.0}}}, &ts)
	require.NoError(t, err)
	return s
}

// TestAnalyzeTrends_DiscoversNames verifies defaults and name discovery.
func TestAnalyzeTrends_DiscoversNames(t *testing.T) {
	counter := &trendCounter{calls: map[string]string{}}
	a := NewAnalyzer(seededStore(t), WithMetrics(counter), WithClock(func() time.Time { return base }))

	report, err := a.AnalyzeTrends(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, "mean", report.Metadata.Metric)
	assert.Equal(t, DefaultHistoryLimit, report.Metadata.HistoryLimit)
	assert.Equal(t, "2024-01-01T00:00:00.000000Z", report.Metadata.AnalysisTimestamp)

	// The five most recent runs include test_new and four runs with the others.
	assert.Equal(t, []string{"test_flat", "test_new", "test_slow"}, report.Names())
	assert.Equal(t, DirectionDegrading, report.Trends["test_slow"].Direction)
	assert.Equal(t, DirectionStable, report.Trends["test_flat"].Direction)
	assert.True(t, report.Trends["test_new"].Insufficient())

	assert.Equal(t, Summary{Total: 3, Degrading: 1, Stable: 1, Insufficient: 1}, report.Summary())
	assert.Len(t, report.Series["test_slow"], 5)
	assert.Equal(t, "degrading", counter.calls["test_slow"])
	assert.NotContains(t, counter.calls, "test_new")

	degrading := report.Degrading()
	require.Len(t, degrading, 1)
	assert.Equal(t, "test_slow", degrading[0].Name)
}

// TestAnalyzeTrends_ExplicitNamesAndLimit verifies the filter and history cap.
func TestAnalyzeTrends_ExplicitNamesAndLimit(t *testing.T) {
	a := NewAnalyzer(seededStore(t))

	report, err := a.AnalyzeTrends(context.Background(), Options{
		Names:        []string{"test_slow", " test_slow ", "unknown"},
		HistoryLimit: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"test_slow", "unknown"}, report.Names())
	// The two most recent runs contain test_slow once.
	assert.Equal(t, 1, report.Trends["test_slow"].DataPoints)
	assert.Equal(t, 0, report.Trends["unknown"].DataPoints)
}

// TestAnalyzeTrends_UnsupportedMetric verifies metric validation.
func TestAnalyzeTrends_UnsupportedMetric(t *testing.T) {
	a := NewAnalyzer(store.NewFileStore(t.TempDir()))

	_, err := a.AnalyzeTrends(context.Background(), Options{Metric: "median"})
	assert.True(t, errors.Is(err, ErrUnsupportedMetric))
}

// TestAnalyzeTrends_EmptyStore verifies an empty store yields an empty report.
func TestAnalyzeTrends_EmptyStore(t *testing.T) {
	a := NewAnalyzer(store.NewFileStore(t.TempDir()))

	report, err := a.AnalyzeTrends(context.Background(), Options{Metric: "max"})
	require.NoError(t, err)
	assert.Empty(t, report.Trends)
	assert.Equal(t, Summary{}, report.Summary())
}
