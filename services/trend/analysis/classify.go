// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis classifies the direction of a benchmark's history and
// analyzes trends across every benchmark in a store.
//
// Classification compares the average of a recent window against the
// average of an older window. It is not a regression fit: outliers at the
// ends of the history move it less, and it needs no minimum sample size
// beyond two points.
package analysis

import (
	"math"

	"github.com/AleutianAI/benchtrend/services/trend/store"
)

// Status reports whether a trend could be computed.
type Status string

const (
	StatusAnalyzed         Status = "analyzed"
	StatusInsufficientData Status = "insufficient_data"
)

// Direction is the classified movement of a lower-is-better metric.
type Direction string

const (
	DirectionDegrading Direction = "degrading"
	DirectionImproving Direction = "improving"
	DirectionStable    Direction = "stable"
	DirectionUnknown   Direction = "unknown"
)

// Classification policy. These are fixed, not configuration.
const (
	// windowSize bounds the recent and older windows.
	windowSize = 3

	// stableBand is the |change ratio| below which a trend is stable.
	stableBand = 0.02

	// saturation is the |change ratio| at which confidence reaches 1.
	saturation = 0.10
)

// Trend is the classification of one benchmark's history.
type Trend struct {
	Status     Status    `json:"status"`
	DataPoints int       `json:"data_points"`
	Direction  Direction `json:"trend_direction"`
	Confidence float64   `json:"confidence"`

	// ChangeRatio is (recent - older) / older; 0 when older <= 0.
	ChangeRatio float64 `json:"change_ratio"`

	RecentAverage   float64 `json:"recent_average"`
	BaselineAverage float64 `json:"baseline_average"`

	// Latest and Oldest are nil when there is insufficient data.
	Latest *float64 `json:"latest_value,omitempty"`
	Oldest *float64 `json:"oldest_value,omitempty"`
}

// Insufficient reports whether the trend lacked data.
func (t Trend) Insufficient() bool {
	return t.Status == StatusInsufficientData
}

func insufficient(n int) Trend {
	return Trend{
		Status:     StatusInsufficientData,
		DataPoints: n,
		Direction:  DirectionUnknown,
		Confidence: 0,
	}
}

// Classify computes the trend of metric over points.
//
// Description:
//
//	points must be most recent first, as returned by store.HistoryFor.
//	Points without the metric are dropped. With fewer than two values the
//	trend is insufficient_data. Otherwise the recent window is up to three
//	most recent values and the older window is up to three oldest values
//	not already in the recent window. When nothing is left for the older
//	window, the values are split at the midpoint instead.
//
// Inputs:
//   - points: History, most recent first.
//   - metric: Stats key to classify.
//
// Outputs:
//   - Trend: The classification.
//
// Thread Safety: Pure function.
func Classify(points []store.Point, metric string) Trend {
	values := make([]float64, 0, len(points))
	for _, p := range points {
		if v, ok := p.Stats.Get(metric); ok {
			values = append(values, v)
		}
	}

	n := len(values)
	if n < 2 {
		return insufficient(n)
	}

	recent, older := splitWindows(values)
	recentAvg := mean(recent)
	olderAvg := mean(older)

	var ratio float64
	if olderAvg > 0 {
		ratio = (recentAvg - olderAvg) / olderAvg
	}

	direction, confidence := classifyRatio(ratio)
	latest, oldest := values[0], values[n-1]

	return Trend{
		Status:          StatusAnalyzed,
		DataPoints:      n,
		Direction:       direction,
		Confidence:      confidence,
		ChangeRatio:     ratio,
		RecentAverage:   recentAvg,
		BaselineAverage: olderAvg,
		Latest:          &latest,
		Oldest:          &oldest,
	}
}

// splitWindows returns the recent and older windows of values (n >= 2).
func splitWindows(values []float64) (recent, older []float64) {
	n := len(values)
	recentCount := min(windowSize, n)
	recent = values[:recentCount]

	remaining := values[recentCount:]
	if len(remaining) > 0 {
		older = remaining[len(remaining)-min(windowSize, len(remaining)):]
		return recent, older
	}

	split := n / 2
	if split > 0 {
		recent = values[:split]
	} else {
		recent = values
	}
	if split < n {
		older = values[split:]
	} else {
		older = values[n-1:]
	}
	return recent, older
}

// classifyRatio maps a change ratio to a direction and confidence.
func classifyRatio(ratio float64) (Direction, float64) {
	abs := math.Abs(ratio)
	switch {
	case abs < stableBand:
		return DirectionStable, 1 - abs/stableBand
	case ratio > 0:
		return DirectionDegrading, math.Min(1, abs/saturation)
	default:
		return DirectionImproving, math.Min(1, abs/saturation)
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
