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
	"math"
	"strings"

	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
)

// metricAliases maps accepted rule metric spellings to stats keys.
var metricAliases = map[string]string{
	"std":     snapshot.MetricStddev,
	"stdev":   snapshot.MetricStddev,
	"avg":     snapshot.MetricMean,
	"average": snapshot.MetricMean,
	"minimum": snapshot.MetricMin,
	"maximum": snapshot.MetricMax,
}

// ResolveMetric maps an alias ("std") to its stats key ("stddev").
// Unknown names are returned unchanged.
func ResolveMetric(metric string) string {
	key := strings.TrimSpace(metric)
	if resolved, ok := metricAliases[strings.ToLower(key)]; ok {
		return resolved
	}
	return key
}

// thresholdTolerance absorbs float64 representation error so that a change
// exactly at the threshold (1.0 -> 1.1 against 10%) is not flagged.
const thresholdTolerance = 1e-9

// exceeds reports change > threshold, treating differences within
// thresholdTolerance (scaled by the threshold) as equal.
func exceeds(change, threshold float64) bool {
	return change-threshold > thresholdTolerance*math.Max(1, math.Abs(threshold))
}

// Evaluate applies rules to a baseline and current stats snapshot.
//
// Description:
//
//	For each rule, in order: resolve the metric alias; skip when either
//	side lacks the metric; skip when current <= baseline; compute the
//	change (percentage rules skip a zero baseline); flag when the change
//	exceeds the threshold.
//
// Inputs:
//   - baseline: Baseline stats. May be nil.
//   - current: Current stats. May be nil.
//   - rules: Rules to apply.
//
// Outputs:
//   - []Violation: One entry per rule that fired, in rule order. Never nil.
//
// Thread Safety: Pure function. No I/O, no shared state.
func Evaluate(baseline, current snapshot.Stats, rules []Rule) []Violation {
	violations := make([]Violation, 0)

	for _, rule := range rules {
		metric := ResolveMetric(rule.Metric)

		baseValue, ok := baseline.Get(metric)
		if !ok {
			continue
		}
		curValue, ok := current.Get(metric)
		if !ok {
			continue
		}
		if curValue <= baseValue {
			continue
		}

		thresholdType := rule.ThresholdType.Effective()

		var change float64
		switch thresholdType {
		case ThresholdPercentage:
			if baseValue == 0 {
				continue
			}
			change = (curValue - baseValue) / baseValue
		case ThresholdAbsolute:
			change = curValue - baseValue
		default:
			continue
		}

		if !exceeds(change, rule.Threshold) {
			continue
		}

		violations = append(violations, Violation{
			Metric:        metric,
			ThresholdType: thresholdType,
			Threshold:     rule.Threshold,
			BaselineValue: baseValue,
			CurrentValue:  curValue,
			Change:        change,
			Severity:      rule.Severity.Effective(),
		})
	}

	return violations
}

// Highest returns the highest effective severity among violations, or
// SeverityUnset when there are none.
func Highest(violations []Violation) Severity {
	highest := SeverityUnset
	for _, v := range violations {
		if s := v.Severity.Effective(); s > highest {
			highest = s
		}
	}
	return highest
}
