// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report renders comparison results and trend analyses as
// Markdown (for PR comments and CI logs) and as an HTML dashboard.
//
// Output depends only on its input, so the same result always renders to
// the same bytes.
package report

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/benchtrend/services/trend/analysis"
	"github.com/AleutianAI/benchtrend/services/trend/comparison"
	"github.com/AleutianAI/benchtrend/services/trend/regression"
	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
)

// summaryMetric is the metric shown in the benchmark summary table.
const summaryMetric = snapshot.MetricMean

// SeverityEmoji returns the report marker for a severity. Info has none.
func SeverityEmoji(s regression.Severity) string {
	switch s.Effective() {
	case regression.SeverityWarning:
		return "⚠️"
	case regression.SeverityError:
		return "❌"
	case regression.SeverityCritical:
		return "🚨"
	default:
		return ""
	}
}

// DirectionEmoji returns the report marker for a trend direction.
func DirectionEmoji(d analysis.Direction) string {
	switch d {
	case analysis.DirectionDegrading:
		return "❌"
	case analysis.DirectionImproving:
		return "✅"
	case analysis.DirectionStable:
		return "➡️"
	default:
		return "❔"
	}
}

// formatValue renders a metric value with six decimals, or N/A.
func formatValue(v float64, ok bool) string {
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.6f", v)
}

// formatChange renders a violation's change in its rule's units.
func formatChange(v regression.Violation) string {
	if v.ThresholdType.Effective() == regression.ThresholdPercentage {
		return fmt.Sprintf("%+.2f%%", v.Change*100)
	}
	return fmt.Sprintf("%+.6f", v.Change)
}

// FormatChangeRatio renders a trend's change ratio, "0.0%" when zero.
func FormatChangeRatio(ratio float64) string {
	if ratio == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%+.1f%%", ratio*100)
}

// FormatConfidence renders a confidence, "N/A" when zero.
func FormatConfidence(c float64) string {
	if c <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", c*100)
}

// BenchmarkMarkdown renders a comparison result.
//
// Description:
//
//	A summary table shows the mean of every current benchmark against its
//	baseline. It is followed by a table of regressions, or a notice that
//	none were found.
//
// Inputs:
//   - result: Comparison result. Must not be nil.
//
// Outputs:
//   - string: Markdown. Identical for identical input.
func BenchmarkMarkdown(result *comparison.Result) string {
	var sb strings.Builder

	sb.WriteString("## 🚀 Performance Benchmark Report\n\n")
	sb.WriteString("### 📊 Benchmark Summary\n")
	sb.WriteString("| Benchmark | Metric | Baseline | Current | Change |\n")
	sb.WriteString("|-----------|--------|----------|---------|--------|\n")

	for _, a := range result.Analyses {
		cur, curOK := a.CurrentStats.Get(summaryMetric)
		base, baseOK := a.BaselineStats.Get(summaryMetric)

		change := "N/A"
		if curOK && baseOK && base > 0 {
			change = fmt.Sprintf("%+.2f%%", (cur-base)/base*100)
		}

		fmt.Fprintf(&sb, "| `%s` | %s | %s | %s | %s |\n",
			a.Name, summaryMetric, formatValue(base, baseOK), formatValue(cur, curOK), change)
	}

	if len(result.Regressions) == 0 {
		sb.WriteString("\n### ✅ No Performance Regressions Detected\n")
		sb.WriteString("All benchmarks are within the configured performance thresholds.\n")
		return sb.String()
	}

	sb.WriteString("\n### ❗ Regressions Detected\n")
	sb.WriteString("| Severity | Benchmark | Metric | Threshold | Baseline | Current | Change |\n")
	sb.WriteString("|----------|-----------|--------|-----------|----------|---------|--------|\n")

	for _, r := range result.Regressions {
		sev := r.Severity.Effective()
		fmt.Fprintf(&sb, "| %s %s | `%s` | `%s` | >%s (%s) | %s | %s | %s |\n",
			SeverityEmoji(sev), strings.ToUpper(sev.String()),
			r.Name, r.Metric,
			regression.FormatThreshold(r.ThresholdType, r.Threshold), r.ThresholdType.Effective(),
			formatValue(r.BaselineValue, true), formatValue(r.CurrentValue, true),
			formatChange(r.Violation))
	}
	return sb.String()
}

// TrendMarkdown renders a trend analysis.
func TrendMarkdown(rep *analysis.Report) string {
	var sb strings.Builder

	sb.WriteString("# 📈 Performance Trend Analysis Report\n\n")
	fmt.Fprintf(&sb, "**Analysis Date:** %s\n", rep.Metadata.AnalysisTimestamp)
	fmt.Fprintf(&sb, "**Metric Analyzed:** %s\n", rep.Metadata.Metric)
	fmt.Fprintf(&sb, "**History Limit:** %d entries\n\n", rep.Metadata.HistoryLimit)

	s := rep.Summary()
	sb.WriteString("## 📊 Summary\n\n")
	fmt.Fprintf(&sb, "- **Total Benchmarks:** %d\n", s.Total)
	fmt.Fprintf(&sb, "- **Degrading:** %d ❌\n", s.Degrading)
	fmt.Fprintf(&sb, "- **Improving:** %d ✅\n", s.Improving)
	fmt.Fprintf(&sb, "- **Stable:** %d ➡️\n", s.Stable)
	fmt.Fprintf(&sb, "- **Insufficient Data:** %d ❔\n\n", s.Insufficient)

	sb.WriteString("## 📈 Detailed Trends\n\n")
	sb.WriteString("| Benchmark | Status | Trend | Confidence | Change | Data Points |\n")
	sb.WriteString("|-----------|--------|-------|------------|--------|-------------|\n")

	for _, name := range rep.Names() {
		t := rep.Trends[name]
		fmt.Fprintf(&sb, "| `%s` | %s | %s %s | %s | %s | %d |\n",
			name, t.Status, DirectionEmoji(t.Direction), t.Direction,
			FormatConfidence(t.Confidence), FormatChangeRatio(t.ChangeRatio), t.DataPoints)
	}
	return sb.String()
}
