// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot defines benchmark snapshots and stored runs, and the JSON
// document format shared by benchmark harness output and the run store.
//
// A document looks like:
//
//	{"timestamp": "2024-01-01T12:00:00", "benchmarks": [{"name": "test_sort", "stats": {"mean": 0.1}}]}
//
// Per-benchmark timestamps are not carried; every benchmark in a run inherits
// the run's timestamp.
package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
)

// -----------------------------------------------------------------------------
// Metric Keys
// -----------------------------------------------------------------------------

// Well-known metric keys. Stats maps are sparse and may carry others.
const (
	MetricMean   = "mean"
	MetricStddev = "stddev"
	MetricMin    = "min"
	MetricMax    = "max"
)

// TrendMetrics lists the metrics trend analysis accepts.
var TrendMetrics = []string{MetricMean, MetricMin, MetricMax, MetricStddev}

// IsTrendMetric reports whether metric is one of TrendMetrics.
func IsTrendMetric(metric string) bool {
	for _, m := range TrendMetrics {
		if m == metric {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Stats maps a metric key ("mean", "stddev", ...) to its measured value.
type Stats map[string]float64

// Get returns the value for metric and whether it was present.
func (s Stats) Get(metric string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s[metric]
	return v, ok
}

// Clone returns an independent copy. A nil Stats clones to nil.
func (s Stats) Clone() Stats {
	if s == nil {
		return nil
	}
	out := make(Stats, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Benchmark is one measured benchmark within a run.
type Benchmark struct {
	// Name identifies the benchmark. Unique within a run, repeated across runs.
	Name string `json:"name"`

	// Stats holds the measured metrics.
	Stats Stats `json:"stats"`
}

// Run is a batch of benchmarks captured at one timestamp and persisted together.
type Run struct {
	// ID is assigned when the run is stored. Empty for documents written by
	// older tooling.
	ID string `json:"run_id,omitempty"`

	// Timestamp is the run's capture time. Benchmarks inherit it.
	Timestamp time.Time `json:"-"`

	// Benchmarks holds the run's measurements in harness order.
	Benchmarks []Benchmark `json:"benchmarks"`
}

// Find returns the benchmark with the given name. When a run carries the
// name more than once, the last entry wins.
func (r *Run) Find(name string) (Benchmark, bool) {
	var (
		found Benchmark
		ok    bool
	)
	for _, b := range r.Benchmarks {
		if b.Name == name {
			found, ok = b, true
		}
	}
	return found, ok
}

// Names returns the distinct benchmark names in the run, sorted.
func (r *Run) Names() []string {
	seen := make(map[string]struct{}, len(r.Benchmarks))
	names := make([]string, 0, len(r.Benchmarks))
	for _, b := range r.Benchmarks {
		if b.Name == "" {
			continue
		}
		if _, dup := seen[b.Name]; dup {
			continue
		}
		seen[b.Name] = struct{}{}
		names = append(names, b.Name)
	}
	sort.Strings(names)
	return names
}

// -----------------------------------------------------------------------------
// Timestamps
// -----------------------------------------------------------------------------

// timestampLayout is ISO-8601 with microseconds and an explicit offset.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// localLayouts cover zone-less ISO-8601 timestamps that strfmt rejects.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 instant. Timestamps without a zone are
// taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrInvalidTimestamp)
	}
	if dt, err := strfmt.ParseDateTime(s); err == nil {
		return time.Time(dt).UTC(), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// FormatTimestamp renders t in UTC as ISO-8601 with microsecond resolution.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// FileName returns the deterministic, filesystem-safe file name for a run
// stored at ts: "benchmark_" + timestamp with ':' and '.' replaced by '-'.
func FileName(ts time.Time) string {
	safe := strings.NewReplacer(":", "-", ".", "-").Replace(FormatTimestamp(ts))
	return "benchmark_" + safe + ".json"
}

// UnmarshalJSON keeps numeric entries and drops the rest, so harness output
// carrying string or nested stats (such as outlier summaries) still loads.
func (s *Stats) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = nil
		return nil
	}
	out := make(Stats, len(raw))
	for k, v := range raw {
		if f, ok := v.(float64); ok {
			out[k] = f
		}
	}
	*s = out
	return nil
}
