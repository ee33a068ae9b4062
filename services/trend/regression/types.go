// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package regression evaluates declarative regression rules against a
// baseline and a current stats snapshot, and gates CI on the severity of
// what it finds.
//
// All tracked metrics are treated as lower-is-better (timings). A rule
// only ever fires on an increase; there is no policy for metrics where a
// higher value is better.
package regression

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidRule indicates a rule that cannot be evaluated.
	ErrInvalidRule = errors.New("invalid regression rule")

	// ErrUnsupportedFormat indicates a rules file with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported rules file format")

	// ErrGateFailed indicates a regression at or above the severity gate.
	ErrGateFailed = errors.New("regression gate failed")
)

// -----------------------------------------------------------------------------
// Severity
// -----------------------------------------------------------------------------

// Severity orders regressions for CI gating: info < warning < error < critical.
type Severity int

const (
	// SeverityUnset is the zero value. Rules treat it as SeverityWarning.
	SeverityUnset Severity = iota

	// SeverityInfo is advisory only.
	SeverityInfo

	// SeverityWarning is the default rule severity.
	SeverityWarning

	// SeverityError fails CI under the default gate.
	SeverityError

	// SeverityCritical is the highest severity.
	SeverityCritical
)

// String returns the lower-case severity name.
func (s Severity) String() string {
	switch s {
	case SeverityUnset:
		return "unset"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseSeverity parses a case-insensitive severity name.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityUnset, fmt.Errorf("%w: unknown severity %q", ErrInvalidRule, s)
	}
}

// Effective resolves SeverityUnset to SeverityWarning.
func (s Severity) Effective() Severity {
	if s == SeverityUnset {
		return SeverityWarning
	}
	return s
}

// AtLeast reports whether s meets or exceeds gate.
func (s Severity) AtLeast(gate Severity) bool {
	return s.Effective() >= gate.Effective()
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.Effective().String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty value leaves
// the severity unset.
func (s *Severity) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*s = SeverityUnset
		return nil
	}
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// -----------------------------------------------------------------------------
// Threshold Type
// -----------------------------------------------------------------------------

// ThresholdType selects how a rule's threshold is compared.
type ThresholdType int

const (
	// ThresholdUnset is the zero value. Rules treat it as ThresholdPercentage.
	ThresholdUnset ThresholdType = iota

	// ThresholdPercentage compares the fractional increase (0.1 = 10%).
	ThresholdPercentage

	// ThresholdAbsolute compares the raw increase in metric units.
	ThresholdAbsolute
)

// String returns "percentage", "absolute", or "unset".
func (t ThresholdType) String() string {
	switch t {
	case ThresholdUnset:
		return "unset"
	case ThresholdPercentage:
		return "percentage"
	case ThresholdAbsolute:
		return "absolute"
	default:
		return "unknown"
	}
}

// Effective resolves ThresholdUnset to ThresholdPercentage.
func (t ThresholdType) Effective() ThresholdType {
	if t == ThresholdUnset {
		return ThresholdPercentage
	}
	return t
}

// MarshalText implements encoding.TextMarshaler.
func (t ThresholdType) MarshalText() ([]byte, error) {
	return []byte(t.Effective().String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ThresholdType) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "":
		*t = ThresholdUnset
	case "percentage", "percent":
		*t = ThresholdPercentage
	case "absolute":
		*t = ThresholdAbsolute
	default:
		return fmt.Errorf("%w: unknown threshold_type %q", ErrInvalidRule, string(text))
	}
	return nil
}

// -----------------------------------------------------------------------------
// Rules and Violations
// -----------------------------------------------------------------------------

// Rule declares one regression comparison.
type Rule struct {
	// Metric is a stats key, or an alias such as "std".
	Metric string `json:"metric" yaml:"metric" validate:"required"`

	// ThresholdType selects percentage or absolute comparison.
	ThresholdType ThresholdType `json:"threshold_type" yaml:"threshold_type"`

	// Threshold is the fractional (percentage) or raw (absolute) increase
	// that must be exceeded to flag a regression. A change within
	// 1e-9*max(1, |Threshold|) of the threshold counts as equal to it, so
	// an absolute rule with Threshold 0 ignores increases below 1e-9.
	Threshold float64 `json:"threshold" yaml:"threshold" validate:"gte=0"`

	// Severity is attached to violations of this rule. Default: warning.
	Severity Severity `json:"severity" yaml:"severity"`
}

// String renders the rule for logs, e.g. "mean > 10.00% (percentage, error)".
func (r Rule) String() string {
	return fmt.Sprintf("%s > %s (%s, %s)", r.Metric, FormatThreshold(r.ThresholdType, r.Threshold),
		r.ThresholdType.Effective(), r.Severity.Effective())
}

// Violation is one rule that fired for one benchmark.
type Violation struct {
	// Metric is the resolved stats key.
	Metric string `json:"metric"`

	// ThresholdType is the rule's comparison mode.
	ThresholdType ThresholdType `json:"threshold_type"`

	// Threshold is the rule's threshold.
	Threshold float64 `json:"threshold"`

	// BaselineValue is the metric in the baseline.
	BaselineValue float64 `json:"baseline_value"`

	// CurrentValue is the metric in the current run.
	CurrentValue float64 `json:"current_value"`

	// Change is the fractional (percentage) or raw (absolute) increase.
	Change float64 `json:"change"`

	// Severity is the rule's effective severity.
	Severity Severity `json:"severity"`
}

// FormatThreshold renders a threshold the way reports show it:
// "10.00%" for percentage rules and the raw value ("0.05", "1.0") for
// absolute rules.
func FormatThreshold(t ThresholdType, threshold float64) string {
	if t.Effective() == ThresholdPercentage {
		return fmt.Sprintf("%.2f%%", threshold*100)
	}
	s := strconv.FormatFloat(threshold, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
