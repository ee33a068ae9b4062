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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// DefaultRules returns the rule set used when no rules file is given:
// mean +10% is an error, stddev +25% is a warning.
func DefaultRules() []Rule {
	return []Rule{
		{Metric: "mean", ThresholdType: ThresholdPercentage, Threshold: 0.10, Severity: SeverityError},
		{Metric: "stddev", ThresholdType: ThresholdPercentage, Threshold: 0.25, Severity: SeverityWarning},
	}
}

// LegacyRule converts the deprecated single regression threshold into the
// equivalent rule: a percentage increase of the mean at error severity.
func LegacyRule(threshold float64) Rule {
	return Rule{
		Metric:        "mean",
		ThresholdType: ThresholdPercentage,
		Threshold:     threshold,
		Severity:      SeverityError,
	}
}

// ValidateRules checks every rule and reports the first invalid one by index.
func ValidateRules(rules []Rule) error {
	for i, r := range rules {
		if err := validate.Struct(r); err != nil {
			return fmt.Errorf("%w: rule %d (%s): %v", ErrInvalidRule, i, r.Metric, err)
		}
		if r.ThresholdType < ThresholdUnset || r.ThresholdType > ThresholdAbsolute {
			return fmt.Errorf("%w: rule %d: threshold_type out of range", ErrInvalidRule, i)
		}
		if r.Severity < SeverityUnset || r.Severity > SeverityCritical {
			return fmt.Errorf("%w: rule %d: severity out of range", ErrInvalidRule, i)
		}
	}
	return nil
}

// rulesDocument is the object form of a rules file: {"rules": [...]}.
type rulesDocument struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

// ParseRules decodes a rule set.
//
// Description:
//
//	Accepts either a bare list of rules or an object with a "rules" key.
//	The format is "json" or "yaml"; an empty format sniffs the first
//	non-space byte and falls back to YAML. Unknown severities and
//	threshold types are errors.
//
// Inputs:
//   - data: Raw rules document.
//   - format: "json", "yaml", "yml", or "".
//
// Outputs:
//   - []Rule: Validated rules. Never nil on success.
//   - error: Wraps ErrInvalidRule or ErrUnsupportedFormat.
func ParseRules(data []byte, format string) ([]Rule, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty rules document", ErrInvalidRule)
	}

	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if format == "" {
		if trimmed[0] == '{' || trimmed[0] == '[' {
			format = "json"
		} else {
			format = "yaml"
		}
	}

	var (
		rules []Rule
		err   error
	)
	switch format {
	case "json":
		rules, err = parseJSONRules(trimmed)
	case "yaml", "yml":
		rules, err = parseYAMLRules(trimmed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidRule) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	if rules == nil {
		rules = []Rule{}
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func parseJSONRules(data []byte) ([]Rule, error) {
	if data[0] == '[' {
		var rules []Rule
		if err := json.Unmarshal(data, &rules); err != nil {
			return nil, err
		}
		return rules, nil
	}
	var doc rulesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Rules, nil
}

func parseYAMLRules(data []byte) ([]Rule, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var rules []Rule
		if err := root.Decode(&rules); err != nil {
			return nil, err
		}
		return rules, nil
	}
	var doc rulesDocument
	if err := root.Decode(&doc); err != nil {
		return nil, err
	}
	return doc.Rules, nil
}

// LoadRules reads a rules file, choosing the format from its extension.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	rules, err := ParseRules(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}
