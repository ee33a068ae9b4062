// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/benchtrend/services/trend/comparison"
	"github.com/AleutianAI/benchtrend/services/trend/pipeline"
	"github.com/AleutianAI/benchtrend/services/trend/regression"
	"github.com/AleutianAI/benchtrend/services/trend/report"
	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
	"github.com/AleutianAI/benchtrend/services/trend/store"
)

type compareOptions struct {
	baseline      string
	current       string
	rulesFile     string
	threshold     float64
	failOn        string
	jsonOutput    bool
	output        string
	storeCurrent  bool
	strictCurrent bool
}

func newCompareCommand(a *app) *cobra.Command {
	o := &compareOptions{}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare current benchmarks against a baseline and gate on regressions",
		Long: `Compares every current benchmark with the baseline using the regression
rules and prints a Markdown report. Exits 1 when a regression meets or
exceeds --fail-on-severity.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompare(cmd, a, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.baseline, "baseline", "", "Path to the baseline benchmark JSON file")
	f.StringVar(&o.current, "current", "", "Path to the current benchmark JSON file")
	f.StringVar(&o.rulesFile, "rules-file", "", "Regression rules file (JSON or YAML)")
	f.Float64Var(&o.threshold, "regression-threshold", 0.1, "Deprecated: mean percentage threshold; use --rules-file")
	f.StringVar(&o.failOn, "fail-on-severity", "", "Lowest severity that fails the run (info, warning, error, critical)")
	f.BoolVar(&o.jsonOutput, "json", false, "Print canonical JSON instead of Markdown")
	f.StringVarP(&o.output, "output", "o", "", "Write the report to a file instead of stdout")
	f.BoolVar(&o.storeCurrent, "store", false, "Store the current run in the data directory")
	f.BoolVar(&o.strictCurrent, "strict", false, "Validate the current snapshot against the schema")
	_ = cmd.MarkFlagRequired("baseline")
	_ = cmd.MarkFlagRequired("current")
	return cmd
}

func runCompare(cmd *cobra.Command, a *app, o *compareOptions) error {
	ctx := cmd.Context()
	logger := a.slogger()

	rules, err := resolveRules(a, o, cmd.Flags().Changed("regression-threshold"))
	if err != nil {
		return err
	}

	failOn := a.cfg.FailOnSeverity
	if o.failOn != "" {
		failOn = o.failOn
	}
	severity, err := regression.ParseSeverity(failOn)
	if err != nil {
		return configError(err)
	}

	var st store.Store
	if o.storeCurrent {
		st, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	exec := &pipeline.Executor{
		Extractor: pipeline.FileExtractor{Strict: o.strictCurrent},
		Analyzer: pipeline.ComparisonAnalyzer{Engine: comparison.NewEngine(rules,
			comparison.WithLogger(logger),
			comparison.WithMetrics(a.metrics),
		)},
		Suggester: pipeline.RegressionSuggester{},
		Applier: pipeline.GateApplier{
			Gate:   regression.NewGate(regression.WithFailOn(severity), regression.WithGateLogger(logger)),
			Store:  st,
			Logger: logger,
		},
		Logger: logger,
	}

	res, err := exec.Execute(ctx, pipeline.Input{BaselinePath: o.baseline, CurrentPath: o.current})
	if err != nil {
		return &ExitError{Code: ExitFailed, Wrapped: err}
	}
	if len(res.Extraction.Baseline) == 0 {
		a.printer.Warning(fmt.Sprintf("No baseline benchmarks loaded from %s; every benchmark is new", o.baseline))
	}

	body, err := renderComparison(res.Comparison, o.jsonOutput)
	if err != nil {
		return err
	}
	if o.output == "" {
		if _, err := a.stdout.Write(body); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	} else {
		if err := writeOutput(o.output, body); err != nil {
			return err
		}
		a.printer.Success(fmt.Sprintf("Report written to %s", o.output))
	}

	if res.Outcome.StoredRun != nil {
		a.log().Info("current run stored",
			slog.String("run_id", res.Outcome.StoredRun.ID),
			slog.String("timestamp", snapshot.FormatTimestamp(res.Outcome.StoredRun.Timestamp)),
		)
	}
	if digest, err := snapshot.Digest(res.Comparison); err == nil {
		a.log().Debug("comparison complete",
			slog.String("digest", digest),
			slog.Int("regressions", len(res.Comparison.Regressions)),
		)
	}

	decision := res.Outcome.Decision
	for _, s := range res.Suggestions {
		if s.Violation.Severity.Effective().AtLeast(decision.FailOn) {
			a.printer.Warning(s.Message)
		}
	}
	if !decision.Pass {
		return &ExitError{Code: ExitFailed, Wrapped: decision.Err()}
	}
	return nil
}

// resolveRules picks the rules file, then the deprecated threshold, then
// the configured rules file, then the defaults.
func resolveRules(a *app, o *compareOptions, legacy bool) ([]regression.Rule, error) {
	path := o.rulesFile
	if path == "" && !legacy {
		path = a.cfg.RulesFile
	}
	if path != "" {
		if legacy {
			a.printer.Warning("--regression-threshold is ignored because a rules file was given")
		}
		rules, err := regression.LoadRules(path)
		if err != nil {
			return nil, configError(err)
		}
		return rules, nil
	}
	if legacy {
		a.printer.Warning("--regression-threshold is deprecated and will be removed; use --rules-file")
		a.log().Warn("deprecated flag used",
			slog.String("flag", "regression-threshold"),
			slog.Float64("threshold", o.threshold),
		)
		return []regression.Rule{regression.LegacyRule(o.threshold)}, nil
	}
	return regression.DefaultRules(), nil
}

func renderComparison(result *comparison.Result, asJSON bool) ([]byte, error) {
	if !asJSON {
		return []byte(report.BenchmarkMarkdown(result)), nil
	}
	data, err := snapshot.Canonical(result)
	if err != nil {
		return nil, fmt.Errorf("encoding comparison: %w", err)
	}
	return append(data, '\n'), nil
}

// writeOutput writes data to path, creating parent directories.
func writeOutput(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
