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
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/benchtrend/pkg/ux"
	"github.com/AleutianAI/benchtrend/services/trend/analysis"
	"github.com/AleutianAI/benchtrend/services/trend/chart"
	"github.com/AleutianAI/benchtrend/services/trend/report"
	"github.com/AleutianAI/benchtrend/services/trend/store"
)

type dashboardOptions struct {
	output       string
	benchmarks   string
	metric       string
	historyLimit int
	noCharts     bool
	analysisOnly bool
	storeCurrent string
	chartBackend string
}

func newDashboardCommand(a *app) *cobra.Command {
	o := &dashboardOptions{}
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Generate the performance trend dashboard from stored history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDashboard(cmd, a, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.output, "output", "", "Output path for the HTML dashboard (default: performance_dashboard.html)")
	f.StringVar(&o.benchmarks, "benchmarks", "", "Comma-separated benchmark names to include (default: all)")
	f.StringVar(&o.metric, "metric", "", "Metric to analyze: mean, min, max, stddev (default: mean)")
	f.IntVar(&o.historyLimit, "history-limit", 0, "Maximum number of historical runs to consider (default: 50)")
	f.BoolVar(&o.noCharts, "no-charts", false, "Disable chart generation")
	f.BoolVar(&o.analysisOnly, "analysis-only", false, "Print the analysis instead of writing the dashboard")
	f.StringVar(&o.storeCurrent, "store-current", "", "Store this benchmark JSON file before analyzing")
	f.StringVar(&o.chartBackend, "chart-backend", "", "Chart renderer: svg, png, none")
	return cmd
}

func runDashboard(cmd *cobra.Command, a *app, o *dashboardOptions) error {
	ctx := cmd.Context()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if o.storeCurrent != "" {
		run, err := storeSnapshotFile(ctx, st, o.storeCurrent, false)
		if err != nil {
			return err
		}
		a.printer.Success(fmt.Sprintf("Stored current benchmark data as run %s", run.ID))
	}

	rep, err := analyze(ctx, a, st, analysisRequest{
		names:        splitNames(o.benchmarks),
		metric:       o.metric,
		historyLimit: o.historyLimit,
	})
	if err != nil {
		return err
	}
	printTrendSummary(a.printer, rep)

	if o.analysisOnly {
		_, err := io.WriteString(a.stdout, "\n"+report.TrendMarkdown(rep))
		return err
	}

	backendKind := a.cfg.Dashboard.ChartBackend
	if o.chartBackend != "" {
		backendKind = o.chartBackend
	}
	dash, err := newDashboard(a, backendKind, !o.noCharts && a.cfg.Dashboard.Charts)
	if err != nil {
		return err
	}

	output := a.cfg.Dashboard.Output
	if o.output != "" {
		output = o.output
	}
	if err := dash.WriteFile(ctx, output, rep); err != nil {
		return err
	}
	a.printer.Success(fmt.Sprintf("Dashboard written to %s", output))
	return nil
}

// analysisRequest overrides the configured trend options. Zero values fall
// back to the configuration.
type analysisRequest struct {
	names        []string
	metric       string
	historyLimit int
}

// analyze runs trend analysis over st with the app's logger and metrics.
func analyze(ctx context.Context, a *app, st store.Store, req analysisRequest) (*analysis.Report, error) {
	metric := a.cfg.Trend.Metric
	if req.metric != "" {
		metric = req.metric
	}
	limit := a.cfg.Trend.HistoryLimit
	if req.historyLimit != 0 {
		limit = req.historyLimit
	}

	analyzer := analysis.NewAnalyzer(st,
		analysis.WithLogger(a.slogger()),
		analysis.WithMetrics(a.metrics),
	)
	rep, err := analyzer.AnalyzeTrends(ctx, analysis.Options{
		Names:        req.names,
		Metric:       metric,
		HistoryLimit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("analyzing trends: %w", err)
	}
	return rep, nil
}

// newDashboard builds the HTML renderer for a chart backend kind.
func newDashboard(a *app, kind string, charts bool) (*report.Dashboard, error) {
	backend, err := chart.NewBackend(kind)
	if err != nil {
		return nil, configError(err)
	}
	return &report.Dashboard{
		Charts:        backend,
		IncludeCharts: charts,
		Concurrency:   a.cfg.Dashboard.Concurrency,
		Logger:        a.slogger(),
	}, nil
}

// printTrendSummary prints one line per benchmark and the outcome counts.
func printTrendSummary(p *ux.Printer, rep *analysis.Report) {
	p.Title(fmt.Sprintf("Performance Trend Analysis (%s)", rep.Metadata.Metric))
	if len(rep.Trends) == 0 {
		p.Warning("No historical data found")
		return
	}
	for _, name := range rep.Names() {
		t := rep.Trends[name]
		if t.Insufficient() {
			p.Status(ux.IconPending, name, fmt.Sprintf("insufficient data (%d points)", t.DataPoints))
			continue
		}
		p.Status(directionIcon(t.Direction), name, fmt.Sprintf("%s %s (confidence %s)",
			t.Direction, report.FormatChangeRatio(t.ChangeRatio), report.FormatConfidence(t.Confidence)))
	}
	s := rep.Summary()
	p.Summary(
		ux.Count{Label: "degrading", N: s.Degrading, Icon: ux.IconError},
		ux.Count{Label: "improving", N: s.Improving, Icon: ux.IconSuccess},
		ux.Count{Label: "stable", N: s.Stable},
		ux.Count{Label: "insufficient data", N: s.Insufficient, Icon: ux.IconWarning},
	)
}

func directionIcon(d analysis.Direction) ux.Icon {
	switch d {
	case analysis.DirectionDegrading:
		return ux.IconUp
	case analysis.DirectionImproving:
		return ux.IconDown
	default:
		return ux.IconFlat
	}
}

// splitNames parses a comma-separated filter. Empty means all.
func splitNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}
