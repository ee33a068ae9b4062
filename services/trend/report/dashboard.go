// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/benchtrend/services/trend/analysis"
	"github.com/AleutianAI/benchtrend/services/trend/chart"
)

// NoChartsNotice is shown when no benchmark has enough history for a chart.
const NoChartsNotice = "No charts available. Need at least 2 data points per benchmark to generate trends."

//go:embed templates/dashboard.html.tmpl
var dashboardSource string

var dashboardTemplate = template.Must(template.New("dashboard").Parse(dashboardSource))

// Dashboard renders a trend report as a self-contained HTML page.
type Dashboard struct {
	// Charts draws per-benchmark charts. Nil or unavailable degrades to a
	// text notice.
	Charts chart.Backend

	// IncludeCharts enables the charts section.
	IncludeCharts bool

	// Concurrency bounds parallel chart rendering. Default: 4.
	Concurrency int

	// Logger receives chart failures. Default: slog.Default().
	Logger *slog.Logger

	// Now stamps the page. Default: time.Now.
	Now func() time.Time
}

type dashboardRow struct {
	Name       string
	Direction  string
	Emoji      string
	Label      string
	Confidence string
	Change     string
	Latest     string
	DataPoints int
}

type dashboardChart struct {
	Name string
	Src  template.URL
}

type dashboardData struct {
	GeneratedAt  string
	Metric       string
	HistoryLimit int
	Summary      analysis.Summary
	ShowCharts   bool
	ChartNotice  string
	Charts       []dashboardChart
	Rows         []dashboardRow
	RawJSON      string
}

// Render produces the dashboard HTML.
//
// Description:
//
//	Charts are drawn for analyzed benchmarks with at least two points,
//	in parallel. A chart that fails to render is logged and left out.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - rep: Trend report. Series supplies chart data.
//
// Outputs:
//   - []byte: The HTML page.
//   - error: Template or JSON encoding failure, or ctx cancellation.
func (d *Dashboard) Render(ctx context.Context, rep *analysis.Report) ([]byte, error) {
	ctx, span := otel.Tracer("report").Start(ctx, "report.Dashboard.Render")
	defer span.End()

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	raw, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding raw data: %w", err)
	}

	data := dashboardData{
		GeneratedAt:  now().Format("2006-01-02 15:04:05"),
		Metric:       rep.Metadata.Metric,
		HistoryLimit: rep.Metadata.HistoryLimit,
		Summary:      rep.Summary(),
		ShowCharts:   d.IncludeCharts,
		Rows:         rows(rep),
		RawJSON:      string(raw),
	}

	if d.IncludeCharts {
		switch {
		case d.Charts == nil:
			data.ChartNotice = "Charts are not available: no chart backend configured."
		case !d.Charts.Available():
			data.ChartNotice = "Charts are not available: " + d.Charts.Reason() + "."
		default:
			charts, err := d.renderCharts(ctx, rep, logger)
			if err != nil {
				return nil, err
			}
			data.Charts = charts
			if len(charts) == 0 {
				data.ChartNotice = NoChartsNotice
			}
		}
	}
	span.SetAttributes(attribute.Int("charts", len(data.Charts)))

	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering dashboard: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile renders the dashboard to path, creating parent directories.
func (d *Dashboard) WriteFile(ctx context.Context, path string, rep *analysis.Report) error {
	page, err := d.Render(ctx, rep)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, page, 0644); err != nil {
		return fmt.Errorf("writing dashboard: %w", err)
	}
	return nil
}

func (d *Dashboard) renderCharts(ctx context.Context, rep *analysis.Report, logger *slog.Logger) ([]dashboardChart, error) {
	names := make([]string, 0)
	for _, name := range rep.Names() {
		t := rep.Trends[name]
		if t.Status == analysis.StatusAnalyzed && t.DataPoints >= 2 {
			names = append(names, name)
		}
	}

	slots := make([]*dashboardChart, len(names))
	var mu sync.Mutex

	limit := d.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, name := range names {
		g.Go(func() error {
			c, err := d.Charts.Render(gctx, name, rep.Series[name], rep.Metadata.Metric)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("failed to generate chart",
					slog.String("benchmark", name),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			slots[i] = &dashboardChart{Name: name, Src: template.URL(c.DataURL())}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	charts := make([]dashboardChart, 0, len(slots))
	for _, c := range slots {
		if c != nil {
			charts = append(charts, *c)
		}
	}
	return charts, nil
}

func rows(rep *analysis.Report) []dashboardRow {
	out := make([]dashboardRow, 0, len(rep.Trends))
	for _, name := range rep.Names() {
		t := rep.Trends[name]
		latest := "N/A"
		if t.Latest != nil {
			latest = fmt.Sprintf("%.6fs", *t.Latest)
		}
		out = append(out, dashboardRow{
			Name:       name,
			Direction:  string(t.Direction),
			Emoji:      DirectionEmoji(t.Direction),
			Label:      titleCase(string(t.Direction)),
			Confidence: FormatConfidence(t.Confidence),
			Change:     FormatChangeRatio(t.ChangeRatio),
			Latest:     latest,
			DataPoints: t.DataPoints,
		})
	}
	return out
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
