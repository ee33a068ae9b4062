// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chart

import (
	"context"
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/AleutianAI/benchtrend/services/trend/store"
)

const (
	defaultWidth  = 640
	defaultHeight = 240
	margin        = 32.0
)

// SVGBackend draws a line chart as SVG.
type SVGBackend struct {
	Width  int
	Height int
}

// NewSVGBackend returns an SVG backend at the default size.
func NewSVGBackend() *SVGBackend {
	return &SVGBackend{Width: defaultWidth, Height: defaultHeight}
}

// Render implements Backend.
func (b *SVGBackend) Render(_ context.Context, name string, points []store.Point, metric string) (Chart, error) {
	values := series(points, metric)
	if len(values) < 2 {
		return Chart{}, ErrNotEnoughData
	}
	doc := drawSVG(name, metric, values, b.Width, b.Height, true)
	return Chart{Name: name, MediaType: "image/svg+xml", Data: []byte(doc)}, nil
}

// Available implements Backend.
func (b *SVGBackend) Available() bool { return true }

// Reason implements Backend.
func (b *SVGBackend) Reason() string { return "" }

// drawSVG lays out values (oldest first) as a polyline with point markers.
// Labels are omitted when withText is false, for rasterizers without text.
func drawSVG(name, metric string, values []float64, width, height int, withText bool) string {
	w, h := float64(width), float64(height)
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = math.Max(math.Abs(hi)*0.1, 1e-9)
		lo -= span / 2
	}

	plotW := w - 2*margin
	plotH := h - 2*margin
	step := plotW / float64(len(values)-1)

	xy := func(i int, v float64) (float64, float64) {
		x := margin + float64(i)*step
		y := margin + plotH - (v-lo)/span*plotH
		return x, y
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		width, height, width, height)
	fmt.Fprintf(&sb, `<rect x="0" y="0" width="%d" height="%d" fill="#ffffff"/>`, width, height)
	fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#999999" stroke-width="1"/>`,
		margin, margin+plotH, margin+plotW, margin+plotH)
	fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#999999" stroke-width="1"/>`,
		margin, margin, margin, margin+plotH)

	coords := make([]string, 0, len(values))
	for i, v := range values {
		x, y := xy(i, v)
		coords = append(coords, fmt.Sprintf("%.1f,%.1f", x, y))
	}
	fmt.Fprintf(&sb, `<polyline fill="none" stroke="#1f77b4" stroke-width="2" points="%s"/>`, strings.Join(coords, " "))
	for i, v := range values {
		x, y := xy(i, v)
		fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="3" fill="#1f77b4"/>`, x, y)
	}

	if withText {
		fmt.Fprintf(&sb, `<text x="%.1f" y="%.1f" font-family="sans-serif" font-size="13">%s</text>`,
			margin, margin-12, html.EscapeString(fmt.Sprintf("%s (%s)", name, metric)))
		fmt.Fprintf(&sb, `<text x="2" y="%.1f" font-family="sans-serif" font-size="10">%.4g</text>`, margin+4, hi)
		fmt.Fprintf(&sb, `<text x="2" y="%.1f" font-family="sans-serif" font-size="10">%.4g</text>`, margin+plotH, lo)
	}
	sb.WriteString(`</svg>`)
	return sb.String()
}
