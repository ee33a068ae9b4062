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
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/AleutianAI/benchtrend/services/trend/store"
)

// PNGBackend rasterizes the SVG chart to PNG. Labels are dropped since the
// rasterizer does not draw text.
type PNGBackend struct {
	Width  int
	Height int
}

// NewPNGBackend returns a PNG backend at the default size.
func NewPNGBackend() *PNGBackend {
	return &PNGBackend{Width: defaultWidth, Height: defaultHeight}
}

// Render implements Backend.
func (b *PNGBackend) Render(ctx context.Context, name string, points []store.Point, metric string) (Chart, error) {
	if err := ctx.Err(); err != nil {
		return Chart{}, err
	}
	values := series(points, metric)
	if len(values) < 2 {
		return Chart{}, ErrNotEnoughData
	}

	doc := drawSVG(name, metric, values, b.Width, b.Height, false)
	icon, err := oksvg.ReadIconStream(strings.NewReader(doc), oksvg.IgnoreErrorMode)
	if err != nil {
		return Chart{}, fmt.Errorf("parsing chart svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(b.Width), float64(b.Height))

	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(b.Width, b.Height, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(b.Width, b.Height, scanner), 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Chart{}, fmt.Errorf("encoding png: %w", err)
	}
	return Chart{Name: name, MediaType: "image/png", Data: buf.Bytes()}, nil
}

// Available implements Backend.
func (b *PNGBackend) Available() bool { return true }

// Reason implements Backend.
func (b *PNGBackend) Reason() string { return "" }
