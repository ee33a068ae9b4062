// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chart renders a benchmark's history as an embeddable image.
//
// Charts are optional. A Backend that is not Available makes the
// dashboard fall back to text, it never fails the dashboard.
package chart

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/benchtrend/services/trend/store"
)

var (
	// ErrUnavailable is returned by a backend that cannot render.
	ErrUnavailable = errors.New("chart backend unavailable")

	// ErrNotEnoughData indicates fewer than two points carry the metric.
	ErrNotEnoughData = errors.New("need at least 2 data points for a chart")

	// ErrUnknownBackend indicates an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown chart backend")
)

// Backend names accepted by NewBackend.
const (
	KindSVG  = "svg"
	KindPNG  = "png"
	KindNone = "none"
)

// Chart is a rendered image.
type Chart struct {
	Name      string
	MediaType string
	Data      []byte
}

// DataURL returns the chart as a base64 data URL for <img src>.
func (c Chart) DataURL() string {
	return "data:" + c.MediaType + ";base64," + base64.StdEncoding.EncodeToString(c.Data)
}

// Backend renders one benchmark's history.
type Backend interface {
	// Render draws points (most recent first) for metric.
	Render(ctx context.Context, name string, points []store.Point, metric string) (Chart, error)

	// Available reports whether Render can succeed.
	Available() bool

	// Reason explains why the backend is unavailable. Empty when available.
	Reason() string
}

// NewBackend returns the backend for kind ("svg", "png", "none").
func NewBackend(kind string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindSVG:
		return NewSVGBackend(), nil
	case KindPNG:
		return NewPNGBackend(), nil
	case KindNone:
		return Unavailable{Why: "charts disabled"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}

// Unavailable is a Backend that never renders.
type Unavailable struct {
	Why string
}

// Render implements Backend.
func (u Unavailable) Render(context.Context, string, []store.Point, string) (Chart, error) {
	return Chart{}, fmt.Errorf("%w: %s", ErrUnavailable, u.Reason())
}

// Available implements Backend.
func (u Unavailable) Available() bool { return false }

// Reason implements Backend.
func (u Unavailable) Reason() string {
	if u.Why == "" {
		return "no chart backend configured"
	}
	return u.Why
}

// series extracts metric values oldest first, so charts read left to right.
func series(points []store.Point, metric string) []float64 {
	values := make([]float64, 0, len(points))
	for i := len(points) - 1; i >= 0; i-- {
		if v, ok := points[i].Stats.Get(metric); ok {
			values = append(values, v)
		}
	}
	return values
}
