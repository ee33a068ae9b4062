// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires OpenTelemetry and Prometheus for benchtrend.
//
// Init configures the global tracer and meter providers. Every store,
// comparison and analysis operation starts a span through otel.Tracer, so
// with the default "none" exporters tracing costs nothing.
//
// Recorder exposes domain metrics on a prometheus.Registerer:
//
//   - benchtrend_runs_stored_total{backend}
//   - benchtrend_mirror_failures_total{target}
//   - benchtrend_regressions_total{severity}
//   - benchtrend_trend_change_ratio{benchmark,metric}
//   - benchtrend_trend_direction{benchmark,direction}
//
// A nil *Recorder is valid and records nothing. Push sends a gatherer to a
// Prometheus Pushgateway, which is how CI jobs report trend gauges.
//
// # Environment Variables
//
//   - BENCHTREND_ENV: environment name (default: development)
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
package telemetry

import "errors"

var (
	// ErrNilContext is returned when Init is called with a nil context.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter is returned for an unrecognized exporter name.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)
