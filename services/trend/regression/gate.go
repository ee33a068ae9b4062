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
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// -----------------------------------------------------------------------------
// Gate Configuration
// -----------------------------------------------------------------------------

// GateConfig configures the severity gate.
type GateConfig struct {
	// FailOn is the lowest severity that fails the gate.
	// Default: SeverityError
	FailOn Severity

	// Logger for gate decisions.
	Logger *slog.Logger
}

// DefaultGateConfig returns the CI defaults.
func DefaultGateConfig() *GateConfig {
	return &GateConfig{
		FailOn: SeverityError,
		Logger: slog.Default(),
	}
}

// GateOption configures the gate.
type GateOption func(*GateConfig)

// WithFailOn sets the lowest failing severity. SeverityUnset is ignored.
func WithFailOn(s Severity) GateOption {
	return func(c *GateConfig) {
		if s != SeverityUnset {
			c.FailOn = s
		}
	}
}

// WithGateLogger sets the logger.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(c *GateConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// -----------------------------------------------------------------------------
// Gate
// -----------------------------------------------------------------------------

// Gate decides whether a set of violations should fail CI.
//
// Thread Safety: Safe for concurrent use. Immutable after construction.
type Gate struct {
	config *GateConfig
	logger *slog.Logger
}

// NewGate creates a severity gate.
func NewGate(opts ...GateOption) *Gate {
	config := DefaultGateConfig()
	for _, opt := range opts {
		opt(config)
	}
	return &Gate{config: config, logger: config.Logger}
}

// FailOn returns the configured gate severity.
func (g *Gate) FailOn() Severity {
	return g.config.FailOn
}

// Decision is the outcome of a gate check.
type Decision struct {
	// Pass is false when any violation is at or above FailOn.
	Pass bool `json:"pass"`

	// FailOn is the gate severity that was applied.
	FailOn Severity `json:"fail_on"`

	// Highest is the highest severity seen, or SeverityUnset for none.
	Highest Severity `json:"-"`

	// Total counts all violations.
	Total int `json:"total"`

	// Blocking counts violations at or above FailOn.
	Blocking int `json:"blocking"`

	// BySeverity counts violations per severity name.
	BySeverity map[string]int `json:"by_severity"`
}

// Err returns nil on pass, or an error wrapping ErrGateFailed.
func (d *Decision) Err() error {
	if d.Pass {
		return nil
	}
	return fmt.Errorf("%w: %d regression(s) at or above %s (highest %s)",
		ErrGateFailed, d.Blocking, d.FailOn, d.Highest)
}

// Check applies the gate to violations.
//
// Inputs:
//   - ctx: Context for tracing. Must not be nil.
//   - violations: Violations from every benchmark.
//
// Outputs:
//   - *Decision: The gate decision. Never nil.
//
// Thread Safety: Safe for concurrent use.
func (g *Gate) Check(ctx context.Context, violations []Violation) *Decision {
	_, span := otel.Tracer("regression").Start(ctx, "regression.Gate.Check",
		trace.WithAttributes(
			attribute.String("fail_on", g.config.FailOn.String()),
			attribute.Int("violations", len(violations)),
		),
	)
	defer span.End()

	decision := &Decision{
		FailOn:     g.config.FailOn,
		Highest:    Highest(violations),
		Total:      len(violations),
		BySeverity: make(map[string]int),
	}
	for _, v := range violations {
		sev := v.Severity.Effective()
		decision.BySeverity[sev.String()]++
		if sev.AtLeast(g.config.FailOn) {
			decision.Blocking++
		}
	}
	decision.Pass = decision.Blocking == 0

	span.SetAttributes(
		attribute.Bool("pass", decision.Pass),
		attribute.Int("blocking", decision.Blocking),
	)
	if !decision.Pass {
		span.SetStatus(codes.Error, "regression gate failed")
	}

	g.logger.Info("regression gate check completed",
		slog.Bool("pass", decision.Pass),
		slog.String("fail_on", decision.FailOn.String()),
		slog.Int("violations", decision.Total),
		slog.Int("blocking", decision.Blocking),
	)

	return decision
}
