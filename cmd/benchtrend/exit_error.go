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
	"errors"
	"fmt"

	"github.com/AleutianAI/benchtrend/cmd/benchtrend/config"
	"github.com/AleutianAI/benchtrend/services/trend/analysis"
	"github.com/AleutianAI/benchtrend/services/trend/chart"
	"github.com/AleutianAI/benchtrend/services/trend/regression"
	"github.com/AleutianAI/benchtrend/services/trend/store"
)

// Process exit codes.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitConfig = 2
)

// ExitError carries the process exit code for a command failure.
//
// # Description
//
// Commands return ExitError when the exit code matters to CI, for example
// a failed regression gate. Errors of any other type exit with ExitFailed
// unless they wrap a configuration error.
//
// # Example
//
//	return &ExitError{Code: ExitFailed, Wrapped: decision.Err()}
type ExitError struct {
	// Code is the process exit code.
	Code int

	// Wrapped is the underlying error.
	Wrapped error
}

// Error returns the wrapped message.
func (e *ExitError) Error() string {
	if e.Wrapped == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Wrapped.Error()
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Wrapped
}

// configError marks err as a configuration error.
func configError(err error) error {
	return &ExitError{Code: ExitConfig, Wrapped: err}
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if isConfigError(err) {
		return ExitConfig
	}
	return ExitFailed
}

func isConfigError(err error) bool {
	for _, target := range []error{
		config.ErrInvalidConfig,
		config.ErrNotFound,
		regression.ErrInvalidRule,
		regression.ErrUnsupportedFormat,
		analysis.ErrUnsupportedMetric,
		store.ErrUnknownBackend,
		chart.ErrUnknownBackend,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
